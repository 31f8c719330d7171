package transfer

import (
	"encoding/json"
	"fmt"
	"strings"
)

const (
	MessageTypeFileInfo     = "file_info"
	MessageTypeFileComplete = "file_complete"
)

// FileInfo announces a file before its chunks.
type FileInfo struct {
	FileID string `json:"fileId"`
	Name   string `json:"name"`
	Size   int64  `json:"size"`
	Hash   string `json:"hash"`
}

// Message is a control frame on the data channel. Only the fields of its
// type are set.
type Message struct {
	Type string `json:"type"`
	FileInfo
}

// ParseMessage decodes and validates a text frame.
func ParseMessage(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, WrapError("parse message", ErrInvalidMessage, err.Error())
	}

	switch msg.Type {
	case MessageTypeFileInfo:
		msg.Hash = strings.ToLower(msg.Hash)
		switch {
		case msg.FileID == "":
			return nil, WrapError("parse message", ErrInvalidMessage, "missing fileId")
		case msg.Name == "":
			return nil, WrapError("parse message", ErrInvalidMessage, "missing name")
		case msg.Size < 0:
			return nil, WrapError("parse message", ErrInvalidMessage, fmt.Sprintf("negative size %d", msg.Size))
		case !validHash(msg.Hash):
			return nil, WrapError("parse message", ErrInvalidMessage, "hash is not a sha256 hex digest")
		}
	case MessageTypeFileComplete:
		if msg.FileID == "" {
			return nil, WrapError("parse message", ErrInvalidMessage, "missing fileId")
		}
	default:
		return nil, WrapError("parse message", ErrInvalidMessage, fmt.Sprintf("unknown type %q", msg.Type))
	}
	return &msg, nil
}

func sendControl(ch Channel, msg any) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return NewError("marshal message", err)
	}
	return ch.SendText(string(data))
}

// SendFileInfo sends the file_info frame for info.
func SendFileInfo(ch Channel, info FileInfo) error {
	return sendControl(ch, Message{Type: MessageTypeFileInfo, FileInfo: info})
}

// SendFileComplete sends the file_complete frame for fileID.
func SendFileComplete(ch Channel, fileID string) error {
	return sendControl(ch, struct {
		Type   string `json:"type"`
		FileID string `json:"fileId"`
	}{MessageTypeFileComplete, fileID})
}
