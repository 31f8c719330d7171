package transfer

// Channel is a reliable, ordered, message-oriented pipe between two peers.
// Text frames carry control messages and binary frames carry chunks.
type Channel interface {
	SendText(text string) error
	Send(data []byte) error
	BufferedAmount() uint64
}

// LowNotifier is implemented by channels that can signal when their send
// buffer drains below a threshold. Senders use it to wake early instead of
// waiting for the next poll.
type LowNotifier interface {
	SetBufferedAmountLowThreshold(th uint64)
	OnBufferedAmountLow(f func())
}
