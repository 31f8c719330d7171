package transfer

import "time"

// --- Wire and flow-control constants ---
const (
	ChunkSize       = 16 * 1024 // 16 KB - largest binary frame
	BufferThreshold = 64 * 1024 // 64 KB - pause sending at or above this
	LowWaterMark    = 32 * 1024 // 32 KB - drain notification threshold

	PollInterval = 10 * time.Millisecond
	FileGap      = 500 * time.Millisecond

	// Timeouts
	SendTimeout       = 60 * time.Second // buffer must shrink within this window
	DrainTimeout      = 30 * time.Second
	drainPollInterval = 50 * time.Millisecond
)

// TransferOptions controls where the receiving side stores files.
type TransferOptions struct {
	OutputDir string
	ZipMode   bool
}
