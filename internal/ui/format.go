package ui

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
)

// FormatBytes renders a size with binary units, e.g. "1.5 MiB".
func FormatBytes(n int64) string {
	if n < 0 {
		n = 0
	}
	return humanize.IBytes(uint64(n))
}

// FormatSpeed renders a transfer rate, e.g. "12 MiB/s".
func FormatSpeed(bytesPerSecond float64) string {
	if bytesPerSecond < 0 {
		bytesPerSecond = 0
	}
	return humanize.IBytes(uint64(bytesPerSecond)) + "/s"
}

// FormatDuration renders an ETA or elapsed time compactly.
func FormatDuration(d time.Duration) string {
	seconds := d.Seconds()
	switch {
	case seconds < 1:
		return "<1s"
	case seconds < 60:
		return fmt.Sprintf("%.0fs", seconds)
	case seconds < 3600:
		return fmt.Sprintf("%dm%ds", int(seconds)/60, int(seconds)%60)
	default:
		return fmt.Sprintf("%dh%dm", int(seconds)/3600, (int(seconds)%3600)/60)
	}
}

func truncateString(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(r[:maxLen])
	}
	return string(r[:maxLen-3]) + "..."
}
