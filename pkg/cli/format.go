package cli

import (
	"fmt"
	"time"
)

// FormatDuration formats d compactly: 850ms, 1.5s, 2m5.5s.
func FormatDuration(d time.Duration) string {
	ms := d.Milliseconds()
	if ms < 1000 {
		return fmt.Sprintf("%dms", ms)
	}
	secs := float64(ms) / 1000
	if secs < 60 {
		return fmt.Sprintf("%.1fs", secs)
	}
	mins := int(secs / 60)
	secs -= float64(mins * 60)
	return fmt.Sprintf("%dm%.1fs", mins, secs)
}

// FormatBytes formats a byte count to a human readable string.
func FormatBytes(bytes int64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
	)
	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.2f GB", float64(bytes)/GB)
	case bytes >= MB:
		return fmt.Sprintf("%.2f MB", float64(bytes)/MB)
	case bytes >= KB:
		return fmt.Sprintf("%.2f KB", float64(bytes)/KB)
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}

// FormatPercent formats a probability in [0, 1] as a percentage.
func FormatPercent(p float64) string {
	return fmt.Sprintf("%.1f%%", p*100)
}
