package progress

import (
	"fmt"
	"strings"
)

const (
	kib = 1024
	mib = 1024 * kib
	gib = 1024 * mib
)

// FormatPair renders "now/total" in the unit that keeps total below 1024.
func FormatPair(now, total int64) string {
	switch {
	case total < kib:
		return fmt.Sprintf("(%d/%d B)", now, total)
	case total < mib:
		return fmt.Sprintf("(%.2f/%.2f KiB)", float64(now)/kib, float64(total)/kib)
	case total < gib:
		return fmt.Sprintf("(%.2f/%.2f MiB)", float64(now)/mib, float64(total)/mib)
	default:
		return fmt.Sprintf("(%.2f/%.2f GiB)", float64(now)/gib, float64(total)/gib)
	}
}

// FormatSpeed renders a transfer rate, picking the unit independently of the
// progress pair.
func FormatSpeed(bytesPerSecond int64) string {
	switch {
	case bytesPerSecond < kib:
		return fmt.Sprintf("%d B/s", bytesPerSecond)
	case bytesPerSecond < mib:
		return fmt.Sprintf("%d KiB/s", bytesPerSecond/kib)
	case bytesPerSecond < gib:
		return fmt.Sprintf("%.1f MiB/s", float64(bytesPerSecond)/mib)
	default:
		return fmt.Sprintf("%.2f GiB/s", float64(bytesPerSecond)/gib)
	}
}

// FormatSize renders a byte count across every magnitude, used for the
// post-parse statistics block.
func FormatSize(bytes int64) string {
	return fmt.Sprintf("%d B, %.2f KiB, %.2f MiB, %.2f GiB",
		bytes, float64(bytes)/kib, float64(bytes)/mib, float64(bytes)/gib)
}

// Bar renders an ASCII progress bar of at most width cells for a fraction
// in [0, 1].
func Bar(fraction float64, width int) string {
	if width < 2 {
		width = 2
	}
	if fraction < 0 {
		fraction = 0
	}
	if fraction > 1 {
		fraction = 1
	}
	filled := int(fraction * float64(width))
	var b strings.Builder
	b.WriteByte('[')
	if filled > 0 {
		b.WriteString(strings.Repeat("=", filled-1))
		b.WriteByte('>')
	}
	b.WriteString(strings.Repeat(" ", width-filled))
	b.WriteByte(']')
	return b.String()
}
