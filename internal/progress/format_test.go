package progress

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFormatPair(t *testing.T) {
	tests := []struct {
		now, total int64
		want       string
	}{
		{500, 1000, "(500/1000 B)"},
		{512, 2048, "(0.50/2.00 KiB)"},
		{1 << 20, 10 << 20, "(1.00/10.00 MiB)"},
		{1 << 30, 2 << 30, "(1.00/2.00 GiB)"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatPair(tt.now, tt.total))
	}
}

func TestFormatSpeed(t *testing.T) {
	tests := []struct {
		speed int64
		want  string
	}{
		{512, "512 B/s"},
		{4096, "4 KiB/s"},
		{3 << 20, "3.0 MiB/s"},
		{1 << 30, "1.00 GiB/s"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatSpeed(tt.speed))
	}
}

func TestBar(t *testing.T) {
	assert.Equal(t, "[          ]", Bar(0, 10))
	assert.Equal(t, "[====>     ]", Bar(0.5, 10))
	assert.Equal(t, "[=========>]", Bar(1, 10))

	// Out-of-range fractions are clamped.
	assert.Equal(t, "[          ]", Bar(-1, 10))
	assert.Equal(t, "[=========>]", Bar(2, 10))
}

func TestTrackerOutput(t *testing.T) {
	var buf strings.Builder
	tr := NewTracker(&buf, 2048, 0)
	now := time.Unix(0, 0)

	tr.UpdateAt(now, 0)
	assert.Empty(t, buf.String(), "priming sample renders nothing")

	tr.UpdateAt(now.Add(time.Second), 1024)
	out := buf.String()
	assert.Contains(t, out, " 50% ")
	assert.Contains(t, out, "(1.00/2.00 KiB)")
	assert.Contains(t, out, "Speed: 1 KiB/s")
	assert.Contains(t, out, "ETA: 00:00:01")

	tr.Finish()
	assert.True(t, strings.HasSuffix(buf.String(), "\n"))
}
