package progress

import (
	"fmt"
	"time"
)

// smoothingFactor is the weight given to the newest speed measurement when
// folding it into the moving average.
const smoothingFactor = 0.1

// Snapshot is the state of a transfer at a single sampling point.
type Snapshot struct {
	Bytes    int64 // bytes present so far, including any resumed prefix
	Total    int64
	Speed    int64 // speed over the last sampling window, bytes/sec
	AvgSpeed float64
}

// Fraction returns the completed fraction of the transfer in [0, 1].
func (s Snapshot) Fraction() float64 {
	if s.Total <= 0 {
		return 0
	}
	f := float64(s.Bytes) / float64(s.Total)
	if f > 1 {
		f = 1
	}
	return f
}

// Estimator maintains a smoothed transfer speed and projects remaining time
// from a stream of byte-count samples. It is a plain value driven
// synchronously by the transfer loop; callers pass the clock in, which keeps
// it deterministic under test.
type Estimator struct {
	total    int64
	lastTime time.Time
	lastByte int64
	avg      float64
	primed   bool
}

// NewEstimator returns an estimator for a transfer of total bytes.
// already is the byte count present locally before the transfer began
// (non-zero only on resume); it seeds the first sampling window so that
// percentages and ETA reflect the whole file rather than the resumed tail.
func NewEstimator(total, already int64) *Estimator {
	return &Estimator{total: total, lastByte: already}
}

// Sample feeds the estimator the current byte count. Samples arriving less
// than a second after the previous one are coalesced and ignored, unless the
// transfer just completed. The boolean reports whether the snapshot should
// be displayed.
func (e *Estimator) Sample(now time.Time, bytes int64) (Snapshot, bool) {
	if !e.primed {
		e.primed = true
		e.lastTime = now
		return Snapshot{Bytes: bytes, Total: e.total}, false
	}

	elapsed := now.Sub(e.lastTime)
	if elapsed < time.Second {
		if bytes < e.total {
			return Snapshot{}, false
		}
		// Completion always renders, using whatever average we have.
		return Snapshot{Bytes: bytes, Total: e.total, Speed: int64(e.avg), AvgSpeed: e.avg}, true
	}

	instant := float64(bytes-e.lastByte) / elapsed.Seconds()
	if e.avg == 0 {
		e.avg = instant
	}
	e.avg = smoothingFactor*instant + (1-smoothingFactor)*e.avg
	e.lastTime = now
	e.lastByte = bytes

	return Snapshot{Bytes: bytes, Total: e.total, Speed: int64(instant), AvgSpeed: e.avg}, true
}

// ETA renders the projected remaining time as HH:MM:SS. A zero or unknown
// average speed yields a sentinel instead of a division by zero.
func (s Snapshot) ETA() string {
	if s.AvgSpeed <= 0 {
		return "--:--:--"
	}
	remaining := s.Total - s.Bytes
	if remaining < 0 {
		remaining = 0
	}
	secs := int(float64(remaining) / s.AvgSpeed)
	return fmt.Sprintf("%02d:%02d:%02d", secs/3600, (secs%3600)/60, secs%60)
}
