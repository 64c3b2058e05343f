package progress

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"time"
)

const defaultColumns = 80

// Tracker renders estimator snapshots as a single rewritten console line.
// One tracker exists per transfer; state is never shared across transfers.
type Tracker struct {
	w       io.Writer
	est     *Estimator
	columns int
	lastLen int
}

// NewTracker returns a tracker writing to w for a transfer of total bytes,
// already of which are present locally.
func NewTracker(w io.Writer, total, already int64) *Tracker {
	return &Tracker{w: w, est: NewEstimator(total, already), columns: Columns()}
}

// Update feeds the current byte count to the estimator and redraws the
// progress line when a new sample is due.
func (t *Tracker) Update(bytes int64) {
	t.UpdateAt(time.Now(), bytes)
}

// UpdateAt is Update with an explicit clock.
func (t *Tracker) UpdateAt(now time.Time, bytes int64) {
	snap, ok := t.est.Sample(now, bytes)
	if !ok {
		return
	}
	t.clearLine()
	line := fmt.Sprintf("\r%3d%% %s %s | Speed: %s | ETA: %s",
		int(snap.Fraction()*100),
		Bar(snap.Fraction(), t.columns/4),
		FormatPair(snap.Bytes, snap.Total),
		FormatSpeed(snap.Speed),
		snap.ETA(),
	)
	t.lastLen = len(line) - 1
	fmt.Fprint(t.w, line)
}

// Finish terminates the progress line.
func (t *Tracker) Finish() {
	if t.lastLen > 0 {
		fmt.Fprintln(t.w)
	}
}

func (t *Tracker) clearLine() {
	if t.lastLen == 0 {
		return
	}
	fmt.Fprint(t.w, "\r")
	for i := 0; i < t.lastLen; i++ {
		fmt.Fprint(t.w, " ")
	}
}

// Columns reports the terminal width. The width query itself is out of our
// hands, so COLUMNS is honored when set and a conventional width is assumed
// otherwise.
func Columns() int {
	if v := os.Getenv("COLUMNS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return defaultColumns
}
