package detector

import (
	"time"

	"github.com/okian/pulsegate/internal/domain/model"
)

// rollingWindow is a time-bounded buffer of recent samples owned exclusively
// by the detector. Eviction advances a monotonic cursor instead of reslicing
// on every insert, so amortized cost per sample stays O(1).
type rollingWindow struct {
	samples []model.HeartRateSample
	start   int // index of the logical head; entries before it are evicted
	horizon time.Time
}

func newRollingWindow() *rollingWindow {
	return &rollingWindow{}
}

// push appends a sample. Samples are expected ordered by time; the horizon
// only ever moves forward so a late out-of-order sample cannot resurrect
// evicted entries.
func (w *rollingWindow) push(s model.HeartRateSample) {
	w.samples = append(w.samples, s)
	if s.TS.After(w.horizon) {
		w.horizon = s.TS
	}
}

// evictOlderThan drops entries with a timestamp before cutoff by advancing
// the cursor, compacting the backing slice once more than half is dead.
func (w *rollingWindow) evictOlderThan(cutoff time.Time) {
	for w.start < len(w.samples) && w.samples[w.start].TS.Before(cutoff) {
		w.start++
	}
	if w.start > len(w.samples)/2 {
		w.samples = append(w.samples[:0], w.samples[w.start:]...)
		w.start = 0
	}
}

// view returns the live entries, oldest first. The returned slice aliases the
// window and must not be retained.
func (w *rollingWindow) view() []model.HeartRateSample {
	return w.samples[w.start:]
}

// len reports the number of live entries.
func (w *rollingWindow) len() int {
	return len(w.samples) - w.start
}

// newest returns the most recent timestamp seen.
func (w *rollingWindow) newest() time.Time {
	return w.horizon
}
