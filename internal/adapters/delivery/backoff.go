package delivery

import (
	"math/rand"
	"time"
)

// backoffPolicy computes the wait before a failed notification is retried:
// min(maxInterval, base doubled per attempt) plus a uniform jitter so a
// burst of failures does not retry in lockstep.
type backoffPolicy struct {
	base   time.Duration
	max    time.Duration
	jitter time.Duration
	rng    *rand.Rand
}

func newBackoffPolicy(base, max, jitter time.Duration) backoffPolicy {
	return backoffPolicy{
		base:   base,
		max:    max,
		jitter: jitter,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// delay returns the retry wait after the given number of attempts. Not
// goroutine safe; the queue calls it from its single processing lane.
func (p backoffPolicy) delay(attempts int) time.Duration {
	d := p.base
	for i := 0; i < attempts && d < p.max; i++ {
		d *= 2
	}
	if d > p.max {
		d = p.max
	}
	if p.jitter > 0 {
		d += time.Duration(p.rng.Int63n(int64(p.jitter)))
	}
	return d
}
