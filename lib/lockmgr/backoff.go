package lockmgr

import (
	"math/rand/v2"
	"time"
)

// backoff computes the delay between two acquisition attempts.
// The delay doubles with every attempt, starting at base and capped at max,
// and is spread by +-jitter (a fraction of the delay).
type backoff struct {
	base   time.Duration
	max    time.Duration
	jitter float64
}

func newBackoff(cfg Config) backoff {
	maxDelay := cfg.MaxPollInterval
	if maxDelay < cfg.PollInterval {
		maxDelay = cfg.PollInterval
	}
	return backoff{
		base:   cfg.PollInterval,
		max:    maxDelay,
		jitter: cfg.Jitter,
	}
}

// delay returns the delay after the attempt-th failed attempt (attempt >= 1)
func (b backoff) delay(attempt int) time.Duration {
	d := b.base
	for i := 1; i < attempt && d < b.max; i++ {
		d *= 2
	}
	if d > b.max {
		d = b.max
	}
	if b.jitter > 0 {
		d = time.Duration(float64(d) * (1 + b.jitter*(2*rand.Float64()-1)))
	}
	return d
}
