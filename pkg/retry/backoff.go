// Package retry computes capped exponential backoff with jitter.
package retry

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// Backoff doubles from Min up to Max. Jitter in [0,1] removes up to that
// fraction of each delay at random.
type Backoff struct {
	Min    time.Duration
	Max    time.Duration
	Jitter float64

	mu  sync.Mutex
	rnd *rand.Rand
}

// New returns a backoff with its own random source.
func New(min, max time.Duration, jitter float64) *Backoff {
	return &Backoff{Min: min, Max: max, Jitter: jitter, rnd: rand.New(rand.NewSource(time.Now().UnixNano()))}
}

// Delay returns the wait before retry attempt (1-based).
func (b *Backoff) Delay(attempt int) time.Duration {
	min, max := b.Min, b.Max
	if min <= 0 {
		min = 50 * time.Millisecond
	}
	if max < min {
		max = min
	}
	if attempt < 1 {
		attempt = 1
	}

	exp := max
	if attempt <= 32 {
		if d := min << uint(attempt-1); d > 0 && d < max {
			exp = d
		}
	}

	j := b.Jitter
	if j <= 0 {
		return exp
	}
	if j > 1 {
		j = 1
	}
	return exp - time.Duration(b.float()*j*float64(exp))
}

func (b *Backoff) float() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.rnd == nil {
		b.rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return b.rnd.Float64()
}

// Wait sleeps for Delay(attempt) or until ctx is done.
func (b *Backoff) Wait(ctx context.Context, attempt int) error {
	t := time.NewTimer(b.Delay(attempt))
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
