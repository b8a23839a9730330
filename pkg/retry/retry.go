// Package retry provides an explicit retry policy applied at each
// external-call site, so backoff behavior is visible and testable
// per call instead of hidden behind the callers.
package retry

import (
	"context"
	"math/rand"
	"time"

	"github.com/XavierBriggs/Pythia/pkg/errkind"
)

// Policy describes bounded exponential backoff for transient failures
type Policy struct {
	MaxAttempts int           // total attempts including the first
	BaseDelay   time.Duration // delay before the second attempt
	MaxDelay    time.Duration // backoff cap
	Jitter      float64       // fraction of the delay randomized, 0..1
}

// Default is the policy used when configuration provides none
var Default = Policy{
	MaxAttempts: 3,
	BaseDelay:   500 * time.Millisecond,
	MaxDelay:    10 * time.Second,
	Jitter:      0.2,
}

// Do runs fn until it succeeds, fails non-transiently, exhausts attempts,
// or the context is cancelled. Only errors classified errkind.Transient
// are retried; everything else returns immediately.
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(p.delay(attempt)):
			case <-ctx.Done():
				return errkind.Wrap(errkind.Transient, "retry", ctx.Err())
			}
		}

		err = fn(ctx)
		if err == nil {
			return nil
		}
		if !errkind.IsTransient(err) {
			return err
		}
	}

	return err
}

// delay computes the backoff before the given attempt (1-based for
// the first retry)
func (p Policy) delay(attempt int) time.Duration {
	d := p.BaseDelay
	if d <= 0 {
		d = Default.BaseDelay
	}

	for i := 1; i < attempt; i++ {
		d *= 2
		if p.MaxDelay > 0 && d >= p.MaxDelay {
			d = p.MaxDelay
			break
		}
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}

	if p.Jitter > 0 {
		spread := float64(d) * p.Jitter
		d = time.Duration(float64(d) - spread/2 + rand.Float64()*spread)
	}
	return d
}
