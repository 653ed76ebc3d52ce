package engine

import (
	"context"
	"time"

	"github.com/alanyoungcy/sniperbot/internal/domain"
)

// Clock abstracts time so retry loops and staleness checks can be driven
// deterministically in tests.
type Clock interface {
	Now() time.Time
	// Sleep blocks for d or until ctx is cancelled, in which case it returns
	// the context error.
	Sleep(ctx context.Context, d time.Duration) error
}

// realClock is the production Clock backed by the time package.
type realClock struct{}

// RealClock returns a Clock backed by time.Now and time.After.
func RealClock() Clock { return realClock{} }

func (realClock) Now() time.Time { return time.Now() }

func (realClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// RetryPolicy bounds a retry loop: Attempts is the total number of tries and
// Backoff returns the delay before attempt n (1-based, no delay before the
// first attempt).
type RetryPolicy struct {
	Attempts int
	Backoff  func(attempt int) time.Duration
}

// FixedDelay returns a RetryPolicy with a constant delay between attempts.
func FixedDelay(attempts int, delay time.Duration) RetryPolicy {
	return RetryPolicy{
		Attempts: attempts,
		Backoff:  func(int) time.Duration { return delay },
	}
}

// retry runs fn up to p.Attempts times, sleeping p.Backoff between tries.
// It returns nil on the first success, the context error if cancelled while
// waiting, and otherwise the error from the final attempt.
func retry(ctx context.Context, clock Clock, p RetryPolicy, fn func(attempt int) error) error {
	var err error
	for attempt := 1; attempt <= p.Attempts; attempt++ {
		if attempt > 1 {
			if serr := clock.Sleep(ctx, p.Backoff(attempt)); serr != nil {
				return domain.ErrContextDone
			}
		}
		if err = fn(attempt); err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return domain.ErrContextDone
		}
	}
	return err
}
