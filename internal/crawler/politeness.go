package crawler

import (
	"context"
	"time"
)

// Pauser abstracts how the pipeline waits between requests and during
// block cooldowns, so tests can run without real sleeps.
type Pauser interface {
	Pause(ctx context.Context, delay time.Duration) error
}

// TimerPauser sleeps on a timer and wakes early when ctx is done.
type TimerPauser struct{}

// Pause blocks for delay or until ctx is canceled.
func (TimerPauser) Pause(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
