package jobclient

import (
	"context"
	"time"
)

const (
	DefaultPollInterval    = 10 * time.Second
	DefaultMaxPollAttempts = 30
	DefaultPollDeadline    = 5 * time.Minute

	// DefaultProgressStep - per-poll bump of the progress estimate.
	// The remote reports no percentage; this is a UI heuristic only.
	DefaultProgressStep = 10
)

// Option - functional option for NewClient
type Option func(*Client)

// WithPollInterval - wait between status queries
func WithPollInterval(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.pollInterval = d
		}
	}
}

// WithMaxPollAttempts - status queries before the job times out
func WithMaxPollAttempts(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxPollAttempts = n
		}
	}
}

// WithPollDeadline - wall-clock ceiling for one video job
func WithPollDeadline(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.pollDeadline = d
		}
	}
}

// WithProgressStep - progress added per unfinished poll
func WithProgressStep(step int) Option {
	return func(c *Client) {
		if step > 0 {
			c.progressStep = step
		}
	}
}

// WithSleep replaces the context-aware wait between polls.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(c *Client) {
		if sleep != nil {
			c.sleep = sleep
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}

// WithIDGenerator replaces uuid.NewString for job ids.
func WithIDGenerator(newID func() string) Option {
	return func(c *Client) {
		if newID != nil {
			c.newID = newID
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
