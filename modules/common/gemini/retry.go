package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrSessionLost - the remote rejected the current API key/session
var ErrSessionLost = errors.New("gemini: session lost")

// withRateLimitRetry - retry fn on 429 only, waiting retryDelay between attempts
// attempts <= 1 disables retrying.
func (s *Service) withRateLimitRetry(ctx context.Context, op string, fn func() error) error {
	attempts := s.rateLimitAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !is429Error(lastErr) || attempt == attempts {
			break
		}

		s.log.Warn().
			Str("op", op).
			Int("attempt", attempt).
			Int("max_attempts", attempts).
			Msg("⚠️  [Gemini] Rate limited (429), retrying")

		if err := s.sleep(ctx, s.retryDelay); err != nil {
			return err
		}
	}

	if isSessionLostError(lastErr) {
		return fmt.Errorf("%w: %w", ErrSessionLost, lastErr)
	}
	return lastErr
}

func (s *Service) sleep(ctx context.Context, d time.Duration) error {
	if s.sleeper != nil {
		s.sleeper(d)
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// is429Error - rate limit / quota responses
func is429Error(err error) bool {
	if err == nil {
		return false
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "429") ||
		strings.Contains(errStr, "rate limit") ||
		strings.Contains(errStr, "quota") ||
		strings.Contains(errStr, "resource_exhausted")
}

// isSessionLostError - the key is invalid or cannot see the model
// PERMISSION_DENIED and UNAUTHENTICATED can be transient and stay transport errors; a lost key is not retried until reset.
func isSessionLostError(err error) bool {
	if err == nil {
		return false
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "requested entity was not found") ||
		strings.Contains(errStr, "api key not valid") ||
		strings.Contains(errStr, "api_key_invalid")
}
