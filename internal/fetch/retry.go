package fetch

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/tacklebox/internal/models"
)

// RetryPolicy retries transient fetch failures with exponential backoff
type RetryPolicy struct {
	MaxAttempts       int
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	BackoffMultiplier float64
}

// NewRetryPolicy creates a policy; non-positive values fall back to defaults
func NewRetryPolicy(maxAttempts int, initial, max time.Duration) *RetryPolicy {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	if initial <= 0 {
		initial = time.Second
	}
	if max < initial {
		max = 30 * time.Second
	}
	return &RetryPolicy{
		MaxAttempts:       maxAttempts,
		InitialBackoff:    initial,
		MaxBackoff:        max,
		BackoffMultiplier: 2.0,
	}
}

// ShouldRetry reports whether another attempt may follow attempt (0-based)
func (p *RetryPolicy) ShouldRetry(attempt int, err error) bool {
	if err == nil || attempt+1 >= p.MaxAttempts {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var fe *models.FetchError
	if errors.As(err, &fe) {
		return fe.Temporary()
	}
	return false
}

// CalculateBackoff returns the wait before the attempt after attempt, with ±25% jitter
func (p *RetryPolicy) CalculateBackoff(attempt int) time.Duration {
	backoff := float64(p.InitialBackoff) * math.Pow(p.BackoffMultiplier, float64(attempt))
	if backoff > float64(p.MaxBackoff) {
		backoff = float64(p.MaxBackoff)
	}

	jitter := backoff * 0.25 * (rand.Float64()*2 - 1)
	backoff += jitter

	if backoff < 0 {
		backoff = float64(p.InitialBackoff)
	}

	return time.Duration(backoff)
}

// Do calls fn until it succeeds, fails permanently, or attempts run out
func (p *RetryPolicy) Do(ctx context.Context, logger arbor.ILogger, fn func() error) error {
	var lastErr error

	for attempt := 0; attempt < p.MaxAttempts; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}

		if !p.ShouldRetry(attempt, lastErr) {
			return lastErr
		}

		backoff := p.CalculateBackoff(attempt)
		logger.Debug().
			Int("attempt", attempt+1).
			Err(lastErr).
			Dur("backoff", backoff).
			Msg("Retrying after backoff")

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return lastErr
		case <-timer.C:
		}
	}

	logger.Warn().
		Int("max_attempts", p.MaxAttempts).
		Err(lastErr).
		Msg("All retry attempts exhausted")

	return lastErr
}
