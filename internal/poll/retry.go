package poll

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrExhaustedRetries matches every [ExhaustedError] via errors.Is.
var ErrExhaustedRetries = errors.New("retries exhausted")

// ExhaustedError is returned by [Retry] once the attempt budget is spent.
// It unwraps to the error of the final attempt.
type ExhaustedError struct {
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("retries exhausted after %d attempts: %v", e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrExhaustedRetries.
func (e *ExhaustedError) Is(target error) bool {
	return target == ErrExhaustedRetries
}

// RetryConfig controls a single [Retry] call. It is read-only to Retry.
type RetryConfig struct {
	// MaxAttempts is the total number of attempts, at least 1.
	MaxAttempts int

	// Delay is the fixed wait between a failed attempt and the next one.
	Delay time.Duration

	// TreatAsSuccess reports errors meaning the action already took effect
	// remotely (for example "license already active"). Such an error ends
	// Retry with a nil error and the zero value.
	TreatAsSuccess func(error) bool

	// IsRetryable, if set, stops Retry early on errors it rejects; those
	// errors are returned unchanged. When nil every error is retried.
	IsRetryable func(error) bool

	// OnRetry, if set, is called before each wait with the failed attempt number.
	OnRetry func(attempt int, err error)
}

func (c RetryConfig) validate() error {
	if c.MaxAttempts < 1 {
		return fmt.Errorf("%w: max attempts must be at least 1, got %d", ErrInvalidConfig, c.MaxAttempts)
	}
	if c.Delay < 0 {
		return fmt.Errorf("%w: delay cannot be negative, got %s", ErrInvalidConfig, c.Delay)
	}
	return nil
}

// Retry runs action until it succeeds, an error is whitelisted by
// cfg.TreatAsSuccess, an error is rejected by cfg.IsRetryable, or
// cfg.MaxAttempts attempts have failed. In the last case the returned error
// is an [*ExhaustedError] carrying the final attempt's error.
//
// action must be safe to call repeatedly.
func Retry[T any](ctx context.Context, action func(context.Context) (T, error), cfg RetryConfig) (T, error) {
	var zero T
	if err := cfg.validate(); err != nil {
		return zero, err
	}

	var lastErr error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		v, err := action(ctx)
		if err == nil {
			return v, nil
		}
		if cfg.TreatAsSuccess != nil && cfg.TreatAsSuccess(err) {
			return zero, nil
		}
		if cfg.IsRetryable != nil && !cfg.IsRetryable(err) {
			return zero, err
		}

		lastErr = err
		if attempt == cfg.MaxAttempts {
			break
		}
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, err)
		}
		if err := sleep(ctx, cfg.Delay); err != nil {
			return zero, err
		}
	}

	return zero, &ExhaustedError{Attempts: cfg.MaxAttempts, Err: lastErr}
}
