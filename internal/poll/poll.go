package poll

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrInvalidConfig is returned when a poll or retry configuration is unusable.
var ErrInvalidConfig = errors.New("invalid poll configuration")

// Config controls a single [Poll] call. It is read-only to the poller.
type Config[T any] struct {
	// Interval is the wait between cycles that classify as Continue.
	Interval time.Duration

	// MaxWait bounds the total wall-clock time of the loop, measured from
	// just before the first fetch.
	MaxWait time.Duration

	// Classify reads one successful response and decides whether to keep polling.
	Classify func(T) Verdict

	// IsTransient decides which fetch errors are swallowed. Defaults to [IsTransient].
	IsTransient func(error) bool

	// OnTransient, if set, is called with every swallowed fetch error.
	OnTransient func(cycle int, err error)
}

func (c Config[T]) validate() error {
	if c.Interval <= 0 {
		return fmt.Errorf("%w: interval must be positive, got %s", ErrInvalidConfig, c.Interval)
	}
	if c.MaxWait <= 0 {
		return fmt.Errorf("%w: max wait must be positive, got %s", ErrInvalidConfig, c.MaxWait)
	}
	if c.Classify == nil {
		return fmt.Errorf("%w: classify func is required", ErrInvalidConfig)
	}
	return nil
}

// Result is returned when a poll loop exits.
type Result[T any] struct {
	Outcome Outcome

	// Payload is the last successfully fetched response, nil if every
	// fetch failed.
	Payload *T

	// Elapsed is the wall-clock time from the start of the loop to its exit.
	Elapsed time.Duration

	// Cycles counts fetch attempts, including ones that failed transiently.
	Cycles int
}

// Poll calls fetch once per cycle until cfg.Classify returns a terminal
// verdict or cfg.MaxWait elapses.
//
// The deadline is checked before every fetch, and the context handed to
// fetch carries that deadline, so no cycle starts or runs past MaxWait.
// Expected end states (Completed, Failed, Cancelled, TimedOut) are returned
// with a nil error. A non-nil error comes back only with OutcomeError: a
// non-transient fetch error, a classifier panic, or a cancelled ctx.
func Poll[T any](ctx context.Context, fetch func(context.Context) (T, error), cfg Config[T]) (Result[T], error) {
	if err := cfg.validate(); err != nil {
		return Result[T]{Outcome: OutcomeError}, err
	}
	isTransient := cfg.IsTransient
	if isTransient == nil {
		isTransient = IsTransient
	}

	start := time.Now()
	deadline := start.Add(cfg.MaxWait)
	pollCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	var res Result[T]
	finish := func(o Outcome, err error) (Result[T], error) {
		res.Outcome = o
		res.Elapsed = time.Since(start)
		return res, err
	}

	for {
		if err := ctx.Err(); err != nil {
			return finish(OutcomeError, err)
		}
		if !time.Now().Before(deadline) {
			return finish(OutcomeTimedOut, nil)
		}

		res.Cycles++
		v, err := fetch(pollCtx)
		switch {
		case err != nil && ctx.Err() != nil:
			return finish(OutcomeError, ctx.Err())
		case err != nil && pollCtx.Err() != nil:
			// the fetch was cut short by our own deadline
			return finish(OutcomeTimedOut, nil)
		case err != nil && !isTransient(err):
			return finish(OutcomeError, fmt.Errorf("poll cycle %d: %w", res.Cycles, err))
		case err != nil:
			if cfg.OnTransient != nil {
				cfg.OnTransient(res.Cycles, err)
			}
		default:
			res.Payload = &v
			verdict, cerr := safeClassify(cfg.Classify, v)
			if cerr != nil {
				return finish(OutcomeError, cerr)
			}
			if verdict != Continue {
				o, ok := verdict.outcome()
				if !ok {
					return finish(OutcomeError, fmt.Errorf("poll cycle %d: unknown verdict %s", res.Cycles, verdict))
				}
				return finish(o, nil)
			}
		}

		if err := sleep(pollCtx, min(cfg.Interval, time.Until(deadline))); err != nil {
			if ctx.Err() != nil {
				return finish(OutcomeError, ctx.Err())
			}
			return finish(OutcomeTimedOut, nil)
		}
	}
}

// safeClassify calls the classifier with panic recovery.
func safeClassify[T any](classify func(T) Verdict, v T) (verdict Verdict, err error) {
	defer func() {
		if r := recover(); r != nil {
			verdict = Continue
			err = fmt.Errorf("classify panic: %v", r)
		}
	}()
	return classify(v), nil
}

// sleep waits for d or until ctx is done, whichever comes first.
func sleep(ctx context.Context, d time.Duration) error {
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
