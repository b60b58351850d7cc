package workflow

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/seantiz/testengine-ci/internal/model"
	"github.com/seantiz/testengine-ci/internal/poll"
	"github.com/seantiz/testengine-ci/internal/testengine"
)

// Poll defaults for the two wait workflows.
const (
	DefaultExecutionInterval = 10 * time.Second
	DefaultExecutionMaxWait  = 30 * time.Minute
	DefaultServerInterval    = 5 * time.Second
	DefaultServerMaxWait     = 120 * time.Second
)

// WaitOptions bounds a wait workflow. Zero values select the workflow's defaults.
type WaitOptions struct {
	Interval time.Duration
	MaxWait  time.Duration
	Logger   *slog.Logger
}

func (o WaitOptions) withDefaults(interval, maxWait time.Duration) WaitOptions {
	if o.Interval <= 0 {
		o.Interval = interval
	}
	if o.MaxWait <= 0 {
		o.MaxWait = maxWait
	}
	o.Logger = loggerOrDiscard(o.Logger)
	return o
}

func loggerOrDiscard(l *slog.Logger) *slog.Logger {
	if l != nil {
		return l
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// StatusReader reads the status of one job.
type StatusReader interface {
	JobStatus(ctx context.Context, id string) (*testengine.JobStatus, error)
}

// ClassifyStatus maps a job status onto a poll verdict.
func ClassifyStatus(s model.Status) poll.Verdict {
	switch s {
	case model.StatusFinished:
		return poll.Success
	case model.StatusFailed:
		return poll.Failure
	case model.StatusCanceled:
		return poll.Cancelled
	default:
		return poll.Continue
	}
}

// WaitForExecution polls the job's status until it is terminal or MaxWait
// elapses. The returned result carries the last status observed.
func WaitForExecution(ctx context.Context, c StatusReader, id string, opts WaitOptions) (poll.Result[testengine.JobStatus], error) {
	opts = opts.withDefaults(DefaultExecutionInterval, DefaultExecutionMaxWait)
	log := opts.Logger.With("execution_id", id)

	log.Info("polling execution", "interval", opts.Interval.String(), "max_wait", opts.MaxWait.String())

	fetch := func(ctx context.Context) (testengine.JobStatus, error) {
		st, err := c.JobStatus(ctx, id)
		if err != nil {
			return testengine.JobStatus{}, err
		}
		attrs := []any{"status", st.Status}
		if st.CurrentStatus != "" {
			attrs = append(attrs, "current_status", st.CurrentStatus)
		}
		if st.SubmitTime != nil {
			attrs = append(attrs, "submit_time", time.UnixMilli(*st.SubmitTime).UTC().Format(time.RFC3339))
		}
		if st.StartTime != nil {
			attrs = append(attrs, "start_time", time.UnixMilli(*st.StartTime).UTC().Format(time.RFC3339))
		}
		log.Info("execution status", attrs...)
		return *st, nil
	}

	res, err := poll.Poll(ctx, fetch, poll.Config[testengine.JobStatus]{
		Interval: opts.Interval,
		MaxWait:  opts.MaxWait,
		Classify: func(st testengine.JobStatus) poll.Verdict { return ClassifyStatus(st.Status) },
		OnTransient: func(cycle int, err error) {
			log.Warn("status check failed, will retry", "cycle", cycle, "error", err)
		},
	})

	switch res.Outcome {
	case poll.OutcomeCompleted:
		log.Info("execution completed", "elapsed", res.Elapsed.String())
	case poll.OutcomeFailed, poll.OutcomeCancelled:
		log.Error("execution did not succeed", "outcome", res.Outcome.String(), "elapsed", res.Elapsed.String())
	case poll.OutcomeTimedOut:
		log.Error("execution timed out", "max_wait", opts.MaxWait.String())
	default:
		log.Error("polling execution failed", "error", err)
	}
	return res, err
}

// VersionProber probes the engine's version endpoint.
type VersionProber interface {
	Version(ctx context.Context) (*testengine.VersionInfo, error)
}

// WaitForServer polls the version endpoint until the engine answers with
// any status below 500. Connection failures and 5xx answers keep it waiting.
func WaitForServer(ctx context.Context, c VersionProber, opts WaitOptions) (poll.Result[testengine.VersionInfo], error) {
	opts = opts.withDefaults(DefaultServerInterval, DefaultServerMaxWait)
	log := opts.Logger

	log.Info("waiting for test engine", "interval", opts.Interval.String(), "max_wait", opts.MaxWait.String())

	fetch := func(ctx context.Context) (testengine.VersionInfo, error) {
		info, err := c.Version(ctx)
		if err != nil {
			return testengine.VersionInfo{}, err
		}
		return *info, nil
	}

	res, err := poll.Poll(ctx, fetch, poll.Config[testengine.VersionInfo]{
		Interval: opts.Interval,
		MaxWait:  opts.MaxWait,
		Classify: func(testengine.VersionInfo) poll.Verdict { return poll.Success },
		IsTransient: func(err error) bool {
			return !errors.Is(err, context.Canceled)
		},
		OnTransient: func(cycle int, err error) {
			log.Info("test engine not ready yet", "attempt", cycle, "error", err)
		},
	})

	switch res.Outcome {
	case poll.OutcomeCompleted:
		log.Info("test engine is ready",
			"http_status", res.Payload.StatusCode,
			"version", res.Payload.Version,
			"elapsed", res.Elapsed.String(),
		)
	case poll.OutcomeTimedOut:
		log.Error("test engine failed to start within timeout", "max_wait", opts.MaxWait.String(), "attempts", res.Cycles)
	default:
		log.Error("waiting for test engine failed", "error", err)
	}
	return res, err
}
