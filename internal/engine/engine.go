package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/seantiz/testengine-ci/internal/model"
	"github.com/seantiz/testengine-ci/internal/store"
)

// DefaultCompletionDelay is how long a started execution runs before it completes.
const DefaultCompletionDelay = 30 * time.Second

// completionTimeout bounds the store writes made from a timer callback.
const completionTimeout = 5 * time.Second

var (
	// ErrInvalidTransition is returned when an operation does not apply to
	// the execution's current status.
	ErrInvalidTransition = store.ErrInvalidTransition
	// ErrClosed is returned by Start after Close.
	ErrClosed = errors.New("registry closed")
)

// Config controls how started executions complete.
type Config struct {
	CompletionDelay time.Duration
	// CompletionStatus is FINISHED or FAILED. Empty means FINISHED.
	CompletionStatus model.Status
}

func (c Config) withDefaults() (Config, error) {
	if c.CompletionDelay <= 0 {
		c.CompletionDelay = DefaultCompletionDelay
	}
	switch c.CompletionStatus {
	case "":
		c.CompletionStatus = model.StatusFinished
	case model.StatusFinished, model.StatusFailed:
	default:
		return c, fmt.Errorf("completion status must be %s or %s, got %q", model.StatusFinished, model.StatusFailed, c.CompletionStatus)
	}
	return c, nil
}

// Registry owns the lifecycle of executions.
type Registry struct {
	store   store.Store
	cfg     Config
	logger  *slog.Logger
	metrics *metrics
	events  *Broker

	mu     sync.Mutex
	timers map[string]*time.Timer
	closed bool

	wg sync.WaitGroup
}

// NewRegistry creates a registry persisting executions to s.
func NewRegistry(s store.Store, cfg Config, logger *slog.Logger) (*Registry, error) {
	cfg, err := cfg.withDefaults()
	if err != nil {
		return nil, err
	}
	return &Registry{
		store:   s,
		cfg:     cfg,
		logger:  logger,
		metrics: newMetrics(s),
		events:  NewBroker(),
		timers:  make(map[string]*time.Timer),
	}, nil
}

// Events returns the broker that receives every status change.
func (r *Registry) Events() *Broker {
	return r.events
}

// Create records a new execution for the uploaded project file.
func (r *Registry) Create(ctx context.Context, projectFile string) (*model.Execution, error) {
	if projectFile == "" {
		projectFile = "unknown.xml"
	}
	e := &model.Execution{
		ID:            model.NewID(),
		Status:        model.StatusCreated,
		CurrentStatus: "Uploaded",
		ProjectFile:   projectFile,
		CreatedAt:     time.Now().UTC(),
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.store.CreateExecution(ctx, e); err != nil {
		return nil, fmt.Errorf("create execution: %w", err)
	}
	r.appendLog(ctx, e.ID, "Execution created for project %s", projectFile)
	r.logger.Info("execution created", "execution_id", e.ID, "project_file", projectFile)
	r.publish(e)
	return e, nil
}

// Start moves a CREATED execution to RUNNING and schedules its completion.
func (r *Registry) Start(ctx context.Context, id string) (*model.Execution, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, ErrClosed
	}

	e, err := r.store.GetExecution(ctx, id)
	if err != nil {
		return nil, err
	}
	if e.Status != model.StatusCreated {
		return nil, fmt.Errorf("%w: cannot start %s execution", ErrInvalidTransition, e.Status)
	}

	now := time.Now().UTC()
	from := e.Status
	e.Status = model.StatusRunning
	e.CurrentStatus = "Executing tests"
	e.StartedAt = &now
	if err := r.store.UpdateExecution(ctx, e); err != nil {
		return nil, fmt.Errorf("start execution: %w", err)
	}
	r.metrics.transition(from, e.Status)
	r.appendLog(ctx, id, "Starting execution %s", id)
	r.appendLog(ctx, id, "Loading project: %s", e.ProjectFile)

	r.wg.Add(1)
	r.timers[id] = time.AfterFunc(r.cfg.CompletionDelay, func() { r.complete(id) })

	r.logger.Info("execution started", "execution_id", id, "completes_in", r.cfg.CompletionDelay.String())
	r.publish(e)
	return e, nil
}

// Cancel stops a pending completion and moves the execution to CANCELED.
// Terminal executions cannot be cancelled.
func (r *Registry) Cancel(ctx context.Context, id string) (*model.Execution, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, err := r.store.GetExecution(ctx, id)
	if err != nil {
		return nil, err
	}
	if e.Status.IsTerminal() {
		return nil, fmt.Errorf("%w: cannot cancel %s execution", ErrInvalidTransition, e.Status)
	}

	r.stopTimer(id)

	now := time.Now().UTC()
	from := e.Status
	e.Status = model.StatusCanceled
	e.CurrentStatus = "Canceled"
	e.FinishedAt = &now
	if err := r.store.UpdateExecution(ctx, e); err != nil {
		return nil, fmt.Errorf("cancel execution: %w", err)
	}
	r.metrics.transition(from, e.Status)
	r.appendLog(ctx, id, "Execution canceled")

	r.logger.Info("execution canceled", "execution_id", id)
	r.publish(e)
	r.events.Close(id)
	return e, nil
}

// Get returns the execution with the given id.
func (r *Registry) Get(ctx context.Context, id string) (*model.Execution, error) {
	return r.store.GetExecution(ctx, id)
}

// List returns every execution in creation order.
func (r *Registry) List(ctx context.Context) ([]*model.Execution, error) {
	list, _, err := r.store.ListExecutions(ctx, 0, 0)
	return list, err
}

// Log returns the execution's log lines.
func (r *Registry) Log(ctx context.Context, id string) ([]model.LogLine, error) {
	if _, err := r.store.GetExecution(ctx, id); err != nil {
		return nil, err
	}
	return r.store.GetLog(ctx, id)
}

// Close stops every pending completion timer. Executions still RUNNING stay
// RUNNING. Close does not wait for callbacks that already fired; use Wait.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.closed = true
	for id := range r.timers {
		r.stopTimer(id)
	}
}

// Wait blocks until every scheduled completion has either run or been stopped.
func (r *Registry) Wait() {
	r.wg.Wait()
}

// stopTimer cancels id's timer. Callers hold r.mu.
func (r *Registry) stopTimer(id string) {
	t, ok := r.timers[id]
	if !ok {
		return
	}
	delete(r.timers, id)
	if t.Stop() {
		r.wg.Done()
	}
}

// complete runs on the execution's timer. The timer entry is the ownership
// token: if Cancel or Close removed it first, the callback does nothing.
func (r *Registry) complete(id string) {
	defer r.wg.Done()

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.timers[id]; !ok {
		return
	}
	delete(r.timers, id)

	ctx, cancel := context.WithTimeout(context.Background(), completionTimeout)
	defer cancel()

	e, err := r.store.GetExecution(ctx, id)
	if err != nil {
		r.logger.Error("failed to load execution for completion", "execution_id", id, "error", err)
		return
	}
	if e.Status != model.StatusRunning {
		return
	}

	now := time.Now().UTC()
	results := SampleResults(now.Sub(*e.StartedAt))
	from := e.Status
	e.Status = r.cfg.CompletionStatus
	e.FinishedAt = &now
	e.Results = &results
	e.CurrentStatus = "Completed successfully"
	if e.Status == model.StatusFailed {
		e.CurrentStatus = "Completed with failures"
	}
	if err := r.store.UpdateExecution(ctx, e); err != nil {
		r.logger.Error("failed to complete execution", "execution_id", id, "error", err)
		return
	}
	r.metrics.transition(from, e.Status)

	for _, tc := range SampleTestCases {
		line := fmt.Sprintf("Executing test: %s - %s", tc.Name, tc.Status)
		if tc.Error != "" {
			line += ": " + tc.Error
		}
		r.appendLog(ctx, id, "%s", line)
	}
	r.appendLog(ctx, id, "Execution completed: %d passed, %d failed", results.Passed, results.Failed)

	r.logger.Info("execution completed", "execution_id", id, "status", e.Status)
	r.publish(e)
	r.events.Close(id)
}

// appendLog records a log line. Failures are logged, not returned.
func (r *Registry) appendLog(ctx context.Context, id, format string, args ...any) {
	line := fmt.Sprintf(format, args...)
	if err := r.store.AppendLog(ctx, id, line); err != nil {
		r.logger.Error("failed to persist log line", "execution_id", id, "error", err)
	}
}

func (r *Registry) publish(e *model.Execution) {
	r.events.Publish(e.ID, Event{
		ExecutionID:   e.ID,
		Status:        e.Status,
		CurrentStatus: e.CurrentStatus,
		At:            time.Now().UTC(),
	})
}
