package store

import (
	"context"
	"errors"

	"github.com/seantiz/testengine-ci/internal/model"
)

// ErrInvalidTransition is returned when an execution status transition is not allowed.
var ErrInvalidTransition = errors.New("invalid status transition")

// Store defines the persistence operations for executions.
type Store interface {
	CreateExecution(ctx context.Context, e *model.Execution) error
	GetExecution(ctx context.Context, id string) (*model.Execution, error)
	ListExecutions(ctx context.Context, limit, offset int) ([]*model.Execution, int, error)
	UpdateExecution(ctx context.Context, e *model.Execution) error
	CountByStatus(ctx context.Context) (map[model.Status]int, error)
	AppendLog(ctx context.Context, executionID, line string) error
	GetLog(ctx context.Context, executionID string) ([]model.LogLine, error)
	Close() error
}
