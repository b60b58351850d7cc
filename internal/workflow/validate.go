package workflow

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/seantiz/testengine-ci/internal/testengine"
)

// JobLister lists jobs on the engine.
type JobLister interface {
	ListJobs(ctx context.Context) (*testengine.JobList, error)
}

// ValidateConnection checks that the engine is reachable and accepts the
// configured credentials.
func ValidateConnection(ctx context.Context, c JobLister, logger *slog.Logger) (*testengine.JobList, error) {
	log := loggerOrDiscard(logger)

	log.Info("validating test engine connection")
	list, err := c.ListJobs(ctx)
	if err != nil {
		log.Error("failed to connect to test engine", "http_status", testengine.StatusCode(err), "error", err)
		return nil, fmt.Errorf("validate connection: %w", err)
	}
	log.Info("connected to test engine", "jobs", len(list.Executions))
	return list, nil
}
