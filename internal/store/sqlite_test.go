package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/seantiz/testengine-ci/internal/model"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(MemoryDSN)
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func makeTestExecution() *model.Execution {
	return &model.Execution{
		ID:            model.NewID(),
		Status:        model.StatusCreated,
		CurrentStatus: "Uploaded",
		ProjectFile:   "petstore-project.xml",
		CreatedAt:     time.Now().UTC().Truncate(time.Millisecond),
	}
}

func TestCreateAndGetExecution(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	e := makeTestExecution()

	if err := s.CreateExecution(ctx, e); err != nil {
		t.Fatalf("CreateExecution: %v", err)
	}

	got, err := s.GetExecution(ctx, e.ID)
	if err != nil {
		t.Fatalf("GetExecution: %v", err)
	}

	if got.ID != e.ID {
		t.Errorf("ID = %q, want %q", got.ID, e.ID)
	}
	if got.Status != e.Status {
		t.Errorf("Status = %q, want %q", got.Status, e.Status)
	}
	if got.CurrentStatus != e.CurrentStatus {
		t.Errorf("CurrentStatus = %q, want %q", got.CurrentStatus, e.CurrentStatus)
	}
	if got.ProjectFile != e.ProjectFile {
		t.Errorf("ProjectFile = %q, want %q", got.ProjectFile, e.ProjectFile)
	}
	if !got.CreatedAt.Equal(e.CreatedAt) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, e.CreatedAt)
	}
	if got.StartedAt != nil || got.FinishedAt != nil {
		t.Errorf("StartedAt/FinishedAt = %v/%v, want nil", got.StartedAt, got.FinishedAt)
	}
	if got.Results != nil {
		t.Errorf("Results = %+v, want nil", got.Results)
	}
}

func TestGetExecutionNotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetExecution(context.Background(), "nonexistent")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("GetExecution error = %v, want ErrNotFound", err)
	}
}

func TestCreateExecutionDuplicateID(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	e := makeTestExecution()

	if err := s.CreateExecution(ctx, e); err != nil {
		t.Fatalf("CreateExecution: %v", err)
	}
	if err := s.CreateExecution(ctx, e); err == nil {
		t.Error("second CreateExecution with same id succeeded, want error")
	}
}

func TestListExecutionsPagination(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	base := time.Now().UTC().Truncate(time.Second)
	var ids []string
	for i := 0; i < 5; i++ {
		e := makeTestExecution()
		e.CreatedAt = base.Add(time.Duration(i) * time.Second)
		if err := s.CreateExecution(ctx, e); err != nil {
			t.Fatalf("CreateExecution: %v", err)
		}
		ids = append(ids, e.ID)
	}

	page, total, err := s.ListExecutions(ctx, 2, 1)
	if err != nil {
		t.Fatalf("ListExecutions: %v", err)
	}
	if total != 5 {
		t.Errorf("total = %d, want 5", total)
	}
	if len(page) != 2 {
		t.Fatalf("len(page) = %d, want 2", len(page))
	}
	if page[0].ID != ids[1] || page[1].ID != ids[2] {
		t.Errorf("page ids = [%s %s], want [%s %s]", page[0].ID, page[1].ID, ids[1], ids[2])
	}

	all, _, err := s.ListExecutions(ctx, 0, 0)
	if err != nil {
		t.Fatalf("ListExecutions(all): %v", err)
	}
	if len(all) != 5 {
		t.Errorf("len(all) = %d, want 5", len(all))
	}
}

func TestListExecutionsEmpty(t *testing.T) {
	s := newTestStore(t)

	list, total, err := s.ListExecutions(context.Background(), 10, 0)
	if err != nil {
		t.Fatalf("ListExecutions: %v", err)
	}
	if total != 0 || len(list) != 0 {
		t.Errorf("got %d rows, total %d; want empty", len(list), total)
	}
}

func TestUpdateExecutionLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	e := makeTestExecution()
	if err := s.CreateExecution(ctx, e); err != nil {
		t.Fatalf("CreateExecution: %v", err)
	}

	started := time.Now().UTC().Truncate(time.Millisecond)
	e.Status = model.StatusRunning
	e.CurrentStatus = "Running"
	e.StartedAt = &started
	if err := s.UpdateExecution(ctx, e); err != nil {
		t.Fatalf("UpdateExecution(running): %v", err)
	}

	finished := started.Add(2 * time.Second)
	e.Status = model.StatusFinished
	e.CurrentStatus = "Completed"
	e.FinishedAt = &finished
	e.Results = &model.Results{TotalTests: 5, Passed: 5, Duration: "2.0s"}
	if err := s.UpdateExecution(ctx, e); err != nil {
		t.Fatalf("UpdateExecution(finished): %v", err)
	}

	got, err := s.GetExecution(ctx, e.ID)
	if err != nil {
		t.Fatalf("GetExecution: %v", err)
	}
	if got.Status != model.StatusFinished {
		t.Errorf("Status = %q, want %q", got.Status, model.StatusFinished)
	}
	if got.StartedAt == nil || !got.StartedAt.Equal(started) {
		t.Errorf("StartedAt = %v, want %v", got.StartedAt, started)
	}
	if got.FinishedAt == nil || !got.FinishedAt.Equal(finished) {
		t.Errorf("FinishedAt = %v, want %v", got.FinishedAt, finished)
	}
	if got.Results == nil || *got.Results != *e.Results {
		t.Errorf("Results = %+v, want %+v", got.Results, e.Results)
	}
}

func TestUpdateExecutionInvalidTransition(t *testing.T) {
	tests := []struct {
		name string
		path []model.Status
		to   model.Status
	}{
		{"created to finished", nil, model.StatusFinished},
		{"created to failed", nil, model.StatusFailed},
		{"finished to running", []model.Status{model.StatusRunning, model.StatusFinished}, model.StatusRunning},
		{"canceled to running", []model.Status{model.StatusCanceled}, model.StatusRunning},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestStore(t)
			ctx := context.Background()
			e := makeTestExecution()
			if err := s.CreateExecution(ctx, e); err != nil {
				t.Fatalf("CreateExecution: %v", err)
			}
			for _, st := range tt.path {
				e.Status = st
				if err := s.UpdateExecution(ctx, e); err != nil {
					t.Fatalf("UpdateExecution(%s): %v", st, err)
				}
			}

			before := e.Status
			e.Status = tt.to
			err := s.UpdateExecution(ctx, e)
			if !errors.Is(err, ErrInvalidTransition) {
				t.Fatalf("UpdateExecution error = %v, want ErrInvalidTransition", err)
			}

			got, _ := s.GetExecution(ctx, e.ID)
			if got.Status != before {
				t.Errorf("Status after rejected update = %q, want %q", got.Status, before)
			}
		})
	}
}

func TestUpdateExecutionSameStatus(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	e := makeTestExecution()
	if err := s.CreateExecution(ctx, e); err != nil {
		t.Fatalf("CreateExecution: %v", err)
	}

	e.CurrentStatus = "Queued"
	if err := s.UpdateExecution(ctx, e); err != nil {
		t.Fatalf("UpdateExecution: %v", err)
	}
	got, _ := s.GetExecution(ctx, e.ID)
	if got.CurrentStatus != "Queued" {
		t.Errorf("CurrentStatus = %q, want %q", got.CurrentStatus, "Queued")
	}
}

func TestUpdateExecutionNotFound(t *testing.T) {
	s := newTestStore(t)

	err := s.UpdateExecution(context.Background(), makeTestExecution())
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("UpdateExecution error = %v, want ErrNotFound", err)
	}
}

func TestCountByStatus(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		e := makeTestExecution()
		if err := s.CreateExecution(ctx, e); err != nil {
			t.Fatalf("CreateExecution: %v", err)
		}
		if i == 0 {
			e.Status = model.StatusRunning
			if err := s.UpdateExecution(ctx, e); err != nil {
				t.Fatalf("UpdateExecution: %v", err)
			}
		}
	}

	counts, err := s.CountByStatus(ctx)
	if err != nil {
		t.Fatalf("CountByStatus: %v", err)
	}
	if counts[model.StatusCreated] != 2 {
		t.Errorf("created = %d, want 2", counts[model.StatusCreated])
	}
	if counts[model.StatusRunning] != 1 {
		t.Errorf("running = %d, want 1", counts[model.StatusRunning])
	}
	if n, ok := counts[model.StatusFailed]; !ok || n != 0 {
		t.Errorf("failed = %d (present %v), want 0 present", n, ok)
	}
}

func TestAppendAndGetLog(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	e := makeTestExecution()
	if err := s.CreateExecution(ctx, e); err != nil {
		t.Fatalf("CreateExecution: %v", err)
	}

	want := []string{"Execution created", "Execution started", "Execution finished"}
	for _, l := range want {
		if err := s.AppendLog(ctx, e.ID, l); err != nil {
			t.Fatalf("AppendLog: %v", err)
		}
	}

	lines, err := s.GetLog(ctx, e.ID)
	if err != nil {
		t.Fatalf("GetLog: %v", err)
	}
	if len(lines) != len(want) {
		t.Fatalf("len(lines) = %d, want %d", len(lines), len(want))
	}
	for i, l := range lines {
		if l.Seq != i+1 {
			t.Errorf("lines[%d].Seq = %d, want %d", i, l.Seq, i+1)
		}
		if l.Line != want[i] {
			t.Errorf("lines[%d].Line = %q, want %q", i, l.Line, want[i])
		}
	}
}

func TestAppendLogUnknownExecution(t *testing.T) {
	s := newTestStore(t)

	err := s.AppendLog(context.Background(), "nonexistent", "line")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("AppendLog error = %v, want ErrNotFound", err)
	}
}

func TestMemoryStoreSharedAcrossGoroutines(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.CreateExecution(ctx, makeTestExecution()); err != nil {
				t.Errorf("CreateExecution: %v", err)
			}
		}()
	}
	wg.Wait()

	_, total, err := s.ListExecutions(ctx, 0, 0)
	if err != nil {
		t.Fatalf("ListExecutions: %v", err)
	}
	if total != 10 {
		t.Errorf("total = %d, want 10", total)
	}
}
