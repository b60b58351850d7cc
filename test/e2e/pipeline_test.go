package e2e

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/seantiz/testengine-ci/internal/api"
	"github.com/seantiz/testengine-ci/internal/engine"
	"github.com/seantiz/testengine-ci/internal/model"
	"github.com/seantiz/testengine-ci/internal/poll"
	"github.com/seantiz/testengine-ci/internal/store"
	"github.com/seantiz/testengine-ci/internal/testengine"
	"github.com/seantiz/testengine-ci/internal/workflow"
)

// stack is an in-process mock engine with a client pointed at it.
type stack struct {
	ts     *httptest.Server
	reg    *engine.Registry
	client *testengine.Client
}

func newStack(t *testing.T, cfg engine.Config, opts ...testengine.Option) *stack {
	t.Helper()

	s, err := store.NewSQLiteStore(store.MemoryDSN)
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	reg, err := engine.NewRegistry(s, cfg, logger)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	srv := api.NewServer(":0", reg, api.Options{Username: "admin", Password: "admin"}, logger)

	ts := httptest.NewServer(srv.Router())
	t.Cleanup(func() {
		ts.Close()
		reg.Close()
		reg.Wait()
	})

	opts = append([]testengine.Option{testengine.WithAuth(testengine.BasicAuth{Username: "admin", Password: "admin"})}, opts...)
	client, err := testengine.New(ts.URL, opts...)
	if err != nil {
		t.Fatalf("testengine.New: %v", err)
	}
	t.Cleanup(client.Close)

	return &stack{ts: ts, reg: reg, client: client}
}

func writeProject(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "petstore.xml")
	if err := os.WriteFile(path, []byte("<project/>"), 0o644); err != nil {
		t.Fatalf("write project: %v", err)
	}
	return path
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

var fastWait = workflow.WaitOptions{Interval: 10 * time.Millisecond, MaxWait: 5 * time.Second}

func TestPipelineCompletes(t *testing.T) {
	st := newStack(t, engine.Config{CompletionDelay: 50 * time.Millisecond})
	ctx := testContext(t)

	ready, err := workflow.WaitForServer(ctx, st.client, fastWait)
	if err != nil || ready.Outcome != poll.OutcomeCompleted {
		t.Fatalf("WaitForServer = %v, %v; want Completed", ready.Outcome, err)
	}

	if _, err := workflow.ValidateConnection(ctx, st.client, nil); err != nil {
		t.Fatalf("ValidateConnection: %v", err)
	}

	project := writeProject(t)
	id, err := st.client.UploadProject(ctx, project, testengine.DefaultUploadOptions(filepath.Base(project)))
	if err != nil {
		t.Fatalf("UploadProject: %v", err)
	}
	if err := st.client.StartJob(ctx, id); err != nil {
		t.Fatalf("StartJob: %v", err)
	}

	res, err := workflow.WaitForExecution(ctx, st.client, id, fastWait)
	if err != nil {
		t.Fatalf("WaitForExecution: %v", err)
	}
	if res.Outcome != poll.OutcomeCompleted {
		t.Fatalf("outcome = %v, want Completed", res.Outcome)
	}
	if res.Payload.Status != model.StatusFinished {
		t.Errorf("status = %q, want %q", res.Payload.Status, model.StatusFinished)
	}

	dir := t.TempDir()
	summary, err := workflow.DownloadResults(ctx, st.client, id, dir, workflow.DownloadOptions{})
	if err != nil {
		t.Fatalf("DownloadResults: %v", err)
	}
	if summary.TotalFiles != 3 {
		t.Errorf("TotalFiles = %d, want 3 (json, junit, logs): %v", summary.TotalFiles, summary.DownloadedFiles)
	}
	if summary.ExecutionSummary == nil || summary.ExecutionSummary.TotalTests != len(engine.SampleTestCases) {
		t.Errorf("ExecutionSummary = %+v, want %d tests", summary.ExecutionSummary, len(engine.SampleTestCases))
	}

	raw, err := os.ReadFile(filepath.Join(dir, workflow.SummaryFile))
	if err != nil {
		t.Fatalf("read summary: %v", err)
	}
	var onDisk workflow.DownloadSummary
	if err := json.Unmarshal(raw, &onDisk); err != nil {
		t.Fatalf("decode summary: %v", err)
	}
	if onDisk.ExecutionID != id || onDisk.TestEngineURL != st.ts.URL {
		t.Errorf("summary = %s @ %s, want %s @ %s", onDisk.ExecutionID, onDisk.TestEngineURL, id, st.ts.URL)
	}
}

func TestPipelineReportEndpointProfile(t *testing.T) {
	st := newStack(t, engine.Config{CompletionDelay: 50 * time.Millisecond}, testengine.WithEndpoints(testengine.ReportEndpoints))
	ctx := testContext(t)

	project := writeProject(t)
	id, err := st.client.UploadProject(ctx, project, testengine.DefaultUploadOptions("petstore.xml"))
	if err != nil {
		t.Fatalf("UploadProject: %v", err)
	}
	if err := st.client.StartJob(ctx, id); err != nil {
		t.Fatalf("StartJob: %v", err)
	}

	res, err := workflow.WaitForExecution(ctx, st.client, id, fastWait)
	if err != nil {
		t.Fatalf("WaitForExecution: %v", err)
	}
	if res.Outcome != poll.OutcomeCompleted {
		t.Fatalf("outcome = %v, want Completed", res.Outcome)
	}
	if res.Payload.SubmitTime == nil || res.Payload.StartTime == nil {
		t.Errorf("payload = %+v, want submit and start times from the report", res.Payload)
	}
}

func TestPipelineFailedExecution(t *testing.T) {
	st := newStack(t, engine.Config{CompletionDelay: 50 * time.Millisecond, CompletionStatus: model.StatusFailed})
	ctx := testContext(t)

	id, err := st.client.UploadProject(ctx, writeProject(t), testengine.UploadOptions{})
	if err != nil {
		t.Fatalf("UploadProject: %v", err)
	}
	if err := st.client.StartJob(ctx, id); err != nil {
		t.Fatalf("StartJob: %v", err)
	}

	res, err := workflow.WaitForExecution(ctx, st.client, id, fastWait)
	if err != nil {
		t.Fatalf("WaitForExecution: %v", err)
	}
	if res.Outcome != poll.OutcomeFailed {
		t.Errorf("outcome = %v, want Failed", res.Outcome)
	}
}

func TestPipelineCancelledExecution(t *testing.T) {
	st := newStack(t, engine.Config{CompletionDelay: time.Hour})
	ctx := testContext(t)

	id, err := st.client.UploadProject(ctx, writeProject(t), testengine.UploadOptions{})
	if err != nil {
		t.Fatalf("UploadProject: %v", err)
	}
	if err := st.client.StartJob(ctx, id); err != nil {
		t.Fatalf("StartJob: %v", err)
	}

	go func() {
		time.Sleep(50 * time.Millisecond)
		_ = st.client.CancelJob(context.Background(), id)
	}()

	res, err := workflow.WaitForExecution(ctx, st.client, id, fastWait)
	if err != nil {
		t.Fatalf("WaitForExecution: %v", err)
	}
	if res.Outcome != poll.OutcomeCancelled {
		t.Errorf("outcome = %v, want Cancelled", res.Outcome)
	}
}

func TestPipelineTimesOut(t *testing.T) {
	st := newStack(t, engine.Config{CompletionDelay: time.Hour})
	ctx := testContext(t)

	id, err := st.client.UploadProject(ctx, writeProject(t), testengine.UploadOptions{})
	if err != nil {
		t.Fatalf("UploadProject: %v", err)
	}
	if err := st.client.StartJob(ctx, id); err != nil {
		t.Fatalf("StartJob: %v", err)
	}

	res, err := workflow.WaitForExecution(ctx, st.client, id, workflow.WaitOptions{Interval: 20 * time.Millisecond, MaxWait: 150 * time.Millisecond})
	if err != nil {
		t.Fatalf("WaitForExecution: %v", err)
	}
	if res.Outcome != poll.OutcomeTimedOut {
		t.Errorf("outcome = %v, want TimedOut", res.Outcome)
	}
	if res.Payload == nil || res.Payload.Status != model.StatusRunning {
		t.Errorf("payload = %+v, want last status RUNNING", res.Payload)
	}
}

func TestPipelineLicenseActivation(t *testing.T) {
	st := newStack(t, engine.Config{})
	ctx := testContext(t)
	req := testengine.LicenseRequest{Issuer: "acme", AccessKey: "key-123"}
	cfg := poll.RetryConfig{Delay: time.Millisecond}

	first, err := workflow.ActivateLicense(ctx, st.client, req, cfg, nil)
	if err != nil {
		t.Fatalf("first ActivateLicense: %v", err)
	}
	if first.AlreadyValid || first.AlreadyActivated {
		t.Errorf("first = %+v, want a fresh activation", first)
	}

	second, err := workflow.ActivateLicense(ctx, st.client, req, cfg, nil)
	if err != nil {
		t.Fatalf("second ActivateLicense: %v", err)
	}
	if !second.AlreadyValid {
		t.Errorf("second = %+v, want AlreadyValid", second)
	}

	// Skipping the status check, a direct activation is rejected as a
	// duplicate and reported as success.
	_, err = st.client.ActivateLicense(ctx, req)
	if !workflow.IsAlreadyActivated(err) {
		t.Errorf("direct activation error = %v, want already-activated", err)
	}
}
