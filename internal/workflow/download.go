package workflow

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/seantiz/testengine-ci/internal/model"
	"github.com/seantiz/testengine-ci/internal/testengine"
)

// SummaryFile is the name of the summary written by DownloadResults.
const SummaryFile = "download-summary.json"

// ErrNothingDownloaded is returned when neither a report nor the log could be fetched.
var ErrNothingDownloaded = errors.New("no results were downloaded")

// ResultsFetcher downloads the artifacts of one job.
type ResultsFetcher interface {
	BaseURL() string
	DownloadReport(ctx context.Context, id, accept string) ([]byte, error)
	JUnitReport(ctx context.Context, id string) ([]byte, error)
	JobReport(ctx context.Context, id string) (*model.Report, error)
	JobLogs(ctx context.Context, id string) ([]byte, error)
}

// DownloadOptions controls DownloadResults.
type DownloadOptions struct {
	// SettleDelay is waited before the first request so the engine can
	// finish rendering reports.
	SettleDelay time.Duration
	// Formats defaults to testengine.ReportFormats.
	Formats  []testengine.ReportFormat
	SkipLogs bool
	Logger   *slog.Logger
}

// DownloadSummary is written to SummaryFile and returned to the caller.
type DownloadSummary struct {
	ExecutionID      string            `json:"executionId"`
	DownloadTime     time.Time         `json:"downloadTime"`
	TestEngineURL    string            `json:"testEngineUrl"`
	DownloadedFiles  []string          `json:"downloadedFiles"`
	TotalFiles       int               `json:"totalFiles"`
	Status           string            `json:"status"`
	ExecutionSummary *ExecutionSummary `json:"executionSummary,omitempty"`
}

// ExecutionSummary is extracted from the JSON report when it was downloaded.
type ExecutionSummary struct {
	Status           string         `json:"status,omitempty"`
	StartTime        *int64         `json:"startTime,omitempty"`
	EndTime          *int64         `json:"endTime,omitempty"`
	TotalTests       int            `json:"totalTests"`
	FailedTests      int            `json:"failedTests"`
	TestSuiteResults []SuiteSummary `json:"testSuiteResults,omitempty"`
}

// SuiteSummary counts the cases of one suite in the JSON report.
type SuiteSummary struct {
	Name          string `json:"name"`
	Status        string `json:"status"`
	TestCaseCount int    `json:"testCaseCount"`
	FailedCount   int    `json:"failedCount"`
}

// DownloadResults fetches every report format and the execution log of job
// id into dir, then writes SummaryFile. Formats the engine does not serve
// (404, 406) or that fail to download are logged and skipped. JUnit falls
// back to the dedicated JUnit resource when the report endpoint does not
// serve it. When the JSON report was not downloaded the execution summary
// is read from the report endpoint directly. It returns
// ErrNothingDownloaded only when no report and no log could be fetched.
func DownloadResults(ctx context.Context, c ResultsFetcher, id, dir string, opts DownloadOptions) (*DownloadSummary, error) {
	log := loggerOrDiscard(opts.Logger).With("execution_id", id)
	formats := opts.Formats
	if formats == nil {
		formats = testengine.ReportFormats
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create results dir: %w", err)
	}

	if opts.SettleDelay > 0 {
		log.Info("waiting for report generation", "delay", opts.SettleDelay.String())
		t := time.NewTimer(opts.SettleDelay)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, ctx.Err()
		case <-t.C:
		}
	}

	summary := &DownloadSummary{
		ExecutionID:     id,
		TestEngineURL:   c.BaseURL(),
		DownloadedFiles: []string{},
	}

	for _, f := range formats {
		name := fmt.Sprintf(f.Filename, id)
		body, err := c.DownloadReport(ctx, id, f.Accept)
		if err != nil && f.Accept == testengine.MediaJUnit && notServed(err) {
			log.Info("junit not served by report endpoint, using junit resource", "http_status", testengine.StatusCode(err))
			body, err = c.JUnitReport(ctx, id)
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			warnDownload(log, f.Name, err)
			continue
		}

		if f.Accept == testengine.MediaJSON {
			summary.ExecutionSummary = summarizeReport(body)
			var pretty bytes.Buffer
			if json.Indent(&pretty, body, "", "  ") == nil {
				body = pretty.Bytes()
			}
		}

		if err := os.WriteFile(filepath.Join(dir, name), body, 0o644); err != nil {
			return nil, fmt.Errorf("write %s report: %w", f.Name, err)
		}
		log.Info("downloaded report", "format", f.Name, "file", name, "bytes", len(body))
		summary.DownloadedFiles = append(summary.DownloadedFiles, name)
	}

	if !opts.SkipLogs {
		name := fmt.Sprintf("execution-logs-%s.txt", id)
		body, err := c.JobLogs(ctx, id)
		switch {
		case err != nil && ctx.Err() != nil:
			return nil, ctx.Err()
		case err != nil:
			log.Warn("could not download execution logs", "http_status", testengine.StatusCode(err), "error", err)
		default:
			if err := os.WriteFile(filepath.Join(dir, name), body, 0o644); err != nil {
				return nil, fmt.Errorf("write execution logs: %w", err)
			}
			log.Info("downloaded execution logs", "file", name, "bytes", len(body))
			summary.DownloadedFiles = append(summary.DownloadedFiles, name)
		}
	}

	if summary.ExecutionSummary == nil {
		r, err := c.JobReport(ctx, id)
		switch {
		case err != nil && ctx.Err() != nil:
			return nil, ctx.Err()
		case err != nil:
			log.Warn("could not read execution summary", "http_status", testengine.StatusCode(err), "error", err)
		default:
			summary.ExecutionSummary = summarizeExecution(r)
		}
	}

	summary.TotalFiles = len(summary.DownloadedFiles)
	summary.Status = "SUCCESS"
	if summary.TotalFiles == 0 {
		summary.Status = "FAILED"
	}
	summary.DownloadTime = time.Now().UTC()

	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode summary: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, SummaryFile), data, 0o644); err != nil {
		return nil, fmt.Errorf("write summary: %w", err)
	}

	if summary.TotalFiles == 0 {
		log.Error("no reports were downloaded")
		return summary, ErrNothingDownloaded
	}
	log.Info("results downloaded", "dir", dir, "files", summary.TotalFiles)
	return summary, nil
}

func notServed(err error) bool {
	code := testengine.StatusCode(err)
	return code == http.StatusNotFound || code == http.StatusNotAcceptable
}

func warnDownload(log *slog.Logger, format string, err error) {
	switch testengine.StatusCode(err) {
	case http.StatusNotFound:
		log.Warn("report not available", "format", format, "http_status", http.StatusNotFound)
	case http.StatusNotAcceptable:
		log.Warn("report format not supported", "format", format, "http_status", http.StatusNotAcceptable)
	default:
		log.Warn("failed to download report", "format", format, "error", err)
	}
}

// summarizeReport pulls the execution summary out of a JSON report. Both the
// engine's suite-based layout and the flat layout served by the mock are
// understood. Unparseable reports yield nil.
func summarizeReport(body []byte) *ExecutionSummary {
	var r struct {
		Status    string `json:"status"`
		StartTime *int64 `json:"startTime"`
		EndTime   *int64 `json:"endTime"`
		Results   *struct {
			TotalTests int `json:"totalTests"`
			Failed     int `json:"failed"`
		} `json:"results"`
		TestCases []struct {
			Status string `json:"status"`
		} `json:"testCases"`
		TestSuiteResults []struct {
			TestSuiteName   string `json:"testSuiteName"`
			Status          string `json:"status"`
			TestCaseResults []struct {
				Status string `json:"status"`
			} `json:"testCaseResults"`
		} `json:"testSuiteResults"`
	}
	if err := json.Unmarshal(body, &r); err != nil {
		return nil
	}

	s := &ExecutionSummary{Status: r.Status, StartTime: r.StartTime, EndTime: r.EndTime}
	for _, suite := range r.TestSuiteResults {
		ss := SuiteSummary{Name: suite.TestSuiteName, Status: suite.Status, TestCaseCount: len(suite.TestCaseResults)}
		for _, tc := range suite.TestCaseResults {
			if tc.Status == "FAILED" {
				ss.FailedCount++
			}
		}
		s.TotalTests += ss.TestCaseCount
		s.FailedTests += ss.FailedCount
		s.TestSuiteResults = append(s.TestSuiteResults, ss)
	}
	if len(r.TestSuiteResults) == 0 {
		switch {
		case r.Results != nil:
			s.TotalTests, s.FailedTests = r.Results.TotalTests, r.Results.Failed
		default:
			s.TotalTests = len(r.TestCases)
			for _, tc := range r.TestCases {
				if tc.Status == "FAILED" {
					s.FailedTests++
				}
			}
		}
	}
	return s
}

// summarizeExecution builds the summary from a decoded report.
func summarizeExecution(r *model.Report) *ExecutionSummary {
	data, err := json.Marshal(r)
	if err != nil {
		return nil
	}
	return summarizeReport(data)
}
