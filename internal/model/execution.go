package model

import (
	"fmt"
	"strings"
	"time"
)

// Status is the lifecycle state of a remote test execution.
type Status string

// Execution status constants, spelled the way the test engine reports them.
const (
	StatusCreated  Status = "CREATED"
	StatusRunning  Status = "RUNNING"
	StatusFinished Status = "FINISHED"
	StatusFailed   Status = "FAILED"
	StatusCanceled Status = "CANCELED"
)

// AllStatuses lists every known status in lifecycle order.
var AllStatuses = []Status{
	StatusCreated,
	StatusRunning,
	StatusFinished,
	StatusFailed,
	StatusCanceled,
}

// ParseStatus converts a wire value to a Status. Matching ignores case and
// surrounding whitespace; unknown values are an error.
func ParseStatus(s string) (Status, error) {
	v := Status(strings.ToUpper(strings.TrimSpace(s)))
	switch v {
	case StatusCreated, StatusRunning, StatusFinished, StatusFailed, StatusCanceled:
		return v, nil
	}
	return "", fmt.Errorf("unknown execution status %q", s)
}

// IsTerminal reports whether no further state change can follow s.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusFinished, StatusFailed, StatusCanceled:
		return true
	default:
		return false
	}
}

func (s Status) String() string {
	return string(s)
}

// validTransitions maps each status to the set of statuses it may transition to.
var validTransitions = map[Status]map[Status]bool{
	StatusCreated: {
		StatusRunning:  true,
		StatusCanceled: true,
	},
	StatusRunning: {
		StatusFinished: true,
		StatusFailed:   true,
		StatusCanceled: true,
	},
}

// ValidTransition reports whether transitioning from one status to another is allowed.
func ValidTransition(from, to Status) bool {
	targets, ok := validTransitions[from]
	if !ok {
		return false
	}
	return targets[to]
}

// Results summarises a finished execution.
type Results struct {
	TotalTests int    `json:"totalTests"`
	Passed     int    `json:"passed"`
	Failed     int    `json:"failed"`
	Duration   string `json:"duration"`
}

// TestCase is a single test case entry in an execution report.
type TestCase struct {
	Name     string `json:"name"`
	Status   string `json:"status"`
	Duration int    `json:"duration"`
	Error    string `json:"error,omitempty"`
}

// Execution is one test run tracked by the test engine.
type Execution struct {
	ID            string     `json:"testjobId"`
	Status        Status     `json:"status"`
	CurrentStatus string     `json:"currentStatus"`
	ProjectFile   string     `json:"projectFile"`
	CreatedAt     time.Time  `json:"createdAt"`
	StartedAt     *time.Time `json:"startedAt,omitempty"`
	FinishedAt    *time.Time `json:"finishedAt,omitempty"`
	Results       *Results   `json:"results,omitempty"`
}

// Report is the JSON execution report served by the report endpoint.
//
// SubmitTime and StartTime are epoch milliseconds as the real engine
// reports them; the remaining timestamps mirror Execution.
type Report struct {
	ExecutionID string     `json:"executionId"`
	ProjectName string     `json:"projectName"`
	Status      Status     `json:"status"`
	Results     any        `json:"results"`
	CreatedAt   time.Time  `json:"createdAt"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	FinishedAt  *time.Time `json:"finishedAt,omitempty"`
	SubmitTime  *int64     `json:"submitTime,omitempty"`
	StartTime   *int64     `json:"startTime,omitempty"`
	EndTime     *int64     `json:"endTime,omitempty"`
	TestCases   []TestCase `json:"testCases"`
}

// LogLine is one line of an execution log.
type LogLine struct {
	Seq       int       `json:"seq"`
	Line      string    `json:"line"`
	CreatedAt time.Time `json:"createdAt"`
}
