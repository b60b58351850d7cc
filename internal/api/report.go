package api

import (
	"encoding/json"
	"encoding/xml"
	"fmt"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/seantiz/testengine-ci/internal/engine"
	"github.com/seantiz/testengine-ci/internal/model"
)

const (
	mediaJSON  = "application/json"
	mediaJUnit = "application/junit+xml"
	mediaXML   = "application/xml"
)

// buildReport assembles the JSON report of an execution.
func buildReport(e *model.Execution) model.Report {
	r := model.Report{
		ExecutionID: e.ID,
		ProjectName: e.ProjectFile,
		Status:      e.Status,
		Results:     map[string]string{"message": "Execution in progress"},
		CreatedAt:   e.CreatedAt,
		StartedAt:   e.StartedAt,
		FinishedAt:  e.FinishedAt,
		SubmitTime:  epochMillis(&e.CreatedAt),
		StartTime:   epochMillis(e.StartedAt),
		EndTime:     epochMillis(e.FinishedAt),
		TestCases:   engine.SampleTestCases,
	}
	if e.Results != nil {
		r.Results = e.Results
	}
	return r
}

func epochMillis(t *time.Time) *int64 {
	if t == nil {
		return nil
	}
	ms := t.UnixMilli()
	return &ms
}

type junitSuite struct {
	XMLName  xml.Name    `xml:"testsuite"`
	Name     string      `xml:"name,attr"`
	Tests    int         `xml:"tests,attr"`
	Failures int         `xml:"failures,attr"`
	Errors   int         `xml:"errors,attr"`
	Time     string      `xml:"time,attr"`
	Cases    []junitCase `xml:"testcase"`
}

type junitCase struct {
	Name      string        `xml:"name,attr"`
	ClassName string        `xml:"classname,attr"`
	Time      string        `xml:"time,attr"`
	Failure   *junitFailure `xml:"failure,omitempty"`
}

type junitFailure struct {
	Message string `xml:"message,attr"`
	Text    string `xml:",chardata"`
}

// junitReport renders the sample test cases as a JUnit XML document.
func junitReport() ([]byte, error) {
	suite := junitSuite{Name: "ReadyAPI Test Suite", Tests: len(engine.SampleTestCases)}
	var totalMS int
	for _, tc := range engine.SampleTestCases {
		c := junitCase{
			Name:      tc.Name,
			ClassName: "APITests",
			Time:      fmt.Sprintf("%.3f", float64(tc.Duration)/1000),
		}
		if tc.Status == "FAILED" {
			suite.Failures++
			c.Failure = &junitFailure{Message: tc.Error, Text: tc.Error}
		}
		totalMS += tc.Duration
		suite.Cases = append(suite.Cases, c)
	}
	suite.Time = fmt.Sprintf("%.3f", float64(totalMS)/1000)

	body, err := xml.MarshalIndent(suite, "", "    ")
	if err != nil {
		return nil, err
	}
	return append([]byte(xml.Header), body...), nil
}

// negotiateReport picks the report representation for an Accept header.
// It returns "" when no supported type is acceptable.
func negotiateReport(accept string) string {
	if strings.TrimSpace(accept) == "" {
		return mediaJSON
	}
	for _, part := range strings.Split(accept, ",") {
		mt, _, err := mime.ParseMediaType(strings.TrimSpace(part))
		if err != nil {
			continue
		}
		switch mt {
		case mediaJSON, "*/*", "application/*":
			return mediaJSON
		case mediaJUnit, mediaXML:
			return mediaJUnit
		}
	}
	return ""
}

func (s *Server) handleGetReport(w http.ResponseWriter, r *http.Request) {
	e, err := s.registry.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeRegistryError(w, "get report", err)
		return
	}

	switch negotiateReport(r.Header.Get("Accept")) {
	case mediaJSON:
		s.writeJSON(w, http.StatusOK, buildReport(e))
	case mediaJUnit:
		s.writeJUnit(w, mediaJUnit)
	default:
		s.writeError(w, http.StatusNotAcceptable, "report format not supported")
	}
}

func (s *Server) handleGetJUnit(w http.ResponseWriter, r *http.Request) {
	if _, err := s.registry.Get(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.writeRegistryError(w, "get junit report", err)
		return
	}
	s.writeJUnit(w, mediaXML)
}

func (s *Server) writeJUnit(w http.ResponseWriter, contentType string) {
	body, err := junitReport()
	if err != nil {
		s.logger.Error("render junit report", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to render junit report")
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

// handleGetLogs serves the execution log as plain text, one timestamped
// line per entry.
func (s *Server) handleGetLogs(w http.ResponseWriter, r *http.Request) {
	lines, err := s.registry.Log(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeRegistryError(w, "get execution log", err)
		return
	}

	var b strings.Builder
	for _, l := range lines {
		fmt.Fprintf(&b, "[%s] %s\n", l.CreatedAt.UTC().Format(time.RFC3339Nano), l.Line)
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(b.String()))
}

// handleStreamEvents streams the execution's status changes as server-sent
// events. The current status is sent first; the stream ends with a "done"
// event once the execution is terminal.
func (s *Server) handleStreamEvents(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	// Subscribe before reading the current state so no transition in
	// between is lost.
	ch, unsub := s.registry.Events().Subscribe(id)
	defer unsub()

	e, err := s.registry.Get(r.Context(), id)
	if err != nil {
		s.writeRegistryError(w, "get execution for events", err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	rc := http.NewResponseController(w)
	if err := rc.SetWriteDeadline(time.Time{}); err != nil {
		s.logger.Debug("clear write deadline for SSE", "error", err)
	}

	w.WriteHeader(http.StatusOK)

	current := engine.Event{ExecutionID: e.ID, Status: e.Status, CurrentStatus: e.CurrentStatus, At: time.Now().UTC()}
	if err := writeSSEEvent(w, "status", current); err != nil {
		return
	}
	_ = rc.Flush()

	if e.Status.IsTerminal() {
		_ = writeSSEEvent(w, "done", current)
		_ = rc.Flush()
		return
	}

	last := current
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				_ = writeSSEEvent(w, "done", last)
				_ = rc.Flush()
				return
			}
			if ev.Status == last.Status && ev.CurrentStatus == last.CurrentStatus {
				continue
			}
			last = ev
			if err := writeSSEEvent(w, "status", ev); err != nil {
				return
			}
			_ = rc.Flush()
		case <-r.Context().Done():
			return
		}
	}
}

// writeSSEEvent writes a named SSE event with a JSON payload.
func writeSSEEvent(w http.ResponseWriter, name string, ev engine.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, data)
	return err
}
