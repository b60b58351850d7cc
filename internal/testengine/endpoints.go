package testengine

import (
	"fmt"
	"net/url"
	"strings"
)

// Endpoints holds the path templates of the engine API. Templates may
// contain the placeholder {id}, which is replaced with the escaped job id.
type Endpoints struct {
	Jobs    string `yaml:"jobs"`
	Job     string `yaml:"job"`
	Status  string `yaml:"status"`
	Run     string `yaml:"run"`
	Report  string `yaml:"report"`
	JUnit   string `yaml:"junit"`
	Logs    string `yaml:"logs"`
	Version string `yaml:"version"`
	License string `yaml:"license"`
}

// DefaultEndpoints reads job status from the job resource itself.
var DefaultEndpoints = Endpoints{
	Jobs:    "/api/v1/testjobs",
	Job:     "/api/v1/testjobs/{id}",
	Status:  "/api/v1/testjobs/{id}",
	Run:     "/api/v1/testjobs/{id}/run",
	Report:  "/api/v1/testjobs/{id}/report",
	JUnit:   "/api/v1/testjobs/{id}/reports/junit",
	Logs:    "/api/v1/testjobs/{id}/logs",
	Version: "/api/v1/version",
	License: "/api/v1/license",
}

// ReportEndpoints reads job status from the report resource, which is where
// some engine versions expose submitTime and startTime.
var ReportEndpoints = func() Endpoints {
	e := DefaultEndpoints
	e.Status = e.Report
	return e
}()

// Endpoint profile names accepted by [EndpointsByName].
const (
	ProfileDefault = "default"
	ProfileReport  = "report"
)

// EndpointsByName returns a built-in endpoint profile.
func EndpointsByName(name string) (Endpoints, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", ProfileDefault:
		return DefaultEndpoints, nil
	case ProfileReport:
		return ReportEndpoints, nil
	default:
		return Endpoints{}, fmt.Errorf("unknown endpoint profile %q (expected default or report)", name)
	}
}

// Merge returns e with every empty template filled from base.
func (e Endpoints) Merge(base Endpoints) Endpoints {
	fill := func(v *string, def string) {
		if *v == "" {
			*v = def
		}
	}
	fill(&e.Jobs, base.Jobs)
	fill(&e.Job, base.Job)
	fill(&e.Status, base.Status)
	fill(&e.Run, base.Run)
	fill(&e.Report, base.Report)
	fill(&e.JUnit, base.JUnit)
	fill(&e.Logs, base.Logs)
	fill(&e.Version, base.Version)
	fill(&e.License, base.License)
	return e
}

// expand substitutes the job id into a path template.
func expand(tmpl, id string) string {
	return strings.ReplaceAll(tmpl, "{id}", url.PathEscape(id))
}
