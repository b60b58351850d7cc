package testengine

import (
	"encoding/json"
	"fmt"

	"github.com/seantiz/testengine-ci/internal/model"
)

// JobList is the response of the job collection endpoint.
type JobList struct {
	Message    string   `json:"message"`
	Executions []string `json:"executions"`
}

// JobStatus is the subset of a job or report resource used for polling.
type JobStatus struct {
	Status        model.Status `json:"status"`
	CurrentStatus string       `json:"currentStatus,omitempty"`
	SubmitTime    *int64       `json:"submitTime,omitempty"`
	StartTime     *int64       `json:"startTime,omitempty"`
}

// UnmarshalJSON rejects bodies whose status is missing or unknown.
func (s *JobStatus) UnmarshalJSON(data []byte) error {
	type raw JobStatus
	var r raw
	if err := json.Unmarshal(data, &r); err != nil {
		return err
	}
	st, err := model.ParseStatus(string(r.Status))
	if err != nil {
		return err
	}
	r.Status = st
	*s = JobStatus(r)
	return nil
}

// UploadOptions are the form fields sent alongside a project upload.
type UploadOptions struct {
	TestSuite              string
	JobDescription         string
	Environment            string
	GenerateJUnitReport    bool
	GenerateReport         bool
	ReportFormat           string
	GenerateExcelReport    bool
	IncludeTestData        bool
	IncludeRequestResponse bool
}

// DefaultUploadOptions enables every report flag and labels the job with
// the project file name.
func DefaultUploadOptions(projectFile string) UploadOptions {
	return UploadOptions{
		TestSuite:              "Test Suite 1",
		JobDescription:         fmt.Sprintf("tag=GitHub Actions,label=%s", projectFile),
		Environment:            "GitHub Actions Container",
		GenerateJUnitReport:    true,
		GenerateReport:         true,
		ReportFormat:           "PDF",
		GenerateExcelReport:    true,
		IncludeTestData:        true,
		IncludeRequestResponse: true,
	}
}

// fields flattens the options into multipart form values, skipping empty strings.
func (o UploadOptions) fields() [][2]string {
	var out [][2]string
	add := func(k, v string) {
		if v != "" {
			out = append(out, [2]string{k, v})
		}
	}
	add("testSuite", o.TestSuite)
	add("jobDescription", o.JobDescription)
	add("environment", o.Environment)
	add("generateJunitReport", fmt.Sprint(o.GenerateJUnitReport))
	add("generateReport", fmt.Sprint(o.GenerateReport))
	add("reportFormat", o.ReportFormat)
	add("generateExcelReport", fmt.Sprint(o.GenerateExcelReport))
	add("includeTestData", fmt.Sprint(o.IncludeTestData))
	add("includeRequestResponse", fmt.Sprint(o.IncludeRequestResponse))
	return out
}

// VersionInfo is what the version endpoint answered. Any status below 500
// is reported here rather than as an error, since a 401 or 404 still proves
// the server is up.
type VersionInfo struct {
	StatusCode int
	Version    string
	Raw        json.RawMessage
}

// LicenseStatus is the response of the license endpoint.
type LicenseStatus struct {
	IsValid   bool   `json:"isValid"`
	Issuer    string `json:"issuer,omitempty"`
	Server    string `json:"server,omitempty"`
	ExpiresAt string `json:"expiresAt,omitempty"`
}

// LicenseRequest is the activation body. License carries the bare key used
// by older engines; newer ones expect Issuer and AccessKey.
type LicenseRequest struct {
	Issuer    string `json:"issuer,omitempty"`
	AccessKey string `json:"accessKey,omitempty"`
	Server    string `json:"server,omitempty"`
	License   string `json:"license,omitempty"`
}

// ReportFormat names one downloadable representation of the job report.
type ReportFormat struct {
	Name     string
	Accept   string
	Filename string // printf pattern taking the job id
}

// Media types understood by the report endpoint.
const (
	MediaJSON  = "application/json"
	MediaJUnit = "application/junit+xml"
	MediaExcel = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	MediaPDF   = "application/pdf"
)

// ReportFormats lists the formats fetched by a results download, in order.
var ReportFormats = []ReportFormat{
	{Name: "json", Accept: MediaJSON, Filename: "execution-report-%s.json"},
	{Name: "junit", Accept: MediaJUnit, Filename: "junit-report-%s.xml"},
	{Name: "excel", Accept: MediaExcel, Filename: "test-report-%s.xlsx"},
	{Name: "pdf", Accept: MediaPDF, Filename: "test-report-%s.pdf"},
}
