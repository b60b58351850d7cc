package engine

import (
	"fmt"
	"time"

	"github.com/seantiz/testengine-ci/internal/model"
)

// SampleTestCases are the test cases every mock execution reports.
var SampleTestCases = []model.TestCase{
	{Name: "GET /api/users", Status: "PASSED", Duration: 245},
	{Name: "POST /api/users", Status: "PASSED", Duration: 312},
	{Name: "PUT /api/users/1", Status: "FAILED", Duration: 156, Error: "Assertion failed: status code"},
	{Name: "DELETE /api/users/1", Status: "PASSED", Duration: 189},
	{Name: "GET /api/health", Status: "PASSED", Duration: 98},
}

// SampleResults summarises SampleTestCases for an execution that ran for d.
func SampleResults(d time.Duration) model.Results {
	r := model.Results{TotalTests: len(SampleTestCases)}
	for _, tc := range SampleTestCases {
		if tc.Status == "FAILED" {
			r.Failed++
		} else {
			r.Passed++
		}
	}
	d = d.Round(time.Second)
	r.Duration = fmt.Sprintf("%02d:%02d:%02d", int(d.Hours()), int(d.Minutes())%60, int(d.Seconds())%60)
	return r
}
