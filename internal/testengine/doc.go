// Package testengine is an HTTP client for the test-execution engine REST
// API: uploading projects, starting and cancelling jobs, reading job status
// and reports, and managing the server license.
//
// The endpoint layout and the authentication scheme are both pluggable,
// because deployments disagree on them. [DefaultEndpoints] reads status from
// /api/v1/testjobs/{id}; [ReportEndpoints] reads it from the report resource
// instead. [BasicAuth], [BearerAuth] and [NoAuth] cover the schemes seen in
// the field.
//
// Non-2xx responses surface as [*StatusError]. 5xx and 429 responses report
// themselves as transient so the poll package keeps polling through them.
package testengine
