// Package workflow implements the CI steps run against a test engine:
// waiting for the server, activating its license, waiting for an execution
// to finish and collecting its reports.
//
// Each workflow depends on a narrow interface satisfied by
// *testengine.Client, so tests can substitute httptest servers or fakes.
package workflow
