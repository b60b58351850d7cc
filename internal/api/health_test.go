package api

import (
	"io"
	"net/http"
	"strings"
	"testing"
)

func TestHealthzEndpoint(t *testing.T) {
	srv := newTestServer(t)

	resp := srv.do(t, http.MethodGet, "/healthz", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}

	var body healthResponse
	decodeJSON(t, resp, &body)
	if body.Status != "ok" {
		t.Errorf("status = %q, want %q", body.Status, "ok")
	}
}

func TestVersionEndpoint(t *testing.T) {
	srv := newTestServer(t)

	resp := srv.do(t, http.MethodGet, "/api/v1/version", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var body versionResponse
	decodeJSON(t, resp, &body)
	if body.Version != "1.2.3" {
		t.Errorf("version = %q, want %q", body.Version, "1.2.3")
	}
	if !body.Mock {
		t.Error("mock = false, want true")
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t)

	srv.do(t, http.MethodGet, "/api/v1/testjobs", nil, nil)

	resp, err := http.Get(srv.ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}

	contentType := resp.Header.Get("Content-Type")
	if !strings.Contains(contentType, "text/plain") && !strings.Contains(contentType, "text/openmetrics") {
		t.Errorf("Content-Type = %q, expected prometheus format", contentType)
	}

	bodyBytes, _ := io.ReadAll(resp.Body)
	body := string(bodyBytes)

	for _, name := range []string{
		"testengine_mock_http_requests_total",
		"testengine_mock_http_request_duration_seconds",
		"testengine_mock_http_requests_in_flight",
	} {
		if !strings.Contains(body, name) {
			t.Errorf("metrics output missing %s", name)
		}
	}
	if !strings.Contains(body, `path="/api/v1/testjobs/"`) && !strings.Contains(body, `path="/api/v1/testjobs"`) {
		t.Error("metrics should be labelled with the route pattern")
	}
}

func TestMetricsUseRoutePattern(t *testing.T) {
	srv := newTestServer(t)

	srv.do(t, http.MethodGet, "/api/v1/testjobs/01ARZ3NDEKTSV4RRFFQ69G5FAV", nil, nil)

	resp, err := http.Get(srv.ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	if strings.Contains(string(body), "01ARZ3NDEKTSV4RRFFQ69G5FAV") {
		t.Error("metrics contain a raw job id; want the route pattern")
	}
	if !strings.Contains(string(body), `/api/v1/testjobs/{id}`) {
		t.Error("metrics missing route pattern /api/v1/testjobs/{id}")
	}
}
