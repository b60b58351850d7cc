package api

import (
	"net/http"
	"strings"
	"testing"
)

func TestLicenseLifecycle(t *testing.T) {
	srv := newTestServer(t)

	resp := srv.do(t, http.MethodGet, "/api/v1/license", nil, nil)
	var before licenseResponse
	decodeJSON(t, resp, &before)
	if before.IsValid {
		t.Fatal("isValid = true before activation")
	}

	body := `{"issuer":"acme","accessKey":"key-123","server":"https://license.example.com"}`
	resp = srv.do(t, http.MethodPost, "/api/v1/license", strings.NewReader(body), map[string]string{"Content-Type": "application/json"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("activate status = %d, want 200", resp.StatusCode)
	}
	var activated licenseResponse
	decodeJSON(t, resp, &activated)
	if !activated.IsValid {
		t.Error("isValid = false after activation")
	}
	if activated.Issuer != "acme" {
		t.Errorf("issuer = %q, want %q", activated.Issuer, "acme")
	}
	if activated.ExpiresAt == "" {
		t.Error("expiresAt empty after activation")
	}

	resp = srv.do(t, http.MethodGet, "/api/v1/license", nil, nil)
	var after licenseResponse
	decodeJSON(t, resp, &after)
	if !after.IsValid {
		t.Error("GET isValid = false after activation")
	}
}

func TestLicenseDuplicateActivation(t *testing.T) {
	srv := newTestServer(t)
	body := `{"accessKey":"key-123"}`

	srv.do(t, http.MethodPost, "/api/v1/license", strings.NewReader(body), nil)
	resp := srv.do(t, http.MethodPost, "/api/v1/license", strings.NewReader(body), nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	var msg map[string]string
	decodeJSON(t, resp, &msg)
	if msg["message"] != "license already activated" {
		t.Errorf("message = %q, want %q", msg["message"], "license already activated")
	}
}

func TestLicenseActivationValidation(t *testing.T) {
	srv := newTestServer(t)

	tests := []struct {
		name string
		body string
	}{
		{"invalid json", `{`},
		{"no key", `{"issuer":"acme"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := srv.do(t, http.MethodPost, "/api/v1/license", strings.NewReader(tt.body), nil)
			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", resp.StatusCode)
			}
		})
	}
}
