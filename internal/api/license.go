package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

// licenseTerm is how long an activated mock license stays valid.
const licenseTerm = 365 * 24 * time.Hour

type licenseRequest struct {
	Issuer    string `json:"issuer"`
	AccessKey string `json:"accessKey"`
	Server    string `json:"server"`
	License   string `json:"license"`
}

type licenseResponse struct {
	IsValid   bool   `json:"isValid"`
	Issuer    string `json:"issuer,omitempty"`
	Server    string `json:"server,omitempty"`
	ExpiresAt string `json:"expiresAt,omitempty"`
}

// licenseState is the server's single license slot.
type licenseState struct {
	mu        sync.Mutex
	active    bool
	issuer    string
	server    string
	expiresAt time.Time
}

func (l *licenseState) snapshot() licenseResponse {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.active {
		return licenseResponse{IsValid: false}
	}
	return licenseResponse{
		IsValid:   true,
		Issuer:    l.issuer,
		Server:    l.server,
		ExpiresAt: l.expiresAt.Format(time.RFC3339),
	}
}

// activate fills the slot. It reports false if a license is already active.
func (l *licenseState) activate(req licenseRequest) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.active {
		return false
	}
	l.active = true
	l.issuer = req.Issuer
	l.server = req.Server
	l.expiresAt = time.Now().UTC().Add(licenseTerm).Truncate(time.Second)
	return true
}

func (s *Server) handleGetLicense(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.license.snapshot())
}

func (s *Server) handleActivateLicense(w http.ResponseWriter, r *http.Request) {
	var req licenseRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		licenseActivations.WithLabelValues("invalid").Inc()
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.AccessKey == "" && req.License == "" {
		licenseActivations.WithLabelValues("invalid").Inc()
		s.writeError(w, http.StatusBadRequest, "accessKey or license is required")
		return
	}

	if !s.license.activate(req) {
		licenseActivations.WithLabelValues("duplicate").Inc()
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"message": "license already activated"})
		return
	}

	licenseActivations.WithLabelValues("activated").Inc()
	s.logger.Info("license activated", "issuer", req.Issuer, "server", req.Server)
	s.writeJSON(w, http.StatusOK, s.license.snapshot())
}
