package api

import (
	"net/http"
)

type healthResponse struct {
	Status string `json:"status"`
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, healthResponse{Status: "ok"})
}

// versionResponse mirrors the engine's version endpoint closely enough for
// readiness probes.
type versionResponse struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	Mock    bool   `json:"mock"`
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, versionResponse{
		Name:    "Mock TestEngine",
		Version: s.opts.Version,
		Mock:    true,
	})
}
