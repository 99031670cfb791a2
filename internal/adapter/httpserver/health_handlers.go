package httpserver

import (
	"context"
	"net/http"
	"time"
)

const serviceVersion = "0.1.0"

// HealthHandler reports basic service identity and status.
func (s *Server) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"status":      "healthy",
			"service":     s.Cfg.OTELServiceName,
			"version":     serviceVersion,
			"environment": s.Cfg.AppEnv,
			"timestamp":   time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// LivenessHandler is the orchestrator liveness probe.
func (s *Server) LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
	}
}

// ReadinessHandler probes the configured dependencies. Degraded
// dependencies flip ready to false but the endpoint always answers 200
// with the per-check detail; orchestrators read the ready flag.
func (s *Server) ReadinessHandler() http.HandlerFunc {
	type check struct {
		Name    string `json:"name"`
		OK      bool   `json:"ok"`
		Details string `json:"details,omitempty"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		checks := make([]check, 0, 2)
		if s.DBCheck != nil {
			if err := s.DBCheck(ctx); err != nil {
				checks = append(checks, check{Name: "db", OK: false, Details: err.Error()})
			} else {
				checks = append(checks, check{Name: "db", OK: true})
			}
		}
		if s.RedisCheck != nil {
			if err := s.RedisCheck(ctx); err != nil {
				checks = append(checks, check{Name: "redis", OK: false, Details: err.Error()})
			} else {
				checks = append(checks, check{Name: "redis", OK: true})
			}
		}
		ready := true
		for _, c := range checks {
			if !c.OK {
				ready = false
				break
			}
		}
		writeJSON(w, http.StatusOK, map[string]any{"ready": ready, "checks": checks})
	}
}
