package qhealth

import (
	"encoding/json"
	"net/http"
	"time"
)

// HealthHandler serves the aggregate health report.
func (w *Watchdog) HealthHandler() http.HandlerFunc {
	return func(resp http.ResponseWriter, req *http.Request) {
		health := w.Health()
		resp.Header().Set("Content-Type", "application/json")
		code := http.StatusOK
		if health.Status == "unhealthy" {
			code = http.StatusServiceUnavailable
		}
		resp.WriteHeader(code)
		_ = json.NewEncoder(resp).Encode(health)
	}
}

// ReadyHandler serves readiness gated on the named critical components.
func (w *Watchdog) ReadyHandler(critical []string) http.HandlerFunc {
	return func(resp http.ResponseWriter, req *http.Request) {
		readiness := w.Ready(critical)
		resp.Header().Set("Content-Type", "application/json")
		code := http.StatusOK
		if readiness.Status != "ready" {
			code = http.StatusServiceUnavailable
		}
		resp.WriteHeader(code)
		_ = json.NewEncoder(resp).Encode(readiness)
	}
}

// LivenessHandler always reports 200 while the process is up; it answers
// "is the process alive", not "is every component healthy" (that's
// HealthHandler).
func (w *Watchdog) LivenessHandler() http.HandlerFunc {
	return func(resp http.ResponseWriter, req *http.Request) {
		resp.Header().Set("Content-Type", "application/json")
		resp.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(resp).Encode(map[string]string{
			"status": "alive",
			"uptime": time.Since(w.startTime).String(),
		})
	}
}
