package handlers

import (
	"net/http"
	"time"

	domain "github.com/stoneyard/api/internal/domain"
	"github.com/stoneyard/api/internal/platform/httpx"
	"github.com/stoneyard/api/internal/services"
)

// HealthHandlers serves the liveness and readiness probes.
type HealthHandlers struct {
	system services.SystemService
}

// NewHealthHandlers constructs health handlers over the system service. A nil
// service degrades readiness to a bare liveness answer.
func NewHealthHandlers(system services.SystemService) *HealthHandlers {
	return &HealthHandlers{system: system}
}

// Healthz reports process liveness together with build metadata.
func (h *HealthHandlers) Healthz(w http.ResponseWriter, r *http.Request) {
	payload := map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	if h != nil && h.system != nil {
		build := h.system.Build()
		payload["version"] = build.Version
		payload["commit"] = build.CommitSHA
		payload["environment"] = build.Environment
		if !build.StartedAt.IsZero() {
			payload["uptime"] = time.Since(build.StartedAt).Round(time.Second).String()
		}
	}
	writeJSONResponse(w, http.StatusOK, payload)
}

// Readyz runs the dependency probes and reports aggregated readiness.
func (h *HealthHandlers) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h == nil || h.system == nil {
		httpx.WriteError(ctx, w, httpx.NewError("not_ready", "system service is unavailable", http.StatusServiceUnavailable))
		return
	}

	report, err := h.system.HealthReport(ctx)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("not_ready", "readiness probes failed", http.StatusServiceUnavailable))
		return
	}

	checks := make(map[string]any, len(report.Checks))
	for name, check := range report.Checks {
		entry := map[string]any{
			"status":     string(check.Status),
			"detail":     check.Detail,
			"latency_ms": check.Latency.Milliseconds(),
		}
		if check.Error != "" {
			entry["error"] = check.Error
		}
		checks[name] = entry
	}

	status := http.StatusOK
	if report.Status == domain.HealthStatusError {
		status = http.StatusServiceUnavailable
	}
	writeJSONResponse(w, status, map[string]any{
		"status": string(report.Status),
		"checks": checks,
	})
}
