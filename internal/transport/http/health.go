package http

import (
	"context"
	"log/slog"
	"net/http"
	"sort"
	"time"
)

// HealthCheck probes one dependency.
type HealthCheck func(ctx context.Context) error

type HealthResult struct {
	Status string `json:"status"`
}

// HealthResponse maps each dependency name to its result.
type HealthResponse map[string]HealthResult

func handleHealth(logger *slog.Logger, checks map[string]HealthCheck) http.HandlerFunc {
	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
	}
	sort.Strings(names)

	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		results := HealthResponse{}
		status := http.StatusOK
		for _, name := range names {
			if err := checks[name](ctx); err != nil {
				logger.Error("health check failed", "name", name, "error", err)
				results[name] = HealthResult{Status: "error"}
				status = http.StatusServiceUnavailable
				continue
			}
			results[name] = HealthResult{Status: "ok"}
		}
		writeJSON(w, status, results)
	}
}
