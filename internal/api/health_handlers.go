package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/ferrovax/gatehouse/internal/middleware"
)

// HealthChecker defines the interface for components that can be health
// checked.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// StoreSignal reports the last probed health of the local store.
type StoreSignal interface {
	Healthy() bool
}

// HealthHandlers provides health and readiness check endpoints.
type HealthHandlers struct {
	store  StoreSignal
	mirror HealthChecker
	cache  HealthChecker
	camera CameraSignal
}

// HealthHandlersConfig configures the health check handlers. All fields
// are optional; absent dependencies report ok.
type HealthHandlersConfig struct {
	Store  StoreSignal
	Mirror HealthChecker
	Cache  HealthChecker
	Camera CameraSignal
}

// NewHealthHandlers creates a new health check handler.
func NewHealthHandlers(config HealthHandlersConfig) *HealthHandlers {
	return &HealthHandlers{
		store:  config.Store,
		mirror: config.Mirror,
		cache:  config.Cache,
		camera: config.Camera,
	}
}

// HealthResponse represents the JSON response for health checks.
type HealthResponse struct {
	Status    string            `json:"status"`
	Checks    map[string]string `json:"checks"`
	Timestamp string            `json:"timestamp"`
}

// Health handles GET /health (liveness probe). Returns 200 if the process
// is alive and can serve requests.
func (h *HealthHandlers) Health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusMethodNotAllowed, ErrCodeBadRequest, "Method not allowed")
		return
	}

	response := HealthResponse{
		Status:    "healthy",
		Checks:    map[string]string{"runtime": "ok"},
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		slog.Error("failed to encode health response", "error", err)
	}
}

// Ready handles GET /ready (readiness probe). The local store gates
// readiness: without it no attendance can be written. Mirror and camera
// failures are reported but do not flip readiness, since a restart fixes
// neither a remote outage nor unplugged hardware.
func (h *HealthHandlers) Ready(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusMethodNotAllowed, ErrCodeBadRequest, "Method not allowed")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks := make(map[string]string)
	healthy := true

	if h.store != nil {
		if h.store.Healthy() {
			checks["store"] = "ok"
		} else {
			checks["store"] = "error"
			healthy = false
		}
	} else {
		checks["store"] = "ok"
	}

	if h.mirror != nil {
		if err := h.mirror.HealthCheck(ctx); err != nil {
			checks["mirror"] = "error"
			slog.WarnContext(ctx, "mirror health check failed", "error", err)
		} else {
			checks["mirror"] = "ok"
		}
	} else {
		checks["mirror"] = "ok"
	}

	if h.cache != nil {
		if err := h.cache.HealthCheck(ctx); err != nil {
			checks["cache"] = "error"
			slog.WarnContext(ctx, "cache health check failed", "error", err)
		} else {
			checks["cache"] = "ok"
		}
	} else {
		checks["cache"] = "ok"
	}

	if h.camera != nil {
		if h.camera.CameraAvailable() {
			checks["camera"] = "ok"
		} else {
			checks["camera"] = "error"
		}
	} else {
		checks["camera"] = "ok"
	}

	status := "healthy"
	statusCode := http.StatusOK
	if !healthy {
		status = "unhealthy"
		statusCode = http.StatusServiceUnavailable
	}

	response := HealthResponse{
		Status:    status,
		Checks:    checks,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		slog.Error("failed to encode readiness response", "error", err)
	}
}
