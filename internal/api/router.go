package api

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ferrovax/gatehouse/internal/auth"
	"github.com/ferrovax/gatehouse/internal/middleware"
)

// RouterConfig collects the handlers and per-route middleware dependencies.
type RouterConfig struct {
	Status     *StatusHandlers
	Attendance *AttendanceHandlers
	Students   *StudentHandlers
	Auth       *AuthHandlers
	Events     *EventHandlers
	Health     *HealthHandlers

	// JWT guards the admin registry CRUD.
	JWT *auth.JWTService

	// RateLimitStore and LoginLimit throttle the login endpoint. Both
	// optional; nil disables the throttle.
	RateLimitStore middleware.RateLimitStore
	LoginLimit     middleware.RateLimitConfig

	// MetricsRegistry serves GET /metrics. Nil disables the endpoint.
	MetricsRegistry *prometheus.Registry
}

// NewRouter builds the ServeMux with all routes registered. Process-wide
// middleware (request ID, logging, HTTP metrics) wraps the returned
// handler at the server level.
func NewRouter(cfg RouterConfig) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/door-status", cfg.Status.DoorStatus)
	mux.HandleFunc("/api/recognition-status", cfg.Status.RecognitionStatus)
	mux.HandleFunc("/api/attendance", cfg.Attendance.Recent)
	mux.HandleFunc("/api/stats", cfg.Attendance.Stats)

	login := http.Handler(http.HandlerFunc(cfg.Auth.Login))
	if cfg.RateLimitStore != nil {
		login = middleware.RateLimiter(cfg.RateLimitStore, cfg.LoginLimit, middleware.IPKeyFunc())(login)
	}
	mux.Handle("/api/login", login)

	requireAdmin := auth.RequireAdmin(cfg.JWT)
	mux.Handle("/api/students", requireAdmin(http.HandlerFunc(cfg.Students.Collection)))
	mux.Handle("/api/students/", requireAdmin(http.HandlerFunc(cfg.Students.Item)))

	mux.HandleFunc("/ws/events", cfg.Events.Subscribe)

	mux.HandleFunc("/health", cfg.Health.Health)
	mux.HandleFunc("/ready", cfg.Health.Ready)

	if cfg.MetricsRegistry != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(cfg.MetricsRegistry, promhttp.HandlerOpts{}))
	}

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeNotFound)
			WriteError(w, ctx, http.StatusNotFound, ErrCodeNotFound, "The requested resource was not found")
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"service": "gatehouse", "version": "0.1.0"})
	})

	return mux
}
