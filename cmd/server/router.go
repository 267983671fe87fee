package main

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"udyam/internal/platform/middleware"
	"udyam/pkg/platform/httputil"
)

type healthResponse struct {
	Status      string            `json:"status"`
	Timestamp   time.Time         `json:"timestamp"`
	Environment string            `json:"environment"`
	Checks      map[string]string `json:"checks,omitempty"`
}

func newRouter(a *app) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.CORS(a.cfg.Server.FrontendURL))
	r.Use(middleware.SecurityHeaders)
	r.Use(a.limitAPI)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Recovery(a.logger))
		r.Use(middleware.RequestID)
		r.Use(middleware.LatencyMiddleware(a.httpMetrics))
		r.Get("/health", a.handleHealth)
		r.Get("/api/schema", a.handleSchema)
	})
	r.Handle("/metrics", promhttp.HandlerFor(a.gatherer, promhttp.HandlerOpts{}))

	a.formSessions.Register(r)
	a.registrations.Register(r)
	return r
}

// limitAPI applies the API-wide limit to /api paths only, so health checks and
// metrics scrapes are never throttled.
func (a *app) limitAPI(next http.Handler) http.Handler {
	if a.apiLimit == nil {
		return next
	}
	limited := middleware.ClientMetadata(a.apiLimit(next))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/api/") {
			limited.ServeHTTP(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (a *app) handleHealth(w http.ResponseWriter, r *http.Request) {
	checks := a.health(r.Context())
	resp := healthResponse{
		Status:      "OK",
		Timestamp:   time.Now().UTC(),
		Environment: a.cfg.Server.Environment,
		Checks:      checks,
	}
	code := http.StatusOK
	for _, state := range checks {
		if state != "up" {
			resp.Status = "DEGRADED"
			code = http.StatusServiceUnavailable
		}
	}
	httputil.WriteJSON(w, code, resp)
}

func (a *app) handleSchema(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, a.schema)
}
