package main

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"labtrail/internal/history/handler"
	"labtrail/internal/history/render"
	"labtrail/internal/platform/metrics"
	"labtrail/pkg/platform/httputil"
	"labtrail/pkg/platform/middleware/actor"
	"labtrail/pkg/platform/middleware/request"
	"labtrail/pkg/platform/middleware/requesttime"
)

type routerDeps struct {
	service       handler.Service
	profiles      handler.ProfileLister
	view          render.ViewContext
	registry      *prometheus.Registry
	health        func(ctx context.Context) error
	logger        *slog.Logger
	jwtSigningKey string
}

func newRouter(deps routerDeps) http.Handler {
	r := chi.NewRouter()
	r.Use(request.RequestID)
	r.Use(requesttime.Middleware)
	r.Use(actor.Middleware(actor.NewVerifier(deps.jwtSigningKey), deps.logger))

	r.Get("/health", healthHandler(deps.health))
	r.Method(http.MethodGet, "/metrics", metrics.Handler(deps.registry))

	handler.New(deps.service, deps.profiles, deps.logger, deps.view).Register(r)
	return r
}

func healthHandler(check func(ctx context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := check(ctx); err != nil {
			httputil.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
			return
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
