// Package httpapi exposes the multi-tenant HTTP API over the core
// engines: container lifecycle, autoscaling policies, load tests
// (including an SSE progress stream), billing, and monitoring. Routing
// and middleware composition is grounded on
// volaticloud/cmd/server/main.go's chi + go-chi/cors wiring.
package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"classroomd/internal/autoscaler"
	"classroomd/internal/billing"
	"classroomd/internal/docker"
	"classroomd/internal/identity"
	"classroomd/internal/loadtest"
	"classroomd/internal/logger"
	"classroomd/internal/store"
)

// Deps are every collaborator the router needs to build handlers.
type Deps struct {
	Store       store.Store
	Driver      *docker.Client
	Tokens      *identity.TokenManager
	Autoscaler  *autoscaler.Engine
	LoadTest    *loadtest.Engine
	Billing     *billing.Engine
	FrontendURL string
	BaseLogger  *zap.Logger
}

// NewRouter builds the full chi.Router for the process.
func NewRouter(d Deps) http.Handler {
	registry := prometheus.NewRegistry()
	registry.MustRegister(metricsCollectors()...)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(d.BaseLogger))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{d.FrontendURL},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	auth := &authHandlers{store: d.Store, tokens: d.Tokens}
	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", auth.register)
		r.Post("/login", auth.login)
		r.Post("/verify", auth.verify)
		r.Post("/reset-password", auth.resetPassword)
	})

	containers := &containerHandlers{store: d.Store, driver: d.Driver}
	scaling := &autoscalingHandlers{store: d.Store, engine: d.Autoscaler}
	lt := &loadtestHandlers{store: d.Store, engine: d.LoadTest}
	billingH := &billingHandlers{store: d.Store, engine: d.Billing}
	monitoring := &monitoringHandlers{store: d.Store}

	r.Group(func(r chi.Router) {
		r.Use(identity.RequireAuth(d.Tokens))

		r.Route("/containers", func(r chi.Router) {
			r.Post("/deploy", containers.deploy)
			r.Get("/", containers.list)
			r.Post("/{id}/start", containers.transition("start"))
			r.Post("/{id}/stop", containers.transition("stop"))
			r.Delete("/{id}", containers.delete)
		})

		r.Route("/autoscaling", func(r chi.Router) {
			r.Post("/policies", scaling.createPolicy)
			r.Get("/policies", scaling.listPolicies)
			r.Put("/policies/{id}", scaling.updatePolicy)
			r.Delete("/policies/{id}", scaling.deletePolicy)
			r.Post("/policies/{id}/toggle", scaling.togglePolicy)
			r.Get("/events", scaling.listEvents)
			r.Post("/evaluate-now", scaling.evaluateNow)
		})

		r.Route("/loadtest", func(r chi.Router) {
			r.Post("/start", lt.start)
			r.Get("/{id}", lt.get)
			r.Get("/{id}/metrics/stream", lt.stream)
			r.Delete("/{id}", lt.cancel)
			r.Get("/history", lt.history)
		})

		r.Route("/billing", func(r chi.Router) {
			r.Get("/pricing-models", billingH.pricingModels)
			r.Post("/real-time/calculate", billingH.realTimeCalculate)
			r.Post("/scenario/simulate", billingH.simulate)
			r.Get("/usage-history/{id}", billingH.usageHistory)
		})

		r.Route("/monitoring", func(r chi.Router) {
			r.Get("/overview", monitoring.overview)
			r.Get("/metrics", monitoring.metrics(registry))
		})
	})

	return r
}

// requestLogger logs one line per request with the zap logger stored in
// context, grounded on logger.WithFields/WithComponent — the same
// context-carried-logger convention internal/logger defines for
// background loops, applied here per HTTP request instead of per tick.
// base seeds the root context's logger before any request arrives (set
// via http.Server.BaseContext in cmd/classroomd); this middleware only
// adds the per-request fields on top of whatever logger is already in
// the incoming context.
func requestLogger(base *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ctx := logger.WithFields(r.Context(), zap.String("request_id", middleware.GetReqID(r.Context())))

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			logger.GetLogger(ctx).Info("http request",
				zap.String("method", r.Method), zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()), zap.Duration("duration", time.Since(start)))
		})
	}
}
