// Package rest exposes the /v2 HTTP surface: one route family per
// collection, tenant resolution and authentication in middleware, and
// the error taxonomy mapped onto statuses.
package rest

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"antbox-backend/internal/metrics"
	"antbox-backend/internal/service/agents"
	"antbox-backend/internal/service/apikeys"
	"antbox-backend/internal/service/aspects"
	auditsvc "antbox-backend/internal/service/audit"
	"antbox-backend/internal/service/features"
	"antbox-backend/internal/service/nodes"
	"antbox-backend/internal/service/users"
	"antbox-backend/pkg/auth"
)

// Services bundles the per-tenant service set the handlers dispatch
// into.
type Services struct {
	Nodes    *nodes.Service
	Features *features.Service
	Users    *users.Service
	Aspects  *aspects.Service
	APIKeys  *apikeys.Service
	Agents   *agents.Service
	Audit    *auditsvc.Service

	// RootPasswordHash is the SHA-256 hex digest the login endpoint
	// compares against.
	RootPasswordHash string
}

// Registry resolves tenant names to their service bundles.
type Registry interface {
	Get(tenant string) (*Services, bool)
	DefaultTenant() string
}

// Router builds the HTTP handler.
type Router struct {
	registry Registry
	jwt      *auth.JWT
	logger   *zap.Logger
	metrics  *metrics.Metrics

	allowedOrigins []string
}

// NewRouter wires the router.
func NewRouter(registry Registry, jwt *auth.JWT, logger *zap.Logger, m *metrics.Metrics, allowedOrigins []string) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	return &Router{
		registry:       registry,
		jwt:            jwt,
		logger:         logger,
		metrics:        m,
		allowedOrigins: allowedOrigins,
	}
}

// Setup configures all routes and middleware.
func (rt *Router) Setup() http.Handler {
	router := chi.NewRouter()

	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.RealIP)
	router.Use(chimiddleware.Recoverer)
	router.Use(rt.observe)

	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   rt.allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", apiKeyHeader, tenantHeader, "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	router.Get("/healthz", rt.healthCheck)
	router.Get("/readyz", rt.readinessCheck)
	if rt.metrics != nil {
		router.Method(http.MethodGet, "/metrics",
			promhttp.HandlerFor(rt.metrics.Registry(), promhttp.HandlerOpts{}))
	}

	router.Route("/v2", func(r chi.Router) {
		r.Use(rt.authenticate)

		r.Post("/auth/login", rt.login)

		r.Route("/nodes", func(r chi.Router) {
			h := newNodeHandler(rt.logger)
			r.Post("/", h.create)
			r.Get("/", h.list)
			r.Post("/-/upload", h.upload)
			r.Post("/-/find", h.find)
			r.Get("/{uuid}", h.get)
			r.Patch("/{uuid}", h.update)
			r.Delete("/{uuid}", h.delete)
			r.Post("/{uuid}/-/upload", h.updateFile)
			r.Get("/{uuid}/-/export", h.export)
			r.Get("/{uuid}/-/evaluate", h.evaluate)
			r.Get("/{uuid}/-/breadcrumbs", h.breadcrumbs)
			r.Post("/{uuid}/-/copy", h.copy)
			r.Post("/{uuid}/-/duplicate", h.duplicate)
			r.Post("/{uuid}/-/lock", h.lock)
			r.Post("/{uuid}/-/unlock", h.unlock)
		})

		r.Route("/features", func(r chi.Router) {
			h := newFeatureHandler(rt.logger)
			r.Post("/", h.createOrReplace)
			r.Get("/", h.list)
			r.Get("/-/actions", h.listActions)
			r.Get("/-/extensions", h.listExtensions)
			r.Get("/-/ai-tools", h.listAITools)
			r.Get("/{uuid}", h.get)
			r.Delete("/{uuid}", h.delete)
			r.Get("/{uuid}/-/export", h.export)
			r.Post("/{uuid}/-/run", h.run)
			r.Post("/{uuid}/-/ai-tool", h.runAITool)
			r.HandleFunc("/{uuid}/-/extension", h.runExtension)
		})

		r.Route("/users", func(r chi.Router) {
			h := newUserHandler(rt.logger)
			r.Post("/", h.create)
			r.Get("/", h.list)
			r.Get("/{uuid}", h.get)
			r.Patch("/{uuid}", h.update)
			r.Delete("/{uuid}", h.delete)
		})

		r.Route("/groups", func(r chi.Router) {
			h := newGroupHandler(rt.logger)
			r.Post("/", h.create)
			r.Get("/", h.list)
			r.Get("/{uuid}", h.get)
			r.Patch("/{uuid}", h.update)
			r.Delete("/{uuid}", h.delete)
		})

		r.Route("/api-keys", func(r chi.Router) {
			h := newAPIKeyHandler(rt.logger)
			r.Post("/", h.create)
			r.Get("/", h.list)
			r.Get("/{uuid}", h.get)
			r.Delete("/{uuid}", h.delete)
		})

		r.Route("/aspects", func(r chi.Router) {
			h := newAspectHandler(rt.logger)
			r.Post("/", h.createOrReplace)
			r.Get("/", h.list)
			r.Get("/{uuid}", h.get)
			r.Delete("/{uuid}", h.delete)
		})

		r.Route("/agents", func(r chi.Router) {
			h := newAgentHandler(rt.logger)
			r.Post("/", h.create)
			r.Get("/", h.list)
			r.Post("/rag/-/chat", h.ragChat)
			r.Get("/{uuid}", h.get)
			r.Patch("/{uuid}", h.update)
			r.Delete("/{uuid}", h.delete)
			r.Post("/{uuid}/-/chat", h.chat)
			r.Post("/{uuid}/-/answer", h.answer)
		})

		r.Route("/audit", func(r chi.Router) {
			h := newAuditHandler(rt.logger)
			r.Get("/streams", h.listStreams)
			r.Get("/streams/{uuid}", h.getStream)
			r.Get("/deleted", h.listDeleted)
		})
	})

	return router
}

func (rt *Router) healthCheck(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) readinessCheck(w http.ResponseWriter, _ *http.Request) {
	if _, ok := rt.registry.Get(rt.registry.DefaultTenant()); !ok {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "starting"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
