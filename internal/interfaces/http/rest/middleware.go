package rest

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"antbox-backend/internal/domain/principal"
	"antbox-backend/pkg/auth"
	"antbox-backend/pkg/errors"
)

// apiKeyHeader carries an API key secret as an alternative to a
// bearer token.
const apiKeyHeader = "Api-Key"

// tenantHeader selects a tenant for unauthenticated and API key
// requests; JWT requests carry the tenant in their claims.
const tenantHeader = "X-Tenant"

// authenticate resolves the tenant bundle and the caller's principal.
// Order: JWT claims, API key, anonymous. A present-but-invalid
// credential is rejected instead of degrading to anonymous.
func (rt *Router) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var claims *auth.Claims
		if token := bearerToken(r); token != "" {
			verified, err := rt.jwt.Verify(token)
			if err != nil {
				writeError(w, rt.logger, err)
				return
			}
			claims = verified
		}

		tenant := rt.registry.DefaultTenant()
		if claims != nil && claims.Tenant != "" {
			tenant = claims.Tenant
		} else if h := r.Header.Get(tenantHeader); h != "" {
			tenant = h
		}

		bundle, ok := rt.registry.Get(tenant)
		if !ok {
			writeError(w, rt.logger, errors.NewUnauthorizedError("unknown tenant: "+tenant))
			return
		}

		ctx := r.Context()
		var authCtx principal.AuthenticationContext
		switch {
		case claims != nil:
			authCtx = bundle.Users.ContextFor(ctx, tenant, claims.Email, claims.Groups)
		case r.Header.Get(apiKeyHeader) != "":
			resolved, err := bundle.APIKeys.Authenticate(ctx, tenant, r.Header.Get(apiKeyHeader))
			if err != nil {
				writeError(w, rt.logger, err)
				return
			}
			authCtx = resolved
		default:
			authCtx = principal.Anonymous(tenant)
		}

		ctx = withServices(withAuth(ctx, authCtx), bundle)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return ""
}

// observe opens a span, logs the request, and feeds the HTTP metrics
// vectors. The span context flows into every service call downstream.
func (rt *Router) observe(next http.Handler) http.Handler {
	tracer := otel.Tracer("antbox-http")
	propagator := otel.GetTextMapPropagator()

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)

		ctx := propagator.Extract(r.Context(), propagation.HeaderCarrier(r.Header))
		ctx, span := tracer.Start(ctx, r.Method+" "+r.URL.Path,
			trace.WithSpanKind(trace.SpanKindServer))

		next.ServeHTTP(ww, r.WithContext(ctx))

		elapsed := time.Since(start)
		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = r.URL.Path
		}

		span.SetAttributes(
			attribute.String("http.route", route),
			attribute.Int("http.status_code", ww.Status()),
		)
		span.End()

		rt.logger.Info("http request",
			zap.String("method", r.Method),
			zap.String("route", route),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", elapsed),
			zap.String("requestId", chimiddleware.GetReqID(r.Context())))

		if rt.metrics != nil {
			rt.metrics.HTTPRequests.WithLabelValues(r.Method, route, strconv.Itoa(ww.Status())).Inc()
			rt.metrics.HTTPDuration.WithLabelValues(r.Method, route).Observe(elapsed.Seconds())
		}
	})
}
