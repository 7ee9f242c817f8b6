package rest

import (
	"context"

	"antbox-backend/internal/domain/principal"
)

type contextKey int

const (
	authKey contextKey = iota
	servicesKey
)

// withAuth stores the resolved authentication context on the request.
func withAuth(ctx context.Context, auth principal.AuthenticationContext) context.Context {
	return context.WithValue(ctx, authKey, auth)
}

// authFrom returns the authentication context placed by the
// authentication middleware. Handlers run behind it, so the zero
// value never surfaces in practice.
func authFrom(ctx context.Context) principal.AuthenticationContext {
	if auth, ok := ctx.Value(authKey).(principal.AuthenticationContext); ok {
		return auth
	}
	return principal.AuthenticationContext{}
}

func withServices(ctx context.Context, s *Services) context.Context {
	return context.WithValue(ctx, servicesKey, s)
}

// servicesFrom returns the tenant service bundle resolved by the
// tenant middleware.
func servicesFrom(ctx context.Context) *Services {
	s, _ := ctx.Value(servicesKey).(*Services)
	return s
}
