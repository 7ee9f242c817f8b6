// Package principal models the acting identity: who is calling, which
// groups back them, which tenant they operate in, and through which
// entry mode the call arrived.
package principal

import (
	"github.com/samber/lo"

	"antbox-backend/internal/domain/shared"
)

// Mode distinguishes how an operation entered the system. Direct calls
// come from the API surface, Action calls from feature invocations,
// and AI calls from agent tooling.
type Mode string

const (
	ModeDirect Mode = "Direct"
	ModeAction Mode = "Action"
	ModeAI     Mode = "AI"
)

// Principal is the authenticated actor.
type Principal struct {
	Email  string   `json:"email"`
	Groups []string `json:"groups"`
}

// AuthenticationContext binds a principal to a tenant and entry mode.
// Values are copied around freely; treat as immutable.
type AuthenticationContext struct {
	Tenant    string    `json:"tenant"`
	Principal Principal `json:"principal"`
	Mode      Mode      `json:"mode"`
}

// New builds a Direct-mode context for an authenticated principal.
func New(tenant, email string, groups ...string) AuthenticationContext {
	return AuthenticationContext{
		Tenant:    tenant,
		Principal: Principal{Email: email, Groups: groups},
		Mode:      ModeDirect,
	}
}

// Anonymous builds the context used when no credential is presented.
func Anonymous(tenant string) AuthenticationContext {
	return AuthenticationContext{
		Tenant:    tenant,
		Principal: Principal{Email: shared.AnonymousUserEmail, Groups: []string{shared.AnonymousGroupUUID}},
		Mode:      ModeDirect,
	}
}

// Elevated builds the root context internal subscribers run under.
func Elevated(tenant string) AuthenticationContext {
	return AuthenticationContext{
		Tenant:    tenant,
		Principal: Principal{Email: shared.RootUserEmail, Groups: []string{shared.AdminsGroupUUID}},
		Mode:      ModeAction,
	}
}

// ActionFor builds an action-mode context on behalf of the given user,
// used when folder hooks replay the event author.
func ActionFor(tenant, email string, groups ...string) AuthenticationContext {
	return AuthenticationContext{
		Tenant:    tenant,
		Principal: Principal{Email: email, Groups: groups},
		Mode:      ModeAction,
	}
}

// WithMode returns a copy carrying a different entry mode.
func (c AuthenticationContext) WithMode(mode Mode) AuthenticationContext {
	c.Mode = mode
	return c
}

// WithGroups returns a copy whose principal carries the extra groups.
// Used for runAs elevation; the original context is untouched.
func (c AuthenticationContext) WithGroups(extra ...string) AuthenticationContext {
	groups := make([]string, 0, len(c.Principal.Groups)+len(extra))
	groups = append(groups, c.Principal.Groups...)
	for _, g := range extra {
		if !lo.Contains(groups, g) {
			groups = append(groups, g)
		}
	}
	c.Principal = Principal{Email: c.Principal.Email, Groups: groups}
	return c
}

// IsRoot reports whether the principal is the builtin root user.
func (c AuthenticationContext) IsRoot() bool {
	return c.Principal.Email == shared.RootUserEmail
}

// IsAdmin reports whether the principal is root or an admins member.
func (c AuthenticationContext) IsAdmin() bool {
	return c.IsRoot() || lo.Contains(c.Principal.Groups, shared.AdminsGroupUUID)
}

// IsAnonymous reports whether the principal carries no real identity.
func (c AuthenticationContext) IsAnonymous() bool {
	return c.Principal.Email == "" || c.Principal.Email == shared.AnonymousUserEmail
}

// IsAuthenticated reports whether a real principal is present.
func (c AuthenticationContext) IsAuthenticated() bool {
	return !c.IsAnonymous()
}

// HasGroup reports membership in a single group.
func (c AuthenticationContext) HasGroup(uuid string) bool {
	return lo.Contains(c.Principal.Groups, uuid)
}

// SharesGroupWith reports whether any of the principal's groups appear
// in the given set.
func (c AuthenticationContext) SharesGroupWith(groups []string) bool {
	return lo.Some(groups, c.Principal.Groups)
}
