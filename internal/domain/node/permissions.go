package node

import (
	"fmt"

	"github.com/samber/lo"

	"antbox-backend/pkg/errors"
)

// Permission is one of the four actions a folder can grant.
type Permission string

const (
	PermissionRead   Permission = "Read"
	PermissionWrite  Permission = "Write"
	PermissionDelete Permission = "Delete"
	PermissionExport Permission = "Export"
)

var allPermissions = []Permission{PermissionRead, PermissionWrite, PermissionDelete, PermissionExport}

// Valid reports whether the value is part of the closed action set.
func (p Permission) Valid() bool {
	return lo.Contains(allPermissions, p)
}

// Permissions records what each principal category may do inside a
// folder. Advanced grants are keyed by group uuid. The wire shape is
// part of the API contract.
type Permissions struct {
	Anonymous     []Permission            `json:"anonymous"`
	Authenticated []Permission            `json:"authenticated"`
	Group         []Permission            `json:"group"`
	Advanced      map[string][]Permission `json:"advanced,omitempty"`
}

// DefaultPermissions is what folders get when the creator omits a
// permission block: readable by any authenticated user, writable by
// the folder's primary group.
func DefaultPermissions() *Permissions {
	return &Permissions{
		Anonymous:     []Permission{},
		Authenticated: []Permission{PermissionRead},
		Group:         []Permission{PermissionRead, PermissionWrite, PermissionExport},
		Advanced:      map[string][]Permission{},
	}
}

// Validate rejects unknown permission values.
func (p *Permissions) Validate() error {
	var errs []error
	check := func(category string, set []Permission) {
		for _, perm := range set {
			if !perm.Valid() {
				errs = append(errs, fmt.Errorf("permissions.%s: unknown permission %q", category, perm))
			}
		}
	}
	check("anonymous", p.Anonymous)
	check("authenticated", p.Authenticated)
	check("group", p.Group)
	for group, set := range p.Advanced {
		check("advanced."+group, set)
	}
	if err := errors.NewValidationErrors(errs...); err != nil {
		return err
	}
	return nil
}

// AnonymousAllows reports whether unauthenticated callers get the action.
func (p *Permissions) AnonymousAllows(a Permission) bool {
	return lo.Contains(p.Anonymous, a)
}

// AuthenticatedAllows reports whether any signed-in caller gets the action.
func (p *Permissions) AuthenticatedAllows(a Permission) bool {
	return lo.Contains(p.Authenticated, a)
}

// GroupAllows reports whether the folder's primary group gets the action.
func (p *Permissions) GroupAllows(a Permission) bool {
	return lo.Contains(p.Group, a)
}

// AdvancedAllows reports whether any of the caller's groups has an
// advanced grant for the action.
func (p *Permissions) AdvancedAllows(groups []string, a Permission) bool {
	for _, g := range groups {
		if lo.Contains(p.Advanced[g], a) {
			return true
		}
	}
	return false
}

// Clone deep-copies the permission block.
func (p *Permissions) Clone() *Permissions {
	out := &Permissions{
		Anonymous:     append([]Permission(nil), p.Anonymous...),
		Authenticated: append([]Permission(nil), p.Authenticated...),
		Group:         append([]Permission(nil), p.Group...),
	}
	if p.Advanced != nil {
		out.Advanced = make(map[string][]Permission, len(p.Advanced))
		for k, v := range p.Advanced {
			out.Advanced[k] = append([]Permission(nil), v...)
		}
	}
	return out
}
