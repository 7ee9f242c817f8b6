package principal

import (
	"fmt"

	"github.com/samber/lo"

	"antbox-backend/internal/domain/shared"
	"antbox-backend/pkg/errors"
)

// User is an identity record. Email is the stable identifier; the
// uuid exists so users can be addressed like any other record.
type User struct {
	UUID   string   `json:"uuid"`
	Email  string   `json:"email"`
	Name   string   `json:"name"`
	Group  string   `json:"group"`
	Groups []string `json:"groups,omitempty"`
}

// AllGroups returns the primary group followed by the secondary ones.
func (u User) AllGroups() []string {
	return lo.Uniq(append([]string{u.Group}, u.Groups...))
}

// Validate aggregates field-level failures.
func (u User) Validate() error {
	var errs []error
	if u.UUID == "" {
		errs = append(errs, fmt.Errorf("uuid: required"))
	}
	if !shared.IsValidEmail(u.Email) {
		errs = append(errs, fmt.Errorf("email: %q is not a valid address", u.Email))
	}
	if u.Name == "" {
		errs = append(errs, fmt.Errorf("name: required"))
	}
	if u.Group == "" {
		errs = append(errs, fmt.Errorf("group: required"))
	}
	if err := errors.NewValidationErrors(errs...); err != nil {
		return err
	}
	return nil
}

// Group is a named set of users referenced by uuid.
type Group struct {
	UUID        string `json:"uuid"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

// Validate aggregates field-level failures.
func (g Group) Validate() error {
	var errs []error
	if g.UUID == "" {
		errs = append(errs, fmt.Errorf("uuid: required"))
	}
	if g.Title == "" {
		errs = append(errs, fmt.Errorf("title: required"))
	}
	if err := errors.NewValidationErrors(errs...); err != nil {
		return err
	}
	return nil
}

// Builtin seed records. Present in every tenant, immutable, and
// recreated on startup regardless of the backing repository.
var (
	RootUser = User{
		UUID:  "--root--",
		Email: shared.RootUserEmail,
		Name:  "root",
		Group: shared.AdminsGroupUUID,
	}

	AnonymousUser = User{
		UUID:  "--anonymous--",
		Email: shared.AnonymousUserEmail,
		Name:  "anonymous",
		Group: shared.AnonymousGroupUUID,
	}

	LockSystemUser = User{
		UUID:  "--lock-system--",
		Email: shared.LockSystemUserEmail,
		Name:  "lock-system",
		Group: shared.AdminsGroupUUID,
	}

	WorkflowInstanceUser = User{
		UUID:  "--workflow-instance--",
		Email: shared.WorkflowInstanceUserEmail,
		Name:  "workflow-instance",
		Group: shared.AdminsGroupUUID,
	}

	AdminsGroup = Group{
		UUID:  shared.AdminsGroupUUID,
		Title: "Admins",
	}

	AnonymousGroup = Group{
		UUID:  shared.AnonymousGroupUUID,
		Title: "Anonymous",
	}
)

// BuiltinUsers returns fresh copies of the seed users.
func BuiltinUsers() []User {
	return []User{RootUser, AnonymousUser, LockSystemUser, WorkflowInstanceUser}
}

// BuiltinGroups returns fresh copies of the seed groups.
func BuiltinGroups() []Group {
	return []Group{AdminsGroup, AnonymousGroup}
}

// IsBuiltinUser reports whether the email names a seed user.
func IsBuiltinUser(email string) bool {
	return lo.SomeBy(BuiltinUsers(), func(u User) bool { return u.Email == email })
}

// IsBuiltinGroup reports whether the uuid names a seed group.
func IsBuiltinGroup(uuid string) bool {
	return lo.SomeBy(BuiltinGroups(), func(g Group) bool { return g.UUID == uuid })
}
