// Package users implements identity CRUD atop the configuration
// repositories. Builtin users and groups are seeded on startup and
// can never be altered or removed.
package users

import (
	"context"

	"go.uber.org/zap"

	"antbox-backend/internal/domain/principal"
	"antbox-backend/internal/domain/shared"
	"antbox-backend/internal/repository"
	"antbox-backend/pkg/errors"
)

// Service manages user and group records for one tenant.
type Service struct {
	users  repository.UserRepository
	groups repository.GroupRepository
	logger *zap.Logger
}

// NewService wires the identity service.
func NewService(users repository.UserRepository, groups repository.GroupRepository, logger *zap.Logger) *Service {
	return &Service{users: users, groups: groups, logger: logger}
}

// Seed materializes the builtin users and groups. Idempotent: records
// that already exist are left alone.
func (s *Service) Seed(ctx context.Context) error {
	for _, g := range principal.BuiltinGroups() {
		if err := s.groups.Add(ctx, g); err != nil && !errors.IsConflict(err) {
			return err
		}
	}
	for _, u := range principal.BuiltinUsers() {
		if err := s.users.Add(ctx, u); err != nil && !errors.IsConflict(err) {
			return err
		}
	}
	return nil
}

// CreateUser registers a new identity. Admin only; the referenced
// groups must exist.
func (s *Service) CreateUser(ctx context.Context, auth principal.AuthenticationContext, u principal.User) (principal.User, error) {
	if !auth.IsAdmin() {
		return principal.User{}, errors.NewForbiddenError("only admins may create users")
	}
	if u.UUID == "" {
		u.UUID = shared.NewUUID()
	}
	if principal.IsBuiltinUser(u.Email) || shared.IsBuiltinID(u.UUID) {
		return principal.User{}, errors.NewBadRequestError("builtin identifiers are reserved")
	}
	if err := u.Validate(); err != nil {
		return principal.User{}, err
	}
	if err := s.checkGroupsExist(ctx, u.AllGroups()); err != nil {
		return principal.User{}, err
	}
	if err := s.users.Add(ctx, u); err != nil {
		return principal.User{}, err
	}
	s.logger.Info("user created", zap.String("email", u.Email))
	return u, nil
}

// GetUser resolves a user by uuid or email.
func (s *Service) GetUser(ctx context.Context, auth principal.AuthenticationContext, id string) (principal.User, error) {
	if !auth.IsAdmin() && auth.Principal.Email != id {
		u, err := s.users.GetByUUID(ctx, id)
		if err == nil && u.Email == auth.Principal.Email {
			return u, nil
		}
		return principal.User{}, errors.NewForbiddenError("users may only read their own record")
	}
	u, err := s.users.GetByUUID(ctx, id)
	if err == nil {
		return u, nil
	}
	if !errors.IsNotFound(err) {
		return principal.User{}, err
	}
	return s.users.GetByEmail(ctx, id)
}

// ListUsers returns every identity. Admin only.
func (s *Service) ListUsers(ctx context.Context, auth principal.AuthenticationContext) ([]principal.User, error) {
	if !auth.IsAdmin() {
		return nil, errors.NewForbiddenError("only admins may list users")
	}
	return s.users.List(ctx)
}

// UpdateUser changes name or group membership. Email never changes.
// Admins may update anyone; everyone may update their own record, but
// group changes stay admin-only.
func (s *Service) UpdateUser(ctx context.Context, auth principal.AuthenticationContext, uuid string, update principal.User) (principal.User, error) {
	current, err := s.users.GetByUUID(ctx, uuid)
	if err != nil {
		return principal.User{}, err
	}
	if principal.IsBuiltinUser(current.Email) {
		return principal.User{}, errors.NewBadRequestError("builtin users are immutable")
	}

	self := auth.Principal.Email == current.Email
	if !auth.IsAdmin() && !self {
		return principal.User{}, errors.NewForbiddenError("users may only update their own record")
	}
	if update.Email != "" && update.Email != current.Email {
		return principal.User{}, errors.NewBadRequestError("email cannot be changed")
	}

	updated := current
	if update.Name != "" {
		updated.Name = update.Name
	}
	if update.Group != "" || update.Groups != nil {
		if !auth.IsAdmin() {
			return principal.User{}, errors.NewForbiddenError("only admins may change group membership")
		}
		if update.Group != "" {
			updated.Group = update.Group
		}
		updated.Groups = update.Groups
		if err := s.checkGroupsExist(ctx, updated.AllGroups()); err != nil {
			return principal.User{}, err
		}
	}

	if err := updated.Validate(); err != nil {
		return principal.User{}, err
	}
	if err := s.users.Update(ctx, updated); err != nil {
		return principal.User{}, err
	}
	return updated, nil
}

// DeleteUser removes an identity. Admin only; builtins never go.
func (s *Service) DeleteUser(ctx context.Context, auth principal.AuthenticationContext, uuid string) error {
	if !auth.IsAdmin() {
		return errors.NewForbiddenError("only admins may delete users")
	}
	current, err := s.users.GetByUUID(ctx, uuid)
	if err != nil {
		return err
	}
	if principal.IsBuiltinUser(current.Email) {
		return errors.NewBadRequestError("builtin users cannot be deleted")
	}
	return s.users.Delete(ctx, uuid)
}

// ContextFor builds the authentication context of a verified email,
// resolving group membership from the stored record. Unknown emails
// authenticate as themselves with no groups.
func (s *Service) ContextFor(ctx context.Context, tenant, email string, extraGroups []string) principal.AuthenticationContext {
	groups := extraGroups
	if u, err := s.users.GetByEmail(ctx, email); err == nil {
		groups = append(u.AllGroups(), extraGroups...)
	}
	return principal.New(tenant, email, groups...)
}

// CreateGroup registers a new group. Admin only.
func (s *Service) CreateGroup(ctx context.Context, auth principal.AuthenticationContext, g principal.Group) (principal.Group, error) {
	if !auth.IsAdmin() {
		return principal.Group{}, errors.NewForbiddenError("only admins may create groups")
	}
	if g.UUID == "" {
		g.UUID = shared.NewUUID()
	}
	if shared.IsBuiltinID(g.UUID) {
		return principal.Group{}, errors.NewBadRequestError("builtin identifiers are reserved")
	}
	if err := g.Validate(); err != nil {
		return principal.Group{}, err
	}
	if err := s.groups.Add(ctx, g); err != nil {
		return principal.Group{}, err
	}
	s.logger.Info("group created", zap.String("uuid", g.UUID))
	return g, nil
}

// GetGroup resolves a group by uuid.
func (s *Service) GetGroup(ctx context.Context, _ principal.AuthenticationContext, uuid string) (principal.Group, error) {
	return s.groups.GetByUUID(ctx, uuid)
}

// ListGroups returns every group. Readable by any authenticated user.
func (s *Service) ListGroups(ctx context.Context, auth principal.AuthenticationContext) ([]principal.Group, error) {
	if !auth.IsAuthenticated() {
		return nil, errors.NewForbiddenError("")
	}
	return s.groups.List(ctx)
}

// UpdateGroup renames a group. Admin only; builtins never change.
func (s *Service) UpdateGroup(ctx context.Context, auth principal.AuthenticationContext, uuid string, update principal.Group) (principal.Group, error) {
	if !auth.IsAdmin() {
		return principal.Group{}, errors.NewForbiddenError("only admins may update groups")
	}
	if principal.IsBuiltinGroup(uuid) {
		return principal.Group{}, errors.NewBadRequestError("builtin groups are immutable")
	}
	current, err := s.groups.GetByUUID(ctx, uuid)
	if err != nil {
		return principal.Group{}, err
	}
	if update.Title != "" {
		current.Title = update.Title
	}
	current.Description = update.Description
	if err := current.Validate(); err != nil {
		return principal.Group{}, err
	}
	if err := s.groups.Update(ctx, current); err != nil {
		return principal.Group{}, err
	}
	return current, nil
}

// DeleteGroup removes a group. Admin only; builtins never go.
func (s *Service) DeleteGroup(ctx context.Context, auth principal.AuthenticationContext, uuid string) error {
	if !auth.IsAdmin() {
		return errors.NewForbiddenError("only admins may delete groups")
	}
	if principal.IsBuiltinGroup(uuid) {
		return errors.NewBadRequestError("builtin groups cannot be deleted")
	}
	if _, err := s.groups.GetByUUID(ctx, uuid); err != nil {
		return err
	}
	return s.groups.Delete(ctx, uuid)
}

// GroupExists reports whether a group uuid resolves.
func (s *Service) GroupExists(ctx context.Context, uuid string) (bool, error) {
	_, err := s.groups.GetByUUID(ctx, uuid)
	if err == nil {
		return true, nil
	}
	if errors.IsNotFound(err) {
		return false, nil
	}
	return false, err
}

func (s *Service) checkGroupsExist(ctx context.Context, uuids []string) error {
	for _, uuid := range uuids {
		if _, err := s.groups.GetByUUID(ctx, uuid); err != nil {
			if errors.IsNotFound(err) {
				return errors.NewGroupNotFoundError(uuid)
			}
			return err
		}
	}
	return nil
}
