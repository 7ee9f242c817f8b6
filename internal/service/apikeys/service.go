// Package apikeys manages secret-based principals. Keys are minted
// with a generated secret and grant the authority of their group; the
// authentication layer resolves presented secrets through GetBySecret.
package apikeys

import (
	"context"

	"go.uber.org/zap"

	"antbox-backend/internal/domain/apikey"
	"antbox-backend/internal/domain/principal"
	"antbox-backend/internal/repository"
	"antbox-backend/pkg/errors"
)

// Service manages the API keys of one tenant.
type Service struct {
	keys   repository.APIKeyRepository
	groups repository.GroupRepository
	logger *zap.Logger
}

// NewService wires the API key service.
func NewService(keys repository.APIKeyRepository, groups repository.GroupRepository, logger *zap.Logger) *Service {
	return &Service{keys: keys, groups: groups, logger: logger}
}

// Create mints a key for a group. Admin only. The response is the
// only time the full secret is ever returned.
func (s *Service) Create(ctx context.Context, auth principal.AuthenticationContext, group, description string) (apikey.APIKey, error) {
	if !auth.IsAdmin() {
		return apikey.APIKey{}, errors.NewForbiddenError("only admins may create api keys")
	}
	if _, err := s.groups.GetByUUID(ctx, group); err != nil {
		if errors.IsNotFound(err) {
			return apikey.APIKey{}, errors.NewGroupNotFoundError(group)
		}
		return apikey.APIKey{}, err
	}

	k := apikey.New(group, description)
	if err := k.Validate(); err != nil {
		return apikey.APIKey{}, err
	}
	if err := s.keys.Add(ctx, k); err != nil {
		return apikey.APIKey{}, err
	}
	s.logger.Info("api key created",
		zap.String("uuid", k.UUID), zap.String("group", k.Group))
	return k, nil
}

// Get returns one key, redacted. Admin only.
func (s *Service) Get(ctx context.Context, auth principal.AuthenticationContext, uuid string) (apikey.APIKey, error) {
	if !auth.IsAdmin() {
		return apikey.APIKey{}, errors.NewForbiddenError("only admins may read api keys")
	}
	k, err := s.keys.GetByUUID(ctx, uuid)
	if err != nil {
		return apikey.APIKey{}, err
	}
	return k.Redacted(), nil
}

// List returns every key, redacted. Admin only.
func (s *Service) List(ctx context.Context, auth principal.AuthenticationContext) ([]apikey.APIKey, error) {
	if !auth.IsAdmin() {
		return nil, errors.NewForbiddenError("only admins may list api keys")
	}
	keys, err := s.keys.List(ctx)
	if err != nil {
		return nil, err
	}
	redacted := make([]apikey.APIKey, len(keys))
	for i, k := range keys {
		redacted[i] = k.Redacted()
	}
	return redacted, nil
}

// Delete revokes a key. Admin only.
func (s *Service) Delete(ctx context.Context, auth principal.AuthenticationContext, uuid string) error {
	if !auth.IsAdmin() {
		return errors.NewForbiddenError("only admins may delete api keys")
	}
	return s.keys.Delete(ctx, uuid)
}

// Authenticate resolves a presented secret into an authentication
// context carrying the key's group. Inactive keys do not authenticate.
func (s *Service) Authenticate(ctx context.Context, tenant, secret string) (principal.AuthenticationContext, error) {
	k, err := s.keys.GetBySecret(ctx, secret)
	if err != nil {
		if errors.IsNotFound(err) {
			return principal.AuthenticationContext{}, errors.NewUnauthorizedError("unknown api key")
		}
		return principal.AuthenticationContext{}, err
	}
	if !k.Active {
		return principal.AuthenticationContext{}, errors.NewUnauthorizedError("api key is inactive")
	}
	return principal.New(tenant, k.UUID+"@apikeys.antbox.io", k.Group), nil
}
