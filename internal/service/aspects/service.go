// Package aspects manages the property schemas nodes attach to.
// Mutation is admin-only; reads are open to any principal since the
// node service needs schemas to validate properties.
package aspects

import (
	"context"

	"go.uber.org/zap"

	"antbox-backend/internal/domain/aspect"
	"antbox-backend/internal/domain/principal"
	"antbox-backend/internal/domain/shared"
	"antbox-backend/internal/repository"
	"antbox-backend/pkg/errors"
)

// Service manages the aspect schemas of one tenant.
type Service struct {
	aspects repository.AspectRepository
	logger  *zap.Logger
}

// NewService wires the aspect service.
func NewService(aspects repository.AspectRepository, logger *zap.Logger) *Service {
	return &Service{aspects: aspects, logger: logger}
}

// CreateOrReplace stores a schema, overwriting any previous version
// under the same uuid. Admin only.
func (s *Service) CreateOrReplace(ctx context.Context, auth principal.AuthenticationContext, a *aspect.Aspect) (*aspect.Aspect, error) {
	if !auth.IsAdmin() {
		return nil, errors.NewForbiddenError("only admins may modify aspects")
	}
	if a.UUID == "" {
		a.UUID = shared.NewUUID()
	}
	if err := a.Validate(); err != nil {
		return nil, err
	}

	_, err := s.aspects.GetByUUID(ctx, a.UUID)
	switch {
	case err == nil:
		if err := s.aspects.Update(ctx, a); err != nil {
			return nil, err
		}
	case errors.IsNotFound(err):
		if err := s.aspects.Add(ctx, a); err != nil {
			return nil, err
		}
	default:
		return nil, err
	}

	s.logger.Info("aspect stored", zap.String("uuid", a.UUID))
	return a, nil
}

// Get resolves a schema by uuid.
func (s *Service) Get(ctx context.Context, _ principal.AuthenticationContext, uuid string) (*aspect.Aspect, error) {
	return s.aspects.GetByUUID(ctx, uuid)
}

// List returns every schema.
func (s *Service) List(ctx context.Context, _ principal.AuthenticationContext) ([]*aspect.Aspect, error) {
	return s.aspects.List(ctx)
}

// Delete removes a schema. Admin only.
func (s *Service) Delete(ctx context.Context, auth principal.AuthenticationContext, uuid string) error {
	if !auth.IsAdmin() {
		return errors.NewForbiddenError("only admins may delete aspects")
	}
	return s.aspects.Delete(ctx, uuid)
}
