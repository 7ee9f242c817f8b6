// Package audit records the per-node history derived from lifecycle
// events. The service is a weak consumer: it subscribes to the bus,
// appends entries as they arrive, and never blocks publishers.
package audit

import (
	"context"

	"go.uber.org/zap"

	"antbox-backend/internal/domain/audit"
	"antbox-backend/internal/domain/node"
	"antbox-backend/internal/domain/principal"
	"antbox-backend/internal/domain/shared"
	"antbox-backend/internal/events"
	"antbox-backend/internal/repository"
	"antbox-backend/pkg/errors"
)

// Service appends node events to per-node streams and serves history
// reads to admins.
type Service struct {
	repo   repository.AuditRepository
	logger *zap.Logger
	subs   []*events.Subscription
}

// NewService wires the audit log.
func NewService(repo repository.AuditRepository, logger *zap.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

// Attach subscribes to the three node lifecycle events.
func (s *Service) Attach(bus *events.EventBus) {
	for _, eventType := range []string{
		node.EventNodeCreated, node.EventNodeUpdated, node.EventNodeDeleted,
	} {
		s.subs = append(s.subs, bus.SubscribeFunc(eventType, s.record))
	}
}

// Detach cancels the bus subscriptions.
func (s *Service) Detach() {
	for _, sub := range s.subs {
		sub.Cancel()
	}
	s.subs = nil
}

func (s *Service) record(ctx context.Context, event shared.DomainEvent) error {
	mimetype := ""
	if ne, ok := event.(node.NodeEvent); ok {
		mimetype = ne.NodeMimetype()
	}
	entry := audit.FromDomainEvent(event)
	if _, err := s.repo.Append(ctx, event.AggregateID(), mimetype, entry); err != nil {
		// Returned so the bus logs it; history lags, mutations stand.
		return err
	}
	return nil
}

// GetStream returns the full history of one node. Admin only.
func (s *Service) GetStream(ctx context.Context, auth principal.AuthenticationContext, uuid string) (*audit.Stream, error) {
	if !auth.IsAdmin() {
		return nil, errors.NewForbiddenError("only admins may read audit streams")
	}
	return s.repo.GetStream(ctx, uuid)
}

// ListStreams returns every stream whose node mimetype matches; an
// empty mimetype matches all. Admin only.
func (s *Service) ListStreams(ctx context.Context, auth principal.AuthenticationContext, mimetype string) ([]*audit.Stream, error) {
	if !auth.IsAdmin() {
		return nil, errors.NewForbiddenError("only admins may read audit streams")
	}
	return s.repo.ListStreams(ctx, mimetype)
}

// GetDeleted aggregates the deletion tombstones of every stream with
// the given mimetype. Admin only.
func (s *Service) GetDeleted(ctx context.Context, auth principal.AuthenticationContext, mimetype string) ([]audit.DeletedRecord, error) {
	if !auth.IsAdmin() {
		return nil, errors.NewForbiddenError("only admins may read audit streams")
	}

	streams, err := s.repo.ListStreams(ctx, mimetype)
	if err != nil {
		return nil, err
	}

	var deleted []audit.DeletedRecord
	for _, stream := range streams {
		for _, entry := range stream.Entries {
			if entry.EventType != node.EventNodeDeleted {
				continue
			}
			record := audit.DeletedRecord{
				UUID:      stream.ID,
				DeletedAt: entry.OccurredOn,
				DeletedBy: entry.UserEmail,
			}
			if title, ok := entry.Payload["title"].(string); ok {
				record.Title = title
			}
			deleted = append(deleted, record)
		}
	}
	return deleted, nil
}
