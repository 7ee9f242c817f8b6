package features

import (
	"context"

	"go.uber.org/zap"

	"antbox-backend/internal/domain/feature"
	"antbox-backend/internal/domain/node"
	"antbox-backend/internal/domain/principal"
	"antbox-backend/internal/domain/shared"
	"antbox-backend/internal/events"
)

// Attach subscribes the feature service to node lifecycle events so
// automatic actions and folder hooks fire on every mutation. The
// returned subscriptions cancel the reactions when released.
func (s *Service) Attach(bus *events.EventBus) []*events.Subscription {
	handler := events.HandlerFunc(s.react)
	return []*events.Subscription{
		bus.Subscribe(node.EventNodeCreated, handler),
		bus.Subscribe(node.EventNodeUpdated, handler),
		bus.Subscribe(node.EventNodeDeleted, handler),
	}
}

func (s *Service) react(ctx context.Context, event shared.DomainEvent) error {
	if event.Tenant() != s.tenant {
		return nil
	}

	subject, ok := s.eventSubject(ctx, event)
	if !ok {
		return nil
	}

	s.runAutomaticActions(ctx, event, subject)
	s.runFolderHooks(ctx, event, subject)
	return nil
}

// eventSubject resolves the node an event speaks about. Created and
// deleted events carry a snapshot; updated events are a diff, so the
// current node is fetched instead.
func (s *Service) eventSubject(ctx context.Context, event shared.DomainEvent) (*node.Node, bool) {
	switch e := event.(type) {
	case *node.CreatedEvent:
		return e.Node, true
	case *node.DeletedEvent:
		return e.Node, true
	case *node.UpdatedEvent:
		n, err := s.nodes.Get(ctx, principal.Elevated(s.tenant), event.AggregateID())
		if err != nil {
			s.logger.Warn("reaction subject vanished",
				zap.String("uuid", event.AggregateID()),
				zap.Error(err))
			return nil, false
		}
		return n, true
	default:
		return nil, false
	}
}

// runAutomaticActions invokes every feature registered for the event
// type whose filters the subject satisfies. Automatic runs execute as
// the system principal; a failing feature is logged and skipped.
func (s *Service) runAutomaticActions(ctx context.Context, event shared.DomainEvent, subject *node.Node) {
	all, err := s.repo.List(ctx)
	if err != nil {
		s.logger.Warn("cannot list features for reactions", zap.Error(err))
		return
	}

	auth := principal.Elevated(s.tenant)
	for _, f := range all {
		if !f.RunsOn(event.EventType()) {
			continue
		}
		match, err := f.Filters.IsSatisfiedBy(subject)
		if err != nil || !match {
			continue
		}

		args := map[string]interface{}{
			feature.UUIDsParameter: []string{event.AggregateID()},
		}
		if _, err := s.run(ctx, auth, f, args, channelAction, nil); err != nil {
			s.logger.Warn("automatic action failed",
				zap.String("feature", f.UUID),
				zap.String("event", event.EventType()),
				zap.String("node", event.AggregateID()),
				zap.Error(err))
		}
	}
}

// runFolderHooks runs the enclosing folder's onCreate/onUpdate/onDelete
// invocations against the subject, acting as the user who caused the
// event.
func (s *Service) runFolderHooks(ctx context.Context, event shared.DomainEvent, subject *node.Node) {
	if subject.Parent == "" {
		return
	}
	folder, err := s.nodes.Get(ctx, principal.Elevated(s.tenant), subject.Parent)
	if err != nil || !folder.IsFolder() {
		return
	}

	var hooks []string
	switch event.EventType() {
	case node.EventNodeCreated:
		hooks = folder.OnCreate
	case node.EventNodeUpdated:
		hooks = folder.OnUpdate
	case node.EventNodeDeleted:
		hooks = folder.OnDelete
	}

	auth := principal.ActionFor(s.tenant, event.UserEmail())
	for _, raw := range hooks {
		inv, err := feature.ParseInvocation(raw)
		if err != nil {
			s.logger.Warn("malformed folder hook",
				zap.String("folder", folder.UUID),
				zap.String("hook", raw),
				zap.Error(err))
			continue
		}
		f, err := s.repo.GetByUUID(ctx, inv.FeatureUUID)
		if err != nil {
			s.logger.Warn("folder hook feature missing",
				zap.String("folder", folder.UUID),
				zap.String("feature", inv.FeatureUUID),
				zap.Error(err))
			continue
		}

		args := map[string]interface{}{
			feature.UUIDsParameter: []string{event.AggregateID()},
		}
		for k, v := range inv.Params {
			args[k] = v
		}
		if _, err := s.run(ctx, auth, f, args, channelAction, nil); err != nil {
			s.logger.Warn("folder hook failed",
				zap.String("folder", folder.UUID),
				zap.String("feature", f.UUID),
				zap.Error(err))
		}
	}
}
