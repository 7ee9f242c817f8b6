// Package events provides the in-process event bus that connects domain
// services to their subscribers (audit trail, feature reactions, external
// relays). Publishing is fire-and-forget: a failing or slow subscriber never
// blocks the publisher or its sibling subscribers.
package events

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"antbox-backend/internal/domain/shared"
)

// Handler processes domain events dispatched by the bus.
type Handler interface {
	Handle(ctx context.Context, event shared.DomainEvent) error
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, event shared.DomainEvent) error

// Handle calls the wrapped function.
func (f HandlerFunc) Handle(ctx context.Context, event shared.DomainEvent) error {
	return f(ctx, event)
}

// subscriptionQueueSize bounds the per-subscription backlog. When a
// subscriber falls this far behind, further events for it are dropped
// and logged (delivery is best-effort, at-most-once).
const subscriptionQueueSize = 256

// Subscription is the cancellation token returned by Subscribe. Cancelling
// stops delivery; events already queued for the subscriber are discarded.
type Subscription struct {
	id        string
	eventType string
	handler   Handler
	bus       *EventBus

	queue chan shared.DomainEvent
	done  chan struct{}
	once  sync.Once
}

// Cancel detaches the subscription from the bus. Safe to call more than once.
func (s *Subscription) Cancel() {
	s.once.Do(func() {
		s.bus.remove(s)
		close(s.done)
	})
}

// EventBus is an in-process publish/subscribe dispatcher keyed by event type.
// Each subscription owns a single worker goroutine, so a given subscriber
// observes events in publication order while distinct subscribers run
// independently of each other.
type EventBus struct {
	mu          sync.RWMutex
	subs        map[string][]*Subscription
	logger      *zap.Logger
	synchronous bool
	wg          sync.WaitGroup
	closed      bool
}

// NewEventBus creates a bus with asynchronous delivery.
func NewEventBus(logger *zap.Logger) *EventBus {
	return &EventBus{
		subs:   make(map[string][]*Subscription),
		logger: logger,
	}
}

// NewSynchronousEventBus creates a bus that delivers events inline on the
// publisher's goroutine, in subscription order. Handler failures are still
// swallowed and logged. Intended for tests and single-shot tooling where
// deterministic ordering matters more than isolation.
func NewSynchronousEventBus(logger *zap.Logger) *EventBus {
	return &EventBus{
		subs:        make(map[string][]*Subscription),
		logger:      logger,
		synchronous: true,
	}
}

// Subscribe registers a handler for one event type and returns the token
// used to cancel it.
func (eb *EventBus) Subscribe(eventType string, handler Handler) *Subscription {
	sub := &Subscription{
		id:        shared.NewUUID(),
		eventType: eventType,
		handler:   handler,
		bus:       eb,
		done:      make(chan struct{}),
	}

	eb.mu.Lock()
	eb.subs[eventType] = append(eb.subs[eventType], sub)
	closed := eb.closed
	eb.mu.Unlock()

	if !eb.synchronous && !closed {
		sub.queue = make(chan shared.DomainEvent, subscriptionQueueSize)
		eb.wg.Add(1)
		go sub.run(eb)
	}

	eb.logger.Debug("subscription registered",
		zap.String("event_type", eventType),
		zap.String("subscription_id", sub.id))
	return sub
}

// SubscribeFunc registers a plain function for one event type.
func (eb *EventBus) SubscribeFunc(eventType string, fn func(ctx context.Context, event shared.DomainEvent) error) *Subscription {
	return eb.Subscribe(eventType, HandlerFunc(fn))
}

// Publish hands the event to every subscriber of its type and returns
// immediately after enqueueing. Events with no subscribers are dropped
// silently.
func (eb *EventBus) Publish(event shared.DomainEvent) {
	eb.mu.RLock()
	subs := make([]*Subscription, len(eb.subs[event.EventType()]))
	copy(subs, eb.subs[event.EventType()])
	eb.mu.RUnlock()

	for _, sub := range subs {
		if eb.synchronous {
			eb.deliver(sub, event)
			continue
		}
		select {
		case sub.queue <- event:
		default:
			eb.logger.Warn("subscriber backlog full, dropping event",
				zap.String("event_type", event.EventType()),
				zap.String("event_id", event.EventID()),
				zap.String("subscription_id", sub.id))
		}
	}
}

// SubscriberCount reports how many subscriptions exist for an event type.
func (eb *EventBus) SubscriberCount(eventType string) int {
	eb.mu.RLock()
	defer eb.mu.RUnlock()
	return len(eb.subs[eventType])
}

// Close cancels every subscription and waits for in-flight handlers to
// finish. The bus must not be used afterwards.
func (eb *EventBus) Close() {
	eb.mu.Lock()
	all := make([]*Subscription, 0)
	for _, subs := range eb.subs {
		all = append(all, subs...)
	}
	eb.closed = true
	eb.mu.Unlock()

	for _, sub := range all {
		sub.Cancel()
	}
	eb.wg.Wait()
}

func (eb *EventBus) remove(s *Subscription) {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	subs := eb.subs[s.eventType]
	for i, sub := range subs {
		if sub == s {
			eb.subs[s.eventType] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	if len(eb.subs[s.eventType]) == 0 {
		delete(eb.subs, s.eventType)
	}
}

func (s *Subscription) run(eb *EventBus) {
	defer eb.wg.Done()
	for {
		select {
		case <-s.done:
			return
		case event := <-s.queue:
			eb.deliver(s, event)
		}
	}
}

// deliver invokes one handler, containing panics and logging failures so
// that neither reaches the publisher or other subscribers.
func (eb *EventBus) deliver(sub *Subscription, event shared.DomainEvent) {
	defer func() {
		if r := recover(); r != nil {
			eb.logger.Error("event handler panicked",
				zap.Any("panic", r),
				zap.String("event_type", event.EventType()),
				zap.String("event_id", event.EventID()),
				zap.String("subscription_id", sub.id))
		}
	}()

	if err := sub.handler.Handle(context.Background(), event); err != nil {
		eb.logger.Error("event handler failed",
			zap.Error(err),
			zap.String("event_type", event.EventType()),
			zap.String("event_id", event.EventID()),
			zap.String("aggregate_id", event.AggregateID()),
			zap.String("tenant", event.Tenant()))
	}
}
