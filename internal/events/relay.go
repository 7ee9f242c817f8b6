package events

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	ebtypes "github.com/aws/aws-sdk-go-v2/service/eventbridge/types"
	"go.uber.org/zap"

	"antbox-backend/internal/domain/shared"
)

// eventBridgeMaxBatch is the PutEvents entry limit imposed by AWS.
const eventBridgeMaxBatch = 10

// relayFlushInterval bounds how long a partial batch may sit in the buffer.
const relayFlushInterval = 200 * time.Millisecond

// PutEventsAPI is the slice of the EventBridge client the relay needs.
type PutEventsAPI interface {
	PutEvents(ctx context.Context, params *eventbridge.PutEventsInput, optFns ...func(*eventbridge.Options)) (*eventbridge.PutEventsOutput, error)
}

// Relay forwards local domain events to an AWS EventBridge bus so pipelines
// outside the process can react to tenant activity. Delivery is best-effort:
// a failed PutEvents call is logged and the batch is dropped.
type Relay struct {
	client  PutEventsAPI
	busName string
	source  string
	logger  *zap.Logger

	queue chan shared.DomainEvent
	done  chan struct{}
	wg    sync.WaitGroup
	subs  []*Subscription
}

// NewRelay creates a relay targeting the named EventBridge bus. The worker
// starts immediately; call Close to drain and stop it.
func NewRelay(client PutEventsAPI, busName, source string, logger *zap.Logger) *Relay {
	if busName == "" {
		busName = "default"
	}
	if source == "" {
		source = "antbox-backend"
	}
	r := &Relay{
		client:  client,
		busName: busName,
		source:  source,
		logger:  logger,
		queue:   make(chan shared.DomainEvent, 1024),
		done:    make(chan struct{}),
	}
	r.wg.Add(1)
	go r.worker()
	return r
}

// Attach subscribes the relay to the given event types on the local bus.
func (r *Relay) Attach(bus *EventBus, eventTypes ...string) {
	for _, eventType := range eventTypes {
		r.subs = append(r.subs, bus.SubscribeFunc(eventType, func(_ context.Context, event shared.DomainEvent) error {
			select {
			case r.queue <- event:
			default:
				r.logger.Warn("relay backlog full, dropping event",
					zap.String("event_type", event.EventType()),
					zap.String("event_id", event.EventID()))
			}
			return nil
		}))
	}
}

// Close detaches from the bus, flushes pending events and stops the worker.
func (r *Relay) Close() {
	for _, sub := range r.subs {
		sub.Cancel()
	}
	close(r.done)
	r.wg.Wait()
}

func (r *Relay) worker() {
	defer r.wg.Done()

	batch := make([]shared.DomainEvent, 0, eventBridgeMaxBatch)
	ticker := time.NewTicker(relayFlushInterval)
	defer ticker.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		r.publishBatch(batch)
		batch = batch[:0]
	}

	for {
		select {
		case event := <-r.queue:
			batch = append(batch, event)
			if len(batch) >= eventBridgeMaxBatch {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-r.done:
			// Drain whatever is already queued, then stop.
			for {
				select {
				case event := <-r.queue:
					batch = append(batch, event)
					if len(batch) >= eventBridgeMaxBatch {
						flush()
					}
				default:
					flush()
					return
				}
			}
		}
	}
}

func (r *Relay) publishBatch(events []shared.DomainEvent) {
	entries := make([]ebtypes.PutEventsRequestEntry, 0, len(events))
	for _, event := range events {
		entry, err := r.entryFor(event)
		if err != nil {
			r.logger.Error("relay could not encode event",
				zap.Error(err),
				zap.String("event_type", event.EventType()),
				zap.String("event_id", event.EventID()))
			continue
		}
		entries = append(entries, entry)
	}
	if len(entries) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	output, err := r.client.PutEvents(ctx, &eventbridge.PutEventsInput{Entries: entries})
	if err != nil {
		r.logger.Error("relay PutEvents failed",
			zap.Error(err),
			zap.Int("batch_size", len(entries)))
		return
	}
	if output.FailedEntryCount > 0 {
		for i, entry := range output.Entries {
			if entry.ErrorCode != nil {
				r.logger.Error("relay entry rejected",
					zap.Int("index", i),
					zap.String("error_code", aws.ToString(entry.ErrorCode)),
					zap.String("error_message", aws.ToString(entry.ErrorMessage)))
			}
		}
	}
}

// entryFor flattens the event envelope and payload into the EventBridge
// detail document. Envelope fields sit at the top level so rules can match
// on tenant or user without digging into the payload.
func (r *Relay) entryFor(event shared.DomainEvent) (ebtypes.PutEventsRequestEntry, error) {
	detail := map[string]interface{}{
		"eventId":     event.EventID(),
		"eventType":   event.EventType(),
		"aggregateId": event.AggregateID(),
		"userEmail":   event.UserEmail(),
		"tenant":      event.Tenant(),
		"occurredOn":  event.OccurredOn().Format(time.RFC3339),
		"payload":     event.EventData(),
	}
	detailJSON, err := json.Marshal(detail)
	if err != nil {
		return ebtypes.PutEventsRequestEntry{}, err
	}

	return ebtypes.PutEventsRequestEntry{
		EventBusName: aws.String(r.busName),
		Source:       aws.String(r.source),
		DetailType:   aws.String(event.EventType()),
		Detail:       aws.String(string(detailJSON)),
		Time:         aws.Time(event.OccurredOn()),
		Resources:    []string{event.AggregateID()},
	}, nil
}
