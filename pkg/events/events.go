package events

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cuemby/netpanel/pkg/log"
	"github.com/cuemby/netpanel/pkg/metrics"
)

// EventType represents the type of event
type EventType string

const (
	EventSnapshotCreated EventType = "snapshot.created"
	EventSnapshotRenamed EventType = "snapshot.renamed"
	EventSnapshotDeleted EventType = "snapshot.deleted"
	EventLayoutSaved     EventType = "layout.saved"
	EventIntnetsApplied  EventType = "intnets.applied"
	EventPresetsReloaded EventType = "presets.reloaded"
	EventPresetsImported EventType = "presets.imported"
)

// Event represents something that changed in the editor state
type Event struct {
	ID        string
	Type      EventType
	Timestamp time.Time
	Actor     string
	Message   string
	Metadata  map[string]string
}

// Publisher accepts events. Services depend on this instead of the Broker.
type Publisher interface {
	Publish(event *Event)
}

// Discard is a Publisher that drops every event
var Discard Publisher = discard{}

type discard struct{}

func (discard) Publish(*Event) {}

// Subscriber is a channel that receives events
type Subscriber chan *Event

// Broker manages event subscriptions and distribution
type Broker struct {
	subscribers map[Subscriber]bool
	mu          sync.RWMutex
	eventCh     chan *Event
	stopCh      chan struct{}
	stopOnce    sync.Once
}

// NewBroker creates a new event broker
func NewBroker() *Broker {
	return &Broker{
		subscribers: make(map[Subscriber]bool),
		eventCh:     make(chan *Event, 100),
		stopCh:      make(chan struct{}),
	}
}

// Start begins the broker's event distribution loop
func (b *Broker) Start() {
	go b.run()
}

// Run distributes events until ctx is cancelled
func (b *Broker) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		b.Stop()
	}()
	b.run()
	return nil
}

// Stop stops the broker
func (b *Broker) Stop() {
	b.stopOnce.Do(func() { close(b.stopCh) })
}

// Subscribe creates a new subscription and returns a channel
func (b *Broker) Subscribe() Subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := make(Subscriber, 50)
	b.subscribers[sub] = true
	return sub
}

// Unsubscribe removes a subscription
func (b *Broker) Unsubscribe(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.subscribers[sub]; !ok {
		return
	}
	delete(b.subscribers, sub)
	close(sub)
}

// Publish queues an event for all subscribers. It never blocks the caller:
// when the queue is full the event is dropped.
func (b *Broker) Publish(event *Event) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	select {
	case b.eventCh <- event:
		metrics.EventsPublished.WithLabelValues(string(event.Type)).Inc()
	case <-b.stopCh:
	default:
		logger := log.WithComponent("events")
		logger.Warn().Str("type", string(event.Type)).Msg("Event queue full, dropping event")
	}
}

func (b *Broker) run() {
	for {
		select {
		case event := <-b.eventCh:
			b.broadcast(event)
		case <-b.stopCh:
			return
		}
	}
}

func (b *Broker) broadcast(event *Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.subscribers {
		select {
		case sub <- event:
		default:
			// Subscriber buffer full, skip
		}
	}
}

// SubscriberCount returns the number of active subscribers
func (b *Broker) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// RunAuditLog writes every event to the log until ctx is cancelled
func RunAuditLog(ctx context.Context, b *Broker) error {
	sub := b.Subscribe()
	defer b.Unsubscribe(sub)

	logger := log.WithComponent("audit")
	for {
		select {
		case event, ok := <-sub:
			if !ok {
				return nil
			}
			entry := logger.Info().
				Str("event", string(event.Type)).
				Str("event_id", event.ID).
				Time("at", event.Timestamp)
			if event.Actor != "" {
				entry = entry.Str("actor", event.Actor)
			}
			for k, v := range event.Metadata {
				entry = entry.Str(k, v)
			}
			entry.Msg(event.Message)
		case <-ctx.Done():
			return nil
		}
	}
}

type actorKey struct{}

// WithActor attaches the acting username to ctx
func WithActor(ctx context.Context, username string) context.Context {
	return context.WithValue(ctx, actorKey{}, username)
}

// ActorFromContext returns the username attached by WithActor
func ActorFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	actor, _ := ctx.Value(actorKey{}).(string)
	return actor
}
