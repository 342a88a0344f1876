package events

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// subscriberQueueSize bounds the per-subscriber backlog. A slow consumer
// drops events rather than blocking publishers.
const subscriberQueueSize = 256

// Bus is an in-process publish/subscribe bus. Publication never blocks the
// publisher: each subscriber has its own queue drained by a dedicated
// goroutine, so events are delivered to any single subscriber in publication
// order while subscribers proceed independently.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[EventType][]*subscriber
	log         zerolog.Logger
	closed      bool
}

type subscriber struct {
	handler func(*Event)
	queue   chan *Event
}

// NewBus creates a new event bus.
func NewBus(log zerolog.Logger) *Bus {
	return &Bus{
		subscribers: make(map[EventType][]*subscriber),
		log:         log.With().Str("service", "event_bus").Logger(),
	}
}

// Subscribe registers a handler for an event type. The handler runs on a
// dedicated goroutine per subscription; it must not be registered twice for
// ordering to hold.
func (b *Bus) Subscribe(eventType EventType, handler func(*Event)) {
	sub := &subscriber{
		handler: handler,
		queue:   make(chan *Event, subscriberQueueSize),
	}
	go sub.run()

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(sub.queue)
		return
	}
	b.subscribers[eventType] = append(b.subscribers[eventType], sub)
}

func (s *subscriber) run() {
	for event := range s.queue {
		s.handler(event)
	}
}

// Emit publishes an event to all subscribers of its type. Fire-and-forget:
// the call returns as soon as the event is queued.
func (b *Bus) Emit(eventType EventType, module string, data map[string]interface{}) {
	b.Publish(&Event{
		ID:         newEventID(),
		Type:       eventType,
		OccurredAt: time.Now().UTC(),
		Module:     module,
		Data:       data,
	})
}

// Publish delivers a fully-formed event to all subscribers of its type.
func (b *Bus) Publish(event *Event) {
	b.mu.RLock()
	subs := b.subscribers[event.Type]
	b.mu.RUnlock()

	for _, sub := range subs {
		select {
		case sub.queue <- event:
		default:
			b.log.Warn().
				Str("event_type", string(event.Type)).
				Msg("Subscriber queue full, dropping event")
		}
	}
}

// Close stops delivery. Queued events are still drained by subscriber
// goroutines before they exit.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for _, subs := range b.subscribers {
		for _, sub := range subs {
			close(sub.queue)
		}
	}
	b.subscribers = make(map[EventType][]*subscriber)
}
