// Package events is an in-memory publish/subscribe bus for plugin lifecycle,
// dispatch and settings events. The web API streams it over SSE.
package events

import (
	"encoding/json"
	"sync"
	"time"
)

// EventType identifies the kind of event.
type EventType string

const (
	EventPluginLoaded    EventType = "plugin_loaded"
	EventPluginFailed    EventType = "plugin_failed"
	EventPromptSuccess   EventType = "prompt_success"
	EventPromptError     EventType = "prompt_error"
	EventModelFallback   EventType = "model_fallback"
	EventDefaultsChanged EventType = "defaults_changed"
	EventAgentExecuted   EventType = "agent_executed"
	EventHealthChange    EventType = "health_change"
)

// Event is a single event published on the bus.
type Event struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`

	// Dispatch fields.
	Provider  string  `json:"provider,omitempty"`
	Model     string  `json:"model,omitempty"`
	Stream    bool    `json:"stream,omitempty"`
	LatencyMs float64 `json:"latency_ms,omitempty"`
	ErrorKind string  `json:"error_kind,omitempty"`
	ErrorMsg  string  `json:"error_msg,omitempty"`
	RequestID string  `json:"request_id,omitempty"`

	// Plugin lifecycle fields.
	Plugin   string `json:"plugin,omitempty"`
	Category string `json:"category,omitempty"`

	// Fallback fields.
	FromModel string `json:"from_model,omitempty"`
	ToModel   string `json:"to_model,omitempty"`

	// Agent fields.
	Agent string `json:"agent,omitempty"`

	// Health transition fields.
	OldState string `json:"old_state,omitempty"`
	NewState string `json:"new_state,omitempty"`
}

// JSON returns the event as a JSON byte slice.
func (e *Event) JSON() []byte {
	b, _ := json.Marshal(e)
	return b
}

// Subscriber receives events on a channel.
type Subscriber struct {
	C    chan Event
	done chan struct{}
}

// Bus fans events out to every subscriber.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[*Subscriber]struct{}
}

func NewBus() *Bus {
	return &Bus{
		subscribers: make(map[*Subscriber]struct{}),
	}
}

// Subscribe creates a new subscriber with a buffered channel.
func (b *Bus) Subscribe(bufSize int) *Subscriber {
	if bufSize <= 0 {
		bufSize = 64
	}
	s := &Subscriber{
		C:    make(chan Event, bufSize),
		done: make(chan struct{}),
	}
	b.mu.Lock()
	b.subscribers[s] = struct{}{}
	b.mu.Unlock()
	return s
}

// Unsubscribe removes a subscriber. Calling it twice is a no-op.
func (b *Bus) Unsubscribe(s *Subscriber) {
	b.mu.Lock()
	_, ok := b.subscribers[s]
	delete(b.subscribers, s)
	b.mu.Unlock()
	if ok {
		close(s.done)
	}
}

// Done is closed once the subscriber has been removed from the bus.
func (s *Subscriber) Done() <-chan struct{} { return s.done }

// Publish sends an event to all subscribers without blocking. Slow
// subscribers lose events.
func (b *Bus) Publish(e Event) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for s := range b.subscribers {
		select {
		case s.C <- e:
		default:
		}
	}
}

func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
