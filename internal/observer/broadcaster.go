// ABOUTME: In-memory fan-out broadcaster for invocation lifecycle events
// ABOUTME: Delivers each event to every attached observer without blocking the publisher

package observer

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	// subscriberBufferSize is the channel buffer for each observer.
	subscriberBufferSize = 64
)

// EventType names a lifecycle event.
type EventType string

const (
	EventToolCall        EventType = "tool-call"
	EventToolCallUpdated EventType = "tool-call-updated"
	EventPortChanged     EventType = "port-changed"
)

// Event is one published notification.
type Event struct {
	Type EventType
	Data any
	Time time.Time
}

// PortChange is the payload of EventPortChanged.
type PortChange struct {
	Port      int    `json:"port"`
	ServerURL string `json:"serverUrl"`
}

// Broadcaster fans events out to a set of observers.
type Broadcaster struct {
	mu          sync.RWMutex
	subscribers map[string]chan Event // subID -> ch
	closed      bool
	logger      *slog.Logger
}

// NewBroadcaster creates a broadcaster. Pass nil logger for default.
func NewBroadcaster(logger *slog.Logger) *Broadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster{
		subscribers: make(map[string]chan Event),
		logger:      logger.With("component", "observer"),
	}
}

// Subscribe attaches an observer. The returned channel receives events until
// Unsubscribe is called, ctx is cancelled, or the broadcaster is closed, at
// which point it is closed.
func (b *Broadcaster) Subscribe(ctx context.Context) (<-chan Event, string) {
	subID := uuid.New().String()
	ch := make(chan Event, subscriberBufferSize)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(ch)
		return ch, subID
	}
	b.subscribers[subID] = ch
	b.mu.Unlock()

	b.logger.Debug("observer attached", "sub_id", subID)

	go func() {
		<-ctx.Done()
		b.Unsubscribe(subID)
	}()

	return ch, subID
}

// Publish delivers an event to every attached observer. It never blocks:
// observers with a full buffer miss the event.
func (b *Broadcaster) Publish(eventType EventType, data any) {
	event := Event{Type: eventType, Data: data, Time: time.Now()}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if len(b.subscribers) == 0 {
		b.logger.Debug("no observer attached, event dropped", "type", eventType)
		return
	}

	for id, ch := range b.subscribers {
		select {
		case ch <- event:
		default:
			b.logger.Warn("dropped event for slow observer", "sub_id", id, "type", eventType)
		}
	}
}

// Unsubscribe detaches an observer and closes its channel.
func (b *Broadcaster) Unsubscribe(subID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch, ok := b.subscribers[subID]
	if !ok {
		return
	}
	delete(b.subscribers, subID)
	close(ch)

	b.logger.Debug("observer detached", "sub_id", subID)
}

// Count returns the number of attached observers.
func (b *Broadcaster) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Close detaches every observer. Later subscriptions receive a closed channel.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for id, ch := range b.subscribers {
		close(ch)
		delete(b.subscribers, id)
	}
	b.closed = true

	b.logger.Debug("broadcaster closed")
}
