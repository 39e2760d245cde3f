// ABOUTME: In-memory fan-out event broadcaster for live call observers
// ABOUTME: Publishes TurnEvents to subscribers of one call or of every call

package conversation

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

const (
	// subscriberBufferSize is the channel buffer for each subscriber.
	subscriberBufferSize = 64

	// AllCalls subscribes to events for every call.
	AllCalls = "*"
)

// EventBroadcaster provides in-memory pub/sub for TurnEvents. Subscribers
// register for a call ID, or AllCalls, and receive events as turns complete.
type EventBroadcaster struct {
	mu          sync.RWMutex
	subscribers map[string]map[string]chan *TurnEvent // callID -> subID -> ch
	closed      bool
	logger      *slog.Logger
}

// NewEventBroadcaster creates a broadcaster. Pass nil logger for default.
func NewEventBroadcaster(logger *slog.Logger) *EventBroadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventBroadcaster{
		subscribers: make(map[string]map[string]chan *TurnEvent),
		logger:      logger.With("component", "broadcaster"),
	}
}

// Subscribe registers a subscriber for events on callID. It returns the
// event channel and a subscription ID. The subscription is removed and the
// channel closed when ctx is cancelled.
func (b *EventBroadcaster) Subscribe(ctx context.Context, callID string) (<-chan *TurnEvent, string) {
	subID := uuid.New().String()
	ch := make(chan *TurnEvent, subscriberBufferSize)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(ch)
		return ch, subID
	}
	if _, ok := b.subscribers[callID]; !ok {
		b.subscribers[callID] = make(map[string]chan *TurnEvent)
	}
	b.subscribers[callID][subID] = ch
	b.mu.Unlock()

	b.logger.Debug("subscriber added", "call_id", callID, "sub_id", subID)

	// Auto-cleanup on context cancellation
	go func() {
		<-ctx.Done()
		b.Unsubscribe(callID, subID)
	}()

	return ch, subID
}

// Publish sends event to subscribers of its call and of AllCalls.
// Non-blocking: events are dropped for subscribers whose channels are full.
func (b *EventBroadcaster) Publish(event *TurnEvent) {
	b.mu.RLock()
	var targets []chan *TurnEvent
	for _, key := range []string{event.CallID, AllCalls} {
		for _, ch := range b.subscribers[key] {
			targets = append(targets, ch)
		}
	}
	// Sends happen under the read lock so Unsubscribe cannot close a
	// channel mid-send; every send is non-blocking.
	for _, ch := range targets {
		select {
		case ch <- event:
		default:
			b.logger.Debug("dropped event for slow subscriber",
				"call_id", event.CallID,
				"event_id", event.ID)
		}
	}
	b.mu.RUnlock()
}

// Unsubscribe removes a subscription and closes its channel.
func (b *EventBroadcaster) Unsubscribe(callID, subID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs, ok := b.subscribers[callID]
	if !ok {
		return
	}
	ch, exists := subs[subID]
	if !exists {
		return
	}

	delete(subs, subID)
	close(ch)

	if len(subs) == 0 {
		delete(b.subscribers, callID)
	}

	b.logger.Debug("subscriber removed", "call_id", callID, "sub_id", subID)
}

// Close closes every subscriber channel. Later subscriptions get a closed channel.
func (b *EventBroadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for callID, subs := range b.subscribers {
		for subID, ch := range subs {
			close(ch)
			delete(subs, subID)
		}
		delete(b.subscribers, callID)
	}
	b.closed = true

	b.logger.Debug("broadcaster closed")
}
