package sse

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/veil-waf/veil-detect/internal/db"
)

// TopicAll receives every attack record regardless of type.
const TopicAll = "all"

// EventAttack is the SSE event name for a stored attack record.
const EventAttack = "attack"

// Event represents a server-sent event to be published to subscribers.
type Event struct {
	Type string // "attack"
	Data []byte // JSON payload
}

// Hub is a fan-out hub that manages per-topic SSE subscriptions. Topics are
// TopicAll and the attack type names.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan Event]struct{} // topic -> set of channels
	logger      *slog.Logger
}

// NewHub creates a new SSE hub.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		subscribers: make(map[string]map[chan Event]struct{}),
		logger:      logger,
	}
}

// Subscribe registers a new subscriber for the given topic.
// It returns a channel that will receive events and a cancel function that
// must be called when the subscriber disconnects.
func (h *Hub) Subscribe(topic string) (chan Event, func()) {
	ch := make(chan Event, 64)
	h.mu.Lock()
	if h.subscribers[topic] == nil {
		h.subscribers[topic] = make(map[chan Event]struct{})
	}
	h.subscribers[topic][ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subscribers[topic], ch)
			if len(h.subscribers[topic]) == 0 {
				delete(h.subscribers, topic)
			}
			close(ch)
			h.mu.Unlock()
		})
	}
	return ch, cancel
}

// Publish sends an event to all subscribers of the given topic.
// If a subscriber's channel is full, the event is dropped and a warning is logged.
func (h *Hub) Publish(topic string, event Event) {
	// Hold the read lock while sending so cancel cannot close a channel
	// mid-send; sends never block.
	h.mu.RLock()
	defer h.mu.RUnlock()

	for ch := range h.subscribers[topic] {
		select {
		case ch <- event:
		default:
			h.logger.Warn("sse: dropped event for slow client", "topic", topic)
		}
	}
}

// PublishAttack fans a stored record out to TopicAll and to its type's topic.
func (h *Hub) PublishAttack(l db.AttackLog) {
	data, err := json.Marshal(l)
	if err != nil {
		h.logger.Error("sse: marshal attack log", "err", err)
		return
	}
	event := Event{Type: EventAttack, Data: data}
	h.Publish(TopicAll, event)
	if l.AttackType != "" && l.AttackType != TopicAll {
		h.Publish(l.AttackType, event)
	}
}

// SubscriberCount returns the number of active subscribers for the given topic.
func (h *Hub) SubscriberCount(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers[topic])
}
