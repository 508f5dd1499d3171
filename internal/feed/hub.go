// Package feed distributes committed store changes to in-process subscribers
// and, optionally, across processes via a Redis bridge. Subscribers receive
// notification events, not state; consumers are expected to reload the data
// they care about.
package feed

import (
	"sync"

	"go.uber.org/zap"

	"sheltercore/pkg/domain"
)

// EventType is a bitmask of change kinds a subscriber is interested in.
type EventType uint8

const (
	EventInsert EventType = 1 << iota
	EventUpdate
	EventDelete

	EventAll = EventInsert | EventUpdate | EventDelete
)

// Event describes one committed change to a watched entity.
type Event struct {
	Entity domain.EntityType    `json:"entity"`
	Type   EventType            `json:"type"`
	Before domain.ChangePayload `json:"before"`
	After  domain.ChangePayload `json:"after"`
}

// EventTypeForAction maps a store change action to its event type.
func EventTypeForAction(action domain.Action) (EventType, bool) {
	switch action {
	case domain.ActionCreate:
		return EventInsert, true
	case domain.ActionUpdate:
		return EventUpdate, true
	case domain.ActionDelete:
		return EventDelete, true
	default:
		return 0, false
	}
}

// Subscription is a live feed registration. Events arrive on Events until
// Close is called; the channel is buffered and sends never block the hub, so
// a slow consumer sees coalesced notifications rather than backpressure.
type Subscription struct {
	Events <-chan Event
	cancel func()
}

// Close terminates the subscription and closes its channel.
func (s Subscription) Close() {
	if s.cancel != nil {
		s.cancel()
	}
}

type subscriber struct {
	mask   EventType
	events chan Event
	once   sync.Once
}

func (s *subscriber) close() {
	s.once.Do(func() { close(s.events) })
}

// HubOption customizes Hub construction.
type HubOption func(*Hub)

// HubWithLogger injects a logger for drop diagnostics.
func HubWithLogger(logger *zap.Logger) HubOption {
	return func(h *Hub) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// HubWithSubscriberCapacity overrides the buffered channel size per
// subscriber.
func HubWithSubscriberCapacity(n int) HubOption {
	return func(h *Hub) {
		if n > 0 {
			h.channelSize = n
		}
	}
}

const defaultSubscriberCapacity = 16

// Hub fans committed changes out to per-entity subscribers.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[domain.EntityType]map[*subscriber]struct{}
	channelSize int
	logger      *zap.Logger
}

// NewHub constructs an empty hub.
func NewHub(opts ...HubOption) *Hub {
	h := &Hub{
		subscribers: map[domain.EntityType]map[*subscriber]struct{}{},
		channelSize: defaultSubscriberCapacity,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Subscribe registers interest in changes to one entity type. A zero mask
// subscribes to all event types.
func (h *Hub) Subscribe(entity domain.EntityType, mask EventType) Subscription {
	if mask == 0 {
		mask = EventAll
	}
	sub := &subscriber{mask: mask, events: make(chan Event, h.channelSize)}
	h.mu.Lock()
	if h.subscribers[entity] == nil {
		h.subscribers[entity] = map[*subscriber]struct{}{}
	}
	h.subscribers[entity][sub] = struct{}{}
	h.mu.Unlock()
	return Subscription{
		Events: sub.events,
		cancel: func() {
			h.mu.Lock()
			if set := h.subscribers[entity]; set != nil {
				delete(set, sub)
				if len(set) == 0 {
					delete(h.subscribers, entity)
				}
			}
			h.mu.Unlock()
			sub.close()
		},
	}
}

// Broadcast delivers one event to every matching subscriber without blocking.
// Events that do not fit a subscriber's buffer are dropped; the subscriber
// still holds older undelivered events, which is enough to trigger its reload.
func (h *Hub) Broadcast(event Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for sub := range h.subscribers[event.Entity] {
		if sub.mask&event.Type == 0 {
			continue
		}
		select {
		case sub.events <- event:
		default:
			h.logger.Debug("feed event coalesced",
				zap.String("entity", string(event.Entity)))
		}
	}
}

// DropAll closes every active subscription. Watchers treat a closed channel
// as a lost feed and resubscribe with a forced reload, so this is the signal
// to raise when upstream continuity is lost.
func (h *Hub) DropAll() {
	h.mu.Lock()
	dropped := make([]*subscriber, 0)
	for entity, set := range h.subscribers {
		for sub := range set {
			dropped = append(dropped, sub)
		}
		delete(h.subscribers, entity)
	}
	h.mu.Unlock()
	for _, sub := range dropped {
		sub.close()
	}
}

// SinkChanges adapts the hub to domain.ChangeSink so a persistent store can
// publish its committed changes directly.
func (h *Hub) SinkChanges(changes []domain.Change) {
	for _, change := range changes {
		eventType, ok := EventTypeForAction(change.Action)
		if !ok {
			continue
		}
		h.Broadcast(Event{
			Entity: change.Entity,
			Type:   eventType,
			Before: payloadFor(change.Before),
			After:  payloadFor(change.After),
		})
	}
}

func payloadFor(value any) domain.ChangePayload {
	if value == nil {
		return domain.UndefinedChangePayload()
	}
	payload, err := domain.NewChangePayloadFromValue(value)
	if err != nil {
		return domain.UndefinedChangePayload()
	}
	return payload
}
