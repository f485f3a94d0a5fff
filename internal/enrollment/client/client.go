// Package client defines the device-policy client: the stateful collaborator
// that holds a registration with the device-management service and notifies
// subscribers when that state changes.
package client

import (
	"context"
	"sync"

	"enrolld/internal/enrollment/models"
)

// EventKind classifies a client notification.
type EventKind string

const (
	// EventStateChanged fires when the registration state transitions.
	EventStateChanged EventKind = "state_changed"
	// EventClientError fires when a registration call fails.
	EventClientError EventKind = "client_error"
)

// Event is a client notification. Err is set for EventClientError only and
// exists for logging; subscribers are not expected to branch on it.
type Event struct {
	Kind EventKind
	Err  error
}

// Client is the device-policy client contract. Implementations own the
// registration state; Register is asynchronous and reports its outcome
// through subscriptions.
type Client interface {
	IsRegistered() bool
	Register(ctx context.Context, typ models.RegistrationType, accessToken string)
	Subscribe() *Subscription
}

// Subscription is the handle returned by Subscribe. Cancel is idempotent and
// safe to call after the client has already dropped the subscriber; once
// canceled, no further events are delivered.
type Subscription struct {
	events chan Event
	detach func(*Subscription)
	once   sync.Once
}

func newSubscription(detach func(*Subscription)) *Subscription {
	// Small buffer: one registration attempt produces at most a couple of
	// events, and delivery must never block the client.
	return &Subscription{events: make(chan Event, 4), detach: detach}
}

// Events returns the notification channel. The channel is never closed;
// subscribers exit via their own context or completion signal.
func (s *Subscription) Events() <-chan Event { return s.events }

// Cancel detaches the subscription from the client.
func (s *Subscription) Cancel() {
	s.once.Do(func() { s.detach(s) })
}

// Hub tracks active subscriptions for a client implementation. Any Client
// can embed one to get the Subscribe/notify discipline.
type Hub struct {
	mu   sync.Mutex
	subs map[*Subscription]struct{}
}

func NewHub() *Hub {
	return &Hub{subs: make(map[*Subscription]struct{})}
}

// Subscribe attaches a new subscription to the hub.
func (h *Hub) Subscribe() *Subscription {
	sub := newSubscription(h.remove)
	h.mu.Lock()
	h.subs[sub] = struct{}{}
	h.mu.Unlock()
	return sub
}

// Len reports the number of active subscriptions.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

func (h *Hub) remove(sub *Subscription) {
	h.mu.Lock()
	delete(h.subs, sub)
	h.mu.Unlock()
}

// Notify delivers an event to every active subscription without blocking.
// A subscriber that stopped draining loses events rather than wedging the
// client.
func (h *Hub) Notify(ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subs {
		select {
		case sub.events <- ev:
		default:
		}
	}
}
