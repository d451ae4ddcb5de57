package store

import (
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/dvpsettle/dvpd/internal/domain"
)

// route is what a committed event is matched on: one of its topic
// addresses and its name.
type route struct {
	participant common.Address
	event       string
}

// WebhookStore holds webhook subscriptions. A participant has at most one
// URL per event name.
type WebhookStore struct {
	mu     sync.RWMutex
	byID   map[string]*domain.Webhook
	routes map[route]*domain.Webhook
}

// NewWebhookStore creates an empty WebhookStore.
func NewWebhookStore() *WebhookStore {
	return &WebhookStore{
		byID:   make(map[string]*domain.Webhook),
		routes: make(map[route]*domain.Webhook),
	}
}

// Upsert stores w unless its participant is already subscribed to the
// event, in which case only the URL and UpdatedAt of the existing
// subscription change and its id is kept. Reports whether w was added.
func (s *WebhookStore) Upsert(w *domain.Webhook) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := route{w.Participant, w.Event}
	if existing, ok := s.routes[k]; ok {
		if existing.URL != w.URL {
			existing.URL = w.URL
			existing.UpdatedAt = w.UpdatedAt
		}
		return false
	}
	s.byID[w.WebhookID] = w
	s.routes[k] = w
	return true
}

// Get returns the webhook with the given id or domain.ErrWebhookNotFound.
func (s *WebhookStore) Get(id string) (*domain.Webhook, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	w, ok := s.byID[id]
	if !ok {
		return nil, domain.ErrWebhookNotFound
	}
	return w, nil
}

// ListByParticipant returns the participant's subscriptions ordered by
// event name. Never nil.
func (s *WebhookStore) ListByParticipant(participant common.Address) []*domain.Webhook {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []*domain.Webhook{}
	for _, w := range s.byID {
		if w.Participant == participant {
			out = append(out, w)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Event < out[j].Event })
	return out
}

// Delete removes the webhook with the given id.
func (s *WebhookStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.byID[id]
	if !ok {
		return domain.ErrWebhookNotFound
	}
	delete(s.byID, id)
	delete(s.routes, route{w.Participant, w.Event})
	return nil
}

// GetByParticipantEvent returns the participant's subscription to event,
// or nil.
func (s *WebhookStore) GetByParticipantEvent(participant common.Address, event string) *domain.Webhook {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.routes[route{participant, event}]
}

// Subscribers resolves an event's topic addresses to the subscriptions
// that should receive it, in topic order. An address listed twice, such as
// an operator who is also the seller, is notified once.
func (s *WebhookStore) Subscribers(event string, topics ...common.Address) []*domain.Webhook {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.Webhook
	seen := make(map[common.Address]bool, len(topics))
	for _, p := range topics {
		if seen[p] {
			continue
		}
		seen[p] = true
		if w := s.routes[route{p, event}]; w != nil {
			out = append(out, w)
		}
	}
	return out
}
