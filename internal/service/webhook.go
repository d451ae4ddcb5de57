package service

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/dvpsettle/dvpd/internal/domain"
	"github.com/dvpsettle/dvpd/internal/ledger"
	"github.com/dvpsettle/dvpd/internal/store"
)

// Valid webhook event types.
var validWebhookEvents = func() map[string]bool {
	m := make(map[string]bool, len(domain.EventNames))
	for _, name := range domain.EventNames {
		m[name] = true
	}
	return m
}()

// UpsertWebhookRequest represents the input for webhook registration.
type UpsertWebhookRequest struct {
	Participant common.Address
	URL         string
	Events      []string
}

// WebhookService handles webhook CRUD and event dispatch.
type WebhookService struct {
	store        *store.WebhookStore
	participants *store.ParticipantStore
	client       *http.Client
	metrics      *Metrics
	logger       *slog.Logger
}

// NewWebhookService creates a new WebhookService with the given dependencies.
func NewWebhookService(
	webhookStore *store.WebhookStore,
	participantStore *store.ParticipantStore,
	webhookTimeout time.Duration,
	metrics *Metrics,
	logger *slog.Logger,
) *WebhookService {
	return &WebhookService{
		store:        webhookStore,
		participants: participantStore,
		client: &http.Client{
			Timeout: webhookTimeout,
		},
		metrics: metrics,
		logger:  logger,
	}
}

// Upsert validates the request and creates or updates webhook subscriptions.
// Returns the resulting webhooks, whether any new subscriptions were created, and any error.
func (s *WebhookService) Upsert(req UpsertWebhookRequest) ([]*domain.Webhook, bool, error) {
	// Only registered participants receive notifications.
	if _, err := s.participants.Get(req.Participant); err != nil {
		return nil, false, err
	}

	if req.URL == "" {
		return nil, false, &domain.ValidationError{Message: "url is required"}
	}
	if len(req.URL) > 2048 {
		return nil, false, &domain.ValidationError{Message: "url must be at most 2048 characters"}
	}
	parsed, err := url.ParseRequestURI(req.URL)
	if err != nil || !parsed.IsAbs() {
		return nil, false, &domain.ValidationError{Message: "url must be a valid absolute URL"}
	}
	if parsed.Scheme != "https" {
		return nil, false, &domain.ValidationError{Message: "url must use https scheme"}
	}

	if len(req.Events) == 0 {
		return nil, false, &domain.ValidationError{Message: "events must be a non-empty array"}
	}

	// Deduplicate events while preserving order and validating.
	seen := make(map[string]bool, len(req.Events))
	dedupedEvents := make([]string, 0, len(req.Events))
	for _, event := range req.Events {
		if !validWebhookEvents[event] {
			return nil, false, &domain.ValidationError{
				Message: "Unknown event type: " + event + ". Must be one of: " + strings.Join(domain.EventNames, ", "),
			}
		}
		if !seen[event] {
			seen[event] = true
			dedupedEvents = append(dedupedEvents, event)
		}
	}

	now := time.Now().UTC().Truncate(time.Second)
	anyCreated := false
	webhooks := make([]*domain.Webhook, 0, len(dedupedEvents))

	for _, event := range dedupedEvents {
		w := &domain.Webhook{
			WebhookID:   uuid.New().String(),
			Participant: req.Participant,
			Event:       event,
			URL:         req.URL,
			CreatedAt:   now,
			UpdatedAt:   now,
		}

		if s.store.Upsert(w) {
			anyCreated = true
			webhooks = append(webhooks, w)
		} else if existing := s.store.GetByParticipantEvent(req.Participant, event); existing != nil {
			webhooks = append(webhooks, existing)
		}
	}

	return webhooks, anyCreated, nil
}

// List returns all webhook subscriptions of a participant.
func (s *WebhookService) List(participant common.Address) ([]*domain.Webhook, error) {
	if _, err := s.participants.Get(participant); err != nil {
		return nil, err
	}
	return s.store.ListByParticipant(participant), nil
}

// Delete removes a webhook subscription owned by caller.
func (s *WebhookService) Delete(caller common.Address, webhookID string) error {
	wh, err := s.store.Get(webhookID)
	if err != nil {
		return err
	}
	if wh.Participant != caller {
		return domain.ErrUnauthorized
	}
	return s.store.Delete(webhookID)
}

// webhookPayload is the JSON body of every notification.
type webhookPayload struct {
	Event     string `json:"event"`
	Timestamp string `json:"timestamp"`
	Data      any    `json:"data"`
}

// DispatchEvents notifies the subscribers among each event's topics. It is
// meant to be passed to ledger.Subscribe. Fire-and-forget.
func (s *WebhookService) DispatchEvents(events []ledger.Event) {
	for _, e := range events {
		payload := webhookPayload{
			Event:     e.Name,
			Timestamp: e.Timestamp.UTC().Truncate(time.Second).Format(time.RFC3339),
			Data:      e,
		}
		for _, wh := range s.store.Subscribers(e.Name, e.Topics...) {
			go s.deliver(wh, e.Name, payload)
		}
	}
}

// DispatchOverdue notifies parties that a parked trade passed its value
// date. Fire-and-forget.
func (s *WebhookService) DispatchOverdue(notice domain.TradeOverdue, parties ...common.Address) {
	payload := webhookPayload{
		Event:     domain.EventTradeOverdue,
		Timestamp: time.Now().UTC().Truncate(time.Second).Format(time.RFC3339),
		Data:      notice,
	}
	for _, wh := range s.store.Subscribers(domain.EventTradeOverdue, parties...) {
		go s.deliver(wh, domain.EventTradeOverdue, payload)
	}
}

// deliver sends the webhook payload via HTTP POST with the required headers.
// Failures are counted and logged, never retried.
func (s *WebhookService) deliver(wh *domain.Webhook, eventType string, payload webhookPayload) {
	body, err := json.Marshal(payload)
	if err != nil {
		s.failed(wh, eventType, err)
		return
	}

	req, err := http.NewRequest(http.MethodPost, wh.URL, bytes.NewReader(body))
	if err != nil {
		s.failed(wh, eventType, err)
		return
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Delivery-Id", uuid.New().String())
	req.Header.Set("X-Webhook-Id", wh.WebhookID)
	req.Header.Set("X-Event-Type", eventType)

	resp, err := s.client.Do(req)
	if err != nil {
		s.failed(wh, eventType, err)
		return
	}
	resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		s.failed(wh, eventType, nil, slog.Int("status", resp.StatusCode))
		return
	}
	s.metrics.WebhookDeliveries.WithLabelValues("delivered").Inc()
}

func (s *WebhookService) failed(wh *domain.Webhook, eventType string, err error, attrs ...any) {
	s.metrics.WebhookDeliveries.WithLabelValues("failed").Inc()
	attrs = append(attrs,
		slog.String("webhook_id", wh.WebhookID),
		slog.String("event", eventType),
	)
	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
	}
	s.logger.Debug("webhook delivery failed", attrs...)
}
