package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dvpsettle/dvpd/internal/domain"
	"github.com/dvpsettle/dvpd/internal/service"
)

// WebhookHandler handles HTTP requests for webhook endpoints.
type WebhookHandler struct {
	webhookSvc *service.WebhookService
}

// NewWebhookHandler creates a new WebhookHandler.
func NewWebhookHandler(webhookSvc *service.WebhookService) *WebhookHandler {
	return &WebhookHandler{webhookSvc: webhookSvc}
}

// upsertWebhookRequest is the JSON request body for POST /webhooks. The
// subscriber is the signing caller.
type upsertWebhookRequest struct {
	URL    string   `json:"url"`
	Events []string `json:"events"`
}

// webhookResponse is a single webhook in the response.
type webhookResponse struct {
	WebhookID   string `json:"webhook_id"`
	Participant string `json:"participant"`
	Event       string `json:"event"`
	URL         string `json:"url"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
}

// webhookListResponse is the JSON response for POST and GET /webhooks.
type webhookListResponse struct {
	Webhooks []webhookResponse `json:"webhooks"`
}

// Upsert handles POST /webhooks.
func (h *WebhookHandler) Upsert(w http.ResponseWriter, r *http.Request) {
	var req upsertWebhookRequest
	if err := ParseJSON(r, &req); err != nil {
		invalidRequest(w, err)
		return
	}

	webhooks, anyCreated, err := h.webhookSvc.Upsert(service.UpsertWebhookRequest{
		Participant: callerFrom(r.Context()),
		URL:         req.URL,
		Events:      req.Events,
	})
	if err != nil {
		mapError(w, err)
		return
	}

	status := http.StatusOK
	if anyCreated {
		status = http.StatusCreated
	}

	WriteJSON(w, status, webhookListResponse{
		Webhooks: buildWebhookResponses(webhooks),
	})
}

// List handles GET /webhooks?participant=.
func (h *WebhookHandler) List(w http.ResponseWriter, r *http.Request) {
	participant, ok := addressParam(w, "participant", r.URL.Query().Get("participant"))
	if !ok {
		return
	}

	webhooks, err := h.webhookSvc.List(participant)
	if err != nil {
		mapError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, webhookListResponse{
		Webhooks: buildWebhookResponses(webhooks),
	})
}

// Delete handles DELETE /webhooks/{webhook_id}. Only the subscriber may
// delete its webhook.
func (h *WebhookHandler) Delete(w http.ResponseWriter, r *http.Request) {
	webhookID := chi.URLParam(r, "webhook_id")

	if err := h.webhookSvc.Delete(callerFrom(r.Context()), webhookID); err != nil {
		mapError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// buildWebhookResponses converts domain webhooks to response webhooks.
func buildWebhookResponses(webhooks []*domain.Webhook) []webhookResponse {
	result := make([]webhookResponse, len(webhooks))
	for i, wh := range webhooks {
		result[i] = webhookResponse{
			WebhookID:   wh.WebhookID,
			Participant: wh.Participant.Hex(),
			Event:       wh.Event,
			URL:         wh.URL,
			CreatedAt:   formatTime(wh.CreatedAt),
			UpdatedAt:   formatTime(wh.UpdatedAt),
		}
	}
	return result
}
