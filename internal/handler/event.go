package handler

import (
	"net/http"
	"strconv"

	"github.com/dvpsettle/dvpd/internal/ledger"
	"github.com/dvpsettle/dvpd/internal/service"
)

// EventHandler serves the committed event log.
type EventHandler struct {
	eventSvc *service.EventService
}

// NewEventHandler creates a new EventHandler.
func NewEventHandler(eventSvc *service.EventService) *EventHandler {
	return &EventHandler{eventSvc: eventSvc}
}

// eventListResponse is the JSON response for GET /events. Clients poll with
// since set to the last seq they have seen.
type eventListResponse struct {
	Events  []ledger.Event `json:"events"`
	LastSeq uint64         `json:"last_seq"`
}

// List handles GET /events?since=&contract=&name=&topic=&limit=.
func (h *EventHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var f ledger.Filter

	if s := q.Get("since"); s != "" {
		since, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			WriteError(w, http.StatusBadRequest, "validation_error", "since must be a non-negative integer")
			return
		}
		f.Since = since
	}
	if s := q.Get("limit"); s != "" {
		limit, err := strconv.Atoi(s)
		if err != nil || limit <= 0 {
			WriteError(w, http.StatusBadRequest, "validation_error", "limit must be a positive integer")
			return
		}
		f.Limit = limit
	}
	if s := q.Get("contract"); s != "" {
		addr, ok := addressParam(w, "contract", s)
		if !ok {
			return
		}
		f.Contract = addr
	}
	if s := q.Get("topic"); s != "" {
		addr, ok := addressParam(w, "topic", s)
		if !ok {
			return
		}
		f.Topic = addr
	}
	f.Name = q.Get("name")

	events, last := h.eventSvc.Query(f)
	if events == nil {
		events = []ledger.Event{}
	}
	WriteJSON(w, http.StatusOK, eventListResponse{Events: events, LastSeq: last})
}
