package handler

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dvpsettle/dvpd/internal/service"
)

// NewRouter creates a chi router with all routes registered, request logging,
// and Content-Type validation middleware. Every state-changing route is
// authenticated by the request signature. metrics may be nil.
func NewRouter(
	participantSvc *service.ParticipantService,
	settlementSvc *service.SettlementService,
	tokenSvc *service.TokenService,
	eventSvc *service.EventService,
	webhookSvc *service.WebhookService,
	metrics http.Handler,
	logger *slog.Logger,
) chi.Router {
	r := chi.NewRouter()

	// Global middleware.
	r.Use(requestLogging(logger))
	r.Use(contentTypeJSON)

	// Create handlers.
	participantH := NewParticipantHandler(participantSvc)
	settlementH := NewSettlementHandler(settlementSvc)
	tokenH := NewTokenHandler(tokenSvc)
	eventH := NewEventHandler(eventSvc)
	webhookH := NewWebhookHandler(webhookSvc)

	// Health check.
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if metrics != nil {
		r.Method(http.MethodGet, "/metrics", metrics)
	}

	// Read-only routes.
	r.Get("/participants/{address}", participantH.Get)
	r.Get("/settlements", settlementH.List)
	r.Get("/settlements/{address}", settlementH.Get)
	r.Get("/settlements/{address}/metadata", settlementH.Metadata)
	r.Get("/tokens/{token}/balances/{account}", tokenH.Balance)
	r.Get("/tokens/{token}/allowances/{owner}/{spender}", tokenH.Allowance)
	r.Get("/pools/{pool}/quote", tokenH.Quote)
	r.Get("/contracts", tokenH.Contracts)
	r.Get("/events", eventH.List)
	r.Get("/webhooks", webhookH.List)

	// Signed routes.
	r.Group(func(r chi.Router) {
		r.Use(requireSignature(newNonceCache(SignatureWindow)))

		r.Post("/participants", participantH.Register)
		r.Post("/settlements", settlementH.Create)
		r.Post("/settlements/{address}/details", settlementH.SetDetails)
		r.Post("/settlements/{address}/approve", settlementH.Approve)
		r.Post("/tokens/{token}/approve", tokenH.Approve)
		r.Post("/tokens/{token}/transfer", tokenH.Transfer)
		r.Post("/webhooks", webhookH.Upsert)
		r.Delete("/webhooks/{webhook_id}", webhookH.Delete)
	})

	return r
}

// requestLogging returns middleware that logs each request's method, path,
// status code, and duration using slog.
func requestLogging(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			logger.Info("request",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", ww.status),
				slog.Duration("duration", time.Since(start)),
			)
		})
	}
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (w *statusWriter) WriteHeader(code int) {
	if !w.wroteHeader {
		w.status = code
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(code)
}

// contentTypeJSON is middleware that validates Content-Type for POST, PUT, and
// PATCH requests that carry a body. Bodiless POSTs such as instance creation
// pass through.
func contentTypeJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.ContentLength != 0 && (r.Method == http.MethodPost || r.Method == http.MethodPut || r.Method == http.MethodPatch) {
			ct := r.Header.Get("Content-Type")
			if ct == "" || !strings.HasPrefix(ct, "application/json") {
				WriteError(w, http.StatusBadRequest, "invalid_request",
					"Content-Type must be application/json")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}
