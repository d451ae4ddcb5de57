package handler

import (
	"net/http"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/go-chi/chi/v5"

	"github.com/dvpsettle/dvpd/internal/domain"
	"github.com/dvpsettle/dvpd/internal/service"
)

// ParticipantHandler handles HTTP requests for participant endpoints.
type ParticipantHandler struct {
	participantSvc *service.ParticipantService
}

// NewParticipantHandler creates a new ParticipantHandler.
func NewParticipantHandler(participantSvc *service.ParticipantService) *ParticipantHandler {
	return &ParticipantHandler{participantSvc: participantSvc}
}

// registerParticipantRequest is the JSON request body for POST /participants.
type registerParticipantRequest struct {
	PublicKey string `json:"public_key"`
}

// participantResponse is the JSON response for participant endpoints.
// The public key is always returned uncompressed.
type participantResponse struct {
	Address      string `json:"address"`
	PublicKey    string `json:"public_key"`
	RegisteredAt string `json:"registered_at"`
}

// Register handles POST /participants.
func (h *ParticipantHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerParticipantRequest
	if err := ParseJSON(r, &req); err != nil {
		invalidRequest(w, err)
		return
	}

	p, created, err := h.participantSvc.Register(callerFrom(r.Context()), req.PublicKey)
	if err != nil {
		mapError(w, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	WriteJSON(w, status, buildParticipantResponse(p))
}

// Get handles GET /participants/{address}.
func (h *ParticipantHandler) Get(w http.ResponseWriter, r *http.Request) {
	addr, ok := addressParam(w, "address", chi.URLParam(r, "address"))
	if !ok {
		return
	}

	p, err := h.participantSvc.Get(addr)
	if err != nil {
		mapError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, buildParticipantResponse(p))
}

func buildParticipantResponse(p *domain.Participant) participantResponse {
	return participantResponse{
		Address:      p.Address.Hex(),
		PublicKey:    hexutil.Encode(crypto.FromECDSAPub(p.PublicKey)),
		RegisteredAt: formatTime(p.RegisteredAt),
	}
}
