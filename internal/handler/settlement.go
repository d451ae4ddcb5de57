package handler

import (
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/go-chi/chi/v5"

	"github.com/dvpsettle/dvpd/internal/domain"
	"github.com/dvpsettle/dvpd/internal/service"
	"github.com/dvpsettle/dvpd/internal/settlement"
)

// SettlementHandler handles HTTP requests for settlement endpoints.
type SettlementHandler struct {
	settlementSvc *service.SettlementService
}

// NewSettlementHandler creates a new SettlementHandler.
func NewSettlementHandler(settlementSvc *service.SettlementService) *SettlementHandler {
	return &SettlementHandler{settlementSvc: settlementSvc}
}

// tradeDetailsJSON is the wire form of trade details in requests and
// responses. Price is a decimal string; quantity and the derived cash
// amount are base-10 integer strings.
type tradeDetailsJSON struct {
	MetadataCommitment string `json:"metadata_commitment"`
	Quantity           string `json:"quantity"`
	Price              string `json:"price"`
	CashToken          string `json:"cash_token"`
	CashLegExecutor    string `json:"cash_leg_executor,omitempty"`
	SecurityToken      string `json:"security_token"`
	Buyer              string `json:"buyer"`
	Seller             string `json:"seller"`
	TradeDate          uint64 `json:"trade_date"`
	ValueDate          uint64 `json:"value_date"`
	CashAmount         string `json:"cash_amount,omitempty"`
}

func (d tradeDetailsJSON) request() service.TradeDetailsRequest {
	return service.TradeDetailsRequest{
		MetadataCommitment: d.MetadataCommitment,
		Quantity:           d.Quantity,
		Price:              d.Price,
		CashToken:          d.CashToken,
		CashLegExecutor:    d.CashLegExecutor,
		SecurityToken:      d.SecurityToken,
		Buyer:              d.Buyer,
		Seller:             d.Seller,
		TradeDate:          d.TradeDate,
		ValueDate:          d.ValueDate,
	}
}

// setDetailsRequest is the JSON request body for
// POST /settlements/{address}/details.
type setDetailsRequest struct {
	Details    tradeDetailsJSON           `json:"details"`
	Ciphertext hexutil.Bytes              `json:"ciphertext"`
	Envelopes  []domain.EncryptedEnvelope `json:"envelopes"`
}

// approveRequest is the JSON request body for
// POST /settlements/{address}/approve.
type approveRequest struct {
	Details tradeDetailsJSON `json:"details"`
}

// settlementResponse is a settlement instance snapshot. Details and
// trade_hash are null until the seller commits.
type settlementResponse struct {
	Address   string            `json:"address"`
	Operator  string            `json:"operator"`
	State     string            `json:"state"`
	TradeHash *string           `json:"trade_hash"`
	Details   *tradeDetailsJSON `json:"details"`
	CreatedAt string            `json:"created_at"`
	UpdatedAt string            `json:"updated_at"`
}

// settlementListResponse is the JSON response for GET /settlements.
type settlementListResponse struct {
	Settlements []settlementResponse `json:"settlements"`
}

// metadataResponse is the JSON response for
// GET /settlements/{address}/metadata.
type metadataResponse struct {
	Address    string                     `json:"address"`
	TradeHash  string                     `json:"trade_hash"`
	Ciphertext hexutil.Bytes              `json:"ciphertext"`
	Envelopes  []domain.EncryptedEnvelope `json:"envelopes"`
}

// Create handles POST /settlements. The caller becomes the operator.
func (h *SettlementHandler) Create(w http.ResponseWriter, r *http.Request) {
	snap, err := h.settlementSvc.Create(r.Context(), callerFrom(r.Context()))
	if err != nil {
		mapError(w, err)
		return
	}
	WriteJSON(w, http.StatusCreated, buildSettlementResponse(snap))
}

// List handles GET /settlements.
func (h *SettlementHandler) List(w http.ResponseWriter, r *http.Request) {
	snaps := h.settlementSvc.List()
	resp := settlementListResponse{Settlements: make([]settlementResponse, len(snaps))}
	for i, snap := range snaps {
		resp.Settlements[i] = buildSettlementResponse(snap)
	}
	WriteJSON(w, http.StatusOK, resp)
}

// Get handles GET /settlements/{address}.
func (h *SettlementHandler) Get(w http.ResponseWriter, r *http.Request) {
	addr, ok := addressParam(w, "address", chi.URLParam(r, "address"))
	if !ok {
		return
	}

	snap, err := h.settlementSvc.Get(addr)
	if err != nil {
		mapError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, buildSettlementResponse(snap))
}

// Metadata handles GET /settlements/{address}/metadata.
func (h *SettlementHandler) Metadata(w http.ResponseWriter, r *http.Request) {
	addr, ok := addressParam(w, "address", chi.URLParam(r, "address"))
	if !ok {
		return
	}

	md, err := h.settlementSvc.Metadata(addr)
	if err != nil {
		mapError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, metadataResponse{
		Address:    addr.Hex(),
		TradeHash:  md.TradeHash.Hex(),
		Ciphertext: md.Ciphertext,
		Envelopes:  md.Envelopes,
	})
}

// SetDetails handles POST /settlements/{address}/details.
func (h *SettlementHandler) SetDetails(w http.ResponseWriter, r *http.Request) {
	addr, ok := addressParam(w, "address", chi.URLParam(r, "address"))
	if !ok {
		return
	}
	var req setDetailsRequest
	if err := ParseJSON(r, &req); err != nil {
		invalidRequest(w, err)
		return
	}

	snap, err := h.settlementSvc.SetDetails(r.Context(), callerFrom(r.Context()), addr, service.SetDetailsRequest{
		Details:    req.Details.request(),
		Ciphertext: req.Ciphertext,
		Envelopes:  req.Envelopes,
	})
	if err != nil {
		mapError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, buildSettlementResponse(snap))
}

// Approve handles POST /settlements/{address}/approve. The buyer approves a
// committed trade first; the operator's approval after it executes the whole
// exchange in the same transaction.
func (h *SettlementHandler) Approve(w http.ResponseWriter, r *http.Request) {
	addr, ok := addressParam(w, "address", chi.URLParam(r, "address"))
	if !ok {
		return
	}
	var req approveRequest
	if err := ParseJSON(r, &req); err != nil {
		invalidRequest(w, err)
		return
	}

	snap, err := h.settlementSvc.Approve(r.Context(), callerFrom(r.Context()), addr, req.Details.request())
	if err != nil {
		mapError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, buildSettlementResponse(snap))
}

func buildSettlementResponse(snap settlement.Snapshot) settlementResponse {
	resp := settlementResponse{
		Address:   snap.Address.Hex(),
		Operator:  snap.Operator.Hex(),
		State:     string(snap.State),
		CreatedAt: formatTime(snap.CreatedAt),
		UpdatedAt: formatTime(snap.UpdatedAt),
	}
	if snap.Details != nil {
		hash := snap.TradeHash.Hex()
		resp.TradeHash = &hash
		resp.Details = buildTradeDetails(snap.Details)
	}
	return resp
}

func buildTradeDetails(d *domain.TradeDetails) *tradeDetailsJSON {
	out := &tradeDetailsJSON{
		MetadataCommitment: d.MetadataCommitment.Hex(),
		Quantity:           d.Quantity.Dec(),
		Price:              domain.FormatPrice(&d.Price),
		CashToken:          d.CashToken.Hex(),
		SecurityToken:      d.SecurityToken.Hex(),
		Buyer:              d.Buyer.Hex(),
		Seller:             d.Seller.Hex(),
		TradeDate:          d.TradeDate,
		ValueDate:          d.ValueDate,
	}
	if d.CashLegExecutor != (common.Address{}) {
		out.CashLegExecutor = d.CashLegExecutor.Hex()
	}
	if amount, err := d.CashAmount(); err == nil {
		out.CashAmount = amount.Dec()
	}
	return out
}
