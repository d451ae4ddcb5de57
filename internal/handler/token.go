package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dvpsettle/dvpd/internal/service"
)

// TokenHandler handles HTTP requests for token, pool and directory
// endpoints.
type TokenHandler struct {
	tokenSvc *service.TokenService
}

// NewTokenHandler creates a new TokenHandler.
func NewTokenHandler(tokenSvc *service.TokenService) *TokenHandler {
	return &TokenHandler{tokenSvc: tokenSvc}
}

// approveTokenRequest is the JSON request body for POST /tokens/{token}/approve.
type approveTokenRequest struct {
	Spender string `json:"spender"`
	Amount  string `json:"amount"`
}

// transferRequest is the JSON request body for POST /tokens/{token}/transfer.
type transferRequest struct {
	To     string `json:"to"`
	Amount string `json:"amount"`
}

type balanceResponse struct {
	Token   string `json:"token"`
	Account string `json:"account"`
	Balance string `json:"balance"`
}

type allowanceResponse struct {
	Token     string `json:"token"`
	Owner     string `json:"owner"`
	Spender   string `json:"spender"`
	Allowance string `json:"allowance"`
}

type transferResponse struct {
	Token  string `json:"token"`
	From   string `json:"from"`
	To     string `json:"to"`
	Amount string `json:"amount"`
}

type quoteResponse struct {
	Pool      string `json:"pool"`
	TokenIn   string `json:"token_in"`
	AmountOut string `json:"amount_out"`
	AmountIn  string `json:"amount_in"`
}

type contractResponse struct {
	Name    string `json:"name"`
	Kind    string `json:"kind"`
	Address string `json:"address"`
}

type contractListResponse struct {
	Contracts []contractResponse `json:"contracts"`
}

// Balance handles GET /tokens/{token}/balances/{account}.
func (h *TokenHandler) Balance(w http.ResponseWriter, r *http.Request) {
	tok, ok := addressParam(w, "token", chi.URLParam(r, "token"))
	if !ok {
		return
	}
	account, ok := addressParam(w, "account", chi.URLParam(r, "account"))
	if !ok {
		return
	}

	bal, err := h.tokenSvc.Balance(tok, account)
	if err != nil {
		mapError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, balanceResponse{
		Token:   tok.Hex(),
		Account: account.Hex(),
		Balance: bal.Dec(),
	})
}

// Allowance handles GET /tokens/{token}/allowances/{owner}/{spender}.
func (h *TokenHandler) Allowance(w http.ResponseWriter, r *http.Request) {
	tok, ok := addressParam(w, "token", chi.URLParam(r, "token"))
	if !ok {
		return
	}
	owner, ok := addressParam(w, "owner", chi.URLParam(r, "owner"))
	if !ok {
		return
	}
	spender, ok := addressParam(w, "spender", chi.URLParam(r, "spender"))
	if !ok {
		return
	}

	a, err := h.tokenSvc.Allowance(tok, owner, spender)
	if err != nil {
		mapError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, allowanceResponse{
		Token:     tok.Hex(),
		Owner:     owner.Hex(),
		Spender:   spender.Hex(),
		Allowance: a.Dec(),
	})
}

// Approve handles POST /tokens/{token}/approve. The caller is the owner.
func (h *TokenHandler) Approve(w http.ResponseWriter, r *http.Request) {
	tok, ok := addressParam(w, "token", chi.URLParam(r, "token"))
	if !ok {
		return
	}
	var req approveTokenRequest
	if err := ParseJSON(r, &req); err != nil {
		invalidRequest(w, err)
		return
	}
	spender, err := service.ParseAddress("spender", req.Spender)
	if err != nil {
		mapError(w, err)
		return
	}

	owner := callerFrom(r.Context())
	if err := h.tokenSvc.Approve(r.Context(), owner, tok, spender, req.Amount); err != nil {
		mapError(w, err)
		return
	}
	a, err := h.tokenSvc.Allowance(tok, owner, spender)
	if err != nil {
		mapError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, allowanceResponse{
		Token:     tok.Hex(),
		Owner:     owner.Hex(),
		Spender:   spender.Hex(),
		Allowance: a.Dec(),
	})
}

// Transfer handles POST /tokens/{token}/transfer. The caller is the sender.
func (h *TokenHandler) Transfer(w http.ResponseWriter, r *http.Request) {
	tok, ok := addressParam(w, "token", chi.URLParam(r, "token"))
	if !ok {
		return
	}
	var req transferRequest
	if err := ParseJSON(r, &req); err != nil {
		invalidRequest(w, err)
		return
	}
	to, err := service.ParseAddress("to", req.To)
	if err != nil {
		mapError(w, err)
		return
	}

	from := callerFrom(r.Context())
	if err := h.tokenSvc.Transfer(r.Context(), from, tok, to, req.Amount); err != nil {
		mapError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, transferResponse{
		Token:  tok.Hex(),
		From:   from.Hex(),
		To:     to.Hex(),
		Amount: req.Amount,
	})
}

// Quote handles GET /pools/{pool}/quote?token_in=&amount_out=.
func (h *TokenHandler) Quote(w http.ResponseWriter, r *http.Request) {
	p, ok := addressParam(w, "pool", chi.URLParam(r, "pool"))
	if !ok {
		return
	}
	q := r.URL.Query()
	tokenIn, ok := addressParam(w, "token_in", q.Get("token_in"))
	if !ok {
		return
	}

	in, err := h.tokenSvc.QuoteExactOut(p, tokenIn, q.Get("amount_out"))
	if err != nil {
		mapError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, quoteResponse{
		Pool:      p.Hex(),
		TokenIn:   tokenIn.Hex(),
		AmountOut: q.Get("amount_out"),
		AmountIn:  in.Dec(),
	})
}

// Contracts handles GET /contracts.
func (h *TokenHandler) Contracts(w http.ResponseWriter, r *http.Request) {
	entries := h.tokenSvc.Contracts()
	resp := contractListResponse{Contracts: make([]contractResponse, len(entries))}
	for i, e := range entries {
		resp.Contracts[i] = contractResponse{
			Name:    e.Name,
			Kind:    string(e.Kind),
			Address: e.Address.Hex(),
		}
	}
	WriteJSON(w, http.StatusOK, resp)
}
