package handler

import (
	"errors"
	"net/http"

	"github.com/dvpsettle/dvpd/internal/domain"
)

// errorStatus lists the HTTP status of each domain sentinel. The error code
// in the response body is the sentinel's text.
var errorStatus = []struct {
	err    error
	status int
}{
	{domain.ErrUnauthorized, http.StatusForbidden},
	{domain.ErrSettlementNotFound, http.StatusNotFound},
	{domain.ErrTokenNotFound, http.StatusNotFound},
	{domain.ErrExecutorNotFound, http.StatusNotFound},
	{domain.ErrParticipantNotFound, http.StatusNotFound},
	{domain.ErrWebhookNotFound, http.StatusNotFound},
	{domain.ErrInvalidState, http.StatusConflict},
	{domain.ErrHashMismatch, http.StatusUnprocessableEntity},
	{domain.ErrComplianceRejected, http.StatusUnprocessableEntity},
	{domain.ErrInsufficientAllowance, http.StatusUnprocessableEntity},
	{domain.ErrInsufficientBalance, http.StatusUnprocessableEntity},
	{domain.ErrInsufficientLiquidity, http.StatusUnprocessableEntity},
	{domain.ErrAmountOverflow, http.StatusUnprocessableEntity},
	{domain.ErrCurrencyMismatch, http.StatusUnprocessableEntity},
}

// mapError maps service errors to HTTP responses.
func mapError(w http.ResponseWriter, err error) {
	var validationErr *domain.ValidationError
	if errors.As(err, &validationErr) {
		WriteError(w, http.StatusBadRequest, "validation_error", validationErr.Message)
		return
	}

	for _, e := range errorStatus {
		if errors.Is(err, e.err) {
			WriteError(w, e.status, e.err.Error(), err.Error())
			return
		}
	}
	WriteError(w, http.StatusInternalServerError, "internal_error", "An unexpected error occurred")
}
