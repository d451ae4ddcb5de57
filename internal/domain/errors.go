package domain

import "errors"

// Sentinel errors for domain-level error handling.
// The handler layer maps these to HTTP status codes.
var (
	ErrUnauthorized          = errors.New("unauthorized")
	ErrInvalidState          = errors.New("invalid_state")
	ErrHashMismatch          = errors.New("hash_mismatch")
	ErrComplianceRejected    = errors.New("compliance_rejected")
	ErrInsufficientAllowance = errors.New("insufficient_allowance")
	ErrInsufficientLiquidity = errors.New("insufficient_liquidity")
	ErrInsufficientBalance   = errors.New("insufficient_balance")
	ErrAmountOverflow        = errors.New("amount_overflow")
	ErrCurrencyMismatch      = errors.New("currency_mismatch")
	ErrSettlementNotFound    = errors.New("settlement_not_found")
	ErrTokenNotFound         = errors.New("token_not_found")
	ErrExecutorNotFound      = errors.New("executor_not_found")
	ErrParticipantNotFound   = errors.New("participant_not_found")
	ErrWebhookNotFound       = errors.New("webhook_not_found")
)

// ValidationError represents a request validation failure.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}
