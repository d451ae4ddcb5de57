package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestValidationError_Error(t *testing.T) {
	err := &ValidationError{Message: "quantity must be > 0"}
	if err.Error() != "quantity must be > 0" {
		t.Errorf("Error() = %q, want %q", err.Error(), "quantity must be > 0")
	}
}

func TestValidationError_As(t *testing.T) {
	wrapped := fmt.Errorf("set details: %w", &ValidationError{Message: "bad"})
	var ve *ValidationError
	if !errors.As(wrapped, &ve) {
		t.Fatal("errors.As should find the ValidationError through wrapping")
	}
	if ve.Message != "bad" {
		t.Errorf("Message = %q, want %q", ve.Message, "bad")
	}
}

func TestSentinelErrors_AreDistinct(t *testing.T) {
	errs := []error{
		ErrUnauthorized,
		ErrInvalidState,
		ErrHashMismatch,
		ErrComplianceRejected,
		ErrInsufficientAllowance,
		ErrInsufficientLiquidity,
		ErrInsufficientBalance,
		ErrAmountOverflow,
		ErrCurrencyMismatch,
		ErrSettlementNotFound,
		ErrTokenNotFound,
		ErrExecutorNotFound,
		ErrParticipantNotFound,
		ErrWebhookNotFound,
	}
	for i := 0; i < len(errs); i++ {
		for j := i + 1; j < len(errs); j++ {
			if errors.Is(errs[i], errs[j]) {
				t.Errorf("sentinel errors %d and %d should be distinct", i, j)
			}
		}
	}
}
