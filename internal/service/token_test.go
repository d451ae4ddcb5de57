package service

import (
	"context"
	"errors"
	"testing"

	"github.com/holiman/uint256"

	"github.com/dvpsettle/dvpd/internal/domain"
	"github.com/dvpsettle/dvpd/internal/store"
)

func TestTokenService_BalanceAndTransfer(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	if err := e.tokens.Transfer(ctx, e.buyer.addr, e.sek, e.outsider.addr, "400"); err != nil {
		t.Fatalf("Transfer: %v", err)
	}
	got, err := e.tokens.Balance(e.sek, e.outsider.addr)
	if err != nil {
		t.Fatalf("Balance: %v", err)
	}
	if !got.Eq(uint256.NewInt(400)) {
		t.Errorf("outsider SEK = %s, want 400", got.Dec())
	}
	got, _ = e.tokens.Balance(e.sek, e.buyer.addr)
	if !got.Eq(uint256.NewInt(9600)) {
		t.Errorf("buyer SEK = %s, want 9600", got.Dec())
	}

	err = e.tokens.Transfer(ctx, e.buyer.addr, e.sek, e.outsider.addr, "100000")
	if !errors.Is(err, domain.ErrInsufficientBalance) {
		t.Errorf("expected ErrInsufficientBalance, got %v", err)
	}
}

func TestTokenService_SecurityTransferCompliance(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	if err := e.tokens.Transfer(ctx, e.seller.addr, e.bond, e.buyer.addr, "10"); err != nil {
		t.Fatalf("Transfer to investor: %v", err)
	}
	err := e.tokens.Transfer(ctx, e.seller.addr, e.bond, e.outsider.addr, "10")
	if !errors.Is(err, domain.ErrComplianceRejected) {
		t.Errorf("expected ErrComplianceRejected, got %v", err)
	}
	got, _ := e.tokens.Balance(e.bond, e.seller.addr)
	if !got.Eq(uint256.NewInt(990)) {
		t.Errorf("seller BOND = %s, want 990", got.Dec())
	}
}

func TestTokenService_Allowance(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	if err := e.tokens.Approve(ctx, e.buyer.addr, e.sek, e.operator.addr, "750"); err != nil {
		t.Fatalf("Approve: %v", err)
	}
	got, err := e.tokens.Allowance(e.sek, e.buyer.addr, e.operator.addr)
	if err != nil {
		t.Fatalf("Allowance: %v", err)
	}
	if !got.Eq(uint256.NewInt(750)) {
		t.Errorf("allowance = %s, want 750", got.Dec())
	}

	var ve *domain.ValidationError
	if _, err := e.tokens.Allowance(e.bond, e.buyer.addr, e.operator.addr); !errors.As(err, &ve) {
		t.Errorf("security allowance: expected ValidationError, got %v", err)
	}
	if err := e.tokens.Approve(ctx, e.buyer.addr, e.sek, e.operator.addr, "-1"); !errors.As(err, &ve) {
		t.Errorf("negative amount: expected ValidationError, got %v", err)
	}
}

func TestTokenService_UnknownContracts(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	if _, err := e.tokens.Balance(e.outsider.addr, e.buyer.addr); !errors.Is(err, domain.ErrTokenNotFound) {
		t.Errorf("Balance: expected ErrTokenNotFound, got %v", err)
	}
	if err := e.tokens.Transfer(ctx, e.buyer.addr, e.outsider.addr, e.seller.addr, "1"); !errors.Is(err, domain.ErrTokenNotFound) {
		t.Errorf("Transfer: expected ErrTokenNotFound, got %v", err)
	}
	if _, err := e.tokens.QuoteExactOut(e.outsider.addr, e.sek, "1"); !errors.Is(err, domain.ErrTokenNotFound) {
		t.Errorf("QuoteExactOut: expected ErrTokenNotFound, got %v", err)
	}
}

func TestTokenService_Contracts(t *testing.T) {
	e := newEnv(t)

	kinds := make(map[string]store.ContractKind)
	for _, entry := range e.tokens.Contracts() {
		kinds[entry.Name] = entry.Kind
	}
	if kinds["SEK"] != store.KindCash || kinds["BOND"] != store.KindSecurity {
		t.Errorf("unexpected directory: %v", kinds)
	}
}
