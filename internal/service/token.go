package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/dvpsettle/dvpd/internal/domain"
	"github.com/dvpsettle/dvpd/internal/ledger"
	"github.com/dvpsettle/dvpd/internal/store"
	"github.com/dvpsettle/dvpd/internal/token"
)

// TokenService exposes balances and direct transfers on the cash and
// security ledgers.
type TokenService struct {
	ledger    *ledger.Ledger
	contracts *store.ContractStore
	logger    *slog.Logger
}

// NewTokenService creates a new TokenService.
func NewTokenService(l *ledger.Ledger, contracts *store.ContractStore, logger *slog.Logger) *TokenService {
	return &TokenService{ledger: l, contracts: contracts, logger: logger}
}

// Contracts lists the contract directory.
func (s *TokenService) Contracts() []store.ContractEntry {
	return s.contracts.Entries()
}

// Balance returns the balance of account on a cash or security ledger.
func (s *TokenService) Balance(tokenAddr, account common.Address) (*uint256.Int, error) {
	tok, err := s.contracts.Token(tokenAddr)
	if err != nil {
		return nil, err
	}
	var bal *uint256.Int
	s.ledger.View(func(v *ledger.View) { bal = tok.BalanceOf(v, account) })
	return bal, nil
}

// Allowance returns what spender may still move out of owner's cash.
func (s *TokenService) Allowance(tokenAddr, owner, spender common.Address) (*uint256.Int, error) {
	cash, err := s.cash(tokenAddr)
	if err != nil {
		return nil, err
	}
	var a *uint256.Int
	s.ledger.View(func(v *ledger.View) { a = cash.Allowance(v, owner, spender) })
	return a, nil
}

// Approve lets spender move up to amount of owner's cash. Settlement
// instances and cash-leg executors need this before they can settle.
func (s *TokenService) Approve(ctx context.Context, owner, tokenAddr, spender common.Address, amount string) error {
	a, err := parseAmount("amount", amount)
	if err != nil {
		return err
	}
	if spender == (common.Address{}) {
		return &domain.ValidationError{Message: "spender is required"}
	}
	cash, err := s.cash(tokenAddr)
	if err != nil {
		return err
	}
	_, err = s.ledger.Execute(ctx, func(tx *ledger.Tx) error {
		return cash.Approve(tx, owner, spender, a)
	})
	if err == nil {
		s.logger.Info("allowance granted",
			slog.String("token", tokenAddr.Hex()),
			slog.String("owner", owner.Hex()),
			slog.String("spender", spender.Hex()),
			slog.String("amount", a.Dec()),
		)
	}
	return err
}

// Transfer moves amount from the caller to to. Security transfers are
// subject to the register's holder whitelist.
func (s *TokenService) Transfer(ctx context.Context, from, tokenAddr, to common.Address, amount string) error {
	a, err := parseAmount("amount", amount)
	if err != nil {
		return err
	}
	if to == (common.Address{}) {
		return &domain.ValidationError{Message: "to is required"}
	}

	var move func(tx *ledger.Tx) error
	if cash, err := s.contracts.Cash(tokenAddr); err == nil {
		move = func(tx *ledger.Tx) error { return cash.Transfer(tx, from, to, a) }
	} else if sec, err := s.contracts.Security(tokenAddr); err == nil {
		move = func(tx *ledger.Tx) error { return sec.Transfer(tx, from, to, a) }
	} else {
		return err
	}

	if _, err := s.ledger.Execute(ctx, move); err != nil {
		return err
	}
	s.logger.Info("tokens transferred",
		slog.String("token", tokenAddr.Hex()),
		slog.String("from", from.Hex()),
		slog.String("to", to.Hex()),
		slog.String("amount", a.Dec()),
	)
	return nil
}

// cash resolves a cash token, rejecting security registers, which have no
// allowances.
func (s *TokenService) cash(addr common.Address) (*token.Cash, error) {
	cash, err := s.contracts.Cash(addr)
	if err == nil {
		return cash, nil
	}
	if _, secErr := s.contracts.Security(addr); secErr == nil {
		return nil, &domain.ValidationError{Message: fmt.Sprintf("%s is a security register and has no allowances", addr.Hex())}
	}
	return nil, err
}

// QuoteExactOut returns the amount of tokenIn a swap through poolAddr needs
// to yield amountOut. Buyers use it to size the allowance they grant a
// cash-leg executor.
func (s *TokenService) QuoteExactOut(poolAddr, tokenIn common.Address, amountOut string) (*uint256.Int, error) {
	out, err := parseAmount("amount_out", amountOut)
	if err != nil {
		return nil, err
	}
	p, err := s.contracts.Pool(poolAddr)
	if err != nil {
		return nil, err
	}
	var in *uint256.Int
	s.ledger.View(func(v *ledger.View) { in, err = p.QuoteExactOut(v, tokenIn, out) })
	return in, err
}
