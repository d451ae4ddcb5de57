// Package token holds the two balance ledgers a trade touches: fungible cash
// tokens and the security register.
package token

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/dvpsettle/dvpd/internal/domain"
	"github.com/dvpsettle/dvpd/internal/ledger"
)

// Ledger is what the service layer needs from any token to answer balance
// queries.
type Ledger interface {
	Address() common.Address
	Symbol() string
	BalanceOf(r ledger.Reader, account common.Address) *uint256.Int
	TotalSupply(r ledger.Reader) *uint256.Int
}

// balances maps accounts to amounts. Every write registers its undo on the
// transaction.
type balances map[common.Address]uint256.Int

func (b balances) get(account common.Address) *uint256.Int {
	v := b[account]
	return &v
}

func (b balances) set(tx *ledger.Tx, account common.Address, amount *uint256.Int) {
	setAmount(tx, b, account, amount)
}

// setAmount stores v under key, dropping the entry when v is zero, and
// restores the previous entry, or its absence, on rollback.
func setAmount[K comparable](tx *ledger.Tx, m map[K]uint256.Int, key K, v *uint256.Int) {
	old, had := m[key]
	if v.IsZero() {
		delete(m, key)
	} else {
		m[key] = *v
	}
	tx.OnRollback(func() {
		if had {
			m[key] = old
		} else {
			delete(m, key)
		}
	})
}

// move debits from and credits to, failing with ErrInsufficientBalance when
// from holds less than amount.
func (b balances) move(tx *ledger.Tx, from, to common.Address, amount *uint256.Int) error {
	fromBal := b.get(from)
	if fromBal.Lt(amount) {
		return fmt.Errorf("%w: %s holds %s, needs %s", domain.ErrInsufficientBalance, from.Hex(), fromBal.Dec(), amount.Dec())
	}
	if from == to {
		return nil
	}
	toBal, overflow := new(uint256.Int).AddOverflow(b.get(to), amount)
	if overflow {
		return fmt.Errorf("%w: balance of %s", domain.ErrAmountOverflow, to.Hex())
	}
	b.set(tx, from, new(uint256.Int).Sub(fromBal, amount))
	b.set(tx, to, toBal)
	return nil
}

// mint credits account and grows supply.
func (b balances) mint(tx *ledger.Tx, supply *uint256.Int, account common.Address, amount *uint256.Int) error {
	newSupply, overflow := new(uint256.Int).AddOverflow(supply, amount)
	if overflow {
		return fmt.Errorf("%w: total supply", domain.ErrAmountOverflow)
	}
	old := *supply
	*supply = *newSupply
	tx.OnRollback(func() { *supply = old })
	b.set(tx, account, new(uint256.Int).Add(b.get(account), amount))
	return nil
}
