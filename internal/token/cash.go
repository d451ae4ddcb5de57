package token

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"

	"github.com/dvpsettle/dvpd/internal/domain"
	"github.com/dvpsettle/dvpd/internal/ledger"
)

// Decimals is the number of fractional digits of every cash token.
const Decimals = 18

// CashCodeHash identifies cash token contracts on the ledger.
var CashCodeHash = crypto.Keccak256Hash([]byte("dvpd/cash-token/v1"))

type allowanceKey struct {
	owner, spender common.Address
}

// Cash is a fungible cash token with ERC-20 style allowances. All methods
// taking a Reader or Tx must run under the ledger lock.
type Cash struct {
	addr       common.Address
	symbol     string
	issuer     common.Address
	supply     uint256.Int
	balances   balances
	allowances map[allowanceKey]uint256.Int
}

// DeployCash deploys a new cash token. issuer is the only account allowed
// to mint.
func DeployCash(tx *ledger.Tx, deployer common.Address, symbol string, issuer common.Address) *Cash {
	return &Cash{
		addr:       tx.Deploy(deployer, CashCodeHash),
		symbol:     symbol,
		issuer:     issuer,
		balances:   make(balances),
		allowances: make(map[allowanceKey]uint256.Int),
	}
}

func (c *Cash) Address() common.Address { return c.addr }
func (c *Cash) Symbol() string          { return c.symbol }
func (c *Cash) Issuer() common.Address  { return c.issuer }

// Mint creates amount new units for to.
func (c *Cash) Mint(tx *ledger.Tx, caller, to common.Address, amount *uint256.Int) error {
	if caller != c.issuer {
		return fmt.Errorf("%w: only the issuer of %s may mint", domain.ErrUnauthorized, c.symbol)
	}
	if err := c.balances.mint(tx, &c.supply, to, amount); err != nil {
		return err
	}
	tx.Emit(c.addr, domain.EventTokenIssued, domain.TokenIssued{Account: to, Amount: amount.Dec()}, to)
	return nil
}

// Transfer moves amount from the caller to to.
func (c *Cash) Transfer(tx *ledger.Tx, from, to common.Address, amount *uint256.Int) error {
	if err := c.balances.move(tx, from, to, amount); err != nil {
		return err
	}
	tx.Emit(c.addr, domain.EventTokenTransfer, domain.NewTokenTransfer(from, to, amount), from, to)
	return nil
}

// Approve sets the amount spender may pull from owner, replacing any
// previous allowance.
func (c *Cash) Approve(tx *ledger.Tx, owner, spender common.Address, amount *uint256.Int) error {
	setAmount(tx, c.allowances, allowanceKey{owner, spender}, amount)
	tx.Emit(c.addr, domain.EventTokenApproval, domain.TokenApproval{Owner: owner, Spender: spender, Amount: amount.Dec()}, owner, spender)
	return nil
}

// TransferFrom moves amount from from to to on behalf of spender, consuming
// the allowance from granted to spender.
func (c *Cash) TransferFrom(tx *ledger.Tx, spender, from, to common.Address, amount *uint256.Int) error {
	key := allowanceKey{from, spender}
	allowed := c.allowances[key]
	if allowed.Lt(amount) {
		return fmt.Errorf("%w: %s may spend %s of %s, needs %s",
			domain.ErrInsufficientAllowance, spender.Hex(), allowed.Dec(), from.Hex(), amount.Dec())
	}
	if err := c.balances.move(tx, from, to, amount); err != nil {
		return err
	}

	setAmount(tx, c.allowances, key, new(uint256.Int).Sub(&allowed, amount))

	tx.Emit(c.addr, domain.EventTokenTransfer, domain.NewTokenTransfer(from, to, amount), from, to)
	return nil
}

// BalanceOf returns the balance of account.
func (c *Cash) BalanceOf(_ ledger.Reader, account common.Address) *uint256.Int {
	return c.balances.get(account)
}

// Allowance returns what spender may still pull from owner.
func (c *Cash) Allowance(_ ledger.Reader, owner, spender common.Address) *uint256.Int {
	v := c.allowances[allowanceKey{owner, spender}]
	return &v
}

// TotalSupply returns the number of units in existence.
func (c *Cash) TotalSupply(_ ledger.Reader) *uint256.Int {
	v := c.supply
	return &v
}
