// Package executor settles cash legs whose buyer and seller hold different
// currencies by converting through a liquidity pool.
package executor

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"

	"github.com/dvpsettle/dvpd/internal/domain"
	"github.com/dvpsettle/dvpd/internal/ledger"
	"github.com/dvpsettle/dvpd/internal/pool"
	"github.com/dvpsettle/dvpd/internal/token"
)

// CodeHash identifies executor contracts on the ledger.
var CodeHash = crypto.Keccak256Hash([]byte("dvpd/cash-leg-executor/v1"))

// InstanceChecker tells whether an address is a settlement instance the
// executor may serve.
type InstanceChecker interface {
	IsInstance(r ledger.Reader, addr common.Address) bool
}

// Result reports what a conversion cost and produced.
type Result struct {
	AmountIn  *uint256.Int
	AmountOut *uint256.Int
}

// Executor converts BuyerCurrency into SellerCurrency through one pool on
// behalf of settlement instances.
type Executor struct {
	addr      common.Address
	pool      *pool.Pool
	buyerCur  *token.Cash
	sellerCur *token.Cash
	instances InstanceChecker
}

// Deploy creates an executor for the currency pair. Both currencies must be
// traded by p.
func Deploy(tx *ledger.Tx, deployer common.Address, p *pool.Pool, buyerCur, sellerCur *token.Cash, instances InstanceChecker) (*Executor, error) {
	t0, t1 := p.Tokens()
	pair := map[common.Address]bool{t0.Address(): true, t1.Address(): true}
	if buyerCur.Address() == sellerCur.Address() || !pair[buyerCur.Address()] || !pair[sellerCur.Address()] {
		return nil, &domain.ValidationError{Message: "executor currencies must be the two tokens of the pool"}
	}
	return &Executor{
		addr:      tx.Deploy(deployer, CodeHash),
		pool:      p,
		buyerCur:  buyerCur,
		sellerCur: sellerCur,
		instances: instances,
	}, nil
}

func (e *Executor) Address() common.Address        { return e.addr }
func (e *Executor) BuyerCurrency() common.Address  { return e.buyerCur.Address() }
func (e *Executor) SellerCurrency() common.Address { return e.sellerCur.Address() }
func (e *Executor) Pool() *pool.Pool               { return e.pool }

// Execute pays leg.Amount of the seller currency to the seller, funded from
// the buyer's balance in the buyer currency. The buyer must have approved
// the executor for the converted amount. Any failure leaves no funds
// pulled because the surrounding transaction rolls back.
func (e *Executor) Execute(tx *ledger.Tx, caller common.Address, leg domain.CashLeg) (*Result, error) {
	if !e.instances.IsInstance(tx, caller) {
		return nil, fmt.Errorf("%w: %s is not a settlement instance", domain.ErrUnauthorized, caller.Hex())
	}
	if leg.BuyerCurrency != e.buyerCur.Address() || leg.SellerCurrency != e.sellerCur.Address() {
		return nil, fmt.Errorf("%w: executor converts %s to %s", domain.ErrCurrencyMismatch, e.buyerCur.Symbol(), e.sellerCur.Symbol())
	}

	// Step 1: Quote the input needed for the exact output.
	amountIn, err := e.pool.QuoteExactOut(tx, e.buyerCur.Address(), leg.Amount)
	if err != nil {
		return nil, err
	}

	// Step 2: Pull the input from the buyer.
	if err := e.buyerCur.TransferFrom(tx, e.addr, leg.Buyer, e.addr, amountIn); err != nil {
		return nil, err
	}

	// Step 3: Swap, refusing anything below the seller's amount.
	if err := e.buyerCur.Approve(tx, e.addr, e.pool.Address(), amountIn); err != nil {
		return nil, err
	}
	amountOut, err := e.pool.Swap(tx, e.addr, e.buyerCur.Address(), amountIn, leg.Amount)
	if err != nil {
		return nil, err
	}

	// Step 4: Forward the whole output to the seller.
	if err := e.sellerCur.Transfer(tx, e.addr, leg.Seller, amountOut); err != nil {
		return nil, err
	}

	tx.Emit(e.addr, domain.EventCashLegExecuted, domain.CashLegExecuted{
		Buyer:     leg.Buyer,
		Seller:    leg.Seller,
		AmountIn:  amountIn.Dec(),
		AmountOut: amountOut.Dec(),
	}, leg.Buyer, leg.Seller)

	return &Result{AmountIn: amountIn, AmountOut: amountOut}, nil
}
