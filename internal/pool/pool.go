// Package pool is a constant-product liquidity pool between two cash
// tokens, used to convert the buyer's currency into the seller's.
package pool

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"

	"github.com/dvpsettle/dvpd/internal/domain"
	"github.com/dvpsettle/dvpd/internal/ledger"
	"github.com/dvpsettle/dvpd/internal/token"
)

// CodeHash identifies pool contracts on the ledger.
var CodeHash = crypto.Keccak256Hash([]byte("dvpd/liquidity-pool/v1"))

const bpsDenominator = 10_000

// Pool holds reserves of two tokens. The reserves are the pool's own
// balances on the token ledgers, so anything transferred to the pool
// address becomes liquidity.
type Pool struct {
	addr   common.Address
	token0 *token.Cash
	token1 *token.Cash
	feeBps uint64
}

// Deploy creates a pool for the pair with a swap fee in basis points.
func Deploy(tx *ledger.Tx, deployer common.Address, token0, token1 *token.Cash, feeBps uint64) (*Pool, error) {
	if token0.Address() == token1.Address() {
		return nil, &domain.ValidationError{Message: "pool tokens must differ"}
	}
	if feeBps >= bpsDenominator {
		return nil, &domain.ValidationError{Message: "fee must be below 10000 bps"}
	}
	return &Pool{
		addr:   tx.Deploy(deployer, CodeHash),
		token0: token0,
		token1: token1,
		feeBps: feeBps,
	}, nil
}

func (p *Pool) Address() common.Address { return p.addr }
func (p *Pool) FeeBps() uint64          { return p.feeBps }

// Tokens returns the pair in deployment order.
func (p *Pool) Tokens() (*token.Cash, *token.Cash) { return p.token0, p.token1 }

// pair orients the pool for a swap that sells tokenIn.
func (p *Pool) pair(tokenIn common.Address) (in, out *token.Cash, err error) {
	switch tokenIn {
	case p.token0.Address():
		return p.token0, p.token1, nil
	case p.token1.Address():
		return p.token1, p.token0, nil
	}
	return nil, nil, fmt.Errorf("%w: token %s is not traded by pool %s", domain.ErrCurrencyMismatch, tokenIn.Hex(), p.addr.Hex())
}

// Reserves returns the pool balances of tokenIn and the opposite token.
func (p *Pool) Reserves(r ledger.Reader, tokenIn common.Address) (reserveIn, reserveOut *uint256.Int, err error) {
	in, out, err := p.pair(tokenIn)
	if err != nil {
		return nil, nil, err
	}
	return in.BalanceOf(r, p.addr), out.BalanceOf(r, p.addr), nil
}

// Quote returns the output of selling amountIn of tokenIn.
//
//	out = amountIn·(1−fee)·reserveOut / (reserveIn + amountIn·(1−fee))
func (p *Pool) Quote(r ledger.Reader, tokenIn common.Address, amountIn *uint256.Int) (*uint256.Int, error) {
	reserveIn, reserveOut, err := p.Reserves(r, tokenIn)
	if err != nil {
		return nil, err
	}
	if reserveIn.IsZero() || reserveOut.IsZero() {
		return nil, fmt.Errorf("%w: pool %s is empty", domain.ErrInsufficientLiquidity, p.addr.Hex())
	}

	withFee, o1 := new(uint256.Int).MulOverflow(amountIn, uint256.NewInt(bpsDenominator-p.feeBps))
	num, o2 := new(uint256.Int).MulOverflow(withFee, reserveOut)
	den, o3 := new(uint256.Int).MulOverflow(reserveIn, uint256.NewInt(bpsDenominator))
	den, o4 := den.AddOverflow(den, withFee)
	if o1 || o2 || o3 || o4 {
		return nil, fmt.Errorf("%w: quote for %s", domain.ErrAmountOverflow, amountIn.Dec())
	}
	return num.Div(num, den), nil
}

// QuoteExactOut returns the smallest input of tokenIn that buys at least
// amountOut of the opposite token.
//
//	in = reserveIn·amountOut / ((reserveOut − amountOut)·(1−fee)) + 1
func (p *Pool) QuoteExactOut(r ledger.Reader, tokenIn common.Address, amountOut *uint256.Int) (*uint256.Int, error) {
	reserveIn, reserveOut, err := p.Reserves(r, tokenIn)
	if err != nil {
		return nil, err
	}
	if amountOut.IsZero() {
		return new(uint256.Int), nil
	}
	if reserveIn.IsZero() || !amountOut.Lt(reserveOut) {
		return nil, fmt.Errorf("%w: pool %s holds %s, %s requested",
			domain.ErrInsufficientLiquidity, p.addr.Hex(), reserveOut.Dec(), amountOut.Dec())
	}

	num, o1 := new(uint256.Int).MulOverflow(reserveIn, amountOut)
	num, o2 := num.MulOverflow(num, uint256.NewInt(bpsDenominator))
	den, o3 := new(uint256.Int).MulOverflow(new(uint256.Int).Sub(reserveOut, amountOut), uint256.NewInt(bpsDenominator-p.feeBps))
	if o1 || o2 || o3 {
		return nil, fmt.Errorf("%w: quote for %s", domain.ErrAmountOverflow, amountOut.Dec())
	}
	in := num.Div(num, den)
	return in.AddUint64(in, 1), nil
}

// Swap sells amountIn of tokenIn for the opposite token. The pool pulls the
// input from trader, which must have approved the pool, and pays the output
// to trader. It fails with ErrInsufficientLiquidity when the output would be
// below minOut.
func (p *Pool) Swap(tx *ledger.Tx, trader, tokenIn common.Address, amountIn, minOut *uint256.Int) (*uint256.Int, error) {
	in, out, err := p.pair(tokenIn)
	if err != nil {
		return nil, err
	}
	amountOut, err := p.Quote(tx, tokenIn, amountIn)
	if err != nil {
		return nil, err
	}
	if amountOut.Lt(minOut) {
		return nil, fmt.Errorf("%w: swap yields %s, minimum %s", domain.ErrInsufficientLiquidity, amountOut.Dec(), minOut.Dec())
	}

	if err := in.TransferFrom(tx, p.addr, trader, p.addr, amountIn); err != nil {
		return nil, err
	}
	if err := out.Transfer(tx, p.addr, trader, amountOut); err != nil {
		return nil, err
	}
	return amountOut, nil
}

// AddLiquidity moves amounts of both tokens from provider into the pool.
func (p *Pool) AddLiquidity(tx *ledger.Tx, provider common.Address, amount0, amount1 *uint256.Int) error {
	if err := p.token0.Transfer(tx, provider, p.addr, amount0); err != nil {
		return err
	}
	return p.token1.Transfer(tx, provider, p.addr, amount1)
}
