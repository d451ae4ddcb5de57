package pool

import (
	"context"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/dvpsettle/dvpd/internal/domain"
	"github.com/dvpsettle/dvpd/internal/ledger"
	"github.com/dvpsettle/dvpd/internal/token"
)

var (
	banker = common.HexToAddress("0x00000000000000000000000000000000000ba4c0")
	trader = common.HexToAddress("0x000000000000000000000000000000000000000a")
)

type fixture struct {
	l        *ledger.Ledger
	eur, usd *token.Cash
	pool     *Pool
}

// newFixture funds a pool with reserve units of each token and gives the
// trader traderEUR euros already approved to the pool.
func newFixture(t *testing.T, reserve, traderEUR uint64, feeBps uint64) *fixture {
	t.Helper()
	f := &fixture{l: ledger.New()}
	_, err := f.l.Execute(context.Background(), func(tx *ledger.Tx) error {
		f.eur = token.DeployCash(tx, banker, "EUR", banker)
		f.usd = token.DeployCash(tx, banker, "USD", banker)
		p, err := Deploy(tx, banker, f.eur, f.usd, feeBps)
		if err != nil {
			return err
		}
		f.pool = p
		for _, step := range []error{
			f.eur.Mint(tx, banker, banker, uint256.NewInt(reserve)),
			f.usd.Mint(tx, banker, banker, uint256.NewInt(reserve)),
			p.AddLiquidity(tx, banker, uint256.NewInt(reserve), uint256.NewInt(reserve)),
			f.eur.Mint(tx, banker, trader, uint256.NewInt(traderEUR)),
			f.eur.Approve(tx, trader, p.Address(), uint256.NewInt(traderEUR)),
		} {
			if step != nil {
				return step
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("fixture: %v", err)
	}
	return f
}

func (f *fixture) view(fn func(v *ledger.View)) { f.l.View(fn) }

func TestDeploy_Validation(t *testing.T) {
	l := ledger.New()
	_, _ = l.Execute(context.Background(), func(tx *ledger.Tx) error {
		eur := token.DeployCash(tx, banker, "EUR", banker)
		usd := token.DeployCash(tx, banker, "USD", banker)
		var ve *domain.ValidationError
		if _, err := Deploy(tx, banker, eur, eur, 4); !errors.As(err, &ve) {
			t.Errorf("same tokens err = %v, want ValidationError", err)
		}
		if _, err := Deploy(tx, banker, eur, usd, 10_000); !errors.As(err, &ve) {
			t.Errorf("fee 10000 err = %v, want ValidationError", err)
		}
		return nil
	})
}

func TestQuote(t *testing.T) {
	f := newFixture(t, 1000, 0, 0)
	f.view(func(v *ledger.View) {
		// 100·1000 / (1000+100) = 90.9
		out, err := f.pool.Quote(v, f.eur.Address(), uint256.NewInt(100))
		if err != nil {
			t.Fatalf("Quote: %v", err)
		}
		if out.Uint64() != 90 {
			t.Errorf("out = %d, want 90", out.Uint64())
		}

		if _, err := f.pool.Quote(v, common.Address{1}, uint256.NewInt(1)); !errors.Is(err, domain.ErrCurrencyMismatch) {
			t.Errorf("foreign token err = %v, want ErrCurrencyMismatch", err)
		}
	})
}

func TestQuoteExactOut(t *testing.T) {
	f := newFixture(t, 30_000_000, 0, 4)
	f.view(func(v *ledger.View) {
		for _, want := range []uint64{1, 10, 1000, 11_000_000, 29_999_999} {
			in, err := f.pool.QuoteExactOut(v, f.eur.Address(), uint256.NewInt(want))
			if err != nil {
				t.Fatalf("QuoteExactOut(%d): %v", want, err)
			}
			out, err := f.pool.Quote(v, f.eur.Address(), in)
			if err != nil {
				t.Fatalf("Quote: %v", err)
			}
			if out.Uint64() < want {
				t.Errorf("input %d for %d yields only %d", in.Uint64(), want, out.Uint64())
			}
		}

		for _, want := range []uint64{30_000_000, 40_000_000} {
			if _, err := f.pool.QuoteExactOut(v, f.eur.Address(), uint256.NewInt(want)); !errors.Is(err, domain.ErrInsufficientLiquidity) {
				t.Errorf("QuoteExactOut(%d) err = %v, want ErrInsufficientLiquidity", want, err)
			}
		}
	})
}

func TestSwap(t *testing.T) {
	f := newFixture(t, 1000, 100, 0)
	var out *uint256.Int
	_, err := f.l.Execute(context.Background(), func(tx *ledger.Tx) error {
		var err error
		out, err = f.pool.Swap(tx, trader, f.eur.Address(), uint256.NewInt(100), uint256.NewInt(90))
		return err
	})
	if err != nil {
		t.Fatalf("Swap: %v", err)
	}
	if out.Uint64() != 90 {
		t.Errorf("out = %d, want 90", out.Uint64())
	}
	f.view(func(v *ledger.View) {
		if got := f.usd.BalanceOf(v, trader).Uint64(); got != 90 {
			t.Errorf("trader usd = %d, want 90", got)
		}
		rin, rout, _ := f.pool.Reserves(v, f.eur.Address())
		if rin.Uint64() != 1100 || rout.Uint64() != 910 {
			t.Errorf("reserves = %d/%d, want 1100/910", rin.Uint64(), rout.Uint64())
		}
	})
}

func TestSwap_Slippage(t *testing.T) {
	f := newFixture(t, 1000, 100, 0)
	_, err := f.l.Execute(context.Background(), func(tx *ledger.Tx) error {
		_, err := f.pool.Swap(tx, trader, f.eur.Address(), uint256.NewInt(100), uint256.NewInt(91))
		return err
	})
	if !errors.Is(err, domain.ErrInsufficientLiquidity) {
		t.Errorf("err = %v, want ErrInsufficientLiquidity", err)
	}
	f.view(func(v *ledger.View) {
		if got := f.eur.BalanceOf(v, trader).Uint64(); got != 100 {
			t.Errorf("trader eur = %d, want 100 after failed swap", got)
		}
	})
}

func TestSwap_NeedsApproval(t *testing.T) {
	f := newFixture(t, 1000, 100, 0)
	_, err := f.l.Execute(context.Background(), func(tx *ledger.Tx) error {
		if err := f.eur.Approve(tx, trader, f.pool.Address(), uint256.NewInt(0)); err != nil {
			return err
		}
		_, err := f.pool.Swap(tx, trader, f.eur.Address(), uint256.NewInt(100), uint256.NewInt(1))
		return err
	})
	if !errors.Is(err, domain.ErrInsufficientAllowance) {
		t.Errorf("err = %v, want ErrInsufficientAllowance", err)
	}
}
