package settlement

import (
	"context"
	"crypto/ecdsa"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"

	"github.com/dvpsettle/dvpd/internal/domain"
	"github.com/dvpsettle/dvpd/internal/executor"
	"github.com/dvpsettle/dvpd/internal/ledger"
	"github.com/dvpsettle/dvpd/internal/metadata"
	"github.com/dvpsettle/dvpd/internal/pool"
	"github.com/dvpsettle/dvpd/internal/token"
)

type directory struct {
	cash      map[common.Address]*token.Cash
	security  map[common.Address]*token.Security
	executors map[common.Address]*executor.Executor
}

func (d *directory) CashLedger(addr common.Address) (CashLedger, error) {
	if c, ok := d.cash[addr]; ok {
		return c, nil
	}
	return nil, domain.ErrTokenNotFound
}

func (d *directory) SecurityLedger(addr common.Address) (SecurityLedger, error) {
	if s, ok := d.security[addr]; ok {
		return s, nil
	}
	return nil, domain.ErrTokenNotFound
}

func (d *directory) CashLegExecutor(addr common.Address) (CashLegExecutor, error) {
	if e, ok := d.executors[addr]; ok {
		return e, nil
	}
	return nil, domain.ErrExecutorNotFound
}

type actor struct {
	key  *ecdsa.PrivateKey
	addr common.Address
}

func newActor(t *testing.T) actor {
	t.Helper()
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	return actor{key: key, addr: crypto.PubkeyToAddress(key.PublicKey)}
}

// world is a ledger set up the way the register admin prepares a bond
// issuance: the BnD party holds the whole supply, the buyer holds cash.
type world struct {
	l                             *ledger.Ledger
	dir                           *directory
	factory                       *Factory
	register                      *token.Security
	sek, eur, usd                 *token.Cash
	pool                          *pool.Pool
	fx                            *executor.Executor
	cak, bnd, custodian, investor actor
	banker                        actor
}

func units(n uint64) *uint256.Int {
	return new(uint256.Int).Mul(uint256.NewInt(n), uint256.NewInt(1_000_000_000_000_000_000))
}

func newWorld(t *testing.T, supply uint64) *world {
	t.Helper()
	w := &world{
		l: ledger.New(),
		dir: &directory{
			cash:      make(map[common.Address]*token.Cash),
			security:  make(map[common.Address]*token.Security),
			executors: make(map[common.Address]*executor.Executor),
		},
		cak:       newActor(t),
		bnd:       newActor(t),
		custodian: newActor(t),
		investor:  newActor(t),
		banker:    newActor(t),
	}

	w.mustExec(t, func(tx *ledger.Tx) error {
		w.factory = DeployFactory(tx, w.cak.addr, w.dir)

		w.register = token.DeploySecurity(tx, w.cak.addr, token.SecurityInfo{Symbol: "EIB3Y", Name: "EIB 3Y 1Bn SEK"}, w.cak.addr)
		w.dir.security[w.register.Address()] = w.register
		for _, step := range []func() error{
			func() error { return w.register.GrantBnD(tx, w.cak.addr, w.bnd.addr) },
			func() error { return w.register.GrantCustodian(tx, w.cak.addr, w.custodian.addr) },
			func() error { return w.register.WhitelistInvestor(tx, w.custodian.addr, w.investor.addr) },
			func() error { return w.register.WhitelistCode(tx, w.cak.addr, CodeHash) },
			func() error { return w.register.MakeReady(tx, w.cak.addr, uint256.NewInt(supply)) },
			func() error { return w.register.ValidatePrimaryIssuance(tx, w.bnd.addr) },
		} {
			if err := step(); err != nil {
				return err
			}
		}

		w.sek = token.DeployCash(tx, w.banker.addr, "SEK", w.banker.addr)
		w.eur = token.DeployCash(tx, w.banker.addr, "EUR", w.banker.addr)
		w.usd = token.DeployCash(tx, w.banker.addr, "USD", w.banker.addr)
		for _, c := range []*token.Cash{w.sek, w.eur, w.usd} {
			w.dir.cash[c.Address()] = c
		}

		p, err := pool.Deploy(tx, w.banker.addr, w.eur, w.usd, 4)
		if err != nil {
			return err
		}
		w.pool = p
		if w.fx, err = executor.Deploy(tx, w.banker.addr, p, w.eur, w.usd, w.factory); err != nil {
			return err
		}
		w.dir.executors[w.fx.Address()] = w.fx
		return nil
	})
	return w
}

func (w *world) exec(fn func(tx *ledger.Tx) error) ([]ledger.Event, error) {
	return w.l.Execute(context.Background(), fn)
}

func (w *world) mustExec(t *testing.T, fn func(tx *ledger.Tx) error) []ledger.Event {
	t.Helper()
	events, err := w.exec(fn)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	return events
}

func (w *world) create(t *testing.T, operator common.Address) *Settlement {
	t.Helper()
	var s *Settlement
	w.mustExec(t, func(tx *ledger.Tx) error {
		var err error
		s, err = w.factory.Create(tx, operator)
		return err
	})
	return s
}

func (w *world) balance(tok token.Ledger, account common.Address) *uint256.Int {
	var out *uint256.Int
	w.l.View(func(v *ledger.View) { out = tok.BalanceOf(v, account) })
	return out
}

func (w *world) state(s *Settlement) domain.SettlementState {
	var out domain.SettlementState
	w.l.View(func(v *ledger.View) { out = s.State(v) })
	return out
}

// sealedTrade seals metadata for buyer and seller and returns matching
// details.
func (w *world) sealedTrade(t *testing.T, quantity uint64, price *uint256.Int, cashToken, exec common.Address) (domain.TradeDetails, *metadata.Sealed) {
	t.Helper()
	sealed, err := metadata.Seal("\nISIN EIB3Y\nMT202", true, &w.bnd.key.PublicKey, &w.investor.key.PublicKey)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	d := domain.TradeDetails{
		MetadataCommitment: sealed.Commitment,
		CashToken:          cashToken,
		CashLegExecutor:    exec,
		SecurityToken:      w.register.Address(),
		Buyer:              w.investor.addr,
		Seller:             w.bnd.addr,
		TradeDate:          123,
		ValueDate:          234,
	}
	d.Quantity.SetUint64(quantity)
	d.Price = *price
	return d, sealed
}
