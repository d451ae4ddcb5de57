package service

import (
	"context"
	"crypto/ecdsa"
	"io"
	"log/slog"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/dvpsettle/dvpd/internal/genesis"
	"github.com/dvpsettle/dvpd/internal/ledger"
	"github.com/dvpsettle/dvpd/internal/store"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
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

// env is a daemon without the HTTP layer: a bond register whose BnD party
// sells to an investor paying in SEK.
type env struct {
	l            *ledger.Ledger
	contracts    *store.ContractStore
	participants *store.ParticipantStore
	metrics      *Metrics

	settlements *SettlementService
	tokens      *TokenService
	events      *EventService
	people      *ParticipantService

	sek, bond                      common.Address
	admin, seller, buyer, operator actor
	custodian, banker, outsider    actor
}

func newEnv(t *testing.T) *env {
	t.Helper()
	e := &env{
		l:            ledger.New(),
		contracts:    store.NewContractStore(),
		participants: store.NewParticipantStore(),
		metrics:      NewMetrics(prometheus.NewRegistry()),
		admin:        newActor(t),
		seller:       newActor(t),
		buyer:        newActor(t),
		operator:     newActor(t),
		custodian:    newActor(t),
		banker:       newActor(t),
		outsider:     newActor(t),
	}

	doc := &genesis.Document{
		Cash: []genesis.Cash{{
			Name:   "SEK",
			Issuer: e.banker.addr.Hex(),
			Mints:  []genesis.Mint{{To: e.buyer.addr.Hex(), Amount: "10000"}},
		}},
		Securities: []genesis.Security{{
			Name:  "BOND",
			Admin: e.admin.addr.Hex(),
			BnD:   []string{e.seller.addr.Hex()},
			Custodians: []genesis.Custodian{{
				Address:   e.custodian.addr.Hex(),
				Investors: []string{e.buyer.addr.Hex()},
			}},
			Supply:  "1000",
			IssueTo: e.seller.addr.Hex(),
		}},
	}
	res, err := genesis.Apply(context.Background(), e.l, doc, e.contracts)
	if err != nil {
		t.Fatalf("genesis: %v", err)
	}
	e.sek = res.Addresses["SEK"]
	e.bond = res.Addresses["BOND"]

	logger := discardLogger()
	e.l.Subscribe(e.metrics.ObserveEvents)
	e.settlements = NewSettlementService(e.l, res.Factory, e.metrics, logger)
	e.tokens = NewTokenService(e.l, e.contracts, logger)
	e.events = NewEventService(e.l)
	e.people = NewParticipantService(e.participants, logger)
	return e
}
