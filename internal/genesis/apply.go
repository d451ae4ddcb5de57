package genesis

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/dvpsettle/dvpd/internal/executor"
	"github.com/dvpsettle/dvpd/internal/ledger"
	"github.com/dvpsettle/dvpd/internal/pool"
	"github.com/dvpsettle/dvpd/internal/settlement"
	"github.com/dvpsettle/dvpd/internal/store"
	"github.com/dvpsettle/dvpd/internal/token"
)

// DefaultDeployer deploys the genesis contracts when the document names no
// deployer.
var DefaultDeployer = common.HexToAddress("0x00000000000000000000000000000000000d4c00")

// FactoryName is the directory name of the settlement factory.
const FactoryName = "settlement-factory"

// Result is what a successful Apply deployed.
type Result struct {
	Factory   *settlement.Factory
	Addresses map[string]common.Address
}

type deployed struct {
	factory   *settlement.Factory
	cash      map[string]*token.Cash
	security  map[string]*token.Security
	pools     map[string]*pool.Pool
	executors map[string]*executor.Executor
	order     []string
}

// Apply deploys doc in a single ledger transaction and, once committed,
// registers every contract in contracts. A nil doc deploys only the
// factory.
func Apply(ctx context.Context, l *ledger.Ledger, doc *Document, contracts *store.ContractStore) (*Result, error) {
	if doc == nil {
		doc = &Document{}
	}
	if err := doc.Validate(); err != nil {
		return nil, err
	}

	deployer := DefaultDeployer
	if doc.Deployer != "" {
		deployer = mustAddress(doc.Deployer)
	}

	d := &deployed{
		cash:      make(map[string]*token.Cash),
		security:  make(map[string]*token.Security),
		pools:     make(map[string]*pool.Pool),
		executors: make(map[string]*executor.Executor),
	}
	_, err := l.Execute(ctx, func(tx *ledger.Tx) error {
		d.factory = settlement.DeployFactory(tx, deployer, contracts)
		if err := d.deployCash(tx, deployer, doc.Cash); err != nil {
			return err
		}
		if err := d.deploySecurities(tx, deployer, doc.Securities); err != nil {
			return err
		}
		if err := d.deployPools(tx, deployer, doc.Pools); err != nil {
			return err
		}
		return d.deployExecutors(tx, deployer, doc.Executors)
	})
	if err != nil {
		return nil, fmt.Errorf("apply genesis: %w", err)
	}

	return d.register(contracts)
}

func (d *deployed) deployCash(tx *ledger.Tx, deployer common.Address, specs []Cash) error {
	for _, c := range specs {
		issuer := mustAddress(c.Issuer)
		tok := token.DeployCash(tx, deployer, c.Name, issuer)
		for _, m := range c.Mints {
			if err := tok.Mint(tx, issuer, mustAddress(m.To), mustAmount(m.Amount)); err != nil {
				return fmt.Errorf("cash %s: %w", c.Name, err)
			}
		}
		d.cash[c.Name] = tok
		d.order = append(d.order, c.Name)
	}
	return nil
}

func (d *deployed) deploySecurities(tx *ledger.Tx, deployer common.Address, specs []Security) error {
	for _, s := range specs {
		admin := mustAddress(s.Admin)
		reg := token.DeploySecurity(tx, deployer, token.SecurityInfo{Symbol: s.Name, Name: s.Title, ISIN: s.ISIN}, admin)

		steps := []func() error{
			func() error { return reg.WhitelistCode(tx, admin, settlement.CodeHash) },
		}
		for _, h := range s.Codes {
			hash := common.HexToHash(h)
			steps = append(steps, func() error { return reg.WhitelistCode(tx, admin, hash) })
		}
		for _, b := range s.BnD {
			party := mustAddress(b)
			steps = append(steps, func() error { return reg.GrantBnD(tx, admin, party) })
		}
		for _, c := range s.Custodians {
			custodian := mustAddress(c.Address)
			steps = append(steps, func() error { return reg.GrantCustodian(tx, admin, custodian) })
			for _, inv := range c.Investors {
				investor := mustAddress(inv)
				steps = append(steps, func() error { return reg.WhitelistInvestor(tx, custodian, investor) })
			}
		}
		if s.Supply != "" {
			supply := mustAmount(s.Supply)
			steps = append(steps, func() error { return reg.MakeReady(tx, admin, supply) })
		}
		if s.IssueTo != "" {
			bnd := mustAddress(s.IssueTo)
			steps = append(steps, func() error { return reg.ValidatePrimaryIssuance(tx, bnd) })
		}

		for _, step := range steps {
			if err := step(); err != nil {
				return fmt.Errorf("security %s: %w", s.Name, err)
			}
		}
		d.security[s.Name] = reg
		d.order = append(d.order, s.Name)
	}
	return nil
}

func (d *deployed) deployPools(tx *ledger.Tx, deployer common.Address, specs []Pool) error {
	for _, p := range specs {
		lp, err := pool.Deploy(tx, deployer, d.cash[p.Tokens[0]], d.cash[p.Tokens[1]], p.FeeBps)
		if err != nil {
			return fmt.Errorf("pool %s: %w", p.Name, err)
		}
		if p.Reserves[0] != "" || p.Reserves[1] != "" {
			err := lp.AddLiquidity(tx, mustAddress(p.Provider), mustAmount(p.Reserves[0]), mustAmount(p.Reserves[1]))
			if err != nil {
				return fmt.Errorf("pool %s: %w", p.Name, err)
			}
		}
		d.pools[p.Name] = lp
		d.order = append(d.order, p.Name)
	}
	return nil
}

func (d *deployed) deployExecutors(tx *ledger.Tx, deployer common.Address, specs []Executor) error {
	for _, e := range specs {
		ex, err := executor.Deploy(tx, deployer, d.pools[e.Pool], d.cash[e.BuyerCurrency], d.cash[e.SellerCurrency], d.factory)
		if err != nil {
			return fmt.Errorf("executor %s: %w", e.Name, err)
		}
		d.executors[e.Name] = ex
		d.order = append(d.order, e.Name)
	}
	return nil
}

func (d *deployed) register(contracts *store.ContractStore) (*Result, error) {
	res := &Result{
		Factory:   d.factory,
		Addresses: map[string]common.Address{FactoryName: d.factory.Address()},
	}
	if err := contracts.PutFactory(FactoryName, d.factory); err != nil {
		return nil, err
	}

	for _, name := range d.order {
		var err error
		switch {
		case d.cash[name] != nil:
			err = contracts.PutCash(name, d.cash[name])
			res.Addresses[name] = d.cash[name].Address()
		case d.security[name] != nil:
			err = contracts.PutSecurity(name, d.security[name])
			res.Addresses[name] = d.security[name].Address()
		case d.pools[name] != nil:
			err = contracts.PutPool(name, d.pools[name])
			res.Addresses[name] = d.pools[name].Address()
		case d.executors[name] != nil:
			err = contracts.PutExecutor(name, d.executors[name])
			res.Addresses[name] = d.executors[name].Address()
		}
		if err != nil {
			return nil, err
		}
	}
	return res, nil
}
