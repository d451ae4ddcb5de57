package settlement

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/dvpsettle/dvpd/internal/domain"
	"github.com/dvpsettle/dvpd/internal/ledger"
)

// CodeHash is shared by every settlement instance, so a security register
// whitelists all of them with one entry.
var CodeHash = crypto.Keccak256Hash([]byte("dvpd/trade-settlement/v1"))

// FactoryCodeHash identifies the factory contract itself.
var FactoryCodeHash = crypto.Keccak256Hash([]byte("dvpd/settlement-factory/v1"))

// Factory creates settlement instances and remembers which addresses are
// its own.
type Factory struct {
	addr      common.Address
	resolver  Resolver
	instances map[common.Address]*Settlement
	order     []common.Address
}

// DeployFactory deploys a factory whose instances resolve contracts through
// resolver.
func DeployFactory(tx *ledger.Tx, deployer common.Address, resolver Resolver) *Factory {
	return &Factory{
		addr:      tx.Deploy(deployer, FactoryCodeHash),
		resolver:  resolver,
		instances: make(map[common.Address]*Settlement),
	}
}

func (f *Factory) Address() common.Address { return f.addr }

// Create deploys a fresh instance with operator fixed for its lifetime.
func (f *Factory) Create(tx *ledger.Tx, operator common.Address) (*Settlement, error) {
	if operator == (common.Address{}) {
		return nil, &domain.ValidationError{Message: "operator is required"}
	}

	s := &Settlement{
		addr:      tx.Deploy(f.addr, CodeHash),
		operator:  operator,
		resolver:  f.resolver,
		createdAt: tx.Now(),
	}
	f.instances[s.addr] = s
	f.order = append(f.order, s.addr)
	tx.OnRollback(func() {
		delete(f.instances, s.addr)
		f.order = f.order[:len(f.order)-1]
	})

	tx.Emit(f.addr, domain.EventSettlementCreated, domain.SettlementCreated{
		Instance: s.addr,
		Operator: operator,
	}, operator)
	return s, nil
}

// IsInstance reports whether addr was created by this factory.
func (f *Factory) IsInstance(_ ledger.Reader, addr common.Address) bool {
	_, ok := f.instances[addr]
	return ok
}

// Get returns the instance at addr.
func (f *Factory) Get(_ ledger.Reader, addr common.Address) (*Settlement, error) {
	s, ok := f.instances[addr]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrSettlementNotFound, addr.Hex())
	}
	return s, nil
}

// Instances returns every instance in creation order.
func (f *Factory) Instances(_ ledger.Reader) []*Settlement {
	out := make([]*Settlement, len(f.order))
	for i, addr := range f.order {
		out[i] = f.instances[addr]
	}
	return out
}
