package store

import (
	"fmt"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/dvpsettle/dvpd/internal/domain"
	"github.com/dvpsettle/dvpd/internal/executor"
	"github.com/dvpsettle/dvpd/internal/pool"
	"github.com/dvpsettle/dvpd/internal/settlement"
	"github.com/dvpsettle/dvpd/internal/token"
)

// ContractKind classifies entries of the contract directory.
type ContractKind string

const (
	KindCash     ContractKind = "cash"
	KindSecurity ContractKind = "security"
	KindPool     ContractKind = "pool"
	KindExecutor ContractKind = "executor"
	KindFactory  ContractKind = "factory"
)

// ContractEntry is one named contract in the directory.
type ContractEntry struct {
	Name    string
	Kind    ContractKind
	Address common.Address
}

// ContractStore is the directory of deployed contracts. It resolves the
// addresses named in trade details for settlement instances.
type ContractStore struct {
	mu        sync.RWMutex
	entries   map[common.Address]ContractEntry
	byName    map[string]common.Address
	cash      map[common.Address]*token.Cash
	security  map[common.Address]*token.Security
	pools     map[common.Address]*pool.Pool
	executors map[common.Address]*executor.Executor
}

// NewContractStore creates an empty ContractStore.
func NewContractStore() *ContractStore {
	return &ContractStore{
		entries:   make(map[common.Address]ContractEntry),
		byName:    make(map[string]common.Address),
		cash:      make(map[common.Address]*token.Cash),
		security:  make(map[common.Address]*token.Security),
		pools:     make(map[common.Address]*pool.Pool),
		executors: make(map[common.Address]*executor.Executor),
	}
}

func (s *ContractStore) add(name string, kind ContractKind, addr common.Address) error {
	if _, taken := s.byName[name]; taken {
		return &domain.ValidationError{Message: fmt.Sprintf("contract name %q is already registered", name)}
	}
	s.entries[addr] = ContractEntry{Name: name, Kind: kind, Address: addr}
	s.byName[name] = addr
	return nil
}

// PutCash registers a cash token under name.
func (s *ContractStore) PutCash(name string, c *token.Cash) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.add(name, KindCash, c.Address()); err != nil {
		return err
	}
	s.cash[c.Address()] = c
	return nil
}

// PutSecurity registers a security register under name.
func (s *ContractStore) PutSecurity(name string, sec *token.Security) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.add(name, KindSecurity, sec.Address()); err != nil {
		return err
	}
	s.security[sec.Address()] = sec
	return nil
}

// PutPool registers a liquidity pool under name.
func (s *ContractStore) PutPool(name string, p *pool.Pool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.add(name, KindPool, p.Address()); err != nil {
		return err
	}
	s.pools[p.Address()] = p
	return nil
}

// PutExecutor registers a cash-leg executor under name.
func (s *ContractStore) PutExecutor(name string, e *executor.Executor) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.add(name, KindExecutor, e.Address()); err != nil {
		return err
	}
	s.executors[e.Address()] = e
	return nil
}

// PutFactory records the settlement factory address under name.
func (s *ContractStore) PutFactory(name string, f *settlement.Factory) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.add(name, KindFactory, f.Address())
}

// Cash returns the cash token at addr.
func (s *ContractStore) Cash(addr common.Address) (*token.Cash, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.cash[addr]
	if !ok {
		return nil, fmt.Errorf("%w: no cash token at %s", domain.ErrTokenNotFound, addr.Hex())
	}
	return c, nil
}

// Security returns the security register at addr.
func (s *ContractStore) Security(addr common.Address) (*token.Security, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sec, ok := s.security[addr]
	if !ok {
		return nil, fmt.Errorf("%w: no security register at %s", domain.ErrTokenNotFound, addr.Hex())
	}
	return sec, nil
}

// Token returns the cash token or security register at addr.
func (s *ContractStore) Token(addr common.Address) (token.Ledger, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if c, ok := s.cash[addr]; ok {
		return c, nil
	}
	if sec, ok := s.security[addr]; ok {
		return sec, nil
	}
	return nil, fmt.Errorf("%w: %s", domain.ErrTokenNotFound, addr.Hex())
}

// Pool returns the liquidity pool at addr.
func (s *ContractStore) Pool(addr common.Address) (*pool.Pool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.pools[addr]
	if !ok {
		return nil, fmt.Errorf("%w: no pool at %s", domain.ErrTokenNotFound, addr.Hex())
	}
	return p, nil
}

// Executor returns the cash-leg executor at addr.
func (s *ContractStore) Executor(addr common.Address) (*executor.Executor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.executors[addr]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrExecutorNotFound, addr.Hex())
	}
	return e, nil
}

// CashLedger implements settlement.Resolver.
func (s *ContractStore) CashLedger(addr common.Address) (settlement.CashLedger, error) {
	v, err := s.Cash(addr)
	if err != nil {
		return nil, err
	}
	return v, nil
}

// SecurityLedger implements settlement.Resolver.
func (s *ContractStore) SecurityLedger(addr common.Address) (settlement.SecurityLedger, error) {
	v, err := s.Security(addr)
	if err != nil {
		return nil, err
	}
	return v, nil
}

// CashLegExecutor implements settlement.Resolver.
func (s *ContractStore) CashLegExecutor(addr common.Address) (settlement.CashLegExecutor, error) {
	v, err := s.Executor(addr)
	if err != nil {
		return nil, err
	}
	return v, nil
}

// Lookup returns the address registered under name.
func (s *ContractStore) Lookup(name string) (common.Address, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	addr, ok := s.byName[name]
	return addr, ok
}

// Entries lists the directory ordered by name.
func (s *ContractStore) Entries() []ContractEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]ContractEntry, 0, len(s.entries))
	for _, e := range s.entries {
		result = append(result, e)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result
}
