package token

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"

	"github.com/dvpsettle/dvpd/internal/domain"
	"github.com/dvpsettle/dvpd/internal/ledger"
)

// SecurityCodeHash identifies security registers on the ledger.
var SecurityCodeHash = crypto.Keccak256Hash([]byte("dvpd/security-register/v1"))

// SecurityInfo is the static description of an issued security.
type SecurityInfo struct {
	Symbol string
	Name   string
	ISIN   string
}

// Security is a register of holdings in one security. The admin (the
// central account keeper) appoints BnD parties and custodians; custodians
// whitelist investors; the admin whitelists the code of contracts allowed
// to move holdings.
type Security struct {
	addr  common.Address
	info  SecurityInfo
	admin common.Address
	pia   common.Address // primary issuance account

	bnd        map[common.Address]bool
	custodians map[common.Address]bool
	investors  map[common.Address]common.Address // investor -> custodian
	codes      map[common.Hash]bool

	ready    bool
	issued   bool
	supply   uint256.Int
	balances balances
}

// DeploySecurity deploys a new register administered by admin.
func DeploySecurity(tx *ledger.Tx, deployer common.Address, info SecurityInfo, admin common.Address) *Security {
	addr := tx.Deploy(deployer, SecurityCodeHash)
	return &Security{
		addr:       addr,
		info:       info,
		admin:      admin,
		pia:        crypto.CreateAddress(addr, 0),
		bnd:        make(map[common.Address]bool),
		custodians: make(map[common.Address]bool),
		investors:  make(map[common.Address]common.Address),
		codes:      make(map[common.Hash]bool),
		balances:   make(balances),
	}
}

func (s *Security) Address() common.Address { return s.addr }
func (s *Security) Symbol() string          { return s.info.Symbol }
func (s *Security) Info() SecurityInfo      { return s.info }
func (s *Security) Admin() common.Address   { return s.admin }

// PrimaryIssuanceAccount holds the whole supply between MakeReady and
// ValidatePrimaryIssuance.
func (s *Security) PrimaryIssuanceAccount() common.Address { return s.pia }

func (s *Security) requireAdmin(caller common.Address, action string) error {
	if caller != s.admin {
		return fmt.Errorf("%w: only the register admin may %s", domain.ErrUnauthorized, action)
	}
	return nil
}

// GrantBnD appoints a BnD (bookrunner and distributor) party.
func (s *Security) GrantBnD(tx *ledger.Tx, caller, party common.Address) error {
	if err := s.requireAdmin(caller, "grant the BnD role"); err != nil {
		return err
	}
	setFlag(tx, s.bnd, party)
	return nil
}

// GrantCustodian appoints a custodian.
func (s *Security) GrantCustodian(tx *ledger.Tx, caller, custodian common.Address) error {
	if err := s.requireAdmin(caller, "grant the custodian role"); err != nil {
		return err
	}
	setFlag(tx, s.custodians, custodian)
	return nil
}

// WhitelistInvestor lets investor hold the security. Only custodians may
// whitelist.
func (s *Security) WhitelistInvestor(tx *ledger.Tx, caller, investor common.Address) error {
	if !s.custodians[caller] {
		return fmt.Errorf("%w: only a custodian may whitelist investors", domain.ErrUnauthorized)
	}
	old, had := s.investors[investor]
	s.investors[investor] = caller
	tx.OnRollback(func() {
		if had {
			s.investors[investor] = old
		} else {
			delete(s.investors, investor)
		}
	})
	return nil
}

// WhitelistCode allows every contract deployed with codeHash to move
// holdings.
func (s *Security) WhitelistCode(tx *ledger.Tx, caller common.Address, codeHash common.Hash) error {
	if err := s.requireAdmin(caller, "whitelist contract code"); err != nil {
		return err
	}
	setFlag(tx, s.codes, codeHash)
	return nil
}

// MakeReady mints the expected supply into the primary issuance account.
// It can run once.
func (s *Security) MakeReady(tx *ledger.Tx, caller common.Address, expectedSupply *uint256.Int) error {
	if err := s.requireAdmin(caller, "make the register ready"); err != nil {
		return err
	}
	if s.ready {
		return fmt.Errorf("%w: register %s is already ready", domain.ErrInvalidState, s.info.Symbol)
	}
	if expectedSupply.IsZero() {
		return &domain.ValidationError{Message: "expected supply must be > 0"}
	}
	if err := s.balances.mint(tx, &s.supply, s.pia, expectedSupply); err != nil {
		return err
	}
	s.ready = true
	tx.OnRollback(func() { s.ready = false })
	tx.Emit(s.addr, domain.EventTokenIssued, domain.TokenIssued{Account: s.pia, Amount: expectedSupply.Dec()}, s.pia)
	return nil
}

// ValidatePrimaryIssuance moves the whole primary issuance to the calling
// BnD party.
func (s *Security) ValidatePrimaryIssuance(tx *ledger.Tx, caller common.Address) error {
	if !s.bnd[caller] {
		return fmt.Errorf("%w: only a BnD party may validate the primary issuance", domain.ErrUnauthorized)
	}
	if !s.ready || s.issued {
		return fmt.Errorf("%w: primary issuance of %s is not pending", domain.ErrInvalidState, s.info.Symbol)
	}
	amount := s.balances.get(s.pia)
	if err := s.balances.move(tx, s.pia, caller, amount); err != nil {
		return err
	}
	s.issued = true
	tx.OnRollback(func() { s.issued = false })
	tx.Emit(s.addr, domain.EventTokenTransfer, domain.NewTokenTransfer(s.pia, caller, amount), caller)
	return nil
}

// CanHold reports whether account is a whitelisted investor or a BnD party.
func (s *Security) CanHold(_ ledger.Reader, account common.Address) bool {
	_, whitelisted := s.investors[account]
	return whitelisted || s.bnd[account]
}

// CodeWhitelisted reports whether contracts with codeHash may move holdings.
func (s *Security) CodeWhitelisted(_ ledger.Reader, codeHash common.Hash) bool {
	return s.codes[codeHash]
}

// TransferWithCompliance moves holdings on behalf of a contract. The
// operator's code must be whitelisted and both endpoints must be allowed to
// hold the security.
func (s *Security) TransferWithCompliance(tx *ledger.Tx, operator, from, to common.Address, amount *uint256.Int) error {
	if code := tx.CodeHash(operator); code == (common.Hash{}) || !s.codes[code] {
		return fmt.Errorf("%w: operator %s is not a whitelisted contract", domain.ErrComplianceRejected, operator.Hex())
	}
	return s.transfer(tx, from, to, amount)
}

// Transfer moves holdings directly between two eligible holders.
func (s *Security) Transfer(tx *ledger.Tx, from, to common.Address, amount *uint256.Int) error {
	return s.transfer(tx, from, to, amount)
}

func (s *Security) transfer(tx *ledger.Tx, from, to common.Address, amount *uint256.Int) error {
	if !s.CanHold(tx, from) {
		return fmt.Errorf("%w: sender %s is not whitelisted", domain.ErrComplianceRejected, from.Hex())
	}
	if !s.CanHold(tx, to) {
		return fmt.Errorf("%w: receiver %s is not whitelisted", domain.ErrComplianceRejected, to.Hex())
	}
	if err := s.balances.move(tx, from, to, amount); err != nil {
		return err
	}
	tx.Emit(s.addr, domain.EventTokenTransfer, domain.NewTokenTransfer(from, to, amount), from, to)
	return nil
}

// BalanceOf returns the holding of account.
func (s *Security) BalanceOf(_ ledger.Reader, account common.Address) *uint256.Int {
	return s.balances.get(account)
}

// TotalSupply returns the number of units issued.
func (s *Security) TotalSupply(_ ledger.Reader) *uint256.Int {
	v := s.supply
	return &v
}

func setFlag[K comparable](tx *ledger.Tx, m map[K]bool, key K) {
	if m[key] {
		return
	}
	m[key] = true
	tx.OnRollback(func() { delete(m, key) })
}
