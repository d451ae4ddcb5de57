// Package settlement implements the trade settlement state machine and the
// factory that creates one instance per trade.
package settlement

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/dvpsettle/dvpd/internal/domain"
	"github.com/dvpsettle/dvpd/internal/ledger"
)

// Settlement settles exactly one trade. The seller commits the terms, the
// buyer approves them, and the operator's approval executes both legs in
// the same transaction.
type Settlement struct {
	addr      common.Address
	operator  common.Address
	resolver  Resolver
	createdAt time.Time

	p progress
}

// progress is everything that changes after creation. It is copied whole
// for rollback.
type progress struct {
	details       domain.TradeDetails
	hash          common.Hash
	committed     bool
	buyerApproved bool
	settled       bool
	ciphertext    []byte
	envelopes     []domain.EncryptedEnvelope
	updatedAt     time.Time
}

// Snapshot is a read-only copy of an instance.
type Snapshot struct {
	Address   common.Address
	Operator  common.Address
	State     domain.SettlementState
	Details   *domain.TradeDetails // nil until committed
	TradeHash common.Hash
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Metadata is the confidential payload published at commit time.
type Metadata struct {
	TradeHash  common.Hash
	Ciphertext hexutil.Bytes
	Envelopes  []domain.EncryptedEnvelope
}

func (s *Settlement) Address() common.Address  { return s.addr }
func (s *Settlement) Operator() common.Address { return s.operator }

func (s *Settlement) state() domain.SettlementState {
	switch {
	case s.p.settled:
		return domain.StateSettled
	case s.p.buyerApproved:
		return domain.StateBuyerApproved
	case s.p.committed:
		return domain.StateCommitted
	default:
		return domain.StateEmpty
	}
}

// State returns the current lifecycle state.
func (s *Settlement) State(_ ledger.Reader) domain.SettlementState { return s.state() }

// Snapshot returns a copy of the instance.
func (s *Settlement) Snapshot(_ ledger.Reader) Snapshot {
	snap := Snapshot{
		Address:   s.addr,
		Operator:  s.operator,
		State:     s.state(),
		TradeHash: s.p.hash,
		CreatedAt: s.createdAt,
		UpdatedAt: s.p.updatedAt,
	}
	if s.p.committed {
		d := s.p.details
		snap.Details = &d
	}
	return snap
}

// Metadata returns the published ciphertext and envelopes.
func (s *Settlement) Metadata(_ ledger.Reader) (*Metadata, error) {
	if !s.p.committed {
		return nil, fmt.Errorf("%w: no trade committed on %s", domain.ErrInvalidState, s.addr.Hex())
	}
	return &Metadata{
		TradeHash:  s.p.hash,
		Ciphertext: append(hexutil.Bytes(nil), s.p.ciphertext...),
		Envelopes:  domain.CloneEnvelopes(s.p.envelopes),
	}, nil
}

func (s *Settlement) update(tx *ledger.Tx, fn func(p *progress)) {
	prev := s.p
	tx.OnRollback(func() { s.p = prev })
	fn(&s.p)
	s.p.updatedAt = tx.Now()
}

// SetDetails commits the trade terms. Only the seller named in details may
// commit, once. The ciphertext and envelopes are published in the
// metadata.committed event and nowhere else.
func (s *Settlement) SetDetails(tx *ledger.Tx, caller common.Address, details domain.TradeDetails, ciphertext []byte, envelopes []domain.EncryptedEnvelope) error {
	if caller != details.Seller {
		return fmt.Errorf("%w: only the seller may set trade details", domain.ErrUnauthorized)
	}
	if s.state() != domain.StateEmpty {
		return fmt.Errorf("%w: trade details already set on %s", domain.ErrInvalidState, s.addr.Hex())
	}
	if err := details.Validate(); err != nil {
		return err
	}
	if len(ciphertext) == 0 {
		return &domain.ValidationError{Message: "ciphertext is required"}
	}
	if crypto.Keccak256Hash(ciphertext) != details.MetadataCommitment {
		return &domain.ValidationError{Message: "metadata_commitment must be keccak256 of the ciphertext"}
	}
	if len(envelopes) == 0 {
		return &domain.ValidationError{Message: "at least one envelope is required"}
	}

	hash := details.Hash()
	s.update(tx, func(p *progress) {
		p.details = details
		p.hash = hash
		p.committed = true
		p.ciphertext = append([]byte(nil), ciphertext...)
		p.envelopes = domain.CloneEnvelopes(envelopes)
	})

	tx.Emit(s.addr, domain.EventMetadataCommitted, domain.MetadataCommitted{
		TradeHash:  hash,
		Ciphertext: append(hexutil.Bytes(nil), ciphertext...),
		Envelopes:  domain.CloneEnvelopes(envelopes),
	}, details.Buyer, details.Seller, s.operator)
	return nil
}

// Approve records the buyer's approval, or, called by the operator after
// the buyer, settles the trade. details must hash to the committed terms.
func (s *Settlement) Approve(tx *ledger.Tx, caller common.Address, details domain.TradeDetails) error {
	if s.state() == domain.StateEmpty {
		return fmt.Errorf("%w: no trade committed on %s", domain.ErrInvalidState, s.addr.Hex())
	}
	if s.p.settled {
		return fmt.Errorf("%w: trade on %s is already settled", domain.ErrInvalidState, s.addr.Hex())
	}
	committed := s.p.details
	if caller != committed.Buyer && caller != s.operator {
		return fmt.Errorf("%w: only the buyer or the operator may approve", domain.ErrUnauthorized)
	}
	if details.Hash() != s.p.hash {
		return fmt.Errorf("%w: approved terms differ from the committed trade", domain.ErrHashMismatch)
	}

	state := s.state()
	switch {
	case caller == committed.Buyer && state == domain.StateCommitted:
		s.update(tx, func(p *progress) { p.buyerApproved = true })
		tx.Emit(s.addr, domain.EventBuyerApproved, domain.BuyerApproved{TradeHash: s.p.hash},
			committed.Buyer, committed.Seller, s.operator)
		return nil
	case caller == s.operator && state == domain.StateBuyerApproved:
		return s.execute(tx)
	}
	return fmt.Errorf("%w: %s cannot approve in state %s", domain.ErrInvalidState, caller.Hex(), state)
}

// execute runs both legs. Any error aborts the enclosing transaction, so a
// failed cash leg also undoes the security leg.
func (s *Settlement) execute(tx *ledger.Tx) error {
	d := s.p.details
	amount, err := d.CashAmount()
	if err != nil {
		return err
	}

	security, err := s.resolver.SecurityLedger(d.SecurityToken)
	if err != nil {
		return err
	}
	if err := security.TransferWithCompliance(tx, s.addr, d.Seller, d.Buyer, &d.Quantity); err != nil {
		return fmt.Errorf("security leg: %w", err)
	}

	if d.SameCurrency() {
		cash, err := s.resolver.CashLedger(d.CashToken)
		if err != nil {
			return err
		}
		if err := cash.TransferFrom(tx, s.addr, d.Buyer, d.Seller, amount); err != nil {
			return fmt.Errorf("cash leg: %w", err)
		}
	} else {
		exec, err := s.resolver.CashLegExecutor(d.CashLegExecutor)
		if err != nil {
			return err
		}
		leg := domain.CashLeg{
			Buyer:          d.Buyer,
			Seller:         d.Seller,
			BuyerCurrency:  exec.BuyerCurrency(),
			SellerCurrency: d.CashToken,
			Amount:         amount,
		}
		if _, err := exec.Execute(tx, s.addr, leg); err != nil {
			return fmt.Errorf("cash leg: %w", err)
		}
	}

	s.update(tx, func(p *progress) { p.settled = true })
	tx.Emit(s.addr, domain.EventTradeSettled, domain.TradeSettled{
		TradeHash:  s.p.hash,
		Quantity:   d.Quantity.Dec(),
		CashAmount: amount.Dec(),
	}, d.Buyer, d.Seller, s.operator)
	return nil
}
