package service

import (
	"context"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/dvpsettle/dvpd/internal/domain"
	"github.com/dvpsettle/dvpd/internal/ledger"
	"github.com/dvpsettle/dvpd/internal/settlement"
)

// Settlement operation names used in logs and metrics.
const (
	OpCreate     = "create"
	OpSetDetails = "set_details"
	OpApprove    = "approve"
)

// SetDetailsRequest is the seller's commitment of a trade.
type SetDetailsRequest struct {
	Details    TradeDetailsRequest
	Ciphertext hexutil.Bytes
	Envelopes  []domain.EncryptedEnvelope
}

// SettlementService runs settlement operations as ledger transactions.
type SettlementService struct {
	ledger  *ledger.Ledger
	factory *settlement.Factory
	metrics *Metrics
	logger  *slog.Logger
}

// NewSettlementService creates a new SettlementService.
func NewSettlementService(
	l *ledger.Ledger,
	factory *settlement.Factory,
	metrics *Metrics,
	logger *slog.Logger,
) *SettlementService {
	return &SettlementService{
		ledger:  l,
		factory: factory,
		metrics: metrics,
		logger:  logger,
	}
}

// Create deploys a fresh instance with caller as its operator.
func (s *SettlementService) Create(ctx context.Context, operator common.Address) (settlement.Snapshot, error) {
	var snap settlement.Snapshot
	_, err := s.ledger.Execute(ctx, func(tx *ledger.Tx) error {
		inst, err := s.factory.Create(tx, operator)
		if err != nil {
			return err
		}
		snap = inst.Snapshot(tx)
		return nil
	})
	s.record(OpCreate, operator, snap.Address, err)
	if err != nil {
		return settlement.Snapshot{}, err
	}
	s.metrics.SettlementsCreated.Inc()
	return snap, nil
}

// Get returns the current snapshot of an instance.
func (s *SettlementService) Get(addr common.Address) (settlement.Snapshot, error) {
	var (
		snap settlement.Snapshot
		err  error
	)
	s.ledger.View(func(v *ledger.View) {
		var inst *settlement.Settlement
		if inst, err = s.factory.Get(v, addr); err == nil {
			snap = inst.Snapshot(v)
		}
	})
	return snap, err
}

// List returns snapshots of every instance in creation order.
func (s *SettlementService) List() []settlement.Snapshot {
	var out []settlement.Snapshot
	s.ledger.View(func(v *ledger.View) {
		instances := s.factory.Instances(v)
		out = make([]settlement.Snapshot, len(instances))
		for i, inst := range instances {
			out[i] = inst.Snapshot(v)
		}
	})
	return out
}

// Metadata returns the ciphertext and envelopes published at commit time.
func (s *SettlementService) Metadata(addr common.Address) (*settlement.Metadata, error) {
	var (
		md  *settlement.Metadata
		err error
	)
	s.ledger.View(func(v *ledger.View) {
		var inst *settlement.Settlement
		if inst, err = s.factory.Get(v, addr); err == nil {
			md, err = inst.Metadata(v)
		}
	})
	return md, err
}

// SetDetails commits the trade terms on addr on behalf of caller.
func (s *SettlementService) SetDetails(ctx context.Context, caller, addr common.Address, req SetDetailsRequest) (settlement.Snapshot, error) {
	details, err := req.Details.Parse()
	if err != nil {
		s.record(OpSetDetails, caller, addr, err)
		return settlement.Snapshot{}, err
	}
	return s.run(ctx, OpSetDetails, caller, addr, func(tx *ledger.Tx, inst *settlement.Settlement) error {
		return inst.SetDetails(tx, caller, details, req.Ciphertext, req.Envelopes)
	})
}

// Approve approves the trade on addr on behalf of caller. The operator's
// approval after the buyer's executes both legs.
func (s *SettlementService) Approve(ctx context.Context, caller, addr common.Address, req TradeDetailsRequest) (settlement.Snapshot, error) {
	details, err := req.Parse()
	if err != nil {
		s.record(OpApprove, caller, addr, err)
		return settlement.Snapshot{}, err
	}
	return s.run(ctx, OpApprove, caller, addr, func(tx *ledger.Tx, inst *settlement.Settlement) error {
		return inst.Approve(tx, caller, details)
	})
}

func (s *SettlementService) run(
	ctx context.Context,
	op string,
	caller, addr common.Address,
	fn func(tx *ledger.Tx, inst *settlement.Settlement) error,
) (settlement.Snapshot, error) {
	var snap settlement.Snapshot
	_, err := s.ledger.Execute(ctx, func(tx *ledger.Tx) error {
		inst, err := s.factory.Get(tx, addr)
		if err != nil {
			return err
		}
		if err := fn(tx, inst); err != nil {
			return err
		}
		snap = inst.Snapshot(tx)
		return nil
	})
	s.record(op, caller, addr, err)
	if err != nil {
		return settlement.Snapshot{}, err
	}
	return snap, nil
}

func (s *SettlementService) record(op string, caller, addr common.Address, err error) {
	result := outcome(err)
	s.metrics.SettlementOps.WithLabelValues(op, result).Inc()

	attrs := []any{
		slog.String("operation", op),
		slog.String("caller", caller.Hex()),
		slog.String("settlement", addr.Hex()),
		slog.String("outcome", result),
	}
	if err != nil {
		s.logger.Warn("settlement operation rejected", append(attrs, slog.String("error", err.Error()))...)
		return
	}
	s.logger.Info("settlement operation", attrs...)
}

// Parked returns the instances whose trade is committed but not settled.
func (s *SettlementService) Parked() []settlement.Snapshot {
	var out []settlement.Snapshot
	s.ledger.View(func(v *ledger.View) {
		for _, inst := range s.factory.Instances(v) {
			if inst.State(v).Parked() {
				out = append(out, inst.Snapshot(v))
			}
		}
	})
	return out
}
