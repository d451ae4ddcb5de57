// Package watch reports parked trades that passed their value date. The
// report is informational: settlement never depends on dates.
package watch

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/dvpsettle/dvpd/internal/domain"
	"github.com/dvpsettle/dvpd/internal/settlement"
)

// ParkedSource lists the instances whose trade is committed but not yet
// settled.
type ParkedSource interface {
	Parked() []settlement.Snapshot
}

// Dispatcher delivers overdue notices without the watcher depending on the
// service layer.
type Dispatcher interface {
	DispatchOverdue(notice domain.TradeOverdue, parties ...common.Address)
}

// OverdueMonitor periodically scans parked trades and reports each one once
// after its value date, read as Unix seconds, has passed. A zero value date
// is never overdue.
type OverdueMonitor struct {
	interval   time.Duration
	source     ParkedSource
	dispatcher Dispatcher
	overdue    prometheus.Counter
	logger     *slog.Logger

	mu       sync.Mutex
	reported map[common.Address]bool
}

// NewOverdueMonitor creates an OverdueMonitor. overdue may be nil.
func NewOverdueMonitor(
	interval time.Duration,
	source ParkedSource,
	dispatcher Dispatcher,
	overdue prometheus.Counter,
	logger *slog.Logger,
) *OverdueMonitor {
	return &OverdueMonitor{
		interval:   interval,
		source:     source,
		dispatcher: dispatcher,
		overdue:    overdue,
		logger:     logger,
		reported:   make(map[common.Address]bool),
	}
}

// Start launches a background goroutine that ticks at the configured
// interval. It stops when ctx is cancelled.
func (m *OverdueMonitor) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case t := <-ticker.C:
				if ctx.Err() != nil {
					return
				}
				m.tick(t)
			}
		}
	}()
}

// tick reports every parked trade whose value date is before now and that
// was not reported yet. Trades that left the parked states are forgotten.
func (m *OverdueMonitor) tick(now time.Time) {
	parked := m.source.Parked()
	// Oldest value date first, so notices go out in due order.
	sort.SliceStable(parked, func(i, j int) bool {
		return parked[i].Details.ValueDate < parked[j].Details.ValueDate
	})

	m.mu.Lock()
	still := make(map[common.Address]bool, len(parked))
	var due []settlement.Snapshot
	for _, snap := range parked {
		still[snap.Address] = true
		if m.reported[snap.Address] || !pastValueDate(now, snap.Details.ValueDate) {
			continue
		}
		m.reported[snap.Address] = true
		due = append(due, snap)
	}
	for addr := range m.reported {
		if !still[addr] {
			delete(m.reported, addr)
		}
	}
	m.mu.Unlock()

	// Dispatch outside the lock; deliveries are network I/O.
	for _, snap := range due {
		m.report(snap)
	}
}

// pastValueDate reports whether now is after vd, in Unix seconds. Zero means
// no value date. Compared as integers: time.Unix overflows long before
// MaxUint64 seconds.
func pastValueDate(now time.Time, vd uint64) bool {
	sec := now.Unix()
	if vd == 0 || sec < 0 {
		return false
	}
	return uint64(sec) > vd || (uint64(sec) == vd && now.Nanosecond() > 0)
}

func (m *OverdueMonitor) report(snap settlement.Snapshot) {
	d := snap.Details
	notice := domain.TradeOverdue{
		Instance:  snap.Address,
		TradeHash: snap.TradeHash,
		State:     snap.State,
		ValueDate: d.ValueDate,
	}
	m.logger.Warn("trade past value date",
		slog.String("settlement", snap.Address.Hex()),
		slog.String("state", string(snap.State)),
		slog.Uint64("value_date", d.ValueDate),
	)
	if m.overdue != nil {
		m.overdue.Inc()
	}
	if m.dispatcher != nil {
		m.dispatcher.DispatchOverdue(notice, d.Buyer, d.Seller, snap.Operator)
	}
}

// ReportedCount returns the number of parked trades already reported.
// Useful for testing.
func (m *OverdueMonitor) ReportedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.reported)
}
