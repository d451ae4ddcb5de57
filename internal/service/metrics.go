package service

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/dvpsettle/dvpd/internal/domain"
	"github.com/dvpsettle/dvpd/internal/ledger"
)

// Metrics groups the Prometheus collectors exported by the daemon.
type Metrics struct {
	SettlementOps      *prometheus.CounterVec
	SettlementsCreated prometheus.Counter
	TradesSettled      prometheus.Counter
	TradesOverdue      prometheus.Counter
	WebhookDeliveries  *prometheus.CounterVec
	EventsCommitted    *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		SettlementOps: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "dvpd",
				Name:      "settlement_operations_total",
				Help:      "Settlement operations by operation and outcome.",
			},
			[]string{"operation", "outcome"},
		),
		SettlementsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "dvpd",
			Name:      "settlements_created_total",
			Help:      "Settlement instances created.",
		}),
		TradesSettled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "dvpd",
			Name:      "trades_settled_total",
			Help:      "Trades whose legs were executed.",
		}),
		TradesOverdue: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "dvpd",
			Name:      "trades_overdue_total",
			Help:      "Parked trades reported past their value date.",
		}),
		WebhookDeliveries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "dvpd",
				Name:      "webhook_deliveries_total",
				Help:      "Webhook delivery attempts by outcome.",
			},
			[]string{"outcome"},
		),
		EventsCommitted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "dvpd",
				Name:      "ledger_events_total",
				Help:      "Committed ledger events by name.",
			},
			[]string{"name"},
		),
	}
	reg.MustRegister(
		m.SettlementOps,
		m.SettlementsCreated,
		m.TradesSettled,
		m.TradesOverdue,
		m.WebhookDeliveries,
		m.EventsCommitted,
	)
	return m
}

// ObserveEvents counts committed events. It is meant to be passed to
// ledger.Subscribe.
func (m *Metrics) ObserveEvents(events []ledger.Event) {
	for _, e := range events {
		m.EventsCommitted.WithLabelValues(e.Name).Inc()
		if e.Name == domain.EventTradeSettled {
			m.TradesSettled.Inc()
		}
	}
}

var outcomeErrors = []error{
	domain.ErrUnauthorized,
	domain.ErrInvalidState,
	domain.ErrHashMismatch,
	domain.ErrComplianceRejected,
	domain.ErrInsufficientAllowance,
	domain.ErrInsufficientLiquidity,
	domain.ErrInsufficientBalance,
	domain.ErrAmountOverflow,
	domain.ErrCurrencyMismatch,
	domain.ErrSettlementNotFound,
	domain.ErrTokenNotFound,
	domain.ErrExecutorNotFound,
}

// outcome turns an operation result into a low-cardinality label.
func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	var ve *domain.ValidationError
	if errors.As(err, &ve) {
		return "validation_error"
	}
	for _, target := range outcomeErrors {
		if errors.Is(err, target) {
			return target.Error()
		}
	}
	return "error"
}
