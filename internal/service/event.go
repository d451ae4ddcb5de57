package service

import (
	"github.com/dvpsettle/dvpd/internal/ledger"
)

// MaxEventLimit caps one page of the event log.
const MaxEventLimit = 1000

// EventService queries the committed event log.
type EventService struct {
	ledger *ledger.Ledger
}

// NewEventService creates a new EventService.
func NewEventService(l *ledger.Ledger) *EventService {
	return &EventService{ledger: l}
}

// Query returns committed events matching f in sequence order, and the
// sequence number of the last committed event.
func (s *EventService) Query(f ledger.Filter) ([]ledger.Event, uint64) {
	if f.Limit <= 0 {
		f.Limit = ledger.DefaultEventLimit
	}
	if f.Limit > MaxEventLimit {
		f.Limit = MaxEventLimit
	}
	return s.ledger.Events(f), s.ledger.LastSeq()
}
