package ledger

import (
	"slices"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// DefaultEventLimit caps event queries that do not set a limit.
const DefaultEventLimit = 100

// Event is one entry of the ledger event log.
type Event struct {
	Seq       uint64           `json:"seq"`
	TxSeq     uint64           `json:"tx"`
	Contract  common.Address   `json:"contract"`
	Name      string           `json:"name"`
	Topics    []common.Address `json:"topics"`
	Payload   any              `json:"payload"`
	Timestamp time.Time        `json:"timestamp"`
}

// Concerns reports whether addr is one of the event's topics.
func (e Event) Concerns(addr common.Address) bool {
	return slices.Contains(e.Topics, addr)
}

// Filter selects events from the log. Zero fields match everything.
type Filter struct {
	Since    uint64 // only events with Seq > Since
	Contract common.Address
	Name     string
	Topic    common.Address
	Limit    int
}

func (f Filter) match(e Event) bool {
	if f.Contract != (common.Address{}) && e.Contract != f.Contract {
		return false
	}
	if f.Name != "" && e.Name != f.Name {
		return false
	}
	if f.Topic != (common.Address{}) && !e.Concerns(f.Topic) {
		return false
	}
	return true
}

// Events returns committed events matching f in sequence order. It takes
// the read lock and must not be called from inside a transaction.
func (l *Ledger) Events(f Filter) []Event {
	limit := f.Limit
	if limit <= 0 {
		limit = DefaultEventLimit
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]Event, 0)
	l.log.AscendGreaterOrEqual(Event{Seq: f.Since + 1}, func(e Event) bool {
		if f.match(e) {
			out = append(out, e)
		}
		return len(out) < limit
	})
	return out
}

// LastSeq returns the sequence number of the newest committed event.
func (l *Ledger) LastSeq() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.seq
}
