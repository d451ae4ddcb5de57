// Package ledger simulates the host ledger the settlement contracts run on:
// every state change happens inside a serial, all-or-nothing transaction,
// contracts get deterministic addresses, and committed events land in an
// ordered log.
package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/btree"
)

// Reader is satisfied by Tx and View. Functions that take a Reader may only
// be called while the ledger lock is held.
type Reader interface {
	CodeHash(addr common.Address) common.Hash
	Now() time.Time
	locked()
}

// Ledger serializes all state-changing operations behind one lock.
type Ledger struct {
	mu     sync.RWMutex
	nonces map[common.Address]uint64
	codes  map[common.Address]common.Hash
	log    *btree.BTreeG[Event]
	seq    uint64 // last event sequence
	txSeq  uint64 // last committed transaction
	now    func() time.Time

	notifyMu sync.Mutex // keeps subscriber callbacks in commit order
	subMu    sync.RWMutex
	subs     []func([]Event)
}

// New creates an empty ledger.
func New() *Ledger {
	const degree = 32
	return &Ledger{
		nonces: make(map[common.Address]uint64),
		codes:  make(map[common.Address]common.Hash),
		log:    btree.NewG[Event](degree, func(a, b Event) bool { return a.Seq < b.Seq }),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Subscribe registers fn to receive the events of every committed
// transaction, in commit order. fn runs after the ledger lock is released
// but must not call Execute.
func (l *Ledger) Subscribe(fn func([]Event)) {
	l.subMu.Lock()
	defer l.subMu.Unlock()
	l.subs = append(l.subs, fn)
}

// Execute runs fn as one transaction. If fn returns an error or panics,
// every mutation it registered is undone in reverse order and its events
// are discarded. On success the events are appended to the log and
// returned.
func (l *Ledger) Execute(ctx context.Context, fn func(tx *Tx) error) (events []Event, err error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.mu.Lock()
	locked := true
	defer func() {
		if locked {
			l.mu.Unlock()
		}
	}()

	tx := &Tx{l: l, seq: l.txSeq + 1, now: l.now()}
	if err := tx.run(fn); err != nil {
		return nil, err
	}

	l.txSeq = tx.seq
	for i := range tx.events {
		l.seq++
		tx.events[i].Seq = l.seq
		l.log.ReplaceOrInsert(tx.events[i])
	}
	events = tx.events

	// Take the notify lock before releasing the ledger so that two
	// transactions cannot reach subscribers out of order.
	l.notifyMu.Lock()
	l.mu.Unlock()
	locked = false
	defer l.notifyMu.Unlock()

	if len(events) > 0 {
		l.subMu.RLock()
		subs := append([]func([]Event){}, l.subs...)
		l.subMu.RUnlock()
		for _, sub := range subs {
			sub(events)
		}
	}
	return events, nil
}

// View runs fn under the read lock.
func (l *Ledger) View(fn func(v *View)) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	fn(&View{l: l})
}

// Height returns the number of committed transactions.
func (l *Ledger) Height() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.txSeq
}

// Tx is an open ledger transaction.
type Tx struct {
	l      *Ledger
	seq    uint64
	now    time.Time
	undo   []func()
	events []Event
}

func (tx *Tx) run(fn func(tx *Tx) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			tx.rollback()
			panic(r)
		}
	}()
	if err = fn(tx); err != nil {
		tx.rollback()
	}
	return err
}

func (tx *Tx) rollback() {
	for i := len(tx.undo) - 1; i >= 0; i-- {
		tx.undo[i]()
	}
	tx.undo = nil
	tx.events = nil
}

func (tx *Tx) locked() {}

// Seq is the number the transaction will carry once committed.
func (tx *Tx) Seq() uint64 { return tx.seq }

// Now is the transaction timestamp, fixed for its whole duration.
func (tx *Tx) Now() time.Time { return tx.now }

// OnRollback registers fn to undo a mutation if the transaction aborts.
func (tx *Tx) OnRollback(fn func()) {
	tx.undo = append(tx.undo, fn)
}

// Emit queues an event. Topics are the accounts the event concerns;
// duplicates and the zero address are dropped.
func (tx *Tx) Emit(contract common.Address, name string, payload any, topics ...common.Address) {
	tx.events = append(tx.events, Event{
		TxSeq:     tx.seq,
		Contract:  contract,
		Name:      name,
		Topics:    uniqueTopics(topics),
		Payload:   payload,
		Timestamp: tx.now,
	})
}

// Deploy allocates a contract address for deployer and records its code
// hash. Addresses follow the CREATE scheme: keccak256(rlp(deployer, nonce)).
func (tx *Tx) Deploy(deployer common.Address, codeHash common.Hash) common.Address {
	l := tx.l
	nonce := l.nonces[deployer]
	addr := crypto.CreateAddress(deployer, nonce)
	if _, taken := l.codes[addr]; taken {
		panic(fmt.Sprintf("ledger: contract address %s already in use", addr.Hex()))
	}

	l.nonces[deployer] = nonce + 1
	l.codes[addr] = codeHash
	tx.OnRollback(func() {
		delete(l.codes, addr)
		if nonce == 0 {
			delete(l.nonces, deployer)
		} else {
			l.nonces[deployer] = nonce
		}
	})
	return addr
}

// CodeHash returns the code hash deployed at addr, or the zero hash for
// accounts without code.
func (tx *Tx) CodeHash(addr common.Address) common.Hash { return tx.l.codes[addr] }

// View is a read-only handle on the ledger.
type View struct {
	l *Ledger
}

func (v *View) locked() {}

// CodeHash returns the code hash deployed at addr.
func (v *View) CodeHash(addr common.Address) common.Hash { return v.l.codes[addr] }

// Now returns the current ledger clock.
func (v *View) Now() time.Time { return v.l.now() }

func uniqueTopics(topics []common.Address) []common.Address {
	out := make([]common.Address, 0, len(topics))
	seen := make(map[common.Address]struct{}, len(topics))
	for _, t := range topics {
		if t == (common.Address{}) {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
