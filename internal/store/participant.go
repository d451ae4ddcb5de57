package store

import (
	"bytes"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/dvpsettle/dvpd/internal/domain"
)

// ParticipantStore is a thread-safe in-memory directory of participant
// public keys, keyed by address.
type ParticipantStore struct {
	mu           sync.RWMutex
	participants map[common.Address]*domain.Participant
}

// NewParticipantStore creates an empty ParticipantStore.
func NewParticipantStore() *ParticipantStore {
	return &ParticipantStore{
		participants: make(map[common.Address]*domain.Participant),
	}
}

// Put registers or replaces the key of a participant. Returns true if the
// participant was not known before.
func (s *ParticipantStore) Put(p *domain.Participant) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, exists := s.participants[p.Address]
	s.participants[p.Address] = p
	return !exists
}

// Get retrieves a participant. It returns domain.ErrParticipantNotFound if
// the address never registered a key.
func (s *ParticipantStore) Get(addr common.Address) (*domain.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.participants[addr]
	if !ok {
		return nil, domain.ErrParticipantNotFound
	}
	return p, nil
}

// List returns all participants ordered by address.
func (s *ParticipantStore) List() []*domain.Participant {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.Participant, 0, len(s.participants))
	for _, p := range s.participants {
		result = append(result, p)
	}
	sort.Slice(result, func(i, j int) bool {
		return bytes.Compare(result[i].Address[:], result[j].Address[:]) < 0
	})
	return result
}
