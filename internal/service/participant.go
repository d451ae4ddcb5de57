package service

import (
	"crypto/ecdsa"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/dvpsettle/dvpd/internal/domain"
	"github.com/dvpsettle/dvpd/internal/store"
)

// ParticipantService manages the public keys trade metadata is wrapped for.
type ParticipantService struct {
	store  *store.ParticipantStore
	logger *slog.Logger
}

// NewParticipantService creates a new ParticipantService.
func NewParticipantService(participantStore *store.ParticipantStore, logger *slog.Logger) *ParticipantService {
	return &ParticipantService{store: participantStore, logger: logger}
}

// Register binds publicKey to caller. The key must belong to caller, so a
// participant can only publish its own key. Returns true when the
// participant was not known before.
func (s *ParticipantService) Register(caller common.Address, publicKey string) (*domain.Participant, bool, error) {
	pub, err := ParsePublicKey(publicKey)
	if err != nil {
		return nil, false, err
	}
	if owner := crypto.PubkeyToAddress(*pub); owner != caller {
		return nil, false, fmt.Errorf("%w: public key belongs to %s, not %s", domain.ErrUnauthorized, owner.Hex(), caller.Hex())
	}

	p := &domain.Participant{
		Address:      caller,
		PublicKey:    pub,
		RegisteredAt: time.Now().UTC().Truncate(time.Second),
	}
	created := s.store.Put(p)
	s.logger.Info("participant registered",
		slog.String("address", caller.Hex()),
		slog.Bool("created", created),
	)
	return p, created, nil
}

// Get returns a registered participant.
func (s *ParticipantService) Get(addr common.Address) (*domain.Participant, error) {
	return s.store.Get(addr)
}

// List returns every registered participant.
func (s *ParticipantService) List() []*domain.Participant {
	return s.store.List()
}

// ParsePublicKey accepts a hex secp256k1 public key in uncompressed
// (65 bytes) or compressed (33 bytes) form.
func ParsePublicKey(s string) (*ecdsa.PublicKey, error) {
	raw, err := hexutil.Decode(s)
	if err != nil {
		return nil, &domain.ValidationError{Message: "public_key must be 0x-prefixed hex"}
	}
	var pub *ecdsa.PublicKey
	switch len(raw) {
	case 65:
		pub, err = crypto.UnmarshalPubkey(raw)
	case 33:
		pub, err = crypto.DecompressPubkey(raw)
	default:
		return nil, &domain.ValidationError{Message: "public_key must be 33 or 65 bytes"}
	}
	if err != nil {
		return nil, &domain.ValidationError{Message: "public_key is not a secp256k1 point"}
	}
	return pub, nil
}
