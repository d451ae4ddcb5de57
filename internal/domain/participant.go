package domain

import (
	"crypto/ecdsa"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Participant binds an address to the public key used to wrap metadata
// keys for it.
type Participant struct {
	Address      common.Address
	PublicKey    *ecdsa.PublicKey
	RegisteredAt time.Time
}
