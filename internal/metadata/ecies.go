package metadata

import (
	"crypto/aes"
	"crypto/ecdsa"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/sha512"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/crypto/ecies"

	"github.com/dvpsettle/dvpd/internal/domain"
)

// The envelope layout follows the eccrypto scheme used by eth-crypto
// clients: ECDH over secp256k1, SHA-512 of the shared x coordinate split
// into an AES-256-CBC key and an HMAC-SHA256 key, MAC over
// iv ‖ ephemeral public key ‖ ciphertext.

var (
	// ErrBadMAC means the envelope was not addressed to this private key
	// or was tampered with.
	ErrBadMAC = errors.New("bad_mac")
	// ErrMalformedEnvelope means the envelope fields cannot be parsed.
	ErrMalformedEnvelope = errors.New("malformed_envelope")
)

func eciesEncrypt(pub *ecdsa.PublicKey, msg []byte) (domain.EncryptedEnvelope, error) {
	if pub == nil || pub.Curve != crypto.S256() {
		return domain.EncryptedEnvelope{}, fmt.Errorf("%w: public key is not a secp256k1 key", ErrMalformedEnvelope)
	}

	ephemeralKey, err := crypto.GenerateKey()
	if err != nil {
		return domain.EncryptedEnvelope{}, fmt.Errorf("ephemeral key generation failed: %w", err)
	}
	encKey, macKey, err := deriveKeys(ephemeralKey, pub)
	if err != nil {
		return domain.EncryptedEnvelope{}, err
	}

	iv := make([]byte, aes.BlockSize)
	if _, err := rand.Read(iv); err != nil {
		return domain.EncryptedEnvelope{}, fmt.Errorf("iv generation failed: %w", err)
	}
	ciphertext, err := cbcEncrypt(encKey, iv, msg)
	if err != nil {
		return domain.EncryptedEnvelope{}, err
	}

	ephemeralPub := crypto.FromECDSAPub(&ephemeralKey.PublicKey)
	return domain.EncryptedEnvelope{
		IV:                 iv,
		EphemeralPublicKey: ephemeralPub,
		Ciphertext:         ciphertext,
		MAC:                envelopeMAC(macKey, iv, ephemeralPub, ciphertext),
	}, nil
}

func eciesDecrypt(priv *ecdsa.PrivateKey, env domain.EncryptedEnvelope) ([]byte, error) {
	if priv == nil {
		return nil, fmt.Errorf("%w: nil private key", ErrMalformedEnvelope)
	}
	ephemeralPub, err := crypto.UnmarshalPubkey(env.EphemeralPublicKey)
	if err != nil {
		return nil, fmt.Errorf("%w: ephemeral public key: %v", ErrMalformedEnvelope, err)
	}
	encKey, macKey, err := deriveKeys(priv, ephemeralPub)
	if err != nil {
		return nil, err
	}
	want := envelopeMAC(macKey, env.IV, env.EphemeralPublicKey, env.Ciphertext)
	if !hmac.Equal(want, env.MAC) {
		return nil, ErrBadMAC
	}
	msg, err := cbcDecrypt(encKey, env.IV, env.Ciphertext)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	return msg, nil
}

// deriveKeys performs ECDH and splits SHA-512 of the shared secret.
func deriveKeys(priv *ecdsa.PrivateKey, pub *ecdsa.PublicKey) (encKey, macKey []byte, err error) {
	// 16+16 requests the full 32-byte x coordinate, left-padded.
	shared, err := ecies.ImportECDSA(priv).GenerateShared(ecies.ImportECDSAPublic(pub), 16, 16)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: key agreement: %v", ErrMalformedEnvelope, err)
	}
	digest := sha512.Sum512(shared)
	return digest[:32], digest[32:], nil
}

func envelopeMAC(key []byte, parts ...[]byte) []byte {
	h := hmac.New(sha256.New, key)
	for _, p := range parts {
		h.Write(p)
	}
	return h.Sum(nil)
}
