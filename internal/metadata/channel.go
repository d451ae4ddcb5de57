// Package metadata implements the confidentiality channel for trade terms:
// the metadata is encrypted once with a fresh symmetric key, and that key is
// wrapped for every participant with secp256k1 ECIES.
package metadata

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/klauspost/compress/zlib"

	"github.com/dvpsettle/dvpd/internal/domain"
)

const (
	keySize = 32
	ivSize  = 16

	bundleSeparator = "IV"

	// maxInflated bounds decompression of hostile ciphertexts.
	maxInflated = 1 << 20
)

// MagicTag is the hex keccak256 of "VALID MESSAGE". Every sealed plaintext
// starts with it; a successful decryption without it is rejected.
var MagicTag = hex.EncodeToString(crypto.Keccak256([]byte("VALID MESSAGE")))

var (
	ErrDecrypt    = errors.New("decrypt_failed")
	ErrDecompress = errors.New("decompress_failed")
	ErrMissingTag = errors.New("missing_tag")
)

// Result is the outcome of one decryption attempt. Reason is set when OK is
// false.
type Result struct {
	OK        bool
	Plaintext string
	Reason    error
}

func invalid(reason error) Result {
	return Result{Reason: reason}
}

// Encrypt encrypts plaintext under a fresh AES-256 key and IV, deflating it
// first when compress is set.
func Encrypt(plaintext []byte, compress bool) (ciphertext, key, iv []byte, err error) {
	msg := plaintext
	if compress {
		if msg, err = deflate(plaintext); err != nil {
			return nil, nil, nil, err
		}
	}

	key = make([]byte, keySize)
	iv = make([]byte, ivSize)
	if _, err := rand.Read(key); err != nil {
		return nil, nil, nil, fmt.Errorf("key generation failed: %w", err)
	}
	if _, err := rand.Read(iv); err != nil {
		return nil, nil, nil, fmt.Errorf("iv generation failed: %w", err)
	}

	ciphertext, err = cbcEncrypt(key, iv, msg)
	if err != nil {
		return nil, nil, nil, err
	}
	return ciphertext, key, iv, nil
}

// WrapKey encrypts the key bundle for one recipient.
func WrapKey(key, iv []byte, pub *ecdsa.PublicKey) (domain.EncryptedEnvelope, error) {
	if len(key) != keySize || len(iv) != ivSize {
		return domain.EncryptedEnvelope{}, fmt.Errorf("key bundle must be %d+%d bytes, got %d+%d", keySize, ivSize, len(key), len(iv))
	}
	return eciesEncrypt(pub, []byte(encodeBundle(key, iv)))
}

// UnwrapAndDecrypt recovers the symmetric key from env with priv and
// decrypts ciphertext. It reports failure through the Result instead of an
// error so callers can try envelopes that were not addressed to them.
func UnwrapAndDecrypt(ciphertext []byte, env domain.EncryptedEnvelope, priv *ecdsa.PrivateKey, compress bool) Result {
	bundle, err := eciesDecrypt(priv, env)
	if err != nil {
		if errors.Is(err, ErrBadMAC) {
			return invalid(ErrBadMAC)
		}
		return invalid(ErrMalformedEnvelope)
	}
	key, iv, err := decodeBundle(string(bundle))
	if err != nil {
		return invalid(ErrMalformedEnvelope)
	}

	msg, err := cbcDecrypt(key, iv, ciphertext)
	if err != nil {
		return invalid(ErrDecrypt)
	}
	if compress {
		if msg, err = inflate(msg); err != nil {
			return invalid(ErrDecompress)
		}
	}

	text := string(msg)
	if !strings.HasPrefix(text, MagicTag) {
		return invalid(ErrMissingTag)
	}
	return Result{OK: true, Plaintext: text[len(MagicTag):]}
}

// Open tries every envelope in turn and returns the first valid result
// together with the envelope index. When none opens, the index is -1 and
// the result carries the reason of the last attempt.
func Open(ciphertext []byte, envelopes []domain.EncryptedEnvelope, priv *ecdsa.PrivateKey, compress bool) (Result, int) {
	last := invalid(ErrBadMAC)
	for i, env := range envelopes {
		res := UnwrapAndDecrypt(ciphertext, env, priv, compress)
		if res.OK {
			return res, i
		}
		last = res
	}
	return last, -1
}

// Sealed is trade metadata ready to be committed: the ciphertext, its
// keccak256 commitment and one envelope per recipient, in recipient order.
type Sealed struct {
	Ciphertext []byte
	Commitment common.Hash
	Compressed bool
	Envelopes  []domain.EncryptedEnvelope
}

// Seal prefixes the magic tag when absent, encrypts plaintext and wraps the
// key for every recipient.
func Seal(plaintext string, compress bool, recipients ...*ecdsa.PublicKey) (*Sealed, error) {
	if len(recipients) == 0 {
		return nil, &domain.ValidationError{Message: "at least one recipient is required"}
	}
	if !strings.HasPrefix(plaintext, MagicTag) {
		plaintext = MagicTag + plaintext
	}

	ciphertext, key, iv, err := Encrypt([]byte(plaintext), compress)
	if err != nil {
		return nil, err
	}

	envelopes := make([]domain.EncryptedEnvelope, 0, len(recipients))
	for i, pub := range recipients {
		env, err := WrapKey(key, iv, pub)
		if err != nil {
			return nil, fmt.Errorf("wrap key for recipient %d: %w", i, err)
		}
		envelopes = append(envelopes, env)
	}

	return &Sealed{
		Ciphertext: ciphertext,
		Commitment: crypto.Keccak256Hash(ciphertext),
		Compressed: compress,
		Envelopes:  envelopes,
	}, nil
}

func encodeBundle(key, iv []byte) string {
	return hex.EncodeToString(key) + bundleSeparator + hex.EncodeToString(iv)
}

func decodeBundle(s string) (key, iv []byte, err error) {
	keyHex, ivHex, ok := strings.Cut(s, bundleSeparator)
	if !ok {
		return nil, nil, fmt.Errorf("%w: no separator in key bundle", ErrMalformedEnvelope)
	}
	if key, err = hex.DecodeString(keyHex); err != nil || len(key) != keySize {
		return nil, nil, fmt.Errorf("%w: key", ErrMalformedEnvelope)
	}
	if iv, err = hex.DecodeString(ivHex); err != nil || len(iv) != ivSize {
		return nil, nil, fmt.Errorf("%w: iv", ErrMalformedEnvelope)
	}
	return key, iv, nil
}

func deflate(b []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	if _, err := w.Write(b); err != nil {
		return nil, fmt.Errorf("compress: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("compress: %w", err)
	}
	return buf.Bytes(), nil
}

func inflate(b []byte) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	out, err := io.ReadAll(io.LimitReader(r, maxInflated+1))
	if err != nil {
		return nil, err
	}
	if len(out) > maxInflated {
		return nil, fmt.Errorf("inflated metadata exceeds %d bytes", maxInflated)
	}
	return out, nil
}
