package handler

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// Headers of a signed request. The signature covers the timestamp and the
// nonce, so a captured request cannot be sent again.
const (
	SignatureHeader = "X-Signature"
	TimestampHeader = "X-Timestamp"
	NonceHeader     = "X-Nonce"
)

// MaxBodyBytes caps request bodies. Sealed metadata travels in them.
const MaxBodyBytes = 1 << 20

// SignatureWindow is how far a request timestamp may drift from the
// server clock.
const SignatureWindow = 5 * time.Minute

// maxNonceLen bounds the memory a single remembered nonce may take.
const maxNonceLen = 128

var (
	errSignature = errors.New("invalid signature")
	errReplay    = errors.New("nonce already used")
	errStale     = errors.New("timestamp outside the accepted window")
)

// RequestDigest is the hash a caller signs: keccak256 of
// "METHOD PATH\nTIMESTAMP\nNONCE\nBODY" with TIMESTAMP in decimal unix
// seconds.
func RequestDigest(method, path string, timestamp int64, nonce string, body []byte) common.Hash {
	ts := strconv.FormatInt(timestamp, 10)
	msg := make([]byte, 0, len(method)+len(path)+len(ts)+len(nonce)+len(body)+4)
	msg = append(msg, method...)
	msg = append(msg, ' ')
	msg = append(msg, path...)
	msg = append(msg, '\n')
	msg = append(msg, ts...)
	msg = append(msg, '\n')
	msg = append(msg, nonce...)
	msg = append(msg, '\n')
	msg = append(msg, body...)
	return crypto.Keccak256Hash(msg)
}

// SignRequest returns the X-Signature value for a request.
func SignRequest(key *ecdsa.PrivateKey, method, path string, timestamp int64, nonce string, body []byte) (string, error) {
	digest := RequestDigest(method, path, timestamp, nonce, body)
	sig, err := crypto.Sign(digest[:], key)
	if err != nil {
		return "", err
	}
	return hexutil.Encode(sig), nil
}

// RecoverCaller returns the address that produced sig over the request.
// Both the raw recovery id (0/1) and the Ethereum form (27/28) are
// accepted.
func RecoverCaller(method, path string, timestamp int64, nonce string, body []byte, sig string) (common.Address, error) {
	raw, err := hexutil.Decode(sig)
	if err != nil || len(raw) != crypto.SignatureLength {
		return common.Address{}, fmt.Errorf("%w: expected %d hex bytes", errSignature, crypto.SignatureLength)
	}
	if raw[crypto.RecoveryIDOffset] >= 27 {
		raw[crypto.RecoveryIDOffset] -= 27
	}
	digest := RequestDigest(method, path, timestamp, nonce, body)
	pub, err := crypto.SigToPub(digest[:], raw)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", errSignature, err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

type nonceKey struct {
	caller common.Address
	nonce  string
}

// nonceCache remembers the nonces each caller used inside the signature
// window. Anything older is rejected on its timestamp alone, so entries
// can be dropped once they leave the window.
type nonceCache struct {
	mu        sync.Mutex
	window    time.Duration
	now       func() time.Time
	seen      map[nonceKey]time.Time
	lastPrune time.Time
}

func newNonceCache(window time.Duration) *nonceCache {
	return &nonceCache{window: window, now: time.Now, seen: make(map[nonceKey]time.Time)}
}

// use records the nonce for caller. It fails if the timestamp is outside
// the window or the nonce was already used.
func (c *nonceCache) use(caller common.Address, nonce string, ts time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if ts.Before(now.Add(-c.window)) || ts.After(now.Add(c.window)) {
		return errStale
	}
	if now.Sub(c.lastPrune) >= c.window {
		for k, at := range c.seen {
			if at.Before(now.Add(-c.window)) {
				delete(c.seen, k)
			}
		}
		c.lastPrune = now
	}

	k := nonceKey{caller: caller, nonce: nonce}
	if _, ok := c.seen[k]; ok {
		return errReplay
	}
	// A future-dated nonce is kept until its own timestamp leaves the window.
	if ts.After(now) {
		now = ts
	}
	c.seen[k] = now
	return nil
}

type callerKey struct{}

// callerFrom returns the authenticated caller placed in ctx by
// requireSignature.
func callerFrom(ctx context.Context) common.Address {
	addr, _ := ctx.Value(callerKey{}).(common.Address)
	return addr
}

// requireSignature is middleware that authenticates the caller from the
// signature headers and rejects stale or repeated requests. The body is
// buffered so handlers can still read it.
func requireSignature(nonces *nonceCache) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sig := r.Header.Get(SignatureHeader)
			tsRaw := r.Header.Get(TimestampHeader)
			nonce := r.Header.Get(NonceHeader)
			if sig == "" || tsRaw == "" || nonce == "" {
				WriteError(w, http.StatusUnauthorized, "unauthenticated",
					SignatureHeader+", "+TimestampHeader+" and "+NonceHeader+" headers are required")
				return
			}
			ts, err := strconv.ParseInt(tsRaw, 10, 64)
			if err != nil {
				WriteError(w, http.StatusUnauthorized, "unauthenticated", TimestampHeader+" must be unix seconds")
				return
			}
			if len(nonce) > maxNonceLen {
				WriteError(w, http.StatusUnauthorized, "unauthenticated", fmt.Sprintf("%s exceeds %d bytes", NonceHeader, maxNonceLen))
				return
			}

			body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
			if err != nil {
				WriteError(w, http.StatusBadRequest, "invalid_request", "Request body is too large or unreadable")
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			caller, err := RecoverCaller(r.Method, r.URL.Path, ts, nonce, body, sig)
			if err != nil {
				WriteError(w, http.StatusUnauthorized, "unauthenticated", err.Error())
				return
			}
			if err := nonces.use(caller, nonce, time.Unix(ts, 0)); err != nil {
				WriteError(w, http.StatusUnauthorized, "unauthenticated", err.Error())
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), callerKey{}, caller)))
		})
	}
}
