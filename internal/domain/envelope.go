package domain

import "github.com/ethereum/go-ethereum/common/hexutil"

// EncryptedEnvelope carries the symmetric key bundle of one metadata
// ciphertext, encrypted for a single participant. The set of envelopes
// published with a ciphertext is its complete readership list.
type EncryptedEnvelope struct {
	IV                 hexutil.Bytes `json:"iv"`
	EphemeralPublicKey hexutil.Bytes `json:"ephemeral_public_key"`
	Ciphertext         hexutil.Bytes `json:"ciphertext"`
	MAC                hexutil.Bytes `json:"mac"`
}

// Clone returns a deep copy so callers cannot alias published bytes.
func (e EncryptedEnvelope) Clone() EncryptedEnvelope {
	return EncryptedEnvelope{
		IV:                 append(hexutil.Bytes(nil), e.IV...),
		EphemeralPublicKey: append(hexutil.Bytes(nil), e.EphemeralPublicKey...),
		Ciphertext:         append(hexutil.Bytes(nil), e.Ciphertext...),
		MAC:                append(hexutil.Bytes(nil), e.MAC...),
	}
}

// CloneEnvelopes deep-copies a slice of envelopes.
func CloneEnvelopes(envs []EncryptedEnvelope) []EncryptedEnvelope {
	out := make([]EncryptedEnvelope, len(envs))
	for i, e := range envs {
		out[i] = e.Clone()
	}
	return out
}
