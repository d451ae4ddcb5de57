package metadata

import (
	"bytes"
	"crypto/ecdsa"
	"errors"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"

	"github.com/dvpsettle/dvpd/internal/domain"
)

const tradeText = "\nBuyer: 0xb0b\nSeller: 0x5e11\nISIN: XS0000000001\nQuantity: 1000\nPrice: 1.00"

func mustKey(t *testing.T) *ecdsa.PrivateKey {
	t.Helper()
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	return key
}

func TestMagicTag(t *testing.T) {
	if len(MagicTag) != 64 {
		t.Fatalf("len(MagicTag) = %d, want 64", len(MagicTag))
	}
	if strings.ToLower(MagicTag) != MagicTag {
		t.Error("MagicTag should be lowercase hex")
	}
}

func TestEncrypt_FreshKeyPerCall(t *testing.T) {
	ct1, key1, iv1, err := Encrypt([]byte("same"), false)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	ct2, key2, iv2, err := Encrypt([]byte("same"), false)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if len(key1) != 32 || len(iv1) != 16 {
		t.Fatalf("key/iv sizes = %d/%d, want 32/16", len(key1), len(iv1))
	}
	if bytes.Equal(key1, key2) || bytes.Equal(iv1, iv2) {
		t.Error("key and iv should differ between calls")
	}
	if bytes.Equal(ct1, ct2) {
		t.Error("ciphertexts should differ between calls")
	}
	if len(ct1)%16 != 0 {
		t.Errorf("ciphertext length %d should be a multiple of the block size", len(ct1))
	}
}

func TestRoundTrip(t *testing.T) {
	for _, compress := range []bool{false, true} {
		name := "plain"
		if compress {
			name = "compressed"
		}
		t.Run(name, func(t *testing.T) {
			buyer, seller, operator := mustKey(t), mustKey(t), mustKey(t)
			sealed, err := Seal(tradeText, compress, &buyer.PublicKey, &seller.PublicKey, &operator.PublicKey)
			if err != nil {
				t.Fatalf("Seal: %v", err)
			}
			if len(sealed.Envelopes) != 3 {
				t.Fatalf("envelopes = %d, want 3", len(sealed.Envelopes))
			}
			if sealed.Commitment != crypto.Keccak256Hash(sealed.Ciphertext) {
				t.Error("commitment should be keccak256 of the ciphertext")
			}

			for i, key := range []*ecdsa.PrivateKey{buyer, seller, operator} {
				res := UnwrapAndDecrypt(sealed.Ciphertext, sealed.Envelopes[i], key, compress)
				if !res.OK {
					t.Fatalf("recipient %d: UnwrapAndDecrypt failed: %v", i, res.Reason)
				}
				if res.Plaintext != tradeText {
					t.Errorf("recipient %d: Plaintext = %q, want %q", i, res.Plaintext, tradeText)
				}
			}
		})
	}
}

func TestUnwrapAndDecrypt_WrongKey(t *testing.T) {
	buyer, outsider := mustKey(t), mustKey(t)
	sealed, err := Seal(tradeText, false, &buyer.PublicKey)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}

	res := UnwrapAndDecrypt(sealed.Ciphertext, sealed.Envelopes[0], outsider, false)
	if res.OK {
		t.Fatal("outsider should not decrypt")
	}
	if !errors.Is(res.Reason, ErrBadMAC) {
		t.Errorf("Reason = %v, want ErrBadMAC", res.Reason)
	}
}

func TestUnwrapAndDecrypt_Tampering(t *testing.T) {
	buyer := mustKey(t)
	sealed, err := Seal(tradeText, false, &buyer.PublicKey)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(ct []byte, env *domain.EncryptedEnvelope) []byte
		want   error
	}{
		{"flipped mac", func(ct []byte, env *domain.EncryptedEnvelope) []byte {
			env.MAC[0] ^= 0xff
			return ct
		}, ErrBadMAC},
		{"flipped envelope ciphertext", func(ct []byte, env *domain.EncryptedEnvelope) []byte {
			env.Ciphertext[0] ^= 0xff
			return ct
		}, ErrBadMAC},
		{"truncated ephemeral key", func(ct []byte, env *domain.EncryptedEnvelope) []byte {
			env.EphemeralPublicKey = env.EphemeralPublicKey[:10]
			return ct
		}, ErrMalformedEnvelope},
		{"truncated metadata ciphertext", func(ct []byte, env *domain.EncryptedEnvelope) []byte {
			return ct[:len(ct)-3]
		}, ErrDecrypt},
		{"empty metadata ciphertext", func(ct []byte, env *domain.EncryptedEnvelope) []byte {
			return nil
		}, ErrDecrypt},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := sealed.Envelopes[0].Clone()
			ct := tt.mutate(append([]byte(nil), sealed.Ciphertext...), &env)
			res := UnwrapAndDecrypt(ct, env, buyer, false)
			if res.OK {
				t.Fatal("tampered input should not decrypt")
			}
			if !errors.Is(res.Reason, tt.want) {
				t.Errorf("Reason = %v, want %v", res.Reason, tt.want)
			}
		})
	}
}

func TestUnwrapAndDecrypt_MissingTag(t *testing.T) {
	buyer := mustKey(t)
	ct, key, iv, err := Encrypt([]byte("no tag here"), false)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	env, err := WrapKey(key, iv, &buyer.PublicKey)
	if err != nil {
		t.Fatalf("WrapKey: %v", err)
	}

	res := UnwrapAndDecrypt(ct, env, buyer, false)
	if res.OK || !errors.Is(res.Reason, ErrMissingTag) {
		t.Errorf("Result = %+v, want ErrMissingTag", res)
	}
}

func TestUnwrapAndDecrypt_CompressionMismatch(t *testing.T) {
	buyer := mustKey(t)
	sealed, err := Seal(tradeText, false, &buyer.PublicKey)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	res := UnwrapAndDecrypt(sealed.Ciphertext, sealed.Envelopes[0], buyer, true)
	if res.OK || !errors.Is(res.Reason, ErrDecompress) {
		t.Errorf("Result = %+v, want ErrDecompress", res)
	}
}

func TestOpen_FindsEnvelope(t *testing.T) {
	buyer, seller, operator := mustKey(t), mustKey(t), mustKey(t)
	sealed, err := Seal(tradeText, true, &buyer.PublicKey, &seller.PublicKey, &operator.PublicKey)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}

	res, idx := Open(sealed.Ciphertext, sealed.Envelopes, operator, true)
	if !res.OK {
		t.Fatalf("Open failed: %v", res.Reason)
	}
	if idx != 2 {
		t.Errorf("index = %d, want 2", idx)
	}

	res, idx = Open(sealed.Ciphertext, sealed.Envelopes, mustKey(t), true)
	if res.OK || idx != -1 {
		t.Errorf("outsider Open = (%+v, %d), want failure and -1", res, idx)
	}

	res, idx = Open(sealed.Ciphertext, nil, buyer, true)
	if res.OK || idx != -1 {
		t.Errorf("Open with no envelopes = (%+v, %d), want failure and -1", res, idx)
	}
}

func TestSeal_KeepsExistingTag(t *testing.T) {
	buyer := mustKey(t)
	sealed, err := Seal(MagicTag+tradeText, false, &buyer.PublicKey)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	res := UnwrapAndDecrypt(sealed.Ciphertext, sealed.Envelopes[0], buyer, false)
	if !res.OK || res.Plaintext != tradeText {
		t.Errorf("Result = %+v, want plaintext without a doubled tag", res)
	}
}

func TestSeal_NoRecipients(t *testing.T) {
	_, err := Seal(tradeText, false)
	var ve *domain.ValidationError
	if !errors.As(err, &ve) {
		t.Errorf("error = %v, want ValidationError", err)
	}
}

func TestWrapKey_BadSizes(t *testing.T) {
	buyer := mustKey(t)
	if _, err := WrapKey(make([]byte, 16), make([]byte, 16), &buyer.PublicKey); err == nil {
		t.Error("expected error for a 16-byte key")
	}
	if _, err := WrapKey(make([]byte, 32), make([]byte, 8), &buyer.PublicKey); err == nil {
		t.Error("expected error for an 8-byte iv")
	}
}

func TestBundle(t *testing.T) {
	key := bytes.Repeat([]byte{0xab}, 32)
	iv := bytes.Repeat([]byte{0x01}, 16)
	s := encodeBundle(key, iv)
	if !strings.Contains(s, "IV") || len(s) != 64+2+32 {
		t.Fatalf("bundle = %q", s)
	}
	gotKey, gotIV, err := decodeBundle(s)
	if err != nil {
		t.Fatalf("decodeBundle: %v", err)
	}
	if !bytes.Equal(gotKey, key) || !bytes.Equal(gotIV, iv) {
		t.Error("bundle did not round trip")
	}

	for _, bad := range []string{"", "abcd", "zz" + s[2:], s[:60] + "IV" + s[66:]} {
		if _, _, err := decodeBundle(bad); err == nil {
			t.Errorf("decodeBundle(%q) should fail", bad)
		}
	}
}

func TestPKCS7(t *testing.T) {
	for n := 0; n <= 33; n++ {
		in := bytes.Repeat([]byte{'x'}, n)
		padded := pkcs7Pad(in, 16)
		if len(padded)%16 != 0 || len(padded) <= n {
			t.Fatalf("pad(%d) produced %d bytes", n, len(padded))
		}
		out, err := pkcs7Unpad(padded, 16)
		if err != nil || !bytes.Equal(out, in) {
			t.Fatalf("unpad(pad(%d)) = %v, %v", n, out, err)
		}
	}

	bad := bytes.Repeat([]byte{0x03}, 16)
	bad[15] = 0x11
	if _, err := pkcs7Unpad(bad, 16); err == nil {
		t.Error("padding byte above block size should fail")
	}
	bad[15] = 0x00
	if _, err := pkcs7Unpad(bad, 16); err == nil {
		t.Error("zero padding byte should fail")
	}
}
