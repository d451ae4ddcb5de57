package metadata

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/sha512"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/dvpsettle/dvpd/internal/domain"
)

// Envelope produced outside Go with the eccrypto layout: ECDH x coordinate
// left-padded to 32 bytes, SHA-512 split into AES and MAC keys, HMAC-SHA256
// over iv, ephemeral key and ciphertext. The ephemeral key was chosen so
// the shared x starts with a zero byte.
const (
	vectorPrivateKey   = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"
	vectorEphemeralPub = "0x04a71d7413ed31675f789577d30cf88270f8fd440c2b8273dcb8cfe33f1eeb84" +
		"7c51547ce8e4d22ca87db1589edcc580243ba89a89d6384c118270fbc091c55f" +
		"4b"
	vectorSharedX    = "0092ec5a42d85a54236606ae9d200a829b14a34ff88b871dbcb33d29f920aeee"
	vectorEnvelopeIV = "0x303132333435363738393a3b3c3d3e3f"
	vectorEnvelopeCT = "0x8aa017df6061a45bb4eb6350dfe4f596154c5c82a1609d9d0720f675f876f6a2" +
		"1992b7828ed08bc718752bd266ce9e9d5db2c07807248cd5bcc7e6af0846b712" +
		"f7ff63b536f862a9206aa3df87d15bb1ba56d42e65986fc8a729e1163f4e48b3" +
		"654c7fb26953b957e267aa358f249691"
	vectorEnvelopeMAC = "0x7ed2ece063de2b4a7d97a3fe79187ccdf28ecdcc246528c55fa133053d8058bb"
	vectorCiphertext  = "0xf1c30b3364af89d09a7fb59dd35f372631be0471370250500344ef698d590c22" +
		"54e57d0cfe9183034f9dcd77b804e992f713f0022784695f7ae440e96514aad7" +
		"e35ce5e2eb5e2e439204ea0e025c7e3cb56391ba578804032cfaebe8521b2b0c"
	vectorDeflatedCT = "0x24160d7d7cf33fd1ac03c965d8cce56d0859d9cc8cf0900d5122fba58f756357" +
		"c728d1ee6f0c3c39362582016349d06e25ad207c656939e9ff65937e68681b02" +
		"3824e9ec03a0988a753742ecf7d4f6008d4bd8ca9fbebe38f17d28ce5cb63f08"

	vectorBody = "\nISIN EIB3Y\nMT202"
)

func vectorEnvelope() domain.EncryptedEnvelope {
	return domain.EncryptedEnvelope{
		IV:                 hexutil.MustDecode(vectorEnvelopeIV),
		EphemeralPublicKey: hexutil.MustDecode(vectorEphemeralPub),
		Ciphertext:         hexutil.MustDecode(vectorEnvelopeCT),
		MAC:                hexutil.MustDecode(vectorEnvelopeMAC),
	}
}

func vectorKey(t *testing.T) *ecdsa.PrivateKey {
	t.Helper()
	key, err := crypto.HexToECDSA(vectorPrivateKey)
	if err != nil {
		t.Fatalf("HexToECDSA: %v", err)
	}
	return key
}

func TestMagicTag_Value(t *testing.T) {
	if MagicTag != "704512f53a4efc15864acc3cf3e4e319cf66d48723acf6bd676c1ae7919a05dc" {
		t.Fatalf("MagicTag = %s", MagicTag)
	}
}

func TestVector_Address(t *testing.T) {
	want := common.HexToAddress("0x2c7536E3605D9C16a7a3D7b1898e529396a65c23")
	if got := crypto.PubkeyToAddress(vectorKey(t).PublicKey); got != want {
		t.Fatalf("address = %s, want %s", got.Hex(), want.Hex())
	}
}

func TestVector_DeriveKeysPadsSharedX(t *testing.T) {
	eph, err := crypto.UnmarshalPubkey(hexutil.MustDecode(vectorEphemeralPub))
	if err != nil {
		t.Fatalf("UnmarshalPubkey: %v", err)
	}
	encKey, macKey, err := deriveKeys(vectorKey(t), eph)
	if err != nil {
		t.Fatalf("deriveKeys: %v", err)
	}
	want := sha512.Sum512(common.FromHex(vectorSharedX))
	if !bytes.Equal(encKey, want[:32]) || !bytes.Equal(macKey, want[32:]) {
		t.Fatalf("derived keys differ from SHA-512 of the padded shared x")
	}
}

func TestVector_UnwrapAndDecrypt(t *testing.T) {
	tests := []struct {
		name       string
		ciphertext string
		compress   bool
	}{
		{"plain", vectorCiphertext, false},
		{"deflated", vectorDeflatedCT, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := UnwrapAndDecrypt(hexutil.MustDecode(tt.ciphertext), vectorEnvelope(), vectorKey(t), tt.compress)
			if !res.OK {
				t.Fatalf("UnwrapAndDecrypt failed: %v", res.Reason)
			}
			if res.Plaintext != vectorBody {
				t.Fatalf("plaintext = %q, want %q", res.Plaintext, vectorBody)
			}
		})
	}
}

func TestVector_KeyBundle(t *testing.T) {
	bundle, err := eciesDecrypt(vectorKey(t), vectorEnvelope())
	if err != nil {
		t.Fatalf("eciesDecrypt: %v", err)
	}
	key, iv, err := decodeBundle(string(bundle))
	if err != nil {
		t.Fatalf("decodeBundle: %v", err)
	}
	for i := range key {
		if key[i] != byte(i) {
			t.Fatalf("key = %x", key)
		}
	}
	for i := range iv {
		if iv[i] != byte(0x20+i) {
			t.Fatalf("iv = %x", iv)
		}
	}

	// Same key and iv must reproduce the published ciphertext byte for byte.
	ct, err := cbcEncrypt(key, iv, []byte(MagicTag+vectorBody))
	if err != nil {
		t.Fatalf("cbcEncrypt: %v", err)
	}
	if !bytes.Equal(ct, hexutil.MustDecode(vectorCiphertext)) {
		t.Fatalf("ciphertext = %x", ct)
	}
}

func TestVector_MACCoversEphemeralKey(t *testing.T) {
	env := vectorEnvelope()
	env.EphemeralPublicKey = crypto.FromECDSAPub(&vectorKey(t).PublicKey)
	if _, err := eciesDecrypt(vectorKey(t), env); !errors.Is(err, ErrBadMAC) {
		t.Fatalf("err = %v, want ErrBadMAC", err)
	}
}
