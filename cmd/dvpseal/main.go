// Command dvpseal seals and opens confidential trade metadata and signs
// requests to the dvpd API.
package main

import (
	"crypto/ecdsa"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"

	"github.com/dvpsettle/dvpd/internal/domain"
	"github.com/dvpsettle/dvpd/internal/handler"
	"github.com/dvpsettle/dvpd/internal/metadata"
	"github.com/dvpsettle/dvpd/internal/service"
)

const usage = `usage:
  dvpseal seal -in FILE -to PUBHEX[,PUBHEX...] [-compress]
  dvpseal open -in FILE -key PRIVHEX [-compress]
  dvpseal sign -key PRIVHEX -method METHOD -path PATH [-in FILE] [-nonce NONCE] [-timestamp UNIX]
`

// sealedFile is the JSON written by seal and read by open. The metadata
// response of the API has the same shape, so open accepts either.
type sealedFile struct {
	Ciphertext hexutil.Bytes              `json:"ciphertext"`
	Commitment *common.Hash               `json:"commitment,omitempty"`
	Compressed *bool                      `json:"compressed,omitempty"`
	Envelopes  []domain.EncryptedEnvelope `json:"envelopes"`
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprint(stderr, usage)
		return 2
	}

	var err error
	switch args[0] {
	case "seal":
		err = runSeal(args[1:], stdin, stdout)
	case "open":
		err = runOpen(args[1:], stdin, stdout)
	case "sign":
		err = runSign(args[1:], stdin, stdout)
	default:
		fmt.Fprint(stderr, usage)
		return 2
	}
	if err != nil {
		fmt.Fprintf(stderr, "dvpseal %s: %v\n", args[0], err)
		return 1
	}
	return 0
}

func runSeal(args []string, stdin io.Reader, stdout io.Writer) error {
	fs := flag.NewFlagSet("seal", flag.ContinueOnError)
	in := fs.String("in", "-", "plaintext file, - for stdin")
	to := fs.String("to", "", "comma-separated recipient public keys")
	compress := fs.Bool("compress", false, "deflate before encrypting")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *to == "" {
		return errors.New("-to is required")
	}

	var recipients []*ecdsa.PublicKey
	for _, s := range strings.Split(*to, ",") {
		pub, err := service.ParsePublicKey(strings.TrimSpace(s))
		if err != nil {
			return err
		}
		recipients = append(recipients, pub)
	}

	plaintext, err := readInput(*in, stdin)
	if err != nil {
		return err
	}
	sealed, err := metadata.Seal(string(plaintext), *compress, recipients...)
	if err != nil {
		return err
	}
	return writeJSON(stdout, sealedFile{
		Ciphertext: sealed.Ciphertext,
		Commitment: &sealed.Commitment,
		Compressed: &sealed.Compressed,
		Envelopes:  sealed.Envelopes,
	})
}

func runOpen(args []string, stdin io.Reader, stdout io.Writer) error {
	fs := flag.NewFlagSet("open", flag.ContinueOnError)
	in := fs.String("in", "-", "sealed JSON file, - for stdin")
	keyHex := fs.String("key", "", "recipient private key")
	compress := fs.Bool("compress", false, "inflate after decrypting when the file does not say")
	if err := fs.Parse(args); err != nil {
		return err
	}
	key, err := parsePrivateKey(*keyHex)
	if err != nil {
		return err
	}

	raw, err := readInput(*in, stdin)
	if err != nil {
		return err
	}
	var f sealedFile
	if err := json.Unmarshal(raw, &f); err != nil {
		return fmt.Errorf("decode %s: %w", *in, err)
	}
	if f.Compressed != nil {
		*compress = *f.Compressed
	}

	res, idx := metadata.Open(f.Ciphertext, f.Envelopes, key, *compress)
	if !res.OK || idx < 0 {
		return fmt.Errorf("not a recipient: %v", res.Reason)
	}
	_, err = io.WriteString(stdout, res.Plaintext)
	return err
}

func runSign(args []string, stdin io.Reader, stdout io.Writer) error {
	fs := flag.NewFlagSet("sign", flag.ContinueOnError)
	keyHex := fs.String("key", "", "caller private key")
	method := fs.String("method", "POST", "HTTP method")
	path := fs.String("path", "", "request path without query")
	in := fs.String("in", "", "request body file, - for stdin; empty for no body")
	nonce := fs.String("nonce", "", "request nonce; random when empty")
	ts := fs.Int64("timestamp", 0, "unix seconds; now when zero")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *path == "" {
		return errors.New("-path is required")
	}
	key, err := parsePrivateKey(*keyHex)
	if err != nil {
		return err
	}

	var body []byte
	if *in != "" {
		if body, err = readInput(*in, stdin); err != nil {
			return err
		}
	}
	if *nonce == "" {
		*nonce = uuid.NewString()
	}
	if *ts == 0 {
		*ts = time.Now().Unix()
	}
	sig, err := handler.SignRequest(key, strings.ToUpper(*method), *path, *ts, *nonce, body)
	if err != nil {
		return err
	}
	// One header per line, ready for curl -H.
	_, err = fmt.Fprintf(stdout, "%s: %d\n%s: %s\n%s: %s\n",
		handler.TimestampHeader, *ts, handler.NonceHeader, *nonce, handler.SignatureHeader, sig)
	return err
}

func parsePrivateKey(s string) (*ecdsa.PrivateKey, error) {
	if s == "" {
		return nil, errors.New("-key is required")
	}
	key, err := crypto.HexToECDSA(strings.TrimPrefix(s, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	return key, nil
}

func readInput(path string, stdin io.Reader) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(stdin)
	}
	return os.ReadFile(path)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
