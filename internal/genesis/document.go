// Package genesis bootstraps the ledger from a YAML document: cash tokens,
// security registers, liquidity pools and cash-leg executors, plus the
// settlement factory every deployment needs.
package genesis

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"gopkg.in/yaml.v3"

	"github.com/dvpsettle/dvpd/internal/domain"
)

// Document is the YAML genesis file.
type Document struct {
	Deployer   string     `yaml:"deployer"`
	Cash       []Cash     `yaml:"cash"`
	Securities []Security `yaml:"securities"`
	Pools      []Pool     `yaml:"pools"`
	Executors  []Executor `yaml:"executors"`
}

type Cash struct {
	Name   string `yaml:"name"`
	Issuer string `yaml:"issuer"`
	Mints  []Mint `yaml:"mints"`
}

type Mint struct {
	To     string `yaml:"to"`
	Amount string `yaml:"amount"`
}

type Security struct {
	Name       string      `yaml:"name"`
	Title      string      `yaml:"title"`
	ISIN       string      `yaml:"isin"`
	Admin      string      `yaml:"admin"`
	BnD        []string    `yaml:"bnd"`
	Custodians []Custodian `yaml:"custodians"`
	// Extra contract code hashes allowed to move holdings. The settlement
	// code hash is always whitelisted.
	Codes  []string `yaml:"codes"`
	Supply string   `yaml:"supply"`
	// IssueTo is the BnD party that validates the primary issuance.
	IssueTo string `yaml:"issue_to"`
}

type Custodian struct {
	Address   string   `yaml:"address"`
	Investors []string `yaml:"investors"`
}

type Pool struct {
	Name     string    `yaml:"name"`
	Tokens   [2]string `yaml:"tokens"`
	FeeBps   uint64    `yaml:"fee_bps"`
	Provider string    `yaml:"provider"`
	Reserves [2]string `yaml:"reserves"`
}

type Executor struct {
	Name           string `yaml:"name"`
	Pool           string `yaml:"pool"`
	BuyerCurrency  string `yaml:"buyer_currency"`
	SellerCurrency string `yaml:"seller_currency"`
}

// Load reads and validates a genesis file.
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read genesis file: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a genesis document. Unknown keys are errors.
func Parse(data []byte) (*Document, error) {
	var doc Document
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode genesis: %w", err)
	}
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	return &doc, nil
}

// Validate checks addresses, amounts and name references.
func (d *Document) Validate() error {
	if d.Deployer != "" {
		if _, err := parseAddress("deployer", d.Deployer); err != nil {
			return err
		}
	}

	names := make(map[string]string)
	claim := func(kind, name string) error {
		if name == "" {
			return invalid("%s name is required", kind)
		}
		if prev, ok := names[name]; ok {
			return invalid("name %q is used by a %s and a %s", name, prev, kind)
		}
		names[name] = kind
		return nil
	}

	for _, c := range d.Cash {
		if err := claim("cash token", c.Name); err != nil {
			return err
		}
		if _, err := parseAddress(c.Name+".issuer", c.Issuer); err != nil {
			return err
		}
		for i, m := range c.Mints {
			if _, err := parseAddress(fmt.Sprintf("%s.mints[%d].to", c.Name, i), m.To); err != nil {
				return err
			}
			if _, err := parseAmount(fmt.Sprintf("%s.mints[%d].amount", c.Name, i), m.Amount); err != nil {
				return err
			}
		}
	}

	for _, s := range d.Securities {
		if err := claim("security", s.Name); err != nil {
			return err
		}
		if err := s.validate(); err != nil {
			return err
		}
	}

	for _, p := range d.Pools {
		if err := claim("pool", p.Name); err != nil {
			return err
		}
		for _, tok := range p.Tokens {
			if names[tok] != "cash token" {
				return invalid("pool %s: %q is not a cash token", p.Name, tok)
			}
		}
		if p.Tokens[0] == p.Tokens[1] {
			return invalid("pool %s: tokens must differ", p.Name)
		}
		if p.Reserves[0] != "" || p.Reserves[1] != "" {
			if _, err := parseAddress(p.Name+".provider", p.Provider); err != nil {
				return err
			}
			for i, r := range p.Reserves {
				if _, err := parseAmount(fmt.Sprintf("%s.reserves[%d]", p.Name, i), r); err != nil {
					return err
				}
			}
		}
	}

	for _, e := range d.Executors {
		if err := claim("executor", e.Name); err != nil {
			return err
		}
		if names[e.Pool] != "pool" {
			return invalid("executor %s: %q is not a pool", e.Name, e.Pool)
		}
		if names[e.BuyerCurrency] != "cash token" || names[e.SellerCurrency] != "cash token" {
			return invalid("executor %s: currencies must be cash tokens", e.Name)
		}
	}
	return nil
}

func (s Security) validate() error {
	if _, err := parseAddress(s.Name+".admin", s.Admin); err != nil {
		return err
	}
	for i, a := range s.BnD {
		if _, err := parseAddress(fmt.Sprintf("%s.bnd[%d]", s.Name, i), a); err != nil {
			return err
		}
	}
	for i, c := range s.Custodians {
		if _, err := parseAddress(fmt.Sprintf("%s.custodians[%d]", s.Name, i), c.Address); err != nil {
			return err
		}
		for j, inv := range c.Investors {
			if _, err := parseAddress(fmt.Sprintf("%s.custodians[%d].investors[%d]", s.Name, i, j), inv); err != nil {
				return err
			}
		}
	}
	for i, h := range s.Codes {
		if len(common.FromHex(h)) != common.HashLength {
			return invalid("%s.codes[%d]: %q is not a 32-byte hex hash", s.Name, i, h)
		}
	}
	if s.Supply != "" {
		if _, err := parseAmount(s.Name+".supply", s.Supply); err != nil {
			return err
		}
	}
	if s.IssueTo != "" {
		if s.Supply == "" {
			return invalid("%s: issue_to requires a supply", s.Name)
		}
		if _, err := parseAddress(s.Name+".issue_to", s.IssueTo); err != nil {
			return err
		}
	}
	return nil
}

func invalid(format string, args ...any) error {
	return &domain.ValidationError{Message: fmt.Sprintf(format, args...)}
}

func parseAddress(field, s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, invalid("%s: %q is not an address", field, s)
	}
	return common.HexToAddress(s), nil
}

func parseAmount(field, s string) (*uint256.Int, error) {
	a, err := domain.ParseAmount(s)
	if err != nil {
		return nil, invalid("%s: %v", field, err)
	}
	return a, nil
}

// mustAddress and mustAmount are used after Validate succeeded.
func mustAddress(s string) common.Address { return common.HexToAddress(s) }

func mustAmount(s string) *uint256.Int {
	a, err := domain.ParseAmount(s)
	if err != nil {
		panic(err)
	}
	return a
}
