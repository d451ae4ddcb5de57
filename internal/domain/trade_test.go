package domain

import (
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
)

func sampleDetails() TradeDetails {
	d := TradeDetails{
		MetadataCommitment: crypto.Keccak256Hash([]byte("ciphertext")),
		CashToken:          common.HexToAddress("0x1000000000000000000000000000000000000001"),
		SecurityToken:      common.HexToAddress("0x2000000000000000000000000000000000000002"),
		Buyer:              common.HexToAddress("0x3000000000000000000000000000000000000003"),
		Seller:             common.HexToAddress("0x4000000000000000000000000000000000000004"),
		TradeDate:          123,
		ValueDate:          234,
	}
	d.Quantity.SetUint64(1000)
	d.Price.SetUint64(1_000_000_000_000_000_000)
	return d
}

func TestTradeDetails_EncodeLength(t *testing.T) {
	if got := len(sampleDetails().Encode()); got != 10*32 {
		t.Errorf("len(Encode()) = %d, want %d", got, 10*32)
	}
}

func TestTradeDetails_HashIsDeterministic(t *testing.T) {
	a, b := sampleDetails(), sampleDetails()
	if a != b {
		t.Fatal("identical details should compare equal")
	}
	if a.Hash() != b.Hash() {
		t.Error("identical details should hash identically")
	}
	if a.Hash() != crypto.Keccak256Hash(a.Encode()) {
		t.Error("Hash() should be keccak256 of Encode()")
	}
}

func TestTradeDetails_HashChangesPerField(t *testing.T) {
	base := sampleDetails()
	other := common.HexToAddress("0x9999999999999999999999999999999999999999")

	mutations := map[string]func(d *TradeDetails){
		"metadata_commitment": func(d *TradeDetails) { d.MetadataCommitment[0] ^= 0xff },
		"quantity":            func(d *TradeDetails) { d.Quantity.SetUint64(1001) },
		"price":               func(d *TradeDetails) { d.Price.SetUint64(1) },
		"cash_token":          func(d *TradeDetails) { d.CashToken = other },
		"cash_leg_executor":   func(d *TradeDetails) { d.CashLegExecutor = other },
		"security_token":      func(d *TradeDetails) { d.SecurityToken = other },
		"buyer":               func(d *TradeDetails) { d.Buyer = other },
		"seller":              func(d *TradeDetails) { d.Seller = other },
		"trade_date":          func(d *TradeDetails) { d.TradeDate++ },
		"value_date":          func(d *TradeDetails) { d.ValueDate++ },
	}

	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			d := base
			mutate(&d)
			if d == base {
				t.Fatal("mutation did not change the value")
			}
			if d.Hash() == base.Hash() {
				t.Errorf("changing %s did not change the hash", name)
			}
		})
	}
}

func TestTradeDetails_SameCurrency(t *testing.T) {
	d := sampleDetails()
	if !d.SameCurrency() {
		t.Error("zero executor should mean same currency")
	}
	d.CashLegExecutor = common.HexToAddress("0x5")
	if d.SameCurrency() {
		t.Error("non-zero executor should mean conversion")
	}
}

func TestTradeDetails_CashAmount(t *testing.T) {
	d := sampleDetails()
	amount, err := d.CashAmount()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if amount.Dec() != "1000000000000000000000" {
		t.Errorf("CashAmount() = %s, want 1000 * 10^18", amount.Dec())
	}

	// 10,000,000 units at 1.1 per unit.
	d.Quantity.SetUint64(10_000_000)
	d.Price.SetUint64(1_100_000_000_000_000_000)
	amount, err = d.CashAmount()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if amount.Dec() != "11000000000000000000000000" {
		t.Errorf("CashAmount() = %s, want 11000000 * 10^18", amount.Dec())
	}
}

func TestTradeDetails_CashAmountOverflow(t *testing.T) {
	d := sampleDetails()
	d.Quantity = *new(uint256.Int).Lsh(uint256.NewInt(1), 200)
	d.Price = *new(uint256.Int).Lsh(uint256.NewInt(1), 100)
	if _, err := d.CashAmount(); !errors.Is(err, ErrAmountOverflow) {
		t.Errorf("CashAmount() error = %v, want ErrAmountOverflow", err)
	}
}

func TestTradeDetails_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(d *TradeDetails)
	}{
		{"zero quantity", func(d *TradeDetails) { d.Quantity.Clear() }},
		{"zero price", func(d *TradeDetails) { d.Price.Clear() }},
		{"missing cash token", func(d *TradeDetails) { d.CashToken = common.Address{} }},
		{"missing security token", func(d *TradeDetails) { d.SecurityToken = common.Address{} }},
		{"missing buyer", func(d *TradeDetails) { d.Buyer = common.Address{} }},
		{"missing seller", func(d *TradeDetails) { d.Seller = common.Address{} }},
		{"self trade", func(d *TradeDetails) { d.Buyer = d.Seller }},
	}

	if err := sampleDetails().Validate(); err != nil {
		t.Fatalf("valid details rejected: %v", err)
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := sampleDetails()
			tt.mutate(&d)
			var ve *ValidationError
			if err := d.Validate(); !errors.As(err, &ve) {
				t.Errorf("Validate() = %v, want ValidationError", err)
			}
		})
	}
}
