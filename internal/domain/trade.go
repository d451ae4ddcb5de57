package domain

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
)

// TradeDetails are the committed terms of one DVP trade. The struct is a
// comparable value: two TradeDetails are the same trade iff they are == and,
// equivalently, iff their hashes match.
type TradeDetails struct {
	MetadataCommitment common.Hash // keccak256 of the published ciphertext
	Quantity           uint256.Int // security units
	Price              uint256.Int // cash units per security unit, 18-decimal fixed point
	CashToken          common.Address
	CashLegExecutor    common.Address // zero address: same currency, no conversion
	SecurityToken      common.Address
	Buyer              common.Address
	Seller             common.Address
	TradeDate          uint64 // informational, never enforced
	ValueDate          uint64 // informational, never enforced
}

// tradeDetailsArgs is the ABI layout of TradeDetails. Field order matters.
var tradeDetailsArgs = mustArguments(
	"bytes32",
	"uint256",
	"uint256",
	"address",
	"address",
	"address",
	"address",
	"address",
	"uint256",
	"uint256",
)

func mustArguments(types ...string) abi.Arguments {
	args := make(abi.Arguments, len(types))
	for i, name := range types {
		typ, err := abi.NewType(name, "", nil)
		if err != nil {
			panic(fmt.Sprintf("abi type %q: %v", name, err))
		}
		args[i] = abi.Argument{Type: typ}
	}
	return args
}

// Encode returns the ABI encoding of the details, identical to Solidity's
// abi.encode for the equivalent static struct.
func (d TradeDetails) Encode() []byte {
	packed, err := tradeDetailsArgs.Pack(
		[32]byte(d.MetadataCommitment),
		d.Quantity.ToBig(),
		d.Price.ToBig(),
		d.CashToken,
		d.CashLegExecutor,
		d.SecurityToken,
		d.Buyer,
		d.Seller,
		new(big.Int).SetUint64(d.TradeDate),
		new(big.Int).SetUint64(d.ValueDate),
	)
	if err != nil {
		// Every argument is a static type with a matching Go value.
		panic(fmt.Sprintf("encode trade details: %v", err))
	}
	return packed
}

// Hash is the trade's identity: keccak256 of the ABI-encoded details.
func (d TradeDetails) Hash() common.Hash {
	return crypto.Keccak256Hash(d.Encode())
}

// SameCurrency reports whether the cash leg settles without conversion.
func (d TradeDetails) SameCurrency() bool {
	return d.CashLegExecutor == (common.Address{})
}

// CashAmount computes quantity × price in 256-bit integer arithmetic.
// Price already carries the 18 fractional digits of the cash token, so the
// product is the cash amount in base units and no division takes place.
func (d TradeDetails) CashAmount() (*uint256.Int, error) {
	amount, overflow := new(uint256.Int).MulOverflow(&d.Quantity, &d.Price)
	if overflow {
		return nil, fmt.Errorf("%w: quantity %s × price %s", ErrAmountOverflow, d.Quantity.Dec(), d.Price.Dec())
	}
	return amount, nil
}

// Validate checks the structural requirements on a trade before it can be
// committed.
func (d TradeDetails) Validate() error {
	var zero common.Address
	switch {
	case d.Quantity.IsZero():
		return &ValidationError{Message: "quantity must be > 0"}
	case d.Price.IsZero():
		return &ValidationError{Message: "price must be > 0"}
	case d.CashToken == zero:
		return &ValidationError{Message: "cash_token is required"}
	case d.SecurityToken == zero:
		return &ValidationError{Message: "security_token is required"}
	case d.Buyer == zero:
		return &ValidationError{Message: "buyer is required"}
	case d.Seller == zero:
		return &ValidationError{Message: "seller is required"}
	case d.Buyer == d.Seller:
		return &ValidationError{Message: "buyer and seller must differ"}
	}
	if _, err := d.CashAmount(); err != nil {
		return err
	}
	return nil
}

// Parties returns the addresses a trade concerns, in buyer, seller order.
func (d TradeDetails) Parties() []common.Address {
	return []common.Address{d.Buyer, d.Seller}
}
