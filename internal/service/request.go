package service

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"

	"github.com/dvpsettle/dvpd/internal/domain"
)

// TradeDetailsRequest is the wire form of domain.TradeDetails. Price is a
// decimal string, quantity a base-10 integer string.
type TradeDetailsRequest struct {
	MetadataCommitment string
	Quantity           string
	Price              string
	CashToken          string
	CashLegExecutor    string
	SecurityToken      string
	Buyer              string
	Seller             string
	TradeDate          uint64
	ValueDate          uint64
}

// Parse converts the request into trade details. Structural checks on the
// result are left to domain.TradeDetails.Validate.
func (r TradeDetailsRequest) Parse() (domain.TradeDetails, error) {
	var d domain.TradeDetails

	commitment, err := hexutil.Decode(r.MetadataCommitment)
	if err != nil || len(commitment) != common.HashLength {
		return d, &domain.ValidationError{Message: "metadata_commitment must be a 32-byte hex hash"}
	}
	d.MetadataCommitment = common.BytesToHash(commitment)

	qty, err := domain.ParseAmount(r.Quantity)
	if err != nil {
		return d, &domain.ValidationError{Message: "quantity: " + err.Error()}
	}
	d.Quantity = *qty

	price, err := domain.ParsePrice(r.Price)
	if err != nil {
		return d, &domain.ValidationError{Message: err.Error()}
	}
	d.Price = *price

	fields := []struct {
		name     string
		value    string
		optional bool
		dst      *common.Address
	}{
		{"cash_token", r.CashToken, false, &d.CashToken},
		{"cash_leg_executor", r.CashLegExecutor, true, &d.CashLegExecutor},
		{"security_token", r.SecurityToken, false, &d.SecurityToken},
		{"buyer", r.Buyer, false, &d.Buyer},
		{"seller", r.Seller, false, &d.Seller},
	}
	for _, f := range fields {
		if f.value == "" && f.optional {
			continue
		}
		addr, err := ParseAddress(f.name, f.value)
		if err != nil {
			return d, err
		}
		*f.dst = addr
	}

	d.TradeDate = r.TradeDate
	d.ValueDate = r.ValueDate
	return d, nil
}

// ParseAddress validates a hex address named field.
func ParseAddress(field, s string) (common.Address, error) {
	if s == "" {
		return common.Address{}, &domain.ValidationError{Message: field + " is required"}
	}
	if !common.IsHexAddress(s) {
		return common.Address{}, &domain.ValidationError{Message: fmt.Sprintf("%s must be a hex address", field)}
	}
	return common.HexToAddress(s), nil
}

func parseAmount(field, s string) (*uint256.Int, error) {
	a, err := domain.ParseAmount(s)
	if err != nil {
		return nil, &domain.ValidationError{Message: field + ": " + err.Error()}
	}
	return a, nil
}
