package domain

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// CashLeg is the payment half of a trade as handed to a cash-leg executor:
// the buyer pays in BuyerCurrency and the seller must receive Amount of
// SellerCurrency.
type CashLeg struct {
	Buyer          common.Address
	Seller         common.Address
	BuyerCurrency  common.Address
	SellerCurrency common.Address
	Amount         *uint256.Int
}
