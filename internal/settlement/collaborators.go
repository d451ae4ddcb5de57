package settlement

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/dvpsettle/dvpd/internal/domain"
	"github.com/dvpsettle/dvpd/internal/executor"
	"github.com/dvpsettle/dvpd/internal/ledger"
)

// CashLedger moves the cash leg when no conversion is needed.
type CashLedger interface {
	TransferFrom(tx *ledger.Tx, spender, from, to common.Address, amount *uint256.Int) error
}

// SecurityLedger moves the security leg under compliance rules.
type SecurityLedger interface {
	TransferWithCompliance(tx *ledger.Tx, operator, from, to common.Address, amount *uint256.Int) error
}

// CashLegExecutor pays the seller in one currency out of the buyer's
// balance in another.
type CashLegExecutor interface {
	BuyerCurrency() common.Address
	Execute(tx *ledger.Tx, caller common.Address, leg domain.CashLeg) (*executor.Result, error)
}

// Resolver finds the contracts named in trade details. Lookups fail with
// ErrTokenNotFound or ErrExecutorNotFound.
type Resolver interface {
	CashLedger(addr common.Address) (CashLedger, error)
	SecurityLedger(addr common.Address) (SecurityLedger, error)
	CashLegExecutor(addr common.Address) (CashLegExecutor, error)
}
