package domain

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"
)

// Event names published on the ledger event log and routed to webhooks.
const (
	EventSettlementCreated = "settlement.created"
	EventMetadataCommitted = "metadata.committed"
	EventBuyerApproved     = "trade.buyer_approved"
	EventTradeSettled      = "trade.settled"
	EventCashLegExecuted   = "cashleg.executed"
	EventTokenTransfer     = "token.transfer"
	EventTokenApproval     = "token.approval"
	EventTokenIssued       = "token.issued"
	EventTradeOverdue      = "trade.overdue"
)

// EventNames lists every event a participant may subscribe to.
var EventNames = []string{
	EventSettlementCreated,
	EventMetadataCommitted,
	EventBuyerApproved,
	EventTradeSettled,
	EventCashLegExecuted,
	EventTokenTransfer,
	EventTokenApproval,
	EventTokenIssued,
	EventTradeOverdue,
}

// SettlementCreated is emitted by the factory for every new instance.
type SettlementCreated struct {
	Instance common.Address `json:"instance"`
	Operator common.Address `json:"operator"`
}

// MetadataCommitted is the only place a trade's ciphertext and key
// envelopes are ever published.
type MetadataCommitted struct {
	TradeHash  common.Hash         `json:"trade_hash"`
	Ciphertext hexutil.Bytes       `json:"ciphertext"`
	Envelopes  []EncryptedEnvelope `json:"envelopes"`
}

// BuyerApproved records the buyer's approval of the committed terms.
type BuyerApproved struct {
	TradeHash common.Hash `json:"trade_hash"`
}

// TradeSettled records the atomic execution of both legs.
type TradeSettled struct {
	TradeHash  common.Hash `json:"trade_hash"`
	Quantity   string      `json:"quantity"`
	CashAmount string      `json:"cash_amount"`
}

// CashLegExecuted records a currency conversion performed by an executor.
type CashLegExecuted struct {
	Buyer     common.Address `json:"buyer"`
	Seller    common.Address `json:"seller"`
	AmountIn  string         `json:"amount_in"`
	AmountOut string         `json:"amount_out"`
}

// TokenTransfer records a balance movement on a cash or security ledger.
type TokenTransfer struct {
	From   common.Address `json:"from"`
	To     common.Address `json:"to"`
	Amount string         `json:"amount"`
}

// TokenApproval records a spending allowance grant.
type TokenApproval struct {
	Owner   common.Address `json:"owner"`
	Spender common.Address `json:"spender"`
	Amount  string         `json:"amount"`
}

// TokenIssued records newly created units.
type TokenIssued struct {
	Account common.Address `json:"account"`
	Amount  string         `json:"amount"`
}

// TradeOverdue is an off-ledger notice that a trade is still parked after
// its value date. It carries no protocol meaning.
type TradeOverdue struct {
	Instance  common.Address  `json:"instance"`
	TradeHash common.Hash     `json:"trade_hash"`
	State     SettlementState `json:"state"`
	ValueDate uint64          `json:"value_date"`
}

// NewTokenTransfer builds a transfer payload.
func NewTokenTransfer(from, to common.Address, amount *uint256.Int) TokenTransfer {
	return TokenTransfer{From: from, To: to, Amount: amount.Dec()}
}
