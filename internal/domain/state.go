package domain

// SettlementState is the lifecycle stage of a settlement instance.
type SettlementState string

const (
	StateEmpty         SettlementState = "empty"
	StateCommitted     SettlementState = "committed"
	StateBuyerApproved SettlementState = "buyer_approved"
	StateSettled       SettlementState = "settled"
)

// Parked reports whether the trade is committed but not yet settled.
func (s SettlementState) Parked() bool {
	return s == StateCommitted || s == StateBuyerApproved
}
