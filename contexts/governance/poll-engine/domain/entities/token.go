package entities

// TokenBalance is the externally maintained balance consumed by weighted
// polls. The engine only ever writes it through UpdateTokenBalance.
type TokenBalance struct {
	Owner       Identity
	Token       Identity
	Amount      uint64
	LastUpdated int64
}
