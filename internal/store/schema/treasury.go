package schema

import "math/big"

// TreasuryState is the native-value treasury region. Token balances are not
// mirrored here; they live with the external token ledger and are queried
// through the token port at withdrawal time.
type TreasuryState struct {
	// Balance is the accumulated native balance (payments and contributions
	// received, minus withdrawals)
	Balance *big.Int
}

// Clone returns a deep copy of the treasury region.
func (t *TreasuryState) Clone() *TreasuryState {
	if t == nil {
		return nil
	}
	out := &TreasuryState{Balance: new(big.Int)}
	if t.Balance != nil {
		out.Balance.Set(t.Balance)
	}
	return out
}
