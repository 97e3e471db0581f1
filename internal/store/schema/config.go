package schema

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// ConfigState is the configuration region of the shared state.
type ConfigState struct {
	// ExchangeRate is the price of one membership unit
	ExchangeRate *big.Int
	// RateUpdatedAt is when the exchange rate was last refreshed
	RateUpdatedAt time.Time
	// VestingPeriod is the waiting period after (re)approval before voting rights activate
	VestingPeriod time.Duration
	// Paused is the global pause flag enforced by the router
	Paused bool
	// PriceOracle is an opaque reference to the external price oracle
	PriceOracle common.Address
	// CeremonyCounter feeds deterministic ceremony code generation
	CeremonyCounter uint64
	// MembershipCounter feeds membership id assignment; pre-incremented so the first id is 1
	MembershipCounter uint64
	// Initialized marks one-time admin initialization
	Initialized bool
}

// Clone returns a deep copy of the config region.
func (c *ConfigState) Clone() *ConfigState {
	if c == nil {
		return nil
	}
	out := *c
	if c.ExchangeRate != nil {
		out.ExchangeRate = new(big.Int).Set(c.ExchangeRate)
	}
	return &out
}
