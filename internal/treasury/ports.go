// Package treasury holds the outbound value-transfer ports. The engine never
// initiates an outbound payment except through these interfaces, and only
// from the explicit withdrawal operations.
package treasury

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// ValuePort is the host environment's native value transfer channel.
//
//go:generate mockgen -source=ports.go -destination=../mocks/treasury.go -package=mocks -mock_names=ValuePort=MockValuePort
type ValuePort interface {
	// Transfer sends native value to a destination identity
	Transfer(ctx context.Context, to common.Address, amount *big.Int) error
}

// TokenPort is the host environment's token ledger. Token balances live with
// the external ledger, not in engine state, so withdrawals query the port.
//
//go:generate mockgen -source=ports.go -destination=../mocks/treasury.go -package=mocks -mock_names=TokenPort=MockTokenPort
type TokenPort interface {
	// BalanceOf returns the engine's balance of the given token
	BalanceOf(ctx context.Context, token common.Address) (*big.Int, error)
	// Transfer sends tokens to a destination identity
	Transfer(ctx context.Context, token common.Address, to common.Address, amount *big.Int) error
}
