package treasury

import (
	"sync/atomic"

	"github.com/agilemesh/ceremony-engine/internal/domain"
)

// Guard marks a transfer function non-reentrant for its full duration. State
// mutation happens before the external transfer; the guard additionally
// prevents the same transfer path from being re-entered while the external
// call is still executing.
type Guard struct {
	entered atomic.Bool
}

// Enter marks the guard entered. It fails with ErrReentrantCall if the guard
// is already held.
func (g *Guard) Enter() error {
	if !g.entered.CompareAndSwap(false, true) {
		return domain.ErrReentrantCall
	}
	return nil
}

// Exit releases the guard.
func (g *Guard) Exit() {
	g.entered.Store(false)
}
