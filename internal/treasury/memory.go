package treasury

import (
	"context"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// MemoryLedger is an in-process implementation of both transfer ports. It
// backs tests and embedded deployments where no real host ledger is wired.
type MemoryLedger struct {
	mu sync.Mutex

	received map[common.Address]*big.Int
	tokens   map[common.Address]*big.Int
	payouts  map[common.Address]map[common.Address]*big.Int
}

// NewMemoryLedger creates an empty in-memory ledger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		received: make(map[common.Address]*big.Int),
		tokens:   make(map[common.Address]*big.Int),
		payouts:  make(map[common.Address]map[common.Address]*big.Int),
	}
}

// Values returns the ledger's native-value port.
func (l *MemoryLedger) Values() ValuePort {
	return memValuePort{l}
}

// Tokens returns the ledger's token port.
func (l *MemoryLedger) Tokens() TokenPort {
	return memTokenPort{l}
}

type memValuePort struct{ l *MemoryLedger }

func (p memValuePort) Transfer(ctx context.Context, to common.Address, amount *big.Int) error {
	return p.l.transfer(ctx, to, amount)
}

type memTokenPort struct{ l *MemoryLedger }

func (p memTokenPort) BalanceOf(ctx context.Context, token common.Address) (*big.Int, error) {
	return p.l.BalanceOf(ctx, token)
}

func (p memTokenPort) Transfer(ctx context.Context, token common.Address, to common.Address, amount *big.Int) error {
	return p.l.TransferToken(ctx, token, to, amount)
}

// transfer credits native value to the destination.
func (l *MemoryLedger) transfer(_ context.Context, to common.Address, amount *big.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.received[to] == nil {
		l.received[to] = new(big.Int)
	}
	l.received[to].Add(l.received[to], amount)
	return nil
}

// Received returns the native value transferred to an identity so far.
func (l *MemoryLedger) Received(to common.Address) *big.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.received[to] == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(l.received[to])
}

// SetTokenBalance seeds the engine's balance of a token.
func (l *MemoryLedger) SetTokenBalance(token common.Address, amount *big.Int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.tokens[token] = new(big.Int).Set(amount)
}

// BalanceOf returns the engine's balance of a token.
func (l *MemoryLedger) BalanceOf(_ context.Context, token common.Address) (*big.Int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.tokens[token] == nil {
		return new(big.Int), nil
	}
	return new(big.Int).Set(l.tokens[token]), nil
}

// TransferToken moves tokens from the engine's balance to a destination.
func (l *MemoryLedger) TransferToken(_ context.Context, token common.Address, to common.Address, amount *big.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.tokens[token] == nil {
		l.tokens[token] = new(big.Int)
	}
	l.tokens[token].Sub(l.tokens[token], amount)
	if l.payouts[token] == nil {
		l.payouts[token] = make(map[common.Address]*big.Int)
	}
	if l.payouts[token][to] == nil {
		l.payouts[token][to] = new(big.Int)
	}
	l.payouts[token][to].Add(l.payouts[token][to], amount)
	return nil
}

// TokenReceived returns the tokens transferred to an identity so far.
func (l *MemoryLedger) TokenReceived(token common.Address, to common.Address) *big.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.payouts[token] == nil || l.payouts[token][to] == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(l.payouts[token][to])
}
