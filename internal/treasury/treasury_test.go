package treasury_test

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agilemesh/ceremony-engine/internal/domain"
	"github.com/agilemesh/ceremony-engine/internal/treasury"
)

var (
	destAddr  = common.HexToAddress("0x1111111111111111111111111111111111111111")
	tokenAddr = common.HexToAddress("0x2222222222222222222222222222222222222222")
)

func TestGuard(t *testing.T) {
	var g treasury.Guard

	require.NoError(t, g.Enter())
	assert.ErrorIs(t, g.Enter(), domain.ErrReentrantCall)

	g.Exit()
	assert.NoError(t, g.Enter())
	g.Exit()
}

func TestMemoryLedger_Values(t *testing.T) {
	ledger := treasury.NewMemoryLedger()
	port := ledger.Values()

	assert.Equal(t, int64(0), ledger.Received(destAddr).Int64())

	require.NoError(t, port.Transfer(context.Background(), destAddr, big.NewInt(300)))
	require.NoError(t, port.Transfer(context.Background(), destAddr, big.NewInt(200)))
	assert.Equal(t, int64(500), ledger.Received(destAddr).Int64())
}

func TestMemoryLedger_Tokens(t *testing.T) {
	ledger := treasury.NewMemoryLedger()
	port := ledger.Tokens()

	balance, err := port.BalanceOf(context.Background(), tokenAddr)
	require.NoError(t, err)
	assert.Equal(t, int64(0), balance.Int64())

	ledger.SetTokenBalance(tokenAddr, big.NewInt(1000))

	balance, err = port.BalanceOf(context.Background(), tokenAddr)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), balance.Int64())

	require.NoError(t, port.Transfer(context.Background(), tokenAddr, destAddr, big.NewInt(400)))

	balance, err = port.BalanceOf(context.Background(), tokenAddr)
	require.NoError(t, err)
	assert.Equal(t, int64(600), balance.Int64())
	assert.Equal(t, int64(400), ledger.TokenReceived(tokenAddr, destAddr).Int64())
}
