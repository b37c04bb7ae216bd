package billing

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLedger_AddThenRemoveLeavesNothing(t *testing.T) {
	var ledger Ledger

	require.NoError(t, ledger.AddOrUpdate("cola", "Cola", decimal.NewFromInt(5), 1))
	require.NoError(t, ledger.AddOrUpdate("cola", "Cola", decimal.NewFromInt(5), -1))

	_, ok := ledger.Line("cola")
	assert.False(t, ok)
	assert.Empty(t, ledger.Lines)
	assert.True(t, ledger.Total().IsZero())
}

func TestLedger_KeepsInsertionOrder(t *testing.T) {
	var ledger Ledger

	require.NoError(t, ledger.AddOrUpdate("tea", "Tea", decimal.NewFromInt(4), 1))
	require.NoError(t, ledger.AddOrUpdate("chips", "Chips", decimal.NewFromInt(3), 2))
	require.NoError(t, ledger.AddOrUpdate("tea", "Tea", decimal.NewFromInt(4), 2))

	require.Len(t, ledger.Lines, 2)
	assert.Equal(t, "tea", ledger.Lines[0].ProductID)
	assert.Equal(t, 3, ledger.Lines[0].Quantity)
	assert.Equal(t, "chips", ledger.Lines[1].ProductID)
	assertMoney(t, "18", ledger.Total())
}

func TestLedger_OverdrawRemovesLine(t *testing.T) {
	var ledger Ledger

	require.NoError(t, ledger.AddOrUpdate("tea", "Tea", decimal.NewFromInt(4), 2))
	require.NoError(t, ledger.AddOrUpdate("tea", "Tea", decimal.NewFromInt(4), -5))

	assert.Empty(t, ledger.Lines)
}

func TestLedger_RejectsBadDeltas(t *testing.T) {
	var ledger Ledger

	assert.ErrorIs(t, ledger.AddOrUpdate("tea", "Tea", decimal.NewFromInt(4), 0), ErrInvalidQuantity)
	assert.ErrorIs(t, ledger.AddOrUpdate("tea", "Tea", decimal.NewFromInt(4), -1), ErrOrderLineNotFound)
	assert.Empty(t, ledger.Lines)
}
