package investment

import (
	"testing"
	"time"

	"github.com/bhtaylor94/Stock-data/ledger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHaltsAtExposureLimit(t *testing.T) {
	l := ledger.New()
	m := NewManager(l, 0.5)

	assert.False(t, m.CheckAndUpdate(10000))
	assert.Zero(t, m.CurrentExposure())
	assert.Equal(t, 5000.0, m.Limit())

	ok, err := l.InsertIfAbsent(ledger.Position{Symbol: "AAPL", Quantity: 60, EntryPrice: 50, EntryTime: time.Now()})
	require.NoError(t, err)
	require.True(t, ok)
	assert.False(t, m.CheckAndUpdate(10000), "3000 of 5000")

	require.NoError(t, l.Reserve(ledger.Position{Symbol: "MSFT", Quantity: 5, EntryPrice: 400}))
	assert.True(t, m.CheckAndUpdate(10000), "reservations count: 5000 of 5000")
	assert.True(t, m.IsTradingHalted())

	require.NoError(t, l.Rollback("MSFT"))
	assert.False(t, m.CheckAndUpdate(10000))
	assert.False(t, m.IsTradingHalted())
}

func TestHaltsWithoutAccountValue(t *testing.T) {
	m := NewManager(ledger.New(), 0.8)
	assert.True(t, m.CheckAndUpdate(0))
	assert.False(t, m.CheckAndUpdate(1000))
}
