package engine

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/novaxchange/clobcore/config"
	"github.com/novaxchange/clobcore/internal/domain"
	"github.com/novaxchange/clobcore/internal/events"
)

type fakeStore struct {
	trades []*domain.Trade
	fail   bool
}

func (s *fakeStore) StoreTrade(t *domain.Trade) error {
	if s.fail {
		return assert.AnError
	}
	s.trades = append(s.trades, t)
	return nil
}

func (s *fakeStore) RecentTrades(pair string, limit int) ([]*domain.Trade, error) {
	return s.trades, nil
}

func testPair() *domain.TradingPair {
	return &domain.TradingPair{
		Symbol:            "BTC-USD",
		BaseAsset:         "BTC",
		QuoteAsset:        "USD",
		MinOrderSize:      decimal.NewFromFloat(0.0001),
		MaxOrderSize:      decimal.NewFromInt(1000),
		PricePrecision:    2,
		QuantityPrecision: 8,
		Active:            true,
	}
}

func newTestEngine(t *testing.T) (*Engine, *fakeStore) {
	t.Helper()
	cfg := &config.EngineConfig{
		FeeRate:         decimal.NewFromFloat(0.001),
		FeeVIPDiscount:  decimal.NewFromFloat(0.5),
		SelfTradePolicy: "skip",
		Risk: map[string]config.RiskLimits{
			"BTC-USD": {
				MaxOrderSize:   decimal.NewFromInt(10_000_000),
				MaxDailyVolume: decimal.NewFromInt(100_000_000),
				MaxOpenOrders:  100,
			},
		},
	}
	store := &fakeStore{}
	eng := New(cfg, store, events.NewMemoryPublisher(1000))
	eng.AddPair(testPair())
	return eng, store
}

func TestSubmitRestsGTCLimitOrderWithNoMatch(t *testing.T) {
	eng, _ := newTestEngine(t)
	eng.Gate().Seed(domain.NewUserPosition("alice", "BTC-USD", decimal.Zero, decimal.NewFromInt(100000)))

	result, order, _, err := eng.Submit(SubmitRequest{
		UserID: "alice", TradingPair: "BTC-USD", Side: domain.SideBuy, Type: domain.TypeLimit,
		TimeInForce: domain.GTC, LimitPrice: decimal.NewFromInt(100), Quantity: decimal.NewFromInt(1),
	})

	require.NoError(t, err)
	assert.Empty(t, result.Fills)
	assert.Equal(t, domain.StatusOpen, order.Status)

	pos := eng.Gate().Position("alice", "BTC-USD")
	assert.True(t, pos.LockedQuote.Equal(decimal.NewFromInt(100)))
}

func TestSubmitMatchesRestingOrderAndSettles(t *testing.T) {
	eng, store := newTestEngine(t)
	eng.Gate().Seed(domain.NewUserPosition("alice", "BTC-USD", decimal.Zero, decimal.NewFromInt(100000)))
	eng.Gate().Seed(domain.NewUserPosition("bob", "BTC-USD", decimal.NewFromInt(10), decimal.Zero))

	_, sellOrder, _, err := eng.Submit(SubmitRequest{
		UserID: "bob", TradingPair: "BTC-USD", Side: domain.SideSell, Type: domain.TypeLimit,
		TimeInForce: domain.GTC, LimitPrice: decimal.NewFromInt(100), Quantity: decimal.NewFromInt(1),
	})
	require.NoError(t, err)
	require.Equal(t, domain.StatusOpen, sellOrder.Status)

	result, buyOrder, _, err := eng.Submit(SubmitRequest{
		UserID: "alice", TradingPair: "BTC-USD", Side: domain.SideBuy, Type: domain.TypeLimit,
		TimeInForce: domain.GTC, LimitPrice: decimal.NewFromInt(100), Quantity: decimal.NewFromInt(1),
	})
	require.NoError(t, err)
	require.Len(t, result.Fills, 1)
	assert.Equal(t, domain.StatusFilled, buyOrder.Status)
	assert.Len(t, store.trades, 1)
	assert.Equal(t, sellOrder.OrderID, result.Fills[0].SellerOrderID)

	// a fully filled maker order leaves the book entirely, so it is no
	// longer reachable through LookupOrder.
	_, ok := eng.LookupOrder("BTC-USD", sellOrder.OrderID)
	assert.False(t, ok)
}

func TestSubmitRejectsUnknownPair(t *testing.T) {
	eng, _ := newTestEngine(t)

	_, _, _, err := eng.Submit(SubmitRequest{
		UserID: "alice", TradingPair: "ETH-USD", Side: domain.SideBuy, Type: domain.TypeLimit,
		TimeInForce: domain.GTC, LimitPrice: decimal.NewFromInt(100), Quantity: decimal.NewFromInt(1),
	})
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.KindValidation))
}

func TestCancelUnlocksRemainingFunds(t *testing.T) {
	eng, _ := newTestEngine(t)
	eng.Gate().Seed(domain.NewUserPosition("alice", "BTC-USD", decimal.Zero, decimal.NewFromInt(100000)))

	_, order, _, err := eng.Submit(SubmitRequest{
		UserID: "alice", TradingPair: "BTC-USD", Side: domain.SideBuy, Type: domain.TypeLimit,
		TimeInForce: domain.GTC, LimitPrice: decimal.NewFromInt(100), Quantity: decimal.NewFromInt(2),
	})
	require.NoError(t, err)

	cancelled, ok := eng.Cancel("BTC-USD", order.OrderID)
	require.True(t, ok)
	assert.Equal(t, domain.StatusCancelled, cancelled.Status)

	pos := eng.Gate().Position("alice", "BTC-USD")
	assert.True(t, pos.LockedQuote.IsZero())
	assert.True(t, pos.QuoteBalance.Equal(decimal.NewFromInt(100000)))
}

func TestCancelUnknownOrderReturnsNotFound(t *testing.T) {
	eng, _ := newTestEngine(t)
	_, ok := eng.Cancel("BTC-USD", "nonexistent")
	assert.False(t, ok)
}

func TestSubmitRejectingBookValidationLeavesNoPhantomLock(t *testing.T) {
	eng, _ := newTestEngine(t)
	eng.Gate().Seed(domain.NewUserPosition("alice", "BTC-USD", decimal.Zero, decimal.NewFromInt(100000)))

	// passes RiskGate's notional cap easily but falls under the pair's
	// own MinOrderSize (0.0001), so OrderBook.Validate must reject it.
	_, order, _, err := eng.Submit(SubmitRequest{
		UserID: "alice", TradingPair: "BTC-USD", Side: domain.SideBuy, Type: domain.TypeLimit,
		TimeInForce: domain.GTC, LimitPrice: decimal.NewFromInt(100), Quantity: decimal.NewFromFloat(0.00001),
	})

	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.KindValidation))
	assert.Nil(t, order)

	pos := eng.Gate().Position("alice", "BTC-USD")
	assert.True(t, pos.LockedQuote.IsZero(), "a rejected order must never leave a fund lock behind")
	assert.True(t, pos.QuoteBalance.Equal(decimal.NewFromInt(100000)))
	assert.Equal(t, 0, pos.OpenOrderCount)
}

func TestDegradedPairRefusesNewSubmitsUntilRecovered(t *testing.T) {
	eng, store := newTestEngine(t)
	eng.Gate().Seed(domain.NewUserPosition("alice", "BTC-USD", decimal.Zero, decimal.NewFromInt(100000)))
	eng.Gate().Seed(domain.NewUserPosition("bob", "BTC-USD", decimal.NewFromInt(10), decimal.Zero))

	store.fail = true

	_, sellOrder, _, err := eng.Submit(SubmitRequest{
		UserID: "bob", TradingPair: "BTC-USD", Side: domain.SideSell, Type: domain.TypeLimit,
		TimeInForce: domain.GTC, LimitPrice: decimal.NewFromInt(100), Quantity: decimal.NewFromInt(1),
	})
	require.NoError(t, err)
	require.Equal(t, domain.StatusOpen, sellOrder.Status)

	_, _, _, err = eng.Submit(SubmitRequest{
		UserID: "alice", TradingPair: "BTC-USD", Side: domain.SideBuy, Type: domain.TypeLimit,
		TimeInForce: domain.GTC, LimitPrice: decimal.NewFromInt(100), Quantity: decimal.NewFromInt(1),
	})
	require.Error(t, err, "a ledger that always fails to store must eventually exhaust retries")
	assert.True(t, domain.IsKind(err, domain.KindTransient))

	_, _, _, err = eng.Submit(SubmitRequest{
		UserID: "alice", TradingPair: "BTC-USD", Side: domain.SideBuy, Type: domain.TypeLimit,
		TimeInForce: domain.GTC, LimitPrice: decimal.NewFromInt(100), Quantity: decimal.NewFromInt(1),
	})
	require.Error(t, err, "a degraded pair must refuse further submits without retrying the ledger again")
	assert.True(t, domain.IsKind(err, domain.KindTransient))

	store.fail = false
	require.True(t, eng.RecoverPair("BTC-USD"))

	_, buyOrder, _, err := eng.Submit(SubmitRequest{
		UserID: "alice", TradingPair: "BTC-USD", Side: domain.SideBuy, Type: domain.TypeLimit,
		TimeInForce: domain.GTC, LimitPrice: decimal.NewFromInt(100), Quantity: decimal.NewFromInt(1),
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFilled, buyOrder.Status)
}

func TestSnapshotReflectsRestingOrders(t *testing.T) {
	eng, _ := newTestEngine(t)
	eng.Gate().Seed(domain.NewUserPosition("alice", "BTC-USD", decimal.Zero, decimal.NewFromInt(100000)))

	_, _, _, err := eng.Submit(SubmitRequest{
		UserID: "alice", TradingPair: "BTC-USD", Side: domain.SideBuy, Type: domain.TypeLimit,
		TimeInForce: domain.GTC, LimitPrice: decimal.NewFromInt(100), Quantity: decimal.NewFromInt(1),
	})
	require.NoError(t, err)

	snap, ok := eng.Snapshot("BTC-USD", 10)
	require.True(t, ok)
	require.Len(t, snap.Bids, 1)
	assert.True(t, snap.Bids[0].Price.Equal(decimal.NewFromInt(100)))
}
