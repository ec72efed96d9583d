package risk

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/novaxchange/clobcore/config"
	"github.com/novaxchange/clobcore/internal/domain"
)

func testConfig() *config.EngineConfig {
	return &config.EngineConfig{
		FeeRate:            decimal.NewFromFloat(0.002),
		FeeVIPDiscount:     decimal.NewFromFloat(0.5),
		SelfTradePolicy:    "skip",
		MinOrderIntervalMS: 100,
		Risk: map[string]config.RiskLimits{
			"BTC-USD": {
				MaxOrderSize:      decimal.NewFromInt(100000),
				MaxDailyVolume:    decimal.NewFromInt(1000000),
				MaxOpenOrders:     5,
				MaxPositionSize:   decimal.NewFromInt(1000),
				MinPriceDeviation: decimal.NewFromFloat(0.01),
				MaxPriceDeviation: decimal.NewFromFloat(0.2),
				SlippageBufferBps: decimal.NewFromInt(50),
			},
		},
	}
}

func fundedIntent(userID string, side domain.Side, price, qty int64) PendingIntent {
	return PendingIntent{
		UserID:      userID,
		TradingPair: "BTC-USD",
		Side:        side,
		Type:        domain.TypeLimit,
		LimitPrice:  decimal.NewFromInt(price),
		Quantity:    decimal.NewFromInt(qty),
	}
}

func TestCheckRejectsWhenNotionalExceedsMaxOrderSize(t *testing.T) {
	g := NewGate(testConfig())
	g.Seed(domain.NewUserPosition("alice", "BTC-USD", decimal.Zero, decimal.NewFromInt(10_000_000)))

	intent := fundedIntent("alice", domain.SideBuy, 100, 2000)
	result := g.Check(intent, MarketView{}, time.Now())

	require.False(t, result.OK())
	assert.True(t, domain.IsKind(result.Err, domain.KindRiskRejection))
}

func TestCheckRejectsPriceFarFromReferenceMark(t *testing.T) {
	g := NewGate(testConfig())
	g.Seed(domain.NewUserPosition("alice", "BTC-USD", decimal.Zero, decimal.NewFromInt(1_000_000)))

	intent := fundedIntent("alice", domain.SideBuy, 200, 1)
	mv := MarketView{ReferenceMark: decimal.NewFromInt(100), HasReferenceMark: true}
	result := g.Check(intent, mv, time.Now())

	require.False(t, result.OK())
	assert.True(t, domain.IsKind(result.Err, domain.KindRiskRejection))
}

func TestCheckWarnsInsideMinDeviationBand(t *testing.T) {
	g := NewGate(testConfig())
	g.Seed(domain.NewUserPosition("alice", "BTC-USD", decimal.Zero, decimal.NewFromInt(1_000_000)))

	intent := fundedIntent("alice", domain.SideBuy, 100, 1)
	mv := MarketView{ReferenceMark: decimal.RequireFromString("100.5"), HasReferenceMark: true}
	result := g.Check(intent, mv, time.Now())

	require.True(t, result.OK())
	assert.NotEmpty(t, result.Warnings)
}

func TestCheckRejectsAtOpenOrderCap(t *testing.T) {
	g := NewGate(testConfig())
	pos := domain.NewUserPosition("alice", "BTC-USD", decimal.Zero, decimal.NewFromInt(1_000_000))
	pos.OpenOrderCount = 5
	g.Seed(pos)

	intent := fundedIntent("alice", domain.SideBuy, 100, 1)
	result := g.Check(intent, MarketView{}, time.Now())

	require.False(t, result.OK())
	assert.True(t, domain.IsKind(result.Err, domain.KindRiskRejection))
}

func TestCheckRejectsInsufficientQuoteBalance(t *testing.T) {
	g := NewGate(testConfig())
	g.Seed(domain.NewUserPosition("alice", "BTC-USD", decimal.Zero, decimal.NewFromInt(50)))

	intent := fundedIntent("alice", domain.SideBuy, 100, 1)
	result := g.Check(intent, MarketView{}, time.Now())

	require.False(t, result.OK())
	assert.True(t, domain.IsKind(result.Err, domain.KindRiskRejection))
}

func TestCheckRejectsInsufficientBaseBalance(t *testing.T) {
	g := NewGate(testConfig())
	g.Seed(domain.NewUserPosition("alice", "BTC-USD", decimal.NewFromInt(1), decimal.Zero))

	intent := fundedIntent("alice", domain.SideSell, 100, 5)
	result := g.Check(intent, MarketView{}, time.Now())

	require.False(t, result.OK())
	assert.True(t, domain.IsKind(result.Err, domain.KindRiskRejection))
}

func TestCheckRejectsWhenPositionSizeCapExceeded(t *testing.T) {
	g := NewGate(testConfig())
	// testConfig's max_position_size is 1000; alice already holds 5 BTC
	// and a mark of 100 puts her existing exposure at 500, so buying 6
	// more at 100 (projected 1100) must be rejected even though the
	// order's own notional (600) is well under max_order_size.
	pos := domain.NewUserPosition("alice", "BTC-USD", decimal.NewFromInt(5), decimal.NewFromInt(1_000_000))
	g.Seed(pos)

	intent := fundedIntent("alice", domain.SideBuy, 100, 6)
	mv := MarketView{ReferenceMark: decimal.NewFromInt(100), HasReferenceMark: true}
	result := g.Check(intent, mv, time.Now())

	require.False(t, result.OK())
	assert.True(t, domain.IsKind(result.Err, domain.KindRiskRejection))
}

func TestCheckAllowsSellRegardlessOfPositionSizeCap(t *testing.T) {
	g := NewGate(testConfig())
	pos := domain.NewUserPosition("alice", "BTC-USD", decimal.NewFromInt(50), decimal.Zero)
	g.Seed(pos)

	intent := fundedIntent("alice", domain.SideSell, 100, 20)
	mv := MarketView{ReferenceMark: decimal.NewFromInt(100), HasReferenceMark: true}
	result := g.Check(intent, mv, time.Now())

	assert.True(t, result.OK(), "selling only reduces base exposure, so it never trips the position size cap")
}

func TestCheckFallsBackToRedisCachedReferenceMarkWhenCallerHasNone(t *testing.T) {
	g := NewGate(testConfig())
	g.Seed(domain.NewUserPosition("alice", "BTC-USD", decimal.Zero, decimal.NewFromInt(1_000_000)))

	// no local MarketView mark supplied; Check must fall back to
	// config.Redis if one is configured. With config.Redis left nil
	// (the default in unit tests), the deviation check must simply be
	// skipped rather than panic or false-reject.
	intent := fundedIntent("alice", domain.SideBuy, 200, 1)
	result := g.Check(intent, MarketView{}, time.Now())

	assert.True(t, result.OK())
}

func TestCheckRateLimitsRepeatOrders(t *testing.T) {
	g := NewGate(testConfig())
	pos := domain.NewUserPosition("alice", "BTC-USD", decimal.Zero, decimal.NewFromInt(1_000_000))
	pos.LastOrderTime = time.Now()
	g.Seed(pos)

	intent := fundedIntent("alice", domain.SideBuy, 100, 1)
	result := g.Check(intent, MarketView{}, time.Now())

	require.False(t, result.OK())
	assert.True(t, domain.IsKind(result.Err, domain.KindRiskRejection))
}

func TestFeeRateAppliesVIPDiscount(t *testing.T) {
	g := NewGate(testConfig())
	base := g.FeeRate("alice")

	g.SetVIP("alice", true)
	discounted := g.FeeRate("alice")

	assert.True(t, discounted.LessThan(base))
	assert.True(t, discounted.Equal(base.Mul(decimal.NewFromFloat(0.5))))
}

func TestLockAndUnlockRoundTripQuoteBalance(t *testing.T) {
	g := NewGate(testConfig())
	g.Seed(domain.NewUserPosition("alice", "BTC-USD", decimal.Zero, decimal.NewFromInt(1000)))

	intent := PendingIntent{UserID: "alice", TradingPair: "BTC-USD", Side: domain.SideBuy, Type: domain.TypeLimit,
		LimitPrice: decimal.NewFromInt(100), Quantity: decimal.NewFromInt(5)}

	ok := g.Lock(intent, decimal.NewFromInt(100))
	require.True(t, ok)

	pos := g.Position("alice", "BTC-USD")
	assert.True(t, pos.LockedQuote.Equal(decimal.NewFromInt(500)))
	assert.Equal(t, 1, pos.OpenOrderCount)

	g.Unlock("alice", "BTC-USD", domain.SideBuy, decimal.NewFromInt(5), decimal.NewFromInt(100), true)

	pos = g.Position("alice", "BTC-USD")
	assert.True(t, pos.LockedQuote.IsZero())
	assert.Equal(t, 0, pos.OpenOrderCount)
}

func TestLockFailsWhenFundsAlreadyCommitted(t *testing.T) {
	g := NewGate(testConfig())
	g.Seed(domain.NewUserPosition("alice", "BTC-USD", decimal.Zero, decimal.NewFromInt(200)))

	intent := PendingIntent{UserID: "alice", TradingPair: "BTC-USD", Side: domain.SideBuy, Type: domain.TypeLimit,
		LimitPrice: decimal.NewFromInt(100), Quantity: decimal.NewFromInt(2)}

	ok := g.Lock(intent, decimal.NewFromInt(100))
	require.True(t, ok)

	ok = g.Lock(intent, decimal.NewFromInt(100))
	assert.False(t, ok, "second lock should fail once the free balance is exhausted")
}

func TestSettleFillMovesBalancesBothWays(t *testing.T) {
	g := NewGate(testConfig())
	g.Seed(domain.NewUserPosition("alice", "BTC-USD", decimal.Zero, decimal.NewFromInt(1000)))
	g.Seed(domain.NewUserPosition("bob", "BTC-USD", decimal.NewFromInt(10), decimal.Zero))

	g.Lock(PendingIntent{UserID: "alice", TradingPair: "BTC-USD", Side: domain.SideBuy, Type: domain.TypeLimit,
		LimitPrice: decimal.NewFromInt(100), Quantity: decimal.NewFromInt(10)}, decimal.NewFromInt(100))
	g.Lock(PendingIntent{UserID: "bob", TradingPair: "BTC-USD", Side: domain.SideSell, Type: domain.TypeLimit,
		LimitPrice: decimal.NewFromInt(100), Quantity: decimal.NewFromInt(10)}, decimal.Zero)

	g.SettleFill("alice", "bob", "BTC-USD", decimal.NewFromInt(10), decimal.NewFromInt(100), decimal.NewFromInt(100),
		decimal.NewFromInt(2), decimal.NewFromInt(2), true, true, time.Now())

	alice := g.Position("alice", "BTC-USD")
	bob := g.Position("bob", "BTC-USD")

	assert.True(t, alice.BaseBalance.Equal(decimal.NewFromInt(10)), "buyer receives the full base quantity; its fee is charged in quote")
	assert.True(t, alice.LockedQuote.IsZero())
	assert.Equal(t, 0, alice.OpenOrderCount)

	assert.True(t, bob.QuoteBalance.Equal(decimal.NewFromInt(1000).Sub(decimal.NewFromInt(2))), "seller receives quote proceeds minus fee")
	assert.True(t, bob.LockedBase.IsZero())
	assert.Equal(t, 0, bob.OpenOrderCount)
}
