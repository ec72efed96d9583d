package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestOrderFillWeightedAveragePrice(t *testing.T) {
	o := NewOrder("ord_1", "user_1", "BTC-USD", SideBuy, TypeLimit, GTC,
		decimal.NewFromInt(100), decimal.NewFromInt(10), time.Now())

	o.Fill(decimal.NewFromInt(4), decimal.NewFromInt(100), time.Now())
	o.Fill(decimal.NewFromInt(6), decimal.NewFromInt(102), time.Now())

	assert.True(t, o.RemainingQuantity.IsZero())
	assert.Equal(t, StatusFilled, o.Status)

	expected := decimal.NewFromInt(100).Mul(decimal.NewFromInt(4)).
		Add(decimal.NewFromInt(102).Mul(decimal.NewFromInt(6))).
		Div(decimal.NewFromInt(10))
	assert.True(t, expected.Equal(o.AverageFillPrice), "expected %s got %s", expected, o.AverageFillPrice)
}

func TestOrderFillPartial(t *testing.T) {
	o := NewOrder("ord_2", "user_1", "BTC-USD", SideSell, TypeLimit, GTC,
		decimal.NewFromInt(50), decimal.NewFromInt(10), time.Now())

	o.Fill(decimal.NewFromInt(3), decimal.NewFromInt(50), time.Now())

	assert.Equal(t, StatusPartiallyFilled, o.Status)
	assert.True(t, decimal.NewFromInt(7).Equal(o.RemainingQuantity))
}

func TestOrderCrosses(t *testing.T) {
	buy := NewOrder("b", "u", "P", SideBuy, TypeLimit, GTC, decimal.NewFromInt(100), decimal.NewFromInt(1), time.Now())
	assert.True(t, buy.Crosses(decimal.NewFromInt(99)))
	assert.True(t, buy.Crosses(decimal.NewFromInt(100)))
	assert.False(t, buy.Crosses(decimal.NewFromInt(101)))

	sell := NewOrder("s", "u", "P", SideSell, TypeLimit, GTC, decimal.NewFromInt(100), decimal.NewFromInt(1), time.Now())
	assert.True(t, sell.Crosses(decimal.NewFromInt(101)))
	assert.True(t, sell.Crosses(decimal.NewFromInt(100)))
	assert.False(t, sell.Crosses(decimal.NewFromInt(99)))

	market := NewOrder("m", "u", "P", SideBuy, TypeMarket, IOC, decimal.Zero, decimal.NewFromInt(1), time.Now())
	assert.True(t, market.Crosses(decimal.NewFromInt(999999)))
}

func TestSideOpposite(t *testing.T) {
	assert.Equal(t, SideSell, SideBuy.Opposite())
	assert.Equal(t, SideBuy, SideSell.Opposite())
}
