package gateway

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/novaxchange/clobcore/internal/domain"
)

func validOrderParams() CreateOrderParams {
	return CreateOrderParams{
		TradingPair: "BTC-USD",
		Side:        "buy",
		Type:        "limit",
		TimeInForce: "GTC",
		Price:       decimal.NewNullDecimal(decimal.NewFromInt(100)),
		Quantity:    decimal.NewFromInt(1),
	}
}

func TestRunValidateAcceptsAWellFormedOrder(t *testing.T) {
	errs := new(Errors)
	runValidate(validOrderParams(), errs)
	assert.Equal(t, 0, errs.Size())
}

func TestRunValidateRejectsUnknownSide(t *testing.T) {
	p := validOrderParams()
	p.Side = "sideways"

	errs := new(Errors)
	runValidate(p, errs)
	require.Greater(t, errs.Size(), 0)
}

func TestRunValidateRejectsNonPositivePrice(t *testing.T) {
	p := validOrderParams()
	p.Price = decimal.NewNullDecimal(decimal.NewFromInt(-5))

	errs := new(Errors)
	runValidate(p, errs)
	require.Greater(t, errs.Size(), 0)
}

func TestRunValidateRejectsNonPositiveQuantity(t *testing.T) {
	p := validOrderParams()
	p.Quantity = decimal.Zero

	errs := new(Errors)
	runValidate(p, errs)
	require.Greater(t, errs.Size(), 0)
}

func TestRunValidateAllowsAbsentPriceForMarketOrders(t *testing.T) {
	p := validOrderParams()
	p.Type = "market"
	p.TimeInForce = "IOC"
	p.Price = decimal.NullDecimal{Valid: false}

	errs := new(Errors)
	runValidate(p, errs)
	assert.Equal(t, 0, errs.Size())
}

func TestTimeInForceDefaultsByOrderType(t *testing.T) {
	limit := validOrderParams()
	limit.TimeInForce = ""
	assert.Equal(t, domain.GTC, limit.timeInForce())

	market := validOrderParams()
	market.Type = "market"
	market.TimeInForce = ""
	assert.Equal(t, domain.IOC, market.timeInForce())

	explicit := validOrderParams()
	explicit.TimeInForce = "FOK"
	assert.Equal(t, domain.FOK, explicit.timeInForce())
}

func TestSideAndOrderTypeMapping(t *testing.T) {
	p := validOrderParams()
	assert.Equal(t, domain.SideBuy, p.side())

	p.Side = "sell"
	assert.Equal(t, domain.SideSell, p.side())

	assert.Equal(t, domain.TypeLimit, p.orderType())
	p.Type = "market"
	assert.Equal(t, domain.TypeMarket, p.orderType())
}

func TestPriceFallsBackToZeroWhenAbsent(t *testing.T) {
	p := validOrderParams()
	p.Price = decimal.NullDecimal{Valid: false}
	assert.True(t, p.price().IsZero())
}

func TestToOrderViewOmitsLimitPriceForMarketOrders(t *testing.T) {
	o := domain.NewOrder("ord_1", "user_1", "BTC-USD", domain.SideBuy, domain.TypeMarket, domain.IOC,
		decimal.Zero, decimal.NewFromInt(1), time.Now())

	view := toOrderView(o)
	assert.Empty(t, view.LimitPrice)
	assert.Empty(t, view.AverageFillPrice)
}

func TestToOrderViewIncludesAverageFillPriceOnceFilled(t *testing.T) {
	o := domain.NewOrder("ord_1", "user_1", "BTC-USD", domain.SideBuy, domain.TypeLimit, domain.GTC,
		decimal.NewFromInt(100), decimal.NewFromInt(1), time.Now())
	o.Fill(decimal.NewFromInt(1), decimal.NewFromInt(100), time.Now())

	view := toOrderView(o)
	assert.Equal(t, "100", view.LimitPrice)
	assert.Equal(t, "100", view.AverageFillPrice)
	assert.Equal(t, "filled", view.Status)
}

func TestToTradeViewMapsCoreFields(t *testing.T) {
	trade := &domain.Trade{
		TradeID: "trade_1", Price: decimal.NewFromInt(100), Quantity: decimal.NewFromInt(2),
		BuyerOrderID: "b1", SellerOrderID: "s1",
	}
	view := toTradeView(trade)
	assert.Equal(t, "trade_1", view.TradeID)
	assert.Equal(t, "100", view.Price)
	assert.Equal(t, "2", view.Quantity)
}
