package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// MarketState is the per-pair rolling read model surfaced by
// OrderBook.market_stats. It is maintained incrementally as trades
// land rather than recomputed by scanning trade history.
type MarketState struct {
	LastTradePrice  decimal.Decimal
	BestBidPrice    decimal.Decimal
	BestAskPrice    decimal.Decimal
	Volume24h       decimal.Decimal
	openPrice24h    decimal.Decimal
	window          []windowSample
}

type windowSample struct {
	at       time.Time
	quantity decimal.Decimal
	price    decimal.Decimal
}

const rolling24h = 24 * time.Hour

func NewMarketState() *MarketState {
	return &MarketState{
		LastTradePrice: decimal.Zero,
		BestBidPrice:   decimal.Zero,
		BestAskPrice:   decimal.Zero,
		Volume24h:      decimal.Zero,
	}
}

// RecordTrade folds a new trade into the rolling window and evicts
// samples older than 24h, keeping Volume24h and PriceChange24h correct
// without ever rescanning the full trade history.
func (m *MarketState) RecordTrade(price, qty decimal.Decimal, at time.Time) {
	m.LastTradePrice = price
	m.window = append(m.window, windowSample{at: at, quantity: qty, price: price})
	m.evict(at)

	m.Volume24h = decimal.Zero
	for _, s := range m.window {
		m.Volume24h = m.Volume24h.Add(s.quantity.Mul(s.price))
	}
	if len(m.window) > 0 {
		m.openPrice24h = m.window[0].price
	}
}

func (m *MarketState) evict(now time.Time) {
	cutoff := now.Add(-rolling24h)
	i := 0
	for i < len(m.window) && m.window[i].at.Before(cutoff) {
		i++
	}
	m.window = m.window[i:]
}

// PriceChange24h is the fractional change from the oldest trade still
// inside the rolling window to the last trade price.
func (m *MarketState) PriceChange24h() decimal.Decimal {
	if m.openPrice24h.IsZero() {
		return decimal.Zero
	}
	return m.LastTradePrice.Sub(m.openPrice24h).Div(m.openPrice24h)
}

func (m *MarketState) SetBestPrices(bid, ask decimal.Decimal) {
	m.BestBidPrice = bid
	m.BestAskPrice = ask
}
