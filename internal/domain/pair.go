package domain

import "github.com/shopspring/decimal"

// TradingPair is immutable configuration for one market, loaded once at
// startup (or on admin reload) and never mutated by the matching path.
type TradingPair struct {
	Symbol             string
	BaseAsset          string
	QuoteAsset         string
	MinOrderSize       decimal.Decimal
	MaxOrderSize       decimal.Decimal
	PricePrecision     int32
	QuantityPrecision  int32
	Active             bool
}

// RoundPrice rounds price to the pair's price precision. Rounding
// down for buys and up for sells would be a
// matching-engine policy decision, not a pair-config one, so this just
// rounds to the configured number of decimals.
func (p *TradingPair) RoundPrice(price decimal.Decimal) decimal.Decimal {
	return price.Round(p.PricePrecision)
}

func (p *TradingPair) RoundQuantity(qty decimal.Decimal) decimal.Decimal {
	return qty.Round(p.QuantityPrecision)
}

// PriceCompatible reports whether price is already expressed at the
// pair's configured precision (spec section 4.2 validation).
func (p *TradingPair) PriceCompatible(price decimal.Decimal) bool {
	return price.Equal(p.RoundPrice(price))
}

func (p *TradingPair) QuantityInBounds(qty decimal.Decimal) bool {
	return qty.GreaterThanOrEqual(p.MinOrderSize) && qty.LessThanOrEqual(p.MaxOrderSize)
}
