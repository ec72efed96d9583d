package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// MatchType records which side(s) of a fill reached the terminal
// filled state as a result of that fill, per spec section 3.
type MatchType string

const (
	MatchFull         MatchType = "full"
	MatchPartialBuyer MatchType = "partial_buyer"
	MatchPartialSeller MatchType = "partial_seller"
	MatchPartialBoth  MatchType = "partial_both"
)

// Trade (a.k.a. Fill) is immutable once emitted and transferred by
// value to the event sink and the ledger.
type Trade struct {
	TradeID       string
	TradingPair   string
	Price         decimal.Decimal
	Quantity      decimal.Decimal
	BuyerOrderID  string
	SellerOrderID string
	BuyerUserID   string
	SellerUserID  string
	BuyerFee      decimal.Decimal
	SellerFee     decimal.Decimal
	Timestamp     time.Time
	MatchType     MatchType
}

// ClassifyMatch names which side(s) remained unfilled after one fill:
// a side that did NOT reach Filled is the "partial" side named in the
// result. If neither side finished, both are still open (partial_both).
func ClassifyMatch(buyerFilled, sellerFilled bool) MatchType {
	switch {
	case buyerFilled && sellerFilled:
		return MatchFull
	case sellerFilled && !buyerFilled:
		return MatchPartialBuyer
	case buyerFilled && !sellerFilled:
		return MatchPartialSeller
	default:
		return MatchPartialBoth
	}
}
