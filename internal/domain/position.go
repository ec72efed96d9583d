package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// UserPosition is one user's balances, locks and activity counters for
// one trading pair. All six numeric fields must stay >= 0; RiskGate is
// the only component allowed to mutate a UserPosition.
type UserPosition struct {
	UserID         string
	TradingPair    string
	BaseBalance    decimal.Decimal
	QuoteBalance   decimal.Decimal
	LockedBase     decimal.Decimal
	LockedQuote    decimal.Decimal
	DailyVolume    decimal.Decimal
	OpenOrderCount int
	LastOrderTime  time.Time
}

func NewUserPosition(userID, pair string, baseBalance, quoteBalance decimal.Decimal) *UserPosition {
	return &UserPosition{
		UserID:       userID,
		TradingPair:  pair,
		BaseBalance:  baseBalance,
		QuoteBalance: quoteBalance,
		LockedBase:   decimal.Zero,
		LockedQuote:  decimal.Zero,
		DailyVolume:  decimal.Zero,
	}
}

// LockQuote moves amount from QuoteBalance to LockedQuote for a buy
// order's fund lock. Returns false without mutating state if the
// balance is insufficient.
func (p *UserPosition) LockQuote(amount decimal.Decimal) bool {
	if p.QuoteBalance.LessThan(amount) {
		return false
	}
	p.QuoteBalance = p.QuoteBalance.Sub(amount)
	p.LockedQuote = p.LockedQuote.Add(amount)
	return true
}

// LockBase is the sell-side equivalent of LockQuote.
func (p *UserPosition) LockBase(amount decimal.Decimal) bool {
	if p.BaseBalance.LessThan(amount) {
		return false
	}
	p.BaseBalance = p.BaseBalance.Sub(amount)
	p.LockedBase = p.LockedBase.Add(amount)
	return true
}

// UnlockQuote releases amount of previously locked quote back to the
// spendable balance (cancellation, or leftover after a partial IOC/FOK
// reject-before-execute).
func (p *UserPosition) UnlockQuote(amount decimal.Decimal) {
	amount = decimal.Min(amount, p.LockedQuote)
	p.LockedQuote = p.LockedQuote.Sub(amount)
	p.QuoteBalance = p.QuoteBalance.Add(amount)
}

func (p *UserPosition) UnlockBase(amount decimal.Decimal) {
	amount = decimal.Min(amount, p.LockedBase)
	p.LockedBase = p.LockedBase.Sub(amount)
	p.BaseBalance = p.BaseBalance.Add(amount)
}

// SettleBuyFill is called on the buyer's position for one fill.
// lockPrice is the price this quantity's share of the order's fund
// lock was reserved at; releasing exactly qty*lockPrice from
// LockedQuote (not qty*price, the fill price) and returning whatever
// of that was never spent to QuoteBalance is what keeps a
// price-improved fill (limit above market, filled at the better price)
// from stranding the difference in LockedQuote forever. The buyer's fee
// is denominated in quote and debited from QuoteBalance; BaseBalance
// grows by the full qty.
func (p *UserPosition) SettleBuyFill(qty, price, lockPrice, fee decimal.Decimal, at time.Time) {
	lockedAmount := qty.Mul(lockPrice)
	p.LockedQuote = p.LockedQuote.Sub(lockedAmount)
	if p.LockedQuote.IsNegative() {
		p.LockedQuote = decimal.Zero
	}

	actualCost := qty.Mul(price)
	p.QuoteBalance = p.QuoteBalance.Add(lockedAmount.Sub(actualCost)).Sub(fee)
	p.BaseBalance = p.BaseBalance.Add(qty)
	p.DailyVolume = p.DailyVolume.Add(actualCost)
	p.LastOrderTime = at
}

// SettleSellFill is the mirror for the seller: locked base is consumed,
// quote proceeds (minus fee) are credited.
func (p *UserPosition) SettleSellFill(qty, price, fee decimal.Decimal, at time.Time) {
	p.LockedBase = p.LockedBase.Sub(qty)
	if p.LockedBase.IsNegative() {
		p.LockedBase = decimal.Zero
	}
	notional := qty.Mul(price)
	p.QuoteBalance = p.QuoteBalance.Add(notional).Sub(fee)
	p.DailyVolume = p.DailyVolume.Add(notional)
	p.LastOrderTime = at
}
