package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side is which side of the book an order rests or takes on.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// OrderType distinguishes limit orders (which carry a price and may
// rest) from market orders (which never carry a price and never rest).
type OrderType string

const (
	TypeLimit  OrderType = "limit"
	TypeMarket OrderType = "market"
)

// TimeInForce controls what happens to an order's unfilled remainder
// once the match loop stops advancing.
type TimeInForce string

const (
	GTC TimeInForce = "GTC"
	IOC TimeInForce = "IOC"
	FOK TimeInForce = "FOK"
)

// Status is the order lifecycle state machine from spec section 4.2.
type Status string

const (
	StatusPending         Status = "pending"
	StatusOpen            Status = "open"
	StatusPartiallyFilled Status = "partially_filled"
	StatusFilled          Status = "filled"
	StatusCancelled       Status = "cancelled"
	StatusRejected        Status = "rejected"
)

// IsTerminal reports whether an order in this status can never be
// mutated or re-inserted into a book again.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusFilled, StatusCancelled, StatusRejected:
		return true
	default:
		return false
	}
}

// Order is mutable while it is owned by an OrderBook. Only the
// OrderBook that holds it may mutate it; everyone else treats it as a
// read-only value obtained by ID.
type Order struct {
	OrderID           string
	UserID            string
	TradingPair       string
	Side              Side
	Type              OrderType
	TimeInForce       TimeInForce
	LimitPrice        decimal.Decimal
	LockPrice         decimal.Decimal
	OriginalQuantity  decimal.Decimal
	FilledQuantity    decimal.Decimal
	RemainingQuantity decimal.Decimal
	AverageFillPrice  decimal.Decimal
	Status            Status
	SequenceNumber    uint64
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// NewOrder constructs an order in the pending state. RemainingQuantity
// starts equal to OriginalQuantity; callers must not mutate the return
// value's identity fields afterwards.
func NewOrder(orderID, userID, pair string, side Side, typ OrderType, tif TimeInForce, price, qty decimal.Decimal, now time.Time) *Order {
	return &Order{
		OrderID:           orderID,
		UserID:            userID,
		TradingPair:       pair,
		Side:              side,
		Type:              typ,
		TimeInForce:       tif,
		LimitPrice:        price,
		OriginalQuantity:  qty,
		FilledQuantity:    decimal.Zero,
		RemainingQuantity: qty,
		AverageFillPrice:  decimal.Zero,
		Status:            StatusPending,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

// Fill records qty executed at price against this order, keeping
// filled+remaining=original and average_fill_price weighted by
// executed quantity, per the invariants in spec section 3.
func (o *Order) Fill(qty, price decimal.Decimal, at time.Time) {
	prevFilled := o.FilledQuantity
	prevNotional := o.AverageFillPrice.Mul(prevFilled)

	o.FilledQuantity = o.FilledQuantity.Add(qty)
	o.RemainingQuantity = o.RemainingQuantity.Sub(qty)
	if o.RemainingQuantity.IsNegative() {
		o.RemainingQuantity = decimal.Zero
	}

	if o.FilledQuantity.IsPositive() {
		o.AverageFillPrice = prevNotional.Add(price.Mul(qty)).Div(o.FilledQuantity)
	}

	o.UpdatedAt = at

	if o.RemainingQuantity.IsZero() {
		o.Status = StatusFilled
	} else {
		o.Status = StatusPartiallyFilled
	}
}

func (o *Order) IsBuy() bool  { return o.Side == SideBuy }
func (o *Order) IsSell() bool { return o.Side == SideSell }

// Crosses reports whether a resting order at restingPrice is marketable
// against this order acting as the incoming (taker) side.
func (o *Order) Crosses(restingPrice decimal.Decimal) bool {
	if o.Type == TypeMarket {
		return true
	}
	if o.IsBuy() {
		return o.LimitPrice.GreaterThanOrEqual(restingPrice)
	}
	return o.LimitPrice.LessThanOrEqual(restingPrice)
}

// Notional is quantity times price, used for risk/fee computations.
func Notional(qty, price decimal.Decimal) decimal.Decimal {
	return qty.Mul(price)
}
