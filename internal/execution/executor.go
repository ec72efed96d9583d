// Package execution implements the atomic per-fill settlement step from
// spec section 4.5: it is the concrete matching.FillHandler that turns
// a matched (taker, maker, price, qty) tuple into mutated orders, a
// settled position, a ledger record and a staged event, or none of the
// above if any sub-step fails.
package execution

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/novaxchange/clobcore/internal/domain"
	"github.com/novaxchange/clobcore/internal/events"
	"github.com/novaxchange/clobcore/internal/ledger"
	"github.com/novaxchange/clobcore/internal/matching"
	"github.com/novaxchange/clobcore/internal/risk"
)

// TradeExecutor is grounded on the teacher's
// workers/engines/trade_executor.go: same responsibility (fee
// calculation, balance settlement, trade persistence, event publish
// per fill), generalized from the teacher's currency-account model to
// the position-per-(user,pair) model and from its channel-string
// publish calls to the structured events.Event/Publisher pair.
type TradeExecutor struct {
	gate      *risk.Gate
	store     ledger.Store
	publisher events.Publisher
}

func NewTradeExecutor(gate *risk.Gate, store ledger.Store, publisher events.Publisher) *TradeExecutor {
	return &TradeExecutor{gate: gate, store: store, publisher: publisher}
}

var _ matching.FillHandler = (*TradeExecutor)(nil)

// OnFill implements matching.FillHandler. taker is the incoming order,
// maker is the resting order matching.MatchingCore chose; taker is
// always the buyer or the seller depending on side, so buyer/seller
// assignment below follows domain.Side rather than taker/maker.
// tradeID is assigned once by MatchingCore.attemptFill before its first
// try and reused verbatim on every retry of this same fill, so OnFill
// never has to choose an id itself.
func (x *TradeExecutor) OnFill(tradeID, pair string, taker, maker *domain.Order, price, qty decimal.Decimal, now time.Time) (*domain.Trade, error) {
	var buyer, seller *domain.Order
	if taker.IsBuy() {
		buyer, seller = taker, maker
	} else {
		buyer, seller = maker, taker
	}

	if buyer.UserID == seller.UserID {
		return nil, domain.NewInvariantViolation("self-trade reached OnFill for user %s", buyer.UserID)
	}
	if qty.IsZero() || qty.IsNegative() {
		return nil, domain.NewInvariantViolation("non-positive fill quantity %s", qty)
	}
	if qty.GreaterThan(buyer.RemainingQuantity) || qty.GreaterThan(seller.RemainingQuantity) {
		return nil, domain.NewInvariantViolation("fill quantity %s exceeds a resting remainder", qty)
	}

	buyerFee := x.gate.FeeRate(buyer.UserID).Mul(qty).Mul(price)
	sellerFee := x.gate.FeeRate(seller.UserID).Mul(qty).Mul(price)

	// classify and build the trade record from pre-fill state, before
	// either order is mutated. Spec section 4.5 requires this whole
	// step roll back if any sub-step fails; rather than undo mutations
	// after the fact, the durable write and its publish run first,
	// against values that don't depend on Order.Fill having run, so a
	// failure here leaves both orders and both positions exactly as
	// the match loop found them -- nothing to roll back.
	buyerWillBeFilled := qty.Equal(buyer.RemainingQuantity)
	sellerWillBeFilled := qty.Equal(seller.RemainingQuantity)

	trade := &domain.Trade{
		TradeID:       tradeID,
		TradingPair:   pair,
		Price:         price,
		Quantity:      qty,
		BuyerOrderID:  buyer.OrderID,
		SellerOrderID: seller.OrderID,
		BuyerUserID:   buyer.UserID,
		SellerUserID:  seller.UserID,
		BuyerFee:      buyerFee,
		SellerFee:     sellerFee,
		Timestamp:     now,
		MatchType:     domain.ClassifyMatch(buyerWillBeFilled, sellerWillBeFilled),
	}

	if err := x.store.StoreTrade(trade); err != nil {
		return nil, domain.NewTransientFailure(err, "persist trade %s", trade.TradeID)
	}
	if err := x.publisher.Publish(events.NewTradeEvent(trade)); err != nil {
		return nil, domain.NewTransientFailure(err, "publish trade %s", trade.TradeID)
	}

	// only now, with the trade durably recorded, do the order and
	// position mutations that a retried attempt must never repeat.
	buyer.Fill(qty, price, now)
	seller.Fill(qty, price, now)

	x.gate.SettleFill(buyer.UserID, seller.UserID, pair, qty, price, buyer.LockPrice, buyerFee, sellerFee,
		buyer.Status.IsTerminal(), seller.Status.IsTerminal(), now)

	// maker's order-update goes out now, since a resting order can be
	// touched at most once per taker walk; taker's own order-update is
	// published once by the caller after the whole walk settles, since
	// it may be touched by several fills in this same step. By this
	// point the trade is already committed and settled, so a failure
	// here is a lagging notification, not an unrolled mutation.
	if err := x.publisher.Publish(events.NewOrderUpdateEvent(maker)); err != nil {
		return nil, domain.NewTransientFailure(err, "publish order update %s", maker.OrderID)
	}

	return trade, nil
}
