package matching

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"github.com/novaxchange/clobcore/internal/domain"
)

// FillHandler is the seam between the pure matching algorithm and the
// TradeExecutor: MatchingCore decides WHICH orders cross and for how
// much, FillHandler is responsible for mutating both Order records,
// settling risk, writing the ledger and staging the event -- the
// atomic per-fill step from spec section 4.5. FillHandler mutates
// taker/maker's FilledQuantity/RemainingQuantity/Status in place;
// MatchingCore reads those fields back to decide whether to keep
// walking. tradeID is assigned once by attemptFill and handed to every
// retry of the same fill unchanged.
type FillHandler interface {
	OnFill(tradeID, pair string, taker, maker *domain.Order, price, qty decimal.Decimal, now time.Time) (*domain.Trade, error)
}

// SelfTradePolicy names the accepted values for config key
// self_trade_policy (spec section 6). This version's default and only
// fully specified behavior is SelfTradeSkip; the others are accepted
// as configuration but degrade to skip, since spec section 4.3 only
// specifies "skip" semantics for this version.
type SelfTradePolicy string

const (
	SelfTradeSkip        SelfTradePolicy = "skip"
	SelfTradeCancelTaker SelfTradePolicy = "cancel_taker"
	SelfTradeCancelMaker SelfTradePolicy = "cancel_maker"
)

// maxFillAttempts is the "small number of times" spec section 7 asks
// the writer step to retry a transient failure before giving up and
// letting the caller mark the pair degraded. Attempts are immediate,
// not backed off, since the writer goroutine already serializes every
// order for this pair and a stalled retry would stall the whole book.
const maxFillAttempts = 3

// MatchingCore implements the matching algorithm of spec section 4.3.
// Match state lives in the OrderBook it is handed; the one exception is
// tradeSeq, since a single MatchingCore is shared by every pair's
// writer goroutine and trade ids must be monotone across the whole
// engine, not just within one pair.
type MatchingCore struct {
	SelfTradePolicy SelfTradePolicy
	tradeSeq        uint64
}

func NewMatchingCore(policy SelfTradePolicy) *MatchingCore {
	if policy == "" {
		policy = SelfTradeSkip
	}
	return &MatchingCore{SelfTradePolicy: policy}
}

// Run walks the opposite side of ob for incoming, producing fills via
// handler, and applies the time-in-force rule for whatever quantity is
// left once the walk stops. It returns the fills produced, in order.
func (m *MatchingCore) Run(ob *OrderBook, incoming *domain.Order, handler FillHandler, now time.Time) ([]*domain.Trade, error) {
	opposite := ob.indexFor(incoming.Side.Opposite())

	if incoming.TimeInForce == domain.FOK {
		if !m.feasibleFOK(ob, opposite, incoming) {
			return nil, domain.NewUnfulfillableTIF("FOK not fully executable")
		}
	}

	if incoming.Type == domain.TypeMarket && opposite.Empty() {
		return nil, domain.NewUnfulfillableTIF("no liquidity")
	}

	fills, err := m.walk(ob, opposite, incoming, handler, now)
	if err != nil {
		return fills, err
	}

	if err := m.applyResidual(ob, incoming, now, len(fills) > 0); err != nil {
		return fills, err
	}

	return fills, nil
}

// walk performs the actual price-time-priority match loop. It never
// rejects a partially-progressed order; TIF and rejection decisions
// belong to Run's caller-visible surface, not to this inner loop.
func (m *MatchingCore) walk(ob *OrderBook, opposite *PriceLevelIndex, incoming *domain.Order, handler FillHandler, now time.Time) ([]*domain.Trade, error) {
	var fills []*domain.Trade
	exhausted := map[string]bool{}

	for incoming.RemainingQuantity.IsPositive() {
		level, found := opposite.BestLevelExcluding(exhausted)
		if !found {
			break
		}

		if incoming.Type == domain.TypeLimit && !incoming.Crosses(level.Price) {
			break
		}

		restingID, ok := m.nextEligibleHead(ob, opposite, level, incoming)
		if !ok {
			// every order at this price is the incoming user's own
			// resting liquidity: leave it in place and continue at the
			// next price level, per spec section 4.3.
			exhausted[level.Price.String()] = true
			continue
		}

		resting, ok := ob.lookup(restingID)
		if !ok {
			opposite.Remove(level.Price, restingID, decimal.Zero)
			continue
		}

		fillQty := decimal.Min(incoming.RemainingQuantity, resting.RemainingQuantity)
		fillPrice := resting.LimitPrice

		trade, err := m.attemptFill(handler, ob.Pair.Symbol, incoming, resting, fillPrice, fillQty, now)
		if err != nil {
			return fills, err
		}
		fills = append(fills, trade)

		if resting.RemainingQuantity.IsZero() {
			opposite.Remove(level.Price, resting.OrderID, fillQty)
			ob.forget(resting.OrderID)
		} else {
			opposite.UpdateRemaining(level.Price, resting.OrderID, resting.RemainingQuantity)
		}

		ob.market.RecordTrade(fillPrice, fillQty, now)
	}

	return fills, nil
}

// attemptFill retries OnFill a small number of times when it fails with
// a transient error, per spec section 7. TradeExecutor.OnFill only
// mutates taker/maker and settles risk after its durable write and
// publish succeed, so a retry after a transient failure re-attempts the
// whole fill from an untouched state rather than double-applying it. A
// ValidationError, InvariantViolation or any other non-transient kind
// is never retried -- it will not succeed a second time.
func (m *MatchingCore) attemptFill(handler FillHandler, pair string, taker, maker *domain.Order, price, qty decimal.Decimal, now time.Time) (*domain.Trade, error) {
	tradeID := m.nextTradeID(now)

	var lastErr error
	for attempt := 1; attempt <= maxFillAttempts; attempt++ {
		trade, err := handler.OnFill(tradeID, pair, taker, maker, price, qty, now)
		if err == nil {
			return trade, nil
		}
		lastErr = err
		if !domain.IsKind(err, domain.KindTransient) {
			return nil, err
		}
	}
	return nil, lastErr
}

// nextTradeID assigns the "trade_<ms-epoch>_<seq>" id spec section 4.5
// specifies, seq being a monotone per-engine counter. It runs once per
// fill attempt group, before the retry loop above, so every retry of
// the same fill is handed the same id and a ledger StoreTrade upsert
// dedupes it instead of recording a second trade for one match.
func (m *MatchingCore) nextTradeID(now time.Time) string {
	seq := atomic.AddUint64(&m.tradeSeq, 1)
	return fmt.Sprintf("trade_%d_%d", now.UnixMilli(), seq)
}

// nextEligibleHead returns the first order id at level that isn't a
// self-trade against incoming, walking the FIFO past same-user resting
// orders without consuming them (spec section 4.3's "skip" policy).
func (m *MatchingCore) nextEligibleHead(ob *OrderBook, opposite *PriceLevelIndex, level *PriceLevel, incoming *domain.Order) (string, bool) {
	id, ok := opposite.HeadOrder(level.Price)
	for ok {
		resting, found := ob.lookup(id)
		if !found || resting.UserID != incoming.UserID || incoming.UserID == "" {
			return id, true
		}
		id, ok = opposite.NextAfter(level.Price, id)
	}
	return "", false
}

// feasibleFOK performs the dry-run walk spec section 4.3 requires
// before any FOK order touches the book: it walks the same
// self-trade-aware path as the real match without mutating anything,
// and answers whether incoming's full remaining quantity would clear.
func (m *MatchingCore) feasibleFOK(ob *OrderBook, opposite *PriceLevelIndex, incoming *domain.Order) bool {
	remaining := incoming.RemainingQuantity

	// cheap upper-bound check first: total resting quantity at
	// acceptable prices (including any of incoming's own orders) can
	// only overstate what's actually fillable, so if even that falls
	// short there is no need to walk order-by-order.
	acceptable := func(price decimal.Decimal) bool { return incoming.Crosses(price) }
	if opposite.QuantityAtOrBetter(acceptable).LessThan(remaining) {
		return false
	}

	visited := map[string]bool{}

	it := opposite.tree.Iterator()
	for it.Next() && remaining.IsPositive() {
		level := it.Value().(*PriceLevel)
		if incoming.Type == domain.TypeLimit && !incoming.Crosses(level.Price) {
			break
		}
		for _, id := range level.OrderIDs() {
			if remaining.IsZero() {
				break
			}
			if visited[id] {
				continue
			}
			visited[id] = true
			resting, ok := ob.lookup(id)
			if !ok || (resting.UserID == incoming.UserID && incoming.UserID != "") {
				continue
			}
			take := decimal.Min(remaining, resting.RemainingQuantity)
			remaining = remaining.Sub(take)
		}
	}

	return remaining.IsZero()
}

// applyResidual implements the post-match-loop time-in-force table
// from spec section 4.3.
func (m *MatchingCore) applyResidual(ob *OrderBook, incoming *domain.Order, now time.Time, matchedAny bool) error {
	executed := incoming.OriginalQuantity.Sub(incoming.RemainingQuantity)

	switch incoming.TimeInForce {
	case domain.GTC:
		if incoming.RemainingQuantity.IsPositive() {
			if incoming.Type != domain.TypeLimit {
				// a market order with GTC semantics never rests; treat
				// leftover as discarded, matching IOC's rule.
				incoming.Status = statusForExecuted(executed, incoming.OriginalQuantity)
				return nil
			}
			ob.indexFor(incoming.Side).Insert(incoming.LimitPrice, incoming.OrderID, incoming.RemainingQuantity)
			ob.register(incoming)
			incoming.Status = statusForExecuted(executed, incoming.OriginalQuantity)
			return nil
		}
		incoming.Status = domain.StatusFilled
		return nil

	case domain.IOC:
		if executed.IsZero() {
			incoming.Status = domain.StatusRejected
			return domain.NewUnfulfillableTIF("IOC executed zero")
		}
		incoming.Status = statusForExecuted(executed, incoming.OriginalQuantity)
		return nil

	case domain.FOK:
		// feasibility was checked before the walk; reaching here with
		// leftover would be an invariant violation, not a TIF outcome.
		if incoming.RemainingQuantity.IsPositive() {
			return domain.NewInvariantViolation("FOK order left with unfilled remainder after feasible walk")
		}
		incoming.Status = domain.StatusFilled
		return nil

	default:
		return domain.NewValidationError("unknown time in force %q", incoming.TimeInForce)
	}
}

func statusForExecuted(executed, original decimal.Decimal) domain.Status {
	if executed.IsZero() {
		return domain.StatusOpen
	}
	if executed.Equal(original) {
		return domain.StatusFilled
	}
	return domain.StatusPartiallyFilled
}
