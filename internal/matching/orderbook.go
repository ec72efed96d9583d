package matching

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/novaxchange/clobcore/internal/domain"
)

// OrderIntent is the validated ingress shape from spec section 6,
// already carrying an assigned order id -- the Engine assigns
// order_id and sequence_number before calling Submit.
type OrderIntent struct {
	OrderID     string
	UserID      string
	TradingPair string
	Side        domain.Side
	Type        domain.OrderType
	TimeInForce domain.TimeInForce
	LimitPrice  decimal.Decimal
	Quantity    decimal.Decimal

	// LockPrice is the price RiskGate actually reserved funds against --
	// LimitPrice for a limit order, the estimated best-opposite price
	// for a market order. Submit stamps it onto the resulting Order so
	// settlement can true up the fund lock at the price it was taken at
	// rather than at the (possibly better) fill price.
	LockPrice decimal.Decimal
}

// OrderResult is the synchronous response to Submit, per spec section 6.
type OrderResult struct {
	OrderID           string
	Status            domain.Status
	ExecutedQuantity  decimal.Decimal
	RemainingQuantity decimal.Decimal
	AveragePrice      decimal.Decimal
	Fills             []*domain.Trade
	Message           string
}

// OrderbookSnapshot is the aggregated top-N-levels view from spec
// section 6.
type OrderbookSnapshot struct {
	TradingPair string
	Bids        []PriceLevelView
	Asks        []PriceLevelView
	Timestamp   time.Time
}

// MarketStatsView mirrors OrderBook.market_stats from spec section 4.2.
type MarketStatsView struct {
	LastPrice      decimal.Decimal
	BestBid        decimal.Decimal
	BestAsk        decimal.Decimal
	Volume24h      decimal.Decimal
	PriceChange24h decimal.Decimal
}

// OrderBook hosts one pair's resting orders, per spec section 4.2. Only
// the Engine's per-pair writer goroutine calls Submit/Cancel; readers
// of Snapshot/MarketStats may run concurrently and see the state as of
// the last completed step, per the RWMutex discipline in spec section 5.
type OrderBook struct {
	mu     sync.RWMutex
	Pair   *domain.TradingPair
	Bids   *PriceLevelIndex
	Asks   *PriceLevelIndex
	core   *MatchingCore
	market *domain.MarketState

	registry map[string]*domain.Order
}

func NewOrderBook(pair *domain.TradingPair, core *MatchingCore) *OrderBook {
	return &OrderBook{
		Pair:     pair,
		Bids:     NewBidIndex(),
		Asks:     NewAskIndex(),
		core:     core,
		market:   domain.NewMarketState(),
		registry: make(map[string]*domain.Order),
	}
}

func (ob *OrderBook) indexFor(side domain.Side) *PriceLevelIndex {
	if side == domain.SideBuy {
		return ob.Bids
	}
	return ob.Asks
}

func (ob *OrderBook) lookup(orderID string) (*domain.Order, bool) {
	o, ok := ob.registry[orderID]
	return o, ok
}

func (ob *OrderBook) register(o *domain.Order) {
	ob.registry[o.OrderID] = o
}

func (ob *OrderBook) forget(orderID string) {
	delete(ob.registry, orderID)
}

// validate implements the pre-match checks from spec section 4.2 that
// are the OrderBook's own responsibility (balance/rate/price-band
// checks belong to RiskGate and run before Submit is even called).
func (ob *OrderBook) validate(intent OrderIntent) error {
	if !ob.Pair.Active {
		return domain.NewValidationError("trading pair %s is not active", intent.TradingPair)
	}
	if !ob.Pair.QuantityInBounds(intent.Quantity) {
		return domain.NewValidationError("quantity %s outside bounds [%s, %s]", intent.Quantity, ob.Pair.MinOrderSize, ob.Pair.MaxOrderSize)
	}
	if intent.Type == domain.TypeLimit {
		if !intent.LimitPrice.IsPositive() {
			return domain.NewValidationError("limit order requires price > 0")
		}
		if !ob.Pair.PriceCompatible(intent.LimitPrice) {
			return domain.NewValidationError("price %s incompatible with pair precision", intent.LimitPrice)
		}
	}
	return nil
}

// Validate exposes the book-shape checks (pair active, quantity bounds,
// price precision) so a caller can reject an intent before committing
// a RiskGate fund lock against it. Submit runs the same check again
// under its own write lock, so this is a pre-flight, not a substitute.
func (ob *OrderBook) Validate(intent OrderIntent) error {
	ob.mu.RLock()
	defer ob.mu.RUnlock()
	return ob.validate(intent)
}

// Submit is the entry point for an intent that has already passed
// Validate and the RiskGate pre-check. The caller (Engine) has already assigned order_id and
// sequence_number and performed the RiskGate pre-check and fund lock;
// Submit only does book-shape validation and delegates matching.
func (ob *OrderBook) Submit(intent OrderIntent, sequenceNumber uint64, handler FillHandler, now time.Time) (*OrderResult, *domain.Order, error) {
	ob.mu.Lock()
	defer ob.mu.Unlock()

	if err := ob.validate(intent); err != nil {
		return nil, nil, err
	}

	order := domain.NewOrder(intent.OrderID, intent.UserID, intent.TradingPair, intent.Side, intent.Type, intent.TimeInForce, intent.LimitPrice, intent.Quantity, now)
	order.SequenceNumber = sequenceNumber
	order.Status = domain.StatusOpen
	order.LockPrice = intent.LockPrice

	fills, err := ob.core.Run(ob, order, handler, now)

	ob.refreshBestPrices()

	result := &OrderResult{
		OrderID:           order.OrderID,
		Status:            order.Status,
		ExecutedQuantity:  order.FilledQuantity,
		RemainingQuantity: order.RemainingQuantity,
		AveragePrice:      order.AverageFillPrice,
		Fills:             fills,
	}

	if err != nil {
		if domain.IsKind(err, domain.KindUnfulfillable) {
			order.Status = domain.StatusRejected
			result.Status = domain.StatusRejected
			result.Message = err.Error()
			return result, order, err
		}
		return result, order, err
	}

	return result, order, nil
}

// Lookup returns a resting order by id for callers outside the
// matching package, such as the gateway's GET /v1/orders/:pair/:id.
func (ob *OrderBook) Lookup(orderID string) (*domain.Order, bool) {
	ob.mu.RLock()
	defer ob.mu.RUnlock()
	return ob.lookup(orderID)
}

// Cancel removes a resting order. It returns false if the order isn't
// resting (unknown id, already terminal, or already fully matched).
func (ob *OrderBook) Cancel(orderID string) (*domain.Order, bool) {
	ob.mu.Lock()
	defer ob.mu.Unlock()

	order, found := ob.lookup(orderID)
	if !found || order.Status.IsTerminal() {
		return nil, false
	}

	ob.indexFor(order.Side).Remove(order.LimitPrice, order.OrderID, order.RemainingQuantity)
	ob.forget(order.OrderID)
	order.Status = domain.StatusCancelled
	order.UpdatedAt = time.Now()

	ob.refreshBestPrices()

	return order, true
}

func (ob *OrderBook) refreshBestPrices() {
	bestBid, _ := ob.Bids.BestPrice()
	bestAsk, _ := ob.Asks.BestPrice()
	ob.market.SetBestPrices(bestBid, bestAsk)
}

// Snapshot returns the aggregated top-depth levels on both sides.
func (ob *OrderBook) Snapshot(depth int) OrderbookSnapshot {
	ob.mu.RLock()
	defer ob.mu.RUnlock()

	if depth <= 0 {
		depth = 20
	}

	return OrderbookSnapshot{
		TradingPair: ob.Pair.Symbol,
		Bids:        ob.Bids.TopLevels(depth),
		Asks:        ob.Asks.TopLevels(depth),
		Timestamp:   time.Now(),
	}
}

func (ob *OrderBook) MarketStats() MarketStatsView {
	ob.mu.RLock()
	defer ob.mu.RUnlock()

	return MarketStatsView{
		LastPrice:      ob.market.LastTradePrice,
		BestBid:        ob.market.BestBidPrice,
		BestAsk:        ob.market.BestAskPrice,
		Volume24h:      ob.market.Volume24h,
		PriceChange24h: ob.market.PriceChange24h(),
	}
}

// ReferenceMark is the price RiskGate compares limit orders against for
// the price-band check in spec section 4.4: last trade price, or the
// midpoint of best bid and best ask if there has been no trade yet, or
// zero if either side of the book is empty.
func (ob *OrderBook) ReferenceMark() decimal.Decimal {
	ob.mu.RLock()
	defer ob.mu.RUnlock()

	if ob.market.LastTradePrice.IsPositive() {
		return ob.market.LastTradePrice
	}
	if ob.market.BestBidPrice.IsPositive() && ob.market.BestAskPrice.IsPositive() {
		return ob.market.BestBidPrice.Add(ob.market.BestAskPrice).Div(decimal.NewFromInt(2))
	}
	return decimal.Zero
}

// BestOppositePrice estimates fill price for a market order's risk
// check (spec section 4.4, item 5): best ask for a buy, best bid for a
// sell.
func (ob *OrderBook) BestOppositePrice(side domain.Side) (decimal.Decimal, bool) {
	ob.mu.RLock()
	defer ob.mu.RUnlock()

	return ob.indexFor(side.Opposite()).BestPrice()
}
