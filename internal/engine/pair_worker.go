package engine

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/novaxchange/clobcore/config"
	"github.com/novaxchange/clobcore/internal/domain"
	"github.com/novaxchange/clobcore/internal/events"
	"github.com/novaxchange/clobcore/internal/matching"
	"github.com/novaxchange/clobcore/internal/risk"
)

// pairWorker is the single writer for one trading pair's OrderBook, per
// spec section 5: exactly one goroutine ever mutates ob, draining a
// buffered inbox in submit order so sequence_number assignment is
// race-free. Grounded on the teacher's per-market matching.Engine
// (one instance per market in workers/engines/matching.go's
// MatchingWorker.Engines map), generalized from a per-market mutex to
// a per-market goroutine and channel.
type pairWorker struct {
	pair      string
	ob        *matching.OrderBook
	gate      *risk.Gate
	executor  matching.FillHandler
	publisher events.Publisher
	seq       uint64

	inbox chan func()
	quit  chan struct{}

	// degraded and quarantined implement spec section 7's recovery
	// policy. Both are only ever read or written from inside a job run
	// off inbox, so the single-writer discipline that protects ob also
	// protects these -- no extra lock needed.
	degraded         bool
	degradedReason   string
	quarantined      bool
	quarantineReason string
}

func newPairWorker(pair string, ob *matching.OrderBook, gate *risk.Gate, executor matching.FillHandler, publisher events.Publisher) *pairWorker {
	w := &pairWorker{
		pair:      pair,
		ob:        ob,
		gate:      gate,
		executor:  executor,
		publisher: publisher,
		inbox:     make(chan func(), 1024),
		quit:      make(chan struct{}),
	}
	go w.run()
	return w
}

func (w *pairWorker) run() {
	for {
		select {
		case job := <-w.inbox:
			job()
		case <-w.quit:
			return
		}
	}
}

func (w *pairWorker) stop() { close(w.quit) }

// pairLogger falls back to logrus's standard logger when config.Logger
// hasn't been initialized by config.NewLoggerService yet -- true of any
// test that builds an Engine directly without booting the full process.
func pairLogger() *logrus.Logger {
	if config.Logger != nil {
		return config.Logger
	}
	return logrus.StandardLogger()
}

// submit runs the whole accept path inside the worker goroutine: risk
// check, fund lock, book submit, event emission. It blocks the caller
// on a reply channel but never blocks the worker loop itself, since
// the reply channel is always buffered by 1.
func (w *pairWorker) submit(intent submitRequest) submitOutcome {
	reply := make(chan submitOutcome, 1)
	w.inbox <- func() {
		reply <- w.doSubmit(intent)
	}
	return <-reply
}

func (w *pairWorker) cancel(orderID string) cancelOutcome {
	reply := make(chan cancelOutcome, 1)
	w.inbox <- func() {
		reply <- w.doCancel(orderID)
	}
	return <-reply
}

type submitRequest struct {
	OrderID     string
	UserID      string
	Side        domain.Side
	Type        domain.OrderType
	TimeInForce domain.TimeInForce
	LimitPrice  decimal.Decimal
	Quantity    decimal.Decimal
	Now         time.Time
}

type submitOutcome struct {
	Result   *matching.OrderResult
	Order    *domain.Order
	Warnings []string
	Err      error
}

type cancelOutcome struct {
	Order *domain.Order
	Found bool
}

func (w *pairWorker) doSubmit(req submitRequest) submitOutcome {
	if err := w.refuseIfUnhealthy(); err != nil {
		return submitOutcome{Err: err}
	}

	intent := matching.OrderIntent{
		OrderID:     req.OrderID,
		UserID:      req.UserID,
		TradingPair: w.pair,
		Side:        req.Side,
		Type:        req.Type,
		TimeInForce: req.TimeInForce,
		LimitPrice:  req.LimitPrice,
		Quantity:    req.Quantity,
	}

	// book-shape validation (pair active, quantity bounds, price
	// precision) must fail before any funds are locked -- a
	// ValidationError produces no state change, per spec section 7. If
	// this ran after gate.Lock instead, an order the book would reject
	// anyway could still leave a permanent phantom lock behind, since a
	// nil *domain.Order out of Submit skips the terminal-status unlock
	// path below.
	if err := w.ob.Validate(intent); err != nil {
		return submitOutcome{Err: err}
	}

	pending := risk.PendingIntent{
		UserID:      req.UserID,
		TradingPair: w.pair,
		Side:        req.Side,
		Type:        req.Type,
		LimitPrice:  req.LimitPrice,
		Quantity:    req.Quantity,
	}

	mv := risk.MarketView{}
	if mark := w.ob.ReferenceMark(); mark.IsPositive() {
		mv.ReferenceMark, mv.HasReferenceMark = mark, true
	}
	if best, ok := w.ob.BestOppositePrice(req.Side); ok {
		mv.BestOppositePrice, mv.HasBestOppositePrice = best, true
	}

	check := w.gate.Check(pending, mv, req.Now)
	if !check.OK() {
		return submitOutcome{Err: check.Err, Warnings: check.Warnings}
	}

	lockPrice := req.LimitPrice
	if req.Type == domain.TypeMarket && mv.HasBestOppositePrice {
		lockPrice = mv.BestOppositePrice
	}
	if !w.gate.Lock(pending, lockPrice) {
		return submitOutcome{Err: domain.NewRiskRejection("fund lock failed after passing checks"), Warnings: check.Warnings}
	}
	intent.LockPrice = lockPrice

	w.seq++
	result, order, err := w.ob.Submit(intent, w.seq, w.executor, req.Now)

	if order == nil {
		// Validate already passed above, so this should be unreachable
		// in practice; unwind the lock fully rather than trust that
		// invariant, since nothing rested or filled.
		w.gate.Unlock(req.UserID, w.pair, req.Side, req.Quantity, lockPrice, true)
		w.noteSubmitFailure(err)
		return submitOutcome{Err: err, Warnings: check.Warnings}
	}

	_, rests := w.ob.Lookup(order.OrderID)
	if result != nil && (err != nil || !rests) {
		// unwind the lock for whatever never rested and never filled: a
		// full/partial cancel-equivalent outcome (rejected, an IOC
		// leftover discarded rather than resting), or a match walk that
		// aborted with an error partway through and never reached the
		// residual-handling step that would otherwise rest it. In the
		// error case order.Status may still read "open" even though the
		// order was never inserted into the book, so err alone -- not
		// just terminality -- must trigger the unlock. A fully filled
		// taker's open_order_count was already decremented by SettleFill
		// on its last fill, so it is not decremented a second time here.
		w.gate.Unlock(req.UserID, w.pair, req.Side, result.RemainingQuantity, lockPrice, order.Status != domain.StatusFilled)
	}

	w.noteSubmitFailure(err)
	w.publishSubmitEvents(order, result)

	return submitOutcome{Result: result, Order: order, Warnings: check.Warnings, Err: err}
}

// refuseIfUnhealthy implements spec section 7's "refuses new intents
// until recovery": a quarantined pair (an invariant violation was seen)
// or a degraded pair (a transient failure survived its retries) both
// stop admitting new Submit calls until an operator clears the flag via
// recover.
func (w *pairWorker) refuseIfUnhealthy() error {
	if w.quarantined {
		return domain.NewInvariantViolation("pair %s is quarantined: %s", w.pair, w.quarantineReason)
	}
	if w.degraded {
		return domain.NewTransientFailure(nil, "pair %s is degraded: %s", w.pair, w.degradedReason)
	}
	return nil
}

// noteSubmitFailure inspects the error a Submit step produced and, for
// the two kinds spec section 7 calls out explicitly, latches the
// pair's health state and logs with full context. A ValidationError or
// RiskRejection is an ordinary, expected outcome and never touches
// health state.
func (w *pairWorker) noteSubmitFailure(err error) {
	if err == nil {
		return
	}
	switch {
	case domain.IsKind(err, domain.KindInvariant):
		w.quarantined = true
		w.quarantineReason = err.Error()
		pairLogger().WithFields(logrus.Fields{"pair": w.pair, "err": err}).
			Error("invariant violation, quarantining pair pending operator intervention")
	case domain.IsKind(err, domain.KindTransient):
		w.degraded = true
		w.degradedReason = err.Error()
		pairLogger().WithFields(logrus.Fields{"pair": w.pair, "err": err}).
			Error("transient failure exhausted retries, marking pair degraded")
	}
}

// recover clears a degraded or quarantined pair after an operator has
// confirmed the underlying condition (a down ledger, a bad deploy) is
// resolved. It runs through the inbox like submit/cancel so it never
// races the flags it clears.
func (w *pairWorker) recover() {
	reply := make(chan struct{}, 1)
	w.inbox <- func() {
		w.degraded, w.degradedReason = false, ""
		w.quarantined, w.quarantineReason = false, ""
		pairLogger().WithFields(logrus.Fields{"pair": w.pair}).Info("pair health cleared by operator")
		reply <- struct{}{}
	}
	<-reply
}

func (w *pairWorker) doCancel(orderID string) cancelOutcome {
	order, found := w.ob.Cancel(orderID)
	if !found {
		return cancelOutcome{Found: false}
	}

	w.gate.Unlock(order.UserID, w.pair, order.Side, order.RemainingQuantity, order.LockPrice, true)

	// snapshot before the cancelled order's own update, matching the
	// step ordering publishSubmitEvents uses for a submit.
	w.publishSnapshot()
	w.publisher.Publish(events.NewOrderUpdateEvent(order))

	return cancelOutcome{Order: order, Found: true}
}

// publishSubmitEvents emits a snapshot first (if the book actually
// moved), then the taker's own order-update event, matching the step
// ordering of the submit path: the book state transition is visible to
// subscribers before the order that caused it reports its own outcome.
// Maker order-updates are published per-fill by TradeExecutor, since a
// resting order is touched at most once per taker walk.
func (w *pairWorker) publishSubmitEvents(order *domain.Order, result *matching.OrderResult) {
	if order == nil {
		return
	}

	_, rests := w.ob.Lookup(order.OrderID)
	if result != nil && (len(result.Fills) > 0 || rests) {
		w.publishSnapshot()
	}
	if result != nil && len(result.Fills) > 0 {
		w.cacheReferenceMark()
	}

	w.publisher.Publish(events.NewOrderUpdateEvent(order))
}

func (w *pairWorker) publishSnapshot() {
	snap := w.ob.Snapshot(20)
	w.publisher.Publish(events.NewOrderbookSnapshotEvent(snap))
}

// cacheReferenceMark refreshes the shared reference-price cache that
// risk.Gate's price-deviation check reads from config.Redis, so a
// deployment running more than one engine process can agree on a
// single mark instead of each computing its own from local book state.
// A nil config.Redis (no cache configured) is a no-op, same as the
// pairLogger fallback above.
func (w *pairWorker) cacheReferenceMark() {
	if config.Redis == nil {
		return
	}
	mark := w.ob.ReferenceMark()
	if !mark.IsPositive() {
		return
	}
	if err := config.Redis.SetKey(risk.ReferenceMarkCacheKey(w.pair), mark, time.Minute); err != nil {
		pairLogger().WithFields(logrus.Fields{"pair": w.pair, "err": err}).
			Warn("failed to refresh shared reference mark cache")
	}
}
