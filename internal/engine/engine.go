// Package engine is the process-level orchestrator: it owns one
// OrderBook and one pairWorker goroutine per trading pair, the shared
// RiskGate, and the ledger/publisher collaborators the executor needs.
// It is the module's counterpart to the teacher's
// workers/engines.MatchingWorker, generalized from a message-queue
// dispatch loop to a direct method-call API the gateway calls
// synchronously.
package engine

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/novaxchange/clobcore/config"
	"github.com/novaxchange/clobcore/internal/domain"
	"github.com/novaxchange/clobcore/internal/events"
	"github.com/novaxchange/clobcore/internal/execution"
	"github.com/novaxchange/clobcore/internal/ledger"
	"github.com/novaxchange/clobcore/internal/matching"
	"github.com/novaxchange/clobcore/internal/risk"
)

// Engine owns the full set of trading pairs and routes each Submit or
// Cancel call to that pair's single-writer worker.
type Engine struct {
	mu      sync.RWMutex
	workers map[string]*pairWorker
	pairs   map[string]*domain.TradingPair

	cfg       *config.EngineConfig
	gate      *risk.Gate
	store     ledger.Store
	publisher events.Publisher
	core      *matching.MatchingCore
}

func New(cfg *config.EngineConfig, store ledger.Store, publisher events.Publisher) *Engine {
	return &Engine{
		workers:   make(map[string]*pairWorker),
		pairs:     make(map[string]*domain.TradingPair),
		cfg:       cfg,
		gate:      risk.NewGate(cfg),
		store:     store,
		publisher: publisher,
		core:      matching.NewMatchingCore(matching.SelfTradePolicy(cfg.SelfTradePolicy)),
	}
}

// AddPair registers a trading pair and starts its writer goroutine.
// Grounded on the teacher's MatchingWorker.InitializeEngine, which
// does the equivalent for a single market.
func (e *Engine) AddPair(pair *domain.TradingPair) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.workers[pair.Symbol]; exists {
		return
	}

	ob := matching.NewOrderBook(pair, e.core)
	executor := execution.NewTradeExecutor(e.gate, e.store, e.publisher)

	e.pairs[pair.Symbol] = pair
	e.workers[pair.Symbol] = newPairWorker(pair.Symbol, ob, e.gate, executor, e.publisher)
}

func (e *Engine) RemovePair(symbol string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if w, ok := e.workers[symbol]; ok {
		w.stop()
		delete(e.workers, symbol)
		delete(e.pairs, symbol)
	}
}

func (e *Engine) worker(symbol string) (*pairWorker, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	w, ok := e.workers[symbol]
	return w, ok
}

// SubmitRequest is the gateway-facing intent shape, still missing the
// order id the engine assigns on acceptance.
type SubmitRequest struct {
	UserID      string
	TradingPair string
	Side        domain.Side
	Type        domain.OrderType
	TimeInForce domain.TimeInForce
	LimitPrice  decimal.Decimal
	Quantity    decimal.Decimal
}

// Submit assigns an order id and routes the request to its pair's
// writer goroutine, blocking until that one order's accept-and-match
// step fully settles, per spec section 6's synchronous Submit
// contract.
func (e *Engine) Submit(req SubmitRequest) (*matching.OrderResult, *domain.Order, []string, error) {
	w, ok := e.worker(req.TradingPair)
	if !ok {
		return nil, nil, nil, domain.NewValidationError("unknown trading pair %s", req.TradingPair)
	}

	outcome := w.submit(submitRequest{
		OrderID:     newOrderID(),
		UserID:      req.UserID,
		Side:        req.Side,
		Type:        req.Type,
		TimeInForce: req.TimeInForce,
		LimitPrice:  req.LimitPrice,
		Quantity:    req.Quantity,
		Now:         time.Now(),
	})

	return outcome.Result, outcome.Order, outcome.Warnings, outcome.Err
}

// Cancel routes a cancel-intent to its pair's writer goroutine.
func (e *Engine) Cancel(pair, orderID string) (*domain.Order, bool) {
	w, ok := e.worker(pair)
	if !ok {
		return nil, false
	}
	outcome := w.cancel(orderID)
	return outcome.Order, outcome.Found
}

// Snapshot and MarketStats are read-only and may run concurrently with
// the pair's writer, per spec section 5: they take OrderBook's RWMutex
// directly rather than going through the writer's inbox.
func (e *Engine) Snapshot(pair string, depth int) (matching.OrderbookSnapshot, bool) {
	e.mu.RLock()
	w, ok := e.workers[pair]
	e.mu.RUnlock()
	if !ok {
		return matching.OrderbookSnapshot{}, false
	}
	return w.ob.Snapshot(depth), true
}

func (e *Engine) MarketStats(pair string) (matching.MarketStatsView, bool) {
	e.mu.RLock()
	w, ok := e.workers[pair]
	e.mu.RUnlock()
	if !ok {
		return matching.MarketStatsView{}, false
	}
	return w.ob.MarketStats(), true
}

// LookupOrder reads a single order's current state directly off its
// pair's OrderBook, bypassing the writer goroutine since Lookup only
// takes the book's read lock.
func (e *Engine) LookupOrder(pair, orderID string) (*domain.Order, bool) {
	e.mu.RLock()
	w, ok := e.workers[pair]
	e.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return w.ob.Lookup(orderID)
}

func (e *Engine) Pair(symbol string) (*domain.TradingPair, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	p, ok := e.pairs[symbol]
	return p, ok
}

func (e *Engine) Gate() *risk.Gate { return e.gate }

// RecoverPair clears a degraded or quarantined pair, per spec section
// 7's "operator intervention required" recovery path. It reports false
// if the pair doesn't exist.
func (e *Engine) RecoverPair(symbol string) bool {
	w, ok := e.worker(symbol)
	if !ok {
		return false
	}
	w.recover()
	return true
}

func newOrderID() string {
	return fmt.Sprintf("ord_%s", uuid.New().String())
}
