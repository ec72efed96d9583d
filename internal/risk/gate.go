package risk

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/novaxchange/clobcore/config"
	"github.com/novaxchange/clobcore/internal/domain"
)

// CheckResult mirrors spec section 4.4's {ok | warnings | errors}
// shape: Err is set (and admission refused) only for a hard failure;
// Warnings never block admission.
type CheckResult struct {
	Warnings []string
	Err      error
}

func (r CheckResult) OK() bool { return r.Err == nil }

// Gate is the per-user, per-pair risk state and the single place that
// mutates UserPosition, grounded on the lock/settle shape of the
// teacher's Account.UnlockAndSubFunds / PlusFunds call sites in
// workers/engines/trade_executor.go, generalized from an
// account-per-currency model to the position-per-(user,pair) model
// spec section 3 specifies.
type Gate struct {
	mu        sync.Mutex
	cfg       *config.EngineConfig
	positions map[string]*domain.UserPosition // key: userID + "/" + pair
	vipUsers  map[string]bool
}

func NewGate(cfg *config.EngineConfig) *Gate {
	return &Gate{
		cfg:       cfg,
		positions: make(map[string]*domain.UserPosition),
		vipUsers:  make(map[string]bool),
	}
}

func key(userID, pair string) string { return userID + "/" + pair }

// Seed installs (or overwrites) a starting position, used by account
// bootstrap and by replay-from-ledger reconstruction.
func (g *Gate) Seed(pos *domain.UserPosition) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.positions[key(pos.UserID, pos.TradingPair)] = pos
}

func (g *Gate) SetVIP(userID string, vip bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.vipUsers[userID] = vip
}

func (g *Gate) IsVIP(userID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.vipUsers[userID]
}

// FeeRate returns the effective fee rate for a user, applying the VIP
// discount from config key fee_vip_discount (spec section 6).
func (g *Gate) FeeRate(userID string) decimal.Decimal {
	rate := g.cfg.FeeRate
	if g.IsVIP(userID) {
		rate = rate.Mul(g.cfg.FeeVIPDiscount)
	}
	return rate
}

func (g *Gate) position(userID, pair string) *domain.UserPosition {
	k := key(userID, pair)
	pos, ok := g.positions[k]
	if !ok {
		pos = domain.NewUserPosition(userID, pair, decimal.Zero, decimal.Zero)
		g.positions[k] = pos
	}
	return pos
}

// Position returns a copy-free read of the live position; callers must
// not mutate the fields of numeric types by reference (decimal.Decimal
// is a value type, so this is safe as a snapshot read).
func (g *Gate) Position(userID, pair string) domain.UserPosition {
	g.mu.Lock()
	defer g.mu.Unlock()
	return *g.position(userID, pair)
}

// referenceMark and bestOppositePrice are supplied by the caller
// (Engine) since RiskGate has no direct view of the order book; this
// keeps RiskGate testable in isolation from matching.
type MarketView struct {
	ReferenceMark      decimal.Decimal
	HasReferenceMark   bool
	BestOppositePrice  decimal.Decimal
	HasBestOppositePrice bool
}

// ReferenceMarkCacheKey names the shared config.Redis entry a pairWorker
// refreshes after every fill and Check reads when the caller didn't
// supply a fresher mark of its own -- the price-deviation check's
// mark, made visible to any other process consulting the same cache.
func ReferenceMarkCacheKey(pair string) string {
	return "risk:reference_mark:" + pair
}

// referenceMark prefers the caller-supplied mark (fresher, since it
// came straight off the local OrderBook) and falls back to the shared
// Redis cache so a process with no local book state for this pair --
// or a cold start before any local trade has happened -- can still
// enforce the price-deviation band.
func (g *Gate) referenceMark(pair string, mv MarketView) (decimal.Decimal, bool) {
	if mv.HasReferenceMark && mv.ReferenceMark.IsPositive() {
		return mv.ReferenceMark, true
	}
	if config.Redis == nil {
		return decimal.Zero, false
	}
	var mark decimal.Decimal
	if err := config.Redis.GetKey(ReferenceMarkCacheKey(pair), &mark); err != nil || !mark.IsPositive() {
		return decimal.Zero, false
	}
	return mark, true
}

// Check runs the pre-trade gate from spec section 4.4, items 1-7, in
// the order documented there.
func (g *Gate) Check(intent PendingIntent, mv MarketView, now time.Time) CheckResult {
	g.mu.Lock()
	defer g.mu.Unlock()

	limits := g.cfg.LimitsFor(intent.TradingPair)
	pos := g.position(intent.UserID, intent.TradingPair)

	estimatedPrice := intent.LimitPrice
	if intent.Type == domain.TypeMarket {
		if mv.HasBestOppositePrice {
			slip := decimal.NewFromInt(1).Add(limits.SlippageBufferBps.Div(decimal.NewFromInt(10000)))
			estimatedPrice = mv.BestOppositePrice.Mul(slip)
		}
	}
	notional := intent.Quantity.Mul(estimatedPrice)

	// 1. size bounds
	if limits.MaxOrderSize.IsPositive() && notional.GreaterThan(limits.MaxOrderSize) {
		return CheckResult{Err: domain.NewRiskRejection("order notional %s exceeds max_order_size %s", notional, limits.MaxOrderSize)}
	}

	// 2. position size cap -- a buy is the only side that grows a
	// user's net base exposure; a sell only ever reduces it, so it
	// never needs to be checked against this bound.
	if intent.Side == domain.SideBuy && limits.MaxPositionSize.IsPositive() {
		projectedBase := pos.BaseBalance.Add(pos.LockedBase).Add(intent.Quantity)
		if mark, ok := g.referenceMark(intent.TradingPair, mv); ok {
			projectedNotional := projectedBase.Mul(mark)
			if projectedNotional.GreaterThan(limits.MaxPositionSize) {
				return CheckResult{Err: domain.NewRiskRejection("projected position notional %s exceeds max_position_size %s", projectedNotional, limits.MaxPositionSize)}
			}
		}
	}

	var warnings []string

	// 3. price deviation from reference mark, limit orders only
	if intent.Type == domain.TypeLimit {
		if mark, ok := g.referenceMark(intent.TradingPair, mv); ok {
			deviation := intent.LimitPrice.Sub(mark).Abs().Div(mark)
			if limits.MaxPriceDeviation.IsPositive() && deviation.GreaterThan(limits.MaxPriceDeviation) {
				return CheckResult{Err: domain.NewRiskRejection("price deviates %s from mark, exceeds max_price_deviation %s", deviation, limits.MaxPriceDeviation)}
			}
			if limits.MinPriceDeviation.IsPositive() && deviation.LessThan(limits.MinPriceDeviation) {
				warnings = append(warnings, "price deviation is inside min_price_deviation band")
			}
		}
	}

	// 4. open order cap
	if limits.MaxOpenOrders > 0 && pos.OpenOrderCount >= limits.MaxOpenOrders {
		return CheckResult{Err: domain.NewRiskRejection("open order count %d at max_open_orders %d", pos.OpenOrderCount, limits.MaxOpenOrders)}
	}

	// 5. daily volume cap
	if limits.MaxDailyVolume.IsPositive() && pos.DailyVolume.Add(notional).GreaterThan(limits.MaxDailyVolume) {
		return CheckResult{Err: domain.NewRiskRejection("daily volume would exceed max_daily_volume %s", limits.MaxDailyVolume)}
	}

	// 6. balance adequacy
	if intent.Side == domain.SideBuy {
		if pos.QuoteBalance.LessThan(notional) {
			return CheckResult{Err: domain.NewRiskRejection("insufficient quote balance: have %s, need %s", pos.QuoteBalance, notional)}
		}
	} else {
		if pos.BaseBalance.LessThan(intent.Quantity) {
			return CheckResult{Err: domain.NewRiskRejection("insufficient base balance: have %s, need %s", pos.BaseBalance, intent.Quantity)}
		}
	}

	// 7. rate limit
	if !pos.LastOrderTime.IsZero() {
		since := now.Sub(pos.LastOrderTime)
		if since < g.cfg.MinOrderInterval() {
			return CheckResult{Err: domain.NewRiskRejection("order rate limited: %s since last order, min interval %s", since, g.cfg.MinOrderInterval())}
		}
		if since < g.cfg.WarnOrderInterval() {
			warnings = append(warnings, "order interval below warning threshold")
		}
	}

	return CheckResult{Warnings: warnings}
}

// PendingIntent is the subset of an order intent RiskGate needs to
// evaluate Check/Lock, decoupled from matching.OrderIntent so this
// package has no import-cycle dependency on internal/matching.
type PendingIntent struct {
	UserID      string
	TradingPair string
	Side        domain.Side
	Type        domain.OrderType
	LimitPrice  decimal.Decimal
	Quantity    decimal.Decimal
}

// Lock reserves funds against an accepted order: quantity*price from
// quote_balance for a buy, quantity from base_balance for a sell, and
// bumps open_order_count. Callers must have already run Check.
func (g *Gate) Lock(intent PendingIntent, lockPrice decimal.Decimal) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	pos := g.position(intent.UserID, intent.TradingPair)

	var ok bool
	if intent.Side == domain.SideBuy {
		ok = pos.LockQuote(intent.Quantity.Mul(lockPrice))
	} else {
		ok = pos.LockBase(intent.Quantity)
	}
	if ok {
		pos.OpenOrderCount++
	}
	return ok
}

// Unlock releases a resting order's remaining fund lock, on
// cancellation or on TIF reject-before-execute. It decrements
// open_order_count when the order has reached a terminal state.
func (g *Gate) Unlock(userID, pair string, side domain.Side, remainingQty, lockPrice decimal.Decimal, terminal bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	pos := g.position(userID, pair)
	if side == domain.SideBuy {
		pos.UnlockQuote(remainingQty.Mul(lockPrice))
	} else {
		pos.UnlockBase(remainingQty)
	}
	if terminal && pos.OpenOrderCount > 0 {
		pos.OpenOrderCount--
	}
}

// SettleFill applies one fill's balance movement to both sides, per
// spec section 4.4's "Position update on each fill". buyerLockPrice is
// the price the buy order's own fund lock was taken at (its LimitPrice,
// or the estimated best-opposite price for a market order); when the
// fill executes at a better price than that, SettleBuyFill returns the
// unspent difference to the buyer's spendable balance instead of
// leaving it stranded in LockedQuote.
func (g *Gate) SettleFill(buyerID, sellerID, pair string, qty, price, buyerLockPrice, buyerFee, sellerFee decimal.Decimal, buyerTerminal, sellerTerminal bool, at time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()

	buyer := g.position(buyerID, pair)
	buyer.SettleBuyFill(qty, price, buyerLockPrice, buyerFee, at)
	if buyerTerminal && buyer.OpenOrderCount > 0 {
		buyer.OpenOrderCount--
	}

	seller := g.position(sellerID, pair)
	seller.SettleSellFill(qty, price, sellerFee, at)
	if sellerTerminal && seller.OpenOrderCount > 0 {
		seller.OpenOrderCount--
	}
}
