// Package ledger persists executed trades for replay and audit, per
// spec section 6. Two implementations are provided: PostgresStore
// (gorm, grounded on the teacher's models/ persistence style) for a
// durable operational deployment, and PebbleStore (an embedded
// key-value engine) for a single-process deployment that needs no
// external database, grounded on the uhyunpark-hyperlicked pack repo's
// pkg/storage/pebble_store.go.
package ledger

import (
	"github.com/novaxchange/clobcore/internal/domain"
)

// Store is the durable sink TradeExecutor writes each fill to. Writes
// must be idempotent on TradeID so a crash-and-replay of the same
// engine step never double-records a trade.
type Store interface {
	StoreTrade(t *domain.Trade) error
	RecentTrades(pair string, limit int) ([]*domain.Trade, error)
}

// recentCap bounds how many trades one RecentTrades call returns per
// pair, per spec section 6. Neither implementation prunes older trades
// from storage.
const recentCap = 1000
