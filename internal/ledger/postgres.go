package ledger

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/novaxchange/clobcore/internal/domain"
)

// tradeRecord is the gorm model backing PostgresStore, named and
// tagged the way the teacher's models/ package tags its gorm structs.
type tradeRecord struct {
	TradeID       string `gorm:"column:trade_id;primaryKey"`
	TradingPair   string `gorm:"column:trading_pair;index"`
	Price         string `gorm:"column:price"`
	Quantity      string `gorm:"column:quantity"`
	BuyerOrderID  string `gorm:"column:buyer_order_id"`
	SellerOrderID string `gorm:"column:seller_order_id"`
	BuyerUserID   string `gorm:"column:buyer_user_id"`
	SellerUserID  string `gorm:"column:seller_user_id"`
	BuyerFee      string `gorm:"column:buyer_fee"`
	SellerFee     string `gorm:"column:seller_fee"`
	MatchType     string `gorm:"column:match_type"`
	Timestamp     time.Time `gorm:"column:timestamp;index"`
}

func (tradeRecord) TableName() string { return "trades" }

// PostgresStore is grounded on the teacher's config.DataBase usage
// throughout models/, adapted from ActiveRecord-style per-model calls
// to a single-purpose ledger writer.
type PostgresStore struct {
	db *gorm.DB
}

func NewPostgresStore(db *gorm.DB) (*PostgresStore, error) {
	if err := db.AutoMigrate(&tradeRecord{}); err != nil {
		return nil, err
	}
	return &PostgresStore{db: db}, nil
}

// StoreTrade upserts on trade_id, matching the idempotent-on-replay
// requirement of the Store interface.
func (s *PostgresStore) StoreTrade(t *domain.Trade) error {
	rec := toRecord(t)
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "trade_id"}},
		DoNothing: true,
	}).Create(&rec).Error
}

func (s *PostgresStore) RecentTrades(pair string, limit int) ([]*domain.Trade, error) {
	if limit <= 0 || limit > recentCap {
		limit = recentCap
	}
	var recs []tradeRecord
	if err := s.db.Where("trading_pair = ?", pair).
		Order("timestamp DESC").
		Limit(limit).
		Find(&recs).Error; err != nil {
		return nil, err
	}
	out := make([]*domain.Trade, 0, len(recs))
	for _, r := range recs {
		out = append(out, fromRecord(r))
	}
	return out, nil
}

func toRecord(t *domain.Trade) tradeRecord {
	return tradeRecord{
		TradeID:       t.TradeID,
		TradingPair:   t.TradingPair,
		Price:         t.Price.String(),
		Quantity:      t.Quantity.String(),
		BuyerOrderID:  t.BuyerOrderID,
		SellerOrderID: t.SellerOrderID,
		BuyerUserID:   t.BuyerUserID,
		SellerUserID:  t.SellerUserID,
		BuyerFee:      t.BuyerFee.String(),
		SellerFee:     t.SellerFee.String(),
		MatchType:     string(t.MatchType),
		Timestamp:     t.Timestamp,
	}
}

func fromRecord(r tradeRecord) *domain.Trade {
	price, _ := decimal.NewFromString(r.Price)
	qty, _ := decimal.NewFromString(r.Quantity)
	buyerFee, _ := decimal.NewFromString(r.BuyerFee)
	sellerFee, _ := decimal.NewFromString(r.SellerFee)
	return &domain.Trade{
		TradeID:       r.TradeID,
		TradingPair:   r.TradingPair,
		Price:         price,
		Quantity:      qty,
		BuyerOrderID:  r.BuyerOrderID,
		SellerOrderID: r.SellerOrderID,
		BuyerUserID:   r.BuyerUserID,
		SellerUserID:  r.SellerUserID,
		BuyerFee:      buyerFee,
		SellerFee:     sellerFee,
		Timestamp:     r.Timestamp,
		MatchType:     domain.MatchType(r.MatchType),
	}
}
