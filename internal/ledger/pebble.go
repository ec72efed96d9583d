package ledger

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/shopspring/decimal"

	"github.com/novaxchange/clobcore/internal/domain"
)

func parseDecimal(s string) (decimal.Decimal, error) { return decimal.NewFromString(s) }

func unixNanoToTime(nano int64) time.Time { return time.Unix(0, nano) }

// tradeWire is the JSON-on-disk shape, keeping decimal fields as
// strings for the same lossless-round-trip reason as PostgresStore.
type tradeWire struct {
	TradeID       string `json:"trade_id"`
	TradingPair   string `json:"trading_pair"`
	Price         string `json:"price"`
	Quantity      string `json:"quantity"`
	BuyerOrderID  string `json:"buyer_order_id"`
	SellerOrderID string `json:"seller_order_id"`
	BuyerUserID   string `json:"buyer_user_id"`
	SellerUserID  string `json:"seller_user_id"`
	BuyerFee      string `json:"buyer_fee"`
	SellerFee     string `json:"seller_fee"`
	MatchType     string `json:"match_type"`
	TimestampUnixNano int64 `json:"timestamp_unix_nano"`
}

// PebbleStore is grounded on uhyunpark-hyperlicked's
// pkg/storage/pebble_store.go: same key-prefix-plus-iterator shape
// (tradeKey/tradePrefix/LoadRecentTrades there), adapted to the
// trading-pair-keyed ledger this system needs instead of a
// symbol-keyed position book.
type PebbleStore struct {
	db *pebble.DB
}

func NewPebbleStore(path string) (*PebbleStore, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, err
	}
	return &PebbleStore{db: db}, nil
}

func (s *PebbleStore) Close() error { return s.db.Close() }

func tradePrefix(pair string) []byte {
	return []byte(fmt.Sprintf("t:%s:", pair))
}

func tradeKey(pair string, unixNano int64, tradeID string) []byte {
	key := tradePrefix(pair)
	var ts [8]byte
	binary.BigEndian.PutUint64(ts[:], uint64(unixNano))
	key = append(key, ts[:]...)
	key = append(key, ':')
	return append(key, []byte(tradeID)...)
}

func keyUpperBound(prefix []byte) []byte {
	upper := make([]byte, len(prefix))
	copy(upper, prefix)
	for i := len(upper) - 1; i >= 0; i-- {
		if upper[i] < 0xff {
			upper[i]++
			return upper[:i+1]
		}
	}
	return nil
}

func (s *PebbleStore) StoreTrade(t *domain.Trade) error {
	key := tradeKey(t.TradingPair, t.Timestamp.UnixNano(), t.TradeID)

	if _, closer, err := s.db.Get(key); err == nil {
		closer.Close()
		return nil // already recorded, idempotent on replay
	}

	wire := tradeWire{
		TradeID:           t.TradeID,
		TradingPair:       t.TradingPair,
		Price:             t.Price.String(),
		Quantity:          t.Quantity.String(),
		BuyerOrderID:      t.BuyerOrderID,
		SellerOrderID:     t.SellerOrderID,
		BuyerUserID:       t.BuyerUserID,
		SellerUserID:      t.SellerUserID,
		BuyerFee:          t.BuyerFee.String(),
		SellerFee:         t.SellerFee.String(),
		MatchType:         string(t.MatchType),
		TimestampUnixNano: t.Timestamp.UnixNano(),
	}
	data, err := json.Marshal(wire)
	if err != nil {
		return err
	}
	return s.db.Set(key, data, pebble.NoSync)
}

func (s *PebbleStore) RecentTrades(pair string, limit int) ([]*domain.Trade, error) {
	if limit <= 0 || limit > recentCap {
		limit = recentCap
	}

	prefix := tradePrefix(pair)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var out []*domain.Trade
	for iter.Last(); iter.Valid() && len(out) < limit; iter.Prev() {
		var wire tradeWire
		if err := json.Unmarshal(iter.Value(), &wire); err != nil {
			continue
		}
		out = append(out, fromWire(wire))
	}
	return out, nil
}

func fromWire(w tradeWire) *domain.Trade {
	price, _ := parseDecimal(w.Price)
	qty, _ := parseDecimal(w.Quantity)
	buyerFee, _ := parseDecimal(w.BuyerFee)
	sellerFee, _ := parseDecimal(w.SellerFee)
	return &domain.Trade{
		TradeID:       w.TradeID,
		TradingPair:   w.TradingPair,
		Price:         price,
		Quantity:      qty,
		BuyerOrderID:  w.BuyerOrderID,
		SellerOrderID: w.SellerOrderID,
		BuyerUserID:   w.BuyerUserID,
		SellerUserID:  w.SellerUserID,
		BuyerFee:      buyerFee,
		SellerFee:     sellerFee,
		Timestamp:     unixNanoToTime(w.TimestampUnixNano),
		MatchType:     domain.MatchType(w.MatchType),
	}
}
