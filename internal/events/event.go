package events

import (
	"time"

	"github.com/novaxchange/clobcore/internal/domain"
	"github.com/novaxchange/clobcore/internal/matching"
)

// Kind names one of the four members of the Event sum type from spec
// section 9: "dynamic message objects on the event bus -> tagged
// variants".
type Kind string

const (
	KindTrade             Kind = "trade"
	KindOrderUpdate       Kind = "order-update"
	KindOrderbookSnapshot Kind = "orderbook"
	KindOrderbookDelta    Kind = "orderbook-delta"
)

// Event is a closed tagged union: exactly one of the payload fields is
// set, selected by Kind. A single encoder (Publisher implementations)
// serializes it to the bus -- no ad-hoc per-consumer parsing.
type Event struct {
	Kind        Kind
	TradingPair string
	UserID      string // set for order-update, addresses order-update.<user_id>
	At          time.Time

	Trade    *domain.Trade
	Order    *domain.Order
	Snapshot *matching.OrderbookSnapshot
	Delta    *PriceLevelDelta
}

// PriceLevelDelta is a single-level incremental update, grounded on the
// teacher's Depth.PublishIncrement shape, offered alongside full
// snapshots for subscribers that want to avoid re-diffing.
type PriceLevelDelta struct {
	Side     domain.Side
	Price    string
	Quantity string
}

func NewTradeEvent(t *domain.Trade) Event {
	return Event{Kind: KindTrade, TradingPair: t.TradingPair, At: t.Timestamp, Trade: t}
}

func NewOrderUpdateEvent(o *domain.Order) Event {
	return Event{Kind: KindOrderUpdate, TradingPair: o.TradingPair, UserID: o.UserID, At: o.UpdatedAt, Order: o}
}

func NewOrderbookSnapshotEvent(s matching.OrderbookSnapshot) Event {
	return Event{Kind: KindOrderbookSnapshot, TradingPair: s.TradingPair, At: s.Timestamp, Snapshot: &s}
}

// Channel returns the structured (pair, kind) address for this event,
// per spec section 9's "structured channel addresses" redesign flag:
// never a concatenated string parsed back apart by consumers.
type Channel struct {
	Pair string
	Kind Kind
	User string
}

func (e Event) Channel() Channel {
	return Channel{Pair: e.TradingPair, Kind: e.Kind, User: e.UserID}
}

// Subject renders a Channel to the wire-level NATS subject. This is the
// ONE place a string is built from a Channel; nothing downstream
// re-parses it.
func (c Channel) Subject() string {
	switch c.Kind {
	case KindOrderUpdate:
		return "order-update." + c.User
	default:
		return string(c.Kind) + "." + c.Pair
	}
}
