package events

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/novaxchange/clobcore/internal/domain"
	"github.com/novaxchange/clobcore/internal/matching"
)

func TestSubjectRoutesOrderUpdatesByUser(t *testing.T) {
	o := domain.NewOrder("ord_1", "user_42", "BTC-USD", domain.SideBuy, domain.TypeLimit, domain.GTC,
		decimal.NewFromInt(100), decimal.NewFromInt(1), time.Now())

	subject := NewOrderUpdateEvent(o).Channel().Subject()
	assert.Equal(t, "order-update.user_42", subject)
}

func TestSubjectRoutesTradesByPair(t *testing.T) {
	trade := &domain.Trade{TradingPair: "BTC-USD", Timestamp: time.Now()}

	subject := NewTradeEvent(trade).Channel().Subject()
	assert.Equal(t, "trade.BTC-USD", subject)
}

func TestSubjectRoutesSnapshotsByPair(t *testing.T) {
	snap := matching.OrderbookSnapshot{TradingPair: "ETH-USD", Timestamp: time.Now()}

	subject := NewOrderbookSnapshotEvent(snap).Channel().Subject()
	assert.Equal(t, "orderbook.ETH-USD", subject)
}

func TestMemoryPublisherLogsAndFansOutToSubscribers(t *testing.T) {
	pub := NewMemoryPublisher(2)
	sub := pub.Subscribe(1)

	trade := &domain.Trade{TradingPair: "BTC-USD", Timestamp: time.Now()}
	require.NoError(t, pub.Publish(NewTradeEvent(trade)))

	select {
	case e := <-sub:
		assert.Equal(t, KindTrade, e.Kind)
	default:
		t.Fatal("expected event delivered to subscriber")
	}

	assert.Len(t, pub.Log(), 1)
}

func TestMemoryPublisherLogIsCapacityBounded(t *testing.T) {
	pub := NewMemoryPublisher(2)
	trade := &domain.Trade{TradingPair: "BTC-USD", Timestamp: time.Now()}

	for i := 0; i < 5; i++ {
		require.NoError(t, pub.Publish(NewTradeEvent(trade)))
	}

	assert.Len(t, pub.Log(), 2)
}

func TestMemoryPublisherDropsWhenSubscriberBufferFull(t *testing.T) {
	pub := NewMemoryPublisher(10)
	sub := pub.Subscribe(1)
	trade := &domain.Trade{TradingPair: "BTC-USD", Timestamp: time.Now()}

	require.NoError(t, pub.Publish(NewTradeEvent(trade)))
	require.NoError(t, pub.Publish(NewTradeEvent(trade)), "a full subscriber buffer must not block or error the publisher")

	assert.Len(t, sub, 1)
	assert.Len(t, pub.Log(), 2, "the log itself still keeps both events even though the slow subscriber missed one")
}
