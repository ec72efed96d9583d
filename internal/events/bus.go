package events

import (
	"encoding/json"
	"sync"

	"github.com/nats-io/nats.go"

	"github.com/novaxchange/clobcore/config"
)

// Publisher is the event-sink collaborator from spec section 6: a
// subscriber-pull stream from the transport's point of view, and a
// push interface from the engine's point of view -- the engine never
// blocks waiting on a subscriber, per spec section 9's "callbacks on
// subscribe -> subscriber-pull event stream" redesign flag.
type Publisher interface {
	Publish(e Event) error
}

// NATSPublisher publishes to config.Nats, grounded on the teacher's
// config.Nats.Publish call sites in workers/engines/trade_executor.go.
// It always also publishes to the aggregate fan-out subjects
// trades.all / orders.all from spec section 6.
type NATSPublisher struct{}

func NewNATSPublisher() *NATSPublisher { return &NATSPublisher{} }

func (p *NATSPublisher) Publish(e Event) error {
	payload, err := json.Marshal(e.wireForm())
	if err != nil {
		return err
	}

	if err := config.Nats.Publish(e.Channel().Subject(), payload); err != nil {
		return err
	}

	switch e.Kind {
	case KindTrade:
		return config.Nats.Publish("trades.all", payload)
	case KindOrderUpdate:
		return config.Nats.Publish("orders.all", payload)
	}

	return nil
}

// wireForm strips the tagged-union's unset pointer fields down to a
// flat JSON envelope; kept as a method on Event so NATSPublisher and
// MemoryPublisher serialize identically.
func (e Event) wireForm() map[string]interface{} {
	m := map[string]interface{}{
		"kind":         e.Kind,
		"trading_pair": e.TradingPair,
		"at":           e.At,
	}
	if e.UserID != "" {
		m["user_id"] = e.UserID
	}
	if e.Trade != nil {
		m["trade"] = e.Trade
	}
	if e.Order != nil {
		m["order"] = e.Order
	}
	if e.Snapshot != nil {
		m["snapshot"] = e.Snapshot
	}
	if e.Delta != nil {
		m["delta"] = e.Delta
	}
	return m
}

// MemoryPublisher is an in-process ring buffer used by tests and by the
// process when EVENTS_DRIVER=memory, per spec section 9's subscriber-pull
// model: transports Drain(); the engine never calls into a subscriber.
type MemoryPublisher struct {
	mu   sync.Mutex
	subs []chan Event
	log  []Event
	cap  int
}

func NewMemoryPublisher(capacity int) *MemoryPublisher {
	if capacity <= 0 {
		capacity = 10000
	}
	return &MemoryPublisher{cap: capacity}
}

func (p *MemoryPublisher) Publish(e Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.log = append(p.log, e)
	if len(p.log) > p.cap {
		p.log = p.log[len(p.log)-p.cap:]
	}
	for _, ch := range p.subs {
		select {
		case ch <- e:
		default:
			// a slow subscriber drops events rather than blocking the
			// writer step; client liveness is the transport's concern
			// per spec section 5, not the engine's.
		}
	}
	return nil
}

// Subscribe returns a channel of future events. It does not replay the
// log -- callers needing history should read Log() first.
func (p *MemoryPublisher) Subscribe(buffer int) <-chan Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	ch := make(chan Event, buffer)
	p.subs = append(p.subs, ch)
	return ch
}

func (p *MemoryPublisher) Log() []Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Event, len(p.log))
	copy(out, p.log)
	return out
}

var _ *nats.Conn // referenced only through config.Nats; kept to document the dependency this file exercises.
