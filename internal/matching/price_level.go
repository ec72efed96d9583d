package matching

import (
	"container/list"

	"github.com/shopspring/decimal"
)

// restingEntry is one resting order's footprint inside a PriceLevel's
// FIFO queue: just enough to keep the queue and the aggregate total in
// sync without the level needing to reach into the order registry.
type restingEntry struct {
	orderID       string
	remainingQty  decimal.Decimal
}

// PriceLevel is the aggregated view of all resting orders at one price,
// per spec section 3: a FIFO of order ids plus cached totals. Orders
// carry ties in price by insertion order, so the queue itself IS the
// tie-break.
type PriceLevel struct {
	Price        decimal.Decimal
	TotalQty     decimal.Decimal
	orders       *list.List
	byOrderID    map[string]*list.Element
}

func newPriceLevel(price decimal.Decimal) *PriceLevel {
	return &PriceLevel{
		Price:     price,
		TotalQty:  decimal.Zero,
		orders:    list.New(),
		byOrderID: make(map[string]*list.Element),
	}
}

func (l *PriceLevel) append(orderID string, qty decimal.Decimal) {
	el := l.orders.PushBack(&restingEntry{orderID: orderID, remainingQty: qty})
	l.byOrderID[orderID] = el
	l.TotalQty = l.TotalQty.Add(qty)
}

func (l *PriceLevel) remove(orderID string, qty decimal.Decimal) {
	el, ok := l.byOrderID[orderID]
	if !ok {
		return
	}
	l.orders.Remove(el)
	delete(l.byOrderID, orderID)
	l.TotalQty = l.TotalQty.Sub(qty)
	if l.TotalQty.IsNegative() {
		l.TotalQty = decimal.Zero
	}
}

// setRemaining updates the cached remaining quantity of a resting order
// after a partial fill, keeping TotalQty consistent.
func (l *PriceLevel) setRemaining(orderID string, newRemaining decimal.Decimal) {
	el, ok := l.byOrderID[orderID]
	if !ok {
		return
	}
	entry := el.Value.(*restingEntry)
	l.TotalQty = l.TotalQty.Sub(entry.remainingQty).Add(newRemaining)
	entry.remainingQty = newRemaining
}

func (l *PriceLevel) head() (string, bool) {
	front := l.orders.Front()
	if front == nil {
		return "", false
	}
	return front.Value.(*restingEntry).orderID, true
}

// next returns the order id following the given order id in FIFO
// order, used when the head is skipped for self-trade prevention.
func (l *PriceLevel) next(afterOrderID string) (string, bool) {
	el, ok := l.byOrderID[afterOrderID]
	if !ok {
		return "", false
	}
	n := el.Next()
	if n == nil {
		return "", false
	}
	return n.Value.(*restingEntry).orderID, true
}

func (l *PriceLevel) OrderCount() int {
	return l.orders.Len()
}

func (l *PriceLevel) Empty() bool {
	return l.orders.Len() == 0
}

// OrderIDs returns the FIFO order id sequence, oldest first. The real
// match loop advances head-by-head instead; this is for the FOK
// dry-run walk and diagnostics/tests.
func (l *PriceLevel) OrderIDs() []string {
	ids := make([]string, 0, l.orders.Len())
	for e := l.orders.Front(); e != nil; e = e.Next() {
		ids = append(ids, e.Value.(*restingEntry).orderID)
	}
	return ids
}
