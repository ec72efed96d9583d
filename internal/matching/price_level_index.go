package matching

import (
	"github.com/emirpasic/gods/trees/redblacktree"
	"github.com/shopspring/decimal"
)

// PriceLevelIndex is one side of one pair's book: an ordered map of
// price to PriceLevel, grounded on the teacher's use of
// emirpasic/gods redblacktree keyed by price in matching/depth.go. The
// ordering relation is fixed at construction: ascending for asks so
// the tree's minimum is the best ask, descending for bids so the
// tree's minimum is the best bid -- best price is always Left().
type PriceLevelIndex struct {
	tree *redblacktree.Tree
}

func ascendingComparator(a, b interface{}) int {
	pa, pb := a.(decimal.Decimal), b.(decimal.Decimal)
	return pa.Cmp(pb)
}

func descendingComparator(a, b interface{}) int {
	return -ascendingComparator(a, b)
}

// NewAskIndex and NewBidIndex fix the ordering relation for their side,
// per the "determined at construction" contract in spec section 4.1.
func NewAskIndex() *PriceLevelIndex {
	return &PriceLevelIndex{tree: redblacktree.NewWith(ascendingComparator)}
}

func NewBidIndex() *PriceLevelIndex {
	return &PriceLevelIndex{tree: redblacktree.NewWith(descendingComparator)}
}

func (idx *PriceLevelIndex) levelAt(price decimal.Decimal) (*PriceLevel, bool) {
	v, found := idx.tree.Get(price)
	if !found {
		return nil, false
	}
	return v.(*PriceLevel), true
}

// Insert appends order_id to the FIFO tail of price's level, creating
// the level if it doesn't exist yet.
func (idx *PriceLevelIndex) Insert(price decimal.Decimal, orderID string, remainingQty decimal.Decimal) {
	level, found := idx.levelAt(price)
	if !found {
		level = newPriceLevel(price)
		idx.tree.Put(price, level)
	}
	level.append(orderID, remainingQty)
}

// Remove decrements the level at price by qty and deletes the order
// from its FIFO; an emptied level is deleted from the tree.
func (idx *PriceLevelIndex) Remove(price decimal.Decimal, orderID string, remainingQty decimal.Decimal) {
	level, found := idx.levelAt(price)
	if !found {
		return
	}
	level.remove(orderID, remainingQty)
	if level.Empty() {
		idx.tree.Remove(price)
	}
}

// UpdateRemaining reflects a partial fill of a still-resting order.
func (idx *PriceLevelIndex) UpdateRemaining(price decimal.Decimal, orderID string, newRemaining decimal.Decimal) {
	if level, found := idx.levelAt(price); found {
		level.setRemaining(orderID, newRemaining)
	}
}

// BestPrice returns the best price on this side, or false if the side
// is empty.
func (idx *PriceLevelIndex) BestPrice() (decimal.Decimal, bool) {
	node := idx.tree.Left()
	if node == nil {
		return decimal.Zero, false
	}
	return node.Key.(decimal.Decimal), true
}

// BestLevel returns the PriceLevel at the best price, or false if the
// side is empty.
func (idx *PriceLevelIndex) BestLevel() (*PriceLevel, bool) {
	node := idx.tree.Left()
	if node == nil {
		return nil, false
	}
	return node.Value.(*PriceLevel), true
}

// HeadOrder returns the front-of-queue order id at price, for matching.
func (idx *PriceLevelIndex) HeadOrder(price decimal.Decimal) (string, bool) {
	level, found := idx.levelAt(price)
	if !found {
		return "", false
	}
	return level.head()
}

// NextAfter returns the order id following orderID in the FIFO at
// price, used to skip a self-trade candidate without consuming it.
func (idx *PriceLevelIndex) NextAfter(price decimal.Decimal, orderID string) (string, bool) {
	level, found := idx.levelAt(price)
	if !found {
		return "", false
	}
	return level.next(orderID)
}

// BestLevelExcluding walks price order and returns the first level
// whose price is not in exclude. Used by the self-trade-skip match
// loop to advance past a level that turned out to be entirely the
// incoming user's own resting liquidity, per spec section 4.3.
func (idx *PriceLevelIndex) BestLevelExcluding(exclude map[string]bool) (*PriceLevel, bool) {
	it := idx.tree.Iterator()
	for it.Next() {
		level := it.Value().(*PriceLevel)
		if !exclude[level.Price.String()] {
			return level, true
		}
	}
	return nil, false
}

// TopLevels returns up to n best levels, aggregated, for snapshots.
func (idx *PriceLevelIndex) TopLevels(n int) []PriceLevelView {
	out := make([]PriceLevelView, 0, n)
	it := idx.tree.Iterator()
	for it.Next() && len(out) < n {
		level := it.Value().(*PriceLevel)
		out = append(out, PriceLevelView{
			Price:      level.Price,
			Quantity:   level.TotalQty,
			OrderCount: level.OrderCount(),
		})
	}
	return out
}

// QuantityAtOrBetter sums resting quantity at prices at least as good
// as limit for this side: <= limit walking an ask index, >= limit
// walking a bid index. Because both indices are ordered "best first"
// (Left() is best), this is just a prefix sum bounded by the crossing
// test, which the caller supplies via the isAcceptable predicate.
func (idx *PriceLevelIndex) QuantityAtOrBetter(isAcceptable func(price decimal.Decimal) bool) decimal.Decimal {
	total := decimal.Zero
	it := idx.tree.Iterator()
	for it.Next() {
		level := it.Value().(*PriceLevel)
		if !isAcceptable(level.Price) {
			break
		}
		total = total.Add(level.TotalQty)
	}
	return total
}

func (idx *PriceLevelIndex) Empty() bool {
	return idx.tree.Size() == 0
}

// PriceLevelView is the read-only snapshot shape from spec section 6.
type PriceLevelView struct {
	Price      decimal.Decimal
	Quantity   decimal.Decimal
	OrderCount int
}
