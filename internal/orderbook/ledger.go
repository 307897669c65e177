package orderbook

import (
	"iter"

	tree "github.com/emirpasic/gods/trees/redblacktree"
	"github.com/shopspring/decimal"
)

// Ledger holds the aggregate resting size per price for one side of the book.
// The tree is ordered so that its leftmost node is always the best price.
type Ledger struct {
	side   Side
	levels *tree.Tree
}

func NewLedger(side Side) *Ledger {
	comparator := askComparator
	if side == Bid {
		comparator = bidComparator
	}

	return &Ledger{
		side:   side,
		levels: tree.NewWith(comparator),
	}
}

func (l *Ledger) Side() Side {
	return l.side
}

// Upsert adjusts the aggregate at price by delta. A level whose aggregate drops to zero
// or below is removed.
func (l *Ledger) Upsert(price, delta decimal.Decimal) {
	size := delta

	if current, ok := l.levels.Get(price); ok {
		size = current.(decimal.Decimal).Add(delta)
	}

	if !size.IsPositive() {
		l.levels.Remove(price)

		return
	}

	l.levels.Put(price, size)
}

// Size returns the aggregate resting at price.
func (l *Ledger) Size(price decimal.Decimal) (decimal.Decimal, bool) {
	size, ok := l.levels.Get(price)
	if !ok {
		return decimal.Zero, false
	}

	return size.(decimal.Decimal), true
}

// Best returns the maximum bid or minimum ask.
func (l *Ledger) Best() (Level, bool) {
	node := l.levels.Left()
	if node == nil {
		return Level{}, false
	}

	return Level{Price: node.Key.(decimal.Decimal), Size: node.Value.(decimal.Decimal)}, true
}

// Levels walks the side from the best price outwards. Every call starts a fresh traversal.
func (l *Ledger) Levels() iter.Seq2[decimal.Decimal, decimal.Decimal] {
	return func(yield func(decimal.Decimal, decimal.Decimal) bool) {
		it := l.levels.Iterator()
		for it.Next() {
			if !yield(it.Key().(decimal.Decimal), it.Value().(decimal.Decimal)) {
				return
			}
		}
	}
}

// Depth returns up to n levels from the best price; n <= 0 returns the full side.
func (l *Ledger) Depth(n int) []Level {
	capacity := l.levels.Size()
	if n > 0 && n < capacity {
		capacity = n
	}

	levels := make([]Level, 0, capacity)

	for price, size := range l.Levels() {
		if len(levels) == capacity {
			break
		}

		levels = append(levels, Level{Price: price, Size: size})
	}

	return levels
}

func (l *Ledger) Len() int {
	return l.levels.Size()
}

// askComparator to sort asks.
func askComparator(a, b interface{}) int {
	return a.(decimal.Decimal).Cmp(b.(decimal.Decimal))
}

// bidComparator to sort bids.
func bidComparator(a, b interface{}) int {
	return b.(decimal.Decimal).Cmp(a.(decimal.Decimal))
}
