package orderbook

import "fmt"

// Book is the replicated order book of one instrument: a ledger per side plus the order
// index the stream messages refer to. It is not safe for concurrent use; the owning
// processor serialises access.
type Book struct {
	instrument string
	bids       *Ledger
	asks       *Ledger
	orders     *Index
	sequence   int64
}

func NewBook(instrument string) *Book {
	return &Book{
		instrument: instrument,
		bids:       NewLedger(Bid),
		asks:       NewLedger(Ask),
		orders:     NewIndex(),
	}
}

// Sequence is the sequence of the last snapshot or message applied, zero if the feed has none.
func (b *Book) Sequence() int64 {
	return b.sequence
}

func (b *Book) OrderCount() int {
	return b.orders.Len()
}

func (b *Book) Best(side Side) (Level, bool) {
	return b.ledger(side).Best()
}

// State copies both sides, best price first.
func (b *Book) State() State {
	return State{
		Asks: b.asks.Depth(0),
		Bids: b.bids.Depth(0),
	}
}

// Reset empties the book.
func (b *Book) Reset() {
	b.bids = NewLedger(Bid)
	b.asks = NewLedger(Ask)
	b.orders = NewIndex()
	b.sequence = 0
}

// ApplySnapshot replaces the whole book. The new state is built aside and only swapped in
// once it is known to be valid; a rejected snapshot leaves the book empty.
func (b *Book) ApplySnapshot(snapshot Snapshot) error {
	bids, asks, orders := NewLedger(Bid), NewLedger(Ask), NewIndex()

	err := loadSide(bids, orders, snapshot.Bids)
	if err == nil {
		err = loadSide(asks, orders, snapshot.Asks)
	}

	if err == nil {
		bestBid, hasBid := bids.Best()
		bestAsk, hasAsk := asks.Best()

		if hasBid && hasAsk && bestBid.Price.GreaterThanOrEqual(bestAsk.Price) {
			err = fmt.Errorf("%w: crossed %s book, best bid %s >= best ask %s",
				ErrInvalidSnapshot, b.instrument, bestBid.Price, bestAsk.Price)
		}
	}

	if err != nil {
		b.Reset()

		return err
	}

	b.bids, b.asks, b.orders = bids, asks, orders
	b.sequence = snapshot.Sequence

	return nil
}

func loadSide(ledger *Ledger, orders *Index, levels []SnapshotLevel) error {
	side := ledger.Side()

	for _, level := range levels {
		if level.Price.IsNegative() || level.Size.IsNegative() {
			return fmt.Errorf("%w: negative %s level %s x %s", ErrInvalidSnapshot, side, level.Price, level.Size)
		}

		if level.Size.IsZero() {
			continue
		}

		if level.OrderID == "" {
			// repeated aggregated levels at one price fold into the same synthetic entry
			key := SyntheticKey(side, level.Price)
			if existing, ok := orders.Get(key); ok {
				orders.Resize(key, existing.Size.Add(level.Size))
			} else {
				_ = orders.Insert(Order{Key: key, Side: side, Price: level.Price, Size: level.Size})
			}

			ledger.Upsert(level.Price, level.Size)

			continue
		}

		order := Order{Key: OrderID(level.OrderID), Side: side, Price: level.Price, Size: level.Size}
		if err := orders.Insert(order); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidSnapshot, err)
		}

		ledger.Upsert(level.Price, level.Size)
	}

	return nil
}

// ApplyDelta applies one order mutation to the index and the ledger as a pair.
// A match for an absent maker returns ErrUnknownOrder without touching the book;
// a done for an absent order is a no-op.
func (b *Book) ApplyDelta(delta Delta) error {
	if delta.Sequence > 0 {
		b.sequence = delta.Sequence
	}

	switch delta.Kind {
	case Open:
		return b.open(delta)
	case Change:
		return b.change(delta)
	case Match:
		return b.match(delta)
	case Done:
		b.remove(delta.Key)

		return nil
	}

	return fmt.Errorf("%w: unsupported delta kind %d", ErrInvalidMessage, delta.Kind)
}

func (b *Book) open(delta Delta) error {
	if _, ok := b.orders.Get(delta.Key); ok {
		return fmt.Errorf("%w: %s", ErrDuplicateOrder, delta.Key)
	}

	if !delta.Size.IsPositive() {
		return nil
	}

	order := Order{Key: delta.Key, Side: delta.Side, Price: delta.Price, Size: delta.Size}
	if err := b.orders.Insert(order); err != nil {
		return err
	}

	b.ledger(order.Side).Upsert(order.Price, order.Size)

	return nil
}

func (b *Book) change(delta Delta) error {
	order, ok := b.orders.Get(delta.Key)
	if !ok {
		return fmt.Errorf("%w: change for %s", ErrUnknownOrder, delta.Key)
	}

	if !delta.Size.IsPositive() {
		b.remove(delta.Key)

		return nil
	}

	b.orders.Resize(delta.Key, delta.Size)
	b.ledger(order.Side).Upsert(order.Price, delta.Size.Sub(order.Size))

	return nil
}

func (b *Book) match(delta Delta) error {
	order, ok := b.orders.Get(delta.Key)
	if !ok {
		return fmt.Errorf("%w: match against maker %s", ErrUnknownOrder, delta.Key)
	}

	remaining := order.Size.Sub(delta.Size)
	if !remaining.IsPositive() {
		b.remove(delta.Key)

		return nil
	}

	b.orders.Resize(delta.Key, remaining)
	b.ledger(order.Side).Upsert(order.Price, delta.Size.Neg())

	return nil
}

func (b *Book) remove(key OrderKey) {
	order, ok := b.orders.Remove(key)
	if !ok {
		return
	}

	b.ledger(order.Side).Upsert(order.Price, order.Size.Neg())
}

func (b *Book) ledger(side Side) *Ledger {
	if side == Bid {
		return b.bids
	}

	return b.asks
}
