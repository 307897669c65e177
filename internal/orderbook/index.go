package orderbook

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Index maps order keys to the resting orders they identify. It does not touch
// the ledgers; Book keeps both in step.
type Index struct {
	orders map[OrderKey]Order
}

func NewIndex() *Index {
	return &Index{
		orders: make(map[OrderKey]Order),
	}
}

func (x *Index) Insert(order Order) error {
	if _, ok := x.orders[order.Key]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateOrder, order.Key)
	}

	x.orders[order.Key] = order

	return nil
}

func (x *Index) Remove(key OrderKey) (Order, bool) {
	order, ok := x.orders[key]
	if ok {
		delete(x.orders, key)
	}

	return order, ok
}

// Resize sets a new size on the order and returns the previous one.
func (x *Index) Resize(key OrderKey, size decimal.Decimal) (decimal.Decimal, bool) {
	order, ok := x.orders[key]
	if !ok {
		return decimal.Zero, false
	}

	old := order.Size
	order.Size = size
	x.orders[key] = order

	return old, true
}

func (x *Index) Get(key OrderKey) (Order, bool) {
	order, ok := x.orders[key]

	return order, ok
}

func (x *Index) Len() int {
	return len(x.orders)
}
