package orderbook

import "errors"

var (
	// ErrInvalidSnapshot is returned for a malformed or crossed baseline.
	ErrInvalidSnapshot = errors.New("invalid snapshot")

	// ErrInvalidMessage is returned when an interpreted stream message lacks a usable field.
	ErrInvalidMessage = errors.New("invalid message")

	// ErrDuplicateOrder is returned when an open references an order already resting in the book.
	ErrDuplicateOrder = errors.New("duplicate order")

	// ErrUnknownOrder is returned when a change or match references an order not in the book.
	ErrUnknownOrder = errors.New("unknown order")
)
