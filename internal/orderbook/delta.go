package orderbook

import (
	"fmt"

	"ob-sync/internal/dtos"

	"github.com/shopspring/decimal"
)

type DeltaKind int

const (
	Open DeltaKind = iota + 1
	Change
	Match
	Done
)

const (
	receivedType = "received"
	openType     = "open"
	changeType   = "change"
	matchType    = "match"
	doneType     = "done"
	activateType = "activate"
)

// Delta is a single order mutation. For Change, Size is the new size; for Match it is
// the traded size and Key is the maker.
type Delta struct {
	Kind     DeltaKind
	Key      OrderKey
	Side     Side
	Price    decimal.Decimal
	Size     decimal.Decimal
	Sequence int64
}

// Interprets reports whether the book mutates on this message type.
func Interprets(msgType string) bool {
	switch msgType {
	case openType, changeType, matchType, doneType:
		return true
	}

	return false
}

// ConsumesSequence reports whether the message type advances the feed sequence.
// Heartbeats and other channel frames repeat the last sequence instead.
func ConsumesSequence(msgType string) bool {
	switch msgType {
	case receivedType, openType, changeType, matchType, doneType, activateType:
		return true
	}

	return false
}

// DeltaFromMessage converts a stream message. The boolean is false for message types the
// book does not interpret, and for changes of market orders, which only carry funds and
// never rest on the book.
func DeltaFromMessage(msg *dtos.Message) (Delta, bool, error) {
	if !Interprets(msg.Type) || isFundsChange(msg) {
		return Delta{}, false, nil
	}

	delta := Delta{Sequence: msg.Sequence}

	var err error

	switch msg.Type {
	case openType:
		delta.Kind = Open
		delta.Key, err = requireID(msg.OrderID, "order_id")

		if err == nil {
			delta.Side, err = ParseSide(msg.Side)
		}

		if err == nil {
			delta.Price, err = parseAmount(msg.Price, "price")
		}

		if err == nil {
			size := msg.Size
			if size == "" {
				size = msg.RemainingSize
			}

			delta.Size, err = parseAmount(size, "size")
		}

	case changeType:
		delta.Kind = Change
		delta.Key, err = requireID(msg.OrderID, "order_id")

		if err == nil {
			delta.Size, err = parseAmount(msg.NewSize, "new_size")
		}

	case matchType:
		delta.Kind = Match
		delta.Key, err = requireID(msg.MakerOrderID, "maker_order_id")

		if err == nil {
			delta.Size, err = parseAmount(msg.Size, "size")
		}

	case doneType:
		delta.Kind = Done
		delta.Key, err = requireID(msg.OrderID, "order_id")
	}

	if err != nil {
		return Delta{}, true, fmt.Errorf("%s message: %w", msg.Type, err)
	}

	return delta, true, nil
}

func isFundsChange(msg *dtos.Message) bool {
	return msg.Type == changeType && msg.NewSize == "" && (msg.NewFunds != "" || msg.OldFunds != "")
}

func requireID(id, field string) (OrderKey, error) {
	if id == "" {
		return OrderKey{}, fmt.Errorf("%w: missing %s", ErrInvalidMessage, field)
	}

	return OrderID(id), nil
}

func parseAmount(value, field string) (decimal.Decimal, error) {
	amount, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %s %q: %w", ErrInvalidMessage, field, value, err)
	}

	if amount.IsNegative() {
		return decimal.Zero, fmt.Errorf("%w: negative %s %s", ErrInvalidMessage, field, value)
	}

	return amount, nil
}
