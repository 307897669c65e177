package orderbook

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

type Side int

const (
	Bid Side = iota
	Ask
)

func (s Side) String() string {
	if s == Bid {
		return "bid"
	}

	return "ask"
}

// ParseSide accepts the exchange wording (buy/sell) as well as bid/ask.
func ParseSide(side string) (Side, error) {
	switch side {
	case "buy", "bid":
		return Bid, nil
	case "sell", "ask":
		return Ask, nil
	}

	return Bid, fmt.Errorf("%w: unknown side %q", ErrInvalidMessage, side)
}

// OrderKey identifies an entry of the order index. Real orders carry only the exchange id,
// snapshot price levels without order granularity carry Synthetic with their side and price.
type OrderKey struct {
	ID        string
	Synthetic bool
	Side      Side
	Price     string
}

func OrderID(id string) OrderKey {
	return OrderKey{ID: id}
}

// SyntheticKey is the reserved key standing for the aggregated snapshot size at one price.
// Stream messages only carry real order ids, so such an entry changes through direct
// deltas or the next snapshot, never through the feed.
func SyntheticKey(side Side, price decimal.Decimal) OrderKey {
	return OrderKey{Synthetic: true, Side: side, Price: price.String()}
}

func (k OrderKey) String() string {
	if k.Synthetic {
		return fmt.Sprintf("snapshot(%s@%s)", k.Side, k.Price)
	}

	return k.ID
}

type Order struct {
	Key   OrderKey
	Side  Side
	Price decimal.Decimal
	Size  decimal.Decimal
}

// Level is one aggregated price level, encoded as ["price", "size"].
type Level struct {
	Price decimal.Decimal
	Size  decimal.Decimal
}

func (l Level) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]string{l.Price.String(), l.Size.String()})
}

// State is a point-in-time aggregated view of both sides of a book.
type State struct {
	Asks []Level `json:"asks"`
	Bids []Level `json:"bids"`
}
