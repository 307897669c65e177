package dtos

import (
	"encoding/json"
)

// Message is one frame of the full channel. Only the fields the book interprets are
// decoded; the raw payload is kept for forwarding.
type Message struct {
	Type          string `json:"type"`
	ProductID     string `json:"product_id"`
	Sequence      int64  `json:"sequence"`
	OrderID       string `json:"order_id"`
	MakerOrderID  string `json:"maker_order_id"`
	TakerOrderID  string `json:"taker_order_id"`
	Side          string `json:"side"`
	Price         string `json:"price"`
	Size          string `json:"size"`
	RemainingSize string `json:"remaining_size"`
	NewSize       string `json:"new_size"`
	NewFunds      string `json:"new_funds"`
	OldFunds      string `json:"old_funds"`
	Reason        string `json:"reason"`
	ErrorMessage  string `json:"message"`

	Raw json.RawMessage `json:"-"`
}

func ParseMessage(raw []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, err
	}

	msg.Raw = append(json.RawMessage(nil), raw...)

	return &msg, nil
}
