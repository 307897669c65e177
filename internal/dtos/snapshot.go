package dtos

// Snapshot is the REST order book response. Each level is [price, size] or, for a
// level-3 book, [price, size, order_id].
type Snapshot struct {
	Sequence int64      `json:"sequence"`
	Bids     [][]string `json:"bids"`
	Asks     [][]string `json:"asks"`
}
