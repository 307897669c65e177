package orderbook

import (
	"fmt"

	"ob-sync/internal/dtos"

	"github.com/shopspring/decimal"
)

// SnapshotLevel is one baseline entry. OrderID is empty for aggregated snapshots.
type SnapshotLevel struct {
	Price   decimal.Decimal
	Size    decimal.Decimal
	OrderID string
}

type Snapshot struct {
	Sequence int64
	Bids     []SnapshotLevel
	Asks     []SnapshotLevel
}

// ParseSnapshot decodes the REST response; any non-numeric entry is ErrInvalidSnapshot.
func ParseSnapshot(raw *dtos.Snapshot) (Snapshot, error) {
	if raw == nil {
		return Snapshot{}, fmt.Errorf("%w: empty response", ErrInvalidSnapshot)
	}

	bids, err := parseLevels(Bid, raw.Bids)
	if err != nil {
		return Snapshot{}, err
	}

	asks, err := parseLevels(Ask, raw.Asks)
	if err != nil {
		return Snapshot{}, err
	}

	return Snapshot{Sequence: raw.Sequence, Bids: bids, Asks: asks}, nil
}

func parseLevels(side Side, entries [][]string) ([]SnapshotLevel, error) {
	levels := make([]SnapshotLevel, 0, len(entries))

	for i, entry := range entries {
		if len(entry) < 2 {
			return nil, fmt.Errorf("%w: %s entry %d has %d fields", ErrInvalidSnapshot, side, i, len(entry))
		}

		price, err := decimal.NewFromString(entry[0])
		if err != nil {
			return nil, fmt.Errorf("%w: %s entry %d price %q", ErrInvalidSnapshot, side, i, entry[0])
		}

		size, err := decimal.NewFromString(entry[1])
		if err != nil {
			return nil, fmt.Errorf("%w: %s entry %d size %q", ErrInvalidSnapshot, side, i, entry[1])
		}

		level := SnapshotLevel{Price: price, Size: size}
		if len(entry) > 2 {
			level.OrderID = entry[2]
		}

		levels = append(levels, level)
	}

	return levels, nil
}
