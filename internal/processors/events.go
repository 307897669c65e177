package processors

import (
	"context"
	"errors"

	"ob-sync/internal/dtos"
)

// EventSink receives every lifecycle and data event. Publish is called while the
// instrument is locked, so implementations must not call back into the manager.
type EventSink interface {
	Publish(event dtos.Event)
}

// SnapshotLoader fetches the baseline book of one instrument.
type SnapshotLoader interface {
	FetchSnapshot(ctx context.Context, currency string) (*dtos.Snapshot, error)
}

var (
	// ErrSequenceGap is returned when the stream skipped messages or the snapshot predates it.
	ErrSequenceGap = errors.New("sequence gap")
)

// SnapshotError wraps a failed snapshot fetch.
type SnapshotError struct {
	Err error
}

func (e *SnapshotError) Error() string {
	return "Failed to load orderbook: " + e.Err.Error()
}

func (e *SnapshotError) Unwrap() error {
	return e.Err
}
