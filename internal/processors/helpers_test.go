package processors

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"ob-sync/internal/dtos"

	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu     sync.Mutex
	events []dtos.Event
}

func (r *recorder) Publish(event dtos.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.events = append(r.events, event)
}

func (r *recorder) all() []dtos.Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]dtos.Event(nil), r.events...)
}

// kinds lists the event kinds seen for one instrument, in publish order.
func (r *recorder) kinds(instrument string) []string {
	var kinds []string

	for _, event := range r.all() {
		if event.Instrument == instrument {
			kinds = append(kinds, event.Kind.String())
		}
	}

	return kinds
}

func (r *recorder) errors(instrument string) []error {
	var errs []error

	for _, event := range r.all() {
		if event.Instrument == instrument && event.Kind == dtos.EventError {
			errs = append(errs, event.Err)
		}
	}

	return errs
}

type snapshotResult struct {
	snapshot *dtos.Snapshot
	err      error
}

type fetchRequest struct {
	currency string
	ctx      context.Context
	reply    chan snapshotResult
}

func (r fetchRequest) respond(snapshot *dtos.Snapshot, err error) {
	r.reply <- snapshotResult{snapshot: snapshot, err: err}
}

// fakeLoader hands every fetch to the test, which answers it explicitly.
type fakeLoader struct {
	requests chan fetchRequest
}

func newFakeLoader() *fakeLoader {
	return &fakeLoader{requests: make(chan fetchRequest, 16)}
}

func (l *fakeLoader) FetchSnapshot(ctx context.Context, currency string) (*dtos.Snapshot, error) {
	req := fetchRequest{currency: currency, ctx: ctx, reply: make(chan snapshotResult, 1)}
	l.requests <- req

	select {
	case res := <-req.reply:
		return res.snapshot, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (l *fakeLoader) next(t *testing.T) fetchRequest {
	t.Helper()

	select {
	case req := <-l.requests:
		return req
	case <-time.After(2 * time.Second):
		t.Fatal("no snapshot fetch started")
	}

	return fetchRequest{}
}

func message(t *testing.T, format string, args ...any) *dtos.Message {
	t.Helper()

	msg, err := dtos.ParseMessage([]byte(fmt.Sprintf(format, args...)))
	require.NoError(t, err)

	return msg
}

func openMsg(t *testing.T, product, id, side, price, size string, seq int64) *dtos.Message {
	return message(t, `{"type":"open","product_id":%q,"order_id":%q,"side":%q,"price":%q,"remaining_size":%q,"sequence":%d}`,
		product, id, side, price, size, seq)
}

func doneMsg(t *testing.T, product, id string, seq int64) *dtos.Message {
	return message(t, `{"type":"done","product_id":%q,"order_id":%q,"reason":"canceled","sequence":%d}`, product, id, seq)
}

func changeMsg(t *testing.T, product, id, size string, seq int64) *dtos.Message {
	return message(t, `{"type":"change","product_id":%q,"order_id":%q,"new_size":%q,"sequence":%d}`, product, id, size, seq)
}

func matchMsg(t *testing.T, product, maker, size string, seq int64) *dtos.Message {
	return message(t, `{"type":"match","product_id":%q,"maker_order_id":%q,"taker_order_id":"t","size":%q,"sequence":%d}`,
		product, maker, size, seq)
}

func emptySnapshot(seq int64) *dtos.Snapshot {
	return &dtos.Snapshot{Sequence: seq, Bids: [][]string{}, Asks: [][]string{}}
}
