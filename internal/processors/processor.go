package processors

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"ob-sync/internal/dtos"
	"ob-sync/internal/metrics"
	"ob-sync/internal/orderbook"
	inqueues "ob-sync/internal/queues/in"
)

type Mode int

const (
	Pending Mode = iota
	Synced
)

func (m Mode) String() string {
	if m == Synced {
		return "synced"
	}

	return "pending"
}

type Options struct {
	// MaxPending bounds the messages held while the snapshot is in flight, 0 for no bound.
	MaxPending int
	// CheckSequence drops stale messages and fails on gaps when the feed carries sequences.
	CheckSequence bool
	// AutoResync replaces a pair that failed on a sequence gap with a fresh one.
	AutoResync bool
}

// Status describes a processor for monitoring.
type Status struct {
	Mode     string `json:"mode"`
	Failed   bool   `json:"failed"`
	Pending  int    `json:"pending"`
	Orders   int    `json:"orders"`
	Sequence int64  `json:"sequence"`
}

// Processor keeps the order book of one instrument in sync. Stream messages are queued
// until the snapshot arrives, then replayed on top of it in arrival order; from then on
// they are applied as they come.
type Processor struct {
	EventSink

	mu       sync.Mutex
	currency string
	opts     Options
	mode     Mode
	failed   bool
	stopped  bool
	pending  *inqueues.Queue
	ob       *orderbook.Book
	firstSeq int64
	lastSeq  int64

	parent context.Context
	ctx    context.Context
	cancel context.CancelFunc
}

func NewProcessor(ctx context.Context, currency string, sink EventSink, opts Options) *Processor {
	procCtx, cancel := context.WithCancel(ctx)

	return &Processor{
		EventSink: sink,
		currency:  currency,
		opts:      opts,
		pending:   inqueues.NewQueue(opts.MaxPending),
		ob:        orderbook.NewBook(currency),
		parent:    ctx,
		ctx:       procCtx,
		cancel:    cancel,
	}
}

func (p *Processor) Currency() string {
	return p.currency
}

func (p *Processor) State() orderbook.State {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.ob.State()
}

func (p *Processor) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()

	return Status{
		Mode:     p.mode.String(),
		Failed:   p.failed,
		Pending:  p.pending.Len(),
		Orders:   p.ob.OrderCount(),
		Sequence: p.ob.Sequence(),
	}
}

// Process buffers or applies one stream message. The returned error is the fatal
// error the instrument just failed with, already published.
func (p *Processor) Process(msg *dtos.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stopped || p.failed {
		metrics.MessagesDropped.WithLabelValues("inactive").Inc()

		return nil
	}

	delta, interpreted, err := orderbook.DeltaFromMessage(msg)
	if err != nil {
		return p.fail(err)
	}

	var stale bool
	if orderbook.ConsumesSequence(msg.Type) {
		stale, err = p.trackSequence(msg.Sequence)
		if err != nil {
			return p.fail(err)
		}
	}

	if stale {
		slog.Debug("Discarding stale message", "curr pair", p.currency, "sequence", msg.Sequence, "last sequence", p.lastSeq)
		metrics.MessagesDropped.WithLabelValues("stale").Inc()

		return nil
	}

	if !interpreted {
		p.publishMessage(msg)

		return nil
	}

	if p.mode == Pending {
		if err := p.pending.Push(msg); err != nil {
			return p.fail(fmt.Errorf("%w: %d messages waiting for the snapshot", err, p.pending.Len()))
		}

		metrics.MessagesQueued.WithLabelValues(p.currency).Inc()
		metrics.PendingMessages.WithLabelValues(p.currency).Set(float64(p.pending.Len()))

		return nil
	}

	if err := p.apply(delta); err != nil {
		return p.fail(err)
	}

	metrics.MessagesApplied.WithLabelValues(p.currency, "live").Inc()
	p.publishMessage(msg)

	return nil
}

// SetSnapshot loads the baseline, replays the queued messages and goes live. A processor
// that was stopped, failed or already synced ignores the snapshot.
func (p *Processor) SetSnapshot(raw *dtos.Snapshot) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stopped || p.failed || p.mode != Pending {
		slog.Info("Discarding snapshot for inactive processor", "curr pair", p.currency)

		return nil
	}

	snapshot, err := orderbook.ParseSnapshot(raw)
	if err == nil {
		err = p.ob.ApplySnapshot(snapshot)
	}

	if err == nil && p.opts.CheckSequence && snapshot.Sequence > 0 && p.firstSeq > snapshot.Sequence+1 {
		err = fmt.Errorf("%w: snapshot %d predates first streamed message %d", ErrSequenceGap, snapshot.Sequence, p.firstSeq)
	}

	queued := p.pending.Drain()
	metrics.PendingMessages.WithLabelValues(p.currency).Set(0)

	if err != nil {
		p.ob.Reset()

		return p.fail(err)
	}

	replayed := make([]*dtos.Message, 0, len(queued))

	for _, msg := range queued {
		if p.opts.CheckSequence && snapshot.Sequence > 0 && msg.Sequence > 0 && msg.Sequence <= snapshot.Sequence {
			continue
		}

		delta, _, err := orderbook.DeltaFromMessage(msg)
		if err == nil {
			err = p.apply(delta)
		}

		if err != nil {
			p.ob.Reset()

			return p.fail(fmt.Errorf("replaying queued messages: %w", err))
		}

		replayed = append(replayed, msg)
	}

	if snapshot.Sequence > p.lastSeq {
		p.lastSeq = snapshot.Sequence
	}

	p.mode = Synced

	slog.Info("Order book synced", "curr pair", p.currency, "sequence", snapshot.Sequence,
		"queued", len(queued), "replayed", len(replayed))
	metrics.MessagesApplied.WithLabelValues(p.currency, "replay").Add(float64(len(replayed)))
	metrics.SyncState.WithLabelValues(p.currency).Set(1)
	p.publishLifecycle(dtos.EventSynced, nil)

	for _, msg := range replayed {
		p.publishMessage(msg)
	}

	return nil
}

// SnapshotFailed fails the instrument after the snapshot could not be fetched.
func (p *Processor) SnapshotFailed(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stopped || p.failed || p.mode != Pending {
		return
	}

	p.pending.Drain()
	metrics.PendingMessages.WithLabelValues(p.currency).Set(0)

	_ = p.fail(&SnapshotError{Err: err})
}

// startSync announces the snapshot fetch about to start.
func (p *Processor) startSync() {
	p.mu.Lock()
	defer p.mu.Unlock()

	metrics.SyncState.WithLabelValues(p.currency).Set(0)
	p.publishLifecycle(dtos.EventSync, nil)
}

// stop detaches the processor: any later message or snapshot is ignored.
func (p *Processor) stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stopped = true
	p.pending.Drain()
	p.cancel()
}

func (p *Processor) apply(delta orderbook.Delta) error {
	err := p.ob.ApplyDelta(delta)
	if err != nil && delta.Kind == orderbook.Match && errors.Is(err, orderbook.ErrUnknownOrder) {
		// matches can race with the done of an already closed maker
		slog.Warn("Ignoring match for unknown order", "curr pair", p.currency, "Error", err)
		metrics.SoftErrors.WithLabelValues(p.currency).Inc()

		return nil
	}

	return err
}

// trackSequence reports whether a message is stale. While pending it only records the
// sequence range seen; once synced a jump past the next expected sequence is a gap.
func (p *Processor) trackSequence(seq int64) (bool, error) {
	if !p.opts.CheckSequence || seq <= 0 {
		return false, nil
	}

	if p.mode == Pending {
		if p.firstSeq == 0 || seq < p.firstSeq {
			p.firstSeq = seq
		}

		if seq > p.lastSeq {
			p.lastSeq = seq
		}

		return false, nil
	}

	switch {
	case p.lastSeq == 0:
	case seq <= p.lastSeq:
		return true, nil
	case seq > p.lastSeq+1:
		return false, fmt.Errorf("%w: expected %d, got %d", ErrSequenceGap, p.lastSeq+1, seq)
	}

	p.lastSeq = seq

	return false, nil
}

func (p *Processor) fail(err error) error {
	p.failed = true

	slog.Error("Order book replication failed", "curr pair", p.currency, "mode", p.mode.String(), "Error", err)
	metrics.SyncState.WithLabelValues(p.currency).Set(-1)
	p.publishLifecycle(dtos.EventError, err)

	return err
}

func (p *Processor) publishMessage(msg *dtos.Message) {
	p.Publish(dtos.Event{Kind: dtos.EventMessage, Instrument: p.currency, Payload: msg.Raw})
}

func (p *Processor) publishLifecycle(kind dtos.EventKind, err error) {
	metrics.SyncEvents.WithLabelValues(p.currency, kind.String()).Inc()
	p.Publish(dtos.Event{Kind: kind, Instrument: p.currency, Err: err})
}
