package processors

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"time"

	"ob-sync/internal/dtos"
	"ob-sync/internal/metrics"
	"ob-sync/internal/orderbook"
)

// Manager owns one processor per subscribed instrument, routes stream messages to them
// and drives their snapshot fetches.
type Manager struct {
	EventSink
	SnapshotLoader

	opts       Options
	mu         sync.RWMutex
	processors map[string]*Processor
	closed     bool
	wg         sync.WaitGroup
}

func NewManager(loader SnapshotLoader, sink EventSink, opts Options) *Manager {
	return &Manager{
		EventSink:      sink,
		SnapshotLoader: loader,
		opts:           opts,
		processors:     make(map[string]*Processor),
	}
}

// Subscribe starts a fresh processor for the instrument, replacing any previous one,
// and fetches its snapshot in the background. It is a no-op once the manager is closed.
func (m *Manager) Subscribe(ctx context.Context, currency string) {
	m.mu.RLock()
	old, closed := m.processors[currency], m.closed
	m.mu.RUnlock()

	if closed {
		slog.Debug("Ignoring subscription on closed manager", "curr pair", currency)

		return
	}

	if old != nil {
		slog.Info("Replacing processor", "curr pair", currency)
		old.stop()
	}

	proc := NewProcessor(ctx, currency, m.EventSink, m.opts)
	proc.startSync()

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		proc.stop()

		return
	}

	displaced := m.processors[currency]
	m.processors[currency] = proc
	m.wg.Add(1)
	m.mu.Unlock()

	if displaced != nil && displaced != old {
		displaced.stop()
	}

	go func() {
		defer m.wg.Done()

		m.loadSnapshot(proc)
	}()
}

// Unsubscribe discards the instrument's processor. A snapshot still in flight is ignored.
func (m *Manager) Unsubscribe(currency string) bool {
	m.mu.Lock()
	proc, ok := m.processors[currency]
	delete(m.processors, currency)
	m.mu.Unlock()

	if !ok {
		return false
	}

	proc.stop()
	metrics.Forget(currency)
	slog.Info("Unsubscribed", "curr pair", currency)

	return true
}

// Reset drops every processor, e.g. after the upstream connection was lost.
func (m *Manager) Reset() []string {
	m.mu.Lock()
	procs := m.processors
	m.processors = make(map[string]*Processor)
	m.mu.Unlock()

	currencies := make([]string, 0, len(procs))

	for currency, proc := range procs {
		proc.stop()
		currencies = append(currencies, currency)
	}

	slices.Sort(currencies)

	return currencies
}

// Route decodes a raw stream message and hands it to Handle.
func (m *Manager) Route(raw []byte) {
	msg, err := dtos.ParseMessage(raw)
	if err != nil {
		slog.Warn("Dropping undecodable message", "Error", err)
		metrics.MessagesDropped.WithLabelValues("undecodable").Inc()

		return
	}

	m.Handle(msg)
}

// Handle delivers a message to its instrument's processor. Messages for instruments
// without a processor are dropped.
func (m *Manager) Handle(msg *dtos.Message) {
	proc := m.Processor(msg.ProductID)
	if proc == nil {
		slog.Debug("Dropping message for unsubscribed product", "type", msg.Type, "curr pair", msg.ProductID)
		metrics.MessagesDropped.WithLabelValues("unsubscribed").Inc()

		return
	}

	metrics.MessagesRouted.WithLabelValues(msg.ProductID).Inc()

	if err := proc.Process(msg); err != nil {
		m.handleFailure(proc, err)
	}
}

func (m *Manager) Processor(currency string) *Processor {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.processors[currency]
}

func (m *Manager) State(currency string) (orderbook.State, bool) {
	proc := m.Processor(currency)
	if proc == nil {
		return orderbook.State{}, false
	}

	return proc.State(), true
}

// GetOrderBook returns the instrument's state as JSON.
func (m *Manager) GetOrderBook(currency string) ([]byte, bool) {
	state, ok := m.State(currency)
	if !ok {
		return nil, false
	}

	data, err := json.Marshal(state)
	if err != nil {
		slog.Error("Error marshalling order book", "curr pair", currency, "Error", err)

		return nil, false
	}

	return data, true
}

func (m *Manager) Instruments() []string {
	m.mu.RLock()
	currencies := make([]string, 0, len(m.processors))

	for currency := range m.processors {
		currencies = append(currencies, currency)
	}
	m.mu.RUnlock()

	slices.Sort(currencies)

	return currencies
}

func (m *Manager) Status() map[string]Status {
	m.mu.RLock()
	procs := make(map[string]*Processor, len(m.processors))

	for currency, proc := range m.processors {
		procs[currency] = proc
	}
	m.mu.RUnlock()

	statuses := make(map[string]Status, len(procs))
	for currency, proc := range procs {
		statuses[currency] = proc.Status()
	}

	return statuses
}

// Close stops every processor and waits for the snapshot fetches to return. Later
// subscriptions, including automatic resyncs, are ignored.
func (m *Manager) Close() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()

	m.Reset()
	m.wg.Wait()
}

func (m *Manager) loadSnapshot(proc *Processor) {
	start := time.Now()
	snapshot, err := m.FetchSnapshot(proc.ctx, proc.currency)
	metrics.SnapshotLatency.Observe(time.Since(start).Seconds())

	if err != nil {
		if proc.ctx.Err() != nil {
			slog.Debug("Snapshot fetch cancelled", "curr pair", proc.currency)

			return
		}

		proc.SnapshotFailed(err)

		return
	}

	if err := proc.SetSnapshot(snapshot); err != nil {
		m.handleFailure(proc, err)
	}
}

func (m *Manager) handleFailure(proc *Processor, err error) {
	if !m.opts.AutoResync || !errors.Is(err, ErrSequenceGap) {
		return
	}

	if m.Processor(proc.currency) != proc || proc.parent.Err() != nil {
		return
	}

	slog.Warn("Resynchronising order book", "curr pair", proc.currency, "Error", err)
	metrics.Resyncs.WithLabelValues(proc.currency).Inc()
	m.Subscribe(proc.parent, proc.currency)
}
