package outqueues

import (
	"context"
	"log/slog"

	"ob-sync/internal/dtos"
)

// Handler consumes replication events on the dispatcher goroutine.
type Handler interface {
	HandleEvent(event dtos.Event)
}

// Queue decouples event producers, which publish while holding an instrument lock,
// from consumers, which may query the books back.
type Queue struct {
	q        chan dtos.Event
	done     chan struct{}
	handlers []Handler
}

func NewQueue(size int) *Queue {
	if size <= 0 {
		size = 40000
	}

	return &Queue{
		q:    make(chan dtos.Event, size),
		done: make(chan struct{}),
	}
}

// AddHandler registers a consumer. Handlers must be added before Run.
func (q *Queue) AddHandler(h Handler) {
	q.handlers = append(q.handlers, h)
}

// Publish enqueues the event, blocking while the queue is full. Events published
// after Run has returned are dropped.
func (q *Queue) Publish(event dtos.Event) {
	select {
	case q.q <- event:
	case <-q.done:
		slog.Debug("out queue stopped, dropping event", "curr pair", event.Instrument, "event", event.Kind.String())
	}
}

// Run dispatches events to every handler in publish order until ctx is done.
func (q *Queue) Run(ctx context.Context) error {
	defer close(q.done)

	slog.Info("Starting Event Dispatcher", "handlers", len(q.handlers))

	for {
		select {
		case <-ctx.Done():
			slog.Info("Event Dispatcher Stopped")

			return nil
		case event := <-q.q:
			for _, h := range q.handlers {
				h.HandleEvent(event)
			}
		}
	}
}
