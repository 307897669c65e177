package coinbase

import (
	"context"
	"encoding/json"
	"log/slog"

	"ob-sync/internal/dtos"
	"ob-sync/internal/metrics"
)

type MessageHandler interface {
	Handle(msg *dtos.Message)
}

type SubscriptionListener interface {
	Acknowledged(products []string)
}

// Processor decodes feed frames. Subscription acknowledgements and errors are handled
// here; everything else goes to the order book manager.
type Processor struct {
	MessageHandler

	subs SubscriptionListener
}

func NewProcessor(handler MessageHandler, subs SubscriptionListener) *Processor {
	return &Processor{
		MessageHandler: handler,
		subs:           subs,
	}
}

func (p *Processor) ProcessMessage(ctx context.Context, bufferedMsgs <-chan []byte) error {
	slog.Info("started coinbase message processor")

	for {
		select {
		case <-ctx.Done():
			return nil
		case message, ok := <-bufferedMsgs:
			if !ok {
				return nil
			}

			p.processMessage(message)
		}
	}
}

func (p *Processor) processMessage(message []byte) {
	msg, err := dtos.ParseMessage(message)
	if err != nil {
		slog.Error("Error Parsing Json", "Error", err)
		metrics.MessagesDropped.WithLabelValues("undecodable").Inc()

		return
	}

	switch msg.Type {
	case subscriptionsType:
		p.processSubscriptionList(message)
	case errorType:
		slog.Error("Feed error", "message", msg.ErrorMessage, "reason", msg.Reason)
	default:
		p.Handle(msg)
	}
}

func (p *Processor) processSubscriptionList(message []byte) {
	var subscriptionsList dtos.SubscriptionsList
	if err := json.Unmarshal(message, &subscriptionsList); err != nil {
		slog.Error("Error Parsing Subscriptions List Json", "Error", err)

		return
	}

	products := subscriptionsList.Products()
	slog.Info("subscriptions list received", "products", products)

	if p.subs != nil {
		p.subs.Acknowledged(products)
	}
}
