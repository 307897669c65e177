package kafka

import (
	"context"
	"log/slog"
	"time"

	"ob-sync/internal/dtos"

	"github.com/segmentio/kafka-go"
)

const eventHeader = "event"

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer republishes the stream messages of every replicated product, keyed by product.
type Producer struct {
	writer messageWriter
}

func NewProducer(brokers []string, topic string, batchTimeout time.Duration) *Producer {
	return &Producer{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
			Async:        true,
			BatchTimeout: batchTimeout,
			Completion: func(messages []kafka.Message, err error) {
				if err != nil {
					slog.Error("Error on publishing to kafka", "topic", topic, "messages", len(messages), "Error", err)
				}
			},
		},
	}
}

// HandleEvent publishes message events; lifecycle events stay local.
func (p *Producer) HandleEvent(event dtos.Event) {
	if event.Kind != dtos.EventMessage || len(event.Payload) == 0 {
		return
	}

	err := p.writer.WriteMessages(context.Background(), kafka.Message{
		Key:     []byte(event.Instrument),
		Value:   event.Payload,
		Headers: []kafka.Header{{Key: eventHeader, Value: []byte(event.Kind.String())}},
	})
	if err != nil {
		slog.Error("Error on publishing to kafka", "curr pair", event.Instrument, "Error", err)
	}
}

func (p *Producer) Close() error {
	return p.writer.Close()
}
