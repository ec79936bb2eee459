package producer

import (
	"context"
	"encoding/json"
	"fmt"

	wbfkafka "github.com/wb-go/wbf/kafka"
	"github.com/wb-go/wbf/retry"

	"github.com/aliskhannn/image-gateway/internal/model"
)

// sender is the subset of the wbf Kafka producer used here.
type sender interface {
	SendWithRetry(ctx context.Context, strategy retry.Strategy, key, value []byte) error
}

// Producer publishes render events to Kafka.
type Producer struct {
	Client   *wbfkafka.Producer
	sender   sender
	strategy retry.Strategy
}

// New creates a new Producer.
// - brokers: list of Kafka broker addresses
// - topic: topic that receives render events
// - s: retry strategy
func New(brokers []string, topic string, s retry.Strategy) *Producer {
	client := wbfkafka.NewProducer(brokers, topic)

	return &Producer{
		Client:   client,
		sender:   client,
		strategy: s,
	}
}

// Publish serializes the event to JSON and sends it to Kafka.
// The request ID is used as the message key so retries of the same request land together.
func (p *Producer) Publish(ctx context.Context, ev model.RenderEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal render event: %w", err)
	}

	key := []byte(ev.RequestID)
	if len(key) == 0 {
		key = []byte(ev.ID.String())
	}

	if err = p.sender.SendWithRetry(ctx, p.strategy, key, data); err != nil {
		return fmt.Errorf("failed to send render event: %w", err)
	}

	return nil
}
