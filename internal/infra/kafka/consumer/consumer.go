package consumer

import (
	"context"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	wbfkafka "github.com/wb-go/wbf/kafka"
	"github.com/wb-go/wbf/retry"
	"github.com/wb-go/wbf/zlog"
)

const fetchBackoff = 500 * time.Millisecond

// handler processes a single Kafka message.
type handler interface {
	Handle(ctx context.Context, msg kafka.Message) error
}

// reader is the subset of the wbf Kafka consumer used by Consume.
type reader interface {
	Fetch(ctx context.Context) (kafka.Message, error)
	Commit(ctx context.Context, msg kafka.Message) error
}

// Consumer represents a Kafka consumer along with the handler
// that processes its messages.
type Consumer struct {
	Client   *wbfkafka.Consumer
	reader   reader
	handler  handler
	topic    string
	strategy retry.Strategy
}

// New creates a new Consumer.
// - brokers, topic, groupID: Kafka subscription
// - s: retry strategy for fetch and commit
// - h: handler for each message
func New(brokers []string, topic, groupID string, s retry.Strategy, h handler) *Consumer {
	client := wbfkafka.NewConsumer(brokers, topic, groupID)

	return &Consumer{
		Client:   client,
		reader:   client,
		handler:  h,
		topic:    topic,
		strategy: s,
	}
}

// Consume continuously fetches messages from Kafka, processes them using the handler,
// and commits offsets after handling. It stops gracefully on context cancellation.
func (c *Consumer) Consume(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()

	zlog.Logger.Info().
		Str("topic", c.topic).
		Msg("starting consumer")

	for {
		// Exit if context is canceled (graceful shutdown).
		if ctx.Err() != nil {
			zlog.Logger.Info().Msg("shutdown signal received, stopping consumer")
			return
		}

		// Fetch a message from Kafka with retries.
		var msg kafka.Message
		err := retry.Do(func() error {
			var fetchErr error
			msg, fetchErr = c.reader.Fetch(ctx)
			return fetchErr
		}, c.strategy)

		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			zlog.Logger.Err(err).Msg("failed to fetch message")
			select {
			case <-ctx.Done():
			case <-time.After(fetchBackoff):
			}
			continue
		}

		// Failed messages are logged and committed as well.
		if err := c.handler.Handle(ctx, msg); err != nil {
			zlog.Logger.Err(err).
				Str("message", string(msg.Value)).
				Msg("failed to handle message")
		}

		// Commit the message with retries.
		err = retry.Do(func() error {
			return c.reader.Commit(ctx, msg)
		}, c.strategy)
		if err != nil {
			zlog.Logger.Err(err).Msg("failed to commit message after retries")
			continue
		}

		zlog.Logger.Debug().
			Int64("offset", msg.Offset).
			Msg("message handled")
	}
}
