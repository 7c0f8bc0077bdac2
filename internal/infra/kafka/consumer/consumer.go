package consumer

import (
	"context"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	wbfkafka "github.com/wb-go/wbf/kafka"
	"github.com/wb-go/wbf/retry"
	"github.com/wb-go/wbf/zlog"

	"github.com/aliskhannn/image-storage/internal/config"
)

// handler processes a single fetched message.
type handler interface {
	Handle(ctx context.Context, msg kafka.Message) error
}

// requeuer publishes a message back to the topic.
type requeuer interface {
	Requeue(ctx context.Context, key, value []byte) error
}

// client is the part of the Kafka consumer the loop needs.
type client interface {
	Fetch(ctx context.Context) (kafka.Message, error)
	Commit(ctx context.Context, msg kafka.Message) error
}

// Consumer represents a Kafka consumer along with its configuration
// and the handler that processes orphaned-object messages.
type Consumer struct {
	Client   *wbfkafka.Consumer
	client   client
	handler  handler
	requeue  requeuer
	cfg      *config.Kafka
	strategy retry.Strategy
}

// New creates a new Consumer.
// - cfg: Kafka configuration struct
// - s: retry strategy
// - h: handler for orphan messages
func New(
	cfg *config.Kafka,
	s retry.Strategy,
	h handler,
) *Consumer {
	consumer := wbfkafka.NewConsumer(cfg.Brokers, cfg.Topic, cfg.GroupID)

	return &Consumer{
		Client:   consumer,
		client:   consumer,
		handler:  h,
		cfg:      cfg,
		strategy: s,
	}
}

// WithRequeue sets where messages go when handling keeps failing.
func (c *Consumer) WithRequeue(r requeuer) *Consumer {
	c.requeue = r
	return c
}

// Consume continuously fetches messages from Kafka, processes them using the handler,
// and commits offsets after successful processing. It stops gracefully on context cancellation.
//
// Handling is retried with the strategy. A message that still fails is
// published again and then committed, since committing a later offset would
// skip it. Without a requeuer the loop stops and leaves it uncommitted.
func (c *Consumer) Consume(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()

	zlog.Logger.Info().
		Str("topic", c.cfg.Topic).
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
			msg, fetchErr = c.client.Fetch(ctx)
			return fetchErr
		}, c.strategy)

		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			zlog.Logger.Err(err).Msg("failed to fetch message")
			time.Sleep(500 * time.Millisecond)
			continue
		}

		err = retry.Do(func() error {
			return c.handler.Handle(ctx, msg)
		}, c.strategy)
		if err != nil {
			zlog.Logger.Err(err).
				Str("message", string(msg.Value)).
				Msg("failed to clean up orphaned object")

			if c.requeue == nil {
				zlog.Logger.Error().
					Int64("offset", msg.Offset).
					Msg("no requeue target, stopping consumer")
				return
			}
			if err := c.requeue.Requeue(ctx, msg.Key, msg.Value); err != nil {
				zlog.Logger.Err(err).
					Int64("offset", msg.Offset).
					Msg("failed to requeue message, stopping consumer")
				return
			}
		}

		// Commit the message with retries.
		err = retry.Do(func() error {
			return c.client.Commit(ctx, msg)
		}, c.strategy)
		if err != nil {
			zlog.Logger.Err(err).Msg("failed to commit message after retries")
			continue
		}

		zlog.Logger.Info().
			Int64("offset", msg.Offset).
			Str("key", string(msg.Key)).
			Msg("orphan message committed")
	}
}
