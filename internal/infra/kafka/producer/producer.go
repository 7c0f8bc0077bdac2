package producer

import (
	"context"
	"encoding/json"
	"fmt"

	wbfkafka "github.com/wb-go/wbf/kafka"
	"github.com/wb-go/wbf/retry"

	"github.com/aliskhannn/image-storage/internal/config"
	"github.com/aliskhannn/image-storage/internal/model"
)

// sender is the part of the Kafka producer used to publish events.
type sender interface {
	SendWithRetry(ctx context.Context, strategy retry.Strategy, key, value []byte) error
}

// Producer publishes orphaned-object events.
type Producer struct {
	Client   *wbfkafka.Producer
	sender   sender
	strategy retry.Strategy
	cfg      *config.Kafka
}

// New creates a new Producer.
// - cfg: Kafka configuration struct
// - s: retry strategy
func New(
	cfg *config.Kafka,
	s retry.Strategy,
) *Producer {
	producer := wbfkafka.NewProducer(cfg.Brokers, cfg.Topic)

	return &Producer{
		Client:   producer,
		sender:   producer,
		cfg:      cfg,
		strategy: s,
	}
}

// ReportOrphan serializes the event to JSON and sends it to Kafka.
// The object's container/key is the message key, so repeated reports of the
// same object land in the same partition.
func (p *Producer) ReportOrphan(ctx context.Context, o model.Orphan) error {
	data, err := json.Marshal(o)
	if err != nil {
		return fmt.Errorf("failed to marshal orphan: %w", err)
	}

	key := []byte(o.Container + "/" + o.Key)

	if err = p.sender.SendWithRetry(ctx, p.strategy, key, data); err != nil {
		return fmt.Errorf("failed to send orphan: %w", err)
	}

	return nil
}

// Requeue publishes an already encoded message again, for consumers that
// could not handle it.
func (p *Producer) Requeue(ctx context.Context, key, value []byte) error {
	if err := p.sender.SendWithRetry(ctx, p.strategy, key, value); err != nil {
		return fmt.Errorf("failed to requeue message: %w", err)
	}

	return nil
}
