package kafka

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"ms-speakers/internal/logger"
)

// MessageHandler processes one message. Handlers must be idempotent: delivery is at-least-once.
type MessageHandler func(ctx context.Context, msg kafka.Message) error

const maxHandlerAttempts = 3

type Consumer struct {
	reader  *kafka.Reader
	log     *logger.Logger
	backoff time.Duration
}

func NewConsumer(brokers []string, topic, groupID string, log *logger.Logger) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 1,
		MaxBytes: 10e6, // 10MB
	})
	return &Consumer{reader: reader, log: log, backoff: 500 * time.Millisecond}
}

// Start blocks, delivering messages to handler until ctx is cancelled.
func (c *Consumer) Start(ctx context.Context, handler MessageHandler) error {
	topic := c.reader.Config().Topic
	c.log.LogKafka("CONSUME", topic, "consumer started")

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return fmt.Errorf("fetch from %s: %w", topic, err)
		}

		c.handle(ctx, topic, msg, handler)

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			c.log.Error("KAFKA", fmt.Sprintf("Commit failed for %s offset %d: %v", topic, msg.Offset, err))
		}
	}
}

// handle retries a failing handler with a linear backoff, then gives up on the
// message so one poison message cannot stall the partition.
func (c *Consumer) handle(ctx context.Context, topic string, msg kafka.Message, handler MessageHandler) {
	for attempt := 1; attempt <= maxHandlerAttempts; attempt++ {
		err := handler(ctx, msg)
		if err == nil {
			return
		}
		c.log.Error("KAFKA", fmt.Sprintf("Handler failed for %s offset %d (attempt %d/%d): %v",
			topic, msg.Offset, attempt, maxHandlerAttempts, err))
		if attempt == maxHandlerAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Duration(attempt) * c.backoff):
		}
	}
	c.log.Warn("KAFKA", fmt.Sprintf("Skipping %s offset %d after %d attempts", topic, msg.Offset, maxHandlerAttempts))
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}
