package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"ms-speakers/internal/logger"
)

type Producer struct {
	Writer *kafka.Writer
	log    *logger.Logger
}

// NewProducer returns a producer whose writer routes each message by its own topic.
func NewProducer(brokers []string, log *logger.Logger) *Producer {
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
		BatchTimeout:           10 * time.Millisecond,
	}
	return &Producer{Writer: writer, log: log}
}

// Publish writes a raw message keyed by key.
func (p *Producer) Publish(ctx context.Context, topic, key string, value []byte) error {
	return p.Writer.WriteMessages(ctx, kafka.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: value,
	})
}

// PublishEvent marshals event as JSON and publishes it.
func (p *Producer) PublishEvent(ctx context.Context, topic, key string, event interface{}) error {
	msgBytes, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", topic, err)
	}
	if err := p.Publish(ctx, topic, key, msgBytes); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	p.log.LogKafka("PUBLISH", topic, key)
	return nil
}

func (p *Producer) Close() error {
	return p.Writer.Close()
}

// NoopProducer is used when Kafka is disabled; events are only logged.
type NoopProducer struct {
	log *logger.Logger
}

func NewNoopProducer(log *logger.Logger) *NoopProducer {
	return &NoopProducer{log: log}
}

func (p *NoopProducer) PublishEvent(_ context.Context, topic, key string, _ interface{}) error {
	p.log.LogKafka("SKIP", topic, key+" (kafka disabled)")
	return nil
}

func (p *NoopProducer) Close() error { return nil }
