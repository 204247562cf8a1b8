package kafka

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"

	"ms-speakers/internal/logger"
)

func newTestConsumer() *Consumer {
	return &Consumer{log: logger.NewNop(), backoff: time.Millisecond}
}

func TestConsumerHandle_RetriesThenSucceeds(t *testing.T) {
	calls := 0
	handler := func(ctx context.Context, msg kafka.Message) error {
		calls++
		if calls < 2 {
			return errors.New("store unavailable")
		}
		return nil
	}

	newTestConsumer().handle(context.Background(), "t", kafka.Message{}, handler)
	assert.Equal(t, 2, calls)
}

func TestConsumerHandle_GivesUpAfterMaxAttempts(t *testing.T) {
	calls := 0
	handler := func(ctx context.Context, msg kafka.Message) error {
		calls++
		return errors.New("poison")
	}

	newTestConsumer().handle(context.Background(), "t", kafka.Message{}, handler)
	assert.Equal(t, maxHandlerAttempts, calls)
}

func TestConsumerHandle_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	handler := func(ctx context.Context, msg kafka.Message) error {
		calls++
		cancel()
		return errors.New("store unavailable")
	}

	c := newTestConsumer()
	c.backoff = time.Hour
	c.handle(ctx, "t", kafka.Message{}, handler)
	assert.Equal(t, 1, calls)
}
