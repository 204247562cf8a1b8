package kafka

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"ms-speakers/internal/logger"
)

func TestNoopProducerNeverFails(t *testing.T) {
	p := NewNoopProducer(logger.NewNop())
	assert.NoError(t, p.PublishEvent(context.Background(), "topic", "key", SuggestionMergedEvent{SourceID: 1, TargetID: 2}))
	assert.NoError(t, p.Close())
}

func TestPublishEventRejectsUnmarshalable(t *testing.T) {
	p := NewProducer([]string{"localhost:0"}, logger.NewNop())
	defer p.Close()

	err := p.PublishEvent(context.Background(), "topic", "key", map[string]interface{}{"bad": make(chan int)})
	assert.ErrorContains(t, err, "marshal topic event")
}

func TestEnsureTopicsExistNeedsBrokers(t *testing.T) {
	assert.Error(t, EnsureTopicsExist(context.Background(), nil, []string{"t"}, logger.NewNop()))
}
