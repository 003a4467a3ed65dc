package kafka

import (
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestProducerWriterIsAsync(t *testing.T) {
	p := NewProducer([]string{"localhost:9092"}, 4, nil)
	assert.True(t, p.w.Async)
	assert.NotNil(t, p.w.Completion)
}

func TestProducerPublish(t *testing.T) {
	p := NewProducer([]string{"localhost:9092"}, 1, zap.NewNop())

	require.NoError(t, p.Publish("market.order.confirmed", []byte("ORD-1"), []byte("{}")))
	assert.ErrorIs(t, p.Publish("market.order.confirmed", []byte("ORD-2"), []byte("{}")), ErrInboxFull)

	m := <-p.inbox
	assert.Equal(t, "market.order.confirmed", m.Topic)
	assert.Equal(t, []byte("ORD-1"), m.Key)
}

func TestProducerPublishAfterClose(t *testing.T) {
	p := NewProducer([]string{"localhost:9092"}, 8, zap.NewNop())
	p.Close()

	assert.NotPanics(t, func() {
		assert.ErrorIs(t, p.Publish("market.order.confirmed", []byte("ORD-1"), []byte("{}")), ErrProducerClosed)
	})
	assert.NotPanics(t, p.Close, "close is idempotent")
}

func TestProducerLogsFailedDeliveries(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	p := NewProducer([]string{"localhost:9092"}, 1, zap.New(core))

	p.completed([]kafka.Message{{Topic: "market.order.confirmed", Key: []byte("ORD-1")}}, nil)
	assert.Equal(t, 0, logs.Len())

	p.completed([]kafka.Message{
		{Topic: "market.order.confirmed", Key: []byte("ORD-1")},
		{Topic: "market.order.shipped", Key: []byte("ORD-2")},
	}, errors.New("leader not available"))
	require.Equal(t, 2, logs.Len())
	assert.Equal(t, "market.order.shipped", logs.All()[1].ContextMap()["topic"])
}
