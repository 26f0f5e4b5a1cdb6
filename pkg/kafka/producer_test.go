package kafka

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shopflow/orderflow/pkg/logger"
)

type recordingWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *recordingWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *recordingWriter) Close() error {
	w.closed = true
	return nil
}

func testProducer(w messageWriter) *Producer {
	return newProducer(w, []string{"localhost:9092"}, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestNewEvent(t *testing.T) {
	ev, err := NewEvent("order.placed", "o-1", "order", "orderflow", map[string]string{"status": "PLACED"})
	require.NoError(t, err)

	assert.NotEmpty(t, ev.EventID)
	assert.Equal(t, 1, ev.Version)

	var data map[string]string
	require.NoError(t, ev.UnmarshalData(&data))
	assert.Equal(t, "PLACED", data["status"])

	_, err = NewEvent("bad", "x", "x", "x", make(chan int))
	assert.Error(t, err)
}

func TestEvent_WithContextAndRoundTrip(t *testing.T) {
	ctx := logger.WithCorrelationID(context.Background(), "corr-1")
	ev, err := NewEvent("order.cancelled", "o-2", "order", "orderflow", struct{}{})
	require.NoError(t, err)
	ev.WithContext(ctx).WithMetadata("reason", "customer")

	raw, err := ev.Marshal()
	require.NoError(t, err)

	back, err := UnmarshalEvent(raw)
	require.NoError(t, err)
	assert.Equal(t, "corr-1", back.CorrelationID)
	assert.Equal(t, "customer", back.Metadata["reason"])
}

func TestProducer_PublishKeysByAggregate(t *testing.T) {
	w := &recordingWriter{}
	p := testProducer(w)

	ev, _ := NewEvent("order.placed", "o-9", "order", "orderflow", struct{}{})
	ev.CorrelationID = "corr-9"
	before := testutil.ToFloat64(ProducerMessagesPublished.WithLabelValues("test.orders"))

	require.NoError(t, p.Publish(context.Background(), "test.orders", ev))

	require.Len(t, w.msgs, 1)
	msg := w.msgs[0]
	assert.Equal(t, "test.orders", msg.Topic)
	assert.Equal(t, "o-9", string(msg.Key))
	assert.Len(t, msg.Headers, 3)
	assert.Equal(t, before+1, testutil.ToFloat64(ProducerMessagesPublished.WithLabelValues("test.orders")))
}

func TestProducer_PublishError(t *testing.T) {
	p := testProducer(&recordingWriter{err: errors.New("leader not available")})
	ev, _ := NewEvent("order.placed", "o-1", "order", "orderflow", struct{}{})

	err := p.Publish(context.Background(), "test.errors", ev)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "publish event to test.errors")
	assert.Equal(t, float64(1), testutil.ToFloat64(ProducerPublishErrors.WithLabelValues("test.errors")))
}

func TestProducer_Close(t *testing.T) {
	w := &recordingWriter{}
	require.NoError(t, testProducer(w).Close())
	assert.True(t, w.closed)
}

func TestProducer_PingWithoutBrokers(t *testing.T) {
	p := newProducer(&recordingWriter{}, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	assert.Error(t, p.Ping(context.Background()))
}
