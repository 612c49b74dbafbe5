package kafka

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	mu   sync.Mutex
	msgs []kafka.Message
	err  error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

type flakyHandler struct {
	topic    string
	failures int
	calls    int
	lastID   string
}

func (h *flakyHandler) Topic() string { return h.topic }

func (h *flakyHandler) Handle(ctx context.Context, _ []byte) error {
	h.calls++
	h.lastID = RequestID(ctx)
	if h.calls <= h.failures {
		return errors.New("transient")
	}
	return nil
}

func TestProducerPublishBatch(t *testing.T) {
	w := &fakeWriter{}
	p := NewProducerWithWriter(w, "snappy")

	err := p.PublishBatch(context.Background(), "signals", []Message{
		{Key: []byte("BTC"), Value: map[string]int{"signal": 1}},
		{Key: []byte("ETH"), Value: "raw"},
	})
	require.NoError(t, err)
	require.Len(t, w.msgs, 2)
	assert.Equal(t, "signals", w.msgs[0].Topic)
	assert.Equal(t, []byte("BTC"), w.msgs[0].Key)
	assert.JSONEq(t, `{"signal":1}`, string(w.msgs[0].Value))
	assert.Equal(t, "raw", string(w.msgs[1].Value))

	require.NoError(t, p.PublishBatch(context.Background(), "signals", nil))
	assert.Len(t, w.msgs, 2)

	w.err = errors.New("broker down")
	assert.Error(t, p.Publish(context.Background(), "signals", nil, "x"))
}

func newTestConsumer(t *testing.T, retries int) (*Consumer, *fakeWriter) {
	t.Helper()
	c, err := NewConsumer(
		WithConsumerBrokers([]string{"localhost:9092"}),
		WithConsumerRetry(retries, time.Millisecond, 2*time.Millisecond),
		WithConsumerDLQ("dlq"),
	)
	require.NoError(t, err)
	dlq := &fakeWriter{}
	c.dlq = dlq
	return c, dlq
}

func TestConsumerRetriesThenSucceeds(t *testing.T) {
	c, dlq := newTestConsumer(t, 3)
	h := &flakyHandler{topic: "requests", failures: 2}
	c.RegisterHandler(h)
	c.SetHook(NewHookChain(RequestIDHook()))

	c.process(context.Background(), kafka.Message{
		Topic:   "requests",
		Value:   []byte(`{}`),
		Headers: []kafka.Header{{Key: "request_id", Value: []byte("r-1")}},
	})
	assert.Equal(t, 3, h.calls)
	assert.Equal(t, "r-1", h.lastID)
	assert.Empty(t, dlq.msgs)
}

func TestConsumerExhaustedGoesToDLQ(t *testing.T) {
	c, dlq := newTestConsumer(t, 1)
	h := &flakyHandler{topic: "requests", failures: 10}
	c.RegisterHandler(h)

	var hookErrs int
	c.SetHook(HookFuncs{Err: func(context.Context, string, kafka.Message, []byte, error) { hookErrs++ }})

	c.process(context.Background(), kafka.Message{Topic: "requests", Key: []byte("k"), Value: []byte(`{}`)})
	assert.Equal(t, 2, h.calls)
	assert.Equal(t, 1, hookErrs)
	require.Len(t, dlq.msgs, 1)
	assert.Equal(t, "dlq", dlq.msgs[0].Topic)
	assert.Equal(t, []byte("k"), dlq.msgs[0].Key)
	assert.Equal(t, "source_topic", dlq.msgs[0].Headers[0].Key)
	assert.Equal(t, "requests", string(dlq.msgs[0].Headers[0].Value))
}

func TestConsumerRecoversHandlerPanic(t *testing.T) {
	c, dlq := newTestConsumer(t, 0)
	c.RegisterHandler(panicHandler{})

	assert.NotPanics(t, func() {
		c.process(context.Background(), kafka.Message{Topic: "boom"})
	})
	assert.Len(t, dlq.msgs, 1)
}

type panicHandler struct{}

func (panicHandler) Topic() string                        { return "boom" }
func (panicHandler) Handle(context.Context, []byte) error { panic("bad payload") }

func TestBackoffWithJitter(t *testing.T) {
	for attempt := 1; attempt <= 10; attempt++ {
		d := backoffWithJitter(10*time.Millisecond, 80*time.Millisecond, attempt)
		assert.Greater(t, d, time.Duration(0))
		assert.LessOrEqual(t, d, 80*time.Millisecond)
	}
}
