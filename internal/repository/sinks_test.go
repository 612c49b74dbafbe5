package repository

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"MetaGate/internal/domain/models"
	pkgkafka "MetaGate/pkg/kafka"
)

type fakeProducer struct {
	topic string
	msgs  []pkgkafka.Message
	err   error
}

func (p *fakeProducer) PublishBatch(_ context.Context, topic string, msgs []pkgkafka.Message) error {
	p.topic = topic
	p.msgs = append(p.msgs, msgs...)
	return p.err
}

func (p *fakeProducer) Close() error { return nil }

func sampleSignals() []models.GatedSignal {
	ts := time.Date(2024, 1, 1, 3, 0, 0, 0, time.UTC)
	return []models.GatedSignal{
		{RunID: "r", Model: "logistic", Threshold: 0.6, Timestamp: ts, Asset: "BTC", Baseline: 1, Signal: 1, Probability: 0.7, Regime: "bull"},
		{RunID: "r", Model: "logistic", Threshold: 0.6, Timestamp: ts, Asset: "ETH", Baseline: 1, Signal: 0, Probability: 0.4},
	}
}

func TestKafkaSignalPublisherKeysByAsset(t *testing.T) {
	p := &fakeProducer{}
	pub := NewKafkaSignalPublisher(p, "metagate.gated_signals")

	require.NoError(t, pub.PublishSignals(context.Background(), sampleSignals()))
	assert.Equal(t, "metagate.gated_signals", p.topic)
	require.Len(t, p.msgs, 2)
	assert.Equal(t, []byte("BTC"), p.msgs[0].Key)
	assert.Equal(t, []byte("ETH"), p.msgs[1].Key)

	b, err := json.Marshal(p.msgs[0].Value)
	require.NoError(t, err)
	assert.JSONEq(t, `{"run_id":"r","model":"logistic","threshold":0.6,"ts":"2024-01-01T03:00:00Z",
		"asset":"BTC","baseline":1,"signal":1,"probability":0.7,"regime":"bull"}`, string(b))

	require.NoError(t, pub.PublishSignals(context.Background(), nil))
	assert.Len(t, p.msgs, 2)
}

func TestMultiSinkJoinsErrors(t *testing.T) {
	ok := &fakeProducer{}
	bad := &fakeProducer{err: errors.New("down")}
	m := MultiSink{NewKafkaSignalPublisher(ok, "a"), NewKafkaSignalPublisher(bad, "b")}

	err := m.PublishSignals(context.Background(), sampleSignals())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "down")
	assert.Len(t, ok.msgs, 2, "a failing sink does not stop the others")
	assert.NoError(t, m.Close())
}

func TestInsertSignals(t *testing.T) {
	q, args := insertSignals("metagate.gated_signals", sampleSignals())
	assert.Contains(t, q, "INSERT INTO metagate.gated_signals (run_id, model, threshold, ts, asset, baseline, signal, probability, regime) VALUES (")
	assert.Contains(t, q, "),(")
	require.Len(t, args, 18)
	assert.Equal(t, "BTC", args[4])
	assert.Equal(t, uint8(1), args[6])
	assert.Equal(t, uint8(0), args[15])
}

func TestPivot(t *testing.T) {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	f := Pivot([]Point{
		{Time: t0.Add(time.Hour), Name: "ETH", Value: 20},
		{Time: t0, Name: "BTC", Value: 1},
		{Time: t0.Add(time.Hour), Name: "BTC", Value: 2},
		{Time: t0, Name: "ETH", Missing: true},
	})
	require.NoError(t, f.Validate())
	assert.Equal(t, []string{"BTC", "ETH"}, f.Columns)
	assert.Equal(t, []time.Time{t0, t0.Add(time.Hour)}, f.Index)
	assert.Equal(t, []float64{1, 2}, f.Values[0])
	assert.True(t, math.IsNaN(f.At(0, "ETH")))
	assert.Equal(t, 20.0, f.At(1, "ETH"))
}
