package telemetry

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/danmuck/edgebridge/internal/bridge"
	"github.com/danmuck/edgebridge/internal/protocol/frame"
	"github.com/danmuck/edgebridge/internal/testutil/testlog"
	backend "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPublisher(t *testing.T) (*RedisPublisher, *backend.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	pub, err := NewRedisPublisher(Config{
		RedisAddr:      mr.Addr(),
		Channel:        "uwb/telemetry",
		PublishTimeout: time.Second,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = pub.Close() })

	sub := backend.NewClient(&backend.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = sub.Close() })
	return pub, sub
}

func receive(t *testing.T, ps *backend.PubSub) Record {
	t.Helper()
	select {
	case msg := <-ps.Channel():
		var rec Record
		require.NoError(t, json.Unmarshal([]byte(msg.Payload), &rec))
		return rec
	case <-time.After(3 * time.Second):
		t.Fatal("no telemetry message")
	}
	return Record{}
}

func TestRedisPublisherForwardsDecodedFrames(t *testing.T) {
	testlog.Start(t)

	pub, sub := newTestPublisher(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ps := sub.Subscribe(ctx, "uwb/telemetry")
	defer ps.Close()
	_, err := ps.Receive(ctx)
	require.NoError(t, err)
	require.NoError(t, pub.Ping(ctx))

	go pub.Run(ctx)

	dev := bridge.Device{ConnID: "c1", Remote: "10.0.0.9:4000"}
	pub.ObserveFrame(dev, frame.Classify([]byte{0x2A, 0, 0, 0, 0xFF}))
	pub.ObserveFrame(dev, frame.Classify([]byte{1, 2}))
	pub.ObserveFrame(dev, frame.Classify([]byte(`{"anchors":{"A1":42,"A2":7}}`)))

	first := receive(t, ps)
	assert.Equal(t, "scalar", first.Kind)
	require.NotNil(t, first.Value)
	assert.Equal(t, uint32(42), *first.Value)
	assert.Equal(t, "0000002A", first.Hex)
	assert.Equal(t, "c1", first.ConnID)

	second := receive(t, ps)
	assert.Equal(t, "anchor_report", second.Kind)
	assert.JSONEq(t, "42", string(second.A1))
	assert.Nil(t, second.Value)
}

func TestRecordForSkipsNonTelemetryFrames(t *testing.T) {
	testlog.Start(t)

	dev := bridge.Device{ConnID: "c1"}
	_, ok := RecordFor(dev, frame.Classify([]byte{1}), time.Now())
	assert.False(t, ok)
	_, ok = RecordFor(dev, frame.Classify([]byte("garbage garbage garbage")), time.Now())
	assert.False(t, ok)
}

func TestNewFromClientRequiresChannel(t *testing.T) {
	testlog.Start(t)

	_, err := NewFromClient(backend.NewClient(&backend.Options{Addr: "127.0.0.1:0"}), " ", 0)
	assert.ErrorIs(t, err, ErrNoChannel)
	assert.False(t, Config{}.Enabled())
	assert.True(t, Config{RedisAddr: "127.0.0.1:6379"}.Enabled())
}
