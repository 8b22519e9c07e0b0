package observability

import (
	"context"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/danmuck/edgebridge/internal/bridge"
	"github.com/danmuck/edgebridge/internal/protocol/frame"
	"github.com/danmuck/edgebridge/internal/testutil/testlog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsRegisterIsIdempotent(t *testing.T) {
	testlog.Start(t)

	reg := prometheus.NewRegistry()
	m := NewMetrics()
	require.NoError(t, m.Register(reg))
	require.NoError(t, m.Register(reg))
}

func TestMetricsRecordsBridgeActivity(t *testing.T) {
	testlog.Start(t)

	m := NewMetrics()
	dev := bridge.Device{ConnID: "c1", Remote: "10.0.0.5:5000"}

	m.ConnectionOpened()
	m.ConnectionOpened()
	m.ConnectionClosed()
	m.Broadcast(3, 1)
	m.CommandRejected()
	m.ObserveFrame(dev, frame.Classify([]byte{0x2A, 0, 0, 0}))
	m.ObserveFrame(dev, frame.Classify([]byte(`{"anchors":{"A1":12.5,"A2":7}}`)))
	m.ObserveFrame(dev, frame.Classify([]byte("not json, definitely")))
	m.ObserveFrame(dev, frame.Classify([]byte{1}))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.connectionsActive))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.connectionsTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.broadcasts))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.broadcastFailures))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.commandErrors))
	assert.Equal(t, 42.0, testutil.ToFloat64(m.scalarValue))
	assert.Equal(t, 12.5, testutil.ToFloat64(m.anchorA1))
	for _, kind := range []frame.Kind{frame.KindScalar, frame.KindAnchorReport, frame.KindMalformed, frame.KindIncomplete} {
		assert.Equal(t, 1.0, testutil.ToFloat64(m.frames.WithLabelValues(kind.String())), kind.String())
	}
}

func TestMetricsServerExposesRegistry(t *testing.T) {
	testlog.Start(t)

	reg := prometheus.NewRegistry()
	m := NewMetrics()
	require.NoError(t, m.Register(reg))
	m.ConnectionOpened()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	srv := NewMetricsServer(ln.Addr().String(), reg)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- srv.Serve(ctx, ln)
	}()

	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get("http://" + ln.Addr().String() + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, strings.Contains(string(body), "edgebridge_connections_total 1"), string(body))

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("metrics server did not stop")
	}
}
