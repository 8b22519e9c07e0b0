package observability

import (
	"sync"

	"github.com/danmuck/edgebridge/internal/bridge"
	"github.com/danmuck/edgebridge/internal/protocol/frame"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "edgebridge"

// Metrics is the bridge's Prometheus instrumentation. It implements
// bridge.Recorder and bridge.FrameSink.
type Metrics struct {
	registerOnce sync.Once

	connectionsActive prometheus.Gauge
	connectionsTotal  prometheus.Counter
	frames            *prometheus.CounterVec
	broadcasts        prometheus.Counter
	broadcastFailures prometheus.Counter
	commandErrors     prometheus.Counter
	anchorA1          prometheus.Gauge
	scalarValue       prometheus.Gauge
}

func NewMetrics() *Metrics {
	return &Metrics{
		connectionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections_active",
			Help:      "Device connections currently open.",
		}),
		connectionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connections_total",
			Help:      "Device connections accepted.",
		}),
		frames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_total",
			Help:      "Inbound deliveries by classification.",
		}, []string{"kind"}),
		broadcasts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "broadcasts_total",
			Help:      "Operator commands broadcast to devices.",
		}),
		broadcastFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "broadcast_failures_total",
			Help:      "Per-device broadcast writes that failed.",
		}),
		commandErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "command_errors_total",
			Help:      "Operator lines rejected by the formatter.",
		}),
		anchorA1: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "anchor_a1",
			Help:      "Last numeric anchors.A1 value reported by any device.",
		}),
		scalarValue: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "scalar_value",
			Help:      "Last u32 scalar frame value reported by any device.",
		}),
	}
}

// Register adds the collectors to reg once; later calls are no-ops.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	var err error
	m.registerOnce.Do(func() {
		for _, c := range m.collectors() {
			if err = reg.Register(c); err != nil {
				return
			}
		}
	})
	return err
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.connectionsActive,
		m.connectionsTotal,
		m.frames,
		m.broadcasts,
		m.broadcastFailures,
		m.commandErrors,
		m.anchorA1,
		m.scalarValue,
	}
}

func (m *Metrics) ConnectionOpened() {
	m.connectionsActive.Inc()
	m.connectionsTotal.Inc()
}

func (m *Metrics) ConnectionClosed() {
	m.connectionsActive.Dec()
}

func (m *Metrics) Broadcast(targets, failed int) {
	m.broadcasts.Inc()
	m.broadcastFailures.Add(float64(failed))
}

func (m *Metrics) CommandRejected() {
	m.commandErrors.Inc()
}

func (m *Metrics) ObserveFrame(_ bridge.Device, in frame.Inbound) {
	m.frames.WithLabelValues(in.Kind.String()).Inc()
	switch in.Kind {
	case frame.KindScalar:
		m.scalarValue.Set(float64(in.Scalar.Value))
	case frame.KindAnchorReport:
		if v, ok := in.A1Float(); ok {
			m.anchorA1.Set(v)
		}
	}
}

var (
	_ bridge.Recorder  = (*Metrics)(nil)
	_ bridge.FrameSink = (*Metrics)(nil)
)
