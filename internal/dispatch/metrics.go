package dispatch

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the prometheus collectors for tool calls.
type Metrics struct {
	calls    *prometheus.CounterVec
	duration *prometheus.HistogramVec
	inFlight prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		calls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mcp_tool_calls_total",
			Help: "Tool calls by tool and outcome.",
		}, []string{"tool", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "mcp_tool_call_duration_seconds",
			Help:    "Tool call latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"tool"}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mcp_tool_calls_in_flight",
			Help: "Tool calls currently executing.",
		}),
	}
	for _, c := range []prometheus.Collector{m.calls, m.duration, m.inFlight} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) begin() {
	if m != nil {
		m.inFlight.Inc()
	}
}

func (m *Metrics) end(name string, kind Kind, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.inFlight.Dec()
	// Unknown names are collapsed so arbitrary client input cannot grow
	// label cardinality.
	if kind == KindUnknownTool {
		name = "unknown"
	}
	m.calls.WithLabelValues(name, string(kind)).Inc()
	m.duration.WithLabelValues(name).Observe(elapsed.Seconds())
}
