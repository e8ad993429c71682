package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "netsync"

// Metrics groups the counters of one server instance
type Metrics struct {
	DatagramsReceived *prometheus.CounterVec
	DatagramsDropped  *prometheus.CounterVec
	UpdatesSent       *prometheus.CounterVec
	UpdatesApplied    prometheus.Counter
	LiveObjects       prometheus.Gauge
	Snapshots         prometheus.Counter
	TickDuration      prometheus.Histogram
	Connections       prometheus.Gauge
	Persisted         prometheus.Counter
}

// New registers the metrics on reg, prometheus.DefaultRegisterer when nil
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		DatagramsReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "datagrams_received_total",
			Help:      "Datagrams received by type",
		}, []string{"type"}),
		DatagramsDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "datagrams_dropped_total",
			Help:      "Datagrams dropped by reason",
		}, []string{"reason"}),
		UpdatesSent: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "updates_sent_total",
			Help:      "Member updates flushed by lane",
		}, []string{"lane"}),
		UpdatesApplied: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "updates_applied_total",
			Help:      "Inbound member updates invoked",
		}),
		LiveObjects: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "live_objects",
			Help:      "Allocated object slots",
		}),
		Snapshots: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshots_captured_total",
			Help:      "Object snapshots captured",
		}),
		TickDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tick_duration_seconds",
			Help:      "Duration of one simulation tick",
			Buckets:   []float64{.0005, .001, .0025, .005, .01, .025, .05, .1},
		}),
		Connections: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "gate_connections",
			Help:      "Open gate connections",
		}),
		Persisted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "objects_persisted_total",
			Help:      "Object records written to storage",
		}),
	}
}

// Nop returns metrics bound to a private registry, for tests and tools
func Nop() *Metrics {
	return New(prometheus.NewRegistry())
}

const (
	DropUnknownType    = "unknown_type"
	DropDecode         = "decode"
	DropSchemaMismatch = "schema_mismatch"
	DropUnknownObject  = "unknown_object"
	DropNoHandler      = "no_handler"
	DropUnauthorized   = "unauthorized"
)
