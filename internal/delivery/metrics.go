package delivery

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics exposes the delivery engine's counters. Register against the
// default registerer in production; tests pass their own registry.
type Metrics struct {
	ChunksSent        prometheus.Counter
	ChunksBuffered    prometheus.Counter
	ChunksPersisted   prometheus.Counter
	ChunksQuarantined prometheus.Counter
	SendFailures      prometheus.Counter
	QueueDepth        prometheus.Gauge
	Offline           prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		ChunksSent: factory.NewCounter(prometheus.CounterOpts{
			Name: "capture_chunks_sent_total",
			Help: "Chunks delivered to the network sink",
		}),
		ChunksBuffered: factory.NewCounter(prometheus.CounterOpts{
			Name: "capture_chunks_buffered_total",
			Help: "Chunks placed in the memory queue after a send failure",
		}),
		ChunksPersisted: factory.NewCounter(prometheus.CounterOpts{
			Name: "capture_chunks_persisted_total",
			Help: "Chunks written to the disk overflow store",
		}),
		ChunksQuarantined: factory.NewCounter(prometheus.CounterOpts{
			Name: "capture_chunks_quarantined_total",
			Help: "Persisted records quarantined as unreadable",
		}),
		SendFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "capture_send_failures_total",
			Help: "Sink send attempts that failed",
		}),
		QueueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Name: "capture_queue_depth",
			Help: "Current number of chunks in the memory queue",
		}),
		Offline: factory.NewGauge(prometheus.GaugeOpts{
			Name: "capture_delivery_offline",
			Help: "1 while the delivery engine is in offline mode",
		}),
	}
}
