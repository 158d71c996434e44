package session

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics can be shared by many sessions. A nil registerer leaves the
// collectors unregistered.
type Metrics struct {
	bytesIn    prometheus.Counter
	bytesOut   prometheus.Counter
	rejections prometheus.Counter
	backoffs   prometheus.Counter
	sessions   *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		bytesIn: f.NewCounter(prometheus.CounterOpts{
			Namespace: "ringpipe",
			Name:      "produced_bytes_total",
			Help:      "Bytes committed to the ring buffer by producers.",
		}),
		bytesOut: f.NewCounter(prometheus.CounterOpts{
			Namespace: "ringpipe",
			Name:      "consumed_bytes_total",
			Help:      "Bytes drained from the ring buffer into sinks.",
		}),
		rejections: f.NewCounter(prometheus.CounterOpts{
			Namespace: "ringpipe",
			Name:      "write_rejections_total",
			Help:      "Writes refused because the ring buffer lacked free space.",
		}),
		backoffs: f.NewCounter(prometheus.CounterOpts{
			Namespace: "ringpipe",
			Name:      "read_backoffs_total",
			Help:      "Consumer waits on an empty ring buffer.",
		}),
		sessions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ringpipe",
			Name:      "sessions_total",
			Help:      "Finished sessions by result.",
		}, []string{"result"}),
	}
}
