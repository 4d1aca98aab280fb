package poll

import (
	"errors"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// process-wide cache counters shared by every entry
var (
	pollsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "statusboard",
		Subsystem: "cache",
		Name:      "polls_total",
		Help:      "Cache refreshes by node type and result.",
	}, []string{"type", "result"})

	pollDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "statusboard",
		Subsystem: "cache",
		Name:      "poll_duration_seconds",
		Help:      "Duration of cache fetch functions by node type.",
		Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
	}, []string{"type"})

	inflightGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "statusboard",
		Subsystem: "cache",
		Name:      "inflight",
		Help:      "Cache refreshes currently in flight.",
	})

	totals struct {
		polls    atomic.Int64
		failures atomic.Int64
		inflight atomic.Int64
	}
)

// Collectors returns the process-wide cache collectors for registration on a
// prometheus.Registerer.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{pollsTotal, pollDuration, inflightGauge}
}

// RegisterMetrics registers [Collectors] on reg. Collectors already present on
// reg are accepted so that several services may share one registry.
func RegisterMetrics(reg prometheus.Registerer) error {
	for _, c := range Collectors() {
		if err := reg.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	return nil
}

// Totals is a read-only snapshot of process-wide cache counters.
type Totals struct {
	Polls    int64 `json:"polls"`
	Failures int64 `json:"failures"`
	InFlight int64 `json:"in_flight"`
}

// CacheTotals returns the current process-wide cache counters.
func CacheTotals() Totals {
	return Totals{
		Polls:    totals.polls.Load(),
		Failures: totals.failures.Load(),
		InFlight: totals.inflight.Load(),
	}
}

func recordStart() {
	totals.inflight.Add(1)
	inflightGauge.Inc()
}

func recordFinish(nodeType string, d time.Duration, err error) {
	totals.inflight.Add(-1)
	inflightGauge.Dec()
	totals.polls.Add(1)

	result := "success"
	if err != nil {
		result = "failure"
		totals.failures.Add(1)
	}
	pollsTotal.WithLabelValues(nodeType, result).Inc()
	pollDuration.WithLabelValues(nodeType).Observe(d.Seconds())
}
