package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Poll outcomes used as the "outcome" label.
const (
	OutcomeSuccess = "success"
	OutcomeNoData  = "no_data"
	OutcomeError   = "error"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	pollsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pricesync",
			Subsystem: "poll",
			Name:      "total",
			Help:      "Total number of completed price polls.",
		},
		[]string{"outcome"},
	)

	pollDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "pricesync",
			Subsystem: "poll",
			Name:      "duration_seconds",
			Help:      "Duration of price polls.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10), // 10ms to ~5s
		},
		[]string{"outcome"},
	)

	pollsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "pricesync",
			Subsystem: "poll",
			Name:      "inflight",
			Help:      "Current number of in-flight price polls.",
		},
	)

	historyLength = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "pricesync",
			Subsystem: "history",
			Name:      "samples",
			Help:      "Number of samples in the rolling history buffer.",
		},
	)

	seedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pricesync",
			Subsystem: "history",
			Name:      "seed_total",
			Help:      "History seed attempts by result.",
		},
		[]string{"result"},
	)

	lastPrice = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "pricesync",
			Subsystem: "price",
			Name:      "last",
			Help:      "Most recently applied spot price.",
		},
	)

	lastUpdated = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "pricesync",
			Subsystem: "price",
			Name:      "last_updated_timestamp_seconds",
			Help:      "Unix time of the most recent successful poll.",
		},
	)
)

func init() {
	Registry.MustRegister(
		pollsTotal,
		pollDuration,
		pollsInFlight,
		historyLength,
		seedTotal,
		lastPrice,
		lastUpdated,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler exposes the registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// PollStarted increments the in-flight gauge.
func PollStarted() { pollsInFlight.Inc() }

// PollFinished records one completed poll.
func PollFinished(outcome string, elapsed time.Duration) {
	pollsInFlight.Dec()
	pollsTotal.WithLabelValues(outcome).Inc()
	pollDuration.WithLabelValues(outcome).Observe(elapsed.Seconds())
}

// PriceApplied records a successfully applied sample.
func PriceApplied(price float64, at time.Time, samples int) {
	lastPrice.Set(price)
	lastUpdated.Set(float64(at.Unix()))
	historyLength.Set(float64(samples))
}

// Seeded records the outcome of the startup history fetch.
func Seeded(result string, samples int) {
	seedTotal.WithLabelValues(result).Inc()
	if result == "applied" {
		historyLength.Set(float64(samples))
	}
}
