package source

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "marzstat"

// Metrics of the data source. A nil *Metrics is valid and records nothing.
type Metrics struct {
	fetchTotal    *prometheus.CounterVec
	fetchDuration prometheus.Histogram
	cacheRequests *prometheus.CounterVec
}

// NewMetrics returns source metrics registered on registerer.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	fetchTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "source",
			Name:      "fetch_total",
			Help:      "Total number of queries sent to the database.",
		},
		[]string{"result"},
	)
	registerer.MustRegister(fetchTotal)

	fetchDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "source",
		Name:      "fetch_duration_seconds",
		Help:      "Duration of database queries including tunnel setup.",
		Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
	})
	registerer.MustRegister(fetchDuration)

	cacheRequests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "source",
			Name:      "cache_requests_total",
			Help:      "Total number of query cache lookups.",
		},
		[]string{"result"},
	)
	registerer.MustRegister(cacheRequests)

	return &Metrics{
		fetchTotal:    fetchTotal,
		fetchDuration: fetchDuration,
		cacheRequests: cacheRequests,
	}
}

func (m *Metrics) observeFetch(start time.Time, err error) {
	if m == nil {
		return
	}

	m.fetchDuration.Observe(time.Since(start).Seconds())
	m.fetchTotal.WithLabelValues(resultLabel(err)).Inc()
}

func (m *Metrics) observeCache(hit bool) {
	if m == nil {
		return
	}

	if hit {
		m.cacheRequests.WithLabelValues("hit").Inc()
	} else {
		m.cacheRequests.WithLabelValues("miss").Inc()
	}
}

func resultLabel(err error) string {
	if err != nil {
		return "error"
	}

	return "success"
}
