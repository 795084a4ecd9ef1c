package virtualfs

import (
	"bytes"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"

	"github.com/dibs-fs/dibs/internal/cas"
)

// Metrics registers the Prometheus series that mirror live CAS state
// and renders them for .dibs/metrics. No HTTP server is started by
// this package — that's out of scope for a local-mount filesystem —
// the mount's synthetic surface is the only scrape endpoint.
type Metrics struct {
	Registry       *prometheus.Registry
	trackedFiles   prometheus.GaugeFunc
	activeLocks    prometheus.GaugeFunc
	occRefusals    *prometheus.CounterVec
	evictionsTotal prometheus.Counter
}

// NewMetrics registers gauges that read live values from table on
// every scrape, plus counters for refusals and evictions.
func NewMetrics(table *cas.Table) *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{Registry: registry}

	m.trackedFiles = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "dibs",
		Name:      "tracked_files",
		Help:      "Number of backing paths with a live CAS entry.",
	}, func() float64 { return float64(table.TrackedFiles()) })

	m.activeLocks = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "dibs",
		Name:      "active_locks",
		Help:      "Number of backing paths currently held by a write owner.",
	}, func() float64 { return float64(table.ActiveLocks()) })

	m.occRefusals = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "dibs",
		Name:      "occ_refusals_total",
		Help:      "Number of mutating operations refused by the concurrency-control engine.",
	}, []string{"reason"})

	m.evictionsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "dibs",
		Name:      "evictions_total",
		Help:      "Number of CAS entries pruned by the eviction worker.",
	})

	registry.MustRegister(m.trackedFiles, m.activeLocks, m.occRefusals, m.evictionsTotal)
	return m
}

// RecordRefusal implements occ.RefusalRecorder.
func (m *Metrics) RecordRefusal(reason string) {
	m.occRefusals.WithLabelValues(reason).Inc()
}

// RecordEvictions implements eviction.Recorder.
func (m *Metrics) RecordEvictions(n int) {
	m.evictionsTotal.Add(float64(n))
}

// Render gathers the registry and encodes it in Prometheus text
// exposition format, for serving under .dibs/metrics — there is no
// HTTP listener for a local-mount filesystem to hang promhttp.Handler
// off of, so the mount's own synthetic surface is the scrape endpoint.
func (m *Metrics) Render() ([]byte, error) {
	families, err := m.Registry.Gather()
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	encoder := expfmt.NewEncoder(&buf, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, family := range families {
		if err := encoder.Encode(family); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}
