package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the pipeline's Prometheus collectors
type Metrics struct {
	Lookups        *prometheus.CounterVec
	LookupDuration *prometheus.HistogramVec

	Downloads     *prometheus.CounterVec
	DownloadBytes *prometheus.CounterVec

	Evictions    prometheus.Counter
	EvictedBytes prometheus.Counter
	StorageBytes prometheus.Gauge
}

// New registers the collectors on reg. Pass a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Lookups: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sharetok_lookups_total",
			Help: "Pipeline lookups by mode and outcome",
		}, []string{"mode", "outcome"}), // outcome: hit, fetched, restored, or an error type

		LookupDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sharetok_lookup_duration_seconds",
			Help:    "Pipeline lookup latency in seconds",
			Buckets: []float64{0.01, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"mode"}),

		Downloads: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sharetok_asset_downloads_total",
			Help: "Asset downloads by role and result",
		}, []string{"role", "result"}),

		DownloadBytes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sharetok_asset_download_bytes_total",
			Help: "Bytes written to storage by asset role",
		}, []string{"role"}),

		Evictions: factory.NewCounter(prometheus.CounterOpts{
			Name: "sharetok_evictions_total",
			Help: "Items tombstoned by the cache evictor",
		}),

		EvictedBytes: factory.NewCounter(prometheus.CounterOpts{
			Name: "sharetok_evicted_bytes_total",
			Help: "Bytes freed by the cache evictor",
		}),

		StorageBytes: factory.NewGauge(prometheus.GaugeOpts{
			Name: "sharetok_storage_bytes",
			Help: "Size of the storage root at the last sweep",
		}),
	}
}

// Nop returns metrics registered on a private registry, for callers that do not export them
func Nop() *Metrics {
	return New(prometheus.NewRegistry())
}

func (m *Metrics) RecordLookup(mode, outcome string, seconds float64) {
	m.Lookups.WithLabelValues(mode, outcome).Inc()
	m.LookupDuration.WithLabelValues(mode).Observe(seconds)
}

func (m *Metrics) RecordDownload(role string, bytes int64, err error) {
	if err != nil {
		m.Downloads.WithLabelValues(role, "error").Inc()
		return
	}
	m.Downloads.WithLabelValues(role, "ok").Inc()
	m.DownloadBytes.WithLabelValues(role).Add(float64(bytes))
}

func (m *Metrics) RecordEviction(freedBytes int64) {
	m.Evictions.Inc()
	m.EvictedBytes.Add(float64(freedBytes))
}

func (m *Metrics) SetStorageBytes(bytes int64) {
	m.StorageBytes.Set(float64(bytes))
}
