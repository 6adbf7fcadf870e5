package metrics

import (
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	lookups       *prom.CounterVec
	downloads     *prom.CounterVec
	downloadBytes prom.Counter
	downloadTime  prom.Histogram
	extractions   *prom.CounterVec
	opDuration    *prom.HistogramVec
	persists      *prom.CounterVec
}

// NewPrometheusRecorder constructs and registers the harnesscache metrics on reg.
// A nil registry gets a private one so tests never touch the global registerer.
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{
		lookups: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "harnesscache",
			Name:      "cache_lookups_total",
			Help:      "Asset cache lookups by result",
		}, []string{"result"}),
		downloads: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "harnesscache",
			Name:      "downloads_total",
			Help:      "Primary resource downloads by outcome",
		}, []string{"result"}),
		downloadBytes: prom.NewCounter(prom.CounterOpts{
			Namespace: "harnesscache",
			Name:      "download_bytes_total",
			Help:      "Bytes written by primary resource downloads",
		}),
		downloadTime: prom.NewHistogram(prom.HistogramOpts{
			Namespace: "harnesscache",
			Name:      "download_duration_seconds",
			Help:      "Duration of primary resource downloads",
			Buckets:   prom.ExponentialBuckets(0.05, 2, 12),
		}),
		extractions: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "harnesscache",
			Name:      "archive_expansions_total",
			Help:      "Archive expansions by result",
		}, []string{"result"}),
		opDuration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: "harnesscache",
			Name:      "operation_duration_seconds",
			Help:      "Duration of cache operations",
			Buckets:   prom.DefBuckets,
		}, []string{"operation"}),
		persists: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "harnesscache",
			Name:      "state_persists_total",
			Help:      "State snapshot writes by outcome",
		}, []string{"result"}),
	}
	reg.MustRegister(pr.lookups, pr.downloads, pr.downloadBytes, pr.downloadTime, pr.extractions, pr.opDuration, pr.persists)
	return pr
}

func outcome(success bool) string {
	if success {
		return "success"
	}
	return "failed"
}

func (p *PrometheusRecorder) IncCacheLookup(result LookupResult) {
	if p == nil {
		return
	}
	p.lookups.WithLabelValues(string(result)).Inc()
}

func (p *PrometheusRecorder) ObserveDownload(d time.Duration, bytes int64, success bool) {
	if p == nil {
		return
	}
	p.downloads.WithLabelValues(outcome(success)).Inc()
	p.downloadTime.Observe(d.Seconds())
	if bytes > 0 {
		p.downloadBytes.Add(float64(bytes))
	}
}

func (p *PrometheusRecorder) IncExtraction(result ExtractionResult) {
	if p == nil {
		return
	}
	p.extractions.WithLabelValues(string(result)).Inc()
}

func (p *PrometheusRecorder) ObserveOperationDuration(op string, d time.Duration) {
	if p == nil {
		return
	}
	p.opDuration.WithLabelValues(op).Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncStatePersist(success bool) {
	if p == nil {
		return
	}
	p.persists.WithLabelValues(outcome(success)).Inc()
}
