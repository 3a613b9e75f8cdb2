package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "pdftools"

var (
	conversions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "conversions_total",
			Help:      "Conversions by tool and result",
		},
		[]string{"tool", "result"},
	)

	conversionLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "conversion_duration_seconds",
			Help:      "Duration of conversions by tool",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"tool"},
	)

	pagesRendered = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pages_rendered_total",
			Help:      "Rendered PDF pages by result (success, failed)",
		},
		[]string{"result"},
	)

	exportBundles = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "export_bundles_total",
			Help:      "Export requests by kind (all, selection, single) and result",
		},
		[]string{"kind", "result"},
	)

	artifactFetches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "artifact_fetch_total",
			Help:      "Artifact retrievals by URL scheme and result",
		},
		[]string{"scheme", "result"},
	)

	limiterRejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "limiter_rejections_total",
			Help:      "Requests rejected because the per-tool in-flight limit was reached",
		},
		[]string{"tool"},
	)

	queueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_depth",
			Help:      "Queue depth gauges for pending and cancelled entries",
		},
		[]string{"type"},
	)

	retentionDeleted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retention_deleted_total",
			Help:      "Expired jobs removed by the retention sweeper",
		},
	)

	registerOnce sync.Once
)

// Init registers collectors. Safe to call more than once.
func Init() {
	registerOnce.Do(func() {
		prometheus.MustRegister(conversions, conversionLatency, pagesRendered, exportBundles,
			artifactFetches, limiterRejections, queueDepth, retentionDeleted)
	})
}

// Handler returns the http.Handler for /metrics
func Handler() http.Handler { return promhttp.Handler() }

func ObserveConversion(tool, result string, dur time.Duration) {
	conversions.WithLabelValues(tool, result).Inc()
	conversionLatency.WithLabelValues(tool).Observe(dur.Seconds())
}

func IncRendered(result string, n int) { pagesRendered.WithLabelValues(result).Add(float64(n)) }

func IncExport(kind, result string) { exportBundles.WithLabelValues(kind, result).Inc() }

func IncFetch(scheme, result string) { artifactFetches.WithLabelValues(scheme, result).Inc() }

func IncLimiterRejection(tool string) { limiterRejections.WithLabelValues(tool).Inc() }

func SetQueueDepth(kind string, v int64) { queueDepth.WithLabelValues(kind).Set(float64(v)) }

func AddRetentionDeleted(n int) { retentionDeleted.Add(float64(n)) }
