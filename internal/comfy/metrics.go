package comfy

import "github.com/prometheus/client_golang/prometheus"

var (
	submissionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "comfybridge_submissions_total",
			Help: "Total workflow submissions by outcome.",
		},
		[]string{"outcome"},
	)

	pollDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "comfybridge_poll_duration_seconds",
			Help:    "Time spent polling the backend for job outputs.",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 12),
		},
	)

	fetchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "comfybridge_artifact_fetches_total",
			Help: "Artifact retrievals by path (disk fast path vs HTTP /view).",
		},
		[]string{"path"},
	)
)

func init() {
	prometheus.MustRegister(submissionsTotal)
	prometheus.MustRegister(pollDuration)
	prometheus.MustRegister(fetchesTotal)
}
