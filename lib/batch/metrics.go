package batch

import "github.com/prometheus/client_golang/prometheus"

var (
	batchesBuilt = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "mention",
			Subsystem: "batch",
			Name:      "batches_built_total",
			Help:      "The total number of mini-batches built.",
		},
	)
	candidatesExtracted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "mention",
			Subsystem: "batch",
			Name:      "candidates_extracted_total",
			Help:      "The total number of candidates whose features were extracted.",
		},
	)
	extractionFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "mention",
			Subsystem: "batch",
			Name:      "extraction_failures_total",
			Help:      "The total number of batches aborted by a feature extraction error.",
		},
	)
	queueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "mention",
			Subsystem: "batch",
			Name:      "queue_depth",
			Help:      "Batches planned but not yet taken by the consumer, summed over streams.",
		},
	)
)

func init() {
	prometheus.MustRegister(batchesBuilt, candidatesExtracted, extractionFailures, queueDepth)
}
