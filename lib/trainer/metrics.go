package trainer

import "github.com/prometheus/client_golang/prometheus"

var (
	epochGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "mention",
			Subsystem: "trainer",
			Name:      "epoch",
			Help:      "The current training epoch, starting at one.",
		},
	)
	learningRateGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "mention",
			Subsystem: "trainer",
			Name:      "learning_rate",
			Help:      "The learning rate of the current epoch.",
		},
	)
	costGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "mention",
			Subsystem: "trainer",
			Name:      "cost",
			Help:      "The mean cost of the last pass over each data set.",
		},
		[]string{"set"},
	)
	f1Gauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "mention",
			Subsystem: "trainer",
			Name:      "f1",
			Help:      "The F1 of the last evaluation of each data set.",
		},
		[]string{"set"},
	)
	examplesCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "mention",
			Subsystem: "trainer",
			Name:      "examples_trained_total",
			Help:      "The total number of candidates trained on.",
		},
	)
)

func init() {
	prometheus.MustRegister(epochGauge, learningRateGauge, costGauge, f1Gauge, examplesCounter)
}
