package evalqueue

import (
	prom "github.com/prometheus/client_golang/prometheus"
)

const (
	promNamespace = "evalboard"
	promSubsystem = "evalqueue"
)

var (
	refreshHistogram = prom.NewHistogram(prom.HistogramOpts{
		Namespace: promNamespace,
		Subsystem: promSubsystem,
		Name:      "refresh_seconds",
		Help:      "duration of queue refreshes",
		Buckets:   prom.DefBuckets,
	})
	refreshFailures = prom.NewCounter(prom.CounterOpts{
		Namespace: promNamespace,
		Subsystem: promSubsystem,
		Name:      "refresh_failures_total",
		Help:      "refreshes that could not list the request store",
	})
	skippedFiles = prom.NewCounter(prom.CounterOpts{
		Namespace: promNamespace,
		Subsystem: promSubsystem,
		Name:      "skipped_files_total",
		Help:      "request files skipped because they could not be fetched or parsed",
	})
	entriesGauge = prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: promNamespace,
		Subsystem: promSubsystem,
		Name:      "entries",
		Help:      "entries of the published snapshot by status",
	}, []string{"status"})
)

func init() {
	prom.MustRegister(refreshHistogram)
	prom.MustRegister(refreshFailures)
	prom.MustRegister(skippedFiles)
	prom.MustRegister(entriesGauge)
}
