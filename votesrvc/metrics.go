package votesrvc

import (
	prom "github.com/prometheus/client_golang/prometheus"
)

const (
	promNamespace = "evalboard"
	promSubsystem = "votes"
)

var (
	votesGauge = prom.NewGauge(prom.GaugeOpts{
		Namespace: promNamespace,
		Subsystem: promSubsystem,
		Name:      "total",
		Help:      "votes held by the local ledger",
	})
	pendingGauge = prom.NewGauge(prom.GaugeOpts{
		Namespace: promNamespace,
		Subsystem: promSubsystem,
		Name:      "pending_uploads",
		Help:      "votes recorded locally and not yet uploaded",
	})
	votesAdded = prom.NewCounterVec(prom.CounterOpts{
		Namespace: promNamespace,
		Subsystem: promSubsystem,
		Name:      "added_total",
		Help:      "votes added through this process",
	}, []string{"vote_type"})
	reconcileFailures = prom.NewCounter(prom.CounterOpts{
		Namespace: promNamespace,
		Subsystem: promSubsystem,
		Name:      "reconcile_failures_total",
		Help:      "failed reconciliations with the remote ledger",
	})
)

func init() {
	prom.MustRegister(votesGauge)
	prom.MustRegister(pendingGauge)
	prom.MustRegister(votesAdded)
	prom.MustRegister(reconcileFailures)
}
