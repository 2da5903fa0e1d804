package controller

import (
	"github.com/prometheus/client_golang/prometheus"
	"sigs.k8s.io/controller-runtime/pkg/metrics"
)

var (
	cyclesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "seed_dns_cycles_total",
		Help: "Reconciliation cycles per zone, by result.",
	}, []string{"zone", "result"})

	recordsRemovedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "seed_dns_records_removed_total",
		Help: "Address records deleted because their peer was unreachable.",
	}, []string{"zone"})

	recordsAddedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "seed_dns_records_added_total",
		Help: "Address records created for newly validated peers.",
	}, []string{"zone"})

	peersRejectedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "seed_dns_peers_rejected_total",
		Help: "Peer connections not published, by reason.",
	}, []string{"zone", "reason"})

	daemonErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "seed_dns_daemon_errors_total",
		Help: "Failed peer snapshot queries.",
	}, []string{"zone"})

	liveEntries = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "seed_dns_live_entries",
		Help: "Live address records for the zone after the last cycle.",
	}, []string{"zone"})
)

func init() {
	metrics.Registry.MustRegister(
		cyclesTotal,
		recordsRemovedTotal,
		recordsAddedTotal,
		peersRejectedTotal,
		daemonErrorsTotal,
		liveEntries,
	)
}
