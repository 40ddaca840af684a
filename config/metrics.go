package config

import "github.com/prometheus/client_golang/prometheus"

var (
	SyncsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tymblok_integration_syncs_total",
		Help: "Total sync passes per provider and outcome",
	}, []string{"provider", "status"})

	ItemsSynced = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tymblok_integration_items_synced_total",
		Help: "Total items imported or updated by sync",
	}, []string{"provider"})

	SyncDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tymblok_integration_sync_duration_seconds",
		Help:    "Wall time of a single sync pass",
		Buckets: prometheus.DefBuckets,
	}, []string{"provider"})
)

func init() {
	prometheus.MustRegister(SyncsTotal, ItemsSynced, SyncDuration)
}
