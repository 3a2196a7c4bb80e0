package syncer

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	syncOpsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cartsync_sync_ops_total",
			Help: "Remote sync operations by kind and result",
		},
		[]string{"op", "result"},
	)

	syncOrphansTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cartsync_sync_orphans_total",
			Help: "Remote records at risk of being orphaned after an exhausted delete chain",
		},
	)

	syncQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cartsync_sync_queue_depth",
			Help: "Sync operations currently queued or in flight",
		},
	)
)
