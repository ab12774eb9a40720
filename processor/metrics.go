package processor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	scenesProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "geostack_scenes_processed_total",
		Help: "The total number of scene groups processed to completion",
	})
	scenesFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "geostack_scenes_failed_total",
		Help: "The total number of scene groups that failed a pipeline stage",
	})
	scenesMerged = promauto.NewCounter(prometheus.CounterOpts{
		Name: "geostack_scenes_merged_total",
		Help: "The total number of split scenes stitched back together",
	})
	runDuration = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "geostack_run_duration_seconds",
		Help: "Wall-clock duration of the last batch run",
	})
)
