package registry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	blocksMined = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chainkeep_blocks_mined_total",
		Help: "Number of blocks mined, by hierarchy level.",
	}, []string{"level"})

	miningDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "chainkeep_mining_duration_seconds",
		Help:    "Time spent mining a single block.",
		Buckets: prometheus.ExponentialBuckets(0.0001, 4, 10),
	}, []string{"level"})

	entitiesCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chainkeep_entities_created_total",
		Help: "Number of entity chains created, by hierarchy level.",
	}, []string{"level"})
)

var nowFunc = time.Now

func observeMining(level string, start time.Time) {
	blocksMined.WithLabelValues(level).Inc()
	miningDuration.WithLabelValues(level).Observe(time.Since(start).Seconds())
}
