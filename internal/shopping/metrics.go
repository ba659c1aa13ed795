package shopping

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	listsRendered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "foodgram_shopping_lists_total",
			Help: "Total number of shopping lists rendered",
		},
		[]string{"format", "empty"},
	)

	buildDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "foodgram_shopping_list_build_duration_seconds",
			Help:    "Duration of shopping list aggregation in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)
)
