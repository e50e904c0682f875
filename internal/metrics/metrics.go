package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	QueriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ibhops_queries_total",
		Help: "Total number of hop-count queries answered, labelled by outcome.",
	}, []string{"outcome"})

	QueriesDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ibhops_queries_dropped_total",
		Help: "Total number of single queries rejected due to a full queue.",
	})

	HopCount = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "ibhops_hop_count",
		Help:    "Distribution of successful hop counts.",
		Buckets: []float64{0, 1, 2, 3, 4, 5, 6, 8, 10, 16, 32},
	})

	CacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ibhops_cache_hits_total",
		Help: "Total number of hop counts served from the pair cache.",
	})

	AnalysesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ibhops_analyses_total",
		Help: "Total number of batch analyses, labelled by status.",
	}, []string{"status"})

	AnalysisDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "ibhops_analysis_duration_ms",
		Help:    "End-to-end batch analysis latency in milliseconds.",
		Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 10000},
	})

	FabricEntities = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "ibhops_fabric_entities",
		Help: "Entities in the loaded fabric, labelled by kind.",
	}, []string{"kind"})

	QueueUtilization = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ibhops_queue_utilization_ratio",
		Help: "Current pair queue utilization (0-1).",
	})
)
