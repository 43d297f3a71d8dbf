package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// DeploymentsTotal counts snippet deployments per target server.
	DeploymentsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "perch_query_deployments_total",
			Help: "Total number of snippet bundle deployments",
		},
		[]string{"server", "status"},
	)
	// DeploymentDuration is the latency of one bundle deployment.
	DeploymentDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "perch_query_deployment_duration_seconds",
			Help:    "Snippet bundle deployment latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"server"},
	)
	// EnginesRegistered tracks engines currently held by the registry.
	EnginesRegistered = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "perch_query_engines_registered",
			Help: "Execution engines currently held by the query registry",
		},
	)
	// EngineEvictions counts engines removed by the idle sweeper.
	EngineEvictions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "perch_query_engine_evictions_total",
			Help: "Total number of engines evicted after their idle budget",
		},
	)
	// EnginesBuilt counts coordinator-side engine assemblies by outcome.
	EnginesBuilt = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "perch_query_engines_built_total",
			Help: "Total number of coordinator engine graph builds",
		},
		[]string{"status"},
	)
)
