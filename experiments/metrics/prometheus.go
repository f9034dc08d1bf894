package metrics

import (
	"mcot/tree"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusCollector records rounds like Collector and exports them on a registry.
type PrometheusCollector struct {
	collector

	rounds        *prometheus.CounterVec
	roundDuration *prometheus.HistogramVec
	passes        prometheus.Histogram
	refined       prometheus.Counter
	merged        prometheus.Counter
	resizes       prometheus.Counter
	nans          prometheus.Counter
	nodes         prometheus.Gauge
	live          prometheus.Gauge
	leaves        prometheus.Gauge
	depth         prometheus.Gauge
	capacity      prometheus.Gauge
}

func NewPrometheusCollector(reg prometheus.Registerer) *PrometheusCollector {
	factory := promauto.With(reg)
	return &PrometheusCollector{
		rounds: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "mcot_rounds_total",
			Help: "Completed rounds by phase",
		}, []string{"phase"}),
		roundDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "mcot_round_duration_seconds",
			Help:    "Round duration in seconds by phase",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 14), // 1ms to ~8s
		}, []string{"phase"}),
		passes: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "mcot_evaluation_passes",
			Help:    "Evaluation passes per round until stable",
			Buckets: []float64{1, 2, 3, 5, 10, 20, 50},
		}),
		refined: factory.NewCounter(prometheus.CounterOpts{
			Name: "mcot_refined_slots_total",
			Help: "Leaf slots refined into internal nodes",
		}),
		merged: factory.NewCounter(prometheus.CounterOpts{
			Name: "mcot_merged_nodes_total",
			Help: "Internal nodes merged back into their parent slot",
		}),
		resizes: factory.NewCounter(prometheus.CounterOpts{
			Name: "mcot_arena_resizes_total",
			Help: "Rounds in which the arena grew",
		}),
		nans: factory.NewCounter(prometheus.CounterOpts{
			Name: "mcot_nan_rewards_total",
			Help: "NaN instant rewards replaced with zero",
		}),
		nodes: factory.NewGauge(prometheus.GaugeOpts{
			Name: "mcot_tree_nodes",
			Help: "Allocated internal nodes, orphans included",
		}),
		live: factory.NewGauge(prometheus.GaugeOpts{
			Name: "mcot_tree_live_nodes",
			Help: "Internal nodes reachable from the root",
		}),
		leaves: factory.NewGauge(prometheus.GaugeOpts{
			Name: "mcot_tree_leaves",
			Help: "Leaf slots of live nodes",
		}),
		depth: factory.NewGauge(prometheus.GaugeOpts{
			Name: "mcot_tree_depth",
			Help: "Depth of the deepest leaf",
		}),
		capacity: factory.NewGauge(prometheus.GaugeOpts{
			Name: "mcot_tree_capacity",
			Help: "Arena capacity in nodes",
		}),
	}
}

func (m *PrometheusCollector) Complete(stats tree.Stats) RoundMetric {
	metric := m.collector.Complete(stats)

	m.rounds.WithLabelValues(metric.Phase).Inc()
	m.roundDuration.WithLabelValues(metric.Phase).Observe(metric.Duration.Seconds())
	m.passes.Observe(float64(metric.Passes))
	m.refined.Add(float64(metric.Refined))
	m.merged.Add(float64(metric.Merged))
	m.nans.Add(float64(metric.NaNs))
	if metric.Resized {
		m.resizes.Inc()
	}
	m.nodes.Set(float64(stats.Size))
	m.live.Set(float64(stats.Live))
	m.leaves.Set(float64(stats.Leaves))
	m.depth.Set(float64(stats.MaxDepth))
	m.capacity.Set(float64(stats.Capacity))
	return metric
}
