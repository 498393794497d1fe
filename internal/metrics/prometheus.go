package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Score computation latency, including filter and matrix construction
	computationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "graphscore_computation_seconds",
			Help:    "Score computation duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"status"}, // success, short_circuit, failed
	)

	// Neumann series iterations until the zero step
	propagationIterations = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "graphscore_propagation_iterations",
			Help:    "Number of influence propagation iterations per computation",
			Buckets: []float64{1, 2, 4, 8, 16, 32, 64, 128, 256, 512, 1000},
		},
	)

	// Node count after pinned-subset filtering
	graphNodes = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "graphscore_graph_nodes",
			Help:    "Number of nodes in the scored graph",
			Buckets: prometheus.ExponentialBuckets(8, 2, 12),
		},
	)

	// Distribution of output scores
	scoreValues = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "graphscore_score_value",
			Help:    "Distribution of computed scores",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11),
		},
		[]string{"score"}, // replacement, completeness
	)

	// Errors by engine error code
	errorCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "graphscore_errors_total",
			Help: "Total number of scoring errors by component and code",
		},
		[]string{"component", "code"},
	)

	// Worker terminal outcomes
	workerOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "graphscore_worker_outcomes_total",
			Help: "Total number of isolated workers by terminal state",
		},
		[]string{"state"},
	)

	// Current live workers
	activeWorkers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "graphscore_active_workers",
			Help: "Current number of live scoring workers",
		},
	)
)

// RecordComputation records computation latency for an outcome
func RecordComputation(durationSeconds float64, status string) {
	computationDuration.WithLabelValues(status).Observe(durationSeconds)
}

// RecordPropagation records the iteration count of one propagation
func RecordPropagation(iterations int) {
	propagationIterations.Observe(float64(iterations))
}

// RecordGraphSize records the node count of a scored graph
func RecordGraphSize(nodes int) {
	graphNodes.Observe(float64(nodes))
}

// RecordScores records both output scores
func RecordScores(replacement, completeness float64) {
	scoreValues.WithLabelValues("replacement").Observe(replacement)
	scoreValues.WithLabelValues("completeness").Observe(completeness)
}

// RecordError increments the error counter
func RecordError(component, code string) {
	errorCount.WithLabelValues(component, code).Inc()
}

// RecordWorkerOutcome increments the worker terminal state counter
func RecordWorkerOutcome(state string) {
	workerOutcomes.WithLabelValues(state).Inc()
}

// IncrementActiveWorkers increments the live worker gauge
func IncrementActiveWorkers() {
	activeWorkers.Inc()
}

// DecrementActiveWorkers decrements the live worker gauge
func DecrementActiveWorkers() {
	activeWorkers.Dec()
}

// GetMetricsHandler returns the HTTP handler for the /metrics endpoint
func GetMetricsHandler() http.Handler {
	return promhttp.Handler()
}
