package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	runsTotal   *prometheus.CounterVec
	foldsTotal  *prometheus.CounterVec
	foldLatency *prometheus.HistogramVec
	gateTotal   *prometheus.CounterVec
	errorsTotal *prometheus.CounterVec
	latency     *prometheus.HistogramVec
}

// New creates a recorder registered on the default Prometheus registry.
func New() *Recorder {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates a recorder registered on reg.
func NewWithRegistry(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		runsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "metagate_runs_total",
				Help: "Pipeline runs by outcome",
			},
			[]string{"status"},
		),
		foldsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "metagate_folds_total",
				Help: "Walk-forward folds evaluated per model",
			},
			[]string{"model"},
		),
		foldLatency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "metagate_fold_duration_seconds",
				Help:    "Fit and predict time per fold",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"model"},
		),
		gateTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "metagate_gate_decisions_total",
				Help: "Baseline long decisions passed or vetoed by the gate",
			},
			[]string{"model", "decision"},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "metagate_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "metagate_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

func (r *Recorder) RecordRun(status string) {
	r.runsTotal.WithLabelValues(status).Inc()
}

func (r *Recorder) RecordFold(model string, seconds float64) {
	r.foldsTotal.WithLabelValues(model).Inc()
	r.foldLatency.WithLabelValues(model).Observe(seconds)
}

func (r *Recorder) RecordGate(model string, passed, vetoed int) {
	r.gateTotal.WithLabelValues(model, "passed").Add(float64(passed))
	r.gateTotal.WithLabelValues(model, "vetoed").Add(float64(vetoed))
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}
