package projection

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	outcomeOK     = "ok"
	outcomeFailed = "failed"
)

// Metrics are the counters the projector reports while running batches.
type Metrics struct {
	LoansProcessed    *prometheus.CounterVec
	SolverIterations  prometheus.Histogram
	SolverUnconverged prometheus.Counter
}

// NewMetrics creates the projector metrics and registers them on reg.
// A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		LoansProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "eir_loans_processed_total",
			Help: "Loans projected, by outcome.",
		}, []string{"outcome"}),
		SolverIterations: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "eir_solver_iterations",
			Help:    "Bisection steps taken to find the effective rate.",
			Buckets: prometheus.LinearBuckets(10, 10, 10),
		}),
		SolverUnconverged: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "eir_solver_unconverged_total",
			Help: "Effective-rate solves that hit the iteration limit.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.LoansProcessed, m.SolverIterations, m.SolverUnconverged)
	}
	return m
}
