package cegar

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("cegar-go/cegar")

var (
	// checksTotal counts finished checks by outcome
	checksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cegar_checks_total",
		Help: "Total finished CEGAR checks by outcome",
	}, []string{"outcome"})

	// checkErrors counts checks that ended in a collaborator failure
	checkErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cegar_check_errors_total",
		Help: "Total CEGAR checks aborted by an error, by phase",
	}, []string{"phase"})

	iterationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cegar_iterations_total",
		Help: "Total CEGAR iterations by outcome",
	}, []string{"outcome"})

	phaseDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "cegar_phase_duration_seconds",
		Help:    "Duration of abstraction and refinement phases in seconds",
		Buckets: prometheus.ExponentialBuckets(0.0001, 4, 10), // 0.1ms to ~26s
	}, []string{"phase"})

	argNodes = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "cegar_arg_nodes",
		Help:    "Number of ARG nodes at the end of an abstraction",
		Buckets: prometheus.ExponentialBuckets(1, 4, 10),
	})
)
