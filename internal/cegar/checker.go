package cegar

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Benny93/cegar-go/internal/arg"
)

// Statistics summarizes where a check spent its time.
type Statistics struct {
	Total      time.Duration
	Abstractor time.Duration
	Refiner    time.Duration
	Iterations int
}

// Result is the verdict of a check. Cex is set only when Outcome is Unsafe.
type Result[S, A, P any] struct {
	Outcome Outcome
	ARG     *arg.ARG[S, A]
	Cex     *arg.Trace[S, A]
	Prec    P
	Stats   Statistics
}

// IterationReport describes one finished iteration.
type IterationReport struct {
	Index      int
	Outcome    Outcome
	ARGSize    int
	Unsafe     int
	Depth      int
	Abstractor time.Duration
	Refiner    time.Duration
}

// Observer is notified after every iteration.
type Observer func(IterationReport)

type Option[S, A, P any] func(*Checker[S, A, P])

func WithLogger[S, A, P any](l *slog.Logger) Option[S, A, P] {
	return func(c *Checker[S, A, P]) { c.logger = orDiscard(l) }
}

func WithVisualizer[S, A, P any](v Visualizer[S, A]) Option[S, A, P] {
	return func(c *Checker[S, A, P]) {
		if v != nil {
			c.visualizer = v
		}
	}
}

// WithMaxIterations caps the number of iterations; zero means no cap.
func WithMaxIterations[S, A, P any](n int) Option[S, A, P] {
	return func(c *Checker[S, A, P]) { c.maxIterations = n }
}

func WithObserver[S, A, P any](o Observer) Option[S, A, P] {
	return func(c *Checker[S, A, P]) { c.observers = append(c.observers, o) }
}

// Checker runs the CEGAR loop: abstract, and while the abstraction is unsafe
// refine, until the abstraction is safe or the refiner confirms a
// counterexample.
type Checker[S, A, P any] struct {
	abstractor    Abstractor[S, A, P]
	refiner       Refiner[S, A, P]
	logger        *slog.Logger
	visualizer    Visualizer[S, A]
	maxIterations int
	observers     []Observer
}

func NewChecker[S, A, P any](abstractor Abstractor[S, A, P], refiner Refiner[S, A, P], opts ...Option[S, A, P]) *Checker[S, A, P] {
	c := &Checker[S, A, P]{
		abstractor: abstractor,
		refiner:    refiner,
		logger:     orDiscard(nil),
		visualizer: NopVisualizer[S, A]{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Check runs the loop from initPrec. Collaborator failures and cancellation
// come back as *CheckError. An invariant violation panics with the iteration
// it happened in recorded on the *arg.InvariantViolation.
func (c *Checker[S, A, P]) Check(ctx context.Context, initPrec P) (*Result[S, A, P], error) {
	ctx, span := tracer.Start(ctx, "cegar.check")
	defer span.End()

	start := time.Now()
	var stats Statistics
	iteration := 0
	defer func() {
		if r := recover(); r != nil {
			if v, ok := r.(*arg.InvariantViolation); ok {
				v.Iteration = iteration
			}
			panic(r)
		}
	}()

	fail := func(phase Phase, err error) (*Result[S, A, P], error) {
		checkErrors.WithLabelValues(string(phase)).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		stats.Total = time.Since(start)
		c.logger.Error("check failed", "iteration", iteration, "phase", phase, "error", err)
		return nil, &CheckError{Iteration: iteration, Phase: phase, Err: err, Stats: stats}
	}

	g := c.abstractor.CreateArg()
	prec := initPrec
	c.logger.Info("starting check", "precision", fmt.Sprint(prec))

	for {
		if err := ctx.Err(); err != nil {
			return fail(PhaseSetup, err)
		}
		if c.maxIterations > 0 && iteration >= c.maxIterations {
			return fail(PhaseSetup, fmt.Errorf("%w: %d", ErrIterationLimit, c.maxIterations))
		}
		iteration++
		stats.Iterations = iteration
		itCtx, itSpan := tracer.Start(ctx, "cegar.iteration", trace.WithAttributes(attribute.Int("cegar.iteration", iteration)))

		report := IterationReport{Index: iteration}
		t0 := time.Now()
		outcome, err := c.abstractor.Check(itCtx, g, prec)
		report.Abstractor = time.Since(t0)
		stats.Abstractor += report.Abstractor
		phaseDuration.WithLabelValues(string(PhaseAbstraction)).Observe(report.Abstractor.Seconds())
		if err != nil {
			itSpan.End()
			return fail(PhaseAbstraction, err)
		}
		argNodes.Observe(float64(g.Size()))
		report.ARGSize = g.Size()
		report.Unsafe = len(g.UnsafeNodes())
		if g.Size() > 0 {
			report.Depth = g.Depth()
		}
		c.visualizer.Visualize(fmt.Sprintf("iteration %d", iteration), g)
		c.logger.Debug("abstraction done", "iteration", iteration, "outcome", outcome, "nodes", g.Size(), "elapsed", report.Abstractor)

		res := &Result[S, A, P]{Outcome: outcome, ARG: g, Prec: prec}
		if outcome == Unsafe {
			t1 := time.Now()
			rr, err := c.refiner.Refine(itCtx, g, prec)
			report.Refiner = time.Since(t1)
			stats.Refiner += report.Refiner
			phaseDuration.WithLabelValues(string(PhaseRefinement)).Observe(report.Refiner.Seconds())
			if err != nil {
				itSpan.End()
				return fail(PhaseRefinement, err)
			}
			if rr.IsUnsafe() {
				res.Cex = rr.Cex
			} else {
				report.Outcome = Spurious
				prec = rr.Prec
				c.logger.Debug("counterexample refuted", "iteration", iteration, "precision", fmt.Sprint(prec))
			}
		}
		if report.Outcome != Spurious {
			report.Outcome = outcome
		}

		c.notify(report)
		itSpan.SetAttributes(attribute.String("cegar.outcome", report.Outcome.String()))
		itSpan.End()

		if report.Outcome == Spurious {
			continue
		}

		stats.Total = time.Since(start)
		res.Stats = stats
		checksTotal.WithLabelValues(res.Outcome.String()).Inc()
		span.SetAttributes(
			attribute.String("cegar.outcome", res.Outcome.String()),
			attribute.Int("cegar.iterations", iteration),
		)
		c.logger.Info("check finished", "outcome", res.Outcome, "iterations", iteration, "elapsed", stats.Total)
		return res, nil
	}
}

func (c *Checker[S, A, P]) notify(r IterationReport) {
	iterationsTotal.WithLabelValues(r.Outcome.String()).Inc()
	for _, o := range c.observers {
		o(r)
	}
}
