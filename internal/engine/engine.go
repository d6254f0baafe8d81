// Package engine runs checks of explicit models end to end: it builds the
// abstractor the configuration asks for, runs the CEGAR loop, and records
// each run in the history store.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Benny93/cegar-go/internal/astar"
	"github.com/Benny93/cegar-go/internal/cegar"
	"github.com/Benny93/cegar-go/internal/config"
	"github.com/Benny93/cegar-go/internal/explicit"
	"github.com/Benny93/cegar-go/internal/storage"
)

const outcomeError = "error"

type (
	abstractor = cegar.Abstractor[explicit.State, *explicit.Edge, explicit.Prec]
	option     = cegar.Option[explicit.State, *explicit.Edge, explicit.Prec]
)

// Engine checks models under one configuration.
type Engine struct {
	cfg    config.Config
	store  storage.StorageBackend
	logger *slog.Logger
	argOut io.Writer
}

// Option configures an Engine.
type Option func(*Engine)

// WithStore records runs in s. Without it runs are kept in memory.
func WithStore(s storage.StorageBackend) Option {
	return func(e *Engine) { e.store = s }
}

func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithARGOutput prints the ARG of every iteration to w.
func WithARGOutput(w io.Writer) Option {
	return func(e *Engine) { e.argOut = w }
}

// New validates cfg and returns an engine for it.
func New(cfg config.Config, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	e := &Engine{cfg: cfg}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	if e.store == nil {
		e.store = storage.NewMemoryBackend()
	}
	return e, nil
}

func (e *Engine) Config() config.Config { return e.cfg }

func (e *Engine) Store() storage.StorageBackend { return e.store }

// Check loads the model at path, checks it, and records the run. A model
// that cannot be loaded or checked is recorded with outcome "error" and
// the error is returned together with the record.
func (e *Engine) Check(ctx context.Context, path string) (*storage.RunRecord, error) {
	m, err := explicit.Load(path)
	if err != nil {
		rec := &storage.RunRecord{Model: path, ModelPath: path, Config: e.cfg}
		return e.fail(ctx, rec, err)
	}
	return e.CheckModel(ctx, m, path)
}

// CheckModel checks an already loaded model. path is only recorded.
func (e *Engine) CheckModel(ctx context.Context, m *explicit.Model, path string) (*storage.RunRecord, error) {
	rec := &storage.RunRecord{Model: m.Name, ModelPath: path, Config: e.cfg}
	logger := e.logger.With("model", m.Name)

	a, err := e.abstractor(explicit.NewBuilder(m), logger)
	if err != nil {
		return e.fail(ctx, rec, err)
	}

	opts := []option{
		cegar.WithLogger[explicit.State, *explicit.Edge, explicit.Prec](logger),
		cegar.WithMaxIterations[explicit.State, *explicit.Edge, explicit.Prec](e.cfg.MaxIterations),
		cegar.WithObserver[explicit.State, *explicit.Edge, explicit.Prec](func(r cegar.IterationReport) {
			rec.Steps = append(rec.Steps, storage.IterationRecord{
				Index:      r.Index,
				Outcome:    r.Outcome.String(),
				ARGSize:    r.ARGSize,
				Unsafe:     r.Unsafe,
				Depth:      r.Depth,
				Abstractor: r.Abstractor,
				Refiner:    r.Refiner,
			})
		}),
	}
	if e.argOut != nil {
		opts = append(opts, cegar.WithVisualizer[explicit.State, *explicit.Edge, explicit.Prec](
			cegar.TextVisualizer[explicit.State, *explicit.Edge]{W: e.argOut}))
	}
	c := cegar.NewChecker[explicit.State, *explicit.Edge, explicit.Prec](a, explicit.NewRefiner(m, logger), opts...)

	res, err := c.Check(ctx, explicit.NewPrec())
	if err != nil {
		rec.Iterations = len(rec.Steps)
		var ce *cegar.CheckError
		if errors.As(err, &ce) {
			rec.Total = ce.Stats.Total
			rec.Abstractor = ce.Stats.Abstractor
			rec.Refiner = ce.Stats.Refiner
		}
		return e.fail(ctx, rec, err)
	}

	rec.Outcome = res.Outcome.String()
	rec.Iterations = res.Stats.Iterations
	rec.ARGSize = res.ARG.Size()
	rec.Prec = res.Prec.String()
	rec.Total = res.Stats.Total
	rec.Abstractor = res.Stats.Abstractor
	rec.Refiner = res.Stats.Refiner
	if res.Cex != nil {
		for _, n := range res.Cex.Nodes() {
			rec.Cex = append(rec.Cex, n.State().String())
		}
	}

	if err := e.store.SaveRun(ctx, rec); err != nil {
		return rec, fmt.Errorf("saving run: %w", err)
	}
	logger.Info("model checked", "outcome", rec.Outcome, "iterations", rec.Iterations, "run", rec.ShortID())
	return rec, nil
}

// CheckAll checks the models at paths concurrently, at most cfg.Parallel at
// a time. Records come back in the order of paths. Failures of single
// models are recorded and do not stop the others; the returned error joins
// them.
func (e *Engine) CheckAll(ctx context.Context, paths []string) ([]*storage.RunRecord, error) {
	records := make([]*storage.RunRecord, len(paths))
	errs := make([]error, len(paths))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Parallel)
	for i, path := range paths {
		g.Go(func() error {
			rec, err := e.Check(ctx, path)
			records[i], errs[i] = rec, err
			// Only cancellation stops the group
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return records, err
	}
	return records, errors.Join(errs...)
}

// abstractor builds the abstractor the configuration names.
func (e *Engine) abstractor(b *explicit.Builder, logger *slog.Logger) (abstractor, error) {
	stop, ok := cegar.StopByName[explicit.State, *explicit.Edge](e.cfg.Stop, e.cfg.StopCount)
	if !ok {
		return nil, fmt.Errorf("%w: unknown stop criterion %q", config.ErrInvalidConfig, e.cfg.Stop)
	}

	switch e.cfg.Search {
	case "bfs", "dfs":
		order := cegar.BFS[explicit.State, *explicit.Edge]()
		if e.cfg.Search == "dfs" {
			order = cegar.DFS[explicit.State, *explicit.Edge]()
		}
		return cegar.NewBasicAbstractor[explicit.State, *explicit.Edge, explicit.Prec](b, cegar.BasicConfig[explicit.State, *explicit.Edge]{
			Projection: explicit.Projection,
			Order:      order,
			Stop:       stop,
			Logger:     logger,
		}), nil
	case "astar":
		policy, ok := astar.PolicyByName[explicit.State, *explicit.Edge](e.cfg.Policy)
		if !ok {
			return nil, fmt.Errorf("%w: unknown policy %q", config.ErrInvalidConfig, e.cfg.Policy)
		}
		return astar.NewAbstractor[explicit.State, *explicit.Edge, explicit.Prec](b, astar.Config[explicit.State, *explicit.Edge]{
			Projection: explicit.Projection,
			Policy:     policy,
			Stop:       stop,
			Logger:     logger,
		}), nil
	default:
		return nil, fmt.Errorf("%w: unknown search %q", config.ErrInvalidConfig, e.cfg.Search)
	}
}

// fail records a run that ended in err.
func (e *Engine) fail(ctx context.Context, rec *storage.RunRecord, err error) (*storage.RunRecord, error) {
	rec.Outcome = outcomeError
	rec.Error = err.Error()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	// A cancelled check is not worth a history entry
	if ctx.Err() == nil {
		if serr := e.store.SaveRun(ctx, rec); serr != nil {
			e.logger.Error("saving failed run", "model", rec.Model, "error", serr)
		}
	}
	e.logger.Error("check failed", "model", rec.Model, "error", err)
	return rec, err
}
