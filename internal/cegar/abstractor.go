package cegar

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Benny93/cegar-go/internal/arg"
	"github.com/Benny93/cegar-go/internal/waitlist"
)

// Reached groups nodes by projection key in the order they were added.
type Reached[S, A any] struct {
	project    Projection[S]
	partitions map[any][]*arg.Node[S, A]
}

// NewReached returns an empty set. A nil projection puts every node in one
// partition.
func NewReached[S, A any](project Projection[S]) *Reached[S, A] {
	if project == nil {
		project = func(S) any { return struct{}{} }
	}
	return &Reached[S, A]{project: project, partitions: make(map[any][]*arg.Node[S, A])}
}

func (r *Reached[S, A]) Add(nodes ...*arg.Node[S, A]) {
	for _, n := range nodes {
		k := r.project(n.State())
		r.partitions[k] = append(r.partitions[k], n)
	}
}

// Candidates returns the nodes sharing n's partition.
func (r *Reached[S, A]) Candidates(n *arg.Node[S, A]) []*arg.Node[S, A] {
	return r.partitions[r.project(n.State())]
}

// Close covers n with the first candidate allowed to cover it. Only leaves
// are closed. It reports whether n ended up covered.
func Close[S, A any](g *arg.ARG[S, A], n *arg.Node[S, A], candidates []*arg.Node[S, A]) bool {
	if !n.IsLeaf() {
		return n.IsCovered()
	}
	for _, c := range candidates {
		if c == n || !g.Contains(c) {
			continue
		}
		if g.MayCover(n, c) {
			g.Cover(n, c)
			return true
		}
	}
	return false
}

// BasicConfig selects the strategies of a BasicAbstractor. Zero fields take
// defaults: a single partition, BFS order, and FirstCex.
type BasicConfig[S, A any] struct {
	Projection Projection[S]
	Order      waitlist.Less[*arg.Node[S, A]]
	Stop       StopCriterion[S, A]
	Logger     *slog.Logger
}

// BasicAbstractor explores the graph in waitlist order, closing each node
// against earlier nodes of its partition before expanding it.
type BasicAbstractor[S, A, P any] struct {
	builder ArgBuilder[S, A, P]
	cfg     BasicConfig[S, A]
	logger  *slog.Logger
}

func NewBasicAbstractor[S, A, P any](builder ArgBuilder[S, A, P], cfg BasicConfig[S, A]) *BasicAbstractor[S, A, P] {
	if cfg.Order == nil {
		cfg.Order = BFS[S, A]()
	}
	if cfg.Stop == nil {
		cfg.Stop = FirstCex[S, A]{}
	}
	return &BasicAbstractor[S, A, P]{builder: builder, cfg: cfg, logger: orDiscard(cfg.Logger)}
}

func (a *BasicAbstractor[S, A, P]) CreateArg() *arg.ARG[S, A] { return a.builder.CreateArg() }

func (a *BasicAbstractor[S, A, P]) Check(ctx context.Context, g *arg.ARG[S, A], prec P) (Outcome, error) {
	_, span := tracer.Start(ctx, "cegar.abstract")
	defer span.End()

	if err := Initialize(g, a.builder, prec); err != nil {
		return Unsafe, err
	}

	reached := NewReached[S, A](a.cfg.Projection)
	reached.Add(g.Nodes()...)
	wl := waitlist.New(a.cfg.Order)
	wl.PushAll(g.IncompleteNodes())

	expanded := 0
	if !a.cfg.Stop.CanStop(g, nil) {
		for !wl.Empty() {
			n, _ := wl.Pop()
			if !g.Contains(n) || n.IsComplete() {
				continue
			}
			Close(g, n, reached.Candidates(n))

			var succs []*arg.Node[S, A]
			if !n.IsSubsumed() && !n.IsTarget() {
				var err error
				if succs, err = a.builder.Expand(n, prec); err != nil {
					return Unsafe, fmt.Errorf("expanding node #%d: %w", n.ID(), err)
				}
				g.MarkExpanded(n)
				expanded++
				reached.Add(succs...)
				wl.PushAll(succs)
			}
			if a.cfg.Stop.CanStop(g, succs) {
				break
			}
		}
	}

	a.logger.Debug("abstraction finished", "nodes", g.Size(), "expanded", expanded, "waiting", wl.Len())
	if g.IsSafe() {
		if !g.IsComplete() {
			arg.Violate("abstract", arg.NoNode, "safe ARG is incomplete")
		}
		return Safe, nil
	}
	return Unsafe, nil
}

// Initialize asks the builder for roots unless g already has them.
func Initialize[S, A, P any](g *arg.ARG[S, A], builder ArgBuilder[S, A, P], prec P) error {
	if g.IsInitialized() {
		return nil
	}
	if _, err := builder.Init(g, prec); err != nil {
		return fmt.Errorf("initializing ARG: %w", err)
	}
	g.MarkInitialized()
	return nil
}

func orDiscard(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.New(slog.DiscardHandler)
	}
	return l
}
