package astar

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/Benny93/cegar-go/internal/arg"
	"github.com/Benny93/cegar-go/internal/cegar"
	"github.com/Benny93/cegar-go/internal/waitlist"
)

var tracer = otel.Tracer("cegar-go/astar")

// Config selects the strategies of an Abstractor. Zero fields take
// defaults: a single partition, the Full policy, and FirstCex.
type Config[S, A any] struct {
	Projection cegar.Projection[S]
	Policy     Policy[S, A]
	Stop       cegar.StopCriterion[S, A]
	Logger     *slog.Logger
}

// Abstractor explores the ARG best-first by depth plus heuristic. After each
// check it seals the iteration into its history, where the next check takes
// its heuristics from.
type Abstractor[S, A, P any] struct {
	builder cegar.ArgBuilder[S, A, P]
	cfg     Config[S, A]
	logger  *slog.Logger
	history *History[S, A]
	checks  int
}

func NewAbstractor[S, A, P any](builder cegar.ArgBuilder[S, A, P], cfg Config[S, A]) *Abstractor[S, A, P] {
	if cfg.Policy == nil {
		cfg.Policy = Full[S, A]{}
	}
	if cfg.Stop == nil {
		cfg.Stop = cegar.FirstCex[S, A]{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Abstractor[S, A, P]{
		builder: builder,
		cfg:     cfg,
		logger:  logger,
		history: NewHistory[S, A](cfg.Policy.Retain()),
	}
}

func (a *Abstractor[S, A, P]) CreateArg() *arg.ARG[S, A] { return a.builder.CreateArg() }

// History returns the sealed iterations.
func (a *Abstractor[S, A, P]) History() *History[S, A] { return a.history }

func (a *Abstractor[S, A, P]) Check(ctx context.Context, g *arg.ARG[S, A], prec P) (cegar.Outcome, error) {
	a.checks++
	_, span := tracer.Start(ctx, "astar.abstract", trace.WithAttributes(
		attribute.Int("astar.iteration", a.checks),
		attribute.String("astar.policy", a.cfg.Policy.Name()),
	))
	defer span.End()

	if err := cegar.Initialize(g, a.builder, prec); err != nil {
		return cegar.Unsafe, err
	}
	it := newIteration(a.checks, fmt.Sprint(prec), g, a.cfg.Projection)

	s := newSearch(a, g, it, prec)
	s.prepare()
	if err := s.run(); err != nil {
		return cegar.Unsafe, err
	}
	s.assignDistances()

	a.history.Add(it.seal())

	a.logger.Debug("astar iteration finished",
		"iteration", it.index, "policy", a.cfg.Policy.Name(),
		"nodes", g.Size(), "expanded", s.expanded, "targets", len(s.targets))

	if !g.IsSafe() {
		return cegar.Unsafe, nil
	}
	for _, n := range g.Nodes() {
		if !n.IsComplete() && !s.infiniteAbove(n) {
			arg.Violate("abstract", n.ID(), "safe ARG is not explored: node is open")
		}
	}
	return cegar.Safe, nil
}

type entry[S, A any] struct {
	node   *arg.Node[S, A]
	g      int
	weight int
}

func byWeight[S, A any](x, y entry[S, A]) bool {
	if x.weight != y.weight {
		return x.weight < y.weight
	}
	return x.node.IsTarget() && !y.node.IsTarget()
}

// search is the state of one A* exploration.
type search[S, A, P any] struct {
	a        *Abstractor[S, A, P]
	g        *arg.ARG[S, A]
	it       *Iteration[S, A]
	prec     P
	reached  *cegar.Reached[S, A]
	wl       *waitlist.Priority[entry[S, A]]
	best     map[arg.NodeID]int
	parents  arg.Parents
	targets  []*arg.Node[S, A]
	expanded int
}

func newSearch[S, A, P any](a *Abstractor[S, A, P], g *arg.ARG[S, A], it *Iteration[S, A], prec P) *search[S, A, P] {
	return &search[S, A, P]{
		a:       a,
		g:       g,
		it:      it,
		prec:    prec,
		reached: cegar.NewReached[S, A](a.cfg.Projection),
		wl:      waitlist.New(byWeight[S, A]),
		best:    make(map[arg.NodeID]int),
		parents: make(arg.Parents),
	}
}

// estimate gives n a heuristic once per iteration. Targets are 0 steps
// from a target.
func (s *search[S, A, P]) estimate(n *arg.Node[S, A]) *Node[S, A] {
	o := s.it.overlay(n)
	if o.heuristic.IsKnown() {
		return o
	}
	if n.IsTarget() {
		o.heuristic = Finite(0)
		return o
	}
	var parent *Node[S, A]
	if p := n.Parent(); p != nil {
		parent = s.estimate(p)
	}
	o.heuristic, o.provider = s.a.cfg.Policy.Estimate(s.a.history, n, parent)
	return o
}

// prepare estimates every node left over from earlier iterations, drops
// covering edges whose heuristics are out of order, and seeds the waitlist
// with the roots.
func (s *search[S, A, P]) prepare() {
	nodes := s.g.Nodes()
	for _, n := range nodes {
		s.estimate(n)
	}
	for _, n := range nodes {
		if c := n.CoveringNode(); c != nil && !mayCover(s.it.overlay(n), s.it.overlay(c)) {
			n.UnsetCovering()
		}
	}
	s.reached.Add(nodes...)
	for _, r := range s.g.InitNodes() {
		s.push(r, arg.NoNode, 0)
	}
}

func (s *search[S, A, P]) push(n *arg.Node[S, A], from arg.NodeID, g int) {
	o := s.estimate(n)
	if o.heuristic.IsInfinite() {
		return
	}
	if b, seen := s.best[n.ID()]; seen && b <= g {
		return
	}
	s.best[n.ID()] = g
	s.parents[n.ID()] = from
	s.wl.Push(entry[S, A]{node: n, g: g, weight: o.Weight(g).Value()})
}

func (s *search[S, A, P]) run() error {
	stop := s.a.cfg.Stop
	for !s.wl.Empty() {
		e, _ := s.wl.Pop()
		n := e.node
		if e.g > s.best[n.ID()] || !s.g.Contains(n) {
			continue
		}
		if excludedAbove(n) || !n.IsFeasible() {
			continue
		}
		if n.IsTarget() {
			if n.IsCovered() {
				continue
			}
			s.targets = append(s.targets, n)
			if stop.CanStop(s.g, []*arg.Node[S, A]{n}) {
				return nil
			}
			continue
		}

		if !n.IsExpanded() && n.IsLeaf() && !n.IsCovered() {
			s.close(n)
		}
		if c := n.CoveringNode(); c != nil {
			s.push(c, n.ID(), e.g)
			continue
		}

		if !n.IsExpanded() {
			succs, err := s.a.builder.Expand(n, s.prec)
			if err != nil {
				return fmt.Errorf("expanding node #%d: %w", n.ID(), err)
			}
			s.g.MarkExpanded(n)
			s.expanded++
			s.reached.Add(succs...)
		}
		for _, c := range n.Children() {
			s.push(c, n.ID(), e.g+1)
		}
	}
	return nil
}

// close covers n with the first candidate the graph accepts whose
// heuristic is not below n's.
func (s *search[S, A, P]) close(n *arg.Node[S, A]) {
	on := s.it.overlay(n)
	for _, c := range s.reached.Candidates(n) {
		if c == n || !s.g.Contains(c) || !s.g.MayCover(n, c) {
			continue
		}
		if mayCover(on, s.estimate(c)) {
			s.g.Cover(n, c)
			return
		}
	}
}

// assignDistances records what the search proved. The first target found
// fixes exact distances along its search path; nodes from which no open
// node is reachable get their graph distance, or Infinite; nodes whose
// heuristic is infinite stay infinite.
func (s *search[S, A, P]) assignDistances() {
	if len(s.targets) > 0 {
		s.g.WalkUpParents(s.targets[0], 0, s.parents, func(n *arg.Node[S, A], d int) bool {
			if o := s.it.overlay(n); !o.distance.IsKnown() {
				o.SetDistance(Finite(d))
			}
			return false
		})
	}

	nodes := s.g.Nodes()
	var open []*arg.Node[S, A]
	for _, n := range nodes {
		if !n.IsExcluded() && !n.IsExpanded() && !n.IsTarget() && !s.infiniteAbove(n) {
			open = append(open, n)
		}
	}
	pending := make(map[arg.NodeID]bool)
	if len(open) > 0 {
		for id := range s.g.WalkReverseSubtree(open, nil) {
			pending[id] = true
		}
	}
	dist := s.g.Distances()

	for _, n := range nodes {
		o := s.it.overlay(n)
		switch {
		case o.distance.IsKnown() || excludedAbove(n):
		case s.infiniteAbove(n):
			o.SetDistance(Infinite())
		case !pending[n.ID()]:
			if d, ok := dist[n.ID()]; ok {
				o.SetDistance(Finite(d))
			} else {
				o.SetDistance(Infinite())
			}
		}
	}
}

// infiniteAbove reports whether n or an ancestor has an infinite heuristic.
func (s *search[S, A, P]) infiniteAbove(n *arg.Node[S, A]) bool {
	for _, m := range n.Ancestors() {
		if o := s.it.nodes[m.ID()]; o != nil && o.heuristic.IsInfinite() {
			return true
		}
	}
	return false
}

// excludedAbove reports whether a proper ancestor of n is excluded.
func excludedAbove[S, A any](n *arg.Node[S, A]) bool {
	p := n.Parent()
	return p != nil && p.IsExcluded()
}
