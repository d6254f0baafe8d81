package cegar

import (
	"context"
	"errors"
	"slices"

	"github.com/Benny93/cegar-go/internal/arg"
)

// loc is a test state: a control location, possibly unreachable.
type loc struct {
	Name   string
	Bottom bool
}

type locDomain struct{}

func (locDomain) IsLeq(a, b loc) bool { return a.Bottom || (!b.Bottom && a.Name == b.Name) }

func (locDomain) IsBottom(s loc) bool { return s.Bottom }

func byName(s loc) any { return s.Name }

// cfa builds a location graph. Edges into "err" become infeasible once the
// precision reaches blockAt; a zero blockAt never blocks them.
type cfa struct {
	init     string
	edges    map[string][]string
	blockAt  int
	failOn   string
	expanded []string
}

var errSolver = errors.New("solver gave up")

func (c *cfa) CreateArg() *arg.ARG[loc, string] { return arg.New[loc, string](locDomain{}) }

func (c *cfa) Init(g *arg.ARG[loc, string], _ int) ([]*arg.Node[loc, string], error) {
	return []*arg.Node[loc, string]{g.CreateInitNode(loc{Name: c.init}, c.init == "err")}, nil
}

func (c *cfa) Expand(n *arg.Node[loc, string], prec int) ([]*arg.Node[loc, string], error) {
	from := n.State().Name
	if from == c.failOn {
		return nil, errSolver
	}
	c.expanded = append(c.expanded, from)
	var out []*arg.Node[loc, string]
	for _, to := range c.edges[from] {
		s := loc{Name: to, Bottom: to == "err" && c.blockAt > 0 && prec >= c.blockAt}
		out = append(out, n.ARG().CreateSuccNode(n, from+"->"+to, s, to == "err"))
	}
	return out, nil
}

// bumpRefiner refutes every counterexample until the precision reaches
// limit, then confirms the first one. A negative limit refutes forever.
type bumpRefiner struct {
	limit int
	calls int
	err   error
}

func (r *bumpRefiner) Refine(_ context.Context, g *arg.ARG[loc, string], prec int) (RefinerResult[loc, string, int], error) {
	r.calls++
	if r.err != nil {
		return RefinerResult[loc, string, int]{}, r.err
	}
	if r.limit >= 0 && prec >= r.limit {
		return RefinerResult[loc, string, int]{Prec: prec, Cex: g.Cexs()[0]}, nil
	}
	g.PruneAll()
	return RefinerResult[loc, string, int]{Prec: prec + 1}, nil
}

func names(nodes []*arg.Node[loc, string]) []string {
	out := make([]string, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, n.State().Name)
	}
	slices.Sort(out)
	return out
}

func newAbstractor(c *cfa, cfg BasicConfig[loc, string]) *BasicAbstractor[loc, string, int] {
	if cfg.Projection == nil {
		cfg.Projection = byName
	}
	return NewBasicAbstractor[loc, string, int](c, cfg)
}
