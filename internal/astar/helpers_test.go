package astar

import (
	"context"
	"fmt"

	"github.com/Benny93/cegar-go/internal/arg"
	"github.com/Benny93/cegar-go/internal/cegar"
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

// cfa builds a location graph whose edges into "err" become infeasible once
// the precision reaches blockAt (never when blockAt is zero). Expansions are
// recorded per precision.
type cfa struct {
	init     string
	edges    map[string][]string
	blockAt  int
	expanded map[int][]string
}

func (c *cfa) CreateArg() *arg.ARG[loc, string] { return arg.New[loc, string](locDomain{}) }

func (c *cfa) Init(g *arg.ARG[loc, string], _ int) ([]*arg.Node[loc, string], error) {
	return []*arg.Node[loc, string]{g.CreateInitNode(loc{Name: c.init}, c.init == "err")}, nil
}

func (c *cfa) Expand(n *arg.Node[loc, string], prec int) ([]*arg.Node[loc, string], error) {
	if c.expanded == nil {
		c.expanded = make(map[int][]string)
	}
	from := n.State().Name
	c.expanded[prec] = append(c.expanded[prec], from)
	var out []*arg.Node[loc, string]
	for _, to := range c.edges[from] {
		s := loc{Name: to, Bottom: to == "err" && c.blockAt > 0 && prec >= c.blockAt}
		out = append(out, n.ARG().CreateSuccNode(n, from+"->"+to, s, to == "err"))
	}
	return out, nil
}

// bumpRefiner refutes every counterexample until the precision reaches
// limit; a negative limit refutes forever.
type bumpRefiner struct {
	limit int
}

func (r *bumpRefiner) Refine(_ context.Context, g *arg.ARG[loc, string], prec int) (cegar.RefinerResult[loc, string, int], error) {
	if r.limit >= 0 && prec >= r.limit {
		return cegar.RefinerResult[loc, string, int]{Prec: prec, Cex: g.Cexs()[0]}, nil
	}
	g.PruneAll()
	return cegar.RefinerResult[loc, string, int]{Prec: prec + 1}, nil
}

func policies() []Policy[loc, string] {
	return []Policy[loc, string]{Full[loc, string]{}, Decreasing[loc, string]{}, OnDemand[loc, string]{}}
}

func newAbstractor(c *cfa, p Policy[loc, string], stop cegar.StopCriterion[loc, string]) *Abstractor[loc, string, int] {
	return NewAbstractor[loc, string, int](c, Config[loc, string]{Projection: byName, Policy: p, Stop: stop})
}

func indexOf(xs []string, x string) int {
	for i, v := range xs {
		if v == x {
			return i
		}
	}
	return -1
}

// cell is a test state with a value; V == -1 stands for any value, so a
// cell with -1 strictly subsumes every other cell at its location.
type cell struct {
	Loc string
	V   int
}

type cellDomain struct{}

func (cellDomain) IsLeq(a, b cell) bool { return a.Loc == b.Loc && (b.V == -1 || a.V == b.V) }

func (cellDomain) IsBottom(cell) bool { return false }

func byLoc(s cell) any { return s.Loc }

// cellGraph is a fixed transition relation over cells; cells at "err" are
// targets. The precision is ignored.
type cellGraph struct {
	init  cell
	edges map[cell][]cell
}

func (c *cellGraph) CreateArg() *arg.ARG[cell, string] { return arg.New[cell, string](cellDomain{}) }

func (c *cellGraph) Init(g *arg.ARG[cell, string], _ int) ([]*arg.Node[cell, string], error) {
	return []*arg.Node[cell, string]{g.CreateInitNode(c.init, c.init.Loc == "err")}, nil
}

func (c *cellGraph) Expand(n *arg.Node[cell, string], _ int) ([]*arg.Node[cell, string], error) {
	var out []*arg.Node[cell, string]
	for _, to := range c.edges[n.State()] {
		action := fmt.Sprintf("%s->%s", n.State().Loc, to.Loc)
		out = append(out, n.ARG().CreateSuccNode(n, action, to, to.Loc == "err"))
	}
	return out, nil
}

// cellRefiner refutes counterexamples until the precision reaches limit.
type cellRefiner struct {
	limit int
}

func (r *cellRefiner) Refine(_ context.Context, g *arg.ARG[cell, string], prec int) (cegar.RefinerResult[cell, string, int], error) {
	if prec >= r.limit {
		return cegar.RefinerResult[cell, string, int]{Prec: prec, Cex: g.Cexs()[0]}, nil
	}
	g.PruneAll()
	return cegar.RefinerResult[cell, string, int]{Prec: prec + 1}, nil
}

func cellPolicies() []Policy[cell, string] {
	return []Policy[cell, string]{Full[cell, string]{}, Decreasing[cell, string]{}, OnDemand[cell, string]{}}
}
