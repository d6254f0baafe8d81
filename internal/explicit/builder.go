package explicit

import "github.com/Benny93/cegar-go/internal/arg"

// Graph is the ARG type of the explicit domain.
type Graph = arg.ARG[State, *Edge]

// Builder computes initial states and abstract successors of a model.
type Builder struct {
	model *Model
}

func NewBuilder(m *Model) *Builder {
	return &Builder{model: m}
}

func (b *Builder) CreateArg() *Graph { return arg.New[State, *Edge](Domain{}) }

// Init adds the initial state unless an existing root already subsumes it.
func (b *Builder) Init(g *Graph, prec Prec) ([]*arg.Node[State, *Edge], error) {
	s := State{Loc: b.model.Init, Vals: make(map[string]int)}
	for _, v := range b.model.Vars {
		if prec.Tracks(v.Name) {
			s.Vals[v.Name] = v.Init
		}
	}
	for _, r := range g.InitNodes() {
		if g.Domain().IsLeq(s, r.State()) {
			return nil, nil
		}
	}
	return []*arg.Node[State, *Edge]{g.CreateInitNode(s, s.Loc == b.model.Error)}, nil
}

// Expand creates one successor per outgoing edge of n's location. An edge
// whose guard is false for a tracked value yields a bottom successor.
func (b *Builder) Expand(n *arg.Node[State, *Edge], prec Prec) ([]*arg.Node[State, *Edge], error) {
	g := n.ARG()
	var out []*arg.Node[State, *Edge]
	for _, e := range b.model.Outgoing(n.State().Loc) {
		out = append(out, g.CreateSuccNode(n, e, b.post(n.State(), e, prec), e.To == b.model.Error))
	}
	return out, nil
}

func (b *Builder) post(s State, e *Edge, prec Prec) State {
	vals := make(map[string]int, len(s.Vals))
	for k, v := range s.Vals {
		if prec.Tracks(k) {
			vals[k] = v
		}
	}
	if gd := e.Guard; gd != nil {
		if v, ok := vals[gd.Var]; ok && !gd.holds(v) {
			return State{Loc: e.To, Bottom: true}
		}
	}
	if u := e.Update; u != nil && prec.Tracks(u.Var) {
		decl, _ := b.model.Var(u.Var)
		if v, ok := vals[u.Var]; ok || u.Op == OpSet {
			vals[u.Var] = u.apply(decl, v)
		}
	}
	return State{Loc: e.To, Vals: vals}
}
