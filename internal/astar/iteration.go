package astar

import (
	"slices"

	"github.com/Benny93/cegar-go/internal/arg"
	"github.com/Benny93/cegar-go/internal/cegar"
)

// Iteration is the overlay of one CEGAR iteration. While the abstractor
// runs it tracks the live ARG; once sealed it owns a copy of the graph as
// it was at the end of the iteration.
type Iteration[S, A any] struct {
	index      int
	prec       string
	g          *arg.ARG[S, A]
	project    cegar.Projection[S]
	nodes      map[arg.NodeID]*Node[S, A]
	partitions map[any][]arg.NodeID
}

func newIteration[S, A any](index int, prec string, g *arg.ARG[S, A], project cegar.Projection[S]) *Iteration[S, A] {
	if project == nil {
		project = func(S) any { return struct{}{} }
	}
	return &Iteration[S, A]{
		index:   index,
		prec:    prec,
		g:       g,
		project: project,
		nodes:   make(map[arg.NodeID]*Node[S, A]),
	}
}

func (it *Iteration[S, A]) Index() int { return it.index }

// Prec is the printed precision the iteration ran under.
func (it *Iteration[S, A]) Prec() string { return it.prec }

func (it *Iteration[S, A]) ARG() *arg.ARG[S, A] { return it.g }

// Node returns the overlay of the ARG node with the given id, or nil.
func (it *Iteration[S, A]) Node(id arg.NodeID) *Node[S, A] { return it.nodes[id] }

// Nodes returns the overlay nodes in id order.
func (it *Iteration[S, A]) Nodes() []*Node[S, A] {
	out := make([]*Node[S, A], 0, len(it.nodes))
	for _, n := range it.nodes {
		out = append(out, n)
	}
	slices.SortFunc(out, func(a, b *Node[S, A]) int { return int(a.id - b.id) })
	return out
}

// overlay returns the overlay of n, creating it on first use.
func (it *Iteration[S, A]) overlay(n *arg.Node[S, A]) *Node[S, A] {
	o, ok := it.nodes[n.ID()]
	if !ok {
		o = &Node[S, A]{id: n.ID(), target: n.IsTarget() && n.IsFeasible()}
		it.nodes[n.ID()] = o
	}
	return o
}

// Candidates returns the overlay nodes whose states subsume s within the
// partition of s, in graph order.
func (it *Iteration[S, A]) Candidates(s S) []*Node[S, A] {
	var out []*Node[S, A]
	for _, id := range it.partitions[it.project(s)] {
		if it.g.Domain().IsLeq(s, it.g.Node(id).State()) {
			out = append(out, it.nodes[id])
		}
	}
	return out
}

// seal freezes the iteration: the graph is copied and every live node gets
// an overlay. Providers are dropped so that retired iterations can be
// released.
func (it *Iteration[S, A]) seal() *Iteration[S, A] {
	snap := &Iteration[S, A]{
		index:      it.index,
		prec:       it.prec,
		g:          it.g.Copy(),
		project:    it.project,
		nodes:      make(map[arg.NodeID]*Node[S, A], it.g.Size()),
		partitions: make(map[any][]arg.NodeID),
	}
	for _, n := range snap.g.Nodes() {
		o := *it.overlay(n)
		o.provider = nil
		snap.nodes[n.ID()] = &o
		k := it.project(n.State())
		snap.partitions[k] = append(snap.partitions[k], n.ID())
	}
	return snap
}

// History holds sealed iterations, oldest first. A positive limit keeps only
// the most recent ones.
type History[S, A any] struct {
	limit      int
	iterations []*Iteration[S, A]
}

func NewHistory[S, A any](limit int) *History[S, A] {
	return &History[S, A]{limit: limit}
}

func (h *History[S, A]) Add(it *Iteration[S, A]) {
	h.iterations = append(h.iterations, it)
	if h.limit > 0 && len(h.iterations) > h.limit {
		drop := len(h.iterations) - h.limit
		clear(h.iterations[:drop])
		h.iterations = h.iterations[drop:]
	}
}

// Last returns the most recent iteration, or nil.
func (h *History[S, A]) Last() *Iteration[S, A] {
	if len(h.iterations) == 0 {
		return nil
	}
	return h.iterations[len(h.iterations)-1]
}

// All returns the retained iterations, oldest first.
func (h *History[S, A]) All() []*Iteration[S, A] { return slices.Clone(h.iterations) }

func (h *History[S, A]) Len() int { return len(h.iterations) }
