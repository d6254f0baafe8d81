package arg

import (
	"reflect"

	"github.com/google/go-cmp/cmp"
)

// Trace is a path from a root to a node made of real tree edges. Covering
// steps on the way are folded away: when the path passes from a covered node
// to its covering node, the covering node takes the covered node's place.
// Node(i) is always the source of Edge(i); Node(i+1) is its target or the
// node covering that target.
type Trace[S, A any] struct {
	nodes []*Node[S, A]
	edges []Edge[S, A]
}

// StateTrace is the flat form of a trace handed to feasibility checks.
type StateTrace[S, A any] struct {
	States  []S
	Actions []A
}

// TraceTo builds the trace from the closest root to n. Closeness counts tree
// edges; covering edges are free.
func TraceTo[S, A any](n *Node[S, A]) *Trace[S, A] {
	g := n.g
	g.mustOwn("trace", n)

	var init *Node[S, A]
	parents := g.WalkReverseSubtree([]*Node[S, A]{n}, func(m *Node[S, A], _ int) bool {
		if init == nil && m.IsInit() {
			init = m
		}
		return init != nil
	})
	if init == nil {
		Violate("trace", n.id, "no root reaches the node")
	}

	t := &Trace[S, A]{nodes: []*Node[S, A]{init}}
	for running := init; running != n; {
		next := g.nodes[parents[running.id]]
		if next == nil {
			Violate("trace", running.id, "walk left the node without a successor on the path")
		}
		if running.covering == next.id {
			t.nodes[len(t.nodes)-1] = next
		} else {
			edge, _ := next.InEdge()
			t.edges = append(t.edges, edge)
			t.nodes = append(t.nodes, next)
		}
		running = next
	}
	return t
}

// Len returns the number of edges.
func (t *Trace[S, A]) Len() int { return len(t.edges) }

func (t *Trace[S, A]) Node(i int) *Node[S, A] { return t.nodes[i] }

func (t *Trace[S, A]) Edge(i int) Edge[S, A] { return t.edges[i] }

// Nodes returns the nodes; there is one more node than edges.
func (t *Trace[S, A]) Nodes() []*Node[S, A] { return t.nodes }

func (t *Trace[S, A]) Edges() []Edge[S, A] { return t.edges }

// Last returns the node the trace leads to.
func (t *Trace[S, A]) Last() *Node[S, A] { return t.nodes[len(t.nodes)-1] }

// ToTrace flattens the trace into its state and action sequences.
func (t *Trace[S, A]) ToTrace() StateTrace[S, A] {
	st := StateTrace[S, A]{
		States:  make([]S, len(t.nodes)),
		Actions: make([]A, len(t.edges)),
	}
	for i, n := range t.nodes {
		st.States[i] = n.state
	}
	for i, e := range t.edges {
		st.Actions[i] = e.Action
	}
	return st
}

// Equal reports whether both traces visit equal state sequences. Actions are
// not compared.
func (t *Trace[S, A]) Equal(o *Trace[S, A]) bool {
	if t == nil || o == nil {
		return t == o
	}
	return cmp.Equal(t.ToTrace().States, o.ToTrace().States, cmp.Exporter(func(reflect.Type) bool { return true }))
}
