package arg

import (
	"fmt"
	"slices"
)

// NodeID identifies a node within one ARG. IDs are handed out by the graph's
// own counter and are never reused, copies included.
type NodeID int

// Domain is the capability an abstract domain exposes to the graph.
type Domain[S any] interface {
	// IsLeq reports whether a is subsumed by b (a ⊑ b).
	IsLeq(a, b S) bool

	// IsBottom reports whether s denotes no concrete state.
	IsBottom(s S) bool
}

// Node is a vertex of the reachability graph.
//
// Relations to other nodes are stored as ids and resolved through the owning
// graph, so a node that has been pruned stops resolving its neighbours.
type Node[S, A any] struct {
	g *ARG[S, A]

	id       NodeID
	depth    int
	target   bool
	state    S
	expanded bool

	// parent and action describe the single in-edge; parent is NoNode for roots.
	parent NodeID
	action A

	children []NodeID
	covering NodeID
	covered  []NodeID
}

// Edge is a directed tree edge labelled with an action.
type Edge[S, A any] struct {
	Source *Node[S, A]
	Target *Node[S, A]
	Action A
}

// ID returns the node's identifier.
func (n *Node[S, A]) ID() NodeID { return n.id }

// ARG returns the graph the node belongs to.
func (n *Node[S, A]) ARG() *ARG[S, A] { return n.g }

// Depth is 0 for roots and parent depth + 1 otherwise.
func (n *Node[S, A]) Depth() int { return n.depth }

// IsTarget reports whether the node's state was a potential error at creation.
func (n *Node[S, A]) IsTarget() bool { return n.target }

// State returns the abstract state.
func (n *Node[S, A]) State() S { return n.state }

// SetState replaces the abstract state in place.
func (n *Node[S, A]) SetState(s S) { n.state = s }

// IsExpanded reports whether every successor under the current precision exists.
func (n *Node[S, A]) IsExpanded() bool { return n.expanded }

// IsInit reports whether the node is a root.
func (n *Node[S, A]) IsInit() bool { return n.parent == NoNode }

// Parent returns the source of the in-edge, or nil for roots.
func (n *Node[S, A]) Parent() *Node[S, A] {
	if n.parent == NoNode {
		return nil
	}
	return n.g.nodes[n.parent]
}

// InEdge returns the node's in-edge if it has one.
func (n *Node[S, A]) InEdge() (Edge[S, A], bool) {
	p := n.Parent()
	if p == nil {
		return Edge[S, A]{}, false
	}
	return Edge[S, A]{Source: p, Target: n, Action: n.action}, true
}

// OutEdges returns the outgoing edges in creation order.
func (n *Node[S, A]) OutEdges() []Edge[S, A] {
	edges := make([]Edge[S, A], 0, len(n.children))
	for _, c := range n.Children() {
		edges = append(edges, Edge[S, A]{Source: n, Target: c, Action: c.action})
	}
	return edges
}

// Children returns the targets of the outgoing edges in creation order.
func (n *Node[S, A]) Children() []*Node[S, A] {
	return n.g.resolve(n.children)
}

// CoveringNode returns the node covering n, or nil.
func (n *Node[S, A]) CoveringNode() *Node[S, A] {
	if n.covering == NoNode {
		return nil
	}
	return n.g.nodes[n.covering]
}

// CoveredNodes returns the nodes n covers.
func (n *Node[S, A]) CoveredNodes() []*Node[S, A] {
	return n.g.resolve(n.covered)
}

func (n *Node[S, A]) IsCovered() bool { return n.covering != NoNode }

func (n *Node[S, A]) IsFeasible() bool { return !n.g.domain.IsBottom(n.state) }

// IsSubsumed reports whether the node is covered or infeasible.
func (n *Node[S, A]) IsSubsumed() bool { return n.IsCovered() || !n.IsFeasible() }

// IsExcluded reports whether the node or one of its ancestors is subsumed.
func (n *Node[S, A]) IsExcluded() bool {
	for a := n; a != nil; a = a.Parent() {
		if a.IsSubsumed() {
			return true
		}
	}
	return false
}

func (n *Node[S, A]) IsSafe() bool { return !n.target || n.IsExcluded() }

func (n *Node[S, A]) IsComplete() bool { return n.expanded || n.IsExcluded() }

func (n *Node[S, A]) IsLeaf() bool { return len(n.children) == 0 }

// Ancestors returns n followed by its proper ancestors up to the root.
func (n *Node[S, A]) Ancestors() []*Node[S, A] {
	var out []*Node[S, A]
	for a := n; a != nil; a = a.Parent() {
		out = append(out, a)
	}
	return out
}

// IsAncestorOf reports whether n lies on the tree path from a root to m,
// m itself included.
func (n *Node[S, A]) IsAncestorOf(m *Node[S, A]) bool {
	for a := m; a != nil; a = a.Parent() {
		if a == n {
			return true
		}
	}
	return false
}

// Descendants returns n and every node below it in pre-order.
func (n *Node[S, A]) Descendants() []*Node[S, A] {
	var out []*Node[S, A]
	stack := []*Node[S, A]{n}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		out = append(out, cur)
		children := cur.Children()
		for i := len(children) - 1; i >= 0; i-- {
			stack = append(stack, children[i])
		}
	}
	return out
}

// UnexcludedDescendants returns the descendants reachable without passing a
// subsumed node. The walk stops at subsumed nodes, which are left out.
func (n *Node[S, A]) UnexcludedDescendants() []*Node[S, A] {
	if n.IsExcluded() {
		return nil
	}
	return n.unexcludedBelow()
}

func (n *Node[S, A]) unexcludedBelow() []*Node[S, A] {
	var out []*Node[S, A]
	stack := []*Node[S, A]{n}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if cur.IsSubsumed() {
			continue
		}
		out = append(out, cur)
		children := cur.Children()
		for i := len(children) - 1; i >= 0; i-- {
			stack = append(stack, children[i])
		}
	}
	return out
}

// UnsetCovering removes the node's covering edge, if any.
func (n *Node[S, A]) UnsetCovering() {
	if n.covering == NoNode {
		return
	}
	if c := n.g.nodes[n.covering]; c != nil {
		c.covered = slices.DeleteFunc(c.covered, func(id NodeID) bool { return id == n.id })
	}
	n.covering = NoNode
}

// ClearCoveredNodes uncovers every node covered by n.
func (n *Node[S, A]) ClearCoveredNodes() {
	for _, id := range n.covered {
		if c := n.g.nodes[id]; c != nil {
			c.covering = NoNode
		}
	}
	n.covered = nil
}

func (n *Node[S, A]) setCoveringNode(c *Node[S, A]) {
	n.UnsetCovering()
	n.covering = c.id
	c.covered = append(c.covered, n.id)
}

func (n *Node[S, A]) String() string {
	return fmt.Sprintf("#%d(depth=%d target=%t %v)", n.id, n.depth, n.target, n.state)
}
