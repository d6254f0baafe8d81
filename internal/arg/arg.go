// Package arg implements the abstract reachability graph (ARG).
//
// The graph is a forest of nodes grown lazily from root ("init") nodes, with
// a covering relation laid over the tree: a covered node's behaviour is
// subsumed by its covering node, so exploration continues there instead.
// Nodes live in an arena keyed by NodeID and refer to each other by id,
// which keeps parent, covering, and covered back-references free of
// ownership cycles while navigation stays O(1) in both directions.
//
// The graph is owned by a single goroutine; it does no locking.
package arg

import (
	"slices"
)

// ARG is an abstract reachability graph over states S and actions A.
type ARG[S, A any] struct {
	domain      Domain[S]
	nodes       map[NodeID]*Node[S, A]
	roots       []NodeID
	initialized bool
	nextID      NodeID
}

// New creates an empty, uninitialized graph bound to a domain.
func New[S, A any](domain Domain[S]) *ARG[S, A] {
	return &ARG[S, A]{
		domain: domain,
		nodes:  make(map[NodeID]*Node[S, A]),
	}
}

// Domain returns the partial order the graph was created with.
func (g *ARG[S, A]) Domain() Domain[S] { return g.domain }

// IsInitialized reports whether the initial states have been added since the
// last time a root was pruned.
func (g *ARG[S, A]) IsInitialized() bool { return g.initialized }

// MarkInitialized records that all initial states are present.
func (g *ARG[S, A]) MarkInitialized() { g.initialized = true }

// MarkExpanded records that all successors of n are present.
func (g *ARG[S, A]) MarkExpanded(n *Node[S, A]) {
	g.mustOwn("mark expanded", n)
	n.expanded = true
}

// Contains reports whether n is a live node of this graph.
func (g *ARG[S, A]) Contains(n *Node[S, A]) bool {
	return n != nil && n.g == g && g.nodes[n.id] == n
}

// Node returns the live node with the given id, or nil.
func (g *ARG[S, A]) Node(id NodeID) *Node[S, A] {
	return g.nodes[id]
}

// CreateInitNode adds a root node at depth 0.
func (g *ARG[S, A]) CreateInitNode(state S, target bool) *Node[S, A] {
	n := g.createNode(state, 0, target)
	g.roots = append(g.roots, n.id)
	return n
}

// CreateSuccNode adds a child of parent reached through action.
func (g *ARG[S, A]) CreateSuccNode(parent *Node[S, A], action A, state S, target bool) *Node[S, A] {
	g.mustOwn("create successor", parent)
	if parent.target {
		Violate("create successor", parent.id, "target nodes are not expanded")
	}
	n := g.createNode(state, parent.depth+1, target)
	n.parent = parent.id
	n.action = action
	parent.children = append(parent.children, n.id)
	return n
}

func (g *ARG[S, A]) createNode(state S, depth int, target bool) *Node[S, A] {
	n := &Node[S, A]{
		g:        g,
		id:       g.nextID,
		depth:    depth,
		target:   target,
		state:    state,
		parent:   NoNode,
		covering: NoNode,
	}
	g.nextID++
	g.nodes[n.id] = n
	return n
}

// MayCover reports whether node may be covered by candidate: candidate's
// state must subsume node's, node must not be an ancestor of candidate
// (a cover edge back into its own subtree would form a cycle), and no
// ancestor of candidate may be subsumed.
func (g *ARG[S, A]) MayCover(node, candidate *Node[S, A]) bool {
	g.mustOwn("may cover", node)
	g.mustOwn("may cover", candidate)
	if !g.domain.IsLeq(node.state, candidate.state) {
		return false
	}
	for a := candidate; a != nil; a = a.Parent() {
		if a == node || a.IsSubsumed() {
			return false
		}
	}
	return true
}

// Cover makes candidate the covering node of node. Covering relations whose
// covering node lies in node's subtree are dropped, since those nodes are
// now excluded and their covered nodes need to be re-examined.
func (g *ARG[S, A]) Cover(node, candidate *Node[S, A]) {
	g.mustOwn("cover", node)
	g.mustOwn("cover", candidate)
	if candidate.IsExcluded() {
		Violate("cover", node.id, "covering node #%d is excluded", candidate.id)
	}
	if node.IsAncestorOf(candidate) {
		Violate("cover", node.id, "node is an ancestor of its covering node #%d", candidate.id)
	}
	node.setCoveringNode(candidate)
	for _, d := range node.Descendants() {
		d.ClearCoveredNodes()
	}
}

// Prune removes node and its subtree. A pruned child leaves its parent
// unexpanded; a pruned root leaves the graph uninitialized. Every covering
// relation touching the subtree is cleared.
func (g *ARG[S, A]) Prune(node *Node[S, A]) {
	g.mustOwn("prune", node)
	if p := node.Parent(); p != nil {
		p.children = slices.DeleteFunc(p.children, func(id NodeID) bool { return id == node.id })
		p.expanded = false
	} else {
		g.roots = slices.DeleteFunc(g.roots, func(id NodeID) bool { return id == node.id })
		g.initialized = false
	}

	subtree := node.Descendants()
	for _, d := range subtree {
		d.UnsetCovering()
	}
	for _, d := range subtree {
		d.ClearCoveredNodes()
	}
	for _, d := range subtree {
		delete(g.nodes, d.id)
	}
}

// PruneAll discards every node; the graph becomes uninitialized.
func (g *ARG[S, A]) PruneAll() {
	for _, r := range g.InitNodes() {
		g.Prune(r)
	}
	g.initialized = false
}

// Minimize drops the subtrees hanging below excluded nodes.
func (g *ARG[S, A]) Minimize() {
	for _, r := range g.InitNodes() {
		g.minimizeSubtree(r)
	}
}

func (g *ARG[S, A]) minimizeSubtree(n *Node[S, A]) {
	children := n.Children()
	if n.IsExcluded() {
		for _, c := range children {
			g.Prune(c)
		}
		return
	}
	for _, c := range children {
		g.minimizeSubtree(c)
	}
}

// InitNodes returns the roots in creation order.
func (g *ARG[S, A]) InitNodes() []*Node[S, A] {
	return g.resolve(g.roots)
}

// Nodes returns every live node, roots first, each subtree in pre-order.
func (g *ARG[S, A]) Nodes() []*Node[S, A] {
	out := make([]*Node[S, A], 0, len(g.nodes))
	for _, r := range g.InitNodes() {
		out = append(out, r.Descendants()...)
	}
	return out
}

func (g *ARG[S, A]) unexcluded() []*Node[S, A] {
	var out []*Node[S, A]
	for _, r := range g.InitNodes() {
		out = append(out, r.unexcludedBelow()...)
	}
	return out
}

// UnsafeNodes returns the target nodes that are not excluded.
func (g *ARG[S, A]) UnsafeNodes() []*Node[S, A] {
	return filter(g.unexcluded(), func(n *Node[S, A]) bool { return n.target })
}

// IncompleteNodes returns the unexcluded nodes that are not expanded.
func (g *ARG[S, A]) IncompleteNodes() []*Node[S, A] {
	return filter(g.unexcluded(), func(n *Node[S, A]) bool { return !n.expanded })
}

// CompleteLeafNodes returns unexcluded, expanded nodes without successors.
func (g *ARG[S, A]) CompleteLeafNodes() []*Node[S, A] {
	return filter(g.unexcluded(), func(n *Node[S, A]) bool { return n.expanded && n.IsLeaf() })
}

// CoveredNodes returns the nodes that have a covering node.
func (g *ARG[S, A]) CoveredNodes() []*Node[S, A] {
	return filter(g.Nodes(), (*Node[S, A]).IsCovered)
}

// AncestorCoveredNodes returns covered nodes whose covering node is one of
// their own ancestors.
func (g *ARG[S, A]) AncestorCoveredNodes() []*Node[S, A] {
	return filter(g.Nodes(), func(n *Node[S, A]) bool {
		c := n.CoveringNode()
		return c != nil && c.IsAncestorOf(n)
	})
}

// IsSafe reports whether every node is safe.
func (g *ARG[S, A]) IsSafe() bool {
	return len(g.UnsafeNodes()) == 0
}

// IsComplete reports whether the graph is initialized and every node is
// expanded or excluded.
func (g *ARG[S, A]) IsComplete() bool {
	return g.initialized && len(g.IncompleteNodes()) == 0
}

// Cexs returns a trace to every unsafe node.
func (g *ARG[S, A]) Cexs() []*Trace[S, A] {
	unsafe := g.UnsafeNodes()
	traces := make([]*Trace[S, A], 0, len(unsafe))
	for _, n := range unsafe {
		traces = append(traces, TraceTo(n))
	}
	return traces
}

// Size returns the number of live nodes.
func (g *ARG[S, A]) Size() int { return len(g.nodes) }

// Depth returns the largest node depth. It panics on an empty graph.
func (g *ARG[S, A]) Depth() int {
	if len(g.nodes) == 0 {
		Violate("depth", NoNode, "depth is undefined for an empty ARG")
	}
	depth := 0
	for _, n := range g.nodes {
		depth = max(depth, n.depth)
	}
	return depth
}

// MeanBranchingFactor is the average out-degree of the expanded nodes, or 0.
func (g *ARG[S, A]) MeanBranchingFactor() float64 {
	expanded, edges := 0, 0
	for _, n := range g.nodes {
		if n.expanded {
			expanded++
			edges += len(n.children)
		}
	}
	if expanded == 0 {
		return 0
	}
	return float64(edges) / float64(expanded)
}

func (g *ARG[S, A]) mustOwn(op string, n *Node[S, A]) {
	if n == nil {
		Violate(op, NoNode, "nil node")
	}
	if !g.Contains(n) {
		Violate(op, n.id, "node does not belong to this ARG")
	}
}

func (g *ARG[S, A]) resolve(ids []NodeID) []*Node[S, A] {
	out := make([]*Node[S, A], 0, len(ids))
	for _, id := range ids {
		if n := g.nodes[id]; n != nil {
			out = append(out, n)
		}
	}
	return out
}

func filter[S, A any](nodes []*Node[S, A], keep func(*Node[S, A]) bool) []*Node[S, A] {
	var out []*Node[S, A]
	for _, n := range nodes {
		if keep(n) {
			out = append(out, n)
		}
	}
	return out
}
