package arg

import "slices"

// Copy returns a structural copy of the graph. Node ids, the id counter,
// flags, and covering edges are preserved, so a node of the copy can be
// looked up with the id of its original. States and actions are shared.
func (g *ARG[S, A]) Copy() *ARG[S, A] {
	c := &ARG[S, A]{
		domain:      g.domain,
		nodes:       make(map[NodeID]*Node[S, A], len(g.nodes)),
		roots:       slices.Clone(g.roots),
		initialized: g.initialized,
		nextID:      g.nextID,
	}
	for id, n := range g.nodes {
		c.nodes[id] = &Node[S, A]{
			g:        c,
			id:       n.id,
			depth:    n.depth,
			target:   n.target,
			state:    n.state,
			expanded: n.expanded,
			parent:   n.parent,
			action:   n.action,
			children: slices.Clone(n.children),
			covering: n.covering,
			covered:  slices.Clone(n.covered),
		}
	}
	return c
}
