package arg

import "container/list"

// Visit is a node reached by a walk together with its distance from the
// nearest start node.
type Visit[S, A any] struct {
	Node     *Node[S, A]
	Distance int
}

// Skip is called once per visited node with its shortest distance. Returning
// true stops the walk from following that node's neighbours.
type Skip[S, A any] func(n *Node[S, A], distance int) bool

// Neighbours lists the visits reachable from v. Each must be at v.Distance
// (a zero-cost covering step) or v.Distance+1 (a tree step).
type Neighbours[S, A any] func(v Visit[S, A]) []Visit[S, A]

// Parents maps each reached node to the node it was first reached from on a
// shortest route; start nodes map to NoNode.
type Parents map[NodeID]NodeID

// Walk visits nodes from starts so that each node is reached exactly once at
// its shortest distance. Zero-cost steps go to the front of the queue and
// unit steps to the back, so distances leave the queue in order.
func (g *ARG[S, A]) Walk(starts []*Node[S, A], skip Skip[S, A], next Neighbours[S, A]) Parents {
	parents := make(Parents)
	best := make(map[NodeID]int)
	done := make(map[NodeID]bool)
	queue := list.New()

	for _, s := range starts {
		g.mustOwn("walk", s)
		if _, seen := best[s.id]; seen {
			continue
		}
		best[s.id] = 0
		parents[s.id] = NoNode
		queue.PushBack(Visit[S, A]{Node: s})
	}

	for queue.Len() > 0 {
		v := queue.Remove(queue.Front()).(Visit[S, A])
		id := v.Node.id
		// covering edges can lead back to nodes that were already visited
		if done[id] || v.Distance > best[id] {
			continue
		}
		done[id] = true
		if skip != nil && skip(v.Node, v.Distance) {
			continue
		}

		for _, nv := range next(v) {
			nid := nv.Node.id
			if done[nid] {
				continue
			}
			if d, seen := best[nid]; seen && d <= nv.Distance {
				continue
			}
			best[nid] = nv.Distance
			parents[nid] = id
			switch nv.Distance {
			case v.Distance:
				queue.PushFront(nv)
			case v.Distance + 1:
				queue.PushBack(nv)
			default:
				Violate("walk", nid, "step from distance %d to %d is not 0 or 1", v.Distance, nv.Distance)
			}
		}
	}
	return parents
}

// WalkSubtree walks forward: a covered node continues at its covering node at
// no cost, any other node continues at its children.
func (g *ARG[S, A]) WalkSubtree(starts []*Node[S, A], skip Skip[S, A]) Parents {
	return g.Walk(starts, skip, func(v Visit[S, A]) []Visit[S, A] {
		if c := v.Node.CoveringNode(); c != nil {
			return []Visit[S, A]{{Node: c, Distance: v.Distance}}
		}
		children := v.Node.Children()
		out := make([]Visit[S, A], len(children))
		for i, c := range children {
			out[i] = Visit[S, A]{Node: c, Distance: v.Distance + 1}
		}
		return out
	})
}

// WalkReverseSubtree walks backward: to the parent at unit cost and to every
// covered node at no cost.
func (g *ARG[S, A]) WalkReverseSubtree(starts []*Node[S, A], skip Skip[S, A]) Parents {
	return g.Walk(starts, skip, func(v Visit[S, A]) []Visit[S, A] {
		var out []Visit[S, A]
		if p := v.Node.Parent(); p != nil {
			out = append(out, Visit[S, A]{Node: p, Distance: v.Distance + 1})
		}
		for _, c := range v.Node.CoveredNodes() {
			out = append(out, Visit[S, A]{Node: c, Distance: v.Distance})
		}
		return out
	})
}

// WalkUpParents follows a Parents map from start until the chain ends or
// skip returns true. The distance grows on tree steps and stays the same on
// covering steps.
func (g *ARG[S, A]) WalkUpParents(start *Node[S, A], startDistance int, parents Parents, skip Skip[S, A]) {
	g.mustOwn("walk up parents", start)
	distance := startDistance
	for cur := start; cur != nil; {
		if skip(cur, distance) {
			return
		}
		pid, ok := parents[cur.id]
		if !ok || pid == NoNode {
			return
		}
		next := g.nodes[pid]
		if next == nil {
			Violate("walk up parents", pid, "parent of #%d is not in the graph", cur.id)
		}
		switch {
		case cur.parent == pid || next.parent == cur.id:
			distance++
		case cur.covering != pid && next.covering != cur.id:
			Violate("walk up parents", cur.id, "#%d is neither a tree nor a covering neighbour", pid)
		}
		cur = next
	}
}

// Distances returns, for every node that can reach an unsafe node, the
// length of the shortest such path. Covering edges cost nothing. Nodes that
// cannot reach an unsafe node are absent.
func (g *ARG[S, A]) Distances() map[NodeID]int {
	dist := make(map[NodeID]int)
	g.WalkReverseSubtree(g.UnsafeNodes(), func(n *Node[S, A], d int) bool {
		dist[n.id] = d
		return false
	})
	return dist
}
