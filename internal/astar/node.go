package astar

import "github.com/Benny93/cegar-go/internal/arg"

// Node is the overlay of one ARG node in one iteration.
type Node[S, A any] struct {
	id        arg.NodeID
	target    bool
	distance  Distance
	heuristic Distance
	provider  *Node[S, A]
}

func (n *Node[S, A]) ID() arg.NodeID { return n.id }

func (n *Node[S, A]) Distance() Distance { return n.distance }

func (n *Node[S, A]) Heuristic() Distance { return n.heuristic }

// Provider is the node of an earlier iteration the heuristic was taken
// from, if the policy tracks one.
func (n *Node[S, A]) Provider() *Node[S, A] { return n.provider }

// SetDistance records the exact distance. It panics if d contradicts the
// heuristic: a finite heuristic must not exceed d, an infinite heuristic
// forces an infinite d, and a target is at distance 0.
func (n *Node[S, A]) SetDistance(d Distance) {
	if !d.IsKnown() {
		arg.Violate("set distance", n.id, "distance must be known")
	}
	if n.target && !(d.IsFinite() && d.Value() == 0) {
		arg.Violate("set distance", n.id, "target at distance %s", d)
	}
	if n.heuristic.IsKnown() && n.heuristic.Compare(d) > 0 {
		arg.Violate("set distance", n.id, "heuristic %s exceeds distance %s", n.heuristic, d)
	}
	n.distance = d
}

// bound is what the node tells later iterations: its distance if known,
// otherwise its heuristic.
func (n *Node[S, A]) bound() Distance {
	if n.distance.IsKnown() {
		return n.distance
	}
	return n.heuristic.lowerBound()
}

// mayCover reports whether node may be covered by candidate. Covering never
// leads from a higher heuristic to a lower one.
func mayCover[S, A any](node, candidate *Node[S, A]) bool {
	return node.heuristic.lowerBound().Compare(candidate.heuristic.lowerBound()) <= 0
}

// Weight is the search priority at depth g: g plus the heuristic, or
// Infinite.
func (n *Node[S, A]) Weight(g int) Distance {
	if n.heuristic.IsInfinite() {
		return Infinite()
	}
	return n.heuristic.lowerBound().Add(g)
}
