package astar

import "github.com/Benny93/cegar-go/internal/arg"

// Policy decides which past iterations are kept and how a node's heuristic
// is derived from them. All policies give admissible heuristics, so they
// reach the same verdicts and differ in memory and in how well they guide.
type Policy[S, A any] interface {
	Name() string
	// Retain is how many sealed iterations the history keeps; 0 keeps all.
	Retain() int
	// Estimate computes the heuristic of n. parent is the overlay of n's
	// parent in the current iteration, or nil for roots.
	Estimate(past *History[S, A], n *arg.Node[S, A], parent *Node[S, A]) (h Distance, provider *Node[S, A])
}

// bestBound is the largest bound among the candidates subsuming s in the
// given iterations.
func bestBound[S, A any](iterations []*Iteration[S, A], s S) Distance {
	best := Unknown()
	for _, it := range iterations {
		for _, c := range it.Candidates(s) {
			best = maxDistance(best, c.bound())
			if best.IsInfinite() {
				return best
			}
		}
	}
	return best
}

// Full keeps every iteration and takes the best bound found in any of them.
type Full[S, A any] struct{}

func (Full[S, A]) Name() string { return "full" }

func (Full[S, A]) Retain() int { return 0 }

func (Full[S, A]) Estimate(past *History[S, A], n *arg.Node[S, A], _ *Node[S, A]) (Distance, *Node[S, A]) {
	return bestBound(past.All(), n.State()), nil
}

// Decreasing keeps the last two iterations and makes the heuristic
// consistent along tree edges: it drops by at most one per edge and stays
// infinite below an infinite heuristic.
type Decreasing[S, A any] struct{}

func (Decreasing[S, A]) Name() string { return "decreasing" }

func (Decreasing[S, A]) Retain() int { return 2 }

func (Decreasing[S, A]) Estimate(past *History[S, A], n *arg.Node[S, A], parent *Node[S, A]) (Distance, *Node[S, A]) {
	h := bestBound(past.All(), n.State())
	if parent == nil || !parent.heuristic.IsKnown() {
		return h, nil
	}
	if parent.heuristic.IsInfinite() {
		return Infinite(), nil
	}
	if v := parent.heuristic.Value(); v > 0 {
		h = maxDistance(h, Finite(v-1))
	}
	return h, nil
}

// OnDemand keeps only the last iteration and takes the heuristic from a
// single provider: the first subsuming node there whose distance is known.
type OnDemand[S, A any] struct{}

func (OnDemand[S, A]) Name() string { return "ondemand" }

func (OnDemand[S, A]) Retain() int { return 1 }

func (OnDemand[S, A]) Estimate(past *History[S, A], n *arg.Node[S, A], _ *Node[S, A]) (Distance, *Node[S, A]) {
	last := past.Last()
	if last == nil {
		return Unknown(), nil
	}
	for _, c := range last.Candidates(n.State()) {
		if c.distance.IsKnown() {
			return c.distance, c
		}
	}
	return Unknown(), nil
}

// PolicyByName resolves a configured policy name.
func PolicyByName[S, A any](name string) (Policy[S, A], bool) {
	switch name {
	case "full", "":
		return Full[S, A]{}, true
	case "decreasing":
		return Decreasing[S, A]{}, true
	case "ondemand":
		return OnDemand[S, A]{}, true
	default:
		return nil, false
	}
}
