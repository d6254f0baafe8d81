package cegar

import "github.com/Benny93/cegar-go/internal/arg"

// StopCriterion decides when an abstractor may stop before its waitlist
// drains. newNodes are the nodes created by the last expansion; nil means
// the whole graph is to be inspected.
type StopCriterion[S, A any] interface {
	CanStop(g *arg.ARG[S, A], newNodes []*arg.Node[S, A]) bool
}

// FirstCex stops as soon as an unsafe node exists.
type FirstCex[S, A any] struct{}

func (FirstCex[S, A]) CanStop(g *arg.ARG[S, A], newNodes []*arg.Node[S, A]) bool {
	if newNodes == nil {
		return len(g.UnsafeNodes()) > 0
	}
	for _, n := range newNodes {
		if n.IsTarget() && !n.IsExcluded() {
			return true
		}
	}
	return false
}

// FullExploration never stops early.
type FullExploration[S, A any] struct{}

func (FullExploration[S, A]) CanStop(*arg.ARG[S, A], []*arg.Node[S, A]) bool { return false }

// AtLeastNCexs stops once the graph holds N unsafe nodes.
type AtLeastNCexs[S, A any] struct {
	N int
}

func (c AtLeastNCexs[S, A]) CanStop(g *arg.ARG[S, A], _ []*arg.Node[S, A]) bool {
	return len(g.UnsafeNodes()) >= c.N
}

// StopByName resolves a configured criterion name.
func StopByName[S, A any](name string, n int) (StopCriterion[S, A], bool) {
	switch name {
	case "first-cex", "":
		return FirstCex[S, A]{}, true
	case "full":
		return FullExploration[S, A]{}, true
	case "at-least-n":
		return AtLeastNCexs[S, A]{N: max(n, 1)}, true
	default:
		return nil, false
	}
}
