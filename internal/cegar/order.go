package cegar

import (
	"github.com/Benny93/cegar-go/internal/arg"
	"github.com/Benny93/cegar-go/internal/waitlist"
)

// BFS orders shallower nodes first; at equal depth targets come first.
func BFS[S, A any]() waitlist.Less[*arg.Node[S, A]] {
	return func(a, b *arg.Node[S, A]) bool {
		if a.Depth() != b.Depth() {
			return a.Depth() < b.Depth()
		}
		return a.IsTarget() && !b.IsTarget()
	}
}

// DFS orders deeper nodes first.
func DFS[S, A any]() waitlist.Less[*arg.Node[S, A]] {
	return func(a, b *arg.Node[S, A]) bool {
		return a.Depth() > b.Depth()
	}
}
