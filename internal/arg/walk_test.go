package arg

import (
	"fmt"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// diamond builds r -> a, r -> b, b -> b1 -> t(target) with a covered by b.
func diamond(t *testing.T) (g *ARG[box, string], r, a, b, b1, tgt *Node[box, string]) {
	t.Helper()
	g = newTestARG()
	r = g.CreateInitNode(box{Key: "r"}, false)
	a = g.CreateSuccNode(r, "a", box{Key: "k", Width: 1}, false)
	b = g.CreateSuccNode(r, "b", box{Key: "k", Width: 2}, false)
	b1 = g.CreateSuccNode(b, "b1", box{Key: "b1"}, false)
	tgt = g.CreateSuccNode(b1, "t", box{Key: "err"}, true)
	require.True(t, g.MayCover(a, b))
	g.Cover(a, b)
	return g, r, a, b, b1, tgt
}

func TestWalkSubtree(t *testing.T) {
	t.Parallel()

	t.Run("VisitsCoveringTargetOnce", func(t *testing.T) {
		g, r, a, b, b1, tgt := diamond(t)

		visits := map[NodeID]int{}
		dist := map[NodeID]int{}
		parents := g.WalkSubtree([]*Node[box, string]{r}, func(n *Node[box, string], d int) bool {
			visits[n.ID()]++
			dist[n.ID()] = d
			return false
		})

		for _, n := range []*Node[box, string]{r, a, b, b1, tgt} {
			assert.Equal(t, 1, visits[n.ID()], "node %s", n)
		}
		assert.Equal(t, map[NodeID]int{r.ID(): 0, a.ID(): 1, b.ID(): 1, b1.ID(): 2, tgt.ID(): 3}, dist)
		assert.Equal(t, NoNode, parents[r.ID()])
		assert.Equal(t, b1.ID(), parents[tgt.ID()])
	})

	t.Run("CoveringShortcut", func(t *testing.T) {
		// r -> p -> q -> deep, r -> x with x covered by deep: deep is reached
		// at distance 1 through the covering edge, not 3 through the tree.
		g := newTestARG()
		r := g.CreateInitNode(box{Key: "r"}, false)
		p := g.CreateSuccNode(r, "p", box{Key: "p"}, false)
		q := g.CreateSuccNode(p, "q", box{Key: "q"}, false)
		deep := g.CreateSuccNode(q, "d", box{Key: "k", Width: 9}, false)
		x := g.CreateSuccNode(r, "x", box{Key: "k", Width: 1}, false)
		g.Cover(x, deep)

		dist := map[NodeID]int{}
		parents := g.WalkSubtree([]*Node[box, string]{r}, func(n *Node[box, string], d int) bool {
			dist[n.ID()] = d
			return false
		})

		assert.Equal(t, 1, dist[deep.ID()])
		assert.Equal(t, x.ID(), parents[deep.ID()])
	})

	t.Run("SkipStopsExpansion", func(t *testing.T) {
		g, r, _, b, b1, tgt := diamond(t)

		var seen []NodeID
		g.WalkSubtree([]*Node[box, string]{r}, func(n *Node[box, string], _ int) bool {
			seen = append(seen, n.ID())
			return n == b
		})

		assert.NotContains(t, seen, b1.ID())
		assert.NotContains(t, seen, tgt.ID())
	})
}

func TestWalkReverseSubtree(t *testing.T) {
	t.Parallel()

	g, r, a, b, b1, tgt := diamond(t)

	dist := map[NodeID]int{}
	parents := g.WalkReverseSubtree([]*Node[box, string]{tgt}, func(n *Node[box, string], d int) bool {
		dist[n.ID()] = d
		return false
	})

	assert.Equal(t, map[NodeID]int{tgt.ID(): 0, b1.ID(): 1, b.ID(): 2, a.ID(): 2, r.ID(): 3}, dist)
	assert.Equal(t, b.ID(), parents[a.ID()])
}

func TestWalkUpParents(t *testing.T) {
	t.Parallel()

	g, _, a, b, b1, tgt := diamond(t)
	parents := g.WalkReverseSubtree([]*Node[box, string]{tgt}, nil)

	var path []NodeID
	var dists []int
	g.WalkUpParents(a, 0, parents, func(n *Node[box, string], d int) bool {
		path = append(path, n.ID())
		dists = append(dists, d)
		return false
	})

	assert.Equal(t, []NodeID{a.ID(), b.ID(), b1.ID(), tgt.ID()}, path)
	assert.Equal(t, []int{0, 0, 1, 2}, dists)
}

func TestDistances(t *testing.T) {
	t.Parallel()

	t.Run("CoveringEdgesAreFree", func(t *testing.T) {
		g, r, a, b, b1, tgt := diamond(t)

		assert.Equal(t, map[NodeID]int{
			tgt.ID(): 0,
			b1.ID():  1,
			b.ID():   2,
			a.ID():   2,
			r.ID():   3,
		}, g.Distances())
	})

	t.Run("NearestOfSeveralTargets", func(t *testing.T) {
		g := newTestARG()
		r := g.CreateInitNode(box{Key: "r"}, false)
		far := g.CreateSuccNode(r, "a", box{Key: "a"}, false)
		g.CreateSuccNode(far, "t1", box{Key: "err"}, true)
		g.CreateSuccNode(r, "t2", box{Key: "err"}, true)

		d := g.Distances()
		assert.Equal(t, 1, d[r.ID()])
		assert.Equal(t, 1, d[far.ID()])
	})

	t.Run("ExcludedTargetsAndUnreachable", func(t *testing.T) {
		g := newTestARG()
		r := g.CreateInitNode(box{Key: "r"}, false)
		dead := g.CreateSuccNode(r, "d", box{Bottom: true}, true)
		lone := g.CreateSuccNode(r, "l", box{Key: "l"}, false)

		d := g.Distances()
		assert.Empty(t, d)
		assert.NotContains(t, d, dead.ID())
		assert.NotContains(t, d, lone.ID())
	})
}

// randomARG grows a graph by random expansions and covers, only ever
// covering when MayCover allows it.
func randomARG(seed uint64, steps int) *ARG[box, string] {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	g := newTestARG()
	g.CreateInitNode(box{Key: "k0", Width: 5}, false)
	g.MarkInitialized()

	for i := 0; i < steps; i++ {
		nodes := g.Nodes()
		n := nodes[rng.IntN(len(nodes))]
		switch rng.IntN(4) {
		case 0, 1:
			if n.IsTarget() {
				continue
			}
			s := box{Key: fmt.Sprintf("k%d", rng.IntN(3)), Width: rng.IntN(6), Bottom: rng.IntN(10) == 0}
			g.CreateSuccNode(n, fmt.Sprintf("e%d", i), s, rng.IntN(8) == 0)
		case 2:
			c := nodes[rng.IntN(len(nodes))]
			if g.MayCover(n, c) {
				g.Cover(n, c)
			}
		case 3:
			if rng.IntN(5) == 0 && !n.IsInit() {
				g.Prune(n)
			}
		}
	}
	return g
}

func TestARG_RandomInvariants(t *testing.T) {
	t.Parallel()

	for seed := uint64(1); seed <= 40; seed++ {
		t.Run(fmt.Sprintf("Seed%d", seed), func(t *testing.T) {
			g := randomARG(seed, 120)
			nodes := g.Nodes()
			require.Equal(t, g.Size(), len(nodes))

			for _, n := range nodes {
				// depth follows the tree
				if p := n.Parent(); p != nil {
					assert.Equal(t, p.Depth()+1, n.Depth())
				} else {
					assert.Zero(t, n.Depth())
				}

				// exclusion propagates down
				if n.IsExcluded() {
					for _, d := range n.Descendants() {
						assert.True(t, d.IsExcluded())
					}
				}

				// no covering edge points back into the covered node's subtree
				if c := n.CoveringNode(); c != nil {
					assert.False(t, n.IsAncestorOf(c))
					assert.Contains(t, c.CoveredNodes(), n)
				}
			}

			// each node is visited once by a forward walk
			visits := map[NodeID]int{}
			g.WalkSubtree(g.InitNodes(), func(n *Node[box, string], _ int) bool {
				visits[n.ID()]++
				return false
			})
			for id, count := range visits {
				assert.Equal(t, 1, count, "node #%d", id)
			}

			// distances agree with traces: the trace to an unsafe node from
			// the nearest root is as long as the root's distance allows
			dist := g.Distances()
			for _, u := range g.UnsafeNodes() {
				tr := TraceTo(u)
				assert.Same(t, u, tr.Last())
				assert.GreaterOrEqual(t, tr.Len(), dist[tr.Node(0).ID()])
			}
		})
	}
}
