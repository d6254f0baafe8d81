package arg

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// box is a test state: a box ⊑ another box with the same key and at least
// its width. Bottom boxes are below everything.
type box struct {
	Key    string
	Width  int
	Bottom bool
}

type boxDomain struct{}

func (boxDomain) IsLeq(a, b box) bool {
	if a.Bottom {
		return true
	}
	return !b.Bottom && a.Key == b.Key && a.Width <= b.Width
}

func (boxDomain) IsBottom(s box) bool { return s.Bottom }

func newTestARG() *ARG[box, string] {
	return New[box, string](boxDomain{})
}

func requireViolation(t *testing.T, op string, fn func()) *InvariantViolation {
	t.Helper()
	var got *InvariantViolation
	func() {
		defer func() {
			r := recover()
			require.NotNil(t, r, "expected a panic")
			v, ok := r.(*InvariantViolation)
			require.True(t, ok, "panic value %T is not an *InvariantViolation", r)
			got = v
		}()
		fn()
	}()
	assert.Equal(t, op, got.Op)
	return got
}

func TestARG_CreateNodes(t *testing.T) {
	t.Parallel()

	t.Run("IdsAndDepths", func(t *testing.T) {
		g := newTestARG()
		r := g.CreateInitNode(box{Key: "a"}, false)
		c := g.CreateSuccNode(r, "step", box{Key: "b"}, false)
		gc := g.CreateSuccNode(c, "step", box{Key: "c"}, true)

		assert.Equal(t, NodeID(0), r.ID())
		assert.Equal(t, NodeID(1), c.ID())
		assert.Equal(t, NodeID(2), gc.ID())
		assert.Equal(t, 0, r.Depth())
		assert.Equal(t, 1, c.Depth())
		assert.Equal(t, 2, gc.Depth())
		assert.True(t, r.IsInit())
		assert.False(t, c.IsInit())
		assert.True(t, gc.IsTarget())
		assert.Same(t, r, c.Parent())

		edge, ok := gc.InEdge()
		require.True(t, ok)
		assert.Same(t, c, edge.Source)
		assert.Equal(t, "step", edge.Action)

		assert.False(t, g.IsInitialized())
		g.MarkInitialized()
		assert.True(t, g.IsInitialized())
	})

	t.Run("ForeignParent", func(t *testing.T) {
		g1, g2 := newTestARG(), newTestARG()
		r := g1.CreateInitNode(box{Key: "a"}, false)

		v := requireViolation(t, "create successor", func() {
			g2.CreateSuccNode(r, "x", box{Key: "b"}, false)
		})
		assert.Equal(t, r.ID(), v.NodeID)
	})

	t.Run("TargetParent", func(t *testing.T) {
		g := newTestARG()
		r := g.CreateInitNode(box{Key: "err"}, true)

		requireViolation(t, "create successor", func() {
			g.CreateSuccNode(r, "x", box{Key: "b"}, false)
		})
	})

	t.Run("PrunedParent", func(t *testing.T) {
		g := newTestARG()
		r := g.CreateInitNode(box{Key: "a"}, false)
		c := g.CreateSuccNode(r, "x", box{Key: "b"}, false)
		g.Prune(c)

		requireViolation(t, "create successor", func() {
			g.CreateSuccNode(c, "x", box{Key: "b"}, false)
		})
	})
}

func TestARG_Predicates(t *testing.T) {
	t.Parallel()

	g := newTestARG()
	r := g.CreateInitNode(box{Key: "r"}, false)
	dead := g.CreateSuccNode(r, "x", box{Bottom: true}, false)
	below := g.CreateSuccNode(dead, "x", box{Key: "b"}, true)
	live := g.CreateSuccNode(r, "y", box{Key: "l"}, true)

	tests := []struct {
		name     string
		node     *Node[box, string]
		feasible bool
		excluded bool
		safe     bool
		complete bool
	}{
		{"Root", r, true, false, true, false},
		{"Infeasible", dead, false, true, true, true},
		{"BelowInfeasible", below, true, true, true, true},
		{"UnsafeTarget", live, true, false, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.feasible, tt.node.IsFeasible())
			assert.Equal(t, tt.excluded, tt.node.IsExcluded())
			assert.Equal(t, tt.safe, tt.node.IsSafe())
			assert.Equal(t, tt.complete, tt.node.IsComplete())
		})
	}

	assert.Equal(t, []*Node[box, string]{live}, g.UnsafeNodes())
	assert.False(t, g.IsSafe())
}

func TestARG_MayCover(t *testing.T) {
	t.Parallel()

	g := newTestARG()
	r := g.CreateInitNode(box{Key: "loop", Width: 2}, false)
	c := g.CreateSuccNode(r, "x", box{Key: "loop", Width: 1}, false)
	wide := g.CreateSuccNode(r, "y", box{Key: "loop", Width: 5}, false)
	other := g.CreateSuccNode(r, "z", box{Key: "other", Width: 9}, false)
	underWide := g.CreateSuccNode(wide, "x", box{Key: "loop", Width: 7}, false)
	dead := g.CreateSuccNode(r, "w", box{Bottom: true}, false)
	underDead := g.CreateSuccNode(dead, "w", box{Key: "loop", Width: 9}, false)

	tests := []struct {
		name      string
		node      *Node[box, string]
		candidate *Node[box, string]
		want      bool
	}{
		{"AncestorSubsumesSuccessor", c, r, true},
		{"NotLeq", r, c, false},
		{"DifferentKey", c, other, false},
		{"NodeIsAncestorOfCandidate", wide, underWide, false},
		{"Self", c, c, false},
		{"CandidateBelowInfeasible", c, underDead, false},
		{"DeeperCandidateInOtherBranch", c, underWide, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, g.MayCover(tt.node, tt.candidate))
		})
	}
}

func TestARG_Cover(t *testing.T) {
	t.Parallel()

	t.Run("RootCoversItsSuccessor", func(t *testing.T) {
		g := newTestARG()
		r := g.CreateInitNode(box{Key: "loop", Width: 1}, false)
		g.MarkInitialized()
		c := g.CreateSuccNode(r, "tick", box{Key: "loop", Width: 1}, false)
		g.MarkExpanded(r)
		g.MarkExpanded(c)
		assert.Equal(t, []*Node[box, string]{c}, g.CompleteLeafNodes())

		require.True(t, g.MayCover(c, r))
		g.Cover(c, r)

		assert.True(t, c.IsCovered())
		assert.True(t, c.IsExcluded())
		assert.Same(t, r, c.CoveringNode())
		assert.Equal(t, []*Node[box, string]{c}, r.CoveredNodes())
		assert.Empty(t, g.CompleteLeafNodes())
		assert.Equal(t, []*Node[box, string]{c}, g.AncestorCoveredNodes())
		assert.True(t, g.IsComplete())
	})

	t.Run("ClearsCoveredNodesInSubtree", func(t *testing.T) {
		g := newTestARG()
		r := g.CreateInitNode(box{Key: "r"}, false)
		a := g.CreateSuccNode(r, "a", box{Key: "k", Width: 4}, false)
		b := g.CreateSuccNode(r, "b", box{Key: "k", Width: 2}, false)
		b1 := g.CreateSuccNode(b, "b1", box{Key: "m", Width: 4}, false)
		x := g.CreateSuccNode(a, "x", box{Key: "m", Width: 1}, false)

		g.Cover(x, b1)
		require.True(t, x.IsCovered())

		g.Cover(b, a)

		assert.False(t, x.IsCovered())
		assert.Empty(t, b1.CoveredNodes())
		assert.True(t, b1.IsExcluded())
	})

	t.Run("ReplacesPreviousCovering", func(t *testing.T) {
		g := newTestARG()
		r := g.CreateInitNode(box{Key: "r"}, false)
		a := g.CreateSuccNode(r, "a", box{Key: "k", Width: 4}, false)
		b := g.CreateSuccNode(r, "b", box{Key: "k", Width: 5}, false)
		x := g.CreateSuccNode(r, "x", box{Key: "k", Width: 1}, false)

		g.Cover(x, a)
		g.Cover(x, b)

		assert.Same(t, b, x.CoveringNode())
		assert.Empty(t, a.CoveredNodes())
		assert.Len(t, g.CoveredNodes(), 1)
	})

	t.Run("ExcludedCandidate", func(t *testing.T) {
		g := newTestARG()
		r := g.CreateInitNode(box{Key: "r"}, false)
		dead := g.CreateSuccNode(r, "d", box{Bottom: true}, false)
		x := g.CreateSuccNode(r, "x", box{Bottom: true}, false)

		v := requireViolation(t, "cover", func() { g.Cover(x, dead) })
		assert.Equal(t, x.ID(), v.NodeID)
	})

	t.Run("AncestorAsCovered", func(t *testing.T) {
		g := newTestARG()
		r := g.CreateInitNode(box{Key: "k", Width: 1}, false)
		c := g.CreateSuccNode(r, "x", box{Key: "k", Width: 1}, false)

		requireViolation(t, "cover", func() { g.Cover(r, c) })
	})
}

func TestARG_Prune(t *testing.T) {
	t.Parallel()

	t.Run("Child", func(t *testing.T) {
		g := newTestARG()
		r := g.CreateInitNode(box{Key: "r"}, false)
		g.MarkInitialized()
		a := g.CreateSuccNode(r, "a", box{Key: "k", Width: 4}, false)
		a1 := g.CreateSuccNode(a, "a1", box{Key: "m", Width: 4}, false)
		b := g.CreateSuccNode(r, "b", box{Key: "m", Width: 1}, false)
		g.MarkExpanded(r)
		g.MarkExpanded(a)
		g.Cover(b, a1)

		g.Prune(a)

		assert.False(t, r.IsExpanded())
		assert.True(t, g.IsInitialized())
		assert.False(t, g.Contains(a))
		assert.False(t, g.Contains(a1))
		assert.False(t, b.IsCovered())
		assert.Equal(t, []*Node[box, string]{b}, r.Children())
		assert.Equal(t, 2, g.Size())
	})

	t.Run("Root", func(t *testing.T) {
		g := newTestARG()
		r1 := g.CreateInitNode(box{Key: "r1"}, false)
		r2 := g.CreateInitNode(box{Key: "r2"}, false)
		g.MarkInitialized()

		g.Prune(r1)

		assert.False(t, g.IsInitialized())
		assert.Equal(t, []*Node[box, string]{r2}, g.InitNodes())
	})

	t.Run("All", func(t *testing.T) {
		g := newTestARG()
		r := g.CreateInitNode(box{Key: "r"}, false)
		g.CreateSuccNode(r, "a", box{Key: "a"}, false)
		g.MarkInitialized()

		g.PruneAll()

		assert.False(t, g.IsInitialized())
		assert.Empty(t, g.InitNodes())
		assert.Zero(t, g.Size())

		next := g.CreateInitNode(box{Key: "again"}, false)
		assert.Equal(t, NodeID(2), next.ID())
	})

	t.Run("Minimize", func(t *testing.T) {
		g := newTestARG()
		r := g.CreateInitNode(box{Key: "r", Width: 3}, false)
		keep := g.CreateSuccNode(r, "a", box{Key: "a"}, false)
		covered := g.CreateSuccNode(r, "b", box{Key: "r", Width: 1}, false)
		g.CreateSuccNode(covered, "c", box{Key: "c"}, false)
		dead := g.CreateSuccNode(r, "d", box{Bottom: true}, false)
		g.CreateSuccNode(dead, "e", box{Key: "e"}, false)
		g.Cover(covered, r)

		g.Minimize()

		assert.Equal(t, []*Node[box, string]{r, keep, covered, dead}, g.Nodes())
		assert.True(t, covered.IsLeaf())
		assert.True(t, dead.IsLeaf())
	})
}

func TestARG_Statistics(t *testing.T) {
	t.Parallel()

	t.Run("EmptyDepth", func(t *testing.T) {
		g := newTestARG()
		requireViolation(t, "depth", func() { g.Depth() })
		assert.Zero(t, g.MeanBranchingFactor())
	})

	t.Run("Populated", func(t *testing.T) {
		g := newTestARG()
		r := g.CreateInitNode(box{Key: "r"}, false)
		a := g.CreateSuccNode(r, "a", box{Key: "a"}, false)
		g.CreateSuccNode(r, "b", box{Key: "b"}, false)
		g.CreateSuccNode(a, "c", box{Key: "c"}, false)
		g.MarkExpanded(r)
		g.MarkExpanded(a)

		assert.Equal(t, 4, g.Size())
		assert.Equal(t, 2, g.Depth())
		assert.InDelta(t, 1.5, g.MeanBranchingFactor(), 1e-9)
		assert.Len(t, g.IncompleteNodes(), 2)
	})
}

func TestARG_Copy(t *testing.T) {
	t.Parallel()

	g := newTestARG()
	r := g.CreateInitNode(box{Key: "r", Width: 2}, false)
	g.MarkInitialized()
	a := g.CreateSuccNode(r, "a", box{Key: "r", Width: 1}, false)
	tgt := g.CreateSuccNode(r, "t", box{Key: "err"}, true)
	g.MarkExpanded(r)
	g.Cover(a, r)

	c := g.Copy()

	require.Equal(t, g.Size(), c.Size())
	assert.True(t, c.IsInitialized())
	for _, n := range g.Nodes() {
		cn := c.Node(n.ID())
		require.NotNil(t, cn)
		assert.NotSame(t, n, cn)
		assert.Equal(t, n.State(), cn.State())
		assert.Equal(t, n.Depth(), cn.Depth())
		assert.Equal(t, n.IsTarget(), cn.IsTarget())
		assert.Equal(t, n.IsExpanded(), cn.IsExpanded())
		assert.Equal(t, n.IsCovered(), cn.IsCovered())
	}
	assert.Equal(t, r.ID(), c.Node(a.ID()).CoveringNode().ID())
	assert.Equal(t, g.Distances(), c.Distances())

	// The copy evolves independently.
	c.Prune(c.Node(tgt.ID()))
	assert.True(t, g.Contains(tgt))
	assert.True(t, r.IsExpanded())

	fresh := c.CreateInitNode(box{Key: "n"}, false)
	assert.Equal(t, NodeID(3), fresh.ID())
}
