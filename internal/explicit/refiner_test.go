package explicit

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Benny93/cegar-go/internal/astar"
	"github.com/Benny93/cegar-go/internal/cegar"
)

// explore runs one BFS abstraction at prec.
func explore(t *testing.T, m *Model, prec Prec) *Graph {
	t.Helper()
	a := cegar.NewBasicAbstractor[State, *Edge, Prec](NewBuilder(m), cegar.BasicConfig[State, *Edge]{Projection: Projection})
	g := a.CreateArg()
	_, err := a.Check(context.Background(), g, prec)
	require.NoError(t, err)
	return g
}

func TestRefiner_Refine(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("SpuriousAddsGuardVariable", func(t *testing.T) {
		m := loadModel(t, "counter")
		g := explore(t, m, NewPrec())
		require.False(t, g.IsSafe())

		res, err := NewRefiner(m, nil).Refine(ctx, g, NewPrec())

		require.NoError(t, err)
		assert.False(t, res.IsUnsafe())
		assert.Equal(t, Prec{"x"}, res.Prec)
		assert.Zero(t, g.Size(), "pruned from the root")
		assert.False(t, g.IsInitialized())
	})

	t.Run("FeasibleCounterexample", func(t *testing.T) {
		m := loadModel(t, "reachable")
		g := explore(t, m, NewPrec())

		res, err := NewRefiner(m, nil).Refine(ctx, g, NewPrec())

		require.NoError(t, err)
		require.True(t, res.IsUnsafe())
		assert.Equal(t, 2, res.Cex.Len())
		assert.Equal(t, "err", res.Cex.Last().State().Loc)
		assert.Equal(t, NewPrec(), res.Prec)
	})

	t.Run("TrackedVariableIsStuck", func(t *testing.T) {
		m := loadModel(t, "counter")
		g := explore(t, m, NewPrec())

		_, err := NewRefiner(m, nil).Refine(ctx, g, NewPrec("x"))

		require.ErrorIs(t, err, ErrRefinementStuck)
		assert.ErrorContains(t, err, `tracked variable "x"`)
	})

	t.Run("NoCounterexample", func(t *testing.T) {
		m := loadModel(t, "counter")
		g := explore(t, m, NewPrec("x"))
		require.True(t, g.IsSafe())

		_, err := NewRefiner(m, nil).Refine(ctx, g, NewPrec("x"))
		assert.ErrorContains(t, err, "no counterexample")
	})

	t.Run("Cancelled", func(t *testing.T) {
		m := loadModel(t, "counter")
		g := explore(t, m, NewPrec())
		cctx, cancel := context.WithCancel(ctx)
		cancel()

		_, err := NewRefiner(m, nil).Refine(cctx, g, NewPrec())
		assert.ErrorIs(t, err, context.Canceled)
	})
}

type searchMode struct {
	name string
	new  func(b *Builder) cegar.Abstractor[State, *Edge, Prec]
}

func searchModes() []searchMode {
	basic := func(order string) func(b *Builder) cegar.Abstractor[State, *Edge, Prec] {
		return func(b *Builder) cegar.Abstractor[State, *Edge, Prec] {
			cfg := cegar.BasicConfig[State, *Edge]{Projection: Projection, Order: cegar.BFS[State, *Edge]()}
			if order == "dfs" {
				cfg.Order = cegar.DFS[State, *Edge]()
			}
			return cegar.NewBasicAbstractor[State, *Edge, Prec](b, cfg)
		}
	}
	modes := []searchMode{{"bfs", basic("bfs")}, {"dfs", basic("dfs")}}
	for _, name := range []string{"full", "decreasing", "ondemand"} {
		modes = append(modes, searchMode{"astar-" + name, func(b *Builder) cegar.Abstractor[State, *Edge, Prec] {
			p, _ := astar.PolicyByName[State, *Edge](name)
			return astar.NewAbstractor[State, *Edge, Prec](b, astar.Config[State, *Edge]{Projection: Projection, Policy: p})
		}})
	}
	return modes
}

func TestCheck_EndToEnd(t *testing.T) {
	t.Parallel()

	tests := []struct {
		model string
		want  cegar.Outcome
		iters int
		prec  Prec
	}{
		{"counter", cegar.Safe, 2, Prec{"x"}},
		{"reachable", cegar.Unsafe, 1, NewPrec()},
		{"mutex", cegar.Safe, 2, Prec{"lock"}},
	}
	for _, tt := range tests {
		for _, mode := range searchModes() {
			t.Run(tt.model+"/"+mode.name, func(t *testing.T) {
				t.Parallel()
				m := loadModel(t, tt.model)
				checker := cegar.NewChecker[State, *Edge, Prec](mode.new(NewBuilder(m)), NewRefiner(m, nil))

				res, err := checker.Check(context.Background(), NewPrec())

				require.NoError(t, err)
				assert.Equal(t, tt.want, res.Outcome)
				assert.Equal(t, tt.iters, res.Stats.Iterations)
				assert.Equal(t, tt.prec, res.Prec)
				if tt.want == cegar.Unsafe {
					require.NotNil(t, res.Cex)
					assert.Equal(t, m.Error, res.Cex.Last().State().Loc)
				} else {
					assert.True(t, res.ARG.IsSafe())
					assert.True(t, res.ARG.IsComplete() || strings.HasPrefix(mode.name, "astar"))
				}
			})
		}
	}
}
