package explicit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Benny93/cegar-go/internal/arg"
	"github.com/Benny93/cegar-go/internal/cegar"
)

// ErrRefinementStuck is returned when a counterexample fails on a variable
// the precision already tracks, so adding variables cannot rule it out.
var ErrRefinementStuck = errors.New("refinement made no progress")

// Refiner replays the first counterexample with concrete values for every
// variable. A guard that fails on the replay makes the counterexample
// spurious and its variable is added to the precision.
type Refiner struct {
	model  *Model
	logger *slog.Logger
}

func NewRefiner(m *Model, logger *slog.Logger) *Refiner {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Refiner{model: m, logger: logger}
}

func (r *Refiner) Refine(ctx context.Context, g *Graph, prec Prec) (cegar.RefinerResult[State, *Edge, Prec], error) {
	var none cegar.RefinerResult[State, *Edge, Prec]
	if err := ctx.Err(); err != nil {
		return none, err
	}
	cexs := g.Cexs()
	if len(cexs) == 0 {
		return none, errors.New("no counterexample to refine")
	}
	cex := cexs[0]

	step, failed := r.replay(cex)
	if failed == nil {
		r.logger.Debug("counterexample is feasible", "model", r.model.Name, "length", cex.Len())
		return cegar.RefinerResult[State, *Edge, Prec]{Prec: prec, Cex: cex}, nil
	}
	if prec.Tracks(failed.Var) {
		return none, fmt.Errorf("step %d (%s) fails on tracked variable %q: %w", step, cex.Edge(step).Action, failed.Var, ErrRefinementStuck)
	}

	refined := prec.With(failed.Var)
	g.Prune(cex.Node(0))
	r.logger.Debug("counterexample is spurious",
		"model", r.model.Name, "step", step, "variable", failed.Var, "precision", refined.String())
	return cegar.RefinerResult[State, *Edge, Prec]{Prec: refined}, nil
}

// replay runs the trace concretely and returns the first step whose guard
// fails, or a nil guard if every step can be taken.
func (r *Refiner) replay(cex *arg.Trace[State, *Edge]) (int, *Guard) {
	vals := make(map[string]int, len(r.model.Vars))
	for _, v := range r.model.Vars {
		vals[v.Name] = v.Init
	}
	for i, e := range cex.Edges() {
		edge := e.Action
		if gd := edge.Guard; gd != nil && !gd.holds(vals[gd.Var]) {
			return i, gd
		}
		if u := edge.Update; u != nil {
			decl, _ := r.model.Var(u.Var)
			vals[u.Var] = u.apply(decl, vals[u.Var])
		}
	}
	return -1, nil
}
