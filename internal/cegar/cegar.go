// Package cegar implements counterexample-guided abstraction refinement on
// top of an ARG: the abstractor that grows the graph under a precision, the
// refiner protocol that turns counterexamples into finer precisions, and the
// checker that alternates the two until the answer is settled.
//
// Everything here runs on the caller's goroutine. The context passed to
// Check is only consulted between iterations.
package cegar

import (
	"context"

	"github.com/Benny93/cegar-go/internal/arg"
)

// Outcome is the verdict of an abstraction, an iteration, or a whole check.
type Outcome int

const (
	Safe Outcome = iota
	Unsafe
	// Spurious marks an iteration whose counterexample was refuted.
	Spurious
)

func (o Outcome) String() string {
	switch o {
	case Safe:
		return "safe"
	case Unsafe:
		return "unsafe"
	case Spurious:
		return "spurious"
	default:
		return "unknown"
	}
}

// Projection maps a state to the partition it is compared in. Only nodes
// with equal keys are tried as covering candidates. Keys must be comparable.
type Projection[S any] func(s S) any

// ArgBuilder creates abstract states under a precision. Init must add roots
// to g; Expand must add the successors of n. Marking the graph initialized
// and the node expanded is left to the caller.
type ArgBuilder[S, A, P any] interface {
	CreateArg() *arg.ARG[S, A]
	Init(g *arg.ARG[S, A], prec P) ([]*arg.Node[S, A], error)
	Expand(n *arg.Node[S, A], prec P) ([]*arg.Node[S, A], error)
}

// Abstractor explores an ARG under a precision until its stop criterion
// holds. An incomplete graph is never reported Safe.
type Abstractor[S, A, P any] interface {
	CreateArg() *arg.ARG[S, A]
	Check(ctx context.Context, g *arg.ARG[S, A], prec P) (Outcome, error)
}

// RefinerResult is either a refined precision, when the counterexample was
// spurious, or a real counterexample in Cex.
type RefinerResult[S, A, P any] struct {
	Prec P
	Cex  *arg.Trace[S, A]
}

func (r RefinerResult[S, A, P]) IsUnsafe() bool { return r.Cex != nil }

// Refiner examines the counterexamples of an unsafe ARG. On a spurious
// result the refiner prunes the part of g that the new precision invalidates.
type Refiner[S, A, P any] interface {
	Refine(ctx context.Context, g *arg.ARG[S, A], prec P) (RefinerResult[S, A, P], error)
}
