// Package astar guides abstraction with distances to error learned in
// earlier CEGAR iterations. Each finished iteration leaves an overlay of
// per-node distances; the next iteration estimates a node's distance from
// the overlay nodes whose states subsume it and explores in order of depth
// plus estimate.
package astar

import (
	"fmt"

	"github.com/Benny93/cegar-go/internal/arg"
)

type distanceKind uint8

const (
	unknown distanceKind = iota
	finite
	infinite
)

// Distance is the number of steps from a node to the nearest target. It is
// Unknown until established, Infinite when no target is reachable.
type Distance struct {
	kind distanceKind
	n    int
}

func Unknown() Distance { return Distance{} }

func Infinite() Distance { return Distance{kind: infinite} }

func Finite(n int) Distance {
	if n < 0 {
		arg.Violate("distance", arg.NoNode, "negative distance %d", n)
	}
	return Distance{kind: finite, n: n}
}

func (d Distance) IsKnown() bool    { return d.kind != unknown }
func (d Distance) IsFinite() bool   { return d.kind == finite }
func (d Distance) IsInfinite() bool { return d.kind == infinite }

// Value returns the step count of a finite distance and panics otherwise.
func (d Distance) Value() int {
	if d.kind != finite {
		arg.Violate("distance", arg.NoNode, "value of %s distance", d)
	}
	return d.n
}

// Compare orders known distances; Infinite is the greatest.
func (d Distance) Compare(o Distance) int {
	if !d.IsKnown() || !o.IsKnown() {
		arg.Violate("distance", arg.NoNode, "comparing %s with %s", d, o)
	}
	switch {
	case d.kind == o.kind && d.kind == infinite:
		return 0
	case d.kind == infinite:
		return 1
	case o.kind == infinite:
		return -1
	case d.n < o.n:
		return -1
	case d.n > o.n:
		return 1
	}
	return 0
}

// Add shifts a finite distance by k steps. Infinite stays Infinite.
func (d Distance) Add(k int) Distance {
	switch d.kind {
	case finite:
		return Finite(d.n + k)
	case infinite:
		return d
	}
	arg.Violate("distance", arg.NoNode, "adding to an unknown distance")
	return d
}

func (d Distance) String() string {
	switch d.kind {
	case finite:
		return fmt.Sprintf("%d", d.n)
	case infinite:
		return "inf"
	}
	return "?"
}

// lowerBound treats Unknown as zero steps.
func (d Distance) lowerBound() Distance {
	if !d.IsKnown() {
		return Finite(0)
	}
	return d
}

// maxDistance returns the larger of two estimates, Unknown being the least.
func maxDistance(a, b Distance) Distance {
	if !a.IsKnown() {
		return b
	}
	if !b.IsKnown() {
		return a
	}
	if a.Compare(b) >= 0 {
		return a
	}
	return b
}
