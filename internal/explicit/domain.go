package explicit

import (
	"fmt"
	"maps"
	"slices"
	"strings"
)

// State is an abstract state: a location plus the values of the tracked
// variables. Untracked variables may hold any value.
type State struct {
	Loc    string
	Vals   map[string]int
	Bottom bool
}

func (s State) String() string {
	if s.Bottom {
		return "bottom"
	}
	keys := slices.Sorted(maps.Keys(s.Vals))
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%d", k, s.Vals[k])
	}
	return fmt.Sprintf("%s{%s}", s.Loc, strings.Join(parts, ","))
}

// Domain orders states by the information they carry.
type Domain struct{}

// IsLeq reports whether a is at least as precise as b: a is bottom, or both
// are at the same location and a agrees with every value b tracks.
func (Domain) IsLeq(a, b State) bool {
	if a.Bottom {
		return true
	}
	if b.Bottom || a.Loc != b.Loc {
		return false
	}
	for k, v := range b.Vals {
		if w, ok := a.Vals[k]; !ok || w != v {
			return false
		}
	}
	return true
}

func (Domain) IsBottom(s State) bool { return s.Bottom }

// Projection partitions states by location.
func Projection(s State) any { return s.Loc }

// Prec is the sorted set of tracked variables.
type Prec []string

// NewPrec returns the precision tracking vars.
func NewPrec(vars ...string) Prec {
	p := slices.Clone(vars)
	slices.Sort(p)
	return slices.Compact(p)
}

func (p Prec) Tracks(v string) bool {
	_, ok := slices.BinarySearch(p, v)
	return ok
}

// With returns p extended by v.
func (p Prec) With(v string) Prec {
	if p.Tracks(v) {
		return p
	}
	return NewPrec(append(slices.Clone(p), v)...)
}

func (p Prec) String() string { return "{" + strings.Join(p, ",") + "}" }
