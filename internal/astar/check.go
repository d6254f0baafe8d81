package astar

import (
	"errors"
	"fmt"
)

// CheckAdmissible verifies that no known distance of the iteration is below
// its node's heuristic and that unexcluded targets sit at distance 0.
func CheckAdmissible[S, A any](it *Iteration[S, A]) error {
	var errs []error
	for _, o := range it.Nodes() {
		d, h := o.distance, o.heuristic
		if !d.IsKnown() {
			continue
		}
		if h.IsKnown() && h.Compare(d) > 0 {
			errs = append(errs, fmt.Errorf("node #%d: heuristic %s exceeds distance %s", o.id, h, d))
		}
		if n := it.g.Node(o.id); n != nil && n.IsTarget() && !n.IsExcluded() && !(d.IsFinite() && d.Value() == 0) {
			errs = append(errs, fmt.Errorf("target #%d at distance %s", o.id, d))
		}
	}
	return errors.Join(errs...)
}

// CheckConsistent verifies that heuristics drop by at most one along tree
// edges, stay infinite below infinite nodes, and do not drop along covering
// edges. Nodes without a heuristic are ignored.
func CheckConsistent[S, A any](it *Iteration[S, A]) error {
	var errs []error
	for _, n := range it.g.Nodes() {
		on := it.nodes[n.ID()]
		if on == nil || !on.heuristic.IsKnown() {
			continue
		}
		for _, c := range n.Children() {
			oc := it.nodes[c.ID()]
			if oc == nil || !oc.heuristic.IsKnown() {
				continue
			}
			if on.heuristic.IsInfinite() {
				if !oc.heuristic.IsInfinite() {
					errs = append(errs, fmt.Errorf("edge #%d -> #%d: infinite heuristic becomes %s", n.ID(), c.ID(), oc.heuristic))
				}
				continue
			}
			if oc.heuristic.Add(1).Compare(on.heuristic) < 0 {
				errs = append(errs, fmt.Errorf("edge #%d -> #%d: heuristic drops from %s to %s", n.ID(), c.ID(), on.heuristic, oc.heuristic))
			}
		}
		if c := n.CoveringNode(); c != nil {
			oc := it.nodes[c.ID()]
			if oc != nil && oc.heuristic.IsKnown() && on.heuristic.Compare(oc.heuristic) > 0 {
				errs = append(errs, fmt.Errorf("cover #%d -> #%d: heuristic drops from %s to %s", n.ID(), c.ID(), on.heuristic, oc.heuristic))
			}
		}
	}
	return errors.Join(errs...)
}
