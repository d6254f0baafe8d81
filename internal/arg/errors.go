package arg

import "fmt"

// NoNode marks an absent node reference (no parent, no covering node).
const NoNode NodeID = -1

// InvariantViolation is the panic value raised when a structural rule of the
// graph is broken, e.g. expanding a node that belongs to another graph or
// covering a node that is already excluded. It signals a bug in the core or
// in a collaborator and is never returned as an error.
type InvariantViolation struct {
	// Op is the graph operation that detected the violation.
	Op string

	// NodeID is the offending node, or NoNode.
	NodeID NodeID

	// Iteration is the CEGAR iteration, filled in by the checker; -1 when unknown.
	Iteration int

	// Msg describes the broken rule.
	Msg string
}

func (v *InvariantViolation) Error() string {
	if v.Iteration >= 0 {
		return fmt.Sprintf("arg invariant violated in %s (node #%d, iteration %d): %s", v.Op, v.NodeID, v.Iteration, v.Msg)
	}
	return fmt.Sprintf("arg invariant violated in %s (node #%d): %s", v.Op, v.NodeID, v.Msg)
}

// Violate panics with an *InvariantViolation.
func Violate(op string, id NodeID, format string, args ...any) {
	panic(&InvariantViolation{
		Op:        op,
		NodeID:    id,
		Iteration: -1,
		Msg:       fmt.Sprintf(format, args...),
	})
}
