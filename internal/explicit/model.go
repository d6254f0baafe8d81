// Package explicit is a small explicit-value domain over control-flow
// automata described in YAML.
//
// A model names its locations, a set of integer variables, and guarded
// edges that update one variable at a time. The package supplies the
// ArgBuilder and Refiner that let the CEGAR core check whether the error
// location is reachable.
package explicit

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// GuardOp is the comparison of a guard.
type GuardOp string

const (
	OpEq GuardOp = "=="
	OpNe GuardOp = "!="
)

// UpdateOp is the assignment kind of an update.
type UpdateOp string

const (
	OpSet UpdateOp = "set"
	OpInc UpdateOp = "inc"
)

// Var is an integer variable of a model.
type Var struct {
	// Name identifies the variable in guards and updates.
	Name string `yaml:"name" json:"name"`

	// Init is the value at the initial location.
	Init int `yaml:"init" json:"init"`

	// Bound, when positive, keeps the value in [0, Bound): increments wrap.
	Bound int `yaml:"bound,omitempty" json:"bound,omitempty"`
}

// Guard enables an edge when Var compares to Value.
type Guard struct {
	Var   string  `yaml:"var" json:"var"`
	Op    GuardOp `yaml:"op" json:"op"`
	Value int     `yaml:"value" json:"value"`
}

// Update changes Var when an edge is taken.
type Update struct {
	Var   string   `yaml:"var" json:"var"`
	Op    UpdateOp `yaml:"op" json:"op"`
	Value int      `yaml:"value" json:"value"`
}

// Edge is a transition between two locations. Guard and Update are optional.
type Edge struct {
	From   string  `yaml:"from" json:"from"`
	To     string  `yaml:"to" json:"to"`
	Guard  *Guard  `yaml:"guard,omitempty" json:"guard,omitempty"`
	Update *Update `yaml:"update,omitempty" json:"update,omitempty"`
}

func (e *Edge) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s->%s", e.From, e.To)
	if g := e.Guard; g != nil {
		fmt.Fprintf(&b, " [%s %s %d]", g.Var, g.Op, g.Value)
	}
	if u := e.Update; u != nil {
		switch u.Op {
		case OpInc:
			fmt.Fprintf(&b, " {%s += %d}", u.Var, u.Value)
		default:
			fmt.Fprintf(&b, " {%s := %d}", u.Var, u.Value)
		}
	}
	return b.String()
}

// Model is a control-flow automaton with integer variables.
type Model struct {
	// Name is shown in logs and run history.
	Name string `yaml:"name" json:"name"`

	// Locations lists every control location.
	Locations []string `yaml:"locations" json:"locations"`

	Vars []Var `yaml:"vars,omitempty" json:"vars,omitempty"`

	// Init is the initial location.
	Init string `yaml:"init" json:"init"`

	// Error is the location whose reachability is checked.
	Error string `yaml:"error" json:"error"`

	Edges []*Edge `yaml:"edges" json:"edges"`
}

// Load reads and validates a model file.
func Load(path string) (*Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read model: %w", err)
	}
	m, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// Parse decodes and validates a YAML model.
func Parse(data []byte) (*Model, error) {
	var m Model
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse model: %w", err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Validate reports every problem of the model at once.
func (m *Model) Validate() error {
	var errs []error
	locs := make(map[string]bool, len(m.Locations))
	for _, l := range m.Locations {
		if locs[l] {
			errs = append(errs, fmt.Errorf("duplicate location %q", l))
		}
		locs[l] = true
	}
	vars := make(map[string]bool, len(m.Vars))
	for _, v := range m.Vars {
		switch {
		case v.Name == "":
			errs = append(errs, errors.New("variable without a name"))
		case vars[v.Name]:
			errs = append(errs, fmt.Errorf("duplicate variable %q", v.Name))
		case v.Bound < 0:
			errs = append(errs, fmt.Errorf("variable %q: negative bound", v.Name))
		case v.Bound > 0 && (v.Init < 0 || v.Init >= v.Bound):
			errs = append(errs, fmt.Errorf("variable %q: init %d outside [0, %d)", v.Name, v.Init, v.Bound))
		}
		vars[v.Name] = true
	}

	if m.Init == "" || !locs[m.Init] {
		errs = append(errs, fmt.Errorf("unknown init location %q", m.Init))
	}
	if m.Error == "" || !locs[m.Error] {
		errs = append(errs, fmt.Errorf("unknown error location %q", m.Error))
	}

	for i, e := range m.Edges {
		if e == nil {
			errs = append(errs, fmt.Errorf("edge %d: empty", i))
			continue
		}
		if !locs[e.From] {
			errs = append(errs, fmt.Errorf("edge %d: unknown location %q", i, e.From))
		}
		if !locs[e.To] {
			errs = append(errs, fmt.Errorf("edge %d: unknown location %q", i, e.To))
		}
		if g := e.Guard; g != nil {
			if !vars[g.Var] {
				errs = append(errs, fmt.Errorf("edge %d: guard on unknown variable %q", i, g.Var))
			}
			if g.Op != OpEq && g.Op != OpNe {
				errs = append(errs, fmt.Errorf("edge %d: bad guard operator %q", i, g.Op))
			}
		}
		if u := e.Update; u != nil {
			if !vars[u.Var] {
				errs = append(errs, fmt.Errorf("edge %d: update of unknown variable %q", i, u.Var))
			}
			if u.Op != OpSet && u.Op != OpInc {
				errs = append(errs, fmt.Errorf("edge %d: bad update operator %q", i, u.Op))
			}
		}
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid model %q: %w", m.Name, err)
	}
	return nil
}

// Var returns the declaration of the named variable.
func (m *Model) Var(name string) (Var, bool) {
	for _, v := range m.Vars {
		if v.Name == name {
			return v, true
		}
	}
	return Var{}, false
}

// Outgoing returns the edges leaving loc in declaration order.
func (m *Model) Outgoing(loc string) []*Edge {
	var out []*Edge
	for _, e := range m.Edges {
		if e.From == loc {
			out = append(out, e)
		}
	}
	return out
}

// holds evaluates g against a known value.
func (g *Guard) holds(v int) bool {
	if g.Op == OpNe {
		return v != g.Value
	}
	return v == g.Value
}

// apply returns the value of u's variable after the update.
func (u *Update) apply(decl Var, v int) int {
	if u.Op == OpInc {
		v += u.Value
	} else {
		v = u.Value
	}
	if decl.Bound > 0 {
		v %= decl.Bound
		if v < 0 {
			v += decl.Bound
		}
	}
	return v
}
