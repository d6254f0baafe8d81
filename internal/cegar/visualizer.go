package cegar

import (
	"fmt"
	"io"
	"strings"

	"github.com/Benny93/cegar-go/internal/arg"
)

// Visualizer receives the graph after every abstraction. Implementations
// must not modify it.
type Visualizer[S, A any] interface {
	Visualize(title string, g *arg.ARG[S, A])
}

type NopVisualizer[S, A any] struct{}

func (NopVisualizer[S, A]) Visualize(string, *arg.ARG[S, A]) {}

// TextVisualizer prints the graph as an indented tree, one node per line.
// A covered node ends with "=> #id" naming its covering node.
type TextVisualizer[S, A any] struct {
	W io.Writer
}

func (v TextVisualizer[S, A]) Visualize(title string, g *arg.ARG[S, A]) {
	var b strings.Builder
	fmt.Fprintf(&b, "== %s (%d nodes)\n", title, g.Size())
	for _, n := range g.Nodes() {
		b.WriteString(strings.Repeat("  ", n.Depth()))
		if e, ok := n.InEdge(); ok {
			fmt.Fprintf(&b, "-[%v]-> ", e.Action)
		}
		fmt.Fprintf(&b, "#%d %v", n.ID(), n.State())
		if n.IsTarget() {
			b.WriteString(" !")
		}
		if !n.IsFeasible() {
			b.WriteString(" (bottom)")
		}
		if c := n.CoveringNode(); c != nil {
			fmt.Fprintf(&b, " => #%d", c.ID())
		}
		b.WriteByte('\n')
	}
	_, _ = io.WriteString(v.W, b.String())
}
