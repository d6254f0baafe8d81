// cegar-go decides whether a transition system can reach an error location
// using counterexample-guided abstraction refinement.
package main

import (
	"fmt"
	"os"

	"github.com/Benny93/cegar-go/cmd"
)

func main() {
	cli := cmd.NewCLI()

	if err := cli.Execute(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
