package cmd

import (
	"fmt"
	"io"

	"github.com/sarchlab/magicbot/robot"
	"github.com/sarchlab/magicbot/timing"
	"github.com/spf13/cobra"
)

// buildOffline builds the robot without running it, for commands that only
// inspect the declaration.
func buildOffline(p Program) (*robot.Robot, error) {
	clock := timing.NewManualClock()

	return robot.MakeBuilder().
		WithClock(clock).
		WithCompetition(true).
		Build(p.Declare(clock))
}

func newGraphCommand(p Program) *cobra.Command {
	var format string

	c := &cobra.Command{
		Use:   "graph",
		Short: "Print the dependency graph of the components.",
		Long: "`graph` resolves the declaration and prints who depends on " +
			"whom, in Graphviz dot format or as text.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			r, err := buildOffline(p)
			if err != nil {
				return err
			}

			switch format {
			case "dot":
				writeDot(cmd.OutOrStdout(), p.Name, r)
			case "text":
				writeText(cmd.OutOrStdout(), r)
			default:
				return fmt.Errorf("unknown format %q", format)
			}

			return nil
		},
	}

	c.Flags().StringVar(&format, "format", "dot", "output format: dot or text")

	return c
}

func writeDot(w io.Writer, name string, r *robot.Robot) {
	c := r.Container()

	fmt.Fprintf(w, "digraph %q {\n", name)

	for _, n := range c.Names() {
		shape := "box"
		if c.IsProvided(n) {
			shape = "ellipse"
		}

		fmt.Fprintf(w, "\t%q [shape=%s];\n", n, shape)
	}

	for _, e := range c.Graph() {
		fmt.Fprintf(w, "\t%q -> %q;\n", e.From, e.To)
	}

	fmt.Fprintln(w, "}")
}

func writeText(w io.Writer, r *robot.Robot) {
	fmt.Fprintln(w, "Execution order:")

	for i, n := range r.Scheduler().Components() {
		fmt.Fprintf(w, "  %d. %s\n", i+1, n)
	}

	fmt.Fprintln(w, "Dependencies:")

	for _, e := range r.Container().Graph() {
		fmt.Fprintf(w, "  %s -> %s\n", e.From, e.To)
	}
}
