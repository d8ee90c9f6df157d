// Package cmd provides the command-line interface of a robot program.
package cmd

import (
	"github.com/sarchlab/magicbot/robot"
	"github.com/sarchlab/magicbot/timing"
	"github.com/spf13/cobra"
	"github.com/tebeka/atexit"
)

// Program describes the robot a binary runs.
type Program struct {
	Name    string
	Version string

	// Declare returns the robot declaration. Components that keep time must
	// use the given clock.
	Declare func(clock timing.Clock) robot.Declaration
}

// NewRootCommand creates the command tree for p.
func NewRootCommand(p Program) *cobra.Command {
	if p.Declare == nil {
		panic("program has no declaration")
	}

	root := &cobra.Command{
		Use:   p.Name,
		Short: p.Name + " runs a component-based robot program.",
		Long: p.Name + ` runs a component-based robot program. ` +
			`Components are wired by name, executed once per control ` +
			`cycle, and tuned live through the monitor.`,
		SilenceUsage: true,
	}

	root.AddCommand(
		newRunCommand(p),
		newGraphCommand(p),
		newTunablesCommand(p),
		newVersionCommand(p),
	)

	return root
}

// Execute runs the command line and exits the process, running the
// functions registered with atexit first.
func Execute(p Program) {
	err := NewRootCommand(p).Execute()
	if err != nil {
		atexit.Exit(1)
	}

	atexit.Exit(0)
}
