package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newTunablesCommand(p Program) *cobra.Command {
	return &cobra.Command{
		Use:   "tunables",
		Short: "List the tunables with their types and defaults.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			r, err := buildOffline(p)
			if err != nil {
				return err
			}

			b := r.Binder()
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)

			fmt.Fprintln(w, "PATH\tTYPE\tVALUE")

			for _, path := range b.Paths() {
				t, _ := b.TypeOf(path)
				v, _ := b.Get(path)
				fmt.Fprintf(w, "%s\t%s\t%v\n", path, t, v)
			}

			return w.Flush()
		},
	}
}
