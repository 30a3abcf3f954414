package fleetcmd

import (
	"github.com/spf13/cobra"
)

// SSHCmd opens an interactive shell on one node.
func SSHCmd(g *Globals) *cobra.Command {
	return &cobra.Command{
		Use:   "ssh NAME",
		Short: "Open a shell on a node",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(g)
			if err != nil {
				return err
			}
			target, err := app.target(args[0])
			if err != nil {
				return err
			}
			return app.SSH.Interactive(cmd.Context(), target)
		},
	}
}
