package fleetcmd

import (
	"fmt"

	"nixfleet/internal/fleet"

	"github.com/spf13/cobra"
)

// OutputCmd evaluates an expression against one node and prints the JSON
// result, for scripting against node configuration.
func OutputCmd(g *Globals) *cobra.Command {
	return &cobra.Command{
		Use:   "output NAME EXPR",
		Short: "Evaluate an attribute of a node's configuration",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(g)
			if err != nil {
				return err
			}

			inv, err := app.inventory()
			if err != nil {
				return err
			}
			if _, err := inv.Node(args[0]); err != nil {
				return err
			}

			raw, err := app.Nix.EvalJSON(cmd.Context(), "nodes."+args[0]+"."+args[1])
			if err != nil {
				return fleet.Classify(fleet.NoSuchConfig, err)
			}
			fmt.Println(string(raw))
			return nil
		},
	}
}
