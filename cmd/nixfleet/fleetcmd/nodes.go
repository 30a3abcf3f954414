package fleetcmd

import (
	"fmt"

	"nixfleet/cmd/nixfleet/ui"

	"github.com/spf13/cobra"
)

// NodesCmd lists the inventory.
func NodesCmd(g *Globals) *cobra.Command {
	return &cobra.Command{
		Use:   "nodes",
		Short: "List inventory nodes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(g)
			if err != nil {
				return err
			}
			inv, err := app.inventory()
			if err != nil {
				return err
			}

			rows := make([][]string, 0, len(inv.Nodes))
			for _, name := range inv.Names() {
				node := inv.Nodes[name]
				rows = append(rows, []string{name, node.IP, node.Provider})
			}
			fmt.Println(ui.Table([]string{"NAME", "IP", "PROVIDER"}, rows))
			return nil
		},
	}
}
