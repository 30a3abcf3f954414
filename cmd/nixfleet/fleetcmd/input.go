package fleetcmd

import (
	"fmt"
	"io"
	"os"

	"nixfleet/cmd/nixfleet/ui"
	"nixfleet/internal/fleet"
	"nixfleet/internal/inventory"

	"github.com/spf13/cobra"
)

// InputCmd translates an infrastructure state document into the inventory
// snapshot.
func InputCmd(g *Globals) *cobra.Command {
	var from string

	cmd := &cobra.Command{
		Use:   "input PATH",
		Short: "Generate the inventory snapshot from an infrastructure state document",
		Long: `Reads a provisioner document (for terraform: the output of
"terraform output -json"), translates it into the common inventory shape,
and writes the snapshot into the working directory's state. Pass "-" to
read from stdin.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(g)
			if err != nil {
				return err
			}

			var data []byte
			if args[0] == "-" {
				data, err = io.ReadAll(cmd.InOrStdin())
			} else {
				data, err = os.ReadFile(args[0])
			}
			if err != nil {
				return fleet.Errorf(fleet.NoInputFile, "read input: %w", err)
			}

			doc, err := inventory.ParseDocument(data)
			if err != nil {
				return fleet.Classify(fleet.NoInputFile, err)
			}
			prov, err := inventory.ProvisionerFor(from)
			if err != nil {
				return err
			}
			nodes, err := prov.Translate(doc)
			if err != nil {
				return err
			}

			snap := &inventory.Snapshot{Nodes: nodes}
			if err := snap.Save(app.Cfg.Dir); err != nil {
				return err
			}
			fmt.Println(ui.SuccessMsg("inventory snapshot written (%d nodes)", len(nodes)))
			return nil
		},
	}

	cmd.Flags().StringVar(&from, "from", "terraform", "Provisioner to translate with (terraform, plain)")
	return cmd
}
