package fleetcmd

import (
	"context"
	"log/slog"

	"nixfleet/internal/fleet"
	"nixfleet/internal/push"

	"github.com/spf13/cobra"
)

// PushCmd deploys: build all, check all, then transfer + activate each
// node. Stage boundaries are barriers across the whole node set; within a
// stage up to the configured worker count run concurrently.
func PushCmd(g *Globals) *cobra.Command {
	var (
		localRealize   bool
		bundleTransfer bool
		dryActivate    bool
		autoReboot     bool
	)

	cmd := &cobra.Command{
		Use:   "push [NAMES...]",
		Short: "Build, transfer and activate node configurations",
		RunE: func(cmd *cobra.Command, args []string) error {
			if localRealize && bundleTransfer {
				return fleet.Errorf(fleet.WrongUsage, "-l and -b are mutually exclusive")
			}

			app, err := newApp(g)
			if err != nil {
				return err
			}
			defer app.Trace.Close()

			names, err := app.selectNodes(args)
			if err != nil {
				return err
			}

			tm := push.TransferRemote
			switch {
			case localRealize:
				tm = push.TransferLocal
			case bundleTransfer:
				tm = push.TransferBundle
			}
			op := push.OpSwitch
			if dryActivate {
				op = push.OpDryActivate
			}

			machine := &push.Machine{
				Runner:     app.SSH,
				Builder:    app.Nix,
				Prober:     app.Lifecycle,
				AutoReboot: autoReboot,
			}
			artifacts := newArtifactSet()

			pushOp := func(ctx context.Context, node string, log *slog.Logger) fleet.Status {
				target, err := app.target(node)
				if err != nil {
					return fleet.StatusOf(err, fleet.NoSuchInstance)
				}
				return machine.Push(ctx, node, target, artifacts.get(node), op, tm, log)
			}

			results := app.Pool.RunStages(cmd.Context(), names,
				app.traced("build", app.buildOp(artifacts)),
				app.traced("check", app.checkOp()),
				app.traced("push", pushOp),
			)
			return report(results)
		},
	}

	cmd.Flags().BoolVarP(&localRealize, "local", "l", false, "Realize locally and copy the result closure")
	cmd.Flags().BoolVarP(&bundleTransfer, "bundle", "b", false, "Transfer the full closure as one compressed bundle")
	cmd.Flags().BoolVarP(&dryActivate, "dry-activate", "d", false, "Activate in dry mode; never mutates the active generation")
	cmd.Flags().BoolVarP(&autoReboot, "reboot", "r", false, "Reboot automatically when the new generation needs it")
	return cmd
}
