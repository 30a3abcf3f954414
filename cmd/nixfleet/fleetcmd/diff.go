package fleetcmd

import (
	"context"
	"fmt"
	"log/slog"

	"nixfleet/internal/fleet"
	"nixfleet/internal/nix"

	"github.com/spf13/cobra"
)

// DiffCmd builds each node's configuration and diffs its closure against
// the node's currently running system.
func DiffCmd(g *Globals) *cobra.Command {
	return &cobra.Command{
		Use:   "diff [NAMES...]",
		Short: "Show what a push would change on each node",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(g)
			if err != nil {
				return err
			}
			defer app.Trace.Close()

			names, err := app.selectNodes(args)
			if err != nil {
				return err
			}

			op := func(ctx context.Context, node string, log *slog.Logger) fleet.Status {
				target, err := app.target(node)
				if err != nil {
					return fleet.StatusOf(err, fleet.NoSuchInstance)
				}

				artifact, err := app.Lifecycle.Build(ctx, node)
				if err != nil {
					log.Error("build failed", "err", err)
					return fleet.StatusOf(err, fleet.BuildFailed)
				}
				if err := app.Nix.CopyClosureTo(ctx, target, artifact); err != nil {
					log.Error("copy closure failed", "err", err)
					return fleet.TransferFailedLocal
				}
				out, err := app.SSH.Run(ctx, target, nix.DiffClosuresScript(artifact))
				if err != nil {
					log.Error("diff failed", "err", err)
					return fleet.TransferFailedLocal
				}
				fmt.Printf("%s:\n%s\n", node, out)
				return fleet.OK
			}

			results := app.Pool.Run(cmd.Context(), names, app.traced("diff", op))
			return report(results)
		},
	}
}
