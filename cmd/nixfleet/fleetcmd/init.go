package fleetcmd

import (
	"context"
	"log/slog"

	"nixfleet/internal/fleet"
	"nixfleet/internal/lifecycle"

	"github.com/spf13/cobra"
)

// InitCmd walks nodes from Unknown to Configured: reachability, one-time
// bootstrap of unmanaged hosts, and per-node module generation.
func InitCmd(g *Globals) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "init [NAMES...]",
		Short: "Bootstrap nodes and generate their modules",
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

			results := app.Pool.Run(cmd.Context(), names, app.traced("init", app.initOp(dryRun)))
			return report(results)
		},
	}

	cmd.Flags().BoolVarP(&dryRun, "dry-run", "d", false, "Refuse bootstrap; only report what init would do")
	return cmd
}

// initOp walks one node from Unknown to Configured.
func (a *App) initOp(dryRun bool) fleet.Op {
	return func(ctx context.Context, node string, log *slog.Logger) fleet.Status {
		inv, err := a.inventory()
		if err != nil {
			return fleet.StatusOf(err, fleet.NoInputFile)
		}
		n, err := inv.Node(node)
		if err != nil {
			return fleet.StatusOf(err, fleet.NoSuchInstance)
		}
		target := a.SSH.Target(n.IP)

		if err := a.Lifecycle.CheckReachable(ctx, target, lifecycle.DefaultProbeRetries); err != nil {
			log.Error("unreachable", "err", err)
			return fleet.StatusOf(err, fleet.HostUnreachable)
		}
		if err := a.Lifecycle.EnsureManaged(ctx, target, dryRun); err != nil {
			log.Error("cannot manage host", "err", err)
			return fleet.StatusOf(err, fleet.HostNotManaged)
		}
		if _, err := a.Lifecycle.EnsureModule(ctx, n, target); err != nil {
			log.Error("module generation failed", "err", err)
			return fleet.StatusOf(err, fleet.MissingBootstrapFiles)
		}
		return fleet.OK
	}
}
