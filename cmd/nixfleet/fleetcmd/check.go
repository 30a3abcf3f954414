package fleetcmd

import (
	"context"
	"log/slog"

	"nixfleet/internal/fleet"
	"nixfleet/internal/lifecycle"

	"github.com/spf13/cobra"
)

// CheckCmd probes reachability across the selected nodes.
func CheckCmd(g *Globals) *cobra.Command {
	return &cobra.Command{
		Use:   "check [NAMES...]",
		Short: "Check node reachability",
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

			results := app.Pool.Run(cmd.Context(), names, app.traced("check", app.checkOp()))
			return report(results)
		},
	}
}

// checkOp is the reachability stage, shared with push.
func (a *App) checkOp() fleet.Op {
	return func(ctx context.Context, node string, log *slog.Logger) fleet.Status {
		target, err := a.target(node)
		if err != nil {
			return fleet.StatusOf(err, fleet.NoSuchInstance)
		}
		if err := a.Lifecycle.CheckReachable(ctx, target, lifecycle.DefaultProbeRetries); err != nil {
			log.Error("unreachable", "err", err)
			return fleet.StatusOf(err, fleet.HostUnreachable)
		}
		log.Info("reachable")
		return fleet.OK
	}
}
