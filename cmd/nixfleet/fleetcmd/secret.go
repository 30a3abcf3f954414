package fleetcmd

import (
	"context"
	"fmt"
	"log/slog"

	"nixfleet/cmd/nixfleet/ui"
	"nixfleet/internal/fleet"
	"nixfleet/internal/nix"
	"nixfleet/internal/secrets"

	"github.com/spf13/cobra"
)

// SecretCmd synchronizes each node's remote secret directory with its
// declared manifest.
func SecretCmd(g *Globals) *cobra.Command {
	var (
		dryRun bool
		force  bool
	)

	cmd := &cobra.Command{
		Use:   "secret [NAMES...]",
		Short: "Synchronize secret files to nodes",
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

				manifest, err := app.secretManifest(ctx, node)
				if err != nil {
					log.Error("resolve secrets manifest", "err", err)
					return fleet.StatusOf(err, fleet.NoSuchConfig)
				}

				engine := &secrets.Engine{Runner: app.SSH, Log: log}
				opts := secrets.Options{DryRun: dryRun, Force: force}
				outcome, err := engine.Sync(ctx, target, manifest, opts)
				if err != nil {
					log.Error("secrets sync failed", "err", err)
					return fleet.StatusOf(err, fleet.SecretsPushFailed)
				}
				// Already-in-sync is a normal terminal state and part of the
				// user-visible output, not only a log record.
				if outcome.InSync {
					fmt.Println(ui.InfoMsg("%s: secrets already in sync", node))
				}
				return fleet.OK
			}

			results := app.Pool.Run(cmd.Context(), names, app.traced("secret", op))
			return report(results)
		},
	}

	cmd.Flags().BoolVarP(&dryRun, "dry-run", "d", false, "Report what would change without touching the node")
	cmd.Flags().BoolVarP(&force, "force", "f", false, "Re-stage kept files and re-apply ownership")
	return cmd
}

// secretManifest evaluates a node's declared secrets and files directory.
func (a *App) secretManifest(ctx context.Context, node string) (secrets.Manifest, error) {
	raw, err := a.Nix.EvalJSON(ctx, "nodes."+node+".secrets")
	if err != nil {
		// A node without declared secrets is simply in sync.
		if nix.IsMissingAttr(err) {
			raw = nil
		} else {
			return secrets.Manifest{}, err
		}
	}

	filesDir := ""
	if dirRaw, err := a.Nix.EvalJSON(ctx, "nodes."+node+".filesDir"); err == nil {
		var dir string
		if unmarshalOK(dirRaw, &dir) {
			filesDir = dir
		}
	}
	return secrets.ParseManifest(raw, filesDir)
}
