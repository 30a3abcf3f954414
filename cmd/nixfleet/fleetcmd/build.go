package fleetcmd

import (
	"context"
	"log/slog"
	"sync"

	"nixfleet/internal/fleet"

	"github.com/spf13/cobra"
)

// BuildCmd realizes each selected node's artifact.
func BuildCmd(g *Globals) *cobra.Command {
	return &cobra.Command{
		Use:   "build [NAMES...]",
		Short: "Build node configurations into artifacts",
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

			artifacts := newArtifactSet()
			results := app.Pool.Run(cmd.Context(), names, app.traced("build", app.buildOp(artifacts)))
			return report(results)
		},
	}
}

// artifactSet collects per-node artifact identifiers across pool workers.
type artifactSet struct {
	mu  sync.Mutex
	ids map[string]string
}

func newArtifactSet() *artifactSet {
	return &artifactSet{ids: make(map[string]string)}
}

func (s *artifactSet) put(node, id string) {
	s.mu.Lock()
	s.ids[node] = id
	s.mu.Unlock()
}

func (s *artifactSet) get(node string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ids[node]
}

// buildOp is the build stage, shared with push.
func (a *App) buildOp(artifacts *artifactSet) fleet.Op {
	return func(ctx context.Context, node string, log *slog.Logger) fleet.Status {
		artifact, err := a.Lifecycle.Build(ctx, node)
		if err != nil {
			log.Error("build failed", "err", err)
			return fleet.StatusOf(err, fleet.BuildFailed)
		}
		artifacts.put(node, artifact)
		log.Info("built", "artifact", artifact)
		return fleet.OK
	}
}
