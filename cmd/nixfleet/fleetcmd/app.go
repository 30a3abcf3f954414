// Package fleetcmd implements the nixfleet command surface.
package fleetcmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sort"

	"go.opentelemetry.io/otel/codes"

	"nixfleet/cmd/nixfleet/ui"
	"nixfleet/config"
	"nixfleet/internal/fleet"
	"nixfleet/internal/inventory"
	"nixfleet/internal/lifecycle"
	"nixfleet/internal/nix"
	"nixfleet/internal/remote"
	"nixfleet/internal/trace"
)

// Globals are the root command's persistent flags. They layer over the
// deploy file before the run's Config value is sealed.
type Globals struct {
	Dir      string
	Parallel int
	Debug    bool
	Trace    bool
	SSHUser  string
	SSHOpts  []string
	NixFlags []string
}

// App wires the run's components around one immutable Config.
type App struct {
	Cfg       *config.Config
	Inv       *inventory.Snapshot
	SSH       *remote.SSH
	Nix       *nix.Nix
	Lifecycle *lifecycle.Manager
	Pool      *fleet.Pool
	Trace     *trace.Output
}

// newApp loads the deploy file, applies flag overrides, and builds the
// component graph. The inventory snapshot is loaded lazily by inventory().
func newApp(g *Globals) (*App, error) {
	cfg, err := config.Load(g.Dir)
	if err != nil {
		return nil, err
	}
	if g.Parallel > 0 {
		cfg.Parallel = g.Parallel
	}
	if g.SSHUser != "" {
		cfg.SSHUser = g.SSHUser
	}
	cfg.SSHOpts = append(cfg.SSHOpts, g.SSHOpts...)
	cfg.NixFlags = append(cfg.NixFlags, g.NixFlags...)

	ssh := remote.NewSSH(remote.Options{
		User:    cfg.SSHUser,
		Port:    cfg.SSHPort,
		KeyPath: cfg.SSHKey,
		Extra:   cfg.SSHOpts,
	})

	stateDir := inventory.StateDir(cfg.Dir)
	nx := &nix.Nix{
		Source:     cfg.Source,
		ModulesDir: stateDir + "/modules",
		ExtraFlags: cfg.NixFlags,
		SSHCommand: ssh.Command(),
	}

	app := &App{
		Cfg: cfg,
		SSH: ssh,
		Nix: nx,
		Lifecycle: &lifecycle.Manager{
			Runner:          ssh,
			Builder:         nx,
			StateDir:        stateDir,
			BootstrapScript: cfg.BootstrapScript,
		},
		Pool:  &fleet.Pool{Width: cfg.Parallel},
		Trace: trace.NewOutput(g.Trace, os.Stderr),
	}
	return app, nil
}

// inventory loads the snapshot on first use.
func (a *App) inventory() (*inventory.Snapshot, error) {
	if a.Inv != nil {
		return a.Inv, nil
	}
	inv, err := inventory.Load(a.Cfg.Dir)
	if err != nil {
		return nil, err
	}
	a.Inv = inv
	return inv, nil
}

// selectNodes resolves command arguments against the inventory; no
// arguments selects the whole fleet.
func (a *App) selectNodes(args []string) ([]string, error) {
	inv, err := a.inventory()
	if err != nil {
		return nil, err
	}
	return inv.Select(args)
}

// target resolves a node name to its SSH target.
func (a *App) target(name string) (string, error) {
	inv, err := a.inventory()
	if err != nil {
		return "", err
	}
	node, err := inv.Node(name)
	if err != nil {
		return "", err
	}
	return a.SSH.Target(node.IP), nil
}

// traced wraps a per-node operation in a span so the debug-tracing toggle
// sees every stage of every node.
func (a *App) traced(name string, op fleet.Op) fleet.Op {
	tracer := a.Trace.Tracer("nixfleet")
	return func(ctx context.Context, node string, log *slog.Logger) fleet.Status {
		ctx, span := tracer.Start(ctx, name+" "+node)
		defer span.End()
		status := op(ctx, node, log)
		if status.Fatal() {
			span.SetStatus(codes.Error, status.String())
		}
		return status
	}
}

// report prints one line per node and returns an error carrying the worst
// status when any node went fatal, so the process exit code reflects the
// whole command.
func report(results map[string]fleet.Status) error {
	for _, name := range sortedKeys(results) {
		s := results[name]
		switch {
		case s == fleet.OK:
			fmt.Println(ui.SuccessMsg("%s", name))
		case s == fleet.PartialServiceFailure:
			fmt.Println(ui.WarningMsg("%s: %s", name, s))
		default:
			fmt.Println(ui.ErrorMsg("%s: %s", name, s))
		}
	}

	if worst := fleet.Worst(results); worst.Fatal() {
		return &fleet.Error{Status: worst}
	}
	return nil
}

func unmarshalOK(raw []byte, v any) bool {
	return json.Unmarshal(raw, v) == nil
}

func sortedKeys(m map[string]fleet.Status) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
