package main

import (
	"fmt"
	"os"

	"nixfleet/cmd/nixfleet/fleetcmd"
	"nixfleet/cmd/nixfleet/ui"
	"nixfleet/internal/fleet"
	"nixfleet/internal/logging"

	"github.com/spf13/cobra"
)

func main() {
	var g fleetcmd.Globals
	var noColor bool

	if err := logging.Configure(logging.LevelWarn); err != nil {
		_, _ = os.Stderr.WriteString("configure logger: " + err.Error() + "\n")
		os.Exit(1)
	}

	root := &cobra.Command{
		Use:           "nixfleet",
		Short:         "Deploy declarative system configurations to a fleet of nodes",
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			ui.ConfigureColor(noColor)
			level := logging.LevelInfo
			if g.Debug {
				level = logging.LevelDebug
			}
			return logging.Configure(level)
		},
	}

	root.PersistentFlags().StringVar(&g.Dir, "dir", ".", "Deploy working directory")
	root.PersistentFlags().IntVarP(&g.Parallel, "parallel", "p", 0, "Worker-pool width (default from fleet.yaml, 1 = sequential)")
	root.PersistentFlags().BoolVar(&g.Debug, "debug", false, "Enable debug logging")
	root.PersistentFlags().BoolVar(&g.Trace, "trace", false, "Trace pipeline stages")
	root.PersistentFlags().StringVar(&g.SSHUser, "ssh-user", "", "Remote login user")
	root.PersistentFlags().StringArrayVar(&g.SSHOpts, "ssh-opt", nil, "Extra ssh option (repeatable)")
	root.PersistentFlags().StringArrayVar(&g.NixFlags, "nix-flag", nil, "Extra evaluator/builder flag (repeatable)")
	root.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")

	root.AddCommand(
		fleetcmd.NodesCmd(&g),
		fleetcmd.InputCmd(&g),
		fleetcmd.InitCmd(&g),
		fleetcmd.CheckCmd(&g),
		fleetcmd.BuildCmd(&g),
		fleetcmd.PushCmd(&g),
		fleetcmd.SecretCmd(&g),
		fleetcmd.DiffCmd(&g),
		fleetcmd.OutputCmd(&g),
		fleetcmd.SSHCmd(&g),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, ui.ErrorMsg("%v", err))
		os.Exit(fleet.StatusOf(err, fleet.WrongUsage).ExitCode())
	}
}
