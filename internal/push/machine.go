// Package push drives one node's transfer + activation + reboot
// coordination: the last leg of a deployment.
//
// The state machine deliberately distinguishes disruption levels. A
// transient service-start failure is a warning so a fleet-wide rollout is
// never blocked by one flapping unit; a kernel change is detected before
// the active generation moves, so a disruptive reboot only ever happens
// behind an explicit opt-in.
package push

import (
	"context"
	"log/slog"
	"strings"

	"nixfleet/internal/fleet"
	"nixfleet/internal/lifecycle"
	"nixfleet/internal/nix"
	"nixfleet/internal/remote"
)

// Operation selects what activation does on the node.
type Operation string

const (
	OpSwitch      Operation = "switch"
	OpDryActivate Operation = "dry-activate"

	// opBoot installs a generation for the next boot without activating
	// it; used internally on the reboot path.
	opBoot Operation = "boot"
)

// TransferMode selects how the artifact reaches the node.
type TransferMode string

const (
	// TransferRemote copies only the unrealized derivation closure and
	// realizes on the node, consulting the resolved caches there.
	TransferRemote TransferMode = "remote"
	// TransferLocal realizes locally and copies the result closure.
	TransferLocal TransferMode = "local"
	// TransferBundle exports the full dependency closure as one
	// compressed stream and imports it remotely.
	TransferBundle TransferMode = "bundle"
)

// Machine pushes one previously built artifact to one node.
type Machine struct {
	Runner     remote.Runner
	Builder    Builder
	Prober     Prober
	AutoReboot bool
}

// Push transfers and activates artifact on the node. The returned status
// is OK, the PartialServiceFailure warning, or a fatal classification.
func (m *Machine) Push(ctx context.Context, node, target, artifact string, op Operation, tm TransferMode, log *slog.Logger) fleet.Status {
	if log == nil {
		log = slog.Default()
	}

	realized, status := m.transfer(ctx, node, target, artifact, tm, log)
	if status.Fatal() {
		return status
	}

	if op == OpSwitch {
		// Kernel change is checked while the active generation is still
		// untouched: needs-reboot outranks every later activation outcome.
		if _, err := m.Runner.Run(ctx, target, remote.KernelCheckScript(realized)); err != nil {
			switch remote.ExitCode(err) {
			case remote.ActivationExitNeedsReboot:
				return m.handleReboot(ctx, target, realized, log)
			default:
				log.Warn("kernel check failed, proceeding with activation", "err", err)
			}
		}
	}

	return m.activate(ctx, target, realized, op, log)
}

// transfer moves the artifact per mode and returns the realized remote
// path to activate. Each mode fails with its own distinct status.
func (m *Machine) transfer(ctx context.Context, node, target, artifact string, tm TransferMode, log *slog.Logger) (string, fleet.Status) {
	switch tm {
	case TransferLocal:
		if artifact == "" || !m.Builder.ValidArtifact(ctx, artifact) {
			return "", fleet.InvalidArtifact
		}
		caches, err := m.Builder.Caches(ctx, node)
		if err != nil {
			return "", fleet.NoSuchConfig
		}
		realized, err := m.Builder.Realise(ctx, artifact, caches)
		if err != nil {
			log.Error("local realize failed", "err", err)
			return "", fleet.TransferFailedLocal
		}
		if err := m.Builder.CopyClosureTo(ctx, target, realized); err != nil {
			log.Error("copy realized closure failed", "err", err)
			return "", fleet.TransferFailedLocal
		}
		return realized, fleet.OK

	case TransferBundle:
		if artifact == "" || !m.Builder.ValidArtifact(ctx, artifact) {
			return "", fleet.InvalidArtifact
		}
		bundle, err := m.Builder.ExportClosure(ctx, artifact)
		if err != nil {
			log.Error("export closure failed", "err", err)
			return "", fleet.TransferFailedBundle
		}
		defer bundle.Close()
		if _, err := m.Runner.Stream(ctx, target, nix.ImportScript(), bundle); err != nil {
			log.Error("import bundle failed", "err", err)
			return "", fleet.TransferFailedBundle
		}
		return artifact, fleet.OK

	case TransferRemote:
		drv, err := m.Builder.Instantiate(ctx, node)
		if err != nil {
			return "", fleet.InvalidArtifact
		}
		caches, err := m.Builder.Caches(ctx, node)
		if err != nil {
			return "", fleet.NoSuchConfig
		}
		if err := m.Builder.CopyClosureTo(ctx, target, drv); err != nil {
			log.Error("copy derivation closure failed", "err", err)
			return "", fleet.TransferFailedRemote
		}
		out, err := m.Runner.Run(ctx, target, nix.RemoteRealiseScript(drv, caches))
		if err != nil {
			log.Error("remote realize failed", "err", err)
			return "", fleet.TransferFailedRemote
		}
		realized := lastLine(out)
		if realized == "" {
			log.Error("remote realize produced no output path")
			return "", fleet.TransferFailedRemote
		}
		return realized, fleet.OK
	}
	return "", fleet.WrongUsage
}

// activate runs the remote activation procedure once and classifies its
// outcome. A partial service failure is a warning: the push still counts
// as successful.
func (m *Machine) activate(ctx context.Context, target, realized string, op Operation, log *slog.Logger) fleet.Status {
	_, err := m.Runner.Run(ctx, target, remote.ActivationScript(lifecycle.ManagedMarker, realized, string(op)))
	if err == nil {
		log.Info("activation succeeded", "operation", string(op), "path", realized)
		return fleet.OK
	}
	switch remote.ExitCode(err) {
	case remote.ActivationExitNotManaged:
		// Base system marker lost since the last lifecycle check.
		return fleet.HostNotManaged
	case remote.ActivationExitPartialFailure:
		log.Warn("some services failed during activation", "path", realized)
		return fleet.PartialServiceFailure
	default:
		log.Error("activation failed", "err", err)
		return fleet.HostUnreachable
	}
}

// handleReboot finishes a push whose new generation needs a different
// kernel. Without the auto-reboot opt-in the push fails with a distinct
// status and the active generation stays unchanged. With it, the new
// generation is installed for the next boot, the node is rebooted, probed
// with an enlarged retry budget, and activation is retried exactly once.
// A second needs-reboot never recurses.
func (m *Machine) handleReboot(ctx context.Context, target, realized string, log *slog.Logger) fleet.Status {
	if !m.AutoReboot {
		log.Error("new generation requires a reboot; re-run with auto-reboot enabled")
		return fleet.RebootRequired
	}

	// Rebooting only makes sense once the new generation is installed for
	// the next boot; any failure here aborts the reboot path.
	if status := m.activate(ctx, target, realized, opBoot, log); status != fleet.OK {
		if status.Fatal() {
			return status
		}
		log.Error("boot generation install failed, not rebooting")
		return fleet.RebootRequired
	}
	log.Info("rebooting node for new kernel")
	if _, err := m.Runner.Run(ctx, target, remote.RebootScript()); err != nil {
		log.Error("reboot command failed", "err", err)
		return fleet.RebootRequired
	}
	if err := m.Prober.CheckReachable(ctx, target, lifecycle.RebootProbeRetries); err != nil {
		return fleet.HostUnreachableAfterReboot
	}

	// Exactly one retried activation. A second kernel mismatch means the
	// reboot did not converge; that is fatal, not another reboot.
	if _, err := m.Runner.Run(ctx, target, remote.KernelCheckScript(realized)); err != nil {
		if remote.ExitCode(err) == remote.ActivationExitNeedsReboot {
			log.Error("kernel still mismatched after reboot")
			return fleet.RebootRequired
		}
	}
	status := m.activate(ctx, target, realized, OpSwitch, log)
	if status == fleet.PartialServiceFailure {
		// Second partial failure after a reboot is downgraded to a warning.
		log.Warn("services still partially failed after reboot")
		return fleet.PartialServiceFailure
	}
	return status
}

func lastLine(out string) string {
	lines := strings.Split(strings.TrimSpace(out), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}
