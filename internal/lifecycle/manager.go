// Package lifecycle walks a node from Unknown to Built: reachability
// probes, one-time bootstrap of unmanaged hosts, per-node module
// generation, and artifact build requests against the external builder.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"nixfleet/internal/fleet"
	"nixfleet/internal/inventory"
	"nixfleet/internal/remote"
)

const (
	// ManagedMarker is the file whose presence means the node runs the
	// managed base system.
	ManagedMarker = "/etc/NIXOS"

	// Descriptor files a bootstrap must leave behind. Their capture goes
	// into the generated node module.
	hardwareDescriptor = "/etc/nixos/hardware-configuration.nix"
	networkDescriptor  = "/etc/nixos/networking.nix"

	DefaultProbeRetries = 3
	RebootProbeRetries  = 5
	probeInterval       = 5 * time.Second
)

// Manager drives per-node lifecycle transitions. Sleep is injectable so
// retry pacing is testable; nil means time.Sleep.
type Manager struct {
	Runner          remote.Runner
	Builder         Builder
	StateDir        string // working directory's generated-state location
	BootstrapScript string // local path of the bootstrap transformation
	Sleep           func(time.Duration)
	Log             *slog.Logger
}

func (m *Manager) sleep(d time.Duration) {
	if m.Sleep != nil {
		m.Sleep(d)
		return
	}
	time.Sleep(d)
}

func (m *Manager) log() *slog.Logger {
	if m.Log != nil {
		return m.Log
	}
	return slog.Default()
}

// CheckReachable probes the node with a trivial remote command, retrying
// with a fixed delay. It returns HostUnreachable only after the full retry
// budget is spent; the first successful probe wins immediately. A node
// answering the probe proves nothing beyond reachability.
func (m *Manager) CheckReachable(ctx context.Context, target string, retries int) error {
	if retries < 1 {
		retries = DefaultProbeRetries
	}
	var lastErr error
	for attempt := 1; attempt <= retries; attempt++ {
		if _, err := m.Runner.Run(ctx, target, remote.ProbeScript()); err == nil {
			return nil
		} else {
			lastErr = err
		}
		if attempt < retries {
			m.log().Debug("probe failed, retrying", "target", target, "attempt", attempt)
			m.sleep(probeInterval)
		}
	}
	return fleet.Errorf(fleet.HostUnreachable, "host %s unreachable after %d probes: %w", target, retries, lastErr)
}

// EnsureManaged verifies the managed-base-system marker and, when absent,
// runs the one-time externally-scripted bootstrap transformation. Dry runs
// refuse to bootstrap. If the hardware/network descriptor files are still
// missing afterwards the node needs manual remediation.
func (m *Manager) EnsureManaged(ctx context.Context, target string, dryRun bool) error {
	_, err := m.Runner.Run(ctx, target, remote.ManagedProbeScript(ManagedMarker))
	if err == nil {
		return nil
	}
	if remote.ExitCode(err) < 0 {
		return fleet.Errorf(fleet.HostUnreachable, "probe managed marker on %s: %w", target, err)
	}

	if dryRun {
		return fleet.Errorf(fleet.RefusedDryBootstrap, "host %s is unmanaged; refusing bootstrap in a dry run", target)
	}
	if m.BootstrapScript == "" {
		return fleet.Errorf(fleet.HostNotManaged, "host %s is unmanaged and no bootstrap script is configured", target)
	}

	script, err := os.ReadFile(m.BootstrapScript)
	if err != nil {
		return fleet.Errorf(fleet.HostNotManaged, "read bootstrap script: %w", err)
	}
	m.log().Info("bootstrapping unmanaged host", "target", target)
	if _, err := m.Runner.Run(ctx, target, string(script)); err != nil {
		return fleet.Errorf(fleet.HostNotManaged, "bootstrap %s: %w", target, err)
	}

	if _, err := m.Runner.Run(ctx, target, remote.FilesPresentScript(hardwareDescriptor, networkDescriptor)); err != nil {
		return fleet.Errorf(fleet.MissingBootstrapFiles,
			"host %s lacks %s or %s after bootstrap; manual remediation required",
			target, hardwareDescriptor, networkDescriptor)
	}
	if _, err := m.Runner.Run(ctx, target, remote.ManagedProbeScript(ManagedMarker)); err != nil {
		return fleet.Errorf(fleet.HostNotManaged, "host %s still unmanaged after bootstrap", target)
	}
	return nil
}

// EnsureModule generates the node's module from its identity, the detected
// remote architecture, and the captured descriptor files. The module is
// written exactly once: an existing module is left untouched until
// manually removed.
func (m *Manager) EnsureModule(ctx context.Context, node inventory.Node, target string) (string, error) {
	moduleDir := filepath.Join(m.StateDir, "modules", node.Name)
	modulePath := filepath.Join(moduleDir, "module.nix")
	if _, err := os.Stat(modulePath); err == nil {
		m.log().Debug("module already present", "path", modulePath)
		return modulePath, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("stat module: %w", err)
	}

	arch, err := m.Runner.Run(ctx, target, remote.ArchScript())
	if err != nil {
		return "", fleet.Errorf(fleet.HostUnreachable, "detect architecture of %s: %w", target, err)
	}

	captures := map[string]string{
		"hardware-configuration.nix": hardwareDescriptor,
		"networking.nix":             networkDescriptor,
	}
	captured := make(map[string]string, len(captures))
	for local, remotePath := range captures {
		content, err := m.Runner.Run(ctx, target, remote.CaptureScript(remotePath))
		if err != nil {
			return "", fleet.Errorf(fleet.MissingBootstrapFiles, "capture %s from %s: %w", remotePath, target, err)
		}
		captured[local] = content
	}

	if err := os.MkdirAll(moduleDir, 0o755); err != nil {
		return "", fmt.Errorf("create module dir: %w", err)
	}
	for local, content := range captured {
		p := filepath.Join(moduleDir, local)
		if err := os.WriteFile(p, []byte(content+"\n"), 0o644); err != nil {
			return "", fmt.Errorf("write %s: %w", local, err)
		}
	}
	if err := renderModule(modulePath, node, arch); err != nil {
		return "", err
	}

	inventory.GitAdd(filepath.Dir(m.StateDir), moduleDir)
	m.log().Info("generated node module", "path", modulePath, "arch", arch)
	return modulePath, nil
}

// Build requests artifact realization for the node's module from the
// external builder and returns the content-addressed artifact identifier.
func (m *Manager) Build(ctx context.Context, node string) (string, error) {
	caches, err := m.Builder.Caches(ctx, node)
	if err != nil {
		return "", fleet.Classify(fleet.NoSuchConfig, err)
	}
	artifact, err := m.Builder.Build(ctx, node, caches)
	if err != nil {
		return "", fleet.Classify(fleet.BuildFailed, err)
	}
	m.log().Info("built artifact", "node", node, "artifact", artifact)
	return artifact, nil
}
