package secrets

import (
	"context"
	"log/slog"
	"os"
	"path"
	"sort"
	"strings"

	"nixfleet/internal/fleet"
	"nixfleet/internal/remote"
)

// Options control one synchronization run. DryRun and Force are
// orthogonal: force re-stages kept files and re-applies ownership, dry-run
// reports what either mode would do without touching the node.
type Options struct {
	DryRun bool
	Force  bool
}

// Outcome summarizes what a sync did (or, under dry-run, would do).
type Outcome struct {
	Transferred []string // secret names staged for transfer
	Removed     []string // remote basenames staged for removal
	Kept        []string // secret names already in place
	InSync      bool     // nothing to transfer, nothing to remove
}

// Engine synchronizes one node's secret directory over a remote Runner.
type Engine struct {
	Runner remote.Runner
	Log    *slog.Logger
}

// Sync makes the remote secret directory match the manifest. See the
// package comment for the content-addressing scheme. An interrupted
// transfer stream is fatal; an unresolvable owner or group on the node is
// logged and skipped so it can never block activation.
func (e *Engine) Sync(ctx context.Context, target string, m Manifest, opts Options) (Outcome, error) {
	log := e.Log
	if log == nil {
		log = slog.Default()
	}

	// Declared set: content-addressed basename per secret.
	staged := make([]stagedFile, 0, len(m.Secrets))
	declared := make(map[string]stagedFile, len(m.Secrets))
	for _, s := range m.Secrets {
		content, err := s.load()
		if err != nil {
			return Outcome{}, fleet.Classify(fleet.SecretsPushFailed, err)
		}
		sf := stagedFile{secret: s, basename: TargetName(content), content: content}
		declared[sf.basename] = sf
		staged = append(staged, sf)
	}

	// Existing remote entries; the directory is created when absent.
	listing, err := e.Runner.Run(ctx, target, remote.ListDirScript(m.FilesDir))
	if err != nil {
		return Outcome{}, fleet.Errorf(fleet.SecretsPushFailed, "list %s on %s: %w", m.FilesDir, target, err)
	}
	existing := make(map[string]bool)
	for _, line := range strings.Split(listing, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			existing[line] = true
		}
	}

	var outcome Outcome
	toTransfer := make([]stagedFile, 0, len(staged))
	for _, sf := range staged {
		if existing[sf.basename] && !opts.Force {
			outcome.Kept = append(outcome.Kept, sf.secret.Name)
			continue
		}
		toTransfer = append(toTransfer, sf)
		outcome.Transferred = append(outcome.Transferred, sf.secret.Name)
	}

	// Whatever remains in the remote set is unmanaged by this manifest.
	for basename := range existing {
		if _, ok := declared[basename]; !ok {
			outcome.Removed = append(outcome.Removed, basename)
		}
	}
	sort.Strings(outcome.Removed)

	if len(toTransfer) == 0 && len(outcome.Removed) == 0 {
		outcome.InSync = true
		log.Info("secrets already in sync", "dir", m.FilesDir)
		return outcome, nil
	}

	if opts.DryRun {
		for _, name := range outcome.Transferred {
			log.Info("would transfer secret", "name", name)
		}
		for _, basename := range outcome.Removed {
			log.Info("would remove", "path", path.Join(m.FilesDir, basename))
		}
		return outcome, nil
	}

	if len(outcome.Removed) > 0 {
		paths := make([]string, len(outcome.Removed))
		for i, basename := range outcome.Removed {
			paths[i] = path.Join(m.FilesDir, basename)
		}
		if _, err := e.Runner.Run(ctx, target, remote.RemoveScript(paths...)); err != nil {
			return Outcome{}, fleet.Errorf(fleet.SecretsPushFailed, "remove stale secrets on %s: %w", target, err)
		}
		log.Info("removed stale secrets", "count", len(paths))
	}

	if len(toTransfer) > 0 {
		if err := e.transfer(ctx, target, m.FilesDir, toTransfer); err != nil {
			return Outcome{}, err
		}
	}

	// Ownership, mode and links follow manifest order. Under force all
	// declared secrets are re-verified, not only the transferred ones.
	apply := toTransfer
	if opts.Force {
		apply = staged
	}
	for _, sf := range apply {
		if err := e.applyDescriptor(ctx, target, m.FilesDir, sf, log); err != nil {
			return Outcome{}, err
		}
	}

	log.Info("secrets synchronized",
		"transferred", len(outcome.Transferred),
		"removed", len(outcome.Removed),
		"kept", len(outcome.Kept))
	return outcome, nil
}

// transfer packs all staged files into one archive in a fresh staging
// directory (removed on every exit path) and streams it in one operation.
func (e *Engine) transfer(ctx context.Context, target, filesDir string, staged []stagedFile) error {
	stagingDir, err := os.MkdirTemp("", "nixfleet-secrets-")
	if err != nil {
		return fleet.Errorf(fleet.SecretsPushFailed, "create staging dir: %w", err)
	}
	defer os.RemoveAll(stagingDir)

	archivePath, err := writeArchive(stagingDir, staged)
	if err != nil {
		return fleet.Classify(fleet.SecretsPushFailed, err)
	}

	f, err := os.Open(archivePath)
	if err != nil {
		return fleet.Errorf(fleet.SecretsPushFailed, "open archive: %w", err)
	}
	defer f.Close()

	if _, err := e.Runner.Stream(ctx, target, remote.ExtractArchiveScript(filesDir), f); err != nil {
		return fleet.Errorf(fleet.SecretsPushFailed, "stream archive to %s: %w", target, err)
	}
	return nil
}

func (e *Engine) applyDescriptor(ctx context.Context, target, filesDir string, sf stagedFile, log *slog.Logger) error {
	remotePath := path.Join(filesDir, sf.basename)

	if sf.secret.Owner != "" || sf.secret.Group != "" {
		owner := valueOr(sf.secret.Owner, "root")
		group := valueOr(sf.secret.Group, "root")
		_, err := e.Runner.Run(ctx, target, remote.ApplyOwnerScript(remotePath, owner, group))
		switch {
		case err == nil:
		case remote.ExitCode(err) == remote.ApplyOwnerExitUnresolvable:
			log.Warn("owner or group does not resolve on node, skipping",
				"secret", sf.secret.Name, "owner", owner, "group", group)
		default:
			return fleet.Errorf(fleet.SecretsPushFailed, "chown %s: %w", sf.secret.Name, err)
		}
	}

	if _, err := e.Runner.Run(ctx, target, remote.ApplyModeScript(remotePath, sf.secret.Mode)); err != nil {
		return fleet.Errorf(fleet.SecretsPushFailed, "chmod %s: %w", sf.secret.Name, err)
	}

	for _, link := range sf.secret.Links {
		if _, err := e.Runner.Run(ctx, target, remote.LinkScript(remotePath, link)); err != nil {
			return fleet.Errorf(fleet.SecretsPushFailed, "link %s -> %s: %w", link, sf.secret.Name, err)
		}
	}
	return nil
}

func valueOr(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
