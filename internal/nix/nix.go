// Package nix drives the external declarative configuration evaluator and
// builder. It shells out to the nix toolchain; nothing here evaluates
// configuration itself.
//
// The deploy source is a nix expression evaluating to an attribute set
// with one entry per node under `nodes`. Each node exposes `system` (the
// realizable system derivation) and optionally `caches`, `secrets` and
// `filesDir`. The generated per-node modules directory is handed to the
// source via `--arg modulesDir`.
package nix

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"

	"github.com/klauspost/compress/gzip"
)

// Nix invokes the evaluator/builder with a fixed source reference and
// extra flags, both read once at process start.
type Nix struct {
	Source     string   // deploy source file or expression path
	ModulesDir string   // generated per-node modules, passed to the source
	ExtraFlags []string // extra evaluator/builder flags
	SSHCommand []string // transport for closure copies (NIX_SSHOPTS)
}

// BuildError reports an evaluator or builder failure, output included.
type BuildError struct {
	Op     string
	Output string
	Err    error
}

func (e *BuildError) Error() string {
	if e.Output == "" {
		return fmt.Sprintf("nix %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("nix %s: %v: %s", e.Op, e.Err, e.Output)
}

func (e *BuildError) Unwrap() error { return e.Err }

// EvalJSON evaluates an attribute path under the deploy source and returns
// its strict JSON rendering.
func (n *Nix) EvalJSON(ctx context.Context, attr string) ([]byte, error) {
	args := []string{"--eval", "--strict", "--json", n.Source, "-A", attr}
	args = append(args, n.sourceArgs()...)
	args = append(args, n.ExtraFlags...)

	out, err := n.run(ctx, "nix-instantiate", args...)
	if err != nil {
		return nil, &BuildError{Op: "eval " + attr, Output: out, Err: err}
	}
	return []byte(out), nil
}

// Instantiate evaluates a node's system to an unrealized derivation path.
func (n *Nix) Instantiate(ctx context.Context, node string) (string, error) {
	args := []string{n.Source, "-A", nodeAttr(node)}
	args = append(args, n.sourceArgs()...)
	args = append(args, n.ExtraFlags...)

	out, err := n.run(ctx, "nix-instantiate", args...)
	if err != nil {
		return "", &BuildError{Op: "instantiate " + node, Output: out, Err: err}
	}
	return lastLine(out), nil
}

// Build realizes a node's system locally and returns the content-addressed
// artifact identifier (the store path).
func (n *Nix) Build(ctx context.Context, node string, caches []Cache) (string, error) {
	args := []string{"--no-out-link", n.Source, "-A", nodeAttr(node)}
	args = append(args, n.sourceArgs()...)
	args = append(args, cacheFlags(caches)...)
	args = append(args, n.ExtraFlags...)

	out, err := n.run(ctx, "nix-build", args...)
	if err != nil {
		return "", &BuildError{Op: "build " + node, Output: out, Err: err}
	}
	return lastLine(out), nil
}

// ValidArtifact reports whether ref is a valid path in the local store.
func (n *Nix) ValidArtifact(ctx context.Context, ref string) bool {
	_, err := n.run(ctx, "nix-store", "--check-validity", ref)
	return err == nil
}

// Realise turns a derivation into its output path in the local store,
// consulting the resolved acceleration caches.
func (n *Nix) Realise(ctx context.Context, ref string, caches []Cache) (string, error) {
	args := []string{"--realise", ref}
	args = append(args, cacheFlags(caches)...)

	out, err := n.run(ctx, "nix-store", args...)
	if err != nil {
		return "", &BuildError{Op: "realise " + ref, Output: out, Err: err}
	}
	return lastLine(out), nil
}

// CopyClosureTo copies a store path's full closure to the target over the
// configured SSH transport.
func (n *Nix) CopyClosureTo(ctx context.Context, target, ref string) error {
	cmd := exec.CommandContext(ctx, "nix-copy-closure", "--to", target, ref)
	cmd.Env = append(cmd.Environ(), "NIX_SSHOPTS="+strings.Join(n.sshOpts(), " "))
	if out, err := cmd.CombinedOutput(); err != nil {
		return &BuildError{Op: "copy closure to " + target, Output: strings.TrimSpace(string(out)), Err: err}
	}
	return nil
}

// ExportClosure streams the full dependency closure of ref as one
// gzip-compressed `nix-store --export` stream. The returned reader must be
// closed; closing it reaps the underlying process.
func (n *Nix) ExportClosure(ctx context.Context, ref string) (io.ReadCloser, error) {
	requisites, err := n.run(ctx, "nix-store", "--query", "--requisites", ref)
	if err != nil {
		return nil, &BuildError{Op: "query requisites " + ref, Output: requisites, Err: err}
	}
	paths := strings.Fields(requisites)
	if len(paths) == 0 {
		return nil, &BuildError{Op: "export " + ref, Err: fmt.Errorf("closure is empty")}
	}

	cmd := exec.CommandContext(ctx, "nix-store", append([]string{"--export"}, paths...)...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("export closure: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("export closure: %w", err)
	}

	pr, pw := io.Pipe()
	go func() {
		zw := gzip.NewWriter(pw)
		_, copyErr := io.Copy(zw, stdout)
		if err := zw.Close(); copyErr == nil {
			copyErr = err
		}
		if err := cmd.Wait(); copyErr == nil {
			copyErr = err
		}
		pw.CloseWithError(copyErr)
	}()
	return pr, nil
}

// ImportScript is the remote side of a bundle transfer.
func ImportScript() string {
	return "set -eu\ngunzip -c | nix-store --import >/dev/null\n"
}

// RemoteRealiseScript realizes a copied derivation on the node itself.
func RemoteRealiseScript(drv string, caches []Cache) string {
	parts := []string{"nix-store", "--realise", shellQuote(drv)}
	for _, flag := range cacheFlags(caches) {
		parts = append(parts, shellQuote(flag))
	}
	return "set -eu\n" + strings.Join(parts, " ") + "\n"
}

// DiffClosuresScript diffs the node's running system against a pushed path.
func DiffClosuresScript(ref string) string {
	return fmt.Sprintf("nix --extra-experimental-features nix-command store diff-closures /run/current-system %s\n", shellQuote(ref))
}

func (n *Nix) run(ctx context.Context, bin string, args ...string) (string, error) {
	out, err := exec.CommandContext(ctx, bin, args...).CombinedOutput()
	output := strings.TrimSpace(string(out))
	if err != nil {
		return output, fmt.Errorf("%s %s: %w", bin, args[0], err)
	}
	return output, nil
}

func (n *Nix) sourceArgs() []string {
	if n.ModulesDir == "" {
		return nil
	}
	return []string{"--arg", "modulesDir", n.ModulesDir}
}

func (n *Nix) sshOpts() []string {
	if len(n.SSHCommand) <= 1 {
		return nil
	}
	return n.SSHCommand[1:]
}

func nodeAttr(node string) string {
	return "nodes." + node + ".system"
}

func lastLine(out string) string {
	lines := strings.Split(strings.TrimSpace(out), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'"'"'`) + "'"
}
