package remote

import (
	"fmt"
	"strings"
)

// Script templates executed on nodes. All interpolated values go through
// shellQuote; none of them are ever spliced in raw.

// Activation exit code contract, shared with the push state machine.
const (
	ActivationExitNotManaged     = 30
	ActivationExitPartialFailure = 40
	ActivationExitNeedsReboot    = 50
)

// ProbeScript is the trivial liveness probe. A node answering this command
// proves reachability only; callers must not infer anything more.
func ProbeScript() string {
	return "true\n"
}

// ManagedProbeScript checks for the managed-base-system marker.
func ManagedProbeScript(marker string) string {
	return fmt.Sprintf("test -f %s\n", shellQuote(marker))
}

// ArchScript prints the node's lower-cased "arch-kernel" string,
// e.g. x86_64-linux.
func ArchScript() string {
	return `printf '%s-%s' "$(uname -m | tr 'A-Z' 'a-z')" "$(uname -s | tr 'A-Z' 'a-z')"` + "\n"
}

// FilesPresentScript succeeds only when every path exists on the node.
func FilesPresentScript(paths ...string) string {
	var sb strings.Builder
	sb.WriteString("set -eu\n")
	for _, p := range paths {
		fmt.Fprintf(&sb, "test -f %s\n", shellQuote(p))
	}
	return sb.String()
}

// CaptureScript prints a remote file's content.
func CaptureScript(path string) string {
	return fmt.Sprintf("cat %s\n", shellQuote(path))
}

// ListDirScript creates dir (mode 0755) when absent and lists its
// top-level entries, one per line.
func ListDirScript(dir string) string {
	q := shellQuote(dir)
	return fmt.Sprintf(`set -eu
if [ ! -d %s ]; then
  mkdir -p -m 0755 %s
fi
ls -1 %s
`, q, q, q)
}

// RemoveScript deletes the given remote paths.
func RemoveScript(paths ...string) string {
	var sb strings.Builder
	sb.WriteString("set -eu\n")
	for _, p := range paths {
		fmt.Fprintf(&sb, "rm -rf %s\n", shellQuote(p))
	}
	return sb.String()
}

// ExtractArchiveScript unpacks a gzip'd tar stream from stdin into dir.
func ExtractArchiveScript(dir string) string {
	return fmt.Sprintf("set -eu\ntar -xzf - -C %s\n", shellQuote(dir))
}

// ApplyOwnerExitUnresolvable is returned by ApplyOwnerScript when the
// owner or group does not resolve on the node. Callers treat it as a
// warning, never as a pipeline failure.
const ApplyOwnerExitUnresolvable = 21

// ApplyOwnerScript recursively applies owner:group to a path. An owner or
// group unknown to the node exits with ApplyOwnerExitUnresolvable.
func ApplyOwnerScript(path, owner, group string) string {
	return fmt.Sprintf(`set -eu
if ! id -u %s >/dev/null 2>&1; then exit %d; fi
if ! getent group %s >/dev/null 2>&1; then exit %d; fi
chown -R %s:%s %s
`, shellQuote(owner), ApplyOwnerExitUnresolvable,
		shellQuote(group), ApplyOwnerExitUnresolvable,
		shellQuote(owner), shellQuote(group), shellQuote(path))
}

// ApplyModeScript recursively applies a file mode, then restores the
// execute bit on directories so they stay traversable.
func ApplyModeScript(path, mode string) string {
	q := shellQuote(path)
	return fmt.Sprintf(`set -eu
chmod -R %s %s
find %s -type d -exec chmod +x {} +
`, shellQuote(mode), q, q)
}

// LinkScript creates or refreshes a symlink pointing at target.
func LinkScript(target, linkPath string) string {
	return fmt.Sprintf(`set -eu
mkdir -p "$(dirname %s)"
ln -sfn %s %s
`, shellQuote(linkPath), shellQuote(target), shellQuote(linkPath))
}

// KernelCheckScript exits ActivationExitNeedsReboot when the booted
// kernel no longer matches the kernel of the system at path. It runs
// before activation so a required reboot is known while the active
// generation is still unchanged.
func KernelCheckScript(path string) string {
	return fmt.Sprintf(`set -u
booted="$(readlink -f /run/booted-system/kernel 2>/dev/null || true)"
next="$(readlink -f %s/kernel 2>/dev/null || true)"
if [ -n "$booted" ] && [ -n "$next" ] && [ "$booted" != "$next" ]; then
  exit %d
fi
exit 0
`, shellQuote(path), ActivationExitNeedsReboot)
}

// ActivationScript applies a realized system at path. The operation is
// "switch", "boot" or "dry-activate". Exit codes: 0 success,
// ActivationExitNotManaged when the base-system marker is gone,
// ActivationExitPartialFailure when the activation procedure reported
// failed services.
func ActivationScript(marker, path, operation string) string {
	return fmt.Sprintf(`set -u
if [ ! -f %s ]; then exit %d; fi
%s/bin/switch-to-configuration %s
if [ "$?" -ne 0 ]; then exit %d; fi
exit 0
`, shellQuote(marker), ActivationExitNotManaged,
		shellQuote(path), shellQuote(operation),
		ActivationExitPartialFailure)
}

// RebootScript detaches the reboot from the SSH session so the command
// itself exits cleanly before the node goes down.
func RebootScript() string {
	return "nohup sh -c 'sleep 1; reboot' >/dev/null 2>&1 &\nexit 0\n"
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'"'"'`) + "'"
}
