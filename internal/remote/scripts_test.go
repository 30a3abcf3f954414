package remote

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestShellQuote(t *testing.T) {
	cases := map[string]string{
		"plain":        "'plain'",
		"with space":   "'with space'",
		"it's":         `'it'"'"'s'`,
		"$HOME; rm -r": "'$HOME; rm -r'",
	}
	for in, want := range cases {
		if got := shellQuote(in); got != want {
			t.Errorf("shellQuote(%q) = %s, want %s", in, got, want)
		}
	}
}

func TestScriptsQuoteArguments(t *testing.T) {
	hostile := "/tmp/x'; reboot; '"
	scripts := []string{
		ManagedProbeScript(hostile),
		CaptureScript(hostile),
		ListDirScript(hostile),
		RemoveScript(hostile),
		ExtractArchiveScript(hostile),
		ApplyOwnerScript(hostile, "op'er", "gr'p"),
		ApplyModeScript(hostile, "0600"),
		LinkScript(hostile, hostile),
		KernelCheckScript(hostile),
		ActivationScript("/etc/NIXOS", hostile, "switch"),
	}
	for _, s := range scripts {
		if strings.Contains(s, hostile) {
			t.Errorf("raw value spliced into script:\n%s", s)
		}
	}
}

func TestActivationScriptContract(t *testing.T) {
	s := ActivationScript("/etc/NIXOS", "/nix/store/abc-system", "dry-activate")
	for _, want := range []string{
		fmt.Sprintf("exit %d", ActivationExitNotManaged),
		fmt.Sprintf("exit %d", ActivationExitPartialFailure),
		"switch-to-configuration 'dry-activate'",
	} {
		if !strings.Contains(s, want) {
			t.Errorf("activation script missing %q:\n%s", want, s)
		}
	}
}

func TestKernelCheckScriptContract(t *testing.T) {
	s := KernelCheckScript("/nix/store/abc-system")
	if !strings.Contains(s, "/run/booted-system/kernel") {
		t.Errorf("kernel check must compare against the booted kernel:\n%s", s)
	}
	if !strings.Contains(s, fmt.Sprintf("exit %d", ActivationExitNeedsReboot)) {
		t.Errorf("kernel mismatch must use the needs-reboot exit code:\n%s", s)
	}
}

func TestFilesPresentScript(t *testing.T) {
	s := FilesPresentScript("/etc/nixos/hardware-configuration.nix", "/etc/nixos/networking.nix")
	if strings.Count(s, "test -f") != 2 {
		t.Errorf("want one test per path:\n%s", s)
	}
	if !strings.HasPrefix(s, "set -eu\n") {
		t.Errorf("script must fail fast:\n%s", s)
	}
}

func TestExitCode(t *testing.T) {
	if got := ExitCode(nil); got != -1 {
		t.Errorf("ExitCode(nil) = %d, want -1", got)
	}
	if got := ExitCode(errors.New("dial failed")); got != -1 {
		t.Errorf("transport error = %d, want -1", got)
	}
	wrapped := fmt.Errorf("activate: %w", &ExitError{Target: "n1", Code: 50})
	if got := ExitCode(wrapped); got != 50 {
		t.Errorf("ExitCode = %d, want 50", got)
	}
}
