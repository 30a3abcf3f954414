// Package remote runs shell scripts on fleet nodes over SSH.
//
// Execution delegates to the system ssh binary; connection parameters are
// fixed for the lifetime of a run. The runner performs no retries of its
// own; retry policy belongs to the caller.
package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
)

// Runner executes scripts on one node. Implementations must surface a
// non-zero remote exit status as an *ExitError.
type Runner interface {
	// Run executes script on target via `sh -s` and returns trimmed
	// combined output.
	Run(ctx context.Context, target, script string) (string, error)

	// Stream executes script on target with its stdin connected to the
	// given reader, used for one-shot archive and closure transfers.
	Stream(ctx context.Context, target, script string, stdin io.Reader) (string, error)
}

// ExitError reports a remote command that ran but exited non-zero.
type ExitError struct {
	Target string
	Code   int
	Output string
}

func (e *ExitError) Error() string {
	if e.Output == "" {
		return fmt.Sprintf("remote %s exited %d", e.Target, e.Code)
	}
	return fmt.Sprintf("remote %s exited %d: %s", e.Target, e.Code, e.Output)
}

// ExitCode returns the remote exit status carried by err, or -1 when err
// is not an *ExitError (transport failure, context cancellation, ...).
func ExitCode(err error) int {
	var ee *ExitError
	if errors.As(err, &ee) {
		return ee.Code
	}
	return -1
}

// Options fixes the SSH connection parameters for a run.
type Options struct {
	User    string   // remote login user; empty keeps the target as-is
	Port    int      // 0 uses the transport default
	KeyPath string   // identity file; empty uses the agent/default keys
	Extra   []string // extra raw ssh options, passed as-is
}

// SSH runs scripts by exec'ing the ssh binary.
type SSH struct {
	opts Options
}

func NewSSH(opts Options) *SSH {
	return &SSH{opts: opts}
}

// Run sends the script on stdin and executes it with `sh -s`.
func (s *SSH) Run(ctx context.Context, target, script string) (string, error) {
	cmd := exec.CommandContext(ctx, "ssh", s.args(target, "sh", "-s")...)
	cmd.Stdin = strings.NewReader(script)
	return s.finish(target, cmd)
}

// Stream passes the script as the remote command so stdin stays free for
// payload bytes.
func (s *SSH) Stream(ctx context.Context, target, script string, stdin io.Reader) (string, error) {
	cmd := exec.CommandContext(ctx, "ssh", s.args(target, "sh", "-c", shellQuote(script))...)
	cmd.Stdin = stdin
	return s.finish(target, cmd)
}

// Interactive opens a login shell on the target with inherited stdio.
func (s *SSH) Interactive(ctx context.Context, target string) error {
	cmd := exec.CommandContext(ctx, "ssh", s.args(target)...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

// Target combines the fixed login user with a node address.
func (s *SSH) Target(addr string) string {
	if s.opts.User == "" || strings.Contains(addr, "@") {
		return addr
	}
	return s.opts.User + "@" + addr
}

// Command returns the ssh invocation (binary plus connection arguments,
// without a target) for tools that drive an ssh-compatible transport
// themselves, such as nix-copy-closure via NIX_SSHOPTS.
func (s *SSH) Command() []string {
	return append([]string{"ssh"}, s.connArgs()...)
}

// transportExitCode is ssh's own failure exit status. When ssh exits 255
// the connection never carried the command, so there is no remote exit
// status to report.
const transportExitCode = 255

func (s *SSH) finish(target string, cmd *exec.Cmd) (string, error) {
	out, err := cmd.CombinedOutput()
	output := strings.TrimSpace(string(out))
	if err != nil {
		var ee *exec.ExitError
		if errors.As(err, &ee) && ee.ExitCode() > 0 && ee.ExitCode() != transportExitCode {
			return output, &ExitError{Target: target, Code: ee.ExitCode(), Output: output}
		}
		return output, fmt.Errorf("ssh %s: %w", target, err)
	}
	return output, nil
}

func (s *SSH) connArgs() []string {
	args := []string{"-o", "BatchMode=yes", "-o", "StrictHostKeyChecking=accept-new"}
	if s.opts.Port > 0 {
		args = append(args, "-p", strconv.Itoa(s.opts.Port))
	}
	if strings.TrimSpace(s.opts.KeyPath) != "" {
		args = append(args, "-i", s.opts.KeyPath)
	}
	return append(args, s.opts.Extra...)
}

func (s *SSH) args(target string, remoteCmd ...string) []string {
	return append(append(s.connArgs(), target), remoteCmd...)
}
