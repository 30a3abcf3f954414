package remote

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

// stubSSH puts a fake ssh binary on PATH whose body is the given script.
func stubSSH(t *testing.T, script string) {
	t.Helper()
	dir := t.TempDir()
	p := filepath.Join(dir, "ssh")
	if err := os.WriteFile(p, []byte("#!/bin/sh\n"+script), 0o755); err != nil {
		t.Fatal(err)
	}
	t.Setenv("PATH", dir)
}

func TestRunSurfacesRemoteExitStatus(t *testing.T) {
	stubSSH(t, "exit 50\n")
	s := NewSSH(Options{})

	_, err := s.Run(context.Background(), "node1", "true\n")
	if got := ExitCode(err); got != 50 {
		t.Errorf("ExitCode = %d, want remote exit 50", got)
	}
}

func TestRunTransportFailureIsNotExitError(t *testing.T) {
	stubSSH(t, "echo 'ssh: connect to host node1 port 22: No route to host' >&2\nexit 255\n")
	s := NewSSH(Options{})

	_, err := s.Run(context.Background(), "node1", "true\n")
	if err == nil {
		t.Fatal("want error when ssh cannot connect")
	}
	// Exit 255 means ssh itself failed; the command never ran remotely,
	// so no remote exit status may be reported.
	if got := ExitCode(err); got != -1 {
		t.Errorf("ExitCode = %d, want -1 for a transport failure", got)
	}
}

func TestTarget(t *testing.T) {
	s := NewSSH(Options{User: "deploy"})
	if got := s.Target("10.0.0.5"); got != "deploy@10.0.0.5" {
		t.Errorf("Target = %q, want user prefixed", got)
	}
	if got := s.Target("root@10.0.0.5"); got != "root@10.0.0.5" {
		t.Errorf("Target = %q, explicit user must win", got)
	}

	bare := NewSSH(Options{})
	if got := bare.Target("10.0.0.5"); got != "10.0.0.5" {
		t.Errorf("Target = %q, want address unchanged", got)
	}
}

func TestConnArgs(t *testing.T) {
	s := NewSSH(Options{Port: 2222, KeyPath: "/keys/id_ed25519", Extra: []string{"-o", "ConnectTimeout=5"}})
	want := []string{
		"-o", "BatchMode=yes",
		"-o", "StrictHostKeyChecking=accept-new",
		"-p", "2222",
		"-i", "/keys/id_ed25519",
		"-o", "ConnectTimeout=5",
	}
	if got := s.connArgs(); !reflect.DeepEqual(got, want) {
		t.Errorf("connArgs = %v, want %v", got, want)
	}
}

func TestCommandCarriesNoTarget(t *testing.T) {
	s := NewSSH(Options{Port: 2222})
	cmd := s.Command()
	if cmd[0] != "ssh" {
		t.Errorf("Command[0] = %q, want ssh", cmd[0])
	}
	for _, a := range cmd[1:] {
		if a == "2222" {
			return
		}
	}
	t.Errorf("Command = %v, want port argument present", cmd)
}
