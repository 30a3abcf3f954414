package config

import (
	"os"
	"path/filepath"
	"testing"

	"nixfleet/internal/fleet"
)

func writeDeployFile(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return dir
}

func TestLoad(t *testing.T) {
	dir := writeDeployFile(t, `
source: deploy.nix
ssh_user: deploy
ssh_port: 2222
parallel: 8
nix_flags: ["--show-trace"]
bootstrap_script: scripts/bootstrap.sh
`)
	cfg, err := Load(dir)
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Source != filepath.Join(dir, "deploy.nix") {
		t.Errorf("Source = %q, want joined to the working directory", cfg.Source)
	}
	if cfg.BootstrapScript != filepath.Join(dir, "scripts/bootstrap.sh") {
		t.Errorf("BootstrapScript = %q", cfg.BootstrapScript)
	}
	if cfg.SSHUser != "deploy" || cfg.SSHPort != 2222 || cfg.Parallel != 8 {
		t.Errorf("cfg = %+v", cfg)
	}
	if len(cfg.NixFlags) != 1 || cfg.NixFlags[0] != "--show-trace" {
		t.Errorf("NixFlags = %v", cfg.NixFlags)
	}
}

func TestLoadAbsoluteSourceKept(t *testing.T) {
	dir := writeDeployFile(t, "source: /srv/deploy.nix\n")
	cfg, err := Load(dir)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Source != "/srv/deploy.nix" {
		t.Errorf("Source = %q, want absolute path unchanged", cfg.Source)
	}
}

func TestLoadDefaults(t *testing.T) {
	dir := writeDeployFile(t, "source: deploy.nix\nparallel: 0\n")
	cfg, err := Load(dir)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Parallel != 1 {
		t.Errorf("Parallel = %d, want floor of 1", cfg.Parallel)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(t.TempDir())
	if got := fleet.StatusOf(err, fleet.OK); got != fleet.NoDeployFile {
		t.Errorf("status = %s, want no deploy file", got)
	}
}

func TestLoadWithoutSource(t *testing.T) {
	dir := writeDeployFile(t, "ssh_user: deploy\n")
	_, err := Load(dir)
	if got := fleet.StatusOf(err, fleet.OK); got != fleet.NoDeployFile {
		t.Errorf("status = %s, want no deploy file", got)
	}
}

func TestLoadMalformed(t *testing.T) {
	dir := writeDeployFile(t, "source: [unclosed\n")
	_, err := Load(dir)
	if got := fleet.StatusOf(err, fleet.OK); got != fleet.NoDeployFile {
		t.Errorf("status = %s, want no deploy file", got)
	}
}
