// Package config loads the deploy working directory's configuration.
//
// fleet.yaml names the deploy source and fixes the connection and builder
// parameters for a run. It is read exactly once at process start; the
// resulting Config value is immutable and passed by reference into every
// component. There is no global mutable state.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"nixfleet/internal/fleet"
)

// FileName is the deploy file inside the working directory.
const FileName = "fleet.yaml"

// Config is the whole-run configuration. Fields map 1:1 to fleet.yaml;
// command-line flags may layer over it before the value is sealed.
type Config struct {
	// Dir is the deploy working directory (not part of the file).
	Dir string `yaml:"-"`

	// Source is the deploy source reference handed to the evaluator.
	Source string `yaml:"source"`

	// SSHUser is the remote login user; empty uses the local user.
	SSHUser string `yaml:"ssh_user,omitempty"`
	// SSHPort overrides the transport's default port.
	SSHPort int `yaml:"ssh_port,omitempty"`
	// SSHKey is an identity file for the remote channel.
	SSHKey string `yaml:"ssh_key,omitempty"`
	// SSHOpts are extra raw options for the remote channel.
	SSHOpts []string `yaml:"ssh_opts,omitempty"`

	// NixFlags are extra evaluator/builder flags.
	NixFlags []string `yaml:"nix_flags,omitempty"`

	// BootstrapScript is the local script that turns an unmanaged host
	// into a managed one, exactly once.
	BootstrapScript string `yaml:"bootstrap_script,omitempty"`

	// Parallel is the default worker-pool width; 1 means sequential.
	Parallel int `yaml:"parallel,omitempty"`
}

// Load reads fleet.yaml from dir. A missing deploy file is the
// NoDeployFile condition: nothing else can proceed without it.
func Load(dir string) (*Config, error) {
	p := filepath.Join(dir, FileName)
	data, err := os.ReadFile(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fleet.Errorf(fleet.NoDeployFile, "no deploy file at %s", p)
		}
		return nil, fmt.Errorf("read deploy file: %w", err)
	}

	cfg := Config{Dir: dir, Parallel: 1}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fleet.Errorf(fleet.NoDeployFile, "parse deploy file: %w", err)
	}
	if cfg.Source == "" {
		return nil, fleet.Errorf(fleet.NoDeployFile, "deploy file %s names no source", p)
	}
	if cfg.Parallel < 1 {
		cfg.Parallel = 1
	}

	// The source is evaluated relative to the working directory.
	if !filepath.IsAbs(cfg.Source) {
		cfg.Source = filepath.Join(dir, cfg.Source)
	}
	if cfg.BootstrapScript != "" && !filepath.IsAbs(cfg.BootstrapScript) {
		cfg.BootstrapScript = filepath.Join(dir, cfg.BootstrapScript)
	}
	return &cfg, nil
}
