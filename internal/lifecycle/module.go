package lifecycle

import (
	"fmt"
	"os"
	"text/template"

	"nixfleet/internal/inventory"
)

// moduleTemplate is the generated per-node configuration-definition
// artifact. It is data-driven: node identity and detected facts go in as
// template values, never by string concatenation into expression text.
var moduleTemplate = template.Must(template.New("module").Parse(
	`# Generated by nixfleet for node {{.Name}}. Do not edit; remove to regenerate.
{ config, lib, pkgs, ... }:
{
  imports = [
    ./hardware-configuration.nix
    ./networking.nix
  ];

  networking.hostName = "{{.Name}}";
  nixpkgs.hostPlatform = "{{.Arch}}";
{{- if .SSHKey}}

  users.users.root.openssh.authorizedKeys.keys = [
    "{{.SSHKey}}"
  ];
{{- end}}
}
`))

type moduleData struct {
	Name   string
	Arch   string
	SSHKey string
}

func renderModule(path string, node inventory.Node, arch string) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("create module: %w", err)
	}
	defer f.Close()

	data := moduleData{Name: node.Name, Arch: arch, SSHKey: node.SSHKey}
	if err := moduleTemplate.Execute(f, data); err != nil {
		return fmt.Errorf("render module: %w", err)
	}
	return nil
}
