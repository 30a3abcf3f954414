package inventory

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"

	"nixfleet/internal/fleet"
)

const (
	stateDirName     = "state"
	snapshotFileName = "inventory.json"
)

// Snapshot is the generated inventory: the common shape every provisioner
// adapter translates into. It is written by `input`, read by every other
// command, and intended to be tracked in version control.
type Snapshot struct {
	Nodes map[string]Node `json:"nodes"`
	Meta  map[string]any  `json:"meta,omitempty"`
}

// StateDir returns the working directory's generated-state location.
func StateDir(dir string) string {
	return filepath.Join(dir, stateDirName)
}

func snapshotPath(dir string) string {
	return filepath.Join(StateDir(dir), snapshotFileName)
}

// Load reads the snapshot from the working directory. A missing snapshot
// is a NoInputFile condition: the user has not run `input` yet.
func Load(dir string) (*Snapshot, error) {
	data, err := os.ReadFile(snapshotPath(dir))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fleet.Errorf(fleet.NoInputFile, "no inventory snapshot at %s; run `nixfleet input` first", snapshotPath(dir))
		}
		return nil, fmt.Errorf("read inventory snapshot: %w", err)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("parse inventory snapshot: %w", err)
	}
	for name, node := range snap.Nodes {
		node.Name = name
		snap.Nodes[name] = node
	}
	return &snap, nil
}

// Save writes the snapshot and best-effort stages it for version control.
func (s *Snapshot) Save(dir string) error {
	p := snapshotPath(dir)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal inventory snapshot: %w", err)
	}
	if err := os.WriteFile(p, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write inventory snapshot: %w", err)
	}

	GitAdd(dir, p)
	return nil
}

// GitAdd stages a generated file for version control. Best effort: a
// missing git binary or a non-repo working directory is not an error.
func GitAdd(dir string, paths ...string) {
	args := append([]string{"-C", dir, "add", "--"}, paths...)
	if out, err := exec.Command("git", args...).CombinedOutput(); err != nil {
		slog.Debug("git add skipped", "err", err, "output", string(out))
	}
}

// Names returns all node names, sorted.
func (s *Snapshot) Names() []string {
	names := make([]string, 0, len(s.Nodes))
	for name := range s.Nodes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Select resolves the requested names against the inventory. Empty input
// selects the whole fleet. An unknown name is a NoSuchInstance condition.
func (s *Snapshot) Select(names []string) ([]string, error) {
	if len(names) == 0 {
		return s.Names(), nil
	}
	for _, name := range names {
		if _, ok := s.Nodes[name]; !ok {
			return nil, fleet.Errorf(fleet.NoSuchInstance, "node %q is not in the inventory", name)
		}
	}
	return names, nil
}

// Node returns a node by name.
func (s *Snapshot) Node(name string) (Node, error) {
	node, ok := s.Nodes[name]
	if !ok {
		return Node{}, fleet.Errorf(fleet.NoSuchInstance, "node %q is not in the inventory", name)
	}
	return node, nil
}
