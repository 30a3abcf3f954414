// Package secrets makes a node's remote secret directory match its
// declared manifest, idempotently.
//
// Remote paths are content-addressed: the target basename is the blake3
// digest of the file's content. Identical content lands on the identical
// path (implicit dedup), changed content lands on a new path, and nothing
// in place is ever overwritten destructively. Declared names reach the
// node as symlinks pointing at the content-addressed file.
package secrets

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path"
	"sort"

	"github.com/zeebo/blake3"
)

// DefaultFilesDir is where content-addressed secret files live on a node
// when its configuration does not declare a filesDir of its own.
const DefaultFilesDir = "/var/lib/nixfleet/secrets"

// Secret declares one secret file for a node.
type Secret struct {
	Name   string   `json:"-"`
	Source string   `json:"source"`          // local file path
	Mode   string   `json:"mode,omitempty"`  // octal, e.g. "0600"
	Owner  string   `json:"owner,omitempty"` // remote user name
	Group  string   `json:"group,omitempty"` // remote group name
	Links  []string `json:"links,omitempty"` // remote symlink paths
}

// Manifest is a node's declared secret set, in stable (sorted-name) order.
type Manifest struct {
	FilesDir string
	Secrets  []Secret
}

// ParseManifest decodes the evaluator's JSON rendering of a node's secrets
// attribute. An empty filesDir falls back to DefaultFilesDir.
func ParseManifest(raw []byte, filesDir string) (Manifest, error) {
	byName := map[string]Secret{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &byName); err != nil {
			return Manifest{}, fmt.Errorf("parse secrets manifest: %w", err)
		}
	}

	names := make([]string, 0, len(byName))
	for name := range byName {
		names = append(names, name)
	}
	sort.Strings(names)

	m := Manifest{FilesDir: filesDir}
	if m.FilesDir == "" {
		m.FilesDir = DefaultFilesDir
	}
	for _, name := range names {
		s := byName[name]
		s.Name = name
		if s.Source == "" {
			return Manifest{}, fmt.Errorf("secret %q has no source", name)
		}
		if s.Mode == "" {
			s.Mode = "0600"
		}
		m.Secrets = append(m.Secrets, s)
	}
	return m, nil
}

// TargetName derives the content-addressed remote basename.
func TargetName(content []byte) string {
	sum := blake3.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// TargetPath derives the full remote path for content inside filesDir.
func TargetPath(filesDir string, content []byte) string {
	return path.Join(filesDir, TargetName(content))
}

// load reads a secret's local content.
func (s Secret) load() ([]byte, error) {
	content, err := os.ReadFile(s.Source)
	if err != nil {
		return nil, fmt.Errorf("read secret %q: %w", s.Name, err)
	}
	return content, nil
}
