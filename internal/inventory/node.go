// Package inventory holds the node inventory: who the fleet's nodes are,
// where the snapshot generated from an infrastructure state source lives,
// and a typed path-query view over the otherwise schema-opaque documents
// the external provisioners and evaluators produce.
package inventory

// Node is one managed remote host. Nodes come from the inventory snapshot
// and are immutable for the duration of a run.
type Node struct {
	Name     string         `json:"-"`
	IP       string         `json:"ip"`
	Provider string         `json:"provider,omitempty"`
	SSHKey   string         `json:"ssh_key,omitempty"`
	Attrs    map[string]any `json:"attrs,omitempty"`
}
