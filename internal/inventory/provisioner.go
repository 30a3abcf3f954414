package inventory

import (
	"fmt"
	"sort"

	"nixfleet/internal/fleet"
)

// Provisioner translates one infrastructure source's document shape into
// the common inventory shape. Implementations are pure translations; they
// never talk to the infrastructure themselves.
type Provisioner interface {
	Translate(doc Document) (map[string]Node, error)
}

var provisioners = map[string]Provisioner{
	"terraform": terraformProvisioner{},
	"plain":     plainProvisioner{},
}

// ProvisionerFor looks up a provisioner adapter by name.
func ProvisionerFor(name string) (Provisioner, error) {
	p, ok := provisioners[name]
	if !ok {
		return nil, fleet.Errorf(fleet.InvalidProvisioner, "unknown provisioner %q (have %v)", name, provisionerNames())
	}
	return p, nil
}

func provisionerNames() []string {
	names := make([]string, 0, len(provisioners))
	for name := range provisioners {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// terraformProvisioner consumes `terraform output -json`: every output
// whose value is an object of node objects contributes nodes. The
// conventional layout is a single `nodes` output:
//
//	{"nodes": {"value": {"web1": {"ip": "...", "ssh_key": "..."}}}}
type terraformProvisioner struct{}

func (terraformProvisioner) Translate(doc Document) (map[string]Node, error) {
	out := make(map[string]Node)
	for outputName := range doc {
		val, ok := doc.Get(outputName + ".value")
		if !ok {
			return nil, fleet.Errorf(fleet.InvalidProvisioner, "terraform output %q has no value field", outputName)
		}
		for name, raw := range val.Map() {
			attrs, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			node, err := nodeFromAttrs(name, attrs, "terraform")
			if err != nil {
				return nil, err
			}
			out[name] = node
		}
	}
	if len(out) == 0 {
		return nil, fleet.Errorf(fleet.InvalidProvisioner, "terraform document yields no nodes")
	}
	return out, nil
}

// plainProvisioner consumes a document already in inventory shape:
// {"nodes": {"web1": {"ip": ...}}, "meta": {...}}.
type plainProvisioner struct{}

func (plainProvisioner) Translate(doc Document) (map[string]Node, error) {
	nodesVal, ok := doc.Get("nodes")
	if !ok {
		return nil, fleet.Errorf(fleet.InvalidProvisioner, "document has no nodes object")
	}
	out := make(map[string]Node)
	for name, raw := range nodesVal.Map() {
		attrs, ok := raw.(map[string]any)
		if !ok {
			return nil, fleet.Errorf(fleet.InvalidProvisioner, "node %q is not an object", name)
		}
		node, err := nodeFromAttrs(name, attrs, "plain")
		if err != nil {
			return nil, err
		}
		out[name] = node
	}
	if len(out) == 0 {
		return nil, fleet.Errorf(fleet.InvalidProvisioner, "document yields no nodes")
	}
	return out, nil
}

func nodeFromAttrs(name string, attrs map[string]any, defaultProvider string) (Node, error) {
	node := Node{Name: name, Provider: defaultProvider, Attrs: make(map[string]any)}
	for k, v := range attrs {
		switch k {
		case "ip":
			node.IP, _ = v.(string)
		case "provider":
			if s, ok := v.(string); ok && s != "" {
				node.Provider = s
			}
		case "ssh_key":
			node.SSHKey, _ = v.(string)
		default:
			node.Attrs[k] = v
		}
	}
	if node.IP == "" {
		return Node{}, fmt.Errorf("node %q has no ip", name)
	}
	if len(node.Attrs) == 0 {
		node.Attrs = nil
	}
	return node, nil
}
