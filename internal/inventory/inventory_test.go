package inventory

import (
	"testing"

	"nixfleet/internal/fleet"
)

func TestDocumentGet(t *testing.T) {
	doc, err := ParseDocument([]byte(`{
		"nodes": {"web1": {"ip": "10.0.0.5", "port": 22, "tags": ["a", "b"]}}
	}`))
	if err != nil {
		t.Fatal(err)
	}

	v, ok := doc.Get("nodes.web1.ip")
	if !ok || v.String() != "10.0.0.5" {
		t.Errorf("Get ip = %q, %v", v.String(), ok)
	}
	if v, _ := doc.Get("nodes.web1.port"); v.Int() != 22 {
		t.Errorf("Int = %d, want 22", v.Int())
	}
	if v, _ := doc.Get("nodes.web1.tags"); len(v.Strings()) != 2 {
		t.Errorf("Strings = %v", v.Strings())
	}
	if _, ok := doc.Get("nodes.web2.ip"); ok {
		t.Error("missing path must report not-ok")
	}
	if _, ok := doc.Get("nodes.web1.ip.deeper"); ok {
		t.Error("traversing through a scalar must report not-ok")
	}
}

func TestTerraformTranslate(t *testing.T) {
	doc, err := ParseDocument([]byte(`{
		"nodes": {"value": {
			"web1": {"ip": "10.0.0.5", "ssh_key": "ssh-ed25519 AAAA", "region": "fi-hel"},
			"db1":  {"ip": "10.0.0.6", "provider": "hetzner"}
		}}
	}`))
	if err != nil {
		t.Fatal(err)
	}

	p, err := ProvisionerFor("terraform")
	if err != nil {
		t.Fatal(err)
	}
	nodes, err := p.Translate(doc)
	if err != nil {
		t.Fatal(err)
	}

	web1 := nodes["web1"]
	if web1.IP != "10.0.0.5" || web1.SSHKey != "ssh-ed25519 AAAA" {
		t.Errorf("web1 = %+v", web1)
	}
	if web1.Provider != "terraform" {
		t.Errorf("provider = %q, want source default", web1.Provider)
	}
	if web1.Attrs["region"] != "fi-hel" {
		t.Errorf("unrecognized attrs must be preserved: %v", web1.Attrs)
	}
	if nodes["db1"].Provider != "hetzner" {
		t.Errorf("explicit provider must win: %q", nodes["db1"].Provider)
	}
}

func TestPlainTranslate(t *testing.T) {
	doc, _ := ParseDocument([]byte(`{"nodes": {"web1": {"ip": "10.0.0.5"}}}`))
	p, _ := ProvisionerFor("plain")
	nodes, err := p.Translate(doc)
	if err != nil {
		t.Fatal(err)
	}
	if nodes["web1"].IP != "10.0.0.5" {
		t.Errorf("nodes = %+v", nodes)
	}
}

func TestTranslateRejectsNodeWithoutIP(t *testing.T) {
	doc, _ := ParseDocument([]byte(`{"nodes": {"web1": {"ssh_key": "k"}}}`))
	p, _ := ProvisionerFor("plain")
	if _, err := p.Translate(doc); err == nil {
		t.Fatal("want error for node without ip")
	}
}

func TestProvisionerForUnknown(t *testing.T) {
	_, err := ProvisionerFor("cloudformation")
	if got := fleet.StatusOf(err, fleet.OK); got != fleet.InvalidProvisioner {
		t.Errorf("status = %s, want invalid provisioner", got)
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	dir := t.TempDir()
	snap := &Snapshot{Nodes: map[string]Node{
		"web1": {Name: "web1", IP: "10.0.0.5", Provider: "plain"},
		"db1":  {Name: "db1", IP: "10.0.0.6", Provider: "plain"},
	}}
	if err := snap.Save(dir); err != nil {
		t.Fatal(err)
	}

	loaded, err := Load(dir)
	if err != nil {
		t.Fatal(err)
	}
	if got := loaded.Names(); len(got) != 2 || got[0] != "db1" || got[1] != "web1" {
		t.Errorf("Names = %v, want sorted", got)
	}
	node, err := loaded.Node("web1")
	if err != nil {
		t.Fatal(err)
	}
	if node.Name != "web1" || node.IP != "10.0.0.5" {
		t.Errorf("node = %+v", node)
	}
}

func TestLoadMissingSnapshot(t *testing.T) {
	_, err := Load(t.TempDir())
	if got := fleet.StatusOf(err, fleet.OK); got != fleet.NoInputFile {
		t.Errorf("status = %s, want no input file", got)
	}
}

func TestSelect(t *testing.T) {
	snap := &Snapshot{Nodes: map[string]Node{
		"web1": {IP: "10.0.0.5"},
		"db1":  {IP: "10.0.0.6"},
	}}

	all, err := snap.Select(nil)
	if err != nil || len(all) != 2 {
		t.Errorf("Select(nil) = %v, %v; want whole fleet", all, err)
	}

	some, err := snap.Select([]string{"web1"})
	if err != nil || len(some) != 1 || some[0] != "web1" {
		t.Errorf("Select = %v, %v", some, err)
	}

	_, err = snap.Select([]string{"web1", "ghost"})
	if got := fleet.StatusOf(err, fleet.OK); got != fleet.NoSuchInstance {
		t.Errorf("status = %s, want no such instance", got)
	}
}
