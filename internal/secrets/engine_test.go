package secrets_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"nixfleet/internal/adapter/fake"
	"nixfleet/internal/fleet"
	"nixfleet/internal/remote"
	"nixfleet/internal/secrets"
)

func writeSecret(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return p
}

func manifest(secretList ...secrets.Secret) secrets.Manifest {
	return secrets.Manifest{FilesDir: "/var/lib/nixfleet/secrets", Secrets: secretList}
}

func TestTargetNameIsContentAddressed(t *testing.T) {
	a := secrets.TargetName([]byte("hello"))
	b := secrets.TargetName([]byte("hello"))
	c := secrets.TargetName([]byte("other"))

	if a != b {
		t.Error("identical content must map to the identical name")
	}
	if a == c {
		t.Error("different content must map to different names")
	}
	if len(a) != 64 {
		t.Errorf("name length = %d, want 64 hex chars", len(a))
	}
	if got := secrets.TargetPath("/srv/sec", []byte("hello")); got != "/srv/sec/"+a {
		t.Errorf("TargetPath = %q", got)
	}
}

func TestSyncTransfersNewSecret(t *testing.T) {
	src := writeSecret(t, "db-pass", "s3cret")
	runner := &fake.Runner{}
	engine := &secrets.Engine{Runner: runner}

	m := manifest(secrets.Secret{Name: "db-pass", Source: src, Mode: "0600"})
	outcome, err := engine.Sync(context.Background(), "node1", m, secrets.Options{})
	if err != nil {
		t.Fatal(err)
	}

	if len(outcome.Transferred) != 1 || outcome.Transferred[0] != "db-pass" {
		t.Errorf("Transferred = %v", outcome.Transferred)
	}
	if outcome.InSync {
		t.Error("a fresh node is not in sync")
	}

	archives := runner.CallsMatching("tar -xzf")
	if len(archives) != 1 {
		t.Fatalf("got %d archive streams, want 1", len(archives))
	}
	if len(archives[0].Stdin) == 0 {
		t.Error("archive stream carried no payload")
	}
	if runner.CallCount("chmod -R") != 1 {
		t.Errorf("chmod calls = %d, want 1", runner.CallCount("chmod -R"))
	}
}

func TestSyncSecondRunIsIdempotent(t *testing.T) {
	const content = "s3cret"
	src := writeSecret(t, "db-pass", content)
	runner := &fake.Runner{}
	runner.Respond("ls -1", secrets.TargetName([]byte(content)), nil)
	engine := &secrets.Engine{Runner: runner}

	m := manifest(secrets.Secret{Name: "db-pass", Source: src})
	outcome, err := engine.Sync(context.Background(), "node1", m, secrets.Options{})
	if err != nil {
		t.Fatal(err)
	}

	if !outcome.InSync {
		t.Error("unchanged manifest must report in sync")
	}
	if len(outcome.Kept) != 1 {
		t.Errorf("Kept = %v, want the one secret", outcome.Kept)
	}
	if n := runner.CallCount("tar -xzf"); n != 0 {
		t.Errorf("archive streams = %d, want none", n)
	}
	if n := runner.CallCount("rm -rf"); n != 0 {
		t.Errorf("removals = %d, want none", n)
	}
}

func TestSyncRemovesStaleFiles(t *testing.T) {
	src := writeSecret(t, "db-pass", "s3cret")
	runner := &fake.Runner{}
	listing := secrets.TargetName([]byte("s3cret")) + "\n" + "deadbeef"
	runner.Respond("ls -1", listing, nil)
	engine := &secrets.Engine{Runner: runner}

	m := manifest(secrets.Secret{Name: "db-pass", Source: src})
	outcome, err := engine.Sync(context.Background(), "node1", m, secrets.Options{})
	if err != nil {
		t.Fatal(err)
	}

	if len(outcome.Removed) != 1 || outcome.Removed[0] != "deadbeef" {
		t.Errorf("Removed = %v, want [deadbeef]", outcome.Removed)
	}
	removals := runner.CallsMatching("rm -rf")
	if len(removals) != 1 || !strings.Contains(removals[0].Script, "deadbeef") {
		t.Errorf("removal call missing stale basename: %v", removals)
	}
	if n := runner.CallCount("tar -xzf"); n != 0 {
		t.Errorf("archive streams = %d, want none for a kept secret", n)
	}
}

func TestSyncDryRunTouchesNothing(t *testing.T) {
	src := writeSecret(t, "db-pass", "s3cret")
	runner := &fake.Runner{}
	runner.Respond("ls -1", "deadbeef", nil)
	engine := &secrets.Engine{Runner: runner}

	m := manifest(secrets.Secret{Name: "db-pass", Source: src})
	outcome, err := engine.Sync(context.Background(), "node1", m, secrets.Options{DryRun: true})
	if err != nil {
		t.Fatal(err)
	}

	if len(outcome.Transferred) != 1 || len(outcome.Removed) != 1 {
		t.Errorf("outcome = %+v, want one planned transfer and one planned removal", outcome)
	}
	for _, substr := range []string{"tar -xzf", "rm -rf", "chmod", "chown", "ln -sfn"} {
		if n := runner.CallCount(substr); n != 0 {
			t.Errorf("dry run issued %q %d times", substr, n)
		}
	}
}

func TestSyncForceRestagesAndReapplies(t *testing.T) {
	const content = "s3cret"
	src := writeSecret(t, "db-pass", content)
	runner := &fake.Runner{}
	runner.Respond("ls -1", secrets.TargetName([]byte(content)), nil)
	engine := &secrets.Engine{Runner: runner}

	m := manifest(secrets.Secret{Name: "db-pass", Source: src, Owner: "postgres", Group: "postgres"})
	outcome, err := engine.Sync(context.Background(), "node1", m, secrets.Options{Force: true})
	if err != nil {
		t.Fatal(err)
	}

	if outcome.InSync {
		t.Error("force must never report in sync for a non-empty manifest")
	}
	if len(outcome.Kept) != 0 {
		t.Errorf("Kept = %v, want none under force", outcome.Kept)
	}
	if n := runner.CallCount("tar -xzf"); n != 1 {
		t.Errorf("archive streams = %d, want re-transfer under force", n)
	}
	if n := runner.CallCount("chown -R"); n != 1 {
		t.Errorf("chown calls = %d, want ownership re-applied", n)
	}
}

func TestSyncUnresolvableOwnerIsSkipped(t *testing.T) {
	src := writeSecret(t, "db-pass", "s3cret")
	runner := &fake.Runner{}
	runner.FailExit("chown -R", remote.ApplyOwnerExitUnresolvable)
	engine := &secrets.Engine{Runner: runner}

	m := manifest(secrets.Secret{
		Name: "db-pass", Source: src, Owner: "nosuchuser", Group: "nosuchgroup",
		Links: []string{"/run/secrets/db-pass"},
	})
	_, err := engine.Sync(context.Background(), "node1", m, secrets.Options{})
	if err != nil {
		t.Fatalf("unresolvable owner must not fail the sync: %v", err)
	}

	if n := runner.CallCount("chmod -R"); n != 1 {
		t.Errorf("chmod calls = %d, want mode still applied", n)
	}
	if n := runner.CallCount("ln -sfn"); n != 1 {
		t.Errorf("link calls = %d, want link still created", n)
	}
}

func TestSyncMissingSourceFails(t *testing.T) {
	runner := &fake.Runner{}
	engine := &secrets.Engine{Runner: runner}

	m := manifest(secrets.Secret{Name: "gone", Source: "/nonexistent/secret"})
	_, err := engine.Sync(context.Background(), "node1", m, secrets.Options{})
	if err == nil {
		t.Fatal("want error for unreadable source")
	}
	if got := fleet.StatusOf(err, fleet.OK); got != fleet.SecretsPushFailed {
		t.Errorf("status = %s, want secrets push failed", got)
	}
	if len(runner.Calls()) != 0 {
		t.Error("no remote calls before local staging succeeds")
	}
}

func TestParseManifestDefaults(t *testing.T) {
	raw := []byte(`{"b": {"source": "/s/b"}, "a": {"source": "/s/a", "mode": "0640"}}`)
	m, err := secrets.ParseManifest(raw, "")
	if err != nil {
		t.Fatal(err)
	}
	if m.FilesDir != secrets.DefaultFilesDir {
		t.Errorf("FilesDir = %q, want default", m.FilesDir)
	}
	if len(m.Secrets) != 2 || m.Secrets[0].Name != "a" || m.Secrets[1].Name != "b" {
		t.Errorf("secrets not in sorted name order: %+v", m.Secrets)
	}
	if m.Secrets[1].Mode != "0600" {
		t.Errorf("mode = %q, want 0600 default", m.Secrets[1].Mode)
	}
}

func TestParseManifestRejectsMissingSource(t *testing.T) {
	if _, err := secrets.ParseManifest([]byte(`{"a": {}}`), ""); err == nil {
		t.Fatal("want error for secret without source")
	}
}
