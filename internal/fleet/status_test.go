package fleet

import (
	"errors"
	"fmt"
	"testing"
)

func TestStatusSeverityOrder(t *testing.T) {
	if OK.Fatal() {
		t.Error("OK must not be fatal")
	}
	if PartialServiceFailure.Fatal() {
		t.Error("partial service failure is a warning, not fatal")
	}
	for _, s := range []Status{
		WrongUsage, NoDeployFile, HostUnreachable, BuildFailed,
		SecretsPushFailed, RebootRequired, HostUnreachableAfterReboot,
	} {
		if !s.Fatal() {
			t.Errorf("%s must be fatal", s)
		}
	}
	if !(RebootRequired > BuildFailed && BuildFailed > HostUnreachable) {
		t.Error("severity ordering broken")
	}
}

func TestExitCode(t *testing.T) {
	if got := OK.ExitCode(); got != 0 {
		t.Errorf("OK exit code = %d, want 0", got)
	}
	if got := PartialServiceFailure.ExitCode(); got != 0 {
		t.Errorf("warning exit code = %d, want 0", got)
	}
	if got := WrongUsage.ExitCode(); got == 0 {
		t.Error("fatal status must exit non-zero")
	}
	if BuildFailed.ExitCode() == HostUnreachable.ExitCode() {
		t.Error("distinct fatal statuses must have distinct exit codes")
	}
}

func TestWorst(t *testing.T) {
	if got := Worst(nil); got != OK {
		t.Errorf("Worst(nil) = %s, want ok", got)
	}
	results := map[string]Status{
		"a": OK,
		"b": PartialServiceFailure,
		"c": HostUnreachable,
		"d": OK,
	}
	if got := Worst(results); got != HostUnreachable {
		t.Errorf("Worst = %s, want host unreachable", got)
	}
}

func TestClassifyPreservesExisting(t *testing.T) {
	inner := Errorf(HostUnreachable, "probe failed")
	wrapped := fmt.Errorf("stage: %w", inner)

	err := Classify(BuildFailed, wrapped)
	if got := StatusOf(err, OK); got != HostUnreachable {
		t.Errorf("Classify reclassified to %s, want host unreachable kept", got)
	}
}

func TestClassifyNil(t *testing.T) {
	if Classify(BuildFailed, nil) != nil {
		t.Error("Classify(nil) must be nil")
	}
}

func TestStatusOf(t *testing.T) {
	if got := StatusOf(nil, BuildFailed); got != OK {
		t.Errorf("StatusOf(nil) = %s, want ok", got)
	}
	if got := StatusOf(errors.New("plain"), BuildFailed); got != BuildFailed {
		t.Errorf("unclassified error = %s, want fallback", got)
	}
	err := fmt.Errorf("outer: %w", Errorf(NoSuchInstance, "no node %q", "web1"))
	if got := StatusOf(err, OK); got != NoSuchInstance {
		t.Errorf("StatusOf = %s, want no such instance", got)
	}
}

func TestErrorMessage(t *testing.T) {
	err := Errorf(NoDeployFile, "missing %s", "fleet.yaml")
	want := "no deploy file: missing fleet.yaml"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}
