package fake

import (
	"context"
	"strings"
	"testing"

	"nixfleet/internal/remote"
)

func TestRunnerUnmatchedSucceeds(t *testing.T) {
	r := &Runner{}
	out, err := r.Run(context.Background(), "n1", "true\n")
	if err != nil || out != "" {
		t.Errorf("Run = %q, %v", out, err)
	}
	if len(r.Calls()) != 1 {
		t.Errorf("calls = %d", len(r.Calls()))
	}
}

func TestRunnerFirstMatchWins(t *testing.T) {
	r := &Runner{}
	r.Respond("uname", "first", nil)
	r.Respond("uname -m", "second", nil)

	out, _ := r.Run(context.Background(), "n1", "uname -m\n")
	if out != "first" {
		t.Errorf("out = %q, want first registered rule", out)
	}
}

func TestRunnerRespondTimesExhausts(t *testing.T) {
	r := &Runner{}
	r.RespondTimes(2, "probe", "", &remote.ExitError{Code: 1})

	for i := 0; i < 2; i++ {
		if _, err := r.Run(context.Background(), "n1", "probe\n"); err == nil {
			t.Fatalf("call %d: want error while rule is live", i+1)
		}
	}
	if _, err := r.Run(context.Background(), "n1", "probe\n"); err != nil {
		t.Fatalf("exhausted rule must fall through to success: %v", err)
	}
}

func TestRunnerStreamRecordsStdin(t *testing.T) {
	r := &Runner{}
	if _, err := r.Stream(context.Background(), "n1", "tar -xzf -\n", strings.NewReader("payload")); err != nil {
		t.Fatal(err)
	}
	calls := r.CallsMatching("tar")
	if len(calls) != 1 || string(calls[0].Stdin) != "payload" {
		t.Errorf("calls = %+v", calls)
	}
}

func TestRunnerFailExit(t *testing.T) {
	r := &Runner{}
	r.FailExit("switch", 50)
	_, err := r.Run(context.Background(), "n1", "switch\n")
	if got := remote.ExitCode(err); got != 50 {
		t.Errorf("exit code = %d, want 50", got)
	}
}
