// Package fake provides deterministic in-memory stand-ins for the
// external surfaces the deployment pipeline touches.
package fake

import (
	"context"
	"io"
	"strings"
	"sync"

	"nixfleet/internal/remote"
)

// Call records one script execution against the fake runner.
type Call struct {
	Target string
	Script string
	Stdin  []byte
}

// rule matches scripts by substring and replays a canned response,
// optionally only a limited number of times.
type rule struct {
	substr string
	output string
	err    error
	times  int // 0 means unlimited
}

// Runner is a scripted remote.Runner. Scripts are matched against
// registered rules by substring, first match wins; unmatched scripts
// succeed with empty output.
type Runner struct {
	mu    sync.Mutex
	calls []Call
	rules []*rule
}

var _ remote.Runner = (*Runner)(nil)

// Respond registers a canned response for scripts containing substr.
func (r *Runner) Respond(substr, output string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rules = append(r.rules, &rule{substr: substr, output: output, err: err})
}

// RespondTimes is Respond limited to the first n matching calls.
func (r *Runner) RespondTimes(n int, substr, output string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rules = append(r.rules, &rule{substr: substr, output: output, err: err, times: n})
}

// FailExit registers an *remote.ExitError response with the given code.
func (r *Runner) FailExit(substr string, code int) {
	r.Respond(substr, "", &remote.ExitError{Code: code})
}

func (r *Runner) Run(_ context.Context, target, script string) (string, error) {
	return r.dispatch(target, script, nil)
}

func (r *Runner) Stream(_ context.Context, target, script string, stdin io.Reader) (string, error) {
	var payload []byte
	if stdin != nil {
		payload, _ = io.ReadAll(stdin)
	}
	return r.dispatch(target, script, payload)
}

func (r *Runner) dispatch(target, script string, stdin []byte) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, Call{Target: target, Script: script, Stdin: stdin})

	for _, rl := range r.rules {
		if !strings.Contains(script, rl.substr) {
			continue
		}
		if rl.times < 0 {
			continue // exhausted
		}
		if rl.times > 0 {
			rl.times--
			if rl.times == 0 {
				rl.times = -1
			}
		}
		return rl.output, rl.err
	}
	return "", nil
}

// Calls returns all recorded calls.
func (r *Runner) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Call(nil), r.calls...)
}

// CallsMatching returns recorded calls whose script contains substr.
func (r *Runner) CallsMatching(substr string) []Call {
	var out []Call
	for _, c := range r.Calls() {
		if strings.Contains(c.Script, substr) {
			out = append(out, c)
		}
	}
	return out
}

// CallCount counts calls whose script contains substr.
func (r *Runner) CallCount(substr string) int {
	return len(r.CallsMatching(substr))
}
