package fleet

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Op is one per-node pipeline stage. The logger is pre-tagged with the
// node's name; every line the stage emits is attributable to its node.
type Op func(ctx context.Context, node string, log *slog.Logger) Status

// Pool fans an Op out across node names with bounded concurrency.
//
// Each node's failure is isolated: a fatal status on one node never cancels
// or blocks the others. A single node's own stages are strictly sequential
// because the node occupies one worker for its whole run.
type Pool struct {
	// Width is the worker count. Zero or negative means sequential.
	Width int
}

// Run executes op once per node and returns the status of every node.
// Duplicate names are collapsed so a node is never scheduled twice.
func (p *Pool) Run(ctx context.Context, nodes []string, op Op) map[string]Status {
	width := p.Width
	if width < 1 {
		width = 1
	}

	var (
		mu      sync.Mutex
		results = make(map[string]Status, len(nodes))
	)

	g := &errgroup.Group{}
	g.SetLimit(width)
	for _, node := range dedupe(nodes) {
		node := node
		g.Go(func() error {
			status := op(ctx, node, slog.With("node", node))
			mu.Lock()
			results[node] = status
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// RunStages executes stages in order, each as a whole-set barrier: every
// node finishes stage i before any node starts stage i+1. A node that went
// fatal in an earlier stage is skipped in later ones and keeps its first
// fatal status.
func (p *Pool) RunStages(ctx context.Context, nodes []string, stages ...Op) map[string]Status {
	results := make(map[string]Status, len(nodes))
	remaining := dedupe(nodes)
	for _, node := range remaining {
		results[node] = OK
	}

	for _, stage := range stages {
		if len(remaining) == 0 {
			break
		}
		stageResults := p.Run(ctx, remaining, stage)

		next := remaining[:0]
		for _, node := range remaining {
			s := stageResults[node]
			if s > results[node] {
				results[node] = s
			}
			if !s.Fatal() {
				next = append(next, node)
			}
		}
		remaining = next
	}
	return results
}

func dedupe(nodes []string) []string {
	seen := make(map[string]struct{}, len(nodes))
	out := make([]string, 0, len(nodes))
	for _, n := range nodes {
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}
