package push

import (
	"context"
	"io"

	"nixfleet/internal/nix"
)

// Builder is the artifact surface a push consumes: validity checks,
// local realization, closure transfer primitives.
type Builder interface {
	ValidArtifact(ctx context.Context, ref string) bool
	Caches(ctx context.Context, node string) ([]nix.Cache, error)
	Instantiate(ctx context.Context, node string) (string, error)
	Realise(ctx context.Context, ref string, caches []nix.Cache) (string, error)
	CopyClosureTo(ctx context.Context, target, ref string) error
	ExportClosure(ctx context.Context, ref string) (io.ReadCloser, error)
}

// Prober re-establishes reachability after a reboot.
type Prober interface {
	CheckReachable(ctx context.Context, target string, retries int) error
}
