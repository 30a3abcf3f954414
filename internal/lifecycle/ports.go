package lifecycle

import (
	"context"

	"nixfleet/internal/nix"
)

// Builder is the external evaluator/builder surface the lifecycle needs:
// resolving a node's acceleration caches and realizing its artifact.
type Builder interface {
	Caches(ctx context.Context, node string) ([]nix.Cache, error)
	Build(ctx context.Context, node string, caches []nix.Cache) (string, error)
}
