package fake

import (
	"bytes"
	"context"
	"io"

	"nixfleet/internal/nix"
)

// Builder is a canned artifact builder. Zero value: every artifact is
// valid, builds and realizations echo back deterministic paths, and
// transfers succeed.
type Builder struct {
	InvalidRefs map[string]bool
	CacheSet    []nix.Cache
	CachesErr   error
	BuildErr    error
	RealiseErr  error
	CopyErr     error
	ExportErr   error
	Bundle      []byte

	Built    []string
	Realised []string
	Copied   []string
}

func (b *Builder) ValidArtifact(_ context.Context, ref string) bool {
	return ref != "" && !b.InvalidRefs[ref]
}

func (b *Builder) Caches(context.Context, string) ([]nix.Cache, error) {
	return b.CacheSet, b.CachesErr
}

func (b *Builder) Build(_ context.Context, node string, _ []nix.Cache) (string, error) {
	if b.BuildErr != nil {
		return "", b.BuildErr
	}
	b.Built = append(b.Built, node)
	return "/nix/store/built-" + node, nil
}

func (b *Builder) Instantiate(_ context.Context, node string) (string, error) {
	if b.BuildErr != nil {
		return "", b.BuildErr
	}
	return "/nix/store/drv-" + node + ".drv", nil
}

func (b *Builder) Realise(_ context.Context, ref string, _ []nix.Cache) (string, error) {
	if b.RealiseErr != nil {
		return "", b.RealiseErr
	}
	b.Realised = append(b.Realised, ref)
	return ref, nil
}

func (b *Builder) CopyClosureTo(_ context.Context, _, ref string) error {
	if b.CopyErr != nil {
		return b.CopyErr
	}
	b.Copied = append(b.Copied, ref)
	return nil
}

func (b *Builder) ExportClosure(context.Context, string) (io.ReadCloser, error) {
	if b.ExportErr != nil {
		return nil, b.ExportErr
	}
	return io.NopCloser(bytes.NewReader(b.Bundle)), nil
}

// Prober is a canned reachability prober recording its retry budgets.
type Prober struct {
	Err     error
	Budgets []int
}

func (p *Prober) CheckReachable(_ context.Context, _ string, retries int) error {
	p.Budgets = append(p.Budgets, retries)
	return p.Err
}
