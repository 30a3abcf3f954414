package nix

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Cache is one acceleration-cache endpoint consulted during realization.
type Cache struct {
	URL       string `json:"url"`
	PublicKey string `json:"public_key,omitempty"`
}

// Caches resolves the acceleration-cache endpoints declared for a node.
// A node without a caches attribute simply has none.
func (n *Nix) Caches(ctx context.Context, node string) ([]Cache, error) {
	raw, err := n.EvalJSON(ctx, "nodes."+node+".caches")
	if err != nil {
		// Leave the distinction between "no attribute" and a broken
		// expression to the evaluator's own error text: either way the
		// push proceeds without extra caches only in the former case.
		if IsMissingAttr(err) {
			return nil, nil
		}
		return nil, err
	}

	var caches []Cache
	if err := json.Unmarshal(raw, &caches); err != nil {
		return nil, fmt.Errorf("parse caches for %s: %w", node, err)
	}
	return caches, nil
}

func cacheFlags(caches []Cache) []string {
	if len(caches) == 0 {
		return nil
	}
	var urls, keys string
	for _, c := range caches {
		if urls != "" {
			urls += " "
		}
		urls += c.URL
		if c.PublicKey != "" {
			if keys != "" {
				keys += " "
			}
			keys += c.PublicKey
		}
	}
	flags := []string{"--option", "extra-substituters", urls}
	if keys != "" {
		flags = append(flags, "--option", "trusted-public-keys", keys)
	}
	return flags
}

// IsMissingAttr reports whether err is the evaluator complaining about an
// absent attribute, as opposed to a broken expression.
func IsMissingAttr(err error) bool {
	var be *BuildError
	if !errors.As(err, &be) {
		return false
	}
	return strings.Contains(be.Output, "does not exist in the given attribute set") ||
		(strings.Contains(be.Output, "attribute") && strings.Contains(be.Output, "missing"))
}
