package out

import "context"

// TextPair is one directional intent comparison: what one side needs against
// what the other side offers.
type TextPair struct {
	Key   string // cache key, stable across cycles for identical inputs
	Needs string
	Offer string
}

// SemanticOracle scores how well free-text needs align with free-text offers,
// returning a similarity in [0, 1] per pair. Implementations batch aggressively;
// a cycle issues thousands of pairs.
//
// Oracle failures are advisory: callers fall back to lexical overlap and the
// cycle keeps running.
type SemanticOracle interface {
	Similarity(ctx context.Context, pairs []TextPair) (map[string]float64, error)
}
