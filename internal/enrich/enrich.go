// Package enrich resolves free-text titles into structured catalog
// candidates (movies, TV shows) that the assistant offers for confirmation
// before saving. Implementations are remote catalogs; a nil or unconfigured
// searcher degrades saves to plain, unenriched items.
package enrich

import (
	"context"
	"errors"

	"github.com/psousaj/nexo-ai-sub000/internal/domain"
)

// ErrUnconfigured is returned by searchers that have no API credentials.
// Callers treat it as "no candidates", not as a failure.
var ErrUnconfigured = errors.New("enrichment searcher not configured")

// Searcher looks up catalog candidates for a query. Implementations must cap
// results at limit and return them best-match first. An empty slice with a
// nil error means the catalog had no match.
type Searcher interface {
	Search(ctx context.Context, query string, itemType domain.ItemType, limit int) ([]domain.Candidate, error)
}

// Noop is a Searcher that never finds anything. Used when no catalog
// credentials are configured.
type Noop struct{}

// Search always returns ErrUnconfigured.
func (Noop) Search(context.Context, string, domain.ItemType, int) ([]domain.Candidate, error) {
	return nil, ErrUnconfigured
}
