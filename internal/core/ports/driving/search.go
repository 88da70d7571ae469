package driving

import (
	"context"

	"github.com/claritydesk/ragcore/internal/core/domain"
)

// Searcher provides knowledge search to external actors.
type Searcher interface {
	// Search embeds the query, retrieves the nearest stored chunks scoped
	// to the tenant's READY knowledge bases, and returns ranked results.
	Search(ctx context.Context, tenantID, query string, opts domain.SearchOptions) ([]domain.SearchResult, error)
}
