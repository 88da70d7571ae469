package services

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/claritydesk/ragcore/internal/core/domain"
	"github.com/claritydesk/ragcore/internal/core/ports/driven"
	"github.com/claritydesk/ragcore/internal/core/ports/driving"
)

// Ensure SearchService implements the interface.
var _ driving.Searcher = (*SearchService)(nil)

// SearchConfig tunes retrieval behaviour.
type SearchConfig struct {
	// DefaultLimit is used when the caller passes no limit (default 10).
	DefaultLimit int

	// MaxLimit is the hard ceiling on requested limits (default 50).
	MaxLimit int

	// DefaultMinSimilarity filters weak matches when the caller sets no
	// threshold (default 0.3; a strict 0.7 hurts recall on short
	// colloquial queries).
	DefaultMinSimilarity float64

	// VectorShare is the fraction of the limit drawn from vector search
	// in hybrid mode (default 0.7); the rest comes from keyword matches.
	VectorShare float64

	// KeywordScore is the fixed neutral similarity assigned to keyword
	// hits, which were never vector-ranked (default 0.5).
	KeywordScore float64
}

func (c *SearchConfig) applyDefaults() {
	if c.DefaultLimit <= 0 {
		c.DefaultLimit = 10
	}
	if c.MaxLimit <= 0 {
		c.MaxLimit = 50
	}
	if c.DefaultMinSimilarity <= 0 {
		c.DefaultMinSimilarity = 0.3
	}
	if c.VectorShare <= 0 || c.VectorShare > 1 {
		c.VectorShare = 0.7
	}
	if c.KeywordScore <= 0 {
		c.KeywordScore = 0.5
	}
}

// SearchService retrieves ranked chunks for a tenant's query. It embeds
// the query, asks the store for the nearest chunks, optionally blends in
// keyword matches, and optionally expands results with their neighbours.
type SearchService struct {
	store    driven.KnowledgeStore
	embedder driven.EmbeddingService
	cfg      SearchConfig
	log      zerolog.Logger
}

// NewSearchService creates a new search service.
func NewSearchService(
	store driven.KnowledgeStore,
	embedder driven.EmbeddingService,
	cfg SearchConfig,
	log zerolog.Logger,
) *SearchService {
	cfg.applyDefaults()
	return &SearchService{
		store:    store,
		embedder: embedder,
		cfg:      cfg,
		log:      log,
	}
}

// Search runs a vector or hybrid search scoped to the tenant's READY
// knowledge bases.
func (s *SearchService) Search(ctx context.Context, tenantID, query string, opts domain.SearchOptions) ([]domain.SearchResult, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenant ID is required", domain.ErrInvalidInput)
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return []domain.SearchResult{}, nil
	}
	if s.embedder == nil {
		return nil, domain.ErrEmbeddingUnavailable
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = s.cfg.DefaultLimit
	}
	if limit > s.cfg.MaxLimit {
		limit = s.cfg.MaxLimit
	}
	minSimilarity := opts.MinSimilarity
	if minSimilarity <= 0 {
		minSimilarity = s.cfg.DefaultMinSimilarity
	}

	filter := driven.ChunkFilter{
		KnowledgeBaseIDs: opts.KnowledgeBaseIDs,
		SourceTypes:      opts.SourceTypes,
	}

	var hits []driven.ChunkHit
	var err error
	if opts.Hybrid {
		hits, err = s.hybridSearch(ctx, tenantID, query, filter, limit, minSimilarity)
	} else {
		hits, err = s.vectorSearch(ctx, tenantID, query, filter, limit, minSimilarity)
	}
	if err != nil {
		return nil, err
	}

	results := make([]domain.SearchResult, len(hits))
	for i, hit := range hits {
		results[i] = domain.SearchResult{
			ID:                hit.ID,
			Content:           hit.Content,
			Similarity:        hit.Similarity,
			Metadata:          hit.Metadata,
			KnowledgeBaseID:   hit.KnowledgeBaseID,
			KnowledgeBaseName: hit.KnowledgeBaseName,
			SourceType:        hit.SourceType,
			SourceURL:         hit.SourceURL,
			FileName:          hit.FileName,
		}
	}

	if opts.ExpandContext {
		s.expandContext(ctx, hits, results)
	}

	s.log.Debug().
		Str("tenant_id", tenantID).
		Int("results", len(results)).
		Bool("hybrid", opts.Hybrid).
		Msg("search complete")

	return results, nil
}

// vectorSearch embeds the query and retrieves the nearest chunks at or
// above the similarity threshold.
func (s *SearchService) vectorSearch(ctx context.Context, tenantID, query string, filter driven.ChunkFilter, limit int, minSimilarity float64) ([]driven.ChunkHit, error) {
	vector, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	hits, err := s.store.NearestChunks(ctx, tenantID, vector, filter, limit)
	if err != nil {
		return nil, fmt.Errorf("nearest chunks: %w", err)
	}

	filtered := hits[:0]
	for _, hit := range hits {
		if hit.Similarity >= minSimilarity {
			filtered = append(filtered, hit)
		}
	}
	return filtered, nil
}

// hybridSearch draws most of the limit from vector search and the rest
// from keyword matches, merges with first-occurrence-wins deduplication,
// and re-sorts by similarity. A keyword failure degrades to vector-only.
func (s *SearchService) hybridSearch(ctx context.Context, tenantID, query string, filter driven.ChunkFilter, limit int, minSimilarity float64) ([]driven.ChunkHit, error) {
	vectorLimit := int(math.Ceil(float64(limit) * s.cfg.VectorShare))
	keywordLimit := limit - vectorLimit
	if keywordLimit < 1 {
		keywordLimit = 1
	}

	vectorHits, err := s.vectorSearch(ctx, tenantID, query, filter, vectorLimit, minSimilarity)
	if err != nil {
		return nil, err
	}

	keywordHits, err := s.store.KeywordChunks(ctx, tenantID, query, filter, keywordLimit)
	if err != nil {
		s.log.Warn().Err(err).Msg("keyword search failed, using vector results only")
		return vectorHits, nil
	}
	for i := range keywordHits {
		keywordHits[i].Similarity = s.cfg.KeywordScore
	}

	seen := make(map[string]bool, len(vectorHits)+len(keywordHits))
	merged := make([]driven.ChunkHit, 0, len(vectorHits)+len(keywordHits))
	for _, hit := range append(vectorHits, keywordHits...) {
		if seen[hit.ID] {
			continue
		}
		seen[hit.ID] = true
		merged = append(merged, hit)
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Similarity > merged[j].Similarity
	})
	if len(merged) > limit {
		merged = merged[:limit]
	}
	return merged, nil
}

// expandContext replaces each result's content with the concatenation of
// its neighbouring chunks. A failed neighbour fetch leaves that result's
// original content in place.
func (s *SearchService) expandContext(ctx context.Context, hits []driven.ChunkHit, results []domain.SearchResult) {
	for i, hit := range hits {
		neighbours, err := s.store.AdjacentChunks(ctx, hit.KnowledgeBaseID, hit.ChunkIndex)
		if err != nil {
			s.log.Warn().
				Err(err).
				Str("chunk_id", hit.ID).
				Msg("context expansion failed, keeping original content")
			continue
		}
		if len(neighbours) == 0 {
			continue
		}

		parts := make([]string, 0, len(neighbours)+1)
		inserted := false
		for _, n := range neighbours {
			if !inserted && n.ChunkIndex > hit.ChunkIndex {
				parts = append(parts, hit.Content)
				inserted = true
			}
			parts = append(parts, n.Content)
		}
		if !inserted {
			parts = append(parts, hit.Content)
		}
		results[i].Content = strings.Join(parts, "\n\n")
	}
}
