// Package memory provides an in-memory implementation of the knowledge
// store, primarily useful for testing.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/claritydesk/ragcore/internal/core/domain"
	"github.com/claritydesk/ragcore/internal/core/ports/driven"
	"github.com/claritydesk/ragcore/internal/similarity"
)

// Ensure Store implements the interface.
var _ driven.KnowledgeStore = (*Store)(nil)

// Store is an in-memory knowledge store safe for concurrent use.
type Store struct {
	mu     sync.RWMutex
	bases  map[string]domain.KnowledgeBase
	chunks map[string]domain.KnowledgeChunk
}

// NewStore creates a new in-memory knowledge store.
func NewStore() *Store {
	return &Store{
		bases:  make(map[string]domain.KnowledgeBase),
		chunks: make(map[string]domain.KnowledgeChunk),
	}
}

// CreateKnowledgeBase inserts a new knowledge base.
func (s *Store) CreateKnowledgeBase(_ context.Context, kb *domain.KnowledgeBase) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	if kb.CreatedAt.IsZero() {
		kb.CreatedAt = now
	}
	kb.UpdatedAt = now

	s.bases[kb.ID] = *kb
	return nil
}

// GetKnowledgeBase retrieves a knowledge base scoped to a tenant.
func (s *Store) GetKnowledgeBase(_ context.Context, tenantID, id string) (*domain.KnowledgeBase, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	kb, ok := s.bases[id]
	if !ok || kb.TenantID != tenantID {
		return nil, domain.ErrNotFound
	}
	return &kb, nil
}

// ListKnowledgeBases returns all knowledge bases for a tenant, newest first.
func (s *Store) ListKnowledgeBases(_ context.Context, tenantID string) ([]domain.KnowledgeBase, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var bases []domain.KnowledgeBase
	for _, kb := range s.bases {
		if kb.TenantID == tenantID {
			bases = append(bases, kb)
		}
	}
	sort.Slice(bases, func(i, j int) bool {
		return bases[i].CreatedAt.After(bases[j].CreatedAt)
	})
	return bases, nil
}

// UpdateStatus transitions a knowledge base's status and merges metadata.
// A transition to a non-ERROR status clears any stored error message.
func (s *Store) UpdateStatus(_ context.Context, id string, status domain.KnowledgeBaseStatus, meta domain.KnowledgeBaseMetadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	kb, ok := s.bases[id]
	if !ok {
		return domain.ErrNotFound
	}
	kb.Status = status
	kb.Metadata = mergeMetadata(kb.Metadata, meta)
	if status != domain.StatusError {
		kb.Metadata.ErrorMessage = ""
	}
	kb.UpdatedAt = time.Now().UTC()
	s.bases[id] = kb
	return nil
}

// UpdateMetadata merges metadata without touching status.
func (s *Store) UpdateMetadata(_ context.Context, id string, meta domain.KnowledgeBaseMetadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	kb, ok := s.bases[id]
	if !ok {
		return domain.ErrNotFound
	}
	kb.Metadata = mergeMetadata(kb.Metadata, meta)
	kb.UpdatedAt = time.Now().UTC()
	s.bases[id] = kb
	return nil
}

// SaveChunks stores a batch of chunks.
func (s *Store) SaveChunks(_ context.Context, chunks []domain.KnowledgeChunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	for _, chunk := range chunks {
		if chunk.CreatedAt.IsZero() {
			chunk.CreatedAt = now
		}
		s.chunks[chunk.ID] = chunk
	}
	return nil
}

// DeleteChunks removes all chunks belonging to a knowledge base.
func (s *Store) DeleteChunks(_ context.Context, knowledgeBaseID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, chunk := range s.chunks {
		if chunk.KnowledgeBaseID == knowledgeBaseID {
			delete(s.chunks, id)
		}
	}
	return nil
}

// DeleteKnowledgeBase verifies tenant ownership, then deletes the knowledge
// base and its chunks.
func (s *Store) DeleteKnowledgeBase(_ context.Context, tenantID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	kb, ok := s.bases[id]
	if !ok {
		return domain.ErrNotFound
	}
	if kb.TenantID != tenantID {
		return domain.ErrOwnershipMismatch
	}

	for cid, chunk := range s.chunks {
		if chunk.KnowledgeBaseID == id {
			delete(s.chunks, cid)
		}
	}
	delete(s.bases, id)
	return nil
}

// NearestChunks reranks the tenant's candidate chunks in memory by cosine
// similarity to the query vector.
func (s *Store) NearestChunks(_ context.Context, tenantID string, vector []float32, filter driven.ChunkFilter, limit int) ([]driven.ChunkHit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var hits []driven.ChunkHit
	var embeddings [][]float32
	for _, chunk := range s.chunks {
		kb, ok := s.visible(chunk, tenantID, filter)
		if !ok {
			continue
		}
		hits = append(hits, toHit(chunk, kb))
		embeddings = append(embeddings, chunk.Embedding)
	}

	ranked := similarity.TopK(vector, embeddings, limit)
	results := make([]driven.ChunkHit, 0, len(ranked))
	for _, r := range ranked {
		hit := hits[r.Index]
		hit.Similarity = r.Similarity
		results = append(results, hit)
	}
	return results, nil
}

// KeywordChunks returns chunks whose content contains the query,
// case-insensitive.
func (s *Store) KeywordChunks(_ context.Context, tenantID, query string, filter driven.ChunkFilter, limit int) ([]driven.ChunkHit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	needle := strings.ToLower(query)

	var hits []driven.ChunkHit
	for _, chunk := range s.chunks {
		kb, ok := s.visible(chunk, tenantID, filter)
		if !ok {
			continue
		}
		if !strings.Contains(strings.ToLower(chunk.Content), needle) {
			continue
		}
		hits = append(hits, toHit(chunk, kb))
	}

	sort.Slice(hits, func(i, j int) bool { return hits[i].ChunkIndex < hits[j].ChunkIndex })
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// AdjacentChunks returns the chunks immediately before and after the given
// index within one knowledge base.
func (s *Store) AdjacentChunks(_ context.Context, knowledgeBaseID string, index int) ([]domain.KnowledgeChunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var chunks []domain.KnowledgeChunk
	for _, chunk := range s.chunks {
		if chunk.KnowledgeBaseID != knowledgeBaseID {
			continue
		}
		if chunk.ChunkIndex == index-1 || chunk.ChunkIndex == index+1 {
			chunks = append(chunks, chunk)
		}
	}
	sort.Slice(chunks, func(i, j int) bool { return chunks[i].ChunkIndex < chunks[j].ChunkIndex })
	return chunks, nil
}

// Close releases resources.
func (s *Store) Close() error {
	return nil
}

// visible reports whether a chunk is in scope for the tenant and filter,
// returning its parent knowledge base when it is.
func (s *Store) visible(chunk domain.KnowledgeChunk, tenantID string, filter driven.ChunkFilter) (domain.KnowledgeBase, bool) {
	kb, ok := s.bases[chunk.KnowledgeBaseID]
	if !ok || kb.TenantID != tenantID || kb.Status != domain.StatusReady {
		return kb, false
	}
	if len(filter.KnowledgeBaseIDs) > 0 && !contains(filter.KnowledgeBaseIDs, kb.ID) {
		return kb, false
	}
	if len(filter.SourceTypes) > 0 {
		match := false
		for _, st := range filter.SourceTypes {
			if st == kb.SourceType {
				match = true
				break
			}
		}
		if !match {
			return kb, false
		}
	}
	return kb, true
}

func toHit(chunk domain.KnowledgeChunk, kb domain.KnowledgeBase) driven.ChunkHit {
	return driven.ChunkHit{
		ID:                chunk.ID,
		Content:           chunk.Content,
		ChunkIndex:        chunk.ChunkIndex,
		Metadata:          chunk.Metadata,
		KnowledgeBaseID:   kb.ID,
		KnowledgeBaseName: kb.Name,
		SourceType:        kb.SourceType,
		SourceURL:         kb.SourceURL,
		FileName:          kb.FileName,
	}
}

func contains(values []string, v string) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}

// mergeMetadata overlays non-zero fields of incoming onto current.
func mergeMetadata(current, incoming domain.KnowledgeBaseMetadata) domain.KnowledgeBaseMetadata {
	if incoming.OriginalLength != 0 {
		current.OriginalLength = incoming.OriginalLength
	}
	if incoming.ProcessedLength != 0 {
		current.ProcessedLength = incoming.ProcessedLength
	}
	if incoming.TotalChunks != 0 {
		current.TotalChunks = incoming.TotalChunks
	}
	if incoming.TotalTokens != 0 {
		current.TotalTokens = incoming.TotalTokens
	}
	if incoming.EmbeddingCount != 0 {
		current.EmbeddingCount = incoming.EmbeddingCount
	}
	if incoming.ErrorMessage != "" {
		current.ErrorMessage = incoming.ErrorMessage
	}
	if incoming.ProcessedAt != nil {
		current.ProcessedAt = incoming.ProcessedAt
	}
	if len(incoming.Extra) > 0 {
		if current.Extra == nil {
			current.Extra = make(map[string]string, len(incoming.Extra))
		}
		for k, v := range incoming.Extra {
			current.Extra[k] = v
		}
	}
	return current
}
