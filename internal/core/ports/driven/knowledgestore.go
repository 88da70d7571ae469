// Package driven provides interfaces for infrastructure adapters (secondary/outbound ports).
package driven

import (
	"context"

	"github.com/claritydesk/ragcore/internal/core/domain"
)

// ChunkFilter narrows chunk queries beyond the mandatory tenant and
// READY-status scoping that every read applies.
type ChunkFilter struct {
	// KnowledgeBaseIDs restricts to the given knowledge bases when non-empty.
	KnowledgeBaseIDs []string

	// SourceTypes restricts to the given source types when non-empty.
	SourceTypes []domain.SourceType
}

// ChunkHit is a chunk row returned by a search query, joined with its
// knowledge base attribution.
type ChunkHit struct {
	// ID is the chunk identifier.
	ID string

	// Content is the chunk text.
	Content string

	// ChunkIndex is the chunk's position within its document.
	ChunkIndex int

	// Metadata is the chunk metadata.
	Metadata map[string]any

	// Similarity is the cosine similarity to the query vector. Keyword
	// queries leave it at zero; the search service assigns the neutral score.
	Similarity float64

	// KnowledgeBaseID identifies the parent knowledge base.
	KnowledgeBaseID string

	// KnowledgeBaseName is the parent's display name.
	KnowledgeBaseName string

	// SourceType is the parent's source type.
	SourceType domain.SourceType

	// SourceURL is the parent's source URL, if any.
	SourceURL string

	// FileName is the parent's file name, if any.
	FileName string
}

// KnowledgeStore persists knowledge bases and chunks and answers the
// pipeline's search queries. The nearest-neighbour query is expressed here
// as a port so the core never depends on a specific storage engine's query
// API: the Postgres adapter runs it natively with pgvector, the SQLite
// adapter falls back to an in-memory rerank.
type KnowledgeStore interface {
	// CreateKnowledgeBase inserts a new knowledge base row.
	CreateKnowledgeBase(ctx context.Context, kb *domain.KnowledgeBase) error

	// GetKnowledgeBase retrieves a knowledge base scoped to a tenant.
	// Returns domain.ErrNotFound when absent or owned by another tenant.
	GetKnowledgeBase(ctx context.Context, tenantID, id string) (*domain.KnowledgeBase, error)

	// ListKnowledgeBases returns all knowledge bases for a tenant.
	ListKnowledgeBases(ctx context.Context, tenantID string) ([]domain.KnowledgeBase, error)

	// UpdateStatus transitions a knowledge base's status and merges the
	// given metadata onto the record. A transition to a non-ERROR status
	// clears any stored error message, so a record that recovers does not
	// keep advertising an old failure.
	UpdateStatus(ctx context.Context, id string, status domain.KnowledgeBaseStatus, meta domain.KnowledgeBaseMetadata) error

	// UpdateMetadata merges metadata onto the record without touching status.
	UpdateMetadata(ctx context.Context, id string, meta domain.KnowledgeBaseMetadata) error

	// SaveChunks stores a batch of chunks with their embeddings inside one
	// transaction. Either all chunks in the batch are stored or none are.
	SaveChunks(ctx context.Context, chunks []domain.KnowledgeChunk) error

	// DeleteChunks removes all chunks belonging to a knowledge base.
	DeleteChunks(ctx context.Context, knowledgeBaseID string) error

	// DeleteKnowledgeBase verifies tenant ownership, deletes all child
	// chunks, then the knowledge base row, inside one transaction.
	// Returns domain.ErrOwnershipMismatch without deleting anything when
	// the tenant does not own the knowledge base.
	DeleteKnowledgeBase(ctx context.Context, tenantID, id string) error

	// NearestChunks returns up to limit chunks closest to the query vector,
	// scoped to the tenant and to READY knowledge bases, ordered by
	// descending similarity.
	NearestChunks(ctx context.Context, tenantID string, vector []float32, filter ChunkFilter, limit int) ([]ChunkHit, error)

	// KeywordChunks returns up to limit chunks whose content contains the
	// query (case-insensitive), scoped the same way as NearestChunks.
	KeywordChunks(ctx context.Context, tenantID, query string, filter ChunkFilter, limit int) ([]ChunkHit, error)

	// AdjacentChunks returns the chunks immediately before and after the
	// given index within one knowledge base, ordered by index.
	AdjacentChunks(ctx context.Context, knowledgeBaseID string, index int) ([]domain.KnowledgeChunk, error)

	// Close releases resources.
	Close() error
}
