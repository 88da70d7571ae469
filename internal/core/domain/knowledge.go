package domain

import "time"

// SourceType identifies how a knowledge base was created.
type SourceType string

const (
	// SourceUpload is a document uploaded as a file.
	SourceUpload SourceType = "UPLOAD"
	// SourceWebsite is text extracted from a fetched web page.
	SourceWebsite SourceType = "WEBSITE"
	// SourceManual is text entered directly by the user.
	SourceManual SourceType = "MANUAL"
)

// Valid reports whether the source type is one of the known values.
func (s SourceType) Valid() bool {
	switch s {
	case SourceUpload, SourceWebsite, SourceManual:
		return true
	}
	return false
}

// KnowledgeBaseStatus tracks the ingestion lifecycle of a knowledge base.
// The only transitions are PROCESSING -> READY and PROCESSING -> ERROR;
// both targets are terminal for a given ingestion run.
type KnowledgeBaseStatus string

const (
	// StatusProcessing means ingestion is in progress. Chunks belonging to
	// a PROCESSING knowledge base are invisible to search.
	StatusProcessing KnowledgeBaseStatus = "PROCESSING"
	// StatusReady means all chunks and embeddings are durably stored.
	StatusReady KnowledgeBaseStatus = "READY"
	// StatusError means ingestion failed; Metadata.ErrorMessage holds the reason.
	StatusError KnowledgeBaseStatus = "ERROR"
)

// KnowledgeBase represents one ingested document or source and its
// derived chunks. It is owned by the ingestion pipeline; search only
// ever reads it.
type KnowledgeBase struct {
	// ID is the unique identifier.
	ID string

	// TenantID is the owning tenant. All reads are scoped to it.
	TenantID string

	// Name is the human-readable name.
	Name string

	// Description is an optional free-text description.
	Description string

	// SourceType records how the content was obtained.
	SourceType SourceType

	// SourceURL is set for WEBSITE sources.
	SourceURL string

	// FileName is set for UPLOAD sources.
	FileName string

	// Status is the ingestion lifecycle state.
	Status KnowledgeBaseStatus

	// Metadata holds ingestion accounting and error details.
	Metadata KnowledgeBaseMetadata

	// CreatedAt is when ingestion started.
	CreatedAt time.Time

	// UpdatedAt is when the record last changed.
	UpdatedAt time.Time
}

// KnowledgeBaseMetadata is the closed set of metadata fields the pipeline
// writes, plus an opaque map for provider or debug extras. Core accounting
// stays strongly typed while extensibility is preserved.
type KnowledgeBaseMetadata struct {
	// OriginalLength is the character length of the raw input text.
	OriginalLength int `json:"originalLength,omitempty"`

	// ProcessedLength is the character length after preparation.
	ProcessedLength int `json:"processedLength,omitempty"`

	// TotalChunks is the number of chunks stored.
	TotalChunks int `json:"totalChunks,omitempty"`

	// TotalTokens is the sum of per-chunk token counts.
	TotalTokens int `json:"totalTokens,omitempty"`

	// EmbeddingCount is the number of embeddings generated.
	EmbeddingCount int `json:"embeddingCount,omitempty"`

	// ErrorMessage is the human-readable failure reason when Status is ERROR.
	ErrorMessage string `json:"errorMessage,omitempty"`

	// ProcessedAt is when ingestion reached a terminal status.
	ProcessedAt *time.Time `json:"processedAt,omitempty"`

	// Extra carries provider-specific values that have no typed field.
	Extra map[string]string `json:"extra,omitempty"`
}

// KnowledgeChunk is one persisted chunk with its embedding. Its lifetime
// is bound to the parent knowledge base: deleting the knowledge base
// deletes all its chunks in the same transaction.
type KnowledgeChunk struct {
	// ID is the unique identifier.
	ID string

	// KnowledgeBaseID references the parent knowledge base.
	KnowledgeBaseID string

	// Content is the chunk text.
	Content string

	// ChunkIndex is the 0-based position within the document.
	ChunkIndex int

	// Metadata contains chunk-specific key-value pairs.
	Metadata map[string]any

	// Embedding is the vector representation. Its dimension is fixed by
	// the embedding model and must be constant across all chunks.
	Embedding []float32

	// CreatedAt is when the chunk was stored.
	CreatedAt time.Time
}
