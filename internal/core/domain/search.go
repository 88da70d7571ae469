package domain

// SearchOptions configures a knowledge search.
type SearchOptions struct {
	// Limit is the maximum number of results. Values <= 0 use the service
	// default; values above the service ceiling are clamped.
	Limit int

	// MinSimilarity filters out results below this cosine similarity.
	// Values <= 0 use the service default.
	MinSimilarity float64

	// KnowledgeBaseIDs restricts search to the given knowledge bases.
	KnowledgeBaseIDs []string

	// SourceTypes restricts search to the given source types.
	SourceTypes []SourceType

	// Hybrid blends vector results with keyword matches.
	Hybrid bool

	// ExpandContext fetches the chunks adjacent to each result and
	// concatenates them as extended context.
	ExpandContext bool
}

// SearchResult is a single ranked hit. It is ephemeral and never stored.
type SearchResult struct {
	// ID is the matched chunk's identifier.
	ID string

	// Content is the chunk text, possibly expanded with adjacent chunks.
	Content string

	// Similarity is the cosine similarity score. Keyword-only hits carry
	// a fixed neutral score since they were not vector-ranked.
	Similarity float64

	// Metadata is the chunk metadata.
	Metadata map[string]any

	// KnowledgeBaseID identifies the source knowledge base.
	KnowledgeBaseID string

	// KnowledgeBaseName is the source knowledge base's display name.
	KnowledgeBaseName string

	// SourceType records how the source was ingested.
	SourceType SourceType

	// SourceURL is set for WEBSITE sources.
	SourceURL string

	// FileName is set for UPLOAD sources.
	FileName string
}
