package domain

// TextChunk is a bounded span of document text produced by the chunker,
// before it is embedded and persisted. Chunks from one document, ordered
// by Index, reconstruct the cleaned source text once each chunk's
// overlapping prefix is removed.
type TextChunk struct {
	// Content is the chunk text, trimmed and never empty.
	Content string

	// Index is the 0-based sequential position within the document.
	Index int

	// TokenCount is the token count under whichever tokenization mode
	// produced the chunk (exact tokenizer count, or the 4-chars-per-token
	// heuristic). Always non-negative.
	TokenCount int

	// Metadata carries mode-specific details such as character offsets.
	Metadata map[string]any
}
