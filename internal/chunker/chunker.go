// Package chunker splits prepared document text into bounded, overlapping
// segments sized for an embedding model's input limit. It provides a
// token-accurate implementation backed by tiktoken and a character
// heuristic fallback for environments where the tokenizer data cannot be
// loaded. Both satisfy the same postconditions: contiguous 0-based
// indices, no empty chunks, guaranteed forward progress.
package chunker

import (
	"github.com/rs/zerolog/log"

	"github.com/claritydesk/ragcore/internal/core/domain"
)

// Default chunking parameters.
const (
	// DefaultMaxTokens is the hard upper bound on tokens per chunk.
	DefaultMaxTokens = 512

	// DefaultOverlapTokens is the number of trailing tokens from one chunk
	// that also begin the next, so embeddings keep cross-boundary context.
	DefaultOverlapTokens = 50
)

// Chunker splits text into ordered chunks.
type Chunker interface {
	// Chunk splits the text. Indices are contiguous from 0 and no chunk
	// has empty content. Empty or whitespace-only input yields no chunks.
	Chunk(text string) ([]domain.TextChunk, error)

	// Mode identifies the tokenization accounting in use:
	// "token" for the exact tokenizer, "heuristic" for the estimate.
	Mode() string
}

// options holds resolved chunking parameters shared by both implementations.
type options struct {
	maxTokens          int
	overlapTokens      int
	preserveParagraphs bool
	preserveSentences  bool
}

// Option configures a chunker.
type Option func(*options)

// WithMaxTokens sets the per-chunk token bound.
func WithMaxTokens(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxTokens = n
		}
	}
}

// WithOverlapTokens sets the inter-chunk overlap in tokens.
func WithOverlapTokens(n int) Option {
	return func(o *options) {
		if n >= 0 {
			o.overlapTokens = n
		}
	}
}

// WithPreserveParagraphs controls whether the heuristic splitter prefers
// paragraph boundaries.
func WithPreserveParagraphs(v bool) Option {
	return func(o *options) {
		o.preserveParagraphs = v
	}
}

// WithPreserveSentences controls whether the heuristic splitter prefers
// sentence boundaries.
func WithPreserveSentences(v bool) Option {
	return func(o *options) {
		o.preserveSentences = v
	}
}

// resolve applies opts over defaults and clamps overlap below the window
// size so the sliding window always makes forward progress.
func resolve(opts []Option) options {
	o := options{
		maxTokens:          DefaultMaxTokens,
		overlapTokens:      DefaultOverlapTokens,
		preserveParagraphs: true,
		preserveSentences:  true,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.overlapTokens >= o.maxTokens {
		o.overlapTokens = o.maxTokens - 1
	}
	return o
}

// New selects the best available chunker for the model. It probes the
// tokenizer once at construction: if the encoding loads, the
// token-accurate chunker is used, otherwise the character heuristic.
// The fallback is a designed degradation, not an error.
func New(model string, opts ...Option) Chunker {
	tc, err := NewTokenChunker(model, opts...)
	if err != nil {
		log.Warn().Err(err).Str("model", model).
			Msg("tokenizer unavailable, falling back to heuristic chunker")
		return NewHeuristicChunker(opts...)
	}
	return tc
}
