package chunker

import (
	"fmt"
	"strings"

	"github.com/pkoukk/tiktoken-go"

	"github.com/claritydesk/ragcore/internal/core/domain"
)

// fallbackEncoding is used when the model has no registered encoding.
const fallbackEncoding = "cl100k_base"

// encoder is the tokenizer surface the chunker needs. Satisfied by
// *tiktoken.Tiktoken; tests substitute a deterministic implementation.
type encoder interface {
	Encode(text string, allowedSpecial, disallowedSpecial []string) []int
	Decode(tokens []int) string
}

// TokenChunker slides a fixed-size token window across the text using an
// exact tokenizer, so TokenCount is the model's real token count.
type TokenChunker struct {
	enc  encoder
	opts options
}

// NewTokenChunker creates a token-accurate chunker for the model. It
// fails when the tokenizer encoding cannot be loaded, in which case the
// caller should degrade to the heuristic chunker.
func NewTokenChunker(model string, opts ...Option) (*TokenChunker, error) {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding(fallbackEncoding)
		if err != nil {
			return nil, fmt.Errorf("load tokenizer encoding: %w", err)
		}
	}

	return &TokenChunker{
		enc:  enc,
		opts: resolve(opts),
	}, nil
}

// newTokenChunkerWithEncoder wires a custom encoder. Used by tests.
func newTokenChunkerWithEncoder(enc encoder, opts ...Option) *TokenChunker {
	return &TokenChunker{enc: enc, opts: resolve(opts)}
}

// Mode identifies the tokenization accounting in use.
func (c *TokenChunker) Mode() string {
	return "token"
}

// Chunk tokenizes the normalized text and slides a window of maxTokens
// with step maxTokens-overlap, decoding each window back to text.
func (c *TokenChunker) Chunk(text string) ([]domain.TextChunk, error) {
	clean := normalizeWhitespace(text)
	if clean == "" {
		return nil, nil
	}

	ids := c.enc.Encode(clean, nil, nil)
	if len(ids) == 0 {
		return nil, nil
	}

	if len(ids) <= c.opts.maxTokens {
		return []domain.TextChunk{{
			Content:    clean,
			Index:      0,
			TokenCount: len(ids),
			Metadata:   map[string]any{"tokenStart": 0, "tokenEnd": len(ids)},
		}}, nil
	}

	step := c.opts.maxTokens - c.opts.overlapTokens
	chunks := make([]domain.TextChunk, 0, len(ids)/step+1)

	index := 0
	for start := 0; start < len(ids); start += step {
		end := start + c.opts.maxTokens
		if end > len(ids) {
			end = len(ids)
		}

		window := ids[start:end]
		content := strings.TrimSpace(c.enc.Decode(window))
		if content != "" {
			chunks = append(chunks, domain.TextChunk{
				Content:    content,
				Index:      index,
				TokenCount: len(window),
				Metadata:   map[string]any{"tokenStart": start, "tokenEnd": end},
			})
			index++
		}

		if end == len(ids) {
			break
		}
	}

	return chunks, nil
}
