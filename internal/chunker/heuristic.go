package chunker

import (
	"strings"

	"github.com/claritydesk/ragcore/internal/core/domain"
)

// charsPerToken is the character-to-token estimate used when no exact
// tokenizer is available. Four characters per token is a reasonable
// average for English prose.
const charsPerToken = 4

// HeuristicChunker walks the text in character space, estimating token
// counts as ceil(len/4). Used when the tokenizer data cannot be loaded;
// it must satisfy the same postconditions as the token chunker.
type HeuristicChunker struct {
	opts options
}

// NewHeuristicChunker creates a character-heuristic chunker.
func NewHeuristicChunker(opts ...Option) *HeuristicChunker {
	return &HeuristicChunker{opts: resolve(opts)}
}

// Mode identifies the tokenization accounting in use.
func (c *HeuristicChunker) Mode() string {
	return "heuristic"
}

// estimateTokens returns ceil(characters / charsPerToken).
func estimateTokens(n int) int {
	return (n + charsPerToken - 1) / charsPerToken
}

// Chunk splits the normalized text at paragraph or sentence boundaries
// where possible, recording character offsets in chunk metadata.
func (c *HeuristicChunker) Chunk(text string) ([]domain.TextChunk, error) {
	clean := normalizeWhitespace(text)
	if clean == "" {
		return nil, nil
	}

	if estimateTokens(len(clean)) <= c.opts.maxTokens {
		return []domain.TextChunk{{
			Content:    clean,
			Index:      0,
			TokenCount: estimateTokens(len(clean)),
			Metadata:   map[string]any{"startOffset": 0, "endOffset": len(clean)},
		}}, nil
	}

	targetChars := c.opts.maxTokens * charsPerToken
	var chunks []domain.TextChunk

	index := 0
	start := 0
	for start < len(clean) {
		end := start + targetChars
		if end > len(clean) {
			end = len(clean)
		} else {
			end = c.cutPoint(clean, start, end)
		}

		content := strings.TrimSpace(clean[start:end])
		if content != "" {
			chunks = append(chunks, domain.TextChunk{
				Content:    content,
				Index:      index,
				TokenCount: estimateTokens(len(content)),
				Metadata:   map[string]any{"startOffset": start, "endOffset": end},
			})
			index++
		}

		if end >= len(clean) {
			break
		}

		candidate := end - start
		overlapChars := candidate * c.opts.overlapTokens / c.opts.maxTokens
		step := candidate - overlapChars
		if step < 1 {
			// forward progress guard: never re-scan the same window
			step = 1
		}
		start += step
	}

	return chunks, nil
}

// cutPoint picks where to end the chunk beginning at start whose raw end
// would be rawEnd: a paragraph break past the window's 50% point if
// enabled, else a sentence boundary past the 30% point, else rawEnd.
func (c *HeuristicChunker) cutPoint(text string, start, rawEnd int) int {
	window := text[start:rawEnd]

	if c.opts.preserveParagraphs {
		if p := strings.LastIndex(window, "\n\n"); p > len(window)/2 {
			return start + p
		}
	}

	if c.opts.preserveSentences {
		if s := lastSentenceEnd(window); s > len(window)*3/10 {
			return start + s
		}
	}

	return rawEnd
}

// lastSentenceEnd returns the position just after the last sentence-ending
// punctuation followed by whitespace, or -1 when there is none.
func lastSentenceEnd(window string) int {
	for i := len(window) - 2; i >= 0; i-- {
		switch window[i] {
		case '.', '!', '?':
			next := window[i+1]
			if next == ' ' || next == '\n' || next == '\t' {
				return i + 1
			}
		}
	}
	return -1
}
