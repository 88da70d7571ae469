package chunker

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeuristicChunker_SingleChunk(t *testing.T) {
	c := NewHeuristicChunker(WithMaxTokens(100), WithOverlapTokens(10))

	chunks, err := c.Chunk("a short piece of text")
	require.NoError(t, err)
	require.Len(t, chunks, 1)

	assert.Equal(t, "a short piece of text", chunks[0].Content)
	assert.Equal(t, 0, chunks[0].Index)
	// ceil(21 / 4) = 6
	assert.Equal(t, 6, chunks[0].TokenCount)
	assert.Equal(t, 0, chunks[0].Metadata["startOffset"])
	assert.Equal(t, 21, chunks[0].Metadata["endOffset"])
}

func TestHeuristicChunker_EmptyInput(t *testing.T) {
	c := NewHeuristicChunker()

	for _, input := range []string{"", "  ", "\n \n"} {
		chunks, err := c.Chunk(input)
		require.NoError(t, err)
		assert.Empty(t, chunks)
	}
}

func TestHeuristicChunker_MultipleChunks(t *testing.T) {
	c := NewHeuristicChunker(WithMaxTokens(25), WithOverlapTokens(5))

	text := strings.Repeat("the quick brown fox jumps over the lazy dog. ", 30)
	chunks, err := c.Chunk(text)
	require.NoError(t, err)
	require.Greater(t, len(chunks), 1)

	for i, chunk := range chunks {
		assert.Equal(t, i, chunk.Index, "indices must be contiguous from 0")
		assert.NotEmpty(t, chunk.Content)
		assert.Positive(t, chunk.TokenCount)
	}
}

func TestHeuristicChunker_SentenceBoundary(t *testing.T) {
	c := NewHeuristicChunker(WithMaxTokens(25), WithOverlapTokens(0), WithPreserveParagraphs(false))

	text := strings.Repeat("this sentence has forty characters okay. ", 10)
	chunks, err := c.Chunk(text)
	require.NoError(t, err)
	require.Greater(t, len(chunks), 1)

	// With sentence preservation, every chunk but the last ends at a
	// sentence boundary rather than mid-word.
	for _, chunk := range chunks[:len(chunks)-1] {
		assert.True(t, strings.HasSuffix(chunk.Content, "."),
			"chunk should end at a sentence boundary, got %q", chunk.Content)
	}
}

func TestHeuristicChunker_ParagraphBoundary(t *testing.T) {
	c := NewHeuristicChunker(WithMaxTokens(30), WithOverlapTokens(0))

	// Two paragraphs whose combined estimate exceeds maxTokens; the break
	// sits past the 50% point of the first window.
	para1 := strings.Repeat("alpha beta gamma delta ", 4) // 92 chars
	para2 := strings.Repeat("epsilon zeta eta theta ", 4)
	text := strings.TrimSpace(para1) + "\n\n" + strings.TrimSpace(para2)

	chunks, err := c.Chunk(text)
	require.NoError(t, err)
	require.Greater(t, len(chunks), 1)

	assert.Equal(t, strings.TrimSpace(para1), chunks[0].Content)
}

func TestHeuristicChunker_RawCutWithoutBoundaries(t *testing.T) {
	c := NewHeuristicChunker(WithMaxTokens(10), WithOverlapTokens(0),
		WithPreserveParagraphs(false), WithPreserveSentences(false))

	text := strings.Repeat("x", 100)
	chunks, err := c.Chunk(text)
	require.NoError(t, err)
	require.Len(t, chunks, 3)

	assert.Len(t, chunks[0].Content, 40)
	assert.Len(t, chunks[1].Content, 40)
	assert.Len(t, chunks[2].Content, 20)
}

func TestHeuristicChunker_ForwardProgress(t *testing.T) {
	// Overlap just below the clamp: step stays positive and the loop
	// terminates even on pathological input.
	c := NewHeuristicChunker(WithMaxTokens(2), WithOverlapTokens(1),
		WithPreserveParagraphs(false), WithPreserveSentences(false))

	chunks, err := c.Chunk(strings.Repeat("ab ", 50))
	require.NoError(t, err)
	require.NotEmpty(t, chunks)

	for i, chunk := range chunks {
		assert.Equal(t, i, chunk.Index)
		assert.NotEmpty(t, chunk.Content)
	}
}

func TestHeuristicChunker_OffsetsRecorded(t *testing.T) {
	c := NewHeuristicChunker(WithMaxTokens(10), WithOverlapTokens(2),
		WithPreserveParagraphs(false), WithPreserveSentences(false))

	text := strings.Repeat("y", 90)
	chunks, err := c.Chunk(text)
	require.NoError(t, err)
	require.Greater(t, len(chunks), 1)

	for _, chunk := range chunks {
		start := chunk.Metadata["startOffset"].(int)
		end := chunk.Metadata["endOffset"].(int)
		assert.Less(t, start, end)
		assert.Equal(t, text[start:end], chunk.Content)
	}
}

func TestHeuristicChunker_Mode(t *testing.T) {
	assert.Equal(t, "heuristic", NewHeuristicChunker().Mode())
}

func TestResolveClampsOverlap(t *testing.T) {
	o := resolve([]Option{WithMaxTokens(10), WithOverlapTokens(10)})
	assert.Equal(t, 9, o.overlapTokens)

	o = resolve(nil)
	assert.Equal(t, DefaultMaxTokens, o.maxTokens)
	assert.Equal(t, DefaultOverlapTokens, o.overlapTokens)
	assert.True(t, o.preserveParagraphs)
	assert.True(t, o.preserveSentences)
}
