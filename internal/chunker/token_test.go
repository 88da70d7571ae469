package chunker

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// wordEncoder is a deterministic encoder for tests: one token per
// whitespace-separated word.
type wordEncoder struct {
	vocab map[string]int
	words []string
}

func newWordEncoder() *wordEncoder {
	return &wordEncoder{vocab: make(map[string]int)}
}

func (e *wordEncoder) Encode(text string, _, _ []string) []int {
	fields := strings.Fields(text)
	ids := make([]int, len(fields))
	for i, w := range fields {
		id, ok := e.vocab[w]
		if !ok {
			id = len(e.words)
			e.vocab[w] = id
			e.words = append(e.words, w)
		}
		ids[i] = id
	}
	return ids
}

func (e *wordEncoder) Decode(tokens []int) string {
	words := make([]string, len(tokens))
	for i, id := range tokens {
		words[i] = e.words[id]
	}
	return strings.Join(words, " ")
}

// sentence produces n words of distinct filler text.
func sentence(n int) string {
	words := make([]string, n)
	for i := range words {
		words[i] = "word" + string(rune('a'+i%26)) + string(rune('a'+(i/26)%26))
	}
	return strings.Join(words, " ")
}

func TestTokenChunker_SingleChunk(t *testing.T) {
	c := newTokenChunkerWithEncoder(newWordEncoder(), WithMaxTokens(100), WithOverlapTokens(10))

	chunks, err := c.Chunk("just a few words here")
	require.NoError(t, err)
	require.Len(t, chunks, 1)

	assert.Equal(t, "just a few words here", chunks[0].Content)
	assert.Equal(t, 0, chunks[0].Index)
	assert.Equal(t, 5, chunks[0].TokenCount)
}

func TestTokenChunker_EmptyInput(t *testing.T) {
	c := newTokenChunkerWithEncoder(newWordEncoder())

	for _, input := range []string{"", "   ", "\n\n\t"} {
		chunks, err := c.Chunk(input)
		require.NoError(t, err)
		assert.Empty(t, chunks)
	}
}

func TestTokenChunker_SlidingWindow(t *testing.T) {
	c := newTokenChunkerWithEncoder(newWordEncoder(), WithMaxTokens(20), WithOverlapTokens(5))

	text := sentence(100)
	chunks, err := c.Chunk(text)
	require.NoError(t, err)
	require.Greater(t, len(chunks), 1)

	for i, chunk := range chunks {
		assert.Equal(t, i, chunk.Index, "indices must be contiguous from 0")
		assert.NotEmpty(t, chunk.Content)
		assert.LessOrEqual(t, chunk.TokenCount, 20)
		assert.Positive(t, chunk.TokenCount)
	}

	// Consecutive chunks share the trailing overlap of the previous one.
	for i := 1; i < len(chunks); i++ {
		prevWords := strings.Fields(chunks[i-1].Content)
		currWords := strings.Fields(chunks[i].Content)
		overlap := prevWords[len(prevWords)-5:]
		assert.Equal(t, overlap, currWords[:5], "chunk %d must start with chunk %d's last 5 tokens", i, i-1)
	}
}

func TestTokenChunker_Reconstruction(t *testing.T) {
	c := newTokenChunkerWithEncoder(newWordEncoder(), WithMaxTokens(16), WithOverlapTokens(4))

	text := sentence(90)
	chunks, err := c.Chunk(text)
	require.NoError(t, err)
	require.Greater(t, len(chunks), 1)

	// Dropping each chunk's overlapping prefix reconstructs the input.
	var rebuilt []string
	for i, chunk := range chunks {
		words := strings.Fields(chunk.Content)
		if i > 0 {
			words = words[4:]
		}
		rebuilt = append(rebuilt, words...)
	}
	assert.Equal(t, text, strings.Join(rebuilt, " "))
}

func TestTokenChunker_OverlapClamped(t *testing.T) {
	// Overlap >= maxTokens would stall the window; it must be clamped.
	c := newTokenChunkerWithEncoder(newWordEncoder(), WithMaxTokens(10), WithOverlapTokens(50))

	chunks, err := c.Chunk(sentence(40))
	require.NoError(t, err)
	require.NotEmpty(t, chunks)

	for i, chunk := range chunks {
		assert.Equal(t, i, chunk.Index)
	}
}

func TestTokenChunker_Mode(t *testing.T) {
	c := newTokenChunkerWithEncoder(newWordEncoder())
	assert.Equal(t, "token", c.Mode())
}
