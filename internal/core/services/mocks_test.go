package services

import (
	"context"

	"github.com/claritydesk/ragcore/internal/adapters/driven/storage/memory"
	"github.com/claritydesk/ragcore/internal/core/domain"
	"github.com/claritydesk/ragcore/internal/core/ports/driven"
)

// hookedStore wraps the in-memory store, letting individual tests
// override single operations to inject failures.
type hookedStore struct {
	*memory.Store

	saveChunksFn     func(ctx context.Context, chunks []domain.KnowledgeChunk) error
	updateStatusFn   func(ctx context.Context, id string, status domain.KnowledgeBaseStatus, meta domain.KnowledgeBaseMetadata) error
	keywordChunksFn  func(ctx context.Context, tenantID, query string, filter driven.ChunkFilter, limit int) ([]driven.ChunkHit, error)
	adjacentChunksFn func(ctx context.Context, knowledgeBaseID string, index int) ([]domain.KnowledgeChunk, error)
}

func newHookedStore() *hookedStore {
	return &hookedStore{Store: memory.NewStore()}
}

func (s *hookedStore) SaveChunks(ctx context.Context, chunks []domain.KnowledgeChunk) error {
	if s.saveChunksFn != nil {
		return s.saveChunksFn(ctx, chunks)
	}
	return s.Store.SaveChunks(ctx, chunks)
}

func (s *hookedStore) UpdateStatus(ctx context.Context, id string, status domain.KnowledgeBaseStatus, meta domain.KnowledgeBaseMetadata) error {
	if s.updateStatusFn != nil {
		return s.updateStatusFn(ctx, id, status, meta)
	}
	return s.Store.UpdateStatus(ctx, id, status, meta)
}

func (s *hookedStore) KeywordChunks(ctx context.Context, tenantID, query string, filter driven.ChunkFilter, limit int) ([]driven.ChunkHit, error) {
	if s.keywordChunksFn != nil {
		return s.keywordChunksFn(ctx, tenantID, query, filter, limit)
	}
	return s.Store.KeywordChunks(ctx, tenantID, query, filter, limit)
}

func (s *hookedStore) AdjacentChunks(ctx context.Context, knowledgeBaseID string, index int) ([]domain.KnowledgeChunk, error) {
	if s.adjacentChunksFn != nil {
		return s.adjacentChunksFn(ctx, knowledgeBaseID, index)
	}
	return s.Store.AdjacentChunks(ctx, knowledgeBaseID, index)
}

// mockEmbedder is a hand-written driven.EmbeddingService double.
type mockEmbedder struct {
	embedFn      func(ctx context.Context, text string) ([]float32, error)
	embedBatchFn func(ctx context.Context, texts []string) ([][]float32, error)
	dimensions   int
}

var _ driven.EmbeddingService = (*mockEmbedder)(nil)

// constantEmbedder returns the same vector for every input.
func constantEmbedder(vector []float32) *mockEmbedder {
	return &mockEmbedder{
		embedFn: func(context.Context, string) ([]float32, error) {
			return vector, nil
		},
		dimensions: len(vector),
	}
}

func (m *mockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return m.embedFn(ctx, text)
}

func (m *mockEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if m.embedBatchFn != nil {
		return m.embedBatchFn(ctx, texts)
	}
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vector, err := m.embedFn(ctx, text)
		if err != nil {
			return nil, err
		}
		vectors[i] = vector
	}
	return vectors, nil
}

func (m *mockEmbedder) Dimensions() int            { return m.dimensions }
func (m *mockEmbedder) ModelName() string          { return "mock-embedding" }
func (m *mockEmbedder) Ping(context.Context) error { return nil }
func (m *mockEmbedder) Close() error               { return nil }

// mockLLM is a hand-written driven.LLMService double.
type mockLLM struct {
	generateFn func(ctx context.Context, prompt string, opts driven.GenerateOptions) (string, error)
}

var _ driven.LLMService = (*mockLLM)(nil)

func (m *mockLLM) Generate(ctx context.Context, prompt string, opts driven.GenerateOptions) (string, error) {
	return m.generateFn(ctx, prompt, opts)
}

func (m *mockLLM) ModelName() string          { return "mock-llm" }
func (m *mockLLM) Ping(context.Context) error { return nil }
func (m *mockLLM) Close() error               { return nil }
