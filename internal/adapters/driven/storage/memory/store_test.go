package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/claritydesk/ragcore/internal/core/domain"
	"github.com/claritydesk/ragcore/internal/core/ports/driven"
)

func seedKB(t *testing.T, store *Store, id, tenantID string, status domain.KnowledgeBaseStatus) {
	t.Helper()
	require.NoError(t, store.CreateKnowledgeBase(context.Background(), &domain.KnowledgeBase{
		ID:         id,
		TenantID:   tenantID,
		Name:       "KB " + id,
		SourceType: domain.SourceManual,
		Status:     status,
	}))
}

func TestTenantScoping(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	seedKB(t, store, "kb-1", "tenant-1", domain.StatusReady)

	_, err := store.GetKnowledgeBase(ctx, "tenant-2", "kb-1")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	got, err := store.GetKnowledgeBase(ctx, "tenant-1", "kb-1")
	require.NoError(t, err)
	assert.Equal(t, "kb-1", got.ID)
}

func TestNearestChunksRanksAndScopes(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	seedKB(t, store, "kb-ready", "tenant-1", domain.StatusReady)
	seedKB(t, store, "kb-pending", "tenant-1", domain.StatusProcessing)

	require.NoError(t, store.SaveChunks(ctx, []domain.KnowledgeChunk{
		{ID: "c-0", KnowledgeBaseID: "kb-ready", ChunkIndex: 0, Content: "exact", Embedding: []float32{1, 0}},
		{ID: "c-1", KnowledgeBaseID: "kb-ready", ChunkIndex: 1, Content: "diagonal", Embedding: []float32{1, 1}},
		{ID: "c-2", KnowledgeBaseID: "kb-pending", ChunkIndex: 0, Content: "hidden", Embedding: []float32{1, 0}},
	}))

	hits, err := store.NearestChunks(ctx, "tenant-1", []float32{1, 0}, driven.ChunkFilter{}, 10)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "exact", hits[0].Content)
	assert.Equal(t, "diagonal", hits[1].Content)
	assert.Greater(t, hits[0].Similarity, hits[1].Similarity)
}

func TestKeywordChunks(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	seedKB(t, store, "kb-1", "tenant-1", domain.StatusReady)

	require.NoError(t, store.SaveChunks(ctx, []domain.KnowledgeChunk{
		{ID: "c-0", KnowledgeBaseID: "kb-1", ChunkIndex: 0, Content: "Refund policy details"},
		{ID: "c-1", KnowledgeBaseID: "kb-1", ChunkIndex: 1, Content: "Shipping policy details"},
	}))

	hits, err := store.KeywordChunks(ctx, "tenant-1", "refund", driven.ChunkFilter{}, 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "c-0", hits[0].ID)
}

func TestDeleteKnowledgeBaseOwnership(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	seedKB(t, store, "kb-1", "tenant-1", domain.StatusReady)

	assert.ErrorIs(t, store.DeleteKnowledgeBase(ctx, "tenant-2", "kb-1"), domain.ErrOwnershipMismatch)
	assert.NoError(t, store.DeleteKnowledgeBase(ctx, "tenant-1", "kb-1"))
	assert.ErrorIs(t, store.DeleteKnowledgeBase(ctx, "tenant-1", "kb-1"), domain.ErrNotFound)
}

func TestAdjacentChunks(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	seedKB(t, store, "kb-1", "tenant-1", domain.StatusReady)

	require.NoError(t, store.SaveChunks(ctx, []domain.KnowledgeChunk{
		{ID: "c-0", KnowledgeBaseID: "kb-1", ChunkIndex: 0, Content: "first"},
		{ID: "c-1", KnowledgeBaseID: "kb-1", ChunkIndex: 1, Content: "second"},
		{ID: "c-2", KnowledgeBaseID: "kb-1", ChunkIndex: 2, Content: "third"},
	}))

	chunks, err := store.AdjacentChunks(ctx, "kb-1", 1)
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, "first", chunks[0].Content)
	assert.Equal(t, "third", chunks[1].Content)
}

func TestUpdateStatusMergesMetadata(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	seedKB(t, store, "kb-1", "tenant-1", domain.StatusProcessing)

	require.NoError(t, store.UpdateMetadata(ctx, "kb-1", domain.KnowledgeBaseMetadata{OriginalLength: 50}))
	require.NoError(t, store.UpdateStatus(ctx, "kb-1", domain.StatusReady, domain.KnowledgeBaseMetadata{TotalChunks: 3}))

	kb, err := store.GetKnowledgeBase(ctx, "tenant-1", "kb-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusReady, kb.Status)
	assert.Equal(t, 50, kb.Metadata.OriginalLength)
	assert.Equal(t, 3, kb.Metadata.TotalChunks)
}

func TestUpdateStatusClearsErrorOnRecovery(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	seedKB(t, store, "kb-1", "tenant-1", domain.StatusProcessing)

	require.NoError(t, store.UpdateStatus(ctx, "kb-1", domain.StatusError,
		domain.KnowledgeBaseMetadata{ErrorMessage: "embedding: provider down"}))

	kb, err := store.GetKnowledgeBase(ctx, "tenant-1", "kb-1")
	require.NoError(t, err)
	require.Equal(t, "embedding: provider down", kb.Metadata.ErrorMessage)

	require.NoError(t, store.UpdateStatus(ctx, "kb-1", domain.StatusReady,
		domain.KnowledgeBaseMetadata{TotalChunks: 2}))

	kb, err = store.GetKnowledgeBase(ctx, "tenant-1", "kb-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusReady, kb.Status)
	assert.Empty(t, kb.Metadata.ErrorMessage)
	assert.Equal(t, 2, kb.Metadata.TotalChunks)
}
