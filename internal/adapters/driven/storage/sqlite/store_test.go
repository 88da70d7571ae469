package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/claritydesk/ragcore/internal/core/domain"
	"github.com/claritydesk/ragcore/internal/core/ports/driven"
)

// setupTestStore creates a temporary SQLite store for testing.
func setupTestStore(t *testing.T) *Store {
	t.Helper()

	store, err := NewStore(t.TempDir())
	require.NoError(t, err)
	require.NotNil(t, store)

	t.Cleanup(func() {
		assert.NoError(t, store.Close())
	})

	return store
}

// createTestKB inserts a knowledge base with the given status.
func createTestKB(t *testing.T, store *Store, id, tenantID string, status domain.KnowledgeBaseStatus) {
	t.Helper()

	kb := &domain.KnowledgeBase{
		ID:         id,
		TenantID:   tenantID,
		Name:       "KB " + id,
		SourceType: domain.SourceManual,
		Status:     status,
	}
	require.NoError(t, store.CreateKnowledgeBase(context.Background(), kb))
}

func TestCreateAndGetKnowledgeBase(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	kb := &domain.KnowledgeBase{
		ID:         "kb-1",
		TenantID:   "tenant-1",
		Name:       "Refund Policy",
		SourceType: domain.SourceUpload,
		FileName:   "refunds.pdf",
		Status:     domain.StatusProcessing,
		Metadata:   domain.KnowledgeBaseMetadata{OriginalLength: 420},
	}
	require.NoError(t, store.CreateKnowledgeBase(ctx, kb))

	got, err := store.GetKnowledgeBase(ctx, "tenant-1", "kb-1")
	require.NoError(t, err)
	assert.Equal(t, "Refund Policy", got.Name)
	assert.Equal(t, domain.SourceUpload, got.SourceType)
	assert.Equal(t, "refunds.pdf", got.FileName)
	assert.Equal(t, domain.StatusProcessing, got.Status)
	assert.Equal(t, 420, got.Metadata.OriginalLength)
	assert.False(t, got.CreatedAt.IsZero())
}

func TestGetKnowledgeBaseWrongTenant(t *testing.T) {
	store := setupTestStore(t)
	createTestKB(t, store, "kb-1", "tenant-1", domain.StatusReady)

	_, err := store.GetKnowledgeBase(context.Background(), "tenant-2", "kb-1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestListKnowledgeBases(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	createTestKB(t, store, "kb-1", "tenant-1", domain.StatusReady)
	createTestKB(t, store, "kb-2", "tenant-1", domain.StatusProcessing)
	createTestKB(t, store, "kb-3", "tenant-2", domain.StatusReady)

	bases, err := store.ListKnowledgeBases(ctx, "tenant-1")
	require.NoError(t, err)
	assert.Len(t, bases, 2)

	bases, err = store.ListKnowledgeBases(ctx, "tenant-other")
	require.NoError(t, err)
	assert.Empty(t, bases)
}

func TestUpdateStatusMergesMetadata(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	kb := &domain.KnowledgeBase{
		ID:         "kb-1",
		TenantID:   "tenant-1",
		Name:       "KB",
		SourceType: domain.SourceManual,
		Status:     domain.StatusProcessing,
		Metadata:   domain.KnowledgeBaseMetadata{OriginalLength: 100},
	}
	require.NoError(t, store.CreateKnowledgeBase(ctx, kb))

	processedAt := time.Now().UTC().Truncate(time.Second)
	err := store.UpdateStatus(ctx, "kb-1", domain.StatusReady, domain.KnowledgeBaseMetadata{
		TotalChunks: 7,
		ProcessedAt: &processedAt,
	})
	require.NoError(t, err)

	got, err := store.GetKnowledgeBase(ctx, "tenant-1", "kb-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusReady, got.Status)
	assert.Equal(t, 100, got.Metadata.OriginalLength, "existing fields survive the merge")
	assert.Equal(t, 7, got.Metadata.TotalChunks)
	require.NotNil(t, got.Metadata.ProcessedAt)
	assert.Equal(t, processedAt, got.Metadata.ProcessedAt.UTC())
}

func TestUpdateStatusNotFound(t *testing.T) {
	store := setupTestStore(t)

	err := store.UpdateStatus(context.Background(), "missing", domain.StatusError, domain.KnowledgeBaseMetadata{})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSaveChunksAndAdjacent(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	createTestKB(t, store, "kb-1", "tenant-1", domain.StatusReady)

	chunks := []domain.KnowledgeChunk{
		{ID: "c-0", KnowledgeBaseID: "kb-1", Content: "first", ChunkIndex: 0, Embedding: []float32{1, 0}},
		{ID: "c-1", KnowledgeBaseID: "kb-1", Content: "second", ChunkIndex: 1, Embedding: []float32{0, 1}},
		{ID: "c-2", KnowledgeBaseID: "kb-1", Content: "third", ChunkIndex: 2, Embedding: []float32{1, 1}},
	}
	require.NoError(t, store.SaveChunks(ctx, chunks))

	adjacent, err := store.AdjacentChunks(ctx, "kb-1", 1)
	require.NoError(t, err)
	require.Len(t, adjacent, 2)
	assert.Equal(t, "first", adjacent[0].Content)
	assert.Equal(t, "third", adjacent[1].Content)
	assert.Equal(t, []float32{1, 0}, adjacent[0].Embedding)

	// First chunk has no predecessor.
	adjacent, err = store.AdjacentChunks(ctx, "kb-1", 0)
	require.NoError(t, err)
	require.Len(t, adjacent, 1)
	assert.Equal(t, "second", adjacent[0].Content)
}

func TestNearestChunks(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	createTestKB(t, store, "kb-1", "tenant-1", domain.StatusReady)

	chunks := []domain.KnowledgeChunk{
		{ID: "c-0", KnowledgeBaseID: "kb-1", Content: "exact", ChunkIndex: 0, Embedding: []float32{1, 0}},
		{ID: "c-1", KnowledgeBaseID: "kb-1", Content: "orthogonal", ChunkIndex: 1, Embedding: []float32{0, 1}},
		{ID: "c-2", KnowledgeBaseID: "kb-1", Content: "diagonal", ChunkIndex: 2, Embedding: []float32{1, 1}},
	}
	require.NoError(t, store.SaveChunks(ctx, chunks))

	hits, err := store.NearestChunks(ctx, "tenant-1", []float32{1, 0}, driven.ChunkFilter{}, 2)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "exact", hits[0].Content)
	assert.InDelta(t, 1.0, hits[0].Similarity, 1e-9)
	assert.Equal(t, "diagonal", hits[1].Content)
	assert.Equal(t, "KB kb-1", hits[0].KnowledgeBaseName)
}

func TestNearestChunksSkipsProcessing(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	createTestKB(t, store, "kb-ready", "tenant-1", domain.StatusReady)
	createTestKB(t, store, "kb-pending", "tenant-1", domain.StatusProcessing)

	require.NoError(t, store.SaveChunks(ctx, []domain.KnowledgeChunk{
		{ID: "c-0", KnowledgeBaseID: "kb-ready", Content: "visible", ChunkIndex: 0, Embedding: []float32{1, 0}},
		{ID: "c-1", KnowledgeBaseID: "kb-pending", Content: "hidden", ChunkIndex: 0, Embedding: []float32{1, 0}},
	}))

	hits, err := store.NearestChunks(ctx, "tenant-1", []float32{1, 0}, driven.ChunkFilter{}, 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "visible", hits[0].Content)
}

func TestNearestChunksFilters(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	createTestKB(t, store, "kb-1", "tenant-1", domain.StatusReady)
	createTestKB(t, store, "kb-2", "tenant-1", domain.StatusReady)

	require.NoError(t, store.SaveChunks(ctx, []domain.KnowledgeChunk{
		{ID: "c-0", KnowledgeBaseID: "kb-1", Content: "one", ChunkIndex: 0, Embedding: []float32{1, 0}},
		{ID: "c-1", KnowledgeBaseID: "kb-2", Content: "two", ChunkIndex: 0, Embedding: []float32{1, 0}},
	}))

	hits, err := store.NearestChunks(ctx, "tenant-1", []float32{1, 0}, driven.ChunkFilter{
		KnowledgeBaseIDs: []string{"kb-2"},
	}, 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "two", hits[0].Content)
}

func TestKeywordChunks(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	createTestKB(t, store, "kb-1", "tenant-1", domain.StatusReady)

	require.NoError(t, store.SaveChunks(ctx, []domain.KnowledgeChunk{
		{ID: "c-0", KnowledgeBaseID: "kb-1", Content: "Refunds are processed within 5 days.", ChunkIndex: 0},
		{ID: "c-1", KnowledgeBaseID: "kb-1", Content: "Shipping takes 3 days.", ChunkIndex: 1},
	}))

	hits, err := store.KeywordChunks(ctx, "tenant-1", "REFUNDS", driven.ChunkFilter{}, 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "c-0", hits[0].ID)
}

func TestDeleteKnowledgeBase(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	createTestKB(t, store, "kb-1", "tenant-1", domain.StatusReady)

	require.NoError(t, store.SaveChunks(ctx, []domain.KnowledgeChunk{
		{ID: "c-0", KnowledgeBaseID: "kb-1", Content: "gone soon", ChunkIndex: 0, Embedding: []float32{1}},
	}))

	require.NoError(t, store.DeleteKnowledgeBase(ctx, "tenant-1", "kb-1"))

	_, err := store.GetKnowledgeBase(ctx, "tenant-1", "kb-1")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	hits, err := store.NearestChunks(ctx, "tenant-1", []float32{1}, driven.ChunkFilter{}, 10)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestDeleteKnowledgeBaseOwnership(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	createTestKB(t, store, "kb-1", "tenant-1", domain.StatusReady)

	err := store.DeleteKnowledgeBase(ctx, "tenant-2", "kb-1")
	assert.ErrorIs(t, err, domain.ErrOwnershipMismatch)

	// The knowledge base is untouched.
	_, err = store.GetKnowledgeBase(ctx, "tenant-1", "kb-1")
	assert.NoError(t, err)
}

func TestDeleteKnowledgeBaseNotFound(t *testing.T) {
	store := setupTestStore(t)

	err := store.DeleteKnowledgeBase(context.Background(), "tenant-1", "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDeleteChunks(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	createTestKB(t, store, "kb-1", "tenant-1", domain.StatusReady)

	require.NoError(t, store.SaveChunks(ctx, []domain.KnowledgeChunk{
		{ID: "c-0", KnowledgeBaseID: "kb-1", Content: "stale", ChunkIndex: 0, Embedding: []float32{1}},
	}))
	require.NoError(t, store.DeleteChunks(ctx, "kb-1"))

	hits, err := store.NearestChunks(ctx, "tenant-1", []float32{1}, driven.ChunkFilter{}, 10)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestUpdateStatusClearsErrorOnRecovery(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	createTestKB(t, store, "kb-1", "tenant-1", domain.StatusProcessing)

	require.NoError(t, store.UpdateStatus(ctx, "kb-1", domain.StatusError,
		domain.KnowledgeBaseMetadata{ErrorMessage: "embedding: provider down"}))

	kb, err := store.GetKnowledgeBase(ctx, "tenant-1", "kb-1")
	require.NoError(t, err)
	require.Equal(t, "embedding: provider down", kb.Metadata.ErrorMessage)

	// A fresh run goes back through PROCESSING and lands on READY; the
	// old failure reason must not survive either transition.
	require.NoError(t, store.UpdateStatus(ctx, "kb-1", domain.StatusProcessing,
		domain.KnowledgeBaseMetadata{OriginalLength: 40}))
	require.NoError(t, store.UpdateStatus(ctx, "kb-1", domain.StatusReady,
		domain.KnowledgeBaseMetadata{TotalChunks: 2}))

	kb, err = store.GetKnowledgeBase(ctx, "tenant-1", "kb-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusReady, kb.Status)
	assert.Empty(t, kb.Metadata.ErrorMessage)
	assert.Equal(t, 40, kb.Metadata.OriginalLength)
	assert.Equal(t, 2, kb.Metadata.TotalChunks)
}

func TestUpdateStatusKeepsErrorWhileInError(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	createTestKB(t, store, "kb-1", "tenant-1", domain.StatusProcessing)

	require.NoError(t, store.UpdateStatus(ctx, "kb-1", domain.StatusError,
		domain.KnowledgeBaseMetadata{ErrorMessage: "no chunks generated"}))

	kb, err := store.GetKnowledgeBase(ctx, "tenant-1", "kb-1")
	require.NoError(t, err)
	assert.Equal(t, "no chunks generated", kb.Metadata.ErrorMessage)
}

func TestKeywordChunksMatchesWildcardsLiterally(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	createTestKB(t, store, "kb-1", "tenant-1", domain.StatusReady)

	require.NoError(t, store.SaveChunks(ctx, []domain.KnowledgeChunk{
		{ID: "c-0", KnowledgeBaseID: "kb-1", Content: "Save 50% on annual plans.", ChunkIndex: 0},
		{ID: "c-1", KnowledgeBaseID: "kb-1", Content: "Discounts vary by region.", ChunkIndex: 1},
		{ID: "c-2", KnowledgeBaseID: "kb-1", Content: "Use snake_case identifiers.", ChunkIndex: 2},
	}))

	hits, err := store.KeywordChunks(ctx, "tenant-1", "%", driven.ChunkFilter{}, 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "c-0", hits[0].ID)

	hits, err = store.KeywordChunks(ctx, "tenant-1", "50%", driven.ChunkFilter{}, 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "c-0", hits[0].ID)

	hits, err = store.KeywordChunks(ctx, "tenant-1", "_", driven.ChunkFilter{}, 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "c-2", hits[0].ID)
}

func TestSaveChunksHonoursContext(t *testing.T) {
	store := setupTestStore(t)
	createTestKB(t, store, "kb-1", "tenant-1", domain.StatusReady)
	assert.Equal(t, defaultWriteTimeout, store.writeTimeout)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := store.SaveChunks(ctx, []domain.KnowledgeChunk{
		{ID: "c-0", KnowledgeBaseID: "kb-1", Content: "first", ChunkIndex: 0},
	})
	require.Error(t, err)

	adjacent, err := store.AdjacentChunks(context.Background(), "kb-1", 1)
	require.NoError(t, err)
	assert.Empty(t, adjacent)
}
