package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/claritydesk/ragcore/internal/chunker"
	"github.com/claritydesk/ragcore/internal/core/domain"
	"github.com/claritydesk/ragcore/internal/core/ports/driven"
	"github.com/claritydesk/ragcore/internal/core/ports/driving"
	"github.com/claritydesk/ragcore/internal/similarity"
)

// Ensure IngestService implements the interface.
var _ driving.Ingestor = (*IngestService)(nil)

// IngestConfig tunes the ingestion pipeline.
type IngestConfig struct {
	// WriteBatchSize is the number of chunks persisted per transaction
	// (default 5).
	WriteBatchSize int

	// WriteRetries is the attempt bound per batch write (default 3).
	WriteRetries int

	// RetryBaseDelay is the initial backoff between retries (default 1s).
	RetryBaseDelay time.Duration
}

func (c *IngestConfig) applyDefaults() {
	if c.WriteBatchSize <= 0 {
		c.WriteBatchSize = 5
	}
	if c.WriteRetries <= 0 {
		c.WriteRetries = 3
	}
	if c.RetryBaseDelay <= 0 {
		c.RetryBaseDelay = time.Second
	}
}

// IngestService orchestrates the ingestion pipeline: prepare the text,
// chunk it, embed the chunks, persist chunk+vector pairs, and track the
// knowledge base's status through it all.
type IngestService struct {
	store    driven.KnowledgeStore
	embedder driven.EmbeddingService
	chunker  chunker.Chunker
	cfg      IngestConfig
	log      zerolog.Logger
}

// NewIngestService creates a new ingestion service.
func NewIngestService(
	store driven.KnowledgeStore,
	embedder driven.EmbeddingService,
	ch chunker.Chunker,
	cfg IngestConfig,
	log zerolog.Logger,
) *IngestService {
	cfg.applyDefaults()
	return &IngestService{
		store:    store,
		embedder: embedder,
		chunker:  ch,
		cfg:      cfg,
		log:      log,
	}
}

// Ingest creates a knowledge base and runs the pipeline over the request
// text. The returned knowledge base is in its terminal status: READY on
// success, ERROR with the failure reason recorded on its metadata. The
// error return covers failures before the knowledge base row exists.
func (s *IngestService) Ingest(ctx context.Context, req driving.IngestRequest) (*domain.KnowledgeBase, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	if s.embedder == nil {
		return nil, domain.ErrEmbeddingUnavailable
	}

	kb := &domain.KnowledgeBase{
		ID:          uuid.NewString(),
		TenantID:    req.TenantID,
		Name:        req.Name,
		Description: req.Description,
		SourceType:  req.SourceType,
		SourceURL:   req.SourceURL,
		FileName:    req.FileName,
		Status:      domain.StatusProcessing,
		Metadata: domain.KnowledgeBaseMetadata{
			OriginalLength: len(req.Text),
		},
	}
	if err := s.store.CreateKnowledgeBase(ctx, kb); err != nil {
		return nil, fmt.Errorf("create knowledge base: %w", err)
	}

	s.log.Info().
		Str("knowledge_base_id", kb.ID).
		Str("tenant_id", kb.TenantID).
		Str("source_type", string(kb.SourceType)).
		Int("text_length", len(req.Text)).
		Msg("ingestion started")

	s.process(ctx, kb, req.Text)
	return kb, nil
}

// Reprocess deletes a knowledge base's chunks and runs a fresh ingestion
// pass over the given text.
func (s *IngestService) Reprocess(ctx context.Context, tenantID, knowledgeBaseID, text string) (*domain.KnowledgeBase, error) {
	if text == "" {
		return nil, fmt.Errorf("%w: text is required", domain.ErrInvalidInput)
	}
	if s.embedder == nil {
		return nil, domain.ErrEmbeddingUnavailable
	}

	kb, err := s.store.GetKnowledgeBase(ctx, tenantID, knowledgeBaseID)
	if err != nil {
		return nil, fmt.Errorf("get knowledge base: %w", err)
	}

	if err := s.store.UpdateStatus(ctx, kb.ID, domain.StatusProcessing, domain.KnowledgeBaseMetadata{
		OriginalLength: len(text),
	}); err != nil {
		return nil, fmt.Errorf("mark processing: %w", err)
	}
	kb.Status = domain.StatusProcessing

	if err := s.store.DeleteChunks(ctx, kb.ID); err != nil {
		s.markError(ctx, kb, fmt.Errorf("delete old chunks: %w", err))
		return kb, nil
	}

	s.log.Info().
		Str("knowledge_base_id", kb.ID).
		Int("text_length", len(text)).
		Msg("reprocessing started")

	s.process(ctx, kb, text)
	return kb, nil
}

// Delete removes a knowledge base and all its chunks transactionally,
// verifying tenant ownership first.
func (s *IngestService) Delete(ctx context.Context, tenantID, knowledgeBaseID string) error {
	if err := s.store.DeleteKnowledgeBase(ctx, tenantID, knowledgeBaseID); err != nil {
		return fmt.Errorf("delete knowledge base: %w", err)
	}
	s.log.Info().Str("knowledge_base_id", knowledgeBaseID).Msg("knowledge base deleted")
	return nil
}

// List returns all knowledge bases for a tenant.
func (s *IngestService) List(ctx context.Context, tenantID string) ([]domain.KnowledgeBase, error) {
	return s.store.ListKnowledgeBases(ctx, tenantID)
}

// Get returns one knowledge base scoped to a tenant.
func (s *IngestService) Get(ctx context.Context, tenantID, knowledgeBaseID string) (*domain.KnowledgeBase, error) {
	return s.store.GetKnowledgeBase(ctx, tenantID, knowledgeBaseID)
}

// process runs the pipeline steps after the knowledge base row exists.
// Any failure transitions the record to ERROR; kb reflects the terminal
// state when process returns.
func (s *IngestService) process(ctx context.Context, kb *domain.KnowledgeBase, text string) {
	prepared := chunker.Prepare(text, kb.SourceType)

	chunks, err := s.chunker.Chunk(prepared)
	if err != nil {
		s.markError(ctx, kb, fmt.Errorf("chunking: %w", err))
		return
	}
	if len(chunks) == 0 {
		s.markError(ctx, kb, domain.NewPipelineError("no chunks generated"))
		return
	}

	// Record preparation accounting before the expensive embedding step,
	// so a later failure still leaves useful diagnostics on the record.
	if err := s.store.UpdateMetadata(ctx, kb.ID, domain.KnowledgeBaseMetadata{
		ProcessedLength: len(prepared),
		TotalChunks:     len(chunks),
	}); err != nil {
		s.markError(ctx, kb, fmt.Errorf("record preparation metadata: %w", err))
		return
	}

	texts := make([]string, len(chunks))
	totalTokens := 0
	for i, chunk := range chunks {
		texts[i] = chunk.Content
		totalTokens += chunk.TokenCount
	}

	var embeddings [][]float32
	err = withRetry(ctx, s.cfg.WriteRetries, s.cfg.RetryBaseDelay, domain.IsRetryable, func() error {
		var embedErr error
		embeddings, embedErr = s.embedder.EmbedBatch(ctx, texts)
		return embedErr
	})
	if err != nil {
		s.markError(ctx, kb, fmt.Errorf("embedding: %w", err))
		return
	}
	if len(embeddings) != len(chunks) {
		s.markError(ctx, kb, domain.NewPipelineError(
			"embedding count mismatch: %d chunks, %d embeddings", len(chunks), len(embeddings)))
		return
	}

	records := make([]domain.KnowledgeChunk, len(chunks))
	now := time.Now().UTC()
	for i, chunk := range chunks {
		if !similarity.Validate(embeddings[i]) {
			s.markError(ctx, kb, domain.NewPipelineError("invalid embedding for chunk %d", chunk.Index))
			return
		}
		metadata := chunk.Metadata
		if metadata == nil {
			metadata = map[string]any{}
		}
		metadata["tokenCount"] = chunk.TokenCount
		records[i] = domain.KnowledgeChunk{
			ID:              uuid.NewString(),
			KnowledgeBaseID: kb.ID,
			Content:         chunk.Content,
			ChunkIndex:      chunk.Index,
			Metadata:        metadata,
			Embedding:       embeddings[i],
			CreatedAt:       now,
		}
	}

	for start := 0; start < len(records); start += s.cfg.WriteBatchSize {
		end := start + s.cfg.WriteBatchSize
		if end > len(records) {
			end = len(records)
		}
		batch := records[start:end]

		err := withRetry(ctx, s.cfg.WriteRetries, s.cfg.RetryBaseDelay, transientStoreError, func() error {
			return s.store.SaveChunks(ctx, batch)
		})
		if err != nil {
			s.markError(ctx, kb, fmt.Errorf("persist chunks %d-%d: %w", start, end-1, err))
			return
		}
	}

	processedAt := time.Now().UTC()
	finalMeta := domain.KnowledgeBaseMetadata{
		ProcessedLength: len(prepared),
		TotalChunks:     len(chunks),
		TotalTokens:     totalTokens,
		EmbeddingCount:  len(embeddings),
		ProcessedAt:     &processedAt,
	}
	if err := s.store.UpdateStatus(ctx, kb.ID, domain.StatusReady, finalMeta); err != nil {
		s.markError(ctx, kb, fmt.Errorf("mark ready: %w", err))
		return
	}

	kb.Status = domain.StatusReady
	kb.Metadata = finalMeta
	kb.Metadata.OriginalLength = len(text)

	s.log.Info().
		Str("knowledge_base_id", kb.ID).
		Int("chunks", len(chunks)).
		Int("tokens", totalTokens).
		Str("chunker_mode", s.chunker.Mode()).
		Msg("ingestion complete")
}

// markError transitions the knowledge base to ERROR with the captured
// failure reason. The write is best-effort: its own failure is logged,
// never re-thrown.
func (s *IngestService) markError(ctx context.Context, kb *domain.KnowledgeBase, cause error) {
	s.log.Error().
		Err(cause).
		Str("knowledge_base_id", kb.ID).
		Msg("ingestion failed")

	kb.Status = domain.StatusError
	kb.Metadata.ErrorMessage = cause.Error()

	if err := s.store.UpdateStatus(ctx, kb.ID, domain.StatusError, domain.KnowledgeBaseMetadata{
		ErrorMessage: cause.Error(),
	}); err != nil {
		s.log.Error().
			Err(err).
			Str("knowledge_base_id", kb.ID).
			Msg("failed to record error status")
	}
}

// validateRequest checks the required ingest fields.
func validateRequest(req driving.IngestRequest) error {
	if req.TenantID == "" {
		return fmt.Errorf("%w: tenant ID is required", domain.ErrInvalidInput)
	}
	if req.Name == "" {
		return fmt.Errorf("%w: name is required", domain.ErrInvalidInput)
	}
	if req.Text == "" {
		return fmt.Errorf("%w: text is required", domain.ErrInvalidInput)
	}
	if !req.SourceType.Valid() {
		return fmt.Errorf("%w: unknown source type %q", domain.ErrInvalidInput, req.SourceType)
	}
	return nil
}
