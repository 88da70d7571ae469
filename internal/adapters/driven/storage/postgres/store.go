// Package postgres provides a Postgres-based implementation of the knowledge
// store. Nearest-neighbour queries run natively on a pgvector column, so no
// in-memory reranking is needed.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/claritydesk/ragcore/internal/core/domain"
	"github.com/claritydesk/ragcore/internal/core/ports/driven"
)

// Ensure Store implements the interface.
var _ driven.KnowledgeStore = (*Store)(nil)

// DefaultWriteTimeout bounds chunk write transactions.
const DefaultWriteTimeout = 30 * time.Second

// Config holds configuration for the Postgres store.
type Config struct {
	// DatabaseURL is the Postgres connection string (required).
	DatabaseURL string

	// EmbeddingDimensions is the vector column width (required). It must
	// match the embedding model in use.
	EmbeddingDimensions int

	// WriteTimeout bounds chunk write transactions (default: 30s).
	WriteTimeout time.Duration
}

// Store is a Postgres-backed knowledge store using pgvector for
// similarity search.
type Store struct {
	pool         *pgxpool.Pool
	writeTimeout time.Duration
}

// NewStore connects to Postgres, ensures the pgvector extension and the
// schema exist, and returns a ready store.
func NewStore(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("%w: database URL is required", domain.ErrInvalidInput)
	}
	if cfg.EmbeddingDimensions <= 0 {
		return nil, fmt.Errorf("%w: embedding dimensions must be positive", domain.ErrInvalidInput)
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = DefaultWriteTimeout
	}

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	s := &Store{
		pool:         pool,
		writeTimeout: cfg.WriteTimeout,
	}

	if err := s.ensureSchema(ctx, cfg.EmbeddingDimensions); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensuring schema: %w", err)
	}

	return s, nil
}

// Close releases the connection pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// ensureSchema creates the pgvector extension, tables, and indexes.
func (s *Store) ensureSchema(ctx context.Context, dimensions int) error {
	statements := []string{
		"CREATE EXTENSION IF NOT EXISTS vector",
		`CREATE TABLE IF NOT EXISTS knowledge_bases (
			id TEXT PRIMARY KEY,
			tenant_id TEXT NOT NULL,
			name TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			source_type TEXT NOT NULL,
			source_url TEXT,
			file_name TEXT,
			status TEXT NOT NULL,
			metadata JSONB NOT NULL DEFAULT '{}',
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
		"CREATE INDEX IF NOT EXISTS idx_knowledge_bases_tenant ON knowledge_bases(tenant_id)",
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS knowledge_chunks (
			id TEXT PRIMARY KEY,
			knowledge_base_id TEXT NOT NULL REFERENCES knowledge_bases(id) ON DELETE CASCADE,
			content TEXT NOT NULL,
			chunk_index INTEGER NOT NULL,
			metadata JSONB NOT NULL DEFAULT '{}',
			embedding vector(%d),
			created_at TIMESTAMPTZ NOT NULL
		)`, dimensions),
		"CREATE INDEX IF NOT EXISTS idx_knowledge_chunks_kb ON knowledge_chunks(knowledge_base_id)",
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_knowledge_chunks_kb_index
			ON knowledge_chunks(knowledge_base_id, chunk_index)`,
	}

	for _, stmt := range statements {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}
	return nil
}

// CreateKnowledgeBase inserts a new knowledge base row.
func (s *Store) CreateKnowledgeBase(ctx context.Context, kb *domain.KnowledgeBase) error {
	metadataJSON, err := json.Marshal(kb.Metadata)
	if err != nil {
		return fmt.Errorf("marshalling metadata: %w", err)
	}

	now := time.Now().UTC()
	if kb.CreatedAt.IsZero() {
		kb.CreatedAt = now
	}
	kb.UpdatedAt = now

	_, err = s.pool.Exec(ctx, `
		INSERT INTO knowledge_bases
			(id, tenant_id, name, description, source_type, source_url, file_name, status, metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, kb.ID, kb.TenantID, kb.Name, kb.Description, string(kb.SourceType),
		nullString(kb.SourceURL), nullString(kb.FileName), string(kb.Status),
		metadataJSON, kb.CreatedAt, kb.UpdatedAt)

	if err != nil {
		return fmt.Errorf("creating knowledge base: %w", err)
	}
	return nil
}

// GetKnowledgeBase retrieves a knowledge base scoped to a tenant.
func (s *Store) GetKnowledgeBase(ctx context.Context, tenantID, id string) (*domain.KnowledgeBase, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, tenant_id, name, description, source_type, source_url, file_name, status, metadata, created_at, updated_at
		FROM knowledge_bases WHERE id = $1 AND tenant_id = $2
	`, id, tenantID)

	kb, err := scanKnowledgeBase(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return kb, nil
}

// ListKnowledgeBases returns all knowledge bases for a tenant, newest first.
func (s *Store) ListKnowledgeBases(ctx context.Context, tenantID string) ([]domain.KnowledgeBase, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, tenant_id, name, description, source_type, source_url, file_name, status, metadata, created_at, updated_at
		FROM knowledge_bases WHERE tenant_id = $1
		ORDER BY created_at DESC
	`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("querying knowledge bases: %w", err)
	}
	defer rows.Close()

	var bases []domain.KnowledgeBase //nolint:prealloc // size unknown from query
	for rows.Next() {
		kb, err := scanKnowledgeBase(rows)
		if err != nil {
			return nil, err
		}
		bases = append(bases, *kb)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating knowledge bases: %w", err)
	}

	return bases, nil
}

// UpdateStatus transitions a knowledge base's status and merges the given
// metadata onto the record. A transition to a non-ERROR status clears any
// stored error message.
func (s *Store) UpdateStatus(ctx context.Context, id string, status domain.KnowledgeBaseStatus, meta domain.KnowledgeBaseMetadata) error {
	return s.updateRecord(ctx, id, &status, meta)
}

// UpdateMetadata merges metadata onto the record without touching status.
func (s *Store) UpdateMetadata(ctx context.Context, id string, meta domain.KnowledgeBaseMetadata) error {
	return s.updateRecord(ctx, id, nil, meta)
}

// updateRecord performs a read-merge-write of the metadata column, and
// optionally the status, inside one transaction. The row is locked for the
// duration so concurrent merges do not lose fields.
func (s *Store) updateRecord(ctx context.Context, id string, status *domain.KnowledgeBaseStatus, meta domain.KnowledgeBaseMetadata) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var metadataJSON []byte
	row := tx.QueryRow(ctx, "SELECT metadata FROM knowledge_bases WHERE id = $1 FOR UPDATE", id)
	if err := row.Scan(&metadataJSON); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrNotFound
		}
		return fmt.Errorf("reading metadata: %w", err)
	}

	var current domain.KnowledgeBaseMetadata
	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &current); err != nil {
			return fmt.Errorf("unmarshaling metadata: %w", err)
		}
	}
	merged, err := json.Marshal(mergeForStatus(current, meta, status))
	if err != nil {
		return fmt.Errorf("marshalling metadata: %w", err)
	}

	now := time.Now().UTC()
	if status != nil {
		_, err = tx.Exec(ctx, `
			UPDATE knowledge_bases SET status = $1, metadata = $2, updated_at = $3 WHERE id = $4
		`, string(*status), merged, now, id)
	} else {
		_, err = tx.Exec(ctx, `
			UPDATE knowledge_bases SET metadata = $1, updated_at = $2 WHERE id = $3
		`, merged, now, id)
	}
	if err != nil {
		return fmt.Errorf("updating knowledge base: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// SaveChunks stores a batch of chunks inside one bounded transaction.
func (s *Store) SaveChunks(ctx context.Context, chunks []domain.KnowledgeChunk) error {
	if len(chunks) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.writeTimeout)
	defer cancel()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	for _, chunk := range chunks {
		metadataJSON, err := json.Marshal(chunk.Metadata)
		if err != nil {
			return fmt.Errorf("marshalling chunk metadata: %w", err)
		}

		createdAt := chunk.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now().UTC()
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO knowledge_chunks (id, knowledge_base_id, content, chunk_index, metadata, embedding, created_at)
			VALUES ($1, $2, $3, $4, $5, $6::vector, $7)
			ON CONFLICT (id) DO UPDATE SET
				knowledge_base_id = EXCLUDED.knowledge_base_id,
				content = EXCLUDED.content,
				chunk_index = EXCLUDED.chunk_index,
				metadata = EXCLUDED.metadata,
				embedding = EXCLUDED.embedding
		`, chunk.ID, chunk.KnowledgeBaseID, chunk.Content, chunk.ChunkIndex,
			metadataJSON, formatVector(chunk.Embedding), createdAt)
		if err != nil {
			return fmt.Errorf("saving chunk: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// DeleteChunks removes all chunks belonging to a knowledge base.
func (s *Store) DeleteChunks(ctx context.Context, knowledgeBaseID string) error {
	_, err := s.pool.Exec(ctx, "DELETE FROM knowledge_chunks WHERE knowledge_base_id = $1", knowledgeBaseID)
	if err != nil {
		return fmt.Errorf("deleting chunks: %w", err)
	}
	return nil
}

// DeleteKnowledgeBase verifies tenant ownership, then deletes the knowledge
// base inside one transaction. Chunks go with it via ON DELETE CASCADE.
func (s *Store) DeleteKnowledgeBase(ctx context.Context, tenantID, id string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var owner string
	row := tx.QueryRow(ctx, "SELECT tenant_id FROM knowledge_bases WHERE id = $1 FOR UPDATE", id)
	if err := row.Scan(&owner); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrNotFound
		}
		return fmt.Errorf("checking ownership: %w", err)
	}
	if owner != tenantID {
		return domain.ErrOwnershipMismatch
	}

	if _, err := tx.Exec(ctx, "DELETE FROM knowledge_bases WHERE id = $1", id); err != nil {
		return fmt.Errorf("deleting knowledge base: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// NearestChunks runs a native pgvector cosine-distance query scoped to the
// tenant and READY knowledge bases.
func (s *Store) NearestChunks(ctx context.Context, tenantID string, vector []float32, filter driven.ChunkFilter, limit int) ([]driven.ChunkHit, error) {
	where, args := chunkScope(tenantID, filter)
	args = append(args, formatVector(vector))
	vecArg := len(args)
	args = append(args, limit)
	limitArg := len(args)

	query := fmt.Sprintf(`
		SELECT c.id, c.content, c.chunk_index, c.metadata,
			1 - (c.embedding <=> $%d::vector) AS similarity,
			kb.id, kb.name, kb.source_type, kb.source_url, kb.file_name
		FROM knowledge_chunks c
		JOIN knowledge_bases kb ON kb.id = c.knowledge_base_id
		WHERE %s AND c.embedding IS NOT NULL
		ORDER BY c.embedding <=> $%d::vector
		LIMIT $%d
	`, vecArg, where, vecArg, limitArg)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying nearest chunks: %w", err)
	}
	defer rows.Close()

	return scanChunkHits(rows, true)
}

// KeywordChunks returns chunks whose content contains the query,
// case-insensitive. The query is matched literally, so ILIKE wildcards in
// user input do not widen the match.
func (s *Store) KeywordChunks(ctx context.Context, tenantID, query string, filter driven.ChunkFilter, limit int) ([]driven.ChunkHit, error) {
	where, args := chunkScope(tenantID, filter)
	args = append(args, escapeLike(query))
	queryArg := len(args)
	args = append(args, limit)
	limitArg := len(args)

	sqlQuery := fmt.Sprintf(`
		SELECT c.id, c.content, c.chunk_index, c.metadata,
			kb.id, kb.name, kb.source_type, kb.source_url, kb.file_name
		FROM knowledge_chunks c
		JOIN knowledge_bases kb ON kb.id = c.knowledge_base_id
		WHERE %s AND c.content ILIKE '%%' || $%d || '%%' ESCAPE '\'
		ORDER BY c.chunk_index
		LIMIT $%d
	`, where, queryArg, limitArg)

	rows, err := s.pool.Query(ctx, sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("querying keyword chunks: %w", err)
	}
	defer rows.Close()

	return scanChunkHits(rows, false)
}

// AdjacentChunks returns the chunks immediately before and after the given
// index within one knowledge base.
func (s *Store) AdjacentChunks(ctx context.Context, knowledgeBaseID string, index int) ([]domain.KnowledgeChunk, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, knowledge_base_id, content, chunk_index, metadata, created_at
		FROM knowledge_chunks
		WHERE knowledge_base_id = $1 AND chunk_index IN ($2, $3)
		ORDER BY chunk_index
	`, knowledgeBaseID, index-1, index+1)
	if err != nil {
		return nil, fmt.Errorf("querying adjacent chunks: %w", err)
	}
	defer rows.Close()

	var chunks []domain.KnowledgeChunk //nolint:prealloc // size unknown from query
	for rows.Next() {
		var chunk domain.KnowledgeChunk
		var metadataJSON []byte
		if err := rows.Scan(&chunk.ID, &chunk.KnowledgeBaseID, &chunk.Content,
			&chunk.ChunkIndex, &metadataJSON, &chunk.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning chunk: %w", err)
		}
		if len(metadataJSON) > 0 {
			if err := json.Unmarshal(metadataJSON, &chunk.Metadata); err != nil {
				return nil, fmt.Errorf("unmarshaling chunk metadata: %w", err)
			}
		}
		chunks = append(chunks, chunk)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating adjacent chunks: %w", err)
	}

	return chunks, nil
}

// chunkScope builds the WHERE clause scoping chunk queries to a tenant and
// READY knowledge bases, with optional filter clauses.
func chunkScope(tenantID string, filter driven.ChunkFilter) (string, []any) {
	clauses := []string{"kb.tenant_id = $1", "kb.status = $2"}
	args := []any{tenantID, string(domain.StatusReady)}

	if len(filter.KnowledgeBaseIDs) > 0 {
		ph := make([]string, len(filter.KnowledgeBaseIDs))
		for i, id := range filter.KnowledgeBaseIDs {
			args = append(args, id)
			ph[i] = "$" + strconv.Itoa(len(args))
		}
		clauses = append(clauses, "kb.id IN ("+strings.Join(ph, ", ")+")")
	}
	if len(filter.SourceTypes) > 0 {
		ph := make([]string, len(filter.SourceTypes))
		for i, st := range filter.SourceTypes {
			args = append(args, string(st))
			ph[i] = "$" + strconv.Itoa(len(args))
		}
		clauses = append(clauses, "kb.source_type IN ("+strings.Join(ph, ", ")+")")
	}

	return strings.Join(clauses, " AND "), args
}

// scanChunkHits scans joined chunk rows. When withSimilarity is true the
// row includes a similarity column after the metadata.
func scanChunkHits(rows pgx.Rows, withSimilarity bool) ([]driven.ChunkHit, error) {
	var hits []driven.ChunkHit //nolint:prealloc // size unknown from query
	for rows.Next() {
		var hit driven.ChunkHit
		var metadataJSON []byte
		var sourceType string
		var sourceURL, fileName *string

		dest := []any{&hit.ID, &hit.Content, &hit.ChunkIndex, &metadataJSON}
		if withSimilarity {
			dest = append(dest, &hit.Similarity)
		}
		dest = append(dest, &hit.KnowledgeBaseID, &hit.KnowledgeBaseName, &sourceType, &sourceURL, &fileName)

		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scanning chunk: %w", err)
		}

		hit.SourceType = domain.SourceType(sourceType)
		if sourceURL != nil {
			hit.SourceURL = *sourceURL
		}
		if fileName != nil {
			hit.FileName = *fileName
		}
		if len(metadataJSON) > 0 {
			if err := json.Unmarshal(metadataJSON, &hit.Metadata); err != nil {
				return nil, fmt.Errorf("unmarshaling chunk metadata: %w", err)
			}
		}

		hits = append(hits, hit)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating chunks: %w", err)
	}

	return hits, nil
}

// rowScanner is satisfied by both pgx.Row and pgx.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanKnowledgeBase scans a knowledge base row.
func scanKnowledgeBase(row rowScanner) (*domain.KnowledgeBase, error) {
	var kb domain.KnowledgeBase
	var sourceType, status string
	var sourceURL, fileName *string
	var metadataJSON []byte

	if err := row.Scan(&kb.ID, &kb.TenantID, &kb.Name, &kb.Description, &sourceType,
		&sourceURL, &fileName, &status, &metadataJSON, &kb.CreatedAt, &kb.UpdatedAt); err != nil {
		return nil, err
	}

	kb.SourceType = domain.SourceType(sourceType)
	kb.Status = domain.KnowledgeBaseStatus(status)
	if sourceURL != nil {
		kb.SourceURL = *sourceURL
	}
	if fileName != nil {
		kb.FileName = *fileName
	}
	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &kb.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshaling metadata: %w", err)
		}
	}

	return &kb, nil
}

// likeEscaper neutralises ILIKE pattern metacharacters in user input.
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

// mergeForStatus merges metadata and drops a stale error message when the
// record is leaving the ERROR state. A READY or PROCESSING record must not
// advertise a failure from an earlier run.
func mergeForStatus(current, incoming domain.KnowledgeBaseMetadata, status *domain.KnowledgeBaseStatus) domain.KnowledgeBaseMetadata {
	merged := mergeMetadata(current, incoming)
	if status != nil && *status != domain.StatusError {
		merged.ErrorMessage = ""
	}
	return merged
}

// mergeMetadata overlays non-zero fields of incoming onto current.
// Extra maps are merged key by key.
func mergeMetadata(current, incoming domain.KnowledgeBaseMetadata) domain.KnowledgeBaseMetadata {
	if incoming.OriginalLength != 0 {
		current.OriginalLength = incoming.OriginalLength
	}
	if incoming.ProcessedLength != 0 {
		current.ProcessedLength = incoming.ProcessedLength
	}
	if incoming.TotalChunks != 0 {
		current.TotalChunks = incoming.TotalChunks
	}
	if incoming.TotalTokens != 0 {
		current.TotalTokens = incoming.TotalTokens
	}
	if incoming.EmbeddingCount != 0 {
		current.EmbeddingCount = incoming.EmbeddingCount
	}
	if incoming.ErrorMessage != "" {
		current.ErrorMessage = incoming.ErrorMessage
	}
	if incoming.ProcessedAt != nil {
		current.ProcessedAt = incoming.ProcessedAt
	}
	if len(incoming.Extra) > 0 {
		if current.Extra == nil {
			current.Extra = make(map[string]string, len(incoming.Extra))
		}
		for k, v := range incoming.Extra {
			current.Extra[k] = v
		}
	}
	return current
}

// formatVector renders a float32 slice as a pgvector text literal,
// e.g. "[0.1,0.2,0.3]". A nil slice becomes a NULL embedding.
func formatVector(vector []float32) any {
	if len(vector) == 0 {
		return nil
	}
	var sb strings.Builder
	sb.WriteByte('[')
	for i, v := range vector {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(strconv.FormatFloat(float64(v), 'f', -1, 32))
	}
	sb.WriteByte(']')
	return sb.String()
}

// nullString converts an empty string to a NULL value.
func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
