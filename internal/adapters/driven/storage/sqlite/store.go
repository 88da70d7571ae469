package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/claritydesk/ragcore/internal/adapters/driven/storage/sqlite/migrations"
	"github.com/claritydesk/ragcore/internal/core/domain"
	"github.com/claritydesk/ragcore/internal/core/ports/driven"
	"github.com/claritydesk/ragcore/internal/similarity"
)

// Ensure Store implements the interface.
var _ driven.KnowledgeStore = (*Store)(nil)

// defaultWriteTimeout bounds a chunk-write transaction.
const defaultWriteTimeout = 30 * time.Second

// Store is a SQLite-backed knowledge store. SQLite has no native vector
// search, so nearest-neighbour queries load candidate embeddings and
// rerank them in memory.
type Store struct {
	db           *sql.DB
	path         string
	writeTimeout time.Duration
}

// NewStore creates a new SQLite store at the specified data directory.
// If dataDir is empty, defaults to ~/.ragcore/data/knowledge.db.
func NewStore(dataDir string) (*Store, error) {
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("getting home directory: %w", err)
		}
		dataDir = filepath.Join(home, ".ragcore", "data")
	}

	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "knowledge.db")

	// Open database with WAL mode for better concurrency
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &Store{
		db:           db,
		path:         dbPath,
		writeTimeout: defaultWriteTimeout,
	}

	if err := s.migrate(migrations.FS); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// migrate runs all pending migrations.
func (s *Store) migrate(fsys embed.FS) error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	var currentVersion int
	row := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	var upFiles []string
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasSuffix(name, ".up.sql") {
			upFiles = append(upFiles, name)
		}
	}
	sort.Strings(upFiles)

	for _, name := range upFiles {
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil {
			continue // Skip files that don't match pattern
		}

		if version <= currentVersion {
			continue // Already applied
		}

		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}

		if _, err := s.db.Exec(string(content)); err != nil {
			return fmt.Errorf("executing migration %s: %w", name, err)
		}

		if _, err := s.db.Exec("INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
			return fmt.Errorf("recording migration %s: %w", name, err)
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

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO knowledge_bases
			(id, tenant_id, name, description, source_type, source_url, file_name, status, metadata, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, kb.ID, kb.TenantID, kb.Name, kb.Description, string(kb.SourceType),
		nullString(kb.SourceURL), nullString(kb.FileName), string(kb.Status),
		string(metadataJSON), kb.CreatedAt, kb.UpdatedAt)

	if err != nil {
		return fmt.Errorf("creating knowledge base: %w", err)
	}
	return nil
}

// GetKnowledgeBase retrieves a knowledge base scoped to a tenant.
func (s *Store) GetKnowledgeBase(ctx context.Context, tenantID, id string) (*domain.KnowledgeBase, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, name, description, source_type, source_url, file_name, status, metadata, created_at, updated_at
		FROM knowledge_bases WHERE id = ? AND tenant_id = ?
	`, id, tenantID)

	return scanKnowledgeBase(row)
}

// ListKnowledgeBases returns all knowledge bases for a tenant, newest first.
func (s *Store) ListKnowledgeBases(ctx context.Context, tenantID string) ([]domain.KnowledgeBase, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant_id, name, description, source_type, source_url, file_name, status, metadata, created_at, updated_at
		FROM knowledge_bases WHERE tenant_id = ?
		ORDER BY created_at DESC
	`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("querying knowledge bases: %w", err)
	}
	defer rows.Close()

	var bases []domain.KnowledgeBase //nolint:prealloc // size unknown from query
	for rows.Next() {
		kb, err := scanKnowledgeBaseRows(rows)
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
// optionally the status, inside one transaction.
func (s *Store) updateRecord(ctx context.Context, id string, status *domain.KnowledgeBaseStatus, meta domain.KnowledgeBaseMetadata) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var metadataJSON string
	row := tx.QueryRowContext(ctx, "SELECT metadata FROM knowledge_bases WHERE id = ?", id)
	if err := row.Scan(&metadataJSON); err != nil {
		if err == sql.ErrNoRows {
			return domain.ErrNotFound
		}
		return fmt.Errorf("reading metadata: %w", err)
	}

	var current domain.KnowledgeBaseMetadata
	if metadataJSON != "" {
		if err := json.Unmarshal([]byte(metadataJSON), &current); err != nil {
			return fmt.Errorf("unmarshaling metadata: %w", err)
		}
	}
	mergedMeta := mergeMetadata(current, meta)
	if status != nil && *status != domain.StatusError {
		mergedMeta.ErrorMessage = ""
	}
	merged, err := json.Marshal(mergedMeta)
	if err != nil {
		return fmt.Errorf("marshalling metadata: %w", err)
	}

	now := time.Now().UTC()
	if status != nil {
		_, err = tx.ExecContext(ctx, `
			UPDATE knowledge_bases SET status = ?, metadata = ?, updated_at = ? WHERE id = ?
		`, string(*status), string(merged), now, id)
	} else {
		_, err = tx.ExecContext(ctx, `
			UPDATE knowledge_bases SET metadata = ?, updated_at = ? WHERE id = ?
		`, string(merged), now, id)
	}
	if err != nil {
		return fmt.Errorf("updating knowledge base: %w", err)
	}

	if err := tx.Commit(); err != nil {
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

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO knowledge_chunks (id, knowledge_base_id, content, chunk_index, metadata, embedding, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			knowledge_base_id = excluded.knowledge_base_id,
			content = excluded.content,
			chunk_index = excluded.chunk_index,
			metadata = excluded.metadata,
			embedding = excluded.embedding
	`)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer stmt.Close()

	for _, chunk := range chunks {
		metadataJSON, err := json.Marshal(chunk.Metadata)
		if err != nil {
			return fmt.Errorf("marshalling chunk metadata: %w", err)
		}

		createdAt := chunk.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now().UTC()
		}

		embeddingBlob := float32SliceToBytes(chunk.Embedding)

		if _, err := stmt.ExecContext(ctx, chunk.ID, chunk.KnowledgeBaseID, chunk.Content,
			chunk.ChunkIndex, string(metadataJSON), embeddingBlob, createdAt); err != nil {
			return fmt.Errorf("saving chunk: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// DeleteChunks removes all chunks belonging to a knowledge base.
func (s *Store) DeleteChunks(ctx context.Context, knowledgeBaseID string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM knowledge_chunks WHERE knowledge_base_id = ?", knowledgeBaseID)
	if err != nil {
		return fmt.Errorf("deleting chunks: %w", err)
	}
	return nil
}

// DeleteKnowledgeBase verifies tenant ownership, then deletes the knowledge
// base and its chunks inside one transaction.
func (s *Store) DeleteKnowledgeBase(ctx context.Context, tenantID, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var owner string
	row := tx.QueryRowContext(ctx, "SELECT tenant_id FROM knowledge_bases WHERE id = ?", id)
	if err := row.Scan(&owner); err != nil {
		if err == sql.ErrNoRows {
			return domain.ErrNotFound
		}
		return fmt.Errorf("checking ownership: %w", err)
	}
	if owner != tenantID {
		return domain.ErrOwnershipMismatch
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM knowledge_chunks WHERE knowledge_base_id = ?", id); err != nil {
		return fmt.Errorf("deleting chunks: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM knowledge_bases WHERE id = ?", id); err != nil {
		return fmt.Errorf("deleting knowledge base: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// NearestChunks loads the candidate chunks for the tenant and reranks them
// in memory by cosine similarity to the query vector.
func (s *Store) NearestChunks(ctx context.Context, tenantID string, vector []float32, filter driven.ChunkFilter, limit int) ([]driven.ChunkHit, error) {
	query, args := chunkQuery(tenantID, filter, "")

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying chunks: %w", err)
	}
	defer rows.Close()

	var hits []driven.ChunkHit
	var embeddings [][]float32
	for rows.Next() {
		hit, embedding, err := scanChunkHit(rows)
		if err != nil {
			return nil, err
		}
		hits = append(hits, hit)
		embeddings = append(embeddings, embedding)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating chunks: %w", err)
	}

	ranked := similarity.TopK(vector, embeddings, limit)
	results := make([]driven.ChunkHit, 0, len(ranked))
	for _, r := range ranked {
		hit := hits[r.Index]
		hit.Similarity = r.Similarity
		results = append(results, hit)
	}
	return results, nil
}

// KeywordChunks returns chunks whose content contains the query,
// case-insensitive. The query is matched literally, so LIKE wildcards in
// user input do not widen the match.
func (s *Store) KeywordChunks(ctx context.Context, tenantID, query string, filter driven.ChunkFilter, limit int) ([]driven.ChunkHit, error) {
	sqlQuery, args := chunkQuery(tenantID, filter, `AND LOWER(c.content) LIKE '%' || ? || '%' ESCAPE '\'`)
	args = append(args, escapeLike(strings.ToLower(query)))
	sqlQuery += " LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("querying chunks: %w", err)
	}
	defer rows.Close()

	var hits []driven.ChunkHit //nolint:prealloc // size unknown from query
	for rows.Next() {
		hit, _, err := scanChunkHit(rows)
		if err != nil {
			return nil, err
		}
		hits = append(hits, hit)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating chunks: %w", err)
	}

	return hits, nil
}

// AdjacentChunks returns the chunks immediately before and after the given
// index within one knowledge base.
func (s *Store) AdjacentChunks(ctx context.Context, knowledgeBaseID string, index int) ([]domain.KnowledgeChunk, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, knowledge_base_id, content, chunk_index, metadata, embedding, created_at
		FROM knowledge_chunks
		WHERE knowledge_base_id = ? AND chunk_index IN (?, ?)
		ORDER BY chunk_index
	`, knowledgeBaseID, index-1, index+1)
	if err != nil {
		return nil, fmt.Errorf("querying adjacent chunks: %w", err)
	}
	defer rows.Close()

	var chunks []domain.KnowledgeChunk //nolint:prealloc // size unknown from query
	for rows.Next() {
		var chunk domain.KnowledgeChunk
		var metadataJSON string
		var embeddingBlob []byte
		if err := rows.Scan(&chunk.ID, &chunk.KnowledgeBaseID, &chunk.Content,
			&chunk.ChunkIndex, &metadataJSON, &embeddingBlob, &chunk.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning chunk: %w", err)
		}
		chunk.Embedding = bytesToFloat32Slice(embeddingBlob)
		if metadataJSON != "" {
			if err := json.Unmarshal([]byte(metadataJSON), &chunk.Metadata); err != nil {
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

// chunkQuery builds the candidate chunk query scoped to a tenant and
// READY knowledge bases, with optional filter clauses.
func chunkQuery(tenantID string, filter driven.ChunkFilter, extra string) (string, []any) {
	var sb strings.Builder
	sb.WriteString(`
		SELECT c.id, c.content, c.chunk_index, c.metadata, c.embedding,
			kb.id, kb.name, kb.source_type, kb.source_url, kb.file_name
		FROM knowledge_chunks c
		JOIN knowledge_bases kb ON kb.id = c.knowledge_base_id
		WHERE kb.tenant_id = ? AND kb.status = ?
	`)
	args := []any{tenantID, string(domain.StatusReady)}

	if len(filter.KnowledgeBaseIDs) > 0 {
		sb.WriteString(" AND kb.id IN (" + placeholders(len(filter.KnowledgeBaseIDs)) + ")")
		for _, id := range filter.KnowledgeBaseIDs {
			args = append(args, id)
		}
	}
	if len(filter.SourceTypes) > 0 {
		sb.WriteString(" AND kb.source_type IN (" + placeholders(len(filter.SourceTypes)) + ")")
		for _, st := range filter.SourceTypes {
			args = append(args, string(st))
		}
	}
	if extra != "" {
		sb.WriteString(" " + extra)
	}

	return sb.String(), args
}

// placeholders returns n comma-separated SQL placeholders.
func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// scanChunkHit scans one joined chunk row, returning the hit and its
// decoded embedding.
func scanChunkHit(rows *sql.Rows) (driven.ChunkHit, []float32, error) {
	var hit driven.ChunkHit
	var metadataJSON string
	var embeddingBlob []byte
	var sourceType string
	var sourceURL, fileName sql.NullString

	if err := rows.Scan(&hit.ID, &hit.Content, &hit.ChunkIndex, &metadataJSON, &embeddingBlob,
		&hit.KnowledgeBaseID, &hit.KnowledgeBaseName, &sourceType, &sourceURL, &fileName); err != nil {
		return hit, nil, fmt.Errorf("scanning chunk: %w", err)
	}

	hit.SourceType = domain.SourceType(sourceType)
	hit.SourceURL = sourceURL.String
	hit.FileName = fileName.String
	if metadataJSON != "" {
		if err := json.Unmarshal([]byte(metadataJSON), &hit.Metadata); err != nil {
			return hit, nil, fmt.Errorf("unmarshaling chunk metadata: %w", err)
		}
	}

	return hit, bytesToFloat32Slice(embeddingBlob), nil
}

// scanKnowledgeBase scans a single knowledge base row.
func scanKnowledgeBase(row *sql.Row) (*domain.KnowledgeBase, error) {
	var kb domain.KnowledgeBase
	var sourceType, status, metadataJSON string
	var sourceURL, fileName sql.NullString

	if err := row.Scan(&kb.ID, &kb.TenantID, &kb.Name, &kb.Description, &sourceType,
		&sourceURL, &fileName, &status, &metadataJSON, &kb.CreatedAt, &kb.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scanning knowledge base: %w", err)
	}

	kb.SourceType = domain.SourceType(sourceType)
	kb.Status = domain.KnowledgeBaseStatus(status)
	kb.SourceURL = sourceURL.String
	kb.FileName = fileName.String
	if metadataJSON != "" {
		if err := json.Unmarshal([]byte(metadataJSON), &kb.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshaling metadata: %w", err)
		}
	}

	return &kb, nil
}

// scanKnowledgeBaseRows scans a knowledge base from *sql.Rows.
func scanKnowledgeBaseRows(rows *sql.Rows) (*domain.KnowledgeBase, error) {
	var kb domain.KnowledgeBase
	var sourceType, status, metadataJSON string
	var sourceURL, fileName sql.NullString

	if err := rows.Scan(&kb.ID, &kb.TenantID, &kb.Name, &kb.Description, &sourceType,
		&sourceURL, &fileName, &status, &metadataJSON, &kb.CreatedAt, &kb.UpdatedAt); err != nil {
		return nil, fmt.Errorf("scanning knowledge base: %w", err)
	}

	kb.SourceType = domain.SourceType(sourceType)
	kb.Status = domain.KnowledgeBaseStatus(status)
	kb.SourceURL = sourceURL.String
	kb.FileName = fileName.String
	if metadataJSON != "" {
		if err := json.Unmarshal([]byte(metadataJSON), &kb.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshaling metadata: %w", err)
		}
	}

	return &kb, nil
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

// likeEscaper neutralises LIKE pattern metacharacters in user input.
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

// float32SliceToBytes converts a []float32 to a byte slice for storage.
func float32SliceToBytes(floats []float32) []byte {
	if len(floats) == 0 {
		return nil
	}
	buf := make([]byte, len(floats)*4)
	for i, f := range floats {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// bytesToFloat32Slice converts a byte slice back to []float32.
func bytesToFloat32Slice(data []byte) []float32 {
	if len(data) == 0 {
		return nil
	}
	floats := make([]float32, len(data)/4)
	for i := range floats {
		floats[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return floats
}

// nullString converts an empty string to a NULL value.
func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
