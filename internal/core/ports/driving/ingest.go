// Package driving provides interfaces for external actors (primary/inbound ports).
package driving

import (
	"context"

	"github.com/claritydesk/ragcore/internal/core/domain"
)

// IngestRequest carries an already-extracted plain-text document into the
// pipeline. File parsing and URL scraping happen upstream; the pipeline
// receives text plus a source-type tag.
type IngestRequest struct {
	// TenantID is the owning tenant (required).
	TenantID string

	// Name is the knowledge base display name (required).
	Name string

	// Description is an optional free-text description.
	Description string

	// SourceType records how the content was obtained (required).
	SourceType domain.SourceType

	// SourceURL is the origin URL for WEBSITE sources.
	SourceURL string

	// FileName is the original file name for UPLOAD sources.
	FileName string

	// Text is the extracted plain text to ingest (required).
	Text string
}

// Ingestor runs the ingestion pipeline: prepare, chunk, embed, persist.
type Ingestor interface {
	// Ingest creates a knowledge base and processes the document through
	// chunking, embedding and storage. The returned knowledge base is in
	// its terminal status: READY on success, ERROR with a recorded reason
	// on failure. The error return covers failures before the knowledge
	// base row exists; later failures are captured on the record itself.
	Ingest(ctx context.Context, req IngestRequest) (*domain.KnowledgeBase, error)

	// Reprocess deletes a knowledge base's chunks and runs a fresh
	// ingestion pass over the given text.
	Reprocess(ctx context.Context, tenantID, knowledgeBaseID, text string) (*domain.KnowledgeBase, error)

	// Delete removes a knowledge base and all its chunks transactionally,
	// verifying tenant ownership first.
	Delete(ctx context.Context, tenantID, knowledgeBaseID string) error
}
