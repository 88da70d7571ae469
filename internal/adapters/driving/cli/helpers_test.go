package cli

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/claritydesk/ragcore/internal/adapters/driven/storage/memory"
	"github.com/claritydesk/ragcore/internal/chunker"
	"github.com/claritydesk/ragcore/internal/core/ports/driven"
	"github.com/claritydesk/ragcore/internal/core/services"
)

// fakeEmbedder returns the same unit vector for every input so any
// stored chunk matches any query exactly.
type fakeEmbedder struct{}

var _ driven.EmbeddingService = (*fakeEmbedder)(nil)

func (f *fakeEmbedder) Embed(context.Context, string) ([]float32, error) {
	return []float32{0.6, 0.8}, nil
}

func (f *fakeEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i := range texts {
		vectors[i] = []float32{0.6, 0.8}
	}
	return vectors, nil
}

func (f *fakeEmbedder) Dimensions() int            { return 2 }
func (f *fakeEmbedder) ModelName() string          { return "fake-embedding" }
func (f *fakeEmbedder) Ping(context.Context) error { return nil }
func (f *fakeEmbedder) Close() error               { return nil }

type fakeLLM struct{}

var _ driven.LLMService = (*fakeLLM)(nil)

func (f *fakeLLM) Generate(context.Context, string, driven.GenerateOptions) (string, error) {
	return "Refunds are processed within 5 business days.", nil
}

func (f *fakeLLM) ModelName() string          { return "fake-llm" }
func (f *fakeLLM) Ping(context.Context) error { return nil }
func (f *fakeLLM) Close() error               { return nil }

// setupTestServices wires the command tree to in-memory services and
// returns a cleanup restoring the unconfigured state.
func setupTestServices() func() {
	store := memory.NewStore()
	embedder := &fakeEmbedder{}
	nop := zerolog.Nop()

	ingestService = services.NewIngestService(store, embedder, chunker.NewHeuristicChunker(),
		services.IngestConfig{RetryBaseDelay: time.Millisecond}, nop)
	searcher := services.NewSearchService(store, embedder, services.SearchConfig{}, nop)
	searchService = searcher
	answerService = services.NewAnswerService(searcher, &fakeLLM{},
		services.CompanyInfo{Name: "Acme"}, services.AnswerConfig{RetryBaseDelay: time.Millisecond}, nop)

	cleanup := func() {
		ingestService = nil
		searchService = nil
		answerService = nil
		ingestName = ""
		ingestDescription = ""
		ingestText = ""
		ingestURL = ""
	}
	return cleanup
}

// newAnswerServiceWithoutLLM mirrors the unconfigured-provider wiring.
func newAnswerServiceWithoutLLM() answerer {
	return services.NewAnswerService(searchService, nil,
		services.CompanyInfo{Name: "Acme"}, services.AnswerConfig{}, zerolog.Nop())
}
