// Package cli implements the ragcore command line interface.
package cli

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	configfile "github.com/claritydesk/ragcore/internal/adapters/driven/config/file"
	embeddingollama "github.com/claritydesk/ragcore/internal/adapters/driven/embedding/ollama"
	embeddingopenai "github.com/claritydesk/ragcore/internal/adapters/driven/embedding/openai"
	llmollama "github.com/claritydesk/ragcore/internal/adapters/driven/llm/ollama"
	llmopenai "github.com/claritydesk/ragcore/internal/adapters/driven/llm/openai"
	"github.com/claritydesk/ragcore/internal/adapters/driven/storage/postgres"
	"github.com/claritydesk/ragcore/internal/adapters/driven/storage/sqlite"
	"github.com/claritydesk/ragcore/internal/chunker"
	"github.com/claritydesk/ragcore/internal/core/domain"
	"github.com/claritydesk/ragcore/internal/core/ports/driven"
	"github.com/claritydesk/ragcore/internal/core/ports/driving"
	"github.com/claritydesk/ragcore/internal/core/services"
	"github.com/claritydesk/ragcore/internal/logger"
)

// version is set at build time via ldflags.
var version = "dev"

var (
	configPath string
	tenantID   string
	logLevel   string
)

// knowledgeManager combines the ingestion port with the listing
// operations the kb subcommands need.
type knowledgeManager interface {
	driving.Ingestor
	List(ctx context.Context, tenantID string) ([]domain.KnowledgeBase, error)
	Get(ctx context.Context, tenantID, knowledgeBaseID string) (*domain.KnowledgeBase, error)
}

// answerer generates a grounded reply to a customer question.
type answerer interface {
	Answer(ctx context.Context, tenantID, question string, opts domain.SearchOptions) (string, error)
}

// Services are wired lazily in initServices. Tests preset them with
// in-memory fakes.
var (
	ingestService knowledgeManager
	searchService driving.Searcher
	answerService answerer

	knowledgeStore driven.KnowledgeStore
	log            zerolog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "ragcore",
	Short: "Knowledge base ingestion and retrieval for customer support",
	Long: `ragcore ingests support documents into tenant-scoped knowledge bases,
embeds them for semantic retrieval, and answers customer questions
grounded in the retrieved content.`,
	SilenceUsage:      true,
	PersistentPreRunE: initServices,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path (default ~/.ragcore/config.toml)")
	rootCmd.PersistentFlags().StringVarP(&tenantID, "tenant", "t", "default", "tenant identifier")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
}

// Execute runs the root command. It is the single entry point for main.
func Execute() int {
	defer closeServices()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

// initServices loads configuration and wires the adapters and services.
// It is a no-op when services are already present, which lets tests
// inject fakes and keeps help and version output config-free.
func initServices(cmd *cobra.Command, _ []string) error {
	if ingestService != nil {
		return nil
	}
	switch cmd.Name() {
	case "version", "help", "completion":
		return nil
	}

	path := configPath
	if path == "" {
		var err error
		path, err = configfile.DefaultPath()
		if err != nil {
			return fmt.Errorf("resolve config path: %w", err)
		}
	}
	cfg, err := configfile.Load(path)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	level := cfg.Logging.Level
	if logLevel != "" {
		level = logLevel
	}
	log = logger.New(level)

	store, err := openStore(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	knowledgeStore = store

	embedder := newEmbedder(cfg)
	llm := newLLM(cfg)

	ch := chunker.New(cfg.Embedding.Model,
		chunker.WithMaxTokens(cfg.Chunking.MaxTokens),
		chunker.WithOverlapTokens(cfg.Chunking.OverlapTokens),
	)

	ingestService = services.NewIngestService(store, embedder, ch, services.IngestConfig{}, log)
	searcher := services.NewSearchService(store, embedder, services.SearchConfig{
		DefaultLimit:         cfg.Search.Limit,
		DefaultMinSimilarity: cfg.Search.MinSimilarity,
		VectorShare:          cfg.Search.VectorShare,
		KeywordScore:         cfg.Search.KeywordScore,
	}, log)
	searchService = searcher
	answerService = services.NewAnswerService(searcher, llm,
		services.CompanyInfo{Name: cfg.Company.Name}, services.AnswerConfig{}, log)

	return nil
}

func openStore(ctx context.Context, cfg configfile.Config) (driven.KnowledgeStore, error) {
	switch cfg.Storage.Driver {
	case "", "sqlite":
		store, err := sqlite.NewStore(cfg.Storage.DataDir)
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		return store, nil
	case "postgres":
		store, err := postgres.NewStore(ctx, postgres.Config{
			DatabaseURL:         cfg.Storage.DatabaseURL,
			EmbeddingDimensions: embeddingDimensions(cfg),
		})
		if err != nil {
			return nil, fmt.Errorf("open postgres store: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
}

// newEmbedder returns nil when the provider is not configured; the
// services report domain.ErrEmbeddingUnavailable on use.
func newEmbedder(cfg configfile.Config) driven.EmbeddingService {
	switch strings.ToLower(cfg.Embedding.Provider) {
	case "ollama":
		return embeddingollama.NewEmbeddingService(embeddingollama.Config{
			BaseURL:    cfg.Embedding.BaseURL,
			Model:      cfg.Embedding.Model,
			Dimensions: cfg.Embedding.Dimensions,
		})
	default:
		svc, err := embeddingopenai.NewEmbeddingService(embeddingopenai.Config{
			APIKey:     cfg.Embedding.APIKey,
			BaseURL:    cfg.Embedding.BaseURL,
			Model:      cfg.Embedding.Model,
			Dimensions: cfg.Embedding.Dimensions,
		})
		if err != nil {
			log.Warn().Err(err).Msg("embedding provider not configured")
			return nil
		}
		return svc
	}
}

// newLLM returns nil when the provider is not configured; answering
// reports domain.ErrLLMUnavailable.
func newLLM(cfg configfile.Config) driven.LLMService {
	switch strings.ToLower(cfg.LLM.Provider) {
	case "ollama":
		return llmollama.NewLLMService(llmollama.Config{
			BaseURL: cfg.LLM.BaseURL,
			Model:   cfg.LLM.Model,
		})
	default:
		svc, err := llmopenai.NewLLMService(llmopenai.Config{
			APIKey:  cfg.LLM.APIKey,
			BaseURL: cfg.LLM.BaseURL,
			Model:   cfg.LLM.Model,
		})
		if err != nil {
			log.Warn().Err(err).Msg("LLM provider not configured")
			return nil
		}
		return svc
	}
}

func embeddingDimensions(cfg configfile.Config) int {
	if cfg.Embedding.Dimensions > 0 {
		return cfg.Embedding.Dimensions
	}
	return 1536
}

func closeServices() {
	if knowledgeStore != nil {
		if err := knowledgeStore.Close(); err != nil {
			log.Warn().Err(err).Msg("closing knowledge store")
		}
		knowledgeStore = nil
	}
}
