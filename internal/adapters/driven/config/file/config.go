// Package file provides TOML-backed configuration loading.
//
// Configuration is resolved in three layers: built-in defaults, the TOML
// file, and finally environment variables, each overriding the last.
package file

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
)

// Environment variables recognised as overrides.
const (
	EnvAPIKey      = "OPENAI_API_KEY"
	EnvDatabaseURL = "RAGCORE_DATABASE_URL"
	EnvLogLevel    = "RAGCORE_LOG_LEVEL"
)

// Config is the full application configuration.
type Config struct {
	Storage   StorageConfig   `toml:"storage"`
	Embedding EmbeddingConfig `toml:"embedding"`
	LLM       LLMConfig       `toml:"llm"`
	Chunking  ChunkingConfig  `toml:"chunking"`
	Search    SearchConfig    `toml:"search"`
	Company   CompanyConfig   `toml:"company"`
	Logging   LoggingConfig   `toml:"logging"`
}

// StorageConfig selects and configures the knowledge store.
type StorageConfig struct {
	// Driver is "sqlite" or "postgres".
	Driver string `toml:"driver"`

	// DataDir is the SQLite data directory. Empty means ~/.ragcore/data.
	DataDir string `toml:"data_dir"`

	// DatabaseURL is the Postgres connection string.
	DatabaseURL string `toml:"database_url"`
}

// EmbeddingConfig configures the embedding provider.
type EmbeddingConfig struct {
	// Provider is "openai" or "ollama".
	Provider string `toml:"provider"`

	// APIKey authenticates against hosted providers.
	APIKey string `toml:"api_key"`

	// BaseURL overrides the provider endpoint.
	BaseURL string `toml:"base_url"`

	// Model is the embedding model name.
	Model string `toml:"model"`

	// Dimensions overrides the model's embedding size.
	Dimensions int `toml:"dimensions"`
}

// LLMConfig configures the answer-generation provider.
type LLMConfig struct {
	// Provider is "openai" or "ollama".
	Provider string `toml:"provider"`

	// APIKey authenticates against hosted providers.
	APIKey string `toml:"api_key"`

	// BaseURL overrides the provider endpoint.
	BaseURL string `toml:"base_url"`

	// Model is the chat model name.
	Model string `toml:"model"`
}

// ChunkingConfig tunes the text chunker.
type ChunkingConfig struct {
	// MaxTokens is the chunk size ceiling.
	MaxTokens int `toml:"max_tokens"`

	// OverlapTokens is the overlap between consecutive chunks.
	OverlapTokens int `toml:"overlap_tokens"`
}

// SearchConfig tunes retrieval behaviour.
type SearchConfig struct {
	// Limit is the default number of results.
	Limit int `toml:"limit"`

	// MinSimilarity filters out weak matches.
	MinSimilarity float64 `toml:"min_similarity"`

	// VectorShare is the vector weight in hybrid scoring.
	VectorShare float64 `toml:"vector_share"`

	// KeywordScore is the neutral score assigned to keyword-only hits.
	KeywordScore float64 `toml:"keyword_score"`
}

// CompanyConfig identifies the tenant's business in generated answers.
type CompanyConfig struct {
	// Name is used in the support-agent prompt.
	Name string `toml:"name"`
}

// LoggingConfig tunes log output.
type LoggingConfig struct {
	// Level is a zerolog level name ("debug", "info", "warn", "error").
	Level string `toml:"level"`
}

// Default returns the built-in configuration defaults.
func Default() Config {
	return Config{
		Storage: StorageConfig{
			Driver: "sqlite",
		},
		Embedding: EmbeddingConfig{
			Provider: "openai",
			Model:    "text-embedding-3-small",
		},
		LLM: LLMConfig{
			Provider: "openai",
			Model:    "gpt-4o-mini",
		},
		Chunking: ChunkingConfig{
			MaxTokens:     512,
			OverlapTokens: 50,
		},
		Search: SearchConfig{
			Limit:         10,
			MinSimilarity: 0.3,
			VectorShare:   0.7,
			KeywordScore:  0.5,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// DefaultPath returns the default config file location,
// ~/.ragcore/config.toml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}
	return filepath.Join(home, ".ragcore", "config.toml"), nil
}

// Load reads configuration from the given path, overlaying the file's
// values on the defaults and environment overrides on both. A missing
// file is not an error; the defaults apply.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		// Defaults plus env overrides.
	case err != nil:
		return cfg, fmt.Errorf("reading config file: %w", err)
	default:
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parsing config file: %w", err)
		}
	}

	applyEnv(&cfg)
	return cfg, nil
}

// Save writes the configuration to the given path, creating the parent
// directory if needed.
func Save(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshalling config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

// applyEnv overlays environment variables onto the configuration.
func applyEnv(cfg *Config) {
	if key := os.Getenv(EnvAPIKey); key != "" {
		if cfg.Embedding.APIKey == "" {
			cfg.Embedding.APIKey = key
		}
		if cfg.LLM.APIKey == "" {
			cfg.LLM.APIKey = key
		}
	}
	if url := os.Getenv(EnvDatabaseURL); url != "" {
		cfg.Storage.DatabaseURL = url
		cfg.Storage.Driver = "postgres"
	}
	if level := os.Getenv(EnvLogLevel); level != "" {
		cfg.Logging.Level = level
	}
}
