// Package config loads knowledgestore's runtime configuration from the
// environment (and an optional .env file), the way the teacher's own
// pack loads configuration: read-and-default, no generated code, no config
// server.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds everything storectl and the ingest watcher need to run
// against one database.
type Config struct {
	// DBRoot is the directory kstore.Open/Create resolve database files
	// under; DBName is the database's name within that root (no ".db").
	DBRoot string
	DBName string

	// OpenAIAPIKey authenticates the LLM oracle and the embedding client
	// when LLMProvider/EmbeddingProvider is "openai".
	OpenAIAPIKey string

	// LLMProvider selects the chat-completions backend: "openai" (default)
	// or "ollama".
	LLMProvider string

	// LLMModel is the chat-completions model used for extraction and
	// witness analysis.
	LLMModel string

	// LLMBaseURL overrides the default endpoint: the OpenAI-compatible API
	// root when LLMProvider is "openai", or the Ollama server URL when it
	// is "ollama".
	LLMBaseURL string

	// EmbeddingProvider selects the embedding backend: "openai" (default)
	// or "ollama".
	EmbeddingProvider string

	// EmbeddingModel is the embeddings model used for KG node vectors.
	EmbeddingModel string

	// EmbeddingBaseURL overrides the Ollama server URL for embeddings when
	// EmbeddingProvider is "ollama". Ignored for "openai".
	EmbeddingBaseURL string

	// IngestWatchDir, if set, is the directory storectl watch watches for
	// new documents to ingest.
	IngestWatchDir string

	// LogLevel is one of debug|info|warn|error (default info).
	LogLevel string

	// IngestConcurrency bounds how many documents storectl ingest processes
	// at once when given multiple paths.
	IngestConcurrency int
}

// Load reads Config from the environment, applying .env overrides first the
// way the pack's own config loaders do (Overload so a repo-local .env wins
// over inherited shell environment during development).
func Load() (Config, error) {
	_ = godotenv.Overload()

	cfg := Config{
		DBRoot:            strings.TrimSpace(os.Getenv("KSTORE_DB_ROOT")),
		DBName:            strings.TrimSpace(os.Getenv("KSTORE_DB_NAME")),
		OpenAIAPIKey:      strings.TrimSpace(os.Getenv("OPENAI_API_KEY")),
		LLMProvider:       strings.ToLower(strings.TrimSpace(os.Getenv("KSTORE_LLM_PROVIDER"))),
		LLMModel:          strings.TrimSpace(os.Getenv("KSTORE_LLM_MODEL")),
		LLMBaseURL:        strings.TrimSpace(os.Getenv("KSTORE_LLM_BASE_URL")),
		EmbeddingProvider: strings.ToLower(strings.TrimSpace(os.Getenv("KSTORE_EMBEDDING_PROVIDER"))),
		EmbeddingModel:    strings.TrimSpace(os.Getenv("KSTORE_EMBEDDING_MODEL")),
		EmbeddingBaseURL:  strings.TrimSpace(os.Getenv("KSTORE_EMBEDDING_BASE_URL")),
		IngestWatchDir:    strings.TrimSpace(os.Getenv("KSTORE_WATCH_DIR")),
		LogLevel:          strings.TrimSpace(os.Getenv("KSTORE_LOG_LEVEL")),
		IngestConcurrency: 4,
	}

	if v := strings.TrimSpace(os.Getenv("KSTORE_INGEST_CONCURRENCY")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return Config{}, fmt.Errorf("KSTORE_INGEST_CONCURRENCY must be a positive integer, got %q", v)
		}
		cfg.IngestConcurrency = n
	}

	if cfg.DBRoot == "" {
		cfg.DBRoot = "."
	}
	if cfg.DBName == "" {
		cfg.DBName = "knowledgestore"
	}
	if cfg.LLMProvider == "" {
		cfg.LLMProvider = "openai"
	}
	if cfg.EmbeddingProvider == "" {
		cfg.EmbeddingProvider = "openai"
	}
	if cfg.LLMModel == "" {
		cfg.LLMModel = "gpt-4o-mini"
	}
	if cfg.EmbeddingModel == "" {
		cfg.EmbeddingModel = "text-embedding-3-small"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}

	if cfg.LLMProvider != "openai" && cfg.LLMProvider != "ollama" {
		return Config{}, fmt.Errorf("KSTORE_LLM_PROVIDER must be openai or ollama, got %q", cfg.LLMProvider)
	}
	if cfg.EmbeddingProvider != "openai" && cfg.EmbeddingProvider != "ollama" {
		return Config{}, fmt.Errorf("KSTORE_EMBEDDING_PROVIDER must be openai or ollama, got %q", cfg.EmbeddingProvider)
	}
	if (cfg.LLMProvider == "openai" || cfg.EmbeddingProvider == "openai") && cfg.OpenAIAPIKey == "" {
		return Config{}, errors.New("OPENAI_API_KEY is required when using the openai provider (set in .env or environment)")
	}

	return cfg, nil
}
