package config

import "testing"

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"KSTORE_DB_ROOT", "KSTORE_DB_NAME", "OPENAI_API_KEY", "KSTORE_LLM_PROVIDER",
		"KSTORE_LLM_MODEL", "KSTORE_LLM_BASE_URL", "KSTORE_EMBEDDING_PROVIDER",
		"KSTORE_EMBEDDING_MODEL", "KSTORE_EMBEDDING_BASE_URL", "KSTORE_WATCH_DIR",
		"KSTORE_LOG_LEVEL", "KSTORE_INGEST_CONCURRENCY",
	} {
		t.Setenv(k, "")
	}
}

func TestLoadAppliesDefaultsWhenUnset(t *testing.T) {
	clearEnv(t)
	t.Setenv("OPENAI_API_KEY", "sk-test")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DBRoot != "." || cfg.DBName != "knowledgestore" {
		t.Fatalf("expected default root/name, got %q/%q", cfg.DBRoot, cfg.DBName)
	}
	if cfg.LLMProvider != "openai" || cfg.EmbeddingProvider != "openai" {
		t.Fatalf("expected both providers to default to openai, got %q/%q", cfg.LLMProvider, cfg.EmbeddingProvider)
	}
	if cfg.LLMModel != "gpt-4o-mini" || cfg.EmbeddingModel != "text-embedding-3-small" {
		t.Fatalf("expected default model names, got %q/%q", cfg.LLMModel, cfg.EmbeddingModel)
	}
	if cfg.IngestConcurrency != 4 {
		t.Fatalf("expected default concurrency 4, got %d", cfg.IngestConcurrency)
	}
}

func TestLoadRejectsUnknownProvider(t *testing.T) {
	clearEnv(t)
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("KSTORE_LLM_PROVIDER", "bogus")

	if _, err := Load(); err == nil {
		t.Fatal("expected an error for an unrecognized LLM provider")
	}
}

func TestLoadRequiresAPIKeyOnlyWhenAProviderIsOpenAI(t *testing.T) {
	clearEnv(t)
	t.Setenv("KSTORE_LLM_PROVIDER", "ollama")
	t.Setenv("KSTORE_EMBEDDING_PROVIDER", "ollama")

	if _, err := Load(); err != nil {
		t.Fatalf("expected no API key requirement when both providers are ollama, got %v", err)
	}
}

func TestLoadStillRequiresAPIKeyWhenOnlyOneProviderIsOpenAI(t *testing.T) {
	clearEnv(t)
	t.Setenv("KSTORE_LLM_PROVIDER", "ollama")
	t.Setenv("KSTORE_EMBEDDING_PROVIDER", "openai")

	if _, err := Load(); err == nil {
		t.Fatal("expected an API key requirement when the embedding provider is openai even if the LLM provider isn't")
	}
}

func TestLoadRejectsNonPositiveConcurrency(t *testing.T) {
	clearEnv(t)
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("KSTORE_INGEST_CONCURRENCY", "0")

	if _, err := Load(); err == nil {
		t.Fatal("expected an error for non-positive concurrency")
	}
}
