package main

import (
	"fmt"

	"github.com/dan-solli/knowledgestore/pkg/config"
	"github.com/dan-solli/knowledgestore/pkg/embeddings"
	"github.com/dan-solli/knowledgestore/pkg/llm"
)

// newLLMClient selects the chat-completions backend named by
// cfg.LLMProvider: "openai" talks to the OpenAI-compatible Chat Completions
// API, "ollama" talks directly to a local Ollama server's /api/generate.
func newLLMClient(cfg config.Config) (llm.LLMClient, error) {
	switch cfg.LLMProvider {
	case "", "openai":
		client := llm.NewOpenAILLM(cfg.OpenAIAPIKey)
		client.Model = cfg.LLMModel
		if cfg.LLMBaseURL != "" {
			client.BaseURL = cfg.LLMBaseURL
		}
		return client, nil
	case "ollama":
		baseURL := cfg.LLMBaseURL
		if baseURL == "" {
			baseURL = "http://localhost:11434"
		}
		return llm.NewOllamaClient(baseURL, cfg.LLMModel), nil
	default:
		return nil, fmt.Errorf("unknown LLM provider %q", cfg.LLMProvider)
	}
}

// newEmbeddingClient selects the embedding backend named by
// cfg.EmbeddingProvider, mirroring newLLMClient's provider switch.
func newEmbeddingClient(cfg config.Config) (embeddings.EmbeddingClient, error) {
	switch cfg.EmbeddingProvider {
	case "", "openai":
		client := embeddings.NewOpenAIClient(cfg.OpenAIAPIKey)
		client.Model = cfg.EmbeddingModel
		return client, nil
	case "ollama":
		baseURL := cfg.EmbeddingBaseURL
		if baseURL == "" {
			baseURL = "http://localhost:11434"
		}
		return embeddings.NewOllamaClient(baseURL, cfg.EmbeddingModel), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.EmbeddingProvider)
	}
}
