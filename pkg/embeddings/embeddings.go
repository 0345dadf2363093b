// Package embeddings provides embedding generation via multiple providers.
//
// The knowledge store consumes the Embedder interface; providers are
// interchangeable. The TEI provider talks to a text-embeddings-inference
// HTTP endpoint, the FastEmbed provider runs local ONNX models (CGO
// builds only), and the hash provider produces deterministic vectors for
// offline tests.
package embeddings

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrEmptyInput indicates empty or nil input texts.
	ErrEmptyInput = errors.New("empty or nil input texts")

	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrEmbeddingFailed indicates embedding generation failure.
	ErrEmbeddingFailed = errors.New("embedding generation failed")
)

// Embedder generates vector embeddings from text.
type Embedder interface {
	// EmbedDocuments generates embeddings for multiple texts, one per input.
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)

	// EmbedQuery generates an embedding for a single query. Some models
	// optimize differently for queries vs documents.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Provider is an Embedder that knows its output dimension and owns
// releasable resources.
type Provider interface {
	Embedder
	// Dimension returns the embedding dimension for the current model.
	Dimension() int
	// Close releases resources held by the provider.
	Close() error
}

// ProviderConfig holds configuration for creating an embedding provider.
type ProviderConfig struct {
	// Provider is the provider type: "tei", "openai", "fastembed" or "hash".
	Provider string `koanf:"provider"`
	// Model is the embedding model name.
	Model string `koanf:"model"`
	// BaseURL is the embedding endpoint URL (TEI provider only).
	BaseURL string `koanf:"base_url"`
	// APIKey authenticates against the endpoint, optional (TEI provider only).
	APIKey string `koanf:"api_key"`
	// CacheDir is the model cache directory (FastEmbed provider only).
	CacheDir string `koanf:"cache_dir"`
	// Dimension overrides the vector size (hash provider only).
	Dimension int `koanf:"dimension"`
}

// NewProvider creates an embedding provider from config.
func NewProvider(cfg ProviderConfig) (Provider, error) {
	switch cfg.Provider {
	case "tei", "":
		return NewTEIProvider(TEIConfig{
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
			APIKey:  cfg.APIKey,
		})
	case "openai":
		return NewOpenAIProvider(OpenAIConfig{
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
			APIKey:  cfg.APIKey,
		})
	case "fastembed":
		return NewFastEmbedProvider(FastEmbedConfig{
			Model:    cfg.Model,
			CacheDir: cfg.CacheDir,
		})
	case "hash":
		return NewHashProvider(cfg.Dimension), nil
	default:
		return nil, fmt.Errorf("%w: unknown provider %q (supported: tei, openai, fastembed, hash)",
			ErrInvalidConfig, cfg.Provider)
	}
}
