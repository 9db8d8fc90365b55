package embedding

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Provider generates vector embeddings from text. The same provider must be
// used for cache keys, knowledge chunks and classifier representations.
type Provider interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
}

// Config holds embedding provider configuration.
type Config struct {
	Provider  string        `json:"provider"` // "api", "local" or "gemini"
	Endpoint  string        `json:"endpoint"`
	Model     string        `json:"model"`
	APIKey    string        `json:"api_key"`
	Dimension int           `json:"dimension"`
	Timeout   time.Duration `json:"timeout,omitempty"`
}

// ErrEmptyEmbedding is returned when a provider answers without a vector.
var ErrEmptyEmbedding = errors.New("embedding: empty result")

// EmbedOne embeds a single text.
func EmbedOne(ctx context.Context, p Provider, text string) ([]float32, error) {
	vectors, err := p.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 || len(vectors[0]) == 0 {
		return nil, ErrEmptyEmbedding
	}
	return vectors[0], nil
}

// New builds the provider named by cfg.Provider.
func New(ctx context.Context, cfg Config, logger *zap.Logger) (Provider, error) {
	switch cfg.Provider {
	case "", "api":
		return NewAPIProvider(cfg), nil
	case "local":
		return NewLocalProvider(cfg), nil
	case "gemini":
		return NewGeminiProvider(ctx, cfg, logger)
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}
}

func httpTimeout(cfg Config) time.Duration {
	if cfg.Timeout > 0 {
		return cfg.Timeout
	}
	return 30 * time.Second
}
