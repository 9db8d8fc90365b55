package embedding

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/google/generative-ai-go/genai"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

const defaultGeminiEmbeddingModel = "text-embedding-004"

// GeminiProvider implements Provider on the Gemini embedding models.
type GeminiProvider struct {
	client    *genai.Client
	model     string
	dimension int
	logger    *zap.Logger

	observed atomic.Int64
}

// NewGeminiProvider dials the Gemini API with the configured key.
func NewGeminiProvider(ctx context.Context, cfg Config, logger *zap.Logger) (*GeminiProvider, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("embedding: create gemini client: %w", err)
	}
	model := cfg.Model
	if model == "" {
		model = defaultGeminiEmbeddingModel
	}
	return &GeminiProvider{client: client, model: model, dimension: cfg.Dimension, logger: logger}, nil
}

// Embed embeds each text with EmbedContent.
func (p *GeminiProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	em := p.client.EmbeddingModel(p.model)
	out := make([][]float32, 0, len(texts))
	for _, text := range texts {
		res, err := em.EmbedContent(ctx, genai.Text(text))
		if err != nil {
			return nil, fmt.Errorf("embedding: gemini request: %w", err)
		}
		if res.Embedding == nil || len(res.Embedding.Values) == 0 {
			return nil, ErrEmptyEmbedding
		}
		out = append(out, res.Embedding.Values)
	}
	p.observed.CompareAndSwap(0, int64(len(out[0])))
	return out, nil
}

// Dimension returns the observed or configured vector dimension.
func (p *GeminiProvider) Dimension() int {
	if d := p.observed.Load(); d > 0 {
		return int(d)
	}
	return p.dimension
}

// Close releases the underlying client.
func (p *GeminiProvider) Close() error {
	if err := p.client.Close(); err != nil {
		p.logger.Warn("close gemini embedding client", zap.Error(err))
		return err
	}
	return nil
}
