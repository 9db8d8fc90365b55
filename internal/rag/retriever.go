package rag

import (
	"context"
	"fmt"

	"github.com/nidhogg/jarvis/internal/classifier"
	"github.com/nidhogg/jarvis/internal/embedding"
	"github.com/nidhogg/jarvis/internal/vectorstore"
	"go.uber.org/zap"
)

// metaCategory is the chunk metadata key holding its category.
const metaCategory = "category"

// Retriever fetches knowledge chunks from the knowledge collection.
type Retriever struct {
	index    vectorstore.Index
	embedder embedding.Provider
	logger   *zap.Logger
}

// NewRetriever creates a retriever over the knowledge collection.
func NewRetriever(index vectorstore.Index, embedder embedding.Provider, logger *zap.Logger) *Retriever {
	return &Retriever{index: index, embedder: embedder, logger: logger}
}

// Retrieve returns the text of every chunk tagged with one of categories, in
// index enumeration order. Matching is by category only. Nothing matching,
// or an index failure, yields an empty result.
func (r *Retriever) Retrieve(ctx context.Context, query string, categories []classifier.Category) []string {
	if len(categories) == 0 {
		return nil
	}
	labels := make([]string, len(categories))
	for i, c := range categories {
		labels[i] = string(c)
	}

	recs, err := r.index.Get(ctx, &vectorstore.Filter{Key: metaCategory, In: labels})
	if err != nil {
		r.logger.Warn("knowledge retrieval failed", zap.Strings("categories", labels), zap.Error(err))
		return nil
	}
	docs := make([]string, 0, len(recs))
	for _, rec := range recs {
		if rec.Document != "" {
			docs = append(docs, rec.Document)
		}
	}
	r.logger.Debug("retrieved knowledge", zap.Strings("categories", labels), zap.Int("chunks", len(docs)))
	return docs
}

// Hit is a similarity-ranked knowledge chunk.
type Hit struct {
	ID       string  `json:"id"`
	Category string  `json:"category"`
	Text     string  `json:"text"`
	Score    float32 `json:"score"`
}

// Search ranks chunks by similarity to query and returns the top k.
func (r *Retriever) Search(ctx context.Context, query string, k int) ([]Hit, error) {
	vec, err := embedding.EmbedOne(ctx, r.embedder, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	recs, err := r.index.Query(ctx, vec, k)
	if err != nil {
		return nil, fmt.Errorf("search knowledge: %w", err)
	}
	hits := make([]Hit, len(recs))
	for i, rec := range recs {
		hits[i] = Hit{
			ID:       rec.ID,
			Category: rec.Metadata.String(metaCategory),
			Text:     rec.Document,
			Score:    1 - rec.Distance,
		}
	}
	return hits, nil
}
