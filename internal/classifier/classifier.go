package classifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/nidhogg/jarvis/internal/embedding"
	"github.com/nidhogg/jarvis/internal/vectorstore"
	"go.uber.org/zap"
)

// ErrClassify wraps every failure to score a query.
var ErrClassify = errors.New("classify query")

// Classifier assigns zero or more categories to a query by comparing its
// embedding with one reference vector per category. Categories are scored
// independently. When none clears the threshold the result is {general}.
type Classifier struct {
	embedder  embedding.Provider
	registry  *Registry
	threshold float64
	refs      map[Category][]float32
	logger    *zap.Logger
}

// New embeds each category description once and uses it as the reference.
// General is never scored; it is only the fallback.
func New(ctx context.Context, embedder embedding.Provider, registry *Registry, threshold float64, logger *zap.Logger) (*Classifier, error) {
	var cats []Category
	var descs []string
	for _, c := range registry.All() {
		if c == General {
			continue
		}
		info, _ := registry.Lookup(c)
		cats = append(cats, c)
		descs = append(descs, info.Description)
	}
	vectors, err := embedder.Embed(ctx, descs)
	if err != nil {
		return nil, fmt.Errorf("embed category descriptions: %w", err)
	}
	if len(vectors) != len(cats) {
		return nil, fmt.Errorf("embed category descriptions: got %d vectors for %d categories", len(vectors), len(cats))
	}
	refs := make(map[Category][]float32, len(cats))
	for i, c := range cats {
		refs[c] = vectors[i]
	}
	return NewWithReferences(embedder, registry, refs, threshold, logger)
}

// NewWithReferences uses precomputed reference vectors, e.g. centroids
// trained offline.
func NewWithReferences(embedder embedding.Provider, registry *Registry, refs map[Category][]float32, threshold float64, logger *zap.Logger) (*Classifier, error) {
	for c := range refs {
		if _, ok := registry.Lookup(c); !ok {
			return nil, fmt.Errorf("reference for unknown category %q", c)
		}
	}
	logger.Info("category classifier ready", zap.Int("categories", len(refs)), zap.Float64("threshold", threshold))
	return &Classifier{
		embedder:  embedder,
		registry:  registry,
		threshold: threshold,
		refs:      refs,
		logger:    logger,
	}, nil
}

// LoadReferences reads {"category": [floats...]} from path.
func LoadReferences(path string, registry *Registry) (map[Category][]float32, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read category references %s: %w", path, err)
	}
	var raw map[string][]float32
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse category references %s: %w", path, err)
	}
	refs := make(map[Category][]float32, len(raw))
	for label, vec := range raw {
		c, err := registry.Parse(label)
		if err != nil {
			return nil, fmt.Errorf("category references %s: %w", path, err)
		}
		refs[c] = vec
	}
	return refs, nil
}

// Classify returns the categories whose score is at least the threshold,
// in registry order, or {general} if none is.
func (c *Classifier) Classify(ctx context.Context, query string) ([]Category, error) {
	vec, err := embedding.EmbedOne(ctx, c.embedder, query)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrClassify, err)
	}

	var out []Category
	for _, cat := range c.registry.All() {
		ref, ok := c.refs[cat]
		if !ok {
			continue
		}
		if len(ref) != len(vec) {
			return nil, fmt.Errorf("%w: %s reference has dimension %d, query has %d", ErrClassify, cat, len(ref), len(vec))
		}
		if float64(vectorstore.CosineSimilarity(vec, ref)) >= c.threshold {
			out = append(out, cat)
		}
	}
	if len(out) == 0 {
		out = []Category{General}
	}
	c.logger.Debug("classified query", zap.Any("categories", out))
	return out, nil
}
