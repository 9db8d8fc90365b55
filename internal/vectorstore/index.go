package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"

	"go.uber.org/zap"
)

var (
	// ErrInvalidConfig marks connection parameters that must abort startup.
	ErrInvalidConfig = errors.New("vectorstore: invalid config")
	// ErrNotFound is returned when an id is not in the collection.
	ErrNotFound = errors.New("vectorstore: not found")
)

// Metadata is the payload stored next to each vector. Values are strings,
// integers, floats or booleans.
type Metadata map[string]any

// String returns the string value for key, or "".
func (m Metadata) String(key string) string {
	s, _ := m[key].(string)
	return s
}

// Int returns the integer value for key. Numeric payloads may come back as
// any integer or float type depending on the backend.
func (m Metadata) Int(key string) int64 {
	switch v := m[key].(type) {
	case int:
		return int64(v)
	case int32:
		return int64(v)
	case int64:
		return v
	case uint64:
		return int64(v)
	case float32:
		return int64(v)
	case float64:
		return int64(v)
	}
	return 0
}

func (m Metadata) clone() Metadata {
	out := make(Metadata, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Filter selects records whose metadata Key holds one of In.
// A nil *Filter matches everything.
type Filter struct {
	Key string
	In  []string
}

func (f *Filter) matches(md Metadata) bool {
	if f == nil {
		return true
	}
	return slices.Contains(f.In, md.String(f.Key))
}

// Record is a stored document as returned by Get and Query. Distance is only
// set by Query and is the cosine distance, so similarity = 1 - Distance.
type Record struct {
	ID       string
	Document string
	Metadata Metadata
	Distance float32
}

// Index is a single similarity-searchable collection.
type Index interface {
	Insert(ctx context.Context, id string, vector []float32, document string, md Metadata) error
	Get(ctx context.Context, filter *Filter) ([]Record, error)
	Query(ctx context.Context, vector []float32, k int) ([]Record, error)
	Update(ctx context.Context, id string, md Metadata) error
	Delete(ctx context.Context, ids ...string) error
	Count(ctx context.Context) (int, error)
}

// Backend hands out named collections that share one connection.
type Backend interface {
	Collection(ctx context.Context, name string, dimension int) (Index, error)
	io.Closer
}

// Config selects the index backend.
type Config struct {
	Mode   string       `json:"mode"` // "memory" or "qdrant"
	Qdrant QdrantConfig `json:"qdrant"`
}

// Validate reports connection parameters that cannot work.
func (c Config) Validate() error {
	switch c.Mode {
	case "memory":
		return nil
	case "qdrant":
		if c.Qdrant.Host == "" {
			return fmt.Errorf("%w: qdrant host is empty", ErrInvalidConfig)
		}
		if c.Qdrant.Port <= 0 || c.Qdrant.Port > 65535 {
			return fmt.Errorf("%w: qdrant port %d", ErrInvalidConfig, c.Qdrant.Port)
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown mode %q", ErrInvalidConfig, c.Mode)
	}
}

// Open validates cfg and returns the matching backend.
func Open(cfg Config, logger *zap.Logger) (Backend, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Mode == "qdrant" {
		c, err := NewClient(cfg.Qdrant)
		if err != nil {
			return nil, err
		}
		logger.Info("vector index: qdrant", zap.String("host", cfg.Qdrant.Host), zap.Int("port", cfg.Qdrant.Port))
		return c, nil
	}
	logger.Info("vector index: in-process memory")
	return NewMemoryBackend(), nil
}
