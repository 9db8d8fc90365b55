package cache

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/nidhogg/jarvis/internal/embedding"
	"github.com/nidhogg/jarvis/internal/vectorstore"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	metaAnswer      = "answer"
	metaAccessCount = "access_count"
)

// Config holds the cache bounds.
type Config struct {
	MaxSize   int     `json:"max_size"`
	Threshold float64 `json:"threshold"`
}

// Stats is a point-in-time view of cache activity.
type Stats struct {
	Entries   int   `json:"entries"`
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Puts      int64 `json:"puts"`
	Evictions int64 `json:"evictions"`
}

// Cache maps near-duplicate queries to previously generated answers. Entries
// live in their own vector collection: the document is the query text and the
// metadata holds the answer and an access count.
//
// Every failure inside Get or Put is logged and swallowed. Get reports a miss
// and Put leaves the index as it was.
type Cache struct {
	index     vectorstore.Index
	embedder  embedding.Provider
	maxSize   int
	threshold float64
	logger    *zap.Logger

	// putMu makes count, evict and insert one step within this process.
	putMu  sync.Mutex
	embeds singleflight.Group

	hits, misses, puts, evictions atomic.Int64
}

// Defaults used by configuration when nothing is set.
const (
	DefaultMaxSize   = 100
	DefaultThreshold = 0.9
)

// New creates a cache over index. A non-positive MaxSize means
// DefaultMaxSize. Threshold is used as given, so 0 matches any stored query.
func New(index vectorstore.Index, embedder embedding.Provider, cfg Config, logger *zap.Logger) *Cache {
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = DefaultMaxSize
	}
	return &Cache{
		index:     index,
		embedder:  embedder,
		maxSize:   cfg.MaxSize,
		threshold: cfg.Threshold,
		logger:    logger,
	}
}

// Get returns the cached answer for the nearest stored query when its
// similarity is at least the threshold. A hit bumps the entry's access count.
func (c *Cache) Get(ctx context.Context, query string) (string, bool) {
	answer, hit, err := c.lookup(ctx, query)
	if err != nil {
		c.logger.Warn("cache lookup failed", zap.Error(err))
	}
	if !hit {
		c.misses.Add(1)
		return "", false
	}
	c.hits.Add(1)
	return answer, true
}

func (c *Cache) lookup(ctx context.Context, query string) (string, bool, error) {
	vec, err := c.embed(ctx, query)
	if err != nil {
		return "", false, err
	}
	nearest, err := c.index.Query(ctx, vec, 1)
	if err != nil {
		return "", false, fmt.Errorf("query cache: %w", err)
	}
	if len(nearest) == 0 {
		return "", false, nil
	}

	top := nearest[0]
	similarity := 1 - float64(top.Distance)
	if similarity < c.threshold {
		c.logger.Debug("cache miss", zap.Float64("similarity", similarity))
		return "", false, nil
	}

	count := top.Metadata.Int(metaAccessCount) + 1
	if err := c.index.Update(ctx, top.ID, vectorstore.Metadata{metaAccessCount: count}); err != nil {
		return "", false, fmt.Errorf("bump access count: %w", err)
	}
	c.logger.Debug("cache hit", zap.String("id", top.ID), zap.Float64("similarity", similarity), zap.Int64("access_count", count))
	return top.Metadata.String(metaAnswer), true, nil
}

// Put stores answer under query, evicting one entry first if the cache is
// full. The query is embedded before anything is evicted, so a failed embed
// leaves the cache unchanged.
func (c *Cache) Put(ctx context.Context, query, answer string) {
	vec, err := c.embed(ctx, query)
	if err != nil {
		c.logger.Warn("cache put failed", zap.Error(err))
		return
	}

	c.putMu.Lock()
	defer c.putMu.Unlock()

	if err := c.evictIfFull(ctx); err != nil {
		c.logger.Warn("cache eviction failed, skipping put", zap.Error(err))
		return
	}
	id := uuid.NewString()
	md := vectorstore.Metadata{metaAnswer: answer, metaAccessCount: int64(0)}
	if err := c.index.Insert(ctx, id, vec, query, md); err != nil {
		c.logger.Warn("cache put failed", zap.Error(err))
		return
	}
	c.puts.Add(1)
	c.logger.Debug("cached answer", zap.String("id", id))
}

// evictIfFull removes the least-frequently-used entry when the cache holds
// maxSize or more. Ties go to the first entry in enumeration order.
func (c *Cache) evictIfFull(ctx context.Context) error {
	n, err := c.index.Count(ctx)
	if err != nil {
		return fmt.Errorf("count entries: %w", err)
	}
	if n < c.maxSize {
		return nil
	}

	entries, err := c.index.Get(ctx, nil)
	if err != nil {
		return fmt.Errorf("list entries: %w", err)
	}
	victim := leastUsed(entries)
	if victim == "" {
		return nil
	}
	if err := c.index.Delete(ctx, victim); err != nil {
		return fmt.Errorf("evict %s: %w", victim, err)
	}
	c.evictions.Add(1)
	c.logger.Debug("evicted cache entry", zap.String("id", victim), zap.Int("entries", n))
	return nil
}

func leastUsed(entries []vectorstore.Record) string {
	var victim string
	var lowest int64
	for i, e := range entries {
		count := e.Metadata.Int(metaAccessCount)
		if i == 0 || count < lowest {
			victim, lowest = e.ID, count
		}
	}
	return victim
}

// Clear drops every entry.
func (c *Cache) Clear(ctx context.Context) error {
	c.putMu.Lock()
	defer c.putMu.Unlock()

	entries, err := c.index.Get(ctx, nil)
	if err != nil {
		return fmt.Errorf("list entries: %w", err)
	}
	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e.ID
	}
	if err := c.index.Delete(ctx, ids...); err != nil {
		return fmt.Errorf("clear cache: %w", err)
	}
	c.logger.Info("cache cleared", zap.Int("entries", len(ids)))
	return nil
}

// Stats reports counters since start plus the live entry count.
func (c *Cache) Stats(ctx context.Context) (Stats, error) {
	n, err := c.index.Count(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("count entries: %w", err)
	}
	return Stats{
		Entries:   n,
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Puts:      c.puts.Load(),
		Evictions: c.evictions.Load(),
	}, nil
}

// embed collapses concurrent embeddings of the same text into one call. The
// shared call is detached from the first caller's cancellation so the other
// waiters are not failed by it; the embedder's own timeout still applies.
func (c *Cache) embed(ctx context.Context, text string) ([]float32, error) {
	shared := context.WithoutCancel(ctx)
	v, err, _ := c.embeds.Do(text, func() (any, error) {
		return embedding.EmbedOne(shared, c.embedder, text)
	})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	return v.([]float32), nil
}
