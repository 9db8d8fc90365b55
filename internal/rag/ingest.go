package rag

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nidhogg/jarvis/internal/classifier"
	"github.com/nidhogg/jarvis/internal/embedding"
	"github.com/nidhogg/jarvis/internal/vectorstore"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// chunkNamespace seeds deterministic chunk ids, so re-ingesting the same
// text overwrites instead of duplicating.
var chunkNamespace = uuid.MustParse("6f1c3a52-9d0e-4b7a-8e21-3c5d7f90ab14")

// Chunk is one unit of knowledge as it appears in the knowledge file.
type Chunk struct {
	Category string `json:"category"`
	Text     string `json:"text"`
}

// ID returns the stable id for the chunk.
func (c Chunk) ID() string {
	return uuid.NewSHA1(chunkNamespace, []byte(c.Category+"\x00"+c.Text)).String()
}

// Ingester embeds chunks and writes them to the knowledge collection.
type Ingester struct {
	index       vectorstore.Index
	embedder    embedding.Provider
	registry    *classifier.Registry
	concurrency int
	logger      *zap.Logger
}

// NewIngester creates an ingester. concurrency bounds parallel embedding calls.
func NewIngester(index vectorstore.Index, embedder embedding.Provider, registry *classifier.Registry, concurrency int, logger *zap.Logger) *Ingester {
	if concurrency <= 0 {
		concurrency = 4
	}
	return &Ingester{
		index:       index,
		embedder:    embedder,
		registry:    registry,
		concurrency: concurrency,
		logger:      logger,
	}
}

// LoadChunks reads a JSON array of chunks from path.
func LoadChunks(path string) ([]Chunk, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read knowledge %s: %w", path, err)
	}
	var chunks []Chunk
	if err := json.Unmarshal(data, &chunks); err != nil {
		return nil, fmt.Errorf("parse knowledge %s: %w", path, err)
	}
	return chunks, nil
}

// IngestFile makes the collection mirror the file at path: its chunks are
// stored, then chunks no longer in the file are deleted. Nothing is deleted
// if storing fails.
func (in *Ingester) IngestFile(ctx context.Context, path string) (int, error) {
	chunks, err := LoadChunks(path)
	if err != nil {
		return 0, err
	}
	n, err := in.Ingest(ctx, chunks)
	if err != nil {
		return 0, err
	}
	removed, err := in.prune(ctx, chunks)
	if err != nil {
		return n, fmt.Errorf("prune stale chunks: %w", err)
	}
	if removed > 0 {
		in.logger.Info("removed stale knowledge", zap.String("path", path), zap.Int("chunks", removed))
	}
	return n, nil
}

// prune deletes every stored chunk that is not in keep.
func (in *Ingester) prune(ctx context.Context, keep []Chunk) (int, error) {
	want := make(map[string]struct{}, len(keep))
	for _, c := range keep {
		want[c.ID()] = struct{}{}
	}
	recs, err := in.index.Get(ctx, nil)
	if err != nil {
		return 0, err
	}
	var stale []string
	for _, r := range recs {
		if _, ok := want[r.ID]; !ok {
			stale = append(stale, r.ID)
		}
	}
	if len(stale) == 0 {
		return 0, nil
	}
	if err := in.index.Delete(ctx, stale...); err != nil {
		return 0, err
	}
	return len(stale), nil
}

// Ingest validates every chunk first, then stores them. It returns the
// number of chunks written.
func (in *Ingester) Ingest(ctx context.Context, chunks []Chunk) (int, error) {
	for i, c := range chunks {
		if strings.TrimSpace(c.Text) == "" {
			return 0, fmt.Errorf("chunk %d: empty text", i)
		}
		if _, err := in.registry.Parse(c.Category); err != nil {
			return 0, fmt.Errorf("chunk %d: %w", i, err)
		}
	}

	indexedAt := time.Now().UTC().Format(time.RFC3339)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(in.concurrency)
	for _, c := range chunks {
		g.Go(func() error {
			vec, err := embedding.EmbedOne(gctx, in.embedder, c.Text)
			if err != nil {
				return fmt.Errorf("embed chunk %s: %w", c.ID(), err)
			}
			md := vectorstore.Metadata{metaCategory: c.Category, "indexed_at": indexedAt}
			if err := in.index.Insert(gctx, c.ID(), vec, c.Text, md); err != nil {
				return fmt.Errorf("store chunk %s: %w", c.ID(), err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}
	in.logger.Info("knowledge ingested", zap.Int("chunks", len(chunks)))
	return len(chunks), nil
}
