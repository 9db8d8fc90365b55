package rag

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nidhogg/jarvis/internal/classifier"
	"github.com/nidhogg/jarvis/internal/vectorstore"
	"go.uber.org/zap"
)

// hashEmbedder maps text to a deterministic 3-d vector.
type hashEmbedder struct{ err error }

func (h hashEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	if h.err != nil {
		return nil, h.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t)), float32(strings.Count(t, "o")) + 1, 1}
	}
	return out, nil
}

func (hashEmbedder) Dimension() int { return 3 }

func seed(t *testing.T, idx vectorstore.Index) {
	t.Helper()
	in := NewIngester(idx, hashEmbedder{}, classifier.DefaultRegistry(), 2, zap.NewNop())
	_, err := in.Ingest(context.Background(), []Chunk{
		{Category: "skills", Text: "Writes Go and Python."},
		{Category: "contact", Text: "Reachable by email."},
		{Category: "education", Text: "MSc in Computer Science."},
		{Category: "skills", Text: "Builds RAG pipelines."},
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
}

func TestRetrieve_FiltersByCategory(t *testing.T) {
	idx := vectorstore.NewMemory()
	seed(t, idx)
	r := NewRetriever(idx, hashEmbedder{}, zap.NewNop())

	docs := r.Retrieve(context.Background(), "what can he code", []classifier.Category{classifier.Skills})
	if len(docs) != 2 {
		t.Fatalf("got %d docs, want 2: %v", len(docs), docs)
	}
	for _, d := range docs {
		if d != "Writes Go and Python." && d != "Builds RAG pipelines." {
			t.Errorf("unexpected doc %q", d)
		}
	}

	docs = r.Retrieve(context.Background(), "q", []classifier.Category{classifier.Contact, classifier.Education})
	if len(docs) != 2 {
		t.Errorf("got %d docs for two categories, want 2", len(docs))
	}
}

func TestRetrieve_EmptyIsNotAnError(t *testing.T) {
	idx := vectorstore.NewMemory()
	seed(t, idx)
	r := NewRetriever(idx, hashEmbedder{}, zap.NewNop())

	if docs := r.Retrieve(context.Background(), "q", []classifier.Category{classifier.Calendar}); len(docs) != 0 {
		t.Errorf("got %v, want none", docs)
	}
	if docs := r.Retrieve(context.Background(), "q", nil); docs != nil {
		t.Errorf("got %v, want nil for no categories", docs)
	}
}

func TestSearch_RanksBySimilarity(t *testing.T) {
	idx := vectorstore.NewMemory()
	seed(t, idx)
	r := NewRetriever(idx, hashEmbedder{}, zap.NewNop())

	hits, err := r.Search(context.Background(), "Reachable by email.", 2)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("got %d hits, want 2", len(hits))
	}
	if hits[0].Category != "contact" || hits[0].Score < 0.999 {
		t.Errorf("got top hit %+v, want the identical contact chunk", hits[0])
	}
}

func TestIngest_RejectsUnknownCategory(t *testing.T) {
	idx := vectorstore.NewMemory()
	in := NewIngester(idx, hashEmbedder{}, classifier.DefaultRegistry(), 0, zap.NewNop())

	_, err := in.Ingest(context.Background(), []Chunk{
		{Category: "skills", Text: "ok"},
		{Category: "hobbies", Text: "chess"},
	})
	if err == nil {
		t.Fatal("expected error for unknown category")
	}
	if n, _ := idx.Count(context.Background()); n != 0 {
		t.Errorf("got %d chunks stored, want 0 after validation failure", n)
	}
}

func TestIngest_Idempotent(t *testing.T) {
	idx := vectorstore.NewMemory()
	seed(t, idx)
	seed(t, idx)
	if n, _ := idx.Count(context.Background()); n != 4 {
		t.Errorf("got %d chunks after re-ingest, want 4", n)
	}
	recs, _ := idx.Get(context.Background(), nil)
	if recs[0].Metadata.String("category") == "" || recs[0].Metadata.String("indexed_at") == "" {
		t.Errorf("missing metadata: %v", recs[0].Metadata)
	}
}

func TestIngest_EmbedFailure(t *testing.T) {
	in := NewIngester(vectorstore.NewMemory(), hashEmbedder{err: errors.New("down")}, classifier.DefaultRegistry(), 1, zap.NewNop())
	if _, err := in.Ingest(context.Background(), []Chunk{{Category: "skills", Text: "x"}}); err == nil {
		t.Fatal("expected embed error")
	}
}

func TestWatch_ReingestsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "knowledge.json")
	os.WriteFile(path, []byte(`[]`), 0o644)

	idx := vectorstore.NewMemory()
	in := NewIngester(idx, hashEmbedder{}, classifier.DefaultRegistry(), 1, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := in.Watch(ctx, path); err != nil {
		t.Fatalf("watch: %v", err)
	}

	os.WriteFile(path, []byte(`[{"category":"skills","text":"Knows Go."}]`), 0o644)

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if n, _ := idx.Count(ctx); n == 1 {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatal("knowledge file change was not ingested")
}

func TestIngestFile_ReplacesEditedFact(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "knowledge.json")
	idx := vectorstore.NewMemory()
	in := NewIngester(idx, hashEmbedder{}, classifier.DefaultRegistry(), 1, zap.NewNop())
	r := NewRetriever(idx, hashEmbedder{}, zap.NewNop())

	os.WriteFile(path, []byte(`[{"category":"contact","text":"Email: old@example.com"},{"category":"skills","text":"Knows Go."}]`), 0o644)
	if _, err := in.IngestFile(ctx, path); err != nil {
		t.Fatalf("first ingest: %v", err)
	}
	os.WriteFile(path, []byte(`[{"category":"contact","text":"Email: new@example.com"}]`), 0o644)
	if _, err := in.IngestFile(ctx, path); err != nil {
		t.Fatalf("second ingest: %v", err)
	}

	docs := r.Retrieve(ctx, "email", []classifier.Category{classifier.Contact})
	if len(docs) != 1 || docs[0] != "Email: new@example.com" {
		t.Fatalf("got %v, want only the new email", docs)
	}
	if n, _ := idx.Count(ctx); n != 1 {
		t.Errorf("got %d chunks, want 1", n)
	}
}

func TestIngestFile_FailedIngestKeepsExisting(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "knowledge.json")
	idx := vectorstore.NewMemory()
	seed(t, idx)

	os.WriteFile(path, []byte(`[{"category":"astrology","text":"Is a Leo."}]`), 0o644)
	in := NewIngester(idx, hashEmbedder{}, classifier.DefaultRegistry(), 1, zap.NewNop())
	if _, err := in.IngestFile(ctx, path); err == nil {
		t.Fatal("expected an unknown-category error")
	}
	if n, _ := idx.Count(ctx); n != 4 {
		t.Errorf("got %d chunks, want the 4 seeded ones", n)
	}
}

func TestWatch_DropsEditedFact(t *testing.T) {
	path := filepath.Join(t.TempDir(), "knowledge.json")
	os.WriteFile(path, []byte(`[{"category":"contact","text":"Email: old@example.com"}]`), 0o644)

	idx := vectorstore.NewMemory()
	in := NewIngester(idx, hashEmbedder{}, classifier.DefaultRegistry(), 1, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if _, err := in.IngestFile(ctx, path); err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if err := in.Watch(ctx, path); err != nil {
		t.Fatalf("watch: %v", err)
	}

	os.WriteFile(path, []byte(`[{"category":"contact","text":"Email: new@example.com"}]`), 0o644)

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		recs, _ := idx.Get(ctx, nil)
		if len(recs) == 1 && recs[0].Document == "Email: new@example.com" {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatal("edited fact was not replaced")
}
