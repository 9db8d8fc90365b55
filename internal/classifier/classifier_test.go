package classifier

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"
)

// fakeEmbedder returns fixed vectors keyed by text.
type fakeEmbedder struct {
	vectors map[string][]float32
	err     error
}

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, ok := f.vectors[t]
		if !ok {
			v = []float32{0, 0, 1}
		}
		out[i] = v
	}
	return out, nil
}

func (f *fakeEmbedder) Dimension() int { return 3 }

func newTestClassifier(t *testing.T, emb *fakeEmbedder) *Classifier {
	t.Helper()
	refs := map[Category][]float32{
		Skills:  {1, 0, 0},
		Contact: {0, 1, 0},
	}
	c, err := NewWithReferences(emb, DefaultRegistry(), refs, 0.6, zap.NewNop())
	if err != nil {
		t.Fatalf("new classifier: %v", err)
	}
	return c
}

func TestClassify_FallsBackToGeneral(t *testing.T) {
	emb := &fakeEmbedder{vectors: map[string][]float32{"what's the weather": {0, 0, 1}}}
	c := newTestClassifier(t, emb)

	got, err := c.Classify(context.Background(), "what's the weather")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 || got[0] != General {
		t.Fatalf("got %v, want [general]", got)
	}
}

func TestClassify_MultiLabel(t *testing.T) {
	// cos = 0.707 against both references.
	emb := &fakeEmbedder{vectors: map[string][]float32{"email me your go skills": {1, 1, 0}}}
	c := newTestClassifier(t, emb)

	got, err := c.Classify(context.Background(), "email me your go skills")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 || got[0] != Contact || got[1] != Skills {
		t.Fatalf("got %v, want [contact skills]", got)
	}
}

func TestClassify_ThresholdIsInclusive(t *testing.T) {
	// cos(v, skills) = 0.6 exactly.
	emb := &fakeEmbedder{vectors: map[string][]float32{"q": {0.6, 0, 0.8}}}
	c := newTestClassifier(t, emb)

	got, _ := c.Classify(context.Background(), "q")
	if len(got) != 1 || got[0] != Skills {
		t.Fatalf("got %v, want [skills]", got)
	}
}

func TestClassify_EmbedFailure(t *testing.T) {
	c := newTestClassifier(t, &fakeEmbedder{err: errors.New("model offline")})

	_, err := c.Classify(context.Background(), "anything")
	if !errors.Is(err, ErrClassify) {
		t.Fatalf("got %v, want ErrClassify", err)
	}
}

func TestNew_EmbedsDescriptions(t *testing.T) {
	reg := DefaultRegistry()
	skills, _ := reg.Lookup(Skills)
	emb := &fakeEmbedder{vectors: map[string][]float32{skills.Description: {1, 0, 0}}}

	c, err := New(context.Background(), emb, reg, 0.6, zap.NewNop())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if _, ok := c.refs[General]; ok {
		t.Error("general must not get a reference vector")
	}
	if len(c.refs) != len(reg.All())-1 {
		t.Errorf("got %d references, want %d", len(c.refs), len(reg.All())-1)
	}
}

func TestLoadReferences(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "refs.json")
	os.WriteFile(good, []byte(`{"skills":[1,0],"education":[0,1]}`), 0o644)
	bad := filepath.Join(dir, "bad.json")
	os.WriteFile(bad, []byte(`{"hobbies":[1,0]}`), 0o644)

	refs, err := LoadReferences(good, DefaultRegistry())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(refs[Education]) != 2 {
		t.Errorf("got %v, want education reference", refs)
	}
	if _, err := LoadReferences(bad, DefaultRegistry()); err == nil {
		t.Error("expected error for unknown category")
	}
}

func TestRegistry_RetrievalCategories(t *testing.T) {
	reg := DefaultRegistry()
	got := reg.RetrievalCategories([]Category{General, Skills, Calendar})
	if len(got) != 2 || got[0] != Skills || got[1] != Calendar {
		t.Errorf("got %v, want [skills calendar]", got)
	}
	cal, _ := reg.Lookup(Calendar)
	if !cal.ToolsEnabled {
		t.Error("calendar should have tools enabled")
	}
}
