package orchestrator

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/nidhogg/jarvis/internal/classifier"
	"github.com/nidhogg/jarvis/internal/history"
	"github.com/nidhogg/jarvis/internal/provider"
	"github.com/nidhogg/jarvis/internal/response"
	"go.uber.org/zap"
)

type fakeCache struct {
	entries map[string]string
	puts    []string
}

func newFakeCache() *fakeCache { return &fakeCache{entries: map[string]string{}} }

func (c *fakeCache) Get(_ context.Context, q string) (string, bool) {
	a, ok := c.entries[q]
	return a, ok
}

func (c *fakeCache) Put(_ context.Context, q, a string) {
	c.puts = append(c.puts, q)
	c.entries[q] = a
}

type fakeClassifier struct {
	cats  []classifier.Category
	err   error
	calls int
}

func (f *fakeClassifier) Classify(context.Context, string) ([]classifier.Category, error) {
	f.calls++
	return f.cats, f.err
}

type fakeRetriever struct {
	docs []string
	got  []classifier.Category
}

func (f *fakeRetriever) Retrieve(_ context.Context, _ string, cats []classifier.Category) []string {
	f.got = cats
	return f.docs
}

type fakeGenerator struct {
	out   string
	calls int
	last  []provider.Message
}

func (f *fakeGenerator) Generate(_ context.Context, msgs []provider.Message) string {
	f.calls++
	f.last = msgs
	return f.out
}

const goodJSON = `{"markdown_text":"He writes **Go**.","followup_questions":["What projects use Go?"],"response_quality":"good"}`
const badJSON = `{"markdown_text":"I could not find that.","followup_questions":[],"response_quality":"bad"}`

type fixture struct {
	cache *fakeCache
	cls   *fakeClassifier
	ret   *fakeRetriever
	gen   *fakeGenerator
	hist  *history.Memory
	orch  *Orchestrator
}

func newFixture(genOut string) *fixture {
	f := &fixture{
		cache: newFakeCache(),
		cls:   &fakeClassifier{cats: []classifier.Category{classifier.Skills}},
		ret:   &fakeRetriever{docs: []string{"Knows Go.", "Knows Python."}},
		gen:   &fakeGenerator{out: genOut},
		hist:  history.NewMemory(),
	}
	f.orch = New(Deps{
		Cache:      f.cache,
		Classifier: f.cls,
		Retriever:  f.ret,
		Generator:  f.gen,
		History:    f.hist,
	}, Config{HistoryLength: 2, Owner: "Ada"}, zap.NewNop())
	return f
}

func TestAnswer_GoodAnswerIsCached(t *testing.T) {
	f := newFixture(goodJSON)
	ans := f.orch.Answer(context.Background(), "s1", "what languages?")

	if ans.Quality != response.Good {
		t.Fatalf("quality: got %q, want good", ans.Quality)
	}
	if ans.MarkdownText != "He writes **Go**." {
		t.Fatalf("text: got %q", ans.MarkdownText)
	}
	if len(f.cache.puts) != 1 || f.cache.puts[0] != "what languages?" {
		t.Fatalf("puts: got %v", f.cache.puts)
	}
	if f.cache.entries["what languages?"] != goodJSON {
		t.Fatalf("cache must store the raw generation")
	}
}

func TestAnswer_BadAnswerIsNotCached(t *testing.T) {
	for name, out := range map[string]string{
		"bad quality": badJSON,
		"unparseable": "plain prose",
		"unavailable": provider.Unavailable,
	} {
		t.Run(name, func(t *testing.T) {
			f := newFixture(out)
			ans := f.orch.Answer(context.Background(), "s1", "q")
			if ans.Quality != response.Bad {
				t.Fatalf("quality: got %q, want bad", ans.Quality)
			}
			if len(f.cache.puts) != 0 {
				t.Fatalf("puts: got %v, want none", f.cache.puts)
			}
		})
	}
}

func TestAnswer_CacheHitSkipsPipeline(t *testing.T) {
	f := newFixture(goodJSON)
	f.cache.entries["hello"] = goodJSON

	ans := f.orch.Answer(context.Background(), "s1", "hello")
	if ans.Quality != response.Good {
		t.Fatalf("quality: got %q", ans.Quality)
	}
	if f.gen.calls != 0 || f.cls.calls != 0 {
		t.Fatalf("pipeline ran on hit: gen=%d cls=%d", f.gen.calls, f.cls.calls)
	}
	if len(f.cache.puts) != 0 {
		t.Fatalf("hit must not re-admit")
	}
	msgs, _ := f.hist.Load(context.Background(), "s1", 0)
	if len(msgs) != 2 || msgs[0].Content != "hello" || msgs[0].Role != provider.RoleUser {
		t.Fatalf("history: got %+v", msgs)
	}
}

func TestAnswer_ClassifierFailureFallsBackToNoContext(t *testing.T) {
	f := newFixture(badJSON)
	f.cls.err = errors.New("embedder down")

	f.orch.Answer(context.Background(), "s1", "who?")

	if f.gen.calls != 1 {
		t.Fatalf("generator calls: got %d, want 1", f.gen.calls)
	}
	if len(f.ret.got) != 0 {
		t.Fatalf("retrieval categories: got %v, want none", f.ret.got)
	}
}

func TestAnswer_EmptyContextPlaceholder(t *testing.T) {
	f := newFixture(badJSON)
	f.ret.docs = nil

	f.orch.Answer(context.Background(), "s1", "who?")

	prompt := f.gen.last[len(f.gen.last)-1].Content
	if !strings.Contains(prompt, NoContext) {
		t.Fatalf("prompt lacks placeholder:\n%s", prompt)
	}
}

func TestAnswer_PromptShape(t *testing.T) {
	f := newFixture(goodJSON)
	ctx := context.Background()
	_ = f.hist.Append(ctx, "s1", provider.RoleUser, "earlier question")
	_ = f.hist.Append(ctx, "s1", provider.RoleAssistant, "earlier answer")
	_ = f.hist.Append(ctx, "s1", provider.RoleUser, "another")

	f.orch.Answer(ctx, "s1", "what languages?")

	msgs := f.gen.last
	if msgs[0].Role != provider.RoleSystem || msgs[0].Content != SystemPrompt {
		t.Fatalf("first message: got %+v", msgs[0])
	}
	// history length 2 keeps the two most recent prior turns
	if len(msgs) != 4 {
		t.Fatalf("messages: got %d, want 4", len(msgs))
	}
	if msgs[1].Content != "earlier answer" || msgs[2].Content != "another" {
		t.Fatalf("history: got %+v", msgs[1:3])
	}
	last := msgs[3].Content
	for _, want := range []string{"Knows Go.\nKnows Python.", "what languages?", "Ada"} {
		if !strings.Contains(last, want) {
			t.Fatalf("prompt missing %q", want)
		}
	}
	if strings.Contains(last, "calendar") {
		t.Fatalf("tool categories must not be offered as follow-ups")
	}
}

func TestAnswer_RetrievalSkipsGeneral(t *testing.T) {
	f := newFixture(goodJSON)
	f.cls.cats = []classifier.Category{classifier.General}

	f.orch.Answer(context.Background(), "s1", "hi")

	if len(f.ret.got) != 0 {
		t.Fatalf("retrieval categories: got %v, want none", f.ret.got)
	}
}

func TestAnswer_AppendsAssistantReply(t *testing.T) {
	f := newFixture(goodJSON)
	ctx := context.Background()
	f.orch.Answer(ctx, "s1", "what languages?")

	msgs, _ := f.hist.Load(ctx, "s1", 0)
	if len(msgs) != 2 {
		t.Fatalf("history: got %d messages, want 2", len(msgs))
	}
	if msgs[1].Role != provider.RoleAssistant || msgs[1].Content != "He writes **Go**." {
		t.Fatalf("assistant turn: got %+v", msgs[1])
	}
}
