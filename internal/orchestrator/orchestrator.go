// Package orchestrator answers one user query end to end: semantic cache,
// classification, category-gated retrieval, generation with failover,
// parsing and cache admission.
package orchestrator

import (
	"context"
	"strings"

	"github.com/nidhogg/jarvis/internal/classifier"
	"github.com/nidhogg/jarvis/internal/history"
	"github.com/nidhogg/jarvis/internal/provider"
	"github.com/nidhogg/jarvis/internal/response"
	"go.uber.org/zap"
)

// Cache is the semantic answer cache.
type Cache interface {
	Get(ctx context.Context, query string) (string, bool)
	Put(ctx context.Context, query, answer string)
}

// Classifier maps a query to topical categories.
type Classifier interface {
	Classify(ctx context.Context, query string) ([]classifier.Category, error)
}

// Retriever returns knowledge text for categories.
type Retriever interface {
	Retrieve(ctx context.Context, query string, categories []classifier.Category) []string
}

// Generator produces raw model output and never fails.
type Generator interface {
	Generate(ctx context.Context, messages []provider.Message) string
}

// Deps are the collaborators, built once at startup.
type Deps struct {
	Cache      Cache
	Classifier Classifier
	Retriever  Retriever
	Generator  Generator
	History    history.Store
	Registry   *classifier.Registry
}

// Config tunes prompt construction.
type Config struct {
	HistoryLength int    `json:"length"`
	Owner         string `json:"owner"`
}

// Orchestrator runs the answer pipeline.
type Orchestrator struct {
	deps          Deps
	historyLength int
	owner         string
	followupCats  string
	logger        *zap.Logger
}

// New creates an orchestrator. Registry defaults to the built-in categories,
// HistoryLength to 5.
func New(deps Deps, cfg Config, logger *zap.Logger) *Orchestrator {
	if deps.Registry == nil {
		deps.Registry = classifier.DefaultRegistry()
	}
	if cfg.HistoryLength <= 0 {
		cfg.HistoryLength = 5
	}
	if cfg.Owner == "" {
		cfg.Owner = "the owner"
	}
	var cats []string
	for _, c := range deps.Registry.RetrievalCategories(deps.Registry.All()) {
		info, _ := deps.Registry.Lookup(c)
		if !info.ToolsEnabled {
			cats = append(cats, string(c))
		}
	}
	return &Orchestrator{
		deps:          deps,
		historyLength: cfg.HistoryLength,
		owner:         cfg.Owner,
		followupCats:  strings.Join(cats, ", "),
		logger:        logger,
	}
}

// Answer always returns an answer. Every failure on the way degrades the
// result instead of surfacing.
func (o *Orchestrator) Answer(ctx context.Context, sessionID, query string) response.Answer {
	log := o.logger.With(zap.String("session", sessionID))

	if cached, ok := o.deps.Cache.Get(ctx, query); ok {
		log.Info("answered from cache")
		ans := response.Parse(cached)
		o.appendHistory(ctx, sessionID, provider.RoleUser, query)
		o.appendHistory(ctx, sessionID, provider.RoleAssistant, ans.MarkdownText)
		return ans
	}

	o.appendHistory(ctx, sessionID, provider.RoleUser, query)
	prior := o.priorMessages(ctx, sessionID, query)

	cats, err := o.deps.Classifier.Classify(ctx, query)
	if err != nil {
		log.Warn("classification failed, continuing without context", zap.Error(err))
		cats = nil
	}

	docs := o.deps.Retriever.Retrieve(ctx, query, o.deps.Registry.RetrievalCategories(cats))
	grounding := strings.Join(docs, "\n")
	if grounding == "" {
		grounding = NoContext
	}

	prompt, err := renderPrompt(promptData{
		Owner:              o.owner,
		FollowupCategories: o.followupCats,
		Context:            grounding,
		Question:           query,
	})
	if err != nil {
		// The template is fixed; reaching this is a programming error.
		log.Error("prompt rendering failed", zap.Error(err))
		return response.Degraded(provider.Unavailable)
	}

	messages := make([]provider.Message, 0, len(prior)+2)
	messages = append(messages, provider.Message{Role: provider.RoleSystem, Content: SystemPrompt})
	for _, m := range prior {
		messages = append(messages, provider.Message{Role: m.Role, Content: m.Content})
	}
	messages = append(messages, provider.Message{Role: provider.RoleUser, Content: prompt})

	log.Info("generating answer", zap.Int("history", len(prior)), zap.Int("chunks", len(docs)))
	raw := o.deps.Generator.Generate(ctx, messages)
	ans := response.Parse(raw)

	if ans.Quality == response.Good {
		o.deps.Cache.Put(ctx, query, raw)
	}
	if raw != provider.Unavailable {
		o.appendHistory(ctx, sessionID, provider.RoleAssistant, ans.MarkdownText)
	}
	return ans
}

func (o *Orchestrator) appendHistory(ctx context.Context, sessionID, role, content string) {
	if err := o.deps.History.Append(ctx, sessionID, role, content); err != nil {
		o.logger.Warn("history append failed", zap.String("session", sessionID), zap.Error(err))
	}
}

// priorMessages loads recent history without the query that was just
// appended, which is sent separately inside the grounded prompt.
func (o *Orchestrator) priorMessages(ctx context.Context, sessionID, query string) []history.Message {
	msgs, err := o.deps.History.Load(ctx, sessionID, o.historyLength+1)
	if err != nil {
		o.logger.Warn("history load failed", zap.String("session", sessionID), zap.Error(err))
		return nil
	}
	if n := len(msgs); n > 0 && msgs[n-1].Role == provider.RoleUser && msgs[n-1].Content == query {
		msgs = msgs[:n-1]
	}
	if len(msgs) > o.historyLength {
		msgs = msgs[len(msgs)-o.historyLength:]
	}
	return msgs
}
