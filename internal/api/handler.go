package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/nidhogg/jarvis/internal/cache"
	"github.com/nidhogg/jarvis/internal/rag"
	"github.com/nidhogg/jarvis/internal/response"
	"go.uber.org/zap"
)

// Answerer runs the full pipeline for one query.
type Answerer interface {
	Answer(ctx context.Context, sessionID, query string) response.Answer
}

// CacheAdmin exposes cache statistics and invalidation.
type CacheAdmin interface {
	Stats(ctx context.Context) (cache.Stats, error)
	Clear(ctx context.Context) error
}

// Searcher runs an unfiltered similarity search over the knowledge base.
type Searcher interface {
	Search(ctx context.Context, query string, k int) ([]rag.Hit, error)
}

// Probe reports whether a dependency is reachable.
type Probe func(ctx context.Context) error

// Options configure the handler. Answerer is required.
type Options struct {
	Answerer       Answerer
	Cache          CacheAdmin
	Knowledge      Searcher
	TopK           int
	Probes         map[string]Probe
	AllowedOrigins []string
	// RequestTimeout bounds each request. Zero disables the bound.
	RequestTimeout time.Duration
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	answerer  Answerer
	cache     CacheAdmin
	knowledge Searcher
	topK      int
	probes    map[string]Probe
	origins   []string
	timeout   time.Duration
	logger    *zap.Logger
}

// NewHandler creates a new API handler.
func NewHandler(opts Options, logger *zap.Logger) *Handler {
	if opts.TopK <= 0 {
		opts.TopK = 10
	}
	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return &Handler{
		answerer:  opts.Answerer,
		cache:     opts.Cache,
		knowledge: opts.Knowledge,
		topK:      opts.TopK,
		probes:    opts.Probes,
		origins:   origins,
		timeout:   opts.RequestTimeout,
		logger:    logger,
	}
}

// Router builds the chi router with all routes.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if h.timeout > 0 {
		r.Use(middleware.Timeout(h.timeout))
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   h.origins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Get("/", h.root)
	r.Get("/health", h.healthCheck)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.healthCheck)
		r.Post("/chat", h.chat)

		r.Get("/cache/stats", h.cacheStats)
		r.Delete("/cache", h.clearCache)

		r.Get("/knowledge/search", h.searchKnowledge)
	})

	return r
}

func (h *Handler) root(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "Jarvis is online."})
}

func (h *Handler) healthCheck(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string, len(h.probes))
	status, code := "ok", http.StatusOK
	for name, probe := range h.probes {
		if err := probe(r.Context()); err != nil {
			h.logger.Warn("health probe failed", zap.String("dependency", name), zap.Error(err))
			checks[name] = err.Error()
			status, code = "degraded", http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}
	writeJSON(w, code, map[string]interface{}{"status": status, "checks": checks})
}

type chatRequest struct {
	SessionID string `json:"session_id"`
	Query     string `json:"query"`
}

type chatResponse struct {
	Answer    string   `json:"answer"`
	SessionID string   `json:"session_id"`
	Followups []string `json:"followups"`
}

// maxChatBody caps the /api/chat request body.
const maxChatBody = 64 << 10

func (h *Handler) chat(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxChatBody)
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		status := http.StatusBadRequest
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		writeJSON(w, status, map[string]string{"error": err.Error()})
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "query is required"})
		return
	}
	if req.SessionID == "" {
		req.SessionID = uuid.NewString()
	}

	ans := h.answerer.Answer(r.Context(), req.SessionID, req.Query)
	followups := ans.FollowupQuestions
	if followups == nil {
		followups = []string{}
	}
	writeJSON(w, http.StatusOK, chatResponse{
		Answer:    ans.MarkdownText,
		SessionID: req.SessionID,
		Followups: followups,
	})
}

func (h *Handler) cacheStats(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "cache not initialized"})
		return
	}
	stats, err := h.cache.Stats(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *Handler) clearCache(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "cache not initialized"})
		return
	}
	if err := h.cache.Clear(r.Context()); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) searchKnowledge(w http.ResponseWriter, r *http.Request) {
	if h.knowledge == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "knowledge base not initialized"})
		return
	}
	q := r.URL.Query().Get("q")
	if strings.TrimSpace(q) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "q is required"})
		return
	}
	k := h.topK
	if s := r.URL.Query().Get("k"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "k must be a positive integer"})
			return
		}
		k = n
	}
	hits, err := h.knowledge.Search(r.Context(), q, k)
	if err != nil {
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
		return
	}
	if hits == nil {
		hits = []rag.Hit{}
	}
	writeJSON(w, http.StatusOK, hits)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
