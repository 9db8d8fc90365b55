package provider

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Provider is one answer-generation backend.
type Provider interface {
	ID() string
	Name() string
	Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error)
}

// ChatRequest represents a request to an LLM provider. An empty Model means
// the provider's configured model.
type ChatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

// Message represents a chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatResponse represents a response from an LLM provider.
type ChatResponse struct {
	ID           string `json:"id"`
	Model        string `json:"model"`
	Content      string `json:"content"`
	FinishReason string `json:"finish_reason"`
	Usage        Usage  `json:"usage"`
}

// Usage tracks token consumption.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ProviderConfig holds configuration for a provider instance.
type ProviderConfig struct {
	ID       string            `json:"id"`
	Type     string            `json:"type"`
	Name     string            `json:"name"`
	Endpoint string            `json:"endpoint"`
	APIKey   string            `json:"api_key"`
	Models   []string          `json:"models,omitempty"`
	Extra    map[string]string `json:"extra,omitempty"`
	Timeout  time.Duration     `json:"timeout,omitempty"`
}

// model returns the first configured model, used when a request names none.
func (c ProviderConfig) model() string {
	if len(c.Models) > 0 {
		return c.Models[0]
	}
	return ""
}

// OpenAI-compatible hosted services and their default endpoints.
var compatibleEndpoints = map[string]string{
	"openai":     "https://api.openai.com/v1",
	"mistral":    "https://api.mistral.ai/v1",
	"groq":       "https://api.groq.com/openai/v1",
	"openrouter": "https://openrouter.ai/api/v1",
}

// New builds a provider for cfg.Type.
func New(ctx context.Context, cfg ProviderConfig, logger *zap.Logger) (Provider, error) {
	if cfg.ID == "" {
		cfg.ID = cfg.Type
	}
	if cfg.Name == "" {
		cfg.Name = cfg.ID
	}
	if endpoint, ok := compatibleEndpoints[cfg.Type]; ok {
		if cfg.Endpoint == "" {
			cfg.Endpoint = endpoint
		}
		return NewOpenAIProvider(cfg, logger), nil
	}
	switch cfg.Type {
	case "anthropic":
		return NewAnthropicProvider(cfg, logger), nil
	case "gemini":
		return NewGeminiProvider(ctx, cfg, logger)
	default:
		return nil, fmt.Errorf("unknown provider type %q", cfg.Type)
	}
}
