package provider

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

const defaultGeminiModel = "gemini-1.5-flash-latest"

// GeminiProvider implements the Provider interface on the Gemini API.
type GeminiProvider struct {
	config ProviderConfig
	client *genai.Client
	logger *zap.Logger
}

// NewGeminiProvider creates a Gemini client with the configured API key.
func NewGeminiProvider(ctx context.Context, cfg ProviderConfig, logger *zap.Logger) (*GeminiProvider, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &GeminiProvider{config: cfg, client: client, logger: logger}, nil
}

func (p *GeminiProvider) ID() string   { return p.config.ID }
func (p *GeminiProvider) Name() string { return p.config.Name }

// Chat replays all but the last message as chat history and sends the last
// one, which must come from the user.
func (p *GeminiProvider) Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	name := req.Model
	if name == "" {
		name = p.config.model()
	}
	if name == "" {
		name = defaultGeminiModel
	}
	model := p.client.GenerativeModel(name)
	if req.Temperature > 0 {
		model.SetTemperature(float32(req.Temperature))
	}
	if req.MaxTokens > 0 {
		model.SetMaxOutputTokens(int32(req.MaxTokens))
	}

	var system []string
	var history []*genai.Content
	for _, m := range req.Messages {
		switch m.Role {
		case RoleSystem:
			system = append(system, m.Content)
		case RoleAssistant:
			history = append(history, &genai.Content{Role: "model", Parts: []genai.Part{genai.Text(m.Content)}})
		default:
			history = append(history, &genai.Content{Role: "user", Parts: []genai.Part{genai.Text(m.Content)}})
		}
	}
	if len(history) == 0 || history[len(history)-1].Role != "user" {
		return nil, fmt.Errorf("gemini: last message must come from the user")
	}
	if len(system) > 0 {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(strings.Join(system, "\n\n"))}}
	}

	last := history[len(history)-1]
	cs := model.StartChat()
	cs.History = history[:len(history)-1]
	resp, err := cs.SendMessage(ctx, last.Parts...)
	if err != nil {
		return nil, fmt.Errorf("gemini send message: %w", err)
	}
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, fmt.Errorf("empty response from provider")
	}

	var text strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			text.WriteString(string(t))
		}
	}
	out := &ChatResponse{Model: name, Content: text.String()}
	if resp.UsageMetadata != nil {
		out.Usage = Usage{
			PromptTokens:     int(resp.UsageMetadata.PromptTokenCount),
			CompletionTokens: int(resp.UsageMetadata.CandidatesTokenCount),
			TotalTokens:      int(resp.UsageMetadata.TotalTokenCount),
		}
	}
	return out, nil
}

// Close releases the underlying client.
func (p *GeminiProvider) Close() error {
	return p.client.Close()
}
