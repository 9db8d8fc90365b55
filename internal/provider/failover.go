package provider

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Unavailable is returned to the user when every provider has failed.
const Unavailable = "Sorry, I am temporarily unavailable. Please try again later."

// BackendError records one provider's failed attempt.
type BackendError struct {
	Provider string
	Err      error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("provider %s: %v", e.Provider, e.Err)
}

func (e *BackendError) Unwrap() error { return e.Err }

var errEmptyContent = errors.New("empty content")

// Failover sends a conversation to an ordered list of providers and returns
// the first successful answer. Each provider gets exactly one attempt per
// call and the order never changes.
type Failover struct {
	providers   []Provider
	timeout     time.Duration
	temperature float64
	logger      *zap.Logger
}

// FailoverOptions tunes every attempt.
type FailoverOptions struct {
	// Timeout bounds a single provider attempt. Zero means no extra bound.
	Timeout     time.Duration
	Temperature float64
}

// NewFailover creates a failover chain in the given order.
func NewFailover(providers []Provider, opts FailoverOptions, logger *zap.Logger) *Failover {
	for i, p := range providers {
		logger.Info("registered provider", zap.Int("position", i), zap.String("id", p.ID()), zap.String("name", p.Name()))
	}
	return &Failover{
		providers:   providers,
		timeout:     opts.Timeout,
		temperature: opts.Temperature,
		logger:      logger,
	}
}

// Generate returns the first provider's answer that succeeds, or
// Unavailable once all have failed. Failures are logged, never returned.
func (f *Failover) Generate(ctx context.Context, messages []Message) string {
	req := &ChatRequest{Messages: messages, Temperature: f.temperature}
	for _, p := range f.providers {
		content, err := f.attempt(ctx, p, req)
		if err == nil {
			f.logger.Debug("provider answered", zap.String("provider", p.ID()))
			return content
		}
		f.logger.Warn("provider failed, trying next", zap.String("provider", p.ID()), zap.Error(err))
		if ctx.Err() != nil {
			break
		}
	}
	f.logger.Error("all providers failed", zap.Int("providers", len(f.providers)))
	return Unavailable
}

func (f *Failover) attempt(ctx context.Context, p Provider, req *ChatRequest) (string, error) {
	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}
	resp, err := p.Chat(ctx, req)
	if err != nil {
		return "", &BackendError{Provider: p.ID(), Err: err}
	}
	if resp == nil || resp.Content == "" {
		return "", &BackendError{Provider: p.ID(), Err: errEmptyContent}
	}
	return resp.Content, nil
}

// ProviderIDs lists the chain in order.
func (f *Failover) ProviderIDs() []string {
	ids := make([]string, len(f.providers))
	for i, p := range f.providers {
		ids[i] = p.ID()
	}
	return ids
}
