package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/projectsamarth/samarth/internal/config"
)

type gateway struct {
	providers        map[string]Provider
	defaultProvider  string
	defaultModel     string
	fallbackProvider string
	maxRetries       int
	timeout          time.Duration
	backoff          func(attempt int) time.Duration
}

// NewGateway registers every provider that has credentials configured.
func NewGateway(cfg config.LLMConfig) Gateway {
	g := newGateway(cfg)

	if cfg.OpenAIKey != "" {
		g.providers["openai"] = NewOpenAIProvider(cfg.OpenAIKey)
	}
	if cfg.GeminiKey != "" {
		g.providers["gemini"] = NewOpenAICompatibleProvider("gemini", cfg.GeminiKey, cfg.GeminiBaseURL)
	}
	if cfg.AnthropicKey != "" {
		g.providers["anthropic"] = NewAnthropicProvider(cfg.AnthropicKey)
	}
	if cfg.OllamaURL != "" {
		g.providers["ollama"] = NewOllamaProvider(cfg.OllamaURL)
	}

	return g
}

func newGateway(cfg config.LLMConfig) *gateway {
	return &gateway{
		providers:        make(map[string]Provider),
		defaultProvider:  cfg.DefaultProvider,
		defaultModel:     cfg.DefaultModel,
		fallbackProvider: cfg.FallbackProvider,
		maxRetries:       cfg.MaxRetries,
		timeout:          cfg.Timeout,
		backoff:          Backoff,
	}
}

// Backoff is the wait before retry attempt n (n >= 1).
func Backoff(attempt int) time.Duration {
	return time.Duration(attempt*attempt) * 500 * time.Millisecond
}

// CallBudget is the longest a single Chat call can take under cfg: every
// attempt timing out plus the backoff between them, for the primary and,
// when set, the fallback provider. Zero means unbounded.
func CallBudget(cfg config.LLMConfig) time.Duration {
	if cfg.Timeout <= 0 {
		return 0
	}
	retries := max(cfg.MaxRetries, 0)
	budget := time.Duration(retries+1) * cfg.Timeout
	for attempt := 1; attempt <= retries; attempt++ {
		budget += Backoff(attempt)
	}
	if cfg.FallbackProvider != "" && cfg.FallbackProvider != cfg.DefaultProvider {
		budget *= 2
	}
	return budget
}

func (g *gateway) Provider(name string) (Provider, error) {
	p, ok := g.providers[name]
	if !ok {
		return nil, fmt.Errorf("provider %q not configured", name)
	}
	return p, nil
}

func (g *gateway) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	providerName := req.Provider
	if providerName == "" {
		providerName = g.defaultProvider
	}
	if req.Model == "" && providerName == g.defaultProvider {
		req.Model = g.defaultModel
	}

	resp, err := g.chatWithRetry(ctx, providerName, req)
	if err != nil && g.fallbackProvider != "" && g.fallbackProvider != providerName && ctx.Err() == nil {
		slog.Warn("primary provider failed, trying fallback",
			"primary", providerName,
			"fallback", g.fallbackProvider,
			"error", err,
		)
		// The requested model belongs to the primary provider.
		req.Model = ""
		return g.chatWithRetry(ctx, g.fallbackProvider, req)
	}
	return resp, err
}

func (g *gateway) chatWithRetry(ctx context.Context, providerName string, req ChatRequest) (*ChatResponse, error) {
	p, err := g.Provider(providerName)
	if err != nil {
		return nil, err
	}

	var resp *ChatResponse
	err = g.retry(ctx, providerName, func(ctx context.Context) error {
		var err error
		resp, err = p.ChatCompletion(ctx, req)
		return err
	})
	return resp, err
}

// ChatStream is not retried. The whole stream, not just its first byte,
// must finish within the gateway timeout; a stream cut off by it ends with
// an ErrTimeout chunk.
func (g *gateway) ChatStream(ctx context.Context, req ChatRequest) (<-chan StreamChunk, error) {
	providerName := req.Provider
	if providerName == "" {
		providerName = g.defaultProvider
	}
	if req.Model == "" && providerName == g.defaultProvider {
		req.Model = g.defaultModel
	}

	p, err := g.Provider(providerName)
	if err != nil {
		return nil, err
	}
	if g.timeout <= 0 {
		return p.ChatCompletionStream(ctx, req)
	}

	streamCtx, cancel := context.WithTimeout(ctx, g.timeout)
	in, err := p.ChatCompletionStream(streamCtx, req)
	if err != nil {
		cancel()
		if ctx.Err() == nil && errors.Is(streamCtx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%s stream after %s: %w", providerName, g.timeout, ErrTimeout)
		}
		return nil, err
	}

	out := make(chan StreamChunk, cap(in))
	go func() {
		defer close(out)
		defer cancel()

		for chunk := range in {
			timedOut := ctx.Err() == nil && errors.Is(streamCtx.Err(), context.DeadlineExceeded)
			if timedOut && (chunk.Error != nil || !chunk.Done) {
				out <- StreamChunk{Done: true, Error: fmt.Errorf("%s stream after %s: %w", providerName, g.timeout, ErrTimeout)}
				go drain(in)
				return
			}
			out <- chunk
			if chunk.Done || chunk.Error != nil {
				go drain(in)
				return
			}
		}
		if ctx.Err() == nil && errors.Is(streamCtx.Err(), context.DeadlineExceeded) {
			out <- StreamChunk{Done: true, Error: fmt.Errorf("%s stream after %s: %w", providerName, g.timeout, ErrTimeout)}
		}
	}()
	return out, nil
}

// drain lets a provider goroutine finish sending after the reader left.
func drain(ch <-chan StreamChunk) {
	for range ch {
	}
}

func (g *gateway) Embed(ctx context.Context, req EmbeddingRequest) (*EmbeddingResponse, error) {
	providerName := req.Provider
	if providerName == "" {
		providerName = g.defaultProvider
	}

	p, err := g.Provider(providerName)
	if err != nil {
		return nil, err
	}

	var resp *EmbeddingResponse
	err = g.retry(ctx, providerName, func(ctx context.Context) error {
		var err error
		resp, err = p.GenerateEmbedding(ctx, req)
		return err
	})
	return resp, err
}

// retry runs call up to maxRetries+1 times. Each attempt gets its own
// timeout; only transient failures are retried.
func (g *gateway) retry(ctx context.Context, providerName string, call func(context.Context) error) error {
	var lastErr error
	for attempt := 0; attempt <= g.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(g.backoff(attempt)):
			}
			slog.Debug("retrying model call", "provider", providerName, "attempt", attempt, "error", lastErr)
		}

		err := g.attempt(ctx, providerName, call)
		if err == nil {
			return nil
		}
		lastErr = err

		if ctx.Err() != nil || !IsTransient(err) {
			return err
		}
	}
	return fmt.Errorf("all retries exhausted for %s: %w", providerName, lastErr)
}

func (g *gateway) attempt(ctx context.Context, providerName string, call func(context.Context) error) error {
	if g.timeout <= 0 {
		return call(ctx)
	}

	attemptCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	err := call(attemptCtx)
	if err != nil && ctx.Err() == nil && errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%s after %s: %w", providerName, g.timeout, ErrTimeout)
	}
	return err
}
