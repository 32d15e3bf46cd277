package llm

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/projectsamarth/samarth/internal/config"
)

type fakeProvider struct {
	name  string
	calls atomic.Int32
	chat  func(ctx context.Context, n int32) (*ChatResponse, error)
	embed func(ctx context.Context, n int32) (*EmbeddingResponse, error)
	// stream overrides the default two-chunk stream.
	stream func(ctx context.Context) (<-chan StreamChunk, error)
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) ChatCompletion(ctx context.Context, _ ChatRequest) (*ChatResponse, error) {
	return f.chat(ctx, f.calls.Add(1))
}

func (f *fakeProvider) ChatCompletionStream(ctx context.Context, _ ChatRequest) (<-chan StreamChunk, error) {
	if f.stream != nil {
		return f.stream(ctx)
	}
	ch := make(chan StreamChunk, 2)
	ch <- StreamChunk{Content: f.name}
	ch <- StreamChunk{Done: true}
	close(ch)
	return ch, nil
}

func (f *fakeProvider) GenerateEmbedding(ctx context.Context, _ EmbeddingRequest) (*EmbeddingResponse, error) {
	return f.embed(ctx, f.calls.Add(1))
}

func testGateway(providers ...Provider) *gateway {
	g := newGateway(config.LLMConfig{
		DefaultProvider: "primary",
		DefaultModel:    "m1",
		MaxRetries:      2,
		Timeout:         50 * time.Millisecond,
	})
	g.backoff = func(int) time.Duration { return time.Millisecond }
	for _, p := range providers {
		g.providers[p.Name()] = p
	}
	return g
}

func TestGateway_ChatRetriesTransient(t *testing.T) {
	p := &fakeProvider{name: "primary", chat: func(_ context.Context, n int32) (*ChatResponse, error) {
		if n < 3 {
			return nil, &StatusError{Provider: "primary", Code: http.StatusServiceUnavailable}
		}
		return &ChatResponse{Content: "ok"}, nil
	}}
	g := testGateway(p)

	resp, err := g.Chat(context.Background(), ChatRequest{})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Content)
	assert.EqualValues(t, 3, p.calls.Load())
}

func TestGateway_ChatPermanentFailsFast(t *testing.T) {
	p := &fakeProvider{name: "primary", chat: func(_ context.Context, _ int32) (*ChatResponse, error) {
		return nil, &StatusError{Provider: "primary", Code: http.StatusUnauthorized}
	}}
	g := testGateway(p)

	_, err := g.Chat(context.Background(), ChatRequest{})
	require.Error(t, err)
	assert.False(t, IsTransient(err))
	assert.EqualValues(t, 1, p.calls.Load())
}

func TestGateway_ChatRetriesExhausted(t *testing.T) {
	p := &fakeProvider{name: "primary", chat: func(_ context.Context, _ int32) (*ChatResponse, error) {
		return nil, &StatusError{Provider: "primary", Code: http.StatusTooManyRequests}
	}}
	g := testGateway(p)

	_, err := g.Chat(context.Background(), ChatRequest{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "all retries exhausted")
	assert.EqualValues(t, 3, p.calls.Load())
}

func TestGateway_Timeout(t *testing.T) {
	p := &fakeProvider{name: "primary", chat: func(ctx context.Context, _ int32) (*ChatResponse, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	g := testGateway(p)
	g.maxRetries = 0

	_, err := g.Chat(context.Background(), ChatRequest{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.True(t, IsTransient(err))
}

func TestGateway_CallerCancelNotRetried(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := &fakeProvider{name: "primary", chat: func(ctx context.Context, _ int32) (*ChatResponse, error) {
		cancel()
		return nil, ctx.Err()
	}}
	g := testGateway(p)

	_, err := g.Chat(ctx, ChatRequest{})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, errors.Is(err, ErrTimeout))
	assert.EqualValues(t, 1, p.calls.Load())
}

func TestGateway_Fallback(t *testing.T) {
	primary := &fakeProvider{name: "primary", chat: func(_ context.Context, _ int32) (*ChatResponse, error) {
		return nil, errors.New("boom")
	}}
	backup := &fakeProvider{name: "backup", chat: func(_ context.Context, _ int32) (*ChatResponse, error) {
		return &ChatResponse{Content: "from backup"}, nil
	}}
	g := testGateway(primary, backup)
	g.fallbackProvider = "backup"

	resp, err := g.Chat(context.Background(), ChatRequest{})
	require.NoError(t, err)
	assert.Equal(t, "from backup", resp.Content)
}

func TestGateway_UnknownProvider(t *testing.T) {
	g := testGateway()
	_, err := g.Chat(context.Background(), ChatRequest{Provider: "nope"})
	assert.ErrorContains(t, err, `provider "nope" not configured`)
}

func TestGateway_EmbedRetries(t *testing.T) {
	p := &fakeProvider{name: "primary", embed: func(_ context.Context, n int32) (*EmbeddingResponse, error) {
		if n == 1 {
			return nil, ErrTimeout
		}
		return &EmbeddingResponse{Embeddings: [][]float32{{1, 0}}}, nil
	}}
	g := testGateway(p)

	resp, err := g.Embed(context.Background(), EmbeddingRequest{Input: []string{"x"}})
	require.NoError(t, err)
	assert.Len(t, resp.Embeddings, 1)
	assert.EqualValues(t, 2, p.calls.Load())
}

func TestGateway_ChatStream(t *testing.T) {
	g := testGateway(&fakeProvider{name: "primary"})

	ch, err := g.ChatStream(context.Background(), ChatRequest{})
	require.NoError(t, err)

	var got string
	for chunk := range ch {
		got += chunk.Content
	}
	assert.Equal(t, "primary", got)
}

func TestGateway_ChatStreamDeadline(t *testing.T) {
	p := &fakeProvider{name: "primary", stream: func(ctx context.Context) (<-chan StreamChunk, error) {
		ch := make(chan StreamChunk, 1)
		go func() {
			defer close(ch)
			ch <- StreamChunk{Content: "partial "}
			<-ctx.Done()
			ch <- StreamChunk{Done: true, Error: ctx.Err()}
		}()
		return ch, nil
	}}
	g := testGateway(p)

	ch, err := g.ChatStream(context.Background(), ChatRequest{})
	require.NoError(t, err)

	var (
		got     string
		lastErr error
	)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for chunk := range ch {
			got += chunk.Content
			if chunk.Error != nil {
				lastErr = chunk.Error
			}
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not end after the gateway timeout")
	}
	assert.Equal(t, "partial ", got)
	assert.ErrorIs(t, lastErr, ErrTimeout)
}

func TestCallBudget(t *testing.T) {
	cfg := config.LLMConfig{DefaultProvider: "gemini", MaxRetries: 3, Timeout: 60 * time.Second}
	// 4 attempts plus 0.5s + 2s + 4.5s of backoff.
	assert.Equal(t, 247*time.Second, CallBudget(cfg))

	cfg.FallbackProvider = "openai"
	assert.Equal(t, 494*time.Second, CallBudget(cfg))

	cfg.Timeout = 0
	assert.Zero(t, CallBudget(cfg))
}
