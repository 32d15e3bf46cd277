package embedding

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/projectsamarth/samarth/internal/llm"
)

// Embedder maps texts to fixed-length vectors. The same model must be used
// for documents and queries.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedSingle(ctx context.Context, text string) ([]float32, error)
	Model() string
}

type Service struct {
	gateway   llm.Gateway
	provider  string
	model     string
	batchSize int
	timeout   time.Duration
}

type Options struct {
	Provider  string
	Model     string
	BatchSize int
	// Timeout bounds one batch call end to end, including the gateway's
	// retries and backoff. Zero means no limit beyond the caller's context.
	Timeout time.Duration
}

func NewService(gw llm.Gateway, opts Options) *Service {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 64
	}
	return &Service{
		gateway:   gw,
		provider:  opts.Provider,
		model:     opts.Model,
		batchSize: opts.BatchSize,
		timeout:   opts.Timeout,
	}
}

func (s *Service) Model() string { return s.model }

func (s *Service) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	all := make([][]float32, 0, len(texts))
	for i := 0; i < len(texts); i += s.batchSize {
		end := min(i+s.batchSize, len(texts))

		vecs, err := s.embedBatch(ctx, texts[i:end])
		if err != nil {
			return nil, fmt.Errorf("embed batch %d: %w", i/s.batchSize, err)
		}
		all = append(all, vecs...)
	}
	return all, nil
}

func (s *Service) embedBatch(ctx context.Context, batch []string) ([][]float32, error) {
	callCtx := ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	resp, err := s.gateway.Embed(callCtx, llm.EmbeddingRequest{
		Provider: s.provider,
		Model:    s.model,
		Input:    batch,
	})
	if err != nil {
		if ctx.Err() == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("embedding took longer than %s: %w", s.timeout, llm.ErrTimeout)
		}
		return nil, err
	}
	if len(resp.Embeddings) != len(batch) {
		return nil, fmt.Errorf("got %d vectors for %d texts", len(resp.Embeddings), len(batch))
	}
	for i, v := range resp.Embeddings {
		if len(v) == 0 {
			return nil, fmt.Errorf("empty vector for text %d", i)
		}
	}
	return resp.Embeddings, nil
}

func (s *Service) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	embeddings, err := s.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return embeddings[0], nil
}
