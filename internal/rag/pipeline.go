package rag

import (
	"context"
	"log/slog"
	"time"

	"github.com/projectsamarth/samarth/internal/index"
	"github.com/projectsamarth/samarth/internal/llm"
	"github.com/projectsamarth/samarth/internal/models"
)

// Answer is a synthesized reply plus the documents it was grounded on.
type Answer struct {
	Text    string            `json:"answer"`
	Sources []models.Document `json:"sources"`
}

// Pipeline runs retrieval then synthesis for one question.
type Pipeline struct {
	retriever *Retriever
	generator *Generator
	topK      int
}

func NewPipeline(retriever *Retriever, generator *Generator, topK int) *Pipeline {
	if topK <= 0 {
		topK = DefaultTopK
	}
	return &Pipeline{retriever: retriever, generator: generator, topK: topK}
}

func (p *Pipeline) Retrieve(ctx context.Context, question string) ([]models.Document, error) {
	return p.retriever.Retrieve(ctx, question, p.topK)
}

func (p *Pipeline) Synthesize(ctx context.Context, question string, docs []models.Document) (string, error) {
	return p.generator.Synthesize(ctx, question, docs)
}

func (p *Pipeline) Ask(ctx context.Context, question string) (*Answer, error) {
	start := time.Now()

	docs, err := p.Retrieve(ctx, question)
	if err != nil {
		return nil, err
	}

	text, err := p.Synthesize(ctx, question, docs)
	if err != nil {
		return nil, err
	}

	slog.Debug("question answered", "sources", len(docs), "latency_ms", time.Since(start).Milliseconds())
	return &Answer{Text: text, Sources: docs}, nil
}

// AskStream retrieves synchronously and streams the answer.
func (p *Pipeline) AskStream(ctx context.Context, question string) ([]models.Document, <-chan llm.StreamChunk, error) {
	docs, err := p.Retrieve(ctx, question)
	if err != nil {
		return nil, nil, err
	}
	ch, err := p.generator.SynthesizeStream(ctx, question, docs)
	if err != nil {
		return nil, nil, err
	}
	return docs, ch, nil
}

// Search exposes scored retrieval without synthesis. k <= 0 uses the
// pipeline's configured depth.
func (p *Pipeline) Search(ctx context.Context, query string, k int) ([]index.Hit, error) {
	if k <= 0 {
		k = p.topK
	}
	return p.retriever.RetrieveScored(ctx, query, k)
}
