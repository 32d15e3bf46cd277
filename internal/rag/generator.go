package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/projectsamarth/samarth/internal/llm"
	"github.com/projectsamarth/samarth/internal/models"
	"github.com/projectsamarth/samarth/internal/prompt"
)

var answerPrompt = prompt.MustParse("answer", `You are an intelligent assistant analyzing Indian agricultural and climate data from data.gov.in.

Context from data.gov.in:
{{context}}

Use the context above to answer the question accurately.

IMPORTANT INSTRUCTIONS:
- Provide specific numbers and statistics from the data
- Always cite the source (state, district, year, subdivision) for each data point
- If comparing regions, present data in a clear format
- If data is unavailable, clearly state that
- Do not invent figures that are not in the context
- Be precise and factual

Question: {{question}}

Detailed Answer with Citations:`)

// ErrEmptyAnswer is wrapped in a SynthesisError when the model returns no text.
var ErrEmptyAnswer = errors.New("model returned an empty answer")

type Generator struct {
	gateway     llm.Gateway
	provider    string
	model       string
	temperature float64
}

type GeneratorOptions struct {
	Provider    string
	Model       string
	Temperature float64
}

func NewGenerator(gw llm.Gateway, opts GeneratorOptions) *Generator {
	return &Generator{
		gateway:     gw,
		provider:    opts.Provider,
		model:       opts.Model,
		temperature: opts.Temperature,
	}
}

// BuildPrompt renders the answer prompt: docs in the order given, separated
// by blank lines, then the answering instructions, then the question.
func BuildPrompt(question string, docs []models.Document) string {
	texts := make([]string, len(docs))
	for i, d := range docs {
		texts[i] = d.Text
	}
	out, err := answerPrompt.Render(map[string]string{
		"context":  strings.Join(texts, "\n\n"),
		"question": question,
	})
	if err != nil {
		// Both variables are always supplied.
		panic(err)
	}
	return out
}

// Synthesize makes one completion call and returns the model's text
// verbatim.
func (g *Generator) Synthesize(ctx context.Context, question string, docs []models.Document) (string, error) {
	resp, err := g.gateway.Chat(ctx, g.request(question, docs))
	if err != nil {
		return "", synthesisError(err)
	}
	if strings.TrimSpace(resp.Content) == "" {
		return "", synthesisError(ErrEmptyAnswer)
	}
	return resp.Content, nil
}

// SynthesizeStream relays completion deltas. Failures after the stream has
// started arrive as a final chunk carrying a *SynthesisError.
func (g *Generator) SynthesizeStream(ctx context.Context, question string, docs []models.Document) (<-chan llm.StreamChunk, error) {
	upstream, err := g.gateway.ChatStream(ctx, g.request(question, docs))
	if err != nil {
		return nil, synthesisError(err)
	}

	out := make(chan llm.StreamChunk, 16)
	go func() {
		defer close(out)
		var produced bool
		for chunk := range upstream {
			if chunk.Error != nil {
				chunk.Error = synthesisError(chunk.Error)
				out <- chunk
				return
			}
			if strings.TrimSpace(chunk.Content) != "" {
				produced = true
			}
			if chunk.Done && !produced {
				out <- llm.StreamChunk{Done: true, Error: synthesisError(ErrEmptyAnswer)}
				return
			}
			out <- chunk
			if chunk.Done {
				return
			}
		}
		if !produced {
			out <- llm.StreamChunk{Done: true, Error: synthesisError(fmt.Errorf("stream closed: %w", ErrEmptyAnswer))}
		}
	}()
	return out, nil
}

func (g *Generator) request(question string, docs []models.Document) llm.ChatRequest {
	return llm.ChatRequest{
		Provider:    g.provider,
		Model:       g.model,
		Temperature: g.temperature,
		Messages: []llm.Message{
			{Role: "user", Content: BuildPrompt(question, docs)},
		},
	}
}
