package rag

import (
	"context"
	"hash/fnv"
	"strings"
	"unicode"

	"github.com/projectsamarth/samarth/internal/llm"
)

// wordEmbedder hashes lower-cased words into a fixed number of buckets, so
// texts sharing words land close together.
type wordEmbedder struct {
	dim int
	err error
}

func (e *wordEmbedder) Model() string { return "words" }

func (e *wordEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v := make([]float32, e.dim)
		for _, w := range strings.FieldsFunc(strings.ToLower(t), func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		}) {
			h := fnv.New32a()
			h.Write([]byte(w))
			v[h.Sum32()%uint32(e.dim)]++
		}
		out[i] = v
	}
	return out, nil
}

func (e *wordEmbedder) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	v, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return v[0], nil
}

type fakeGateway struct {
	llm.Gateway
	requests []llm.ChatRequest
	reply    string
	err      error
	chunks   []llm.StreamChunk
}

func (g *fakeGateway) Chat(_ context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	g.requests = append(g.requests, req)
	if g.err != nil {
		return nil, g.err
	}
	return &llm.ChatResponse{Content: g.reply}, nil
}

func (g *fakeGateway) ChatStream(_ context.Context, req llm.ChatRequest) (<-chan llm.StreamChunk, error) {
	g.requests = append(g.requests, req)
	if g.err != nil {
		return nil, g.err
	}
	ch := make(chan llm.StreamChunk, len(g.chunks))
	for _, c := range g.chunks {
		ch <- c
	}
	close(ch)
	return ch, nil
}
