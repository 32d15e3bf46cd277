package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOllama_Embedding(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/embed", r.URL.Path)
		var req ollamaEmbedReq
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "all-minilm", req.Model)

		out := ollamaEmbedResp{}
		for range req.Input {
			out.Embeddings = append(out.Embeddings, []float32{0.1, 0.2})
		}
		_ = json.NewEncoder(w).Encode(out)
	}))
	defer srv.Close()

	p := NewOllamaProvider(srv.URL + "/")
	resp, err := p.GenerateEmbedding(context.Background(), EmbeddingRequest{Input: []string{"a", "b"}})
	require.NoError(t, err)
	assert.Len(t, resp.Embeddings, 2)
	assert.Equal(t, "all-minilm", resp.Model)
}

func TestOllama_Chat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)
		_ = json.NewEncoder(w).Encode(ollamaChatResp{
			Message:         ollamaMessage{Role: "assistant", Content: "Rice in Guntur."},
			Done:            true,
			PromptEvalCount: 10,
			EvalCount:       4,
		})
	}))
	defer srv.Close()

	resp, err := NewOllamaProvider(srv.URL).ChatCompletion(context.Background(), ChatRequest{
		Model:    "llama3",
		Messages: []Message{{Role: "user", Content: "hi"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "Rice in Guntur.", resp.Content)
	assert.Equal(t, 14, resp.TotalTokens)
}

func TestOllama_Stream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		enc := json.NewEncoder(w)
		_ = enc.Encode(ollamaChatResp{Message: ollamaMessage{Content: "Hel"}})
		_ = enc.Encode(ollamaChatResp{Message: ollamaMessage{Content: "lo"}})
		_ = enc.Encode(ollamaChatResp{Done: true, EvalCount: 2})
	}))
	defer srv.Close()

	ch, err := NewOllamaProvider(srv.URL).ChatCompletionStream(context.Background(), ChatRequest{Model: "llama3"})
	require.NoError(t, err)

	var text string
	var last StreamChunk
	for c := range ch {
		text += c.Content
		last = c
	}
	assert.Equal(t, "Hello", text)
	assert.True(t, last.Done)
	assert.Equal(t, 2, last.OutputTokens)
}

func TestOllama_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewOllamaProvider(srv.URL).GenerateEmbedding(context.Background(), EmbeddingRequest{Input: []string{"a"}})
	require.Error(t, err)

	var stErr *StatusError
	require.ErrorAs(t, err, &stErr)
	assert.Equal(t, http.StatusServiceUnavailable, stErr.Code)
	assert.Contains(t, stErr.Body, "model not loaded")
	assert.True(t, IsTransient(err))
}
