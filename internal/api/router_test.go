package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/projectsamarth/samarth/internal/auth"
	"github.com/projectsamarth/samarth/internal/config"
	"github.com/projectsamarth/samarth/internal/index"
	"github.com/projectsamarth/samarth/internal/llm"
	"github.com/projectsamarth/samarth/internal/models"
	"github.com/projectsamarth/samarth/internal/queue"
	"github.com/projectsamarth/samarth/internal/rag"
	"github.com/projectsamarth/samarth/internal/session"
)

var guntur = models.Document{
	Text: "Agricultural Production Data:\nState: Andhra Pradesh\nDistrict: Guntur\nYear: 2004\nArea: 100 hectares\nProduction: 250 tonnes",
	Metadata: map[string]string{
		models.MetaSource:   string(models.SourceCropProduction),
		models.MetaState:    "Andhra Pradesh",
		models.MetaDistrict: "Guntur",
		models.MetaYear:     "2004",
	},
}

type fakePipeline struct {
	mu       sync.Mutex
	answer   string
	err      error
	streamCh []llm.StreamChunk
	gate     chan struct{}
	entered  chan struct{}
}

func (p *fakePipeline) Retrieve(_ context.Context, _ string) ([]models.Document, error) {
	if p.entered != nil {
		p.entered <- struct{}{}
		<-p.gate
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return nil, p.err
	}
	return []models.Document{guntur}, nil
}

func (p *fakePipeline) Synthesize(_ context.Context, _ string, _ []models.Document) (string, error) {
	return p.answer, nil
}

func (p *fakePipeline) Ask(ctx context.Context, q string) (*rag.Answer, error) {
	docs, err := p.Retrieve(ctx, q)
	if err != nil {
		return nil, err
	}
	return &rag.Answer{Text: p.answer, Sources: docs}, nil
}

func (p *fakePipeline) AskStream(ctx context.Context, q string) ([]models.Document, <-chan llm.StreamChunk, error) {
	docs, err := p.Retrieve(ctx, q)
	if err != nil {
		return nil, nil, err
	}
	ch := make(chan llm.StreamChunk, len(p.streamCh))
	for _, c := range p.streamCh {
		ch <- c
	}
	close(ch)
	return docs, ch, nil
}

func (p *fakePipeline) Search(_ context.Context, _ string, k int) ([]index.Hit, error) {
	if p.err != nil {
		return nil, p.err
	}
	if k <= 0 {
		k = 1
	}
	hits := make([]index.Hit, 0, k)
	for i := 0; i < k; i++ {
		hits = append(hits, index.Hit{Document: guntur, Score: 1 - float64(i)/10})
	}
	return hits, nil
}

type fakeQueue struct {
	payloads []queue.IndexBuildPayload
	err      error
}

func (q *fakeQueue) EnqueueIndexBuild(p queue.IndexBuildPayload) (string, error) {
	if q.err != nil {
		return "", q.err
	}
	q.payloads = append(q.payloads, p)
	return "task-1", nil
}

type testServer struct {
	srv      *httptest.Server
	pipeline *fakePipeline
	handle   *index.Handle
	queue    *fakeQueue
	cfg      *config.Config
}

func newTestServer(t *testing.T, mutate func(*config.Config)) *testServer {
	t.Helper()
	cfg, err := config.Load()
	require.NoError(t, err)
	cfg.Server.RateLimit = 0
	cfg.Index.Path = filepath.Join(t.TempDir(), "index.samarth")
	if mutate != nil {
		mutate(cfg)
	}

	ix, err := index.New("test-model", []index.Entry{{Vector: []float32{1, 0}, Document: guntur}}, time.Now())
	require.NoError(t, err)

	ts := &testServer{
		pipeline: &fakePipeline{answer: "Guntur produced 250 tonnes of rice in 2004."},
		handle:   index.NewHandle(ix),
		queue:    &fakeQueue{},
		cfg:      cfg,
	}
	router := NewRouter(Deps{
		Config:   cfg,
		Index:    ts.handle,
		Expect:   index.Expect{Model: "test-model"},
		Pipeline: ts.pipeline,
		Sessions: session.NewManager(ts.pipeline, session.Options{}),
		Queue:    ts.queue,
	})
	ts.srv = httptest.NewServer(router.Setup())
	t.Cleanup(ts.srv.Close)
	return ts
}

func (ts *testServer) do(t *testing.T, method, path, body, token string) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, ts.srv.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	if resp.StatusCode != http.StatusNoContent && strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	}
	return resp, out
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, nil)

	resp, _ := ts.do(t, http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := ts.do(t, http.MethodGet, "/readyz", "", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["checks"].(map[string]any)["index"])

	ts.handle.Swap(nil)
	resp, body = ts.do(t, http.MethodGet, "/readyz", "", "")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, "unhealthy", body["status"])
}

func TestSessionLifecycle(t *testing.T) {
	ts := newTestServer(t, nil)

	resp, body := ts.do(t, http.MethodPost, "/api/v1/sessions", "", "")
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	id := body["id"].(string)
	assert.Equal(t, "idle", body["state"])

	resp, body = ts.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/messages", `{"question":"What was the rice production in Guntur in 2004?"}`, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	turn := body["turn"].(map[string]any)
	assert.Equal(t, "assistant", turn["role"])
	assert.Equal(t, ts.pipeline.answer, turn["content"])
	sources := turn["sources"].([]any)
	require.Len(t, sources, 1)
	assert.Contains(t, sources[0].(map[string]any)["text"], "Production: 250 tonnes")

	resp, body = ts.do(t, http.MethodGet, "/api/v1/sessions/"+id, "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, body["turns"], 2)

	resp, _ = ts.do(t, http.MethodDelete, "/api/v1/sessions/"+id, "", "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, _ = ts.do(t, http.MethodGet, "/api/v1/sessions/"+id, "", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = ts.do(t, http.MethodGet, "/api/v1/sessions/not-a-uuid", "", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSessionMessage_Validation(t *testing.T) {
	ts := newTestServer(t, nil)
	_, body := ts.do(t, http.MethodPost, "/api/v1/sessions", "", "")
	id := body["id"].(string)

	resp, _ := ts.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/messages", `{"question":"  "}`, "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = ts.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/messages", `not json`, "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSessionMessage_Failures(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"index unavailable", &index.IndexUnavailableError{Reason: "no index loaded"}, http.StatusServiceUnavailable},
		{"retrieval", &rag.RetrievalError{Err: llm.ErrTimeout, Transient: true}, http.StatusBadGateway},
		{"synthesis", &rag.SynthesisError{Err: errors.New("quota")}, http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t, nil)
			ts.pipeline.err = tt.err
			_, body := ts.do(t, http.MethodPost, "/api/v1/sessions", "", "")
			id := body["id"].(string)

			resp, body := ts.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/messages", `{"question":"q"}`, "")
			assert.Equal(t, tt.status, resp.StatusCode)
			assert.NotEmpty(t, body["error"])
			assert.Equal(t, true, body["turn"].(map[string]any)["failed"])

			// The session remains usable.
			ts.pipeline.mu.Lock()
			ts.pipeline.err = nil
			ts.pipeline.mu.Unlock()
			resp, _ = ts.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/messages", `{"question":"q"}`, "")
			assert.Equal(t, http.StatusOK, resp.StatusCode)
		})
	}
}

func TestSessionMessage_ConcurrentRejected(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.pipeline.gate = make(chan struct{})
	ts.pipeline.entered = make(chan struct{}, 1)

	_, body := ts.do(t, http.MethodPost, "/api/v1/sessions", "", "")
	id := body["id"].(string)

	first := make(chan int, 1)
	go func() {
		req, _ := http.NewRequest(http.MethodPost, ts.srv.URL+"/api/v1/sessions/"+id+"/messages", strings.NewReader(`{"question":"first"}`))
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			first <- 0
			return
		}
		resp.Body.Close()
		first <- resp.StatusCode
	}()

	<-ts.pipeline.entered
	resp, _ := ts.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/messages", `{"question":"second"}`, "")
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	close(ts.pipeline.gate)
	assert.Equal(t, http.StatusOK, <-first)
}

func TestAskAndSearch(t *testing.T) {
	ts := newTestServer(t, nil)

	resp, body := ts.do(t, http.MethodPost, "/api/v1/ask", `{"question":"rice in Guntur?"}`, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, ts.pipeline.answer, body["answer"])
	assert.Len(t, body["sources"], 1)

	resp, body = ts.do(t, http.MethodPost, "/api/v1/search", `{"query":"rice","k":3}`, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 3, body["count"])

	resp, _ = ts.do(t, http.MethodPost, "/api/v1/search", `{"query":"rice","k":-1}`, "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	ts.pipeline.err = &index.IndexUnavailableError{Reason: "no index loaded"}
	resp, body = ts.do(t, http.MethodPost, "/api/v1/ask", `{"question":"rice"}`, "")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Contains(t, body["error"], "index is not available")
}

func TestAskStream(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.pipeline.streamCh = []llm.StreamChunk{{Content: "250 "}, {Content: "tonnes"}, {Done: true}}

	resp, err := http.Post(ts.srv.URL+"/api/v1/ask/stream", "application/json", strings.NewReader(`{"question":"rice"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	var events []string
	var text strings.Builder
	sc := bufio.NewScanner(resp.Body)
	for sc.Scan() {
		line := sc.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			events = append(events, strings.TrimPrefix(line, "event: "))
		case strings.HasPrefix(line, "data: ") && len(events) > 0:
			var chunk llm.StreamChunk
			if json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &chunk) == nil {
				text.WriteString(chunk.Content)
			}
		}
	}
	assert.Equal(t, []string{"sources"}, events)
	assert.Equal(t, "250 tonnes", text.String())
}

func TestAdminIndex(t *testing.T) {
	ts := newTestServer(t, nil)

	resp, body := ts.do(t, http.MethodGet, "/api/v1/admin/index", "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 1, body["index"].(map[string]any)["count"])

	resp, body = ts.do(t, http.MethodPost, "/api/v1/admin/index/rebuild", "", "")
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, "task-1", body["task_id"])
	require.Len(t, ts.queue.payloads, 1)

	ts.queue.err = queue.ErrBuildPending
	resp, _ = ts.do(t, http.MethodPost, "/api/v1/admin/index/rebuild", "", "")
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	// Reload fails while no file exists and keeps the live index.
	resp, _ = ts.do(t, http.MethodPost, "/api/v1/admin/index/reload", "", "")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.True(t, ts.handle.Ready())

	next, err := index.New("test-model", []index.Entry{
		{Vector: []float32{1, 0}, Document: guntur},
		{Vector: []float32{0, 1}, Document: guntur},
	}, time.Now())
	require.NoError(t, err)
	require.NoError(t, next.Save(ts.cfg.Index.Path))

	resp, body = ts.do(t, http.MethodPost, "/api/v1/admin/index/reload", "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 2, body["index"].(map[string]any)["count"])
	assert.Equal(t, 2, ts.handle.Current().Len())
}

func TestAuth(t *testing.T) {
	const secret = "s3cret"
	ts := newTestServer(t, func(c *config.Config) { c.Auth.JWTSecret = secret })

	resp, _ := ts.do(t, http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode, "health stays public")

	resp, _ = ts.do(t, http.MethodPost, "/api/v1/sessions", "", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	user, err := auth.Sign(secret, "analyst", "", time.Hour)
	require.NoError(t, err)
	resp, _ = ts.do(t, http.MethodPost, "/api/v1/sessions", "", user)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, _ = ts.do(t, http.MethodPost, "/api/v1/admin/index/rebuild", "", user)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	admin, err := auth.Sign(secret, "ops", auth.RoleAdmin, time.Hour)
	require.NoError(t, err)
	resp, _ = ts.do(t, http.MethodPost, "/api/v1/admin/index/rebuild", "", admin)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, "ops", ts.queue.payloads[0].RequestedBy)
}
