package workers

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/projectsamarth/samarth/internal/indexer"
	"github.com/projectsamarth/samarth/internal/llm"
	"github.com/projectsamarth/samarth/internal/models"
	"github.com/projectsamarth/samarth/internal/queue"
	"github.com/projectsamarth/samarth/internal/records"
)

type stubRunner struct {
	runs int
	err  error
}

func (s *stubRunner) Run(context.Context) (*indexer.Report, error) {
	s.runs++
	if s.err != nil {
		return nil, s.err
	}
	return &indexer.Report{Total: 3}, nil
}

func TestIndexWorker_Success(t *testing.T) {
	r := &stubRunner{}
	w := NewIndexWorker(r)

	err := w.ProcessTask(context.Background(), asynq.NewTask(queue.TypeIndexBuild, []byte(`{"requested_by":"admin"}`)))
	require.NoError(t, err)
	assert.Equal(t, 1, r.runs)
}

func TestIndexWorker_BadPayloadSkipsRetry(t *testing.T) {
	w := NewIndexWorker(&stubRunner{})
	err := w.ProcessTask(context.Background(), asynq.NewTask(queue.TypeIndexBuild, []byte(`{`)))
	assert.ErrorIs(t, err, asynq.SkipRetry)
}

func TestIndexWorker_RetryPolicy(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		skipRetry bool
	}{
		{"missing columns", &records.MissingColumnsError{Source: models.SourceRainfall, Missing: []string{"year"}}, true},
		{"auth failure", &llm.StatusError{Provider: "gemini", Code: http.StatusUnauthorized}, true},
		{"embedder overloaded", &llm.StatusError{Provider: "ollama", Code: http.StatusServiceUnavailable}, false},
		{"timeout", llm.ErrTimeout, false},
		{"unknown", errors.New("disk full"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := NewIndexWorker(&stubRunner{err: tt.err})
			err := w.ProcessTask(context.Background(), asynq.NewTask(queue.TypeIndexBuild, nil))
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.err)
			assert.Equal(t, tt.skipRetry, errors.Is(err, asynq.SkipRetry))
		})
	}
}
