package workers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/projectsamarth/samarth/internal/corpus"
	"github.com/projectsamarth/samarth/internal/indexer"
	"github.com/projectsamarth/samarth/internal/llm"
	"github.com/projectsamarth/samarth/internal/queue"
	"github.com/projectsamarth/samarth/internal/records"
)

type Runner interface {
	Run(ctx context.Context) (*indexer.Report, error)
}

type IndexWorker struct {
	builder Runner
}

func NewIndexWorker(b Runner) *IndexWorker {
	return &IndexWorker{builder: b}
}

func (w *IndexWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload queue.IndexBuildPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return fmt.Errorf("unmarshal payload: %v: %w", err, asynq.SkipRetry)
		}
	}

	slog.Info("building index", "requested_by", payload.RequestedBy, "reason", payload.Reason)

	report, err := w.builder.Run(ctx)
	if err != nil {
		if !retryable(err) {
			return fmt.Errorf("build index: %w: %w", err, asynq.SkipRetry)
		}
		return fmt.Errorf("build index: %w", err)
	}

	slog.Info("index build finished",
		"documents", report.Total,
		"skipped", report.Skipped,
		"path", report.IndexPath,
		"duration_ms", report.Duration.Milliseconds(),
	)
	return nil
}

// retryable reports whether running the same build again could succeed.
// Bad input files and corpus errors will not fix themselves.
func retryable(err error) bool {
	var (
		mc *records.MissingColumnsError
		de *corpus.DataError
	)
	if errors.As(err, &mc) || errors.As(err, &de) {
		return false
	}
	return llm.IsTransient(err)
}
