package indexer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/projectsamarth/samarth/internal/corpus"
	"github.com/projectsamarth/samarth/internal/embedding"
	"github.com/projectsamarth/samarth/internal/index"
	"github.com/projectsamarth/samarth/internal/models"
	"github.com/projectsamarth/samarth/internal/records"
)

// Mirror receives a freshly built index, e.g. *vectorstore.PgVectorStore.
// Replace must be atomic: readers see the old rows until the new ones are
// committed.
type Mirror interface {
	Replace(ctx context.Context, model string, entries []index.Entry) (int64, error)
}

// Input is one cleaned CSV and the dataset it holds.
type Input struct {
	Path   string
	Source models.Source
}

type Config struct {
	Inputs    []Input
	IndexPath string
	BatchSize int
}

// Builder runs the offline pipeline: CSV -> records -> corpus -> index ->
// file, optionally mirrored into Postgres.
type Builder struct {
	cfg      Config
	embedder embedding.Embedder
	mirror   Mirror
}

func NewBuilder(cfg Config, embedder embedding.Embedder, mirror Mirror) *Builder {
	return &Builder{cfg: cfg, embedder: embedder, mirror: mirror}
}

type Report struct {
	Documents map[models.Source]int `json:"documents"`
	Total     int                   `json:"total"`
	Skipped   int                   `json:"skipped"`
	Model     string                `json:"model"`
	Dimension int                   `json:"dimension"`
	IndexPath string                `json:"index_path"`
	Mirrored  bool                  `json:"mirrored"`
	Duration  time.Duration         `json:"duration"`

	index *index.Index
}

// Index is the index that was saved.
func (r *Report) Index() *index.Index { return r.index }

func (b *Builder) Run(ctx context.Context) (*Report, error) {
	start := time.Now()

	var recs []records.Record
	for _, in := range b.cfg.Inputs {
		rs, err := records.LoadFile(in.Path, in.Source)
		if err != nil {
			return nil, fmt.Errorf("load %s data: %w", in.Source, err)
		}
		slog.Info("loaded records", "source", in.Source, "path", in.Path, "rows", len(rs))
		recs = append(recs, rs...)
	}

	res := corpus.Build(recs)
	for _, e := range res.Errors {
		slog.Debug("skipped record", "error", e)
	}
	if res.Skipped > 0 {
		slog.Warn("skipped malformed records", "count", res.Skipped)
	}

	report := &Report{
		Documents: make(map[models.Source]int),
		Total:     len(res.Documents),
		Skipped:   res.Skipped,
		IndexPath: b.cfg.IndexPath,
	}
	for _, d := range res.Documents {
		report.Documents[d.Source()]++
	}

	ix, err := index.Build(ctx, res.Documents, b.embedder, index.Options{BatchSize: b.cfg.BatchSize})
	if err != nil {
		return nil, fmt.Errorf("build index: %w", err)
	}
	if err := ix.Save(b.cfg.IndexPath); err != nil {
		return nil, fmt.Errorf("save index: %w", err)
	}
	meta := ix.Stats()
	report.Model = meta.Model
	report.Dimension = meta.Dimension
	report.index = ix

	if b.mirror != nil {
		removed, err := b.mirror.Replace(ctx, meta.Model, ix.Entries())
		if err != nil {
			return nil, fmt.Errorf("mirror index: %w", err)
		}
		slog.Debug("mirror replaced", "model", meta.Model, "removed", removed, "inserted", len(ix.Entries()))
		report.Mirrored = true
	}

	report.Duration = time.Since(start)
	slog.Info("index built",
		"documents", report.Total,
		"skipped", report.Skipped,
		"model", report.Model,
		"dimension", report.Dimension,
		"path", report.IndexPath,
		"duration_ms", report.Duration.Milliseconds(),
	)
	return report, nil
}
