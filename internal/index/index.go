package index

import (
	"container/heap"
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/projectsamarth/samarth/internal/embedding"
	"github.com/projectsamarth/samarth/internal/models"
)

// Entry pairs a unit-length vector with the document it was computed from.
type Entry struct {
	Vector   []float32       `json:"vector"`
	Document models.Document `json:"document"`
}

// Hit is one search result. Score is cosine similarity in [-1, 1].
type Hit struct {
	Document models.Document `json:"document"`
	Score    float64         `json:"score"`
}

// Meta describes the embedding space an index was built in.
type Meta struct {
	Model     string    `json:"model"`
	Dimension int       `json:"dimension"`
	Count     int       `json:"count"`
	BuiltAt   time.Time `json:"built_at"`
}

// Index is an immutable in-memory vector index. Once built it is safe for
// concurrent searches.
type Index struct {
	meta    Meta
	entries []Entry
}

type Options struct {
	// BatchSize bounds how many documents go to the embedder per call.
	BatchSize int
	Now       func() time.Time
}

// Build embeds every document exactly once and returns an index holding the
// vectors in input order. An empty corpus yields an empty, valid index.
func Build(ctx context.Context, docs []models.Document, emb embedding.Embedder, opts Options) (*Index, error) {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 256
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	entries := make([]Entry, 0, len(docs))
	for start := 0; start < len(docs); start += opts.BatchSize {
		end := min(start+opts.BatchSize, len(docs))

		texts := make([]string, end-start)
		for i, d := range docs[start:end] {
			texts[i] = d.Text
		}

		vecs, err := emb.Embed(ctx, texts)
		if err != nil {
			return nil, fmt.Errorf("embed documents %d-%d: %w", start, end-1, err)
		}
		if len(vecs) != len(texts) {
			return nil, fmt.Errorf("embed documents %d-%d: got %d vectors", start, end-1, len(vecs))
		}
		for i, v := range vecs {
			entries = append(entries, Entry{Vector: v, Document: docs[start+i]})
		}

		slog.Debug("embedded documents", "done", end, "total", len(docs))
	}

	return New(emb.Model(), entries, opts.Now())
}

// New validates and normalises entries. All vectors must share one
// dimensionality.
func New(model string, entries []Entry, builtAt time.Time) (*Index, error) {
	dim := 0
	normalised := make([]Entry, len(entries))
	for i, e := range entries {
		if len(e.Vector) == 0 {
			return nil, fmt.Errorf("entry %d: empty vector", i)
		}
		if dim == 0 {
			dim = len(e.Vector)
		}
		if len(e.Vector) != dim {
			return nil, fmt.Errorf("entry %d: dimension %d, want %d", i, len(e.Vector), dim)
		}
		normalised[i] = Entry{Vector: normalize(e.Vector), Document: e.Document}
	}

	return &Index{
		meta: Meta{
			Model:     model,
			Dimension: dim,
			Count:     len(entries),
			BuiltAt:   builtAt.UTC(),
		},
		entries: normalised,
	}, nil
}

func (ix *Index) Stats() Meta { return ix.meta }

func (ix *Index) Len() int { return len(ix.entries) }

// Entries exposes the stored pairs in insertion order. Callers must not
// modify them.
func (ix *Index) Entries() []Entry { return ix.entries }

// Search returns the min(k, Len()) documents nearest to query by cosine
// similarity, best first. Equal scores keep insertion order.
func (ix *Index) Search(query []float32, k int) ([]Hit, error) {
	if k <= 0 {
		return nil, ErrInvalidK
	}
	if len(ix.entries) == 0 {
		return []Hit{}, nil
	}
	if len(query) != ix.meta.Dimension {
		return nil, unavailable("", fmt.Sprintf("query dimension %d does not match index dimension %d (model %s)",
			len(query), ix.meta.Dimension, ix.meta.Model), nil)
	}

	q := normalize(query)
	h := make(topK, 0, min(k, len(ix.entries)))
	for i, e := range ix.entries {
		c := candidate{pos: i, score: dot(q, e.Vector)}
		if len(h) < k {
			heap.Push(&h, c)
			continue
		}
		// Later positions never beat an equal score, so strict > keeps ties stable.
		if c.score > h[0].score {
			h[0] = c
			heap.Fix(&h, 0)
		}
	}

	sort.Slice(h, func(i, j int) bool { return h[i].better(h[j]) })

	hits := make([]Hit, len(h))
	for i, c := range h {
		hits[i] = Hit{Document: ix.entries[c.pos].Document, Score: c.score}
	}
	return hits, nil
}

type candidate struct {
	pos   int
	score float64
}

func (c candidate) better(o candidate) bool {
	if c.score != o.score {
		return c.score > o.score
	}
	return c.pos < o.pos
}

// topK is a min-heap whose root is the worst retained candidate.
type topK []candidate

func (h topK) Len() int           { return len(h) }
func (h topK) Less(i, j int) bool { return h[j].better(h[i]) }
func (h topK) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *topK) Push(x any)        { *h = append(*h, x.(candidate)) }
func (h *topK) Pop() any {
	old := *h
	c := old[len(old)-1]
	*h = old[:len(old)-1]
	return c
}

func normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	out := make([]float32, len(v))
	if sum == 0 {
		return out
	}
	norm := math.Sqrt(sum)
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}

func dot(a, b []float32) float64 {
	var s float64
	for i := range a {
		s += float64(a[i]) * float64(b[i])
	}
	return s
}
