package rag

import (
	"context"
	"errors"
	"fmt"

	"github.com/projectsamarth/samarth/internal/embedding"
	"github.com/projectsamarth/samarth/internal/index"
	"github.com/projectsamarth/samarth/internal/models"
)

// DefaultTopK is how many documents back an answer unless configured.
const DefaultTopK = 5

// VectorSearcher is satisfied by *index.Handle and *vectorstore.PgVectorStore.
type VectorSearcher interface {
	SimilaritySearch(ctx context.Context, query []float32, k int) ([]index.Hit, error)
}

type Retriever struct {
	searcher VectorSearcher
	embedder embedding.Embedder
}

func NewRetriever(searcher VectorSearcher, embedder embedding.Embedder) *Retriever {
	return &Retriever{searcher: searcher, embedder: embedder}
}

// Retrieve returns the k documents nearest to question, nearest first.
func (r *Retriever) Retrieve(ctx context.Context, question string, k int) ([]models.Document, error) {
	hits, err := r.RetrieveScored(ctx, question, k)
	if err != nil {
		return nil, err
	}
	docs := make([]models.Document, len(hits))
	for i, h := range hits {
		docs[i] = h.Document
	}
	return docs, nil
}

// RetrieveScored is Retrieve with similarity scores kept. k <= 0 selects
// DefaultTopK. The question is embedded as given, even when empty.
func (r *Retriever) RetrieveScored(ctx context.Context, question string, k int) ([]index.Hit, error) {
	if k <= 0 {
		k = DefaultTopK
	}

	vec, err := r.embedder.EmbedSingle(ctx, question)
	if err != nil {
		return nil, retrievalError(fmt.Errorf("embed question: %w", err))
	}

	hits, err := r.searcher.SimilaritySearch(ctx, vec, k)
	if err != nil {
		var unavail *index.IndexUnavailableError
		if errors.As(err, &unavail) {
			return nil, err
		}
		return nil, retrievalError(fmt.Errorf("search index: %w", err))
	}
	return hits, nil
}
