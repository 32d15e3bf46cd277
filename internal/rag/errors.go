package rag

import (
	"github.com/projectsamarth/samarth/internal/llm"
)

// RetrievalError wraps a failure to embed the question or search the index.
type RetrievalError struct {
	Err       error
	Transient bool
}

func (e *RetrievalError) Error() string { return "retrieval failed: " + e.Err.Error() }

func (e *RetrievalError) Unwrap() error { return e.Err }

// SynthesisError wraps a failed or empty completion.
type SynthesisError struct {
	Err       error
	Transient bool
}

func (e *SynthesisError) Error() string { return "answer generation failed: " + e.Err.Error() }

func (e *SynthesisError) Unwrap() error { return e.Err }

func retrievalError(err error) *RetrievalError {
	return &RetrievalError{Err: err, Transient: llm.IsTransient(err)}
}

func synthesisError(err error) *SynthesisError {
	return &SynthesisError{Err: err, Transient: llm.IsTransient(err)}
}
