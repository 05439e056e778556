package domain

import "errors"

var (
	// ErrConfiguration marks a mismatch between the embedder, the collection and the config.
	// It is fatal at startup.
	ErrConfiguration = errors.New("configuration error")
	// ErrInvalidInput marks caller mistakes: blank query, non-positive k, all-blank batch.
	ErrInvalidInput = errors.New("invalid input")
	// ErrEmbedding wraps failures of the embedding function.
	ErrEmbedding = errors.New("embedding failed")
	// ErrStore wraps operations rejected by the vector store.
	ErrStore = errors.New("vector store failure")

	ErrDimensionMismatch  = errors.New("vector dimension mismatch")
	ErrCollectionNotFound = errors.New("collection not found")
)
