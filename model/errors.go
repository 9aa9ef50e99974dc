package model

import "errors"

var (
	// Ingestion
	ErrExtraction         = errors.New("text extraction failed")
	ErrUnsupportedFormat  = errors.New("unsupported document format")
	ErrNoChunks           = errors.New("document produced no chunks")
	ErrDocumentProcessing = errors.New("document is already being processed")
	ErrNotProcessing      = errors.New("document is not being processed")

	// Embedding
	ErrEmbeddingService = errors.New("embedding service error")
	ErrInputTooLarge    = errors.New("input exceeds embedding model limit")
	ErrEmbeddingAuth    = errors.New("embedding service rejected credentials")

	// Store
	ErrStoreWrite        = errors.New("store write failed")
	ErrStoreQuery        = errors.New("store query failed")
	ErrDocumentNotFound  = errors.New("document not found")
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// Retrieval
	ErrRetrieval    = errors.New("retrieval failed")
	ErrInvalidQuery = errors.New("invalid query")
)
