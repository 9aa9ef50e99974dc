package model

import (
	"time"

	"github.com/google/uuid"
)

// RetrievalResult represents a chunk retrieved by a query
type RetrievalResult struct {
	Chunk *Chunk  `json:"chunk"`
	Score float64 `json:"score"` // Cosine similarity to the query
	Rank  int     `json:"rank"`  // 1-based position after ranking
}

// IngestionReport summarizes one ingestion run of a document.
type IngestionReport struct {
	DocumentRID     uuid.UUID      `json:"document_rid"`
	ChunksTotal     int            `json:"chunks_total"`
	ChunksSucceeded int            `json:"chunks_succeeded"`
	ChunksFailed    int            `json:"chunks_failed"`
	Status          DocumentStatus `json:"status"`
	Duration        time.Duration  `json:"duration"`
}

// ContextBlock is the numbered context handed to the chat model.
type ContextBlock struct {
	Text      string             `json:"text"`
	Sources   []*RetrievalResult `json:"sources"`
	Truncated bool               `json:"truncated"`
}
