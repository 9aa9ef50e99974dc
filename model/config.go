package model

import (
	"time"

	"github.com/google/uuid"
)

const (
	DefaultTopK                = 5
	MaxTopK                    = 50
	DefaultSimilarityThreshold = 0.5
	// NoSimilarityThreshold keeps every result regardless of similarity
	NoSimilarityThreshold = -1.0
	DefaultContextChars   = 6000

	DefaultMaxChunkChars     = 1000
	MinChunkChars            = 20
	DefaultWorkers           = 1
	DefaultRequestsPerSecond = 10.0
	DefaultBurst             = 1
	DefaultMaxRetries        = 3
	DefaultRetryInterval     = 500 * time.Millisecond
)

// QueryConfig represents configuration for a retrieval query.
// Zero values select the defaults, so a config with only TopK set still
// uses DefaultSimilarityThreshold. Use NoSimilarityThreshold to disable the floor.
type QueryConfig struct {
	TopK                int     `json:"top_k" yaml:"top_k"`
	SimilarityThreshold float64 `json:"similarity_threshold" yaml:"similarity_threshold"`

	// Restricts the search to these documents, empty means all of the owner's documents
	DocumentRIDs []uuid.UUID `json:"document_rids,omitempty" yaml:"-"`

	// Character budget for the assembled context
	ContextChars int `json:"context_chars,omitempty" yaml:"context_chars"`
}

// DefaultQueryConfig returns the defaults used by the study assistant
func DefaultQueryConfig() QueryConfig {
	return QueryConfig{
		TopK:                DefaultTopK,
		SimilarityThreshold: DefaultSimilarityThreshold,
		ContextChars:        DefaultContextChars,
	}
}

// NeighborQuery is what a vector store receives for a nearest neighbor lookup.
type NeighborQuery struct {
	OwnerID             uuid.UUID
	DocumentRIDs        []uuid.UUID
	Embedding           []float32
	SimilarityThreshold float64
	Limit               int
}

// IngestConfig controls chunking and throughput of the ingestion pipeline.
type IngestConfig struct {
	MaxChunkChars int `json:"max_chunk_chars" yaml:"max_chunk_chars"`

	// Number of chunks embedded concurrently
	Workers int `json:"workers" yaml:"workers"`

	// Token bucket shared by all embedding calls
	RequestsPerSecond float64 `json:"requests_per_second" yaml:"requests_per_second"`
	Burst             int     `json:"burst" yaml:"burst"`

	// Retries for transient embedding failures
	MaxRetries    int           `json:"max_retries" yaml:"max_retries"`
	RetryInterval time.Duration `json:"retry_interval" yaml:"retry_interval"`
}

// DefaultIngestConfig returns a serial, rate limited configuration.
func DefaultIngestConfig() IngestConfig {
	return IngestConfig{
		MaxChunkChars:     DefaultMaxChunkChars,
		Workers:           DefaultWorkers,
		RequestsPerSecond: DefaultRequestsPerSecond,
		Burst:             DefaultBurst,
		MaxRetries:        DefaultMaxRetries,
		RetryInterval:     DefaultRetryInterval,
	}
}

// WithDefaults fills zero values with their defaults.
func (c IngestConfig) WithDefaults() IngestConfig {
	if c.MaxChunkChars <= 0 {
		c.MaxChunkChars = DefaultMaxChunkChars
	}
	if c.Workers <= 0 {
		c.Workers = DefaultWorkers
	}
	if c.RequestsPerSecond <= 0 {
		c.RequestsPerSecond = DefaultRequestsPerSecond
	}
	if c.Burst <= 0 {
		c.Burst = DefaultBurst
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.RetryInterval <= 0 {
		c.RetryInterval = DefaultRetryInterval
	}
	return c
}
