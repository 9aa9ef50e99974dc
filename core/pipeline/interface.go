package pipeline

import (
	"context"
	"fmt"
)

// ChunkFunc splits extracted text into ordered chunks
type ChunkFunc func(text string) ([]TextChunk, error)

// EmbedFunc generates the embedding vector for a piece of text.
// Implementations return model.ErrEmbeddingService or model.ErrInputTooLarge on failure.
type EmbedFunc func(ctx context.Context, text string) ([]float32, error)

// TextChunk is a chunk before it is embedded and stored.
// StartPos and EndPos are byte offsets of Content in the source text.
type TextChunk struct {
	Content    string
	StartPos   int
	EndPos     int
	ChunkIndex int
}

// Pipeline combines chunking and embedding functions
type Pipeline struct {
	Chunker  ChunkFunc
	Embedder EmbedFunc
}

// NewPipeline creates a new processing pipeline
func NewPipeline(chunker ChunkFunc, embedder EmbedFunc) *Pipeline {
	return &Pipeline{
		Chunker:  chunker,
		Embedder: embedder,
	}
}

// Validate checks that both stages are set
func (p *Pipeline) Validate() error {
	if p == nil {
		return fmt.Errorf("pipeline is nil")
	}
	if p.Chunker == nil {
		return fmt.Errorf("pipeline has no chunker")
	}
	if p.Embedder == nil {
		return fmt.Errorf("pipeline has no embedder")
	}
	return nil
}

// Chunk runs the chunker on text
func (p *Pipeline) Chunk(text string) ([]TextChunk, error) {
	if p.Chunker == nil {
		return nil, fmt.Errorf("pipeline has no chunker")
	}
	return p.Chunker(text)
}

// Embed runs the embedder on text
func (p *Pipeline) Embed(ctx context.Context, text string) ([]float32, error) {
	if p.Embedder == nil {
		return nil, fmt.Errorf("pipeline has no embedder")
	}
	return p.Embedder(ctx, text)
}
