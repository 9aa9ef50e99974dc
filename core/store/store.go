// Package store defines the persistence ports used by ingestion and retrieval.
//
// Implementations must enforce two things on their own: a chunk's owner is
// always the owner of its document, and deleting a document removes its chunks.
package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/siherrmann/vaultrag/model"
)

// DocumentStore persists documents and their ingestion status.
type DocumentStore interface {
	InsertDocument(ctx context.Context, doc *model.Document) error
	SelectDocument(ctx context.Context, rid uuid.UUID) (*model.Document, error)
	SelectDocumentsByOwner(ctx context.Context, ownerID uuid.UUID) ([]*model.Document, error)
	UpdateDocumentStatus(ctx context.Context, rid uuid.UUID, status model.DocumentStatus) error
	// ClaimDocument moves the document to processing. It returns
	// model.ErrDocumentProcessing if it already is processing.
	ClaimDocument(ctx context.Context, rid uuid.UUID) (*model.Document, error)
	// ResetDocument moves a document left in processing to failed so it can be
	// claimed again. It returns model.ErrNotProcessing for any other status.
	ResetDocument(ctx context.Context, rid uuid.UUID) (*model.Document, error)
	DeleteDocument(ctx context.Context, rid uuid.UUID) error
}

// VectorStore persists chunks with their embeddings and answers nearest neighbor queries.
type VectorStore interface {
	// InsertChunk stores the chunk under chunk.DocumentRID and fills the
	// store assigned fields, including OwnerID.
	InsertChunk(ctx context.Context, chunk *model.Chunk) error
	SelectChunksByDocument(ctx context.Context, documentRID uuid.UUID) ([]*model.Chunk, error)
	DeleteChunksByDocument(ctx context.Context, documentRID uuid.UUID) error
	// NearestNeighbors returns the owner's chunks with a cosine similarity of at
	// least the threshold, best first, at most query.Limit of them.
	NearestNeighbors(ctx context.Context, query *model.NeighborQuery) ([]*model.RetrievalResult, error)
}

// Store is a document store and a vector store backed by the same database.
type Store interface {
	DocumentStore
	VectorStore
	Close() error
}
