package model

import (
	"time"

	"github.com/google/uuid"
)

// Chunk is a bounded span of a document's extracted text together with its embedding.
// OwnerID is copied from the parent document by the store.
type Chunk struct {
	ID          int64     `json:"id"`
	RID         uuid.UUID `json:"rid"`
	DocumentID  int64     `json:"document_id"`
	DocumentRID uuid.UUID `json:"document_rid"`
	OwnerID     uuid.UUID `json:"owner_id"`
	Content     string    `json:"content"`
	Embedding   []float32 `json:"embedding,omitempty"`
	ChunkIndex  int       `json:"chunk_index"`
	StartPos    int       `json:"start_pos"`
	EndPos      int       `json:"end_pos"`
	Metadata    Metadata  `json:"metadata,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}
