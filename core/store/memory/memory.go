// Package memory is an in-process store.Store, used for tests and single user setups.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/siherrmann/vaultrag/core/store"
	"github.com/siherrmann/vaultrag/helper"
	"github.com/siherrmann/vaultrag/model"
)

// Store keeps documents and chunks in maps guarded by a RWMutex.
// Values are copied in and out so callers never share state with the store.
type Store struct {
	mu          sync.RWMutex
	dimension   int
	nextDocID   int64
	nextChunkID int64
	documents   map[uuid.UUID]*model.Document
	chunks      map[uuid.UUID][]*model.Chunk
}

var _ store.Store = (*Store)(nil)

// NewStore creates an empty store for embeddings of the given dimension
func NewStore(dimension int) (*Store, error) {
	if dimension <= 0 {
		return nil, helper.NewError("memory store", fmt.Errorf("embedding dimension must be positive, got %d", dimension))
	}
	return &Store{
		dimension: dimension,
		documents: make(map[uuid.UUID]*model.Document),
		chunks:    make(map[uuid.UUID][]*model.Chunk),
	}, nil
}

func (s *Store) InsertDocument(ctx context.Context, doc *model.Document) error {
	if doc.OwnerID == uuid.Nil {
		return helper.NewError("insert document", fmt.Errorf("%w: owner id is required", model.ErrStoreWrite))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextDocID++
	now := time.Now().UTC()
	doc.ID = s.nextDocID
	doc.RID = uuid.New()
	doc.Status = model.StatusPending
	if doc.SourceKind == "" {
		doc.SourceKind = model.SourceFile
	}
	if doc.Metadata == nil {
		doc.Metadata = model.Metadata{}
	}
	doc.CreatedAt = now
	doc.UpdatedAt = now

	s.documents[doc.RID] = copyDocument(doc)
	return nil
}

func (s *Store) SelectDocument(ctx context.Context, rid uuid.UUID) (*model.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.documents[rid]
	if !ok {
		return nil, helper.NewError("select document", fmt.Errorf("%w: %s", model.ErrDocumentNotFound, rid))
	}
	return copyDocument(doc), nil
}

func (s *Store) SelectDocumentsByOwner(ctx context.Context, ownerID uuid.UUID) ([]*model.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var documents []*model.Document
	for _, doc := range s.documents {
		if doc.OwnerID == ownerID {
			documents = append(documents, copyDocument(doc))
		}
	}
	// Newest first
	sort.Slice(documents, func(i, j int) bool {
		return documents[i].ID > documents[j].ID
	})
	return documents, nil
}

func (s *Store) UpdateDocumentStatus(ctx context.Context, rid uuid.UUID, status model.DocumentStatus) error {
	if !status.Valid() {
		return helper.NewError("update document status", fmt.Errorf("%w: invalid status %q", model.ErrStoreWrite, status))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.documents[rid]
	if !ok {
		return helper.NewError("update document status", fmt.Errorf("%w: %s", model.ErrDocumentNotFound, rid))
	}
	doc.Status = status
	doc.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *Store) ClaimDocument(ctx context.Context, rid uuid.UUID) (*model.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.documents[rid]
	if !ok {
		return nil, helper.NewError("claim document", fmt.Errorf("%w: %s", model.ErrDocumentNotFound, rid))
	}
	if doc.Status == model.StatusProcessing {
		return nil, helper.NewError("claim document", fmt.Errorf("%w: %s", model.ErrDocumentProcessing, rid))
	}
	doc.Status = model.StatusProcessing
	doc.UpdatedAt = time.Now().UTC()
	return copyDocument(doc), nil
}

func (s *Store) ResetDocument(ctx context.Context, rid uuid.UUID) (*model.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.documents[rid]
	if !ok {
		return nil, helper.NewError("reset document", fmt.Errorf("%w: %s", model.ErrDocumentNotFound, rid))
	}
	if doc.Status != model.StatusProcessing {
		return nil, helper.NewError("reset document", fmt.Errorf("%w: %s is %s", model.ErrNotProcessing, rid, doc.Status))
	}
	doc.Status = model.StatusFailed
	doc.UpdatedAt = time.Now().UTC()
	return copyDocument(doc), nil
}

// DeleteDocument removes the document together with its chunks
func (s *Store) DeleteDocument(ctx context.Context, rid uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.documents[rid]; !ok {
		return helper.NewError("delete document", fmt.Errorf("%w: %s", model.ErrDocumentNotFound, rid))
	}
	delete(s.documents, rid)
	delete(s.chunks, rid)
	return nil
}

func (s *Store) InsertChunk(ctx context.Context, chunk *model.Chunk) error {
	if len(chunk.Embedding) != s.dimension {
		return helper.NewError("insert chunk", fmt.Errorf("%w: %w: got %d, want %d", model.ErrStoreWrite, model.ErrDimensionMismatch, len(chunk.Embedding), s.dimension))
	}
	if err := ctx.Err(); err != nil {
		return helper.NewError("insert chunk", fmt.Errorf("%w: %w", model.ErrStoreWrite, err))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.documents[chunk.DocumentRID]
	if !ok {
		return helper.NewError("insert chunk", fmt.Errorf("%w: %w: %s", model.ErrStoreWrite, model.ErrDocumentNotFound, chunk.DocumentRID))
	}

	s.nextChunkID++
	chunk.ID = s.nextChunkID
	chunk.RID = uuid.New()
	chunk.DocumentID = doc.ID
	chunk.OwnerID = doc.OwnerID
	chunk.CreatedAt = time.Now().UTC()
	if chunk.Metadata == nil {
		chunk.Metadata = model.Metadata{}
	}

	s.chunks[doc.RID] = append(s.chunks[doc.RID], copyChunk(chunk))
	return nil
}

func (s *Store) SelectChunksByDocument(ctx context.Context, documentRID uuid.UUID) ([]*model.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stored := s.chunks[documentRID]
	chunks := make([]*model.Chunk, 0, len(stored))
	for _, chunk := range stored {
		chunks = append(chunks, copyChunk(chunk))
	}
	sort.SliceStable(chunks, func(i, j int) bool {
		return chunks[i].ChunkIndex < chunks[j].ChunkIndex
	})
	return chunks, nil
}

func (s *Store) DeleteChunksByDocument(ctx context.Context, documentRID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.chunks, documentRID)
	return nil
}

// NearestNeighbors scans all chunks of the owner, an exact search.
func (s *Store) NearestNeighbors(ctx context.Context, query *model.NeighborQuery) ([]*model.RetrievalResult, error) {
	if len(query.Embedding) != s.dimension {
		return nil, helper.NewError("nearest neighbors", fmt.Errorf("%w: %w: got %d, want %d", model.ErrStoreQuery, model.ErrDimensionMismatch, len(query.Embedding), s.dimension))
	}
	if err := ctx.Err(); err != nil {
		return nil, helper.NewError("nearest neighbors", fmt.Errorf("%w: %w", model.ErrStoreQuery, err))
	}

	scope := make(map[uuid.UUID]bool, len(query.DocumentRIDs))
	for _, rid := range query.DocumentRIDs {
		scope[rid] = true
	}

	s.mu.RLock()
	var results []*model.RetrievalResult
	for rid, chunks := range s.chunks {
		doc, ok := s.documents[rid]
		if !ok || doc.OwnerID != query.OwnerID {
			continue
		}
		if len(scope) > 0 && !scope[rid] {
			continue
		}
		for _, chunk := range chunks {
			score := store.CosineSimilarity(query.Embedding, chunk.Embedding)
			if score < query.SimilarityThreshold {
				continue
			}
			results = append(results, &model.RetrievalResult{Chunk: copyChunk(chunk), Score: score})
		}
	}
	s.mu.RUnlock()

	store.RankResults(results)
	if query.Limit >= 0 && len(results) > query.Limit {
		results = results[:query.Limit]
	}
	return results, nil
}

// Close is a no-op
func (s *Store) Close() error {
	return nil
}

func copyDocument(doc *model.Document) *model.Document {
	c := *doc
	c.Metadata = doc.Metadata.Clone()
	c.Data = nil
	return &c
}

func copyChunk(chunk *model.Chunk) *model.Chunk {
	c := *chunk
	c.Embedding = append([]float32(nil), chunk.Embedding...)
	c.Metadata = chunk.Metadata.Clone()
	return &c
}
