// Package storetest holds behaviour tests every store.Store implementation must pass.
package storetest

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/siherrmann/vaultrag/core/store"
	"github.com/siherrmann/vaultrag/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Dimension is the embedding size the suite inserts.
const Dimension = 4

// Run executes the suite against stores created by newStore, which must
// return an empty store accepting Dimension sized embeddings.
func Run(t *testing.T, newStore func(t *testing.T) store.Store) {
	t.Run("Document lifecycle", func(t *testing.T) { testDocumentLifecycle(t, newStore(t)) })
	t.Run("Claim guards against concurrent ingestion", func(t *testing.T) { testClaim(t, newStore(t)) })
	t.Run("Reset releases a document stuck in processing", func(t *testing.T) { testReset(t, newStore(t)) })
	t.Run("Chunks inherit the document owner", func(t *testing.T) { testChunkOwner(t, newStore(t)) })
	t.Run("Nearest neighbors are owner isolated", func(t *testing.T) { testOwnerIsolation(t, newStore(t)) })
	t.Run("Nearest neighbors respect threshold and limit", func(t *testing.T) { testThresholdAndLimit(t, newStore(t)) })
	t.Run("Deleting a document cascades to its chunks", func(t *testing.T) { testCascade(t, newStore(t)) })
	t.Run("Dimension mismatch is rejected", func(t *testing.T) { testDimension(t, newStore(t)) })
}

func insertDocument(t *testing.T, s store.Store, ownerID uuid.UUID, title string) *model.Document {
	doc := &model.Document{OwnerID: ownerID, Title: title, SourceKind: model.SourceFile, Metadata: model.Metadata{"course": "cs"}}
	require.NoError(t, s.InsertDocument(context.Background(), doc))
	return doc
}

func insertChunk(t *testing.T, s store.Store, doc *model.Document, index int, embedding []float32) *model.Chunk {
	chunk := &model.Chunk{
		DocumentRID: doc.RID,
		Content:     doc.Title,
		Embedding:   embedding,
		ChunkIndex:  index,
		StartPos:    index * 10,
		EndPos:      index*10 + 10,
	}
	require.NoError(t, s.InsertChunk(context.Background(), chunk))
	return chunk
}

func testDocumentLifecycle(t *testing.T, s store.Store) {
	ctx := context.Background()
	ownerID := uuid.New()

	doc := insertDocument(t, s, ownerID, "Linear algebra")
	assert.NotEqual(t, uuid.Nil, doc.RID)
	assert.Equal(t, model.StatusPending, doc.Status)
	assert.False(t, doc.CreatedAt.IsZero())

	selected, err := s.SelectDocument(ctx, doc.RID)
	require.NoError(t, err)
	assert.Equal(t, doc.Title, selected.Title)
	assert.Equal(t, ownerID, selected.OwnerID)
	assert.Equal(t, "cs", selected.Metadata["course"])

	insertDocument(t, s, ownerID, "Calculus")
	insertDocument(t, s, uuid.New(), "Someone else's")
	owned, err := s.SelectDocumentsByOwner(ctx, ownerID)
	require.NoError(t, err)
	assert.Len(t, owned, 2)

	require.NoError(t, s.UpdateDocumentStatus(ctx, doc.RID, model.StatusCompleted))
	selected, err = s.SelectDocument(ctx, doc.RID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, selected.Status)

	assert.ErrorIs(t, s.UpdateDocumentStatus(ctx, doc.RID, model.DocumentStatus("bogus")), model.ErrStoreWrite)
	assert.ErrorIs(t, s.UpdateDocumentStatus(ctx, uuid.New(), model.StatusFailed), model.ErrDocumentNotFound)

	require.NoError(t, s.DeleteDocument(ctx, doc.RID))
	_, err = s.SelectDocument(ctx, doc.RID)
	assert.ErrorIs(t, err, model.ErrDocumentNotFound)
	assert.ErrorIs(t, s.DeleteDocument(ctx, doc.RID), model.ErrDocumentNotFound)

	err = s.InsertDocument(ctx, &model.Document{Title: "no owner"})
	assert.ErrorIs(t, err, model.ErrStoreWrite)
}

func testClaim(t *testing.T, s store.Store) {
	ctx := context.Background()
	doc := insertDocument(t, s, uuid.New(), "Thesis")

	claimed, err := s.ClaimDocument(ctx, doc.RID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusProcessing, claimed.Status)

	_, err = s.ClaimDocument(ctx, doc.RID)
	assert.ErrorIs(t, err, model.ErrDocumentProcessing)

	_, err = s.ClaimDocument(ctx, uuid.New())
	assert.ErrorIs(t, err, model.ErrDocumentNotFound)

	// A finished document can be claimed again for re-ingestion
	require.NoError(t, s.UpdateDocumentStatus(ctx, doc.RID, model.StatusFailed))

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.ClaimDocument(ctx, doc.RID)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				succeeded++
			} else {
				assert.True(t, errors.Is(err, model.ErrDocumentProcessing), "unexpected claim error: %v", err)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, succeeded, "Expected exactly one concurrent claim to win")
}

func testReset(t *testing.T, s store.Store) {
	ctx := context.Background()
	doc := insertDocument(t, s, uuid.New(), "Lab report")

	_, err := s.ResetDocument(ctx, doc.RID)
	assert.ErrorIs(t, err, model.ErrNotProcessing, "Expected a pending document not to be reset")

	_, err = s.ResetDocument(ctx, uuid.New())
	assert.ErrorIs(t, err, model.ErrDocumentNotFound)

	// A claim whose ingestion never finished
	_, err = s.ClaimDocument(ctx, doc.RID)
	require.NoError(t, err)
	_, err = s.ClaimDocument(ctx, doc.RID)
	require.ErrorIs(t, err, model.ErrDocumentProcessing)

	reset, err := s.ResetDocument(ctx, doc.RID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusFailed, reset.Status)
	assert.Equal(t, doc.RID, reset.RID)

	_, err = s.ResetDocument(ctx, doc.RID)
	assert.ErrorIs(t, err, model.ErrNotProcessing, "Expected a failed document not to be reset again")

	claimed, err := s.ClaimDocument(ctx, doc.RID)
	require.NoError(t, err, "Expected the reset document to be claimable")
	assert.Equal(t, model.StatusProcessing, claimed.Status)

	require.NoError(t, s.UpdateDocumentStatus(ctx, doc.RID, model.StatusCompleted))
	_, err = s.ResetDocument(ctx, doc.RID)
	assert.ErrorIs(t, err, model.ErrNotProcessing, "Expected a completed document not to be reset")
}

func testChunkOwner(t *testing.T, s store.Store) {
	ctx := context.Background()
	ownerID := uuid.New()
	doc := insertDocument(t, s, ownerID, "Physics")

	chunk := &model.Chunk{DocumentRID: doc.RID, OwnerID: uuid.New(), Content: "F = m a", Embedding: []float32{1, 0, 0, 0}, ChunkIndex: 1}
	require.NoError(t, s.InsertChunk(ctx, chunk))
	assert.Equal(t, ownerID, chunk.OwnerID, "Expected owner to come from the document")
	assert.Equal(t, doc.ID, chunk.DocumentID)
	assert.NotEqual(t, uuid.Nil, chunk.RID)

	insertChunk(t, s, doc, 0, []float32{0, 1, 0, 0})

	chunks, err := s.SelectChunksByDocument(ctx, doc.RID)
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, 0, chunks[0].ChunkIndex)
	assert.Equal(t, 1, chunks[1].ChunkIndex)
	assert.Equal(t, "F = m a", chunks[1].Content)
	assert.InDeltaSlice(t, []float32{1, 0, 0, 0}, chunks[1].Embedding, 1e-6)

	err = s.InsertChunk(ctx, &model.Chunk{DocumentRID: uuid.New(), Content: "x", Embedding: []float32{1, 0, 0, 0}})
	assert.ErrorIs(t, err, model.ErrStoreWrite)

	require.NoError(t, s.DeleteChunksByDocument(ctx, doc.RID))
	chunks, err = s.SelectChunksByDocument(ctx, doc.RID)
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func testOwnerIsolation(t *testing.T, s store.Store) {
	ctx := context.Background()
	ownerA, ownerB := uuid.New(), uuid.New()
	docA := insertDocument(t, s, ownerA, "A")
	docB := insertDocument(t, s, ownerB, "B")
	insertChunk(t, s, docA, 0, []float32{1, 0, 0, 0})
	insertChunk(t, s, docB, 0, []float32{1, 0, 0, 0})
	insertChunk(t, s, docB, 1, []float32{0.9, 0.1, 0, 0})

	results, err := s.NearestNeighbors(ctx, &model.NeighborQuery{
		OwnerID: ownerA, Embedding: []float32{1, 0, 0, 0}, SimilarityThreshold: -1, Limit: 10,
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, ownerA, results[0].Chunk.OwnerID)

	// Scoping to another owner's document does not leak it
	results, err = s.NearestNeighbors(ctx, &model.NeighborQuery{
		OwnerID: ownerA, DocumentRIDs: []uuid.UUID{docB.RID}, Embedding: []float32{1, 0, 0, 0}, SimilarityThreshold: -1, Limit: 10,
	})
	require.NoError(t, err)
	assert.Empty(t, results)

	results, err = s.NearestNeighbors(ctx, &model.NeighborQuery{
		OwnerID: uuid.New(), Embedding: []float32{1, 0, 0, 0}, SimilarityThreshold: -1, Limit: 10,
	})
	require.NoError(t, err)
	assert.Empty(t, results, "Expected an owner without documents to get nothing")
}

func testThresholdAndLimit(t *testing.T, s store.Store) {
	ctx := context.Background()
	ownerID := uuid.New()
	doc1 := insertDocument(t, s, ownerID, "one")
	doc2 := insertDocument(t, s, ownerID, "two")
	insertChunk(t, s, doc1, 0, []float32{1, 0, 0, 0})
	insertChunk(t, s, doc1, 1, []float32{1, 1, 0, 0})
	insertChunk(t, s, doc2, 0, []float32{1, 0.2, 0, 0})
	insertChunk(t, s, doc2, 1, []float32{0, 0, 1, 0})

	query := []float32{1, 0, 0, 0}

	results, err := s.NearestNeighbors(ctx, &model.NeighborQuery{OwnerID: ownerID, Embedding: query, SimilarityThreshold: 0.5, Limit: 10})
	require.NoError(t, err)
	require.Len(t, results, 3, "Expected the orthogonal chunk to be excluded")
	for i, result := range results {
		assert.GreaterOrEqual(t, result.Score, 0.5)
		assert.Equal(t, i+1, result.Rank)
		if i > 0 {
			assert.GreaterOrEqual(t, results[i-1].Score, result.Score)
		}
	}
	assert.InDelta(t, 1.0, results[0].Score, 1e-6)

	results, err = s.NearestNeighbors(ctx, &model.NeighborQuery{OwnerID: ownerID, Embedding: query, SimilarityThreshold: 0.5, Limit: 2})
	require.NoError(t, err)
	assert.Len(t, results, 2)

	results, err = s.NearestNeighbors(ctx, &model.NeighborQuery{OwnerID: ownerID, Embedding: query, SimilarityThreshold: 0.999, Limit: 10})
	require.NoError(t, err)
	assert.Len(t, results, 1)

	results, err = s.NearestNeighbors(ctx, &model.NeighborQuery{OwnerID: ownerID, DocumentRIDs: []uuid.UUID{doc2.RID}, Embedding: query, SimilarityThreshold: -1, Limit: 10})
	require.NoError(t, err)
	require.Len(t, results, 2)
	for _, result := range results {
		assert.Equal(t, doc2.RID, result.Chunk.DocumentRID)
	}
}

func testCascade(t *testing.T, s store.Store) {
	ctx := context.Background()
	ownerID := uuid.New()
	doc := insertDocument(t, s, ownerID, "cascade")
	keep := insertDocument(t, s, ownerID, "keep")
	for i := 0; i < 3; i++ {
		insertChunk(t, s, doc, i, []float32{1, 0, 0, float32(i)})
	}
	insertChunk(t, s, keep, 0, []float32{1, 0, 0, 0})

	require.NoError(t, s.DeleteDocument(ctx, doc.RID))

	chunks, err := s.SelectChunksByDocument(ctx, doc.RID)
	require.NoError(t, err)
	assert.Empty(t, chunks)

	results, err := s.NearestNeighbors(ctx, &model.NeighborQuery{OwnerID: ownerID, Embedding: []float32{1, 0, 0, 0}, SimilarityThreshold: -1, Limit: 10})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, keep.RID, results[0].Chunk.DocumentRID)
}

func testDimension(t *testing.T, s store.Store) {
	ctx := context.Background()
	ownerID := uuid.New()
	doc := insertDocument(t, s, ownerID, "dims")

	err := s.InsertChunk(ctx, &model.Chunk{DocumentRID: doc.RID, Content: "x", Embedding: []float32{1, 2}})
	assert.ErrorIs(t, err, model.ErrStoreWrite)
	assert.ErrorIs(t, err, model.ErrDimensionMismatch)

	_, err = s.NearestNeighbors(ctx, &model.NeighborQuery{OwnerID: ownerID, Embedding: []float32{1, 2}, Limit: 5})
	assert.ErrorIs(t, err, model.ErrStoreQuery)
}
