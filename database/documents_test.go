package database

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/siherrmann/vaultrag/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDocumentsNewDocumentsDBHandler(t *testing.T) {
	database := initDB(t)

	t.Run("Valid call NewDocumentsDBHandler", func(t *testing.T) {
		documentsDbHandler, err := NewDocumentsDBHandler(database, true)
		assert.NoError(t, err, "Expected NewDocumentsDBHandler to not return an error")
		require.NotNil(t, documentsDbHandler, "Expected NewDocumentsDBHandler to return a non-nil instance")
		require.NotNil(t, documentsDbHandler.db, "Expected NewDocumentsDBHandler to have a non-nil database instance")
		require.NotNil(t, documentsDbHandler.db.Instance, "Expected NewDocumentsDBHandler to have a non-nil database connection instance")
	})

	t.Run("Invalid call NewDocumentsDBHandler with nil database", func(t *testing.T) {
		_, err := NewDocumentsDBHandler(nil, false)
		assert.Error(t, err, "Expected error when creating DocumentsDBHandler with nil database")
		assert.Contains(t, err.Error(), "database connection is nil", "Expected specific error message for nil database connection")
	})
}

func TestDocumentsInsert(t *testing.T) {
	database := initDB(t)
	ctx := context.Background()

	documentsDbHandler, err := NewDocumentsDBHandler(database, true)
	require.NoError(t, err, "Expected NewDocumentsDBHandler to not return an error")

	t.Run("Insert document", func(t *testing.T) {
		doc := &model.Document{
			OwnerID:         uuid.New(),
			Title:           "Cell Biology Lecture 3",
			SourceKind:      model.SourceFile,
			StorageLocation: "vault/lecture3.pdf",
			MimeType:        "application/pdf",
			Metadata:        model.Metadata{"course": "BIO101"},
		}

		err := documentsDbHandler.InsertDocument(ctx, doc)
		assert.NoError(t, err, "Expected Insert to not return an error")
		assert.NotEqual(t, uuid.Nil, doc.RID, "Expected inserted document to have a RID")
		assert.NotZero(t, doc.ID)
		assert.Equal(t, model.StatusPending, doc.Status, "Expected new documents to be pending")
		assert.WithinDuration(t, time.Now(), doc.CreatedAt, 5*time.Second, "Expected CreatedAt to be set")
		assert.Equal(t, "BIO101", doc.Metadata["course"])

		documentsDbHandler.DeleteDocument(ctx, doc.RID)
	})

	t.Run("Insert document without owner fails", func(t *testing.T) {
		err := documentsDbHandler.InsertDocument(ctx, &model.Document{Title: "orphan"})
		assert.ErrorIs(t, err, model.ErrStoreWrite)
	})

	t.Run("Insert document defaults source kind", func(t *testing.T) {
		doc := &model.Document{OwnerID: uuid.New(), Title: "link"}
		err := documentsDbHandler.InsertDocument(ctx, doc)
		require.NoError(t, err)
		assert.Equal(t, model.SourceFile, doc.SourceKind)

		documentsDbHandler.DeleteDocument(ctx, doc.RID)
	})
}

func TestDocumentsSelect(t *testing.T) {
	database := initDB(t)
	ctx := context.Background()

	documentsDbHandler, err := NewDocumentsDBHandler(database, true)
	require.NoError(t, err)

	ownerID := uuid.New()
	otherOwnerID := uuid.New()

	var docs []*model.Document
	for _, owner := range []uuid.UUID{ownerID, ownerID, otherOwnerID} {
		doc := &model.Document{OwnerID: owner, Title: "Notes"}
		require.NoError(t, documentsDbHandler.InsertDocument(ctx, doc))
		docs = append(docs, doc)
	}
	defer func() {
		for _, doc := range docs {
			documentsDbHandler.DeleteDocument(ctx, doc.RID)
		}
	}()

	t.Run("Select document by RID", func(t *testing.T) {
		retrievedDoc, err := documentsDbHandler.SelectDocument(ctx, docs[0].RID)
		assert.NoError(t, err, "Expected Get to not return an error")
		require.NotNil(t, retrievedDoc)
		assert.Equal(t, docs[0].RID, retrievedDoc.RID, "Expected document RIDs to match")
		assert.Equal(t, ownerID, retrievedDoc.OwnerID)
	})

	t.Run("Select missing document returns not found", func(t *testing.T) {
		_, err := documentsDbHandler.SelectDocument(ctx, uuid.New())
		assert.ErrorIs(t, err, model.ErrDocumentNotFound)
	})

	t.Run("Select documents by owner only returns the owner's documents", func(t *testing.T) {
		ownerDocs, err := documentsDbHandler.SelectDocumentsByOwner(ctx, ownerID)
		require.NoError(t, err)
		assert.Len(t, ownerDocs, 2)
		for _, doc := range ownerDocs {
			assert.Equal(t, ownerID, doc.OwnerID)
		}
	})
}

func TestDocumentsStatus(t *testing.T) {
	database := initDB(t)
	ctx := context.Background()

	documentsDbHandler, err := NewDocumentsDBHandler(database, true)
	require.NoError(t, err)

	doc := &model.Document{OwnerID: uuid.New(), Title: "Essay draft"}
	require.NoError(t, documentsDbHandler.InsertDocument(ctx, doc))
	defer documentsDbHandler.DeleteDocument(ctx, doc.RID)

	t.Run("Update document status", func(t *testing.T) {
		err := documentsDbHandler.UpdateDocumentStatus(ctx, doc.RID, model.StatusFailed)
		require.NoError(t, err)

		retrievedDoc, err := documentsDbHandler.SelectDocument(ctx, doc.RID)
		require.NoError(t, err)
		assert.Equal(t, model.StatusFailed, retrievedDoc.Status)
		assert.True(t, retrievedDoc.UpdatedAt.After(retrievedDoc.CreatedAt) || retrievedDoc.UpdatedAt.Equal(retrievedDoc.CreatedAt))
	})

	t.Run("Update with invalid status fails", func(t *testing.T) {
		err := documentsDbHandler.UpdateDocumentStatus(ctx, doc.RID, model.DocumentStatus("archived"))
		assert.ErrorIs(t, err, model.ErrStoreWrite)
	})

	t.Run("Update status of missing document returns not found", func(t *testing.T) {
		err := documentsDbHandler.UpdateDocumentStatus(ctx, uuid.New(), model.StatusCompleted)
		assert.ErrorIs(t, err, model.ErrDocumentNotFound)
	})

	t.Run("Claim moves the document to processing", func(t *testing.T) {
		claimed, err := documentsDbHandler.ClaimDocument(ctx, doc.RID)
		require.NoError(t, err)
		assert.Equal(t, model.StatusProcessing, claimed.Status)
	})

	t.Run("Second claim is rejected while processing", func(t *testing.T) {
		_, err := documentsDbHandler.ClaimDocument(ctx, doc.RID)
		assert.ErrorIs(t, err, model.ErrDocumentProcessing)
	})

	t.Run("Claim of missing document returns not found", func(t *testing.T) {
		_, err := documentsDbHandler.ClaimDocument(ctx, uuid.New())
		assert.ErrorIs(t, err, model.ErrDocumentNotFound)
	})

	t.Run("Concurrent claims admit exactly one", func(t *testing.T) {
		require.NoError(t, documentsDbHandler.UpdateDocumentStatus(ctx, doc.RID, model.StatusPending))

		var wg sync.WaitGroup
		var mu sync.Mutex
		succeeded, rejected := 0, 0
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := documentsDbHandler.ClaimDocument(ctx, doc.RID)
				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil:
					succeeded++
				case errors.Is(err, model.ErrDocumentProcessing):
					rejected++
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, 1, succeeded)
		assert.Equal(t, 7, rejected)
	})
}

func TestDocumentsDelete(t *testing.T) {
	database := initDB(t)
	ctx := context.Background()

	documentsDbHandler, err := NewDocumentsDBHandler(database, true)
	require.NoError(t, err)

	t.Run("Delete document", func(t *testing.T) {
		doc := &model.Document{OwnerID: uuid.New(), Title: "Delete me"}
		require.NoError(t, documentsDbHandler.InsertDocument(ctx, doc))

		err := documentsDbHandler.DeleteDocument(ctx, doc.RID)
		assert.NoError(t, err)

		_, err = documentsDbHandler.SelectDocument(ctx, doc.RID)
		assert.ErrorIs(t, err, model.ErrDocumentNotFound)
	})

	t.Run("Delete missing document returns not found", func(t *testing.T) {
		err := documentsDbHandler.DeleteDocument(ctx, uuid.New())
		assert.ErrorIs(t, err, model.ErrDocumentNotFound)
	})
}
