package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/siherrmann/vaultrag/helper"
	"github.com/siherrmann/vaultrag/model"
	loadSql "github.com/siherrmann/vaultrag/sql"
)

// DocumentsDBHandlerFunctions defines the interface for Documents database operations.
type DocumentsDBHandlerFunctions interface {
	InsertDocument(ctx context.Context, doc *model.Document) error
	SelectDocument(ctx context.Context, rid uuid.UUID) (*model.Document, error)
	SelectDocumentsByOwner(ctx context.Context, ownerID uuid.UUID) ([]*model.Document, error)
	UpdateDocumentStatus(ctx context.Context, rid uuid.UUID, status model.DocumentStatus) error
	ClaimDocument(ctx context.Context, rid uuid.UUID) (*model.Document, error)
	ResetDocument(ctx context.Context, rid uuid.UUID) (*model.Document, error)
	DeleteDocument(ctx context.Context, rid uuid.UUID) error
}

// DocumentsDBHandler handles document-related database operations
type DocumentsDBHandler struct {
	db *helper.Database
}

// NewDocumentsDBHandler creates a new documents database handler.
// It loads the document-related SQL functions and creates the table.
// If force is true, it will reload the SQL functions even if they already exist.
func NewDocumentsDBHandler(db *helper.Database, force bool) (*DocumentsDBHandler, error) {
	if db == nil {
		return nil, helper.NewError("database connection validation", fmt.Errorf("database connection is nil"))
	}

	documentsDbHandler := &DocumentsDBHandler{
		db: db,
	}

	err := loadSql.LoadDocumentsSql(documentsDbHandler.db.Instance, force)
	if err != nil {
		return nil, helper.NewError("load documents sql", err)
	}

	err = documentsDbHandler.CreateTable()
	if err != nil {
		return nil, helper.NewError("create table", err)
	}

	db.Logger.Info("Initialized DocumentsDBHandler")

	return documentsDbHandler, nil
}

// CreateTable creates the 'documents' table with its indexes and trigger.
// If the table already exists, it does not create it again.
func (h *DocumentsDBHandler) CreateTable() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := h.db.Instance.ExecContext(ctx, `SELECT init_documents();`)
	if err != nil {
		log.Panicf("error initializing documents table: %#v", err)
	}

	h.db.Logger.Info("Checked/created table documents")

	return nil
}

// InsertDocument inserts a new pending document and fills its generated fields
func (h *DocumentsDBHandler) InsertDocument(ctx context.Context, doc *model.Document) error {
	if doc.OwnerID == uuid.Nil {
		return helper.NewError("insert document", fmt.Errorf("%w: owner id is required", model.ErrStoreWrite))
	}
	if doc.SourceKind == "" {
		doc.SourceKind = model.SourceFile
	}

	row := h.db.Instance.QueryRowContext(
		ctx,
		`SELECT * FROM insert_document($1, $2, $3, $4, $5, $6)`,
		doc.OwnerID,
		doc.Title,
		doc.SourceKind,
		doc.StorageLocation,
		doc.MimeType,
		doc.Metadata,
	)

	err := scanDocument(row, doc)
	if err != nil {
		return helper.NewError("scan", fmt.Errorf("%w: %w", model.ErrStoreWrite, err))
	}

	return nil
}

// SelectDocument retrieves a document by RID
func (h *DocumentsDBHandler) SelectDocument(ctx context.Context, rid uuid.UUID) (*model.Document, error) {
	row := h.db.Instance.QueryRowContext(
		ctx,
		`SELECT * FROM select_document($1)`,
		rid,
	)

	doc := &model.Document{}
	err := scanDocument(row, doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, helper.NewError("select document", fmt.Errorf("%w: %s", model.ErrDocumentNotFound, rid))
	}
	if err != nil {
		return nil, helper.NewError("scan", fmt.Errorf("%w: %w", model.ErrStoreQuery, err))
	}

	return doc, nil
}

// SelectDocumentsByOwner retrieves all documents of an owner, newest first
func (h *DocumentsDBHandler) SelectDocumentsByOwner(ctx context.Context, ownerID uuid.UUID) ([]*model.Document, error) {
	rows, err := h.db.Instance.QueryContext(
		ctx,
		`SELECT * FROM select_documents_by_owner($1)`,
		ownerID,
	)
	if err != nil {
		return nil, helper.NewError("query", fmt.Errorf("%w: %w", model.ErrStoreQuery, err))
	}
	defer rows.Close()

	var documents []*model.Document
	for rows.Next() {
		doc := &model.Document{}
		err := scanDocument(rows, doc)
		if err != nil {
			return nil, helper.NewError("scan", fmt.Errorf("%w: %w", model.ErrStoreQuery, err))
		}

		documents = append(documents, doc)
	}

	err = rows.Err()
	if err != nil {
		return nil, helper.NewError("rows error", fmt.Errorf("%w: %w", model.ErrStoreQuery, err))
	}

	return documents, nil
}

// UpdateDocumentStatus sets the ingestion status of a document
func (h *DocumentsDBHandler) UpdateDocumentStatus(ctx context.Context, rid uuid.UUID, status model.DocumentStatus) error {
	if !status.Valid() {
		return helper.NewError("update document status", fmt.Errorf("%w: invalid status %q", model.ErrStoreWrite, status))
	}

	row := h.db.Instance.QueryRowContext(
		ctx,
		`SELECT * FROM update_document_status($1, $2)`,
		rid,
		status,
	)

	doc := &model.Document{}
	err := scanDocument(row, doc)
	if errors.Is(err, sql.ErrNoRows) {
		return helper.NewError("update document status", fmt.Errorf("%w: %s", model.ErrDocumentNotFound, rid))
	}
	if err != nil {
		return helper.NewError("scan", fmt.Errorf("%w: %w", model.ErrStoreWrite, err))
	}

	return nil
}

// ClaimDocument atomically moves a document into processing.
// A second claim while the first is still running fails with model.ErrDocumentProcessing.
func (h *DocumentsDBHandler) ClaimDocument(ctx context.Context, rid uuid.UUID) (*model.Document, error) {
	row := h.db.Instance.QueryRowContext(
		ctx,
		`SELECT * FROM claim_document($1)`,
		rid,
	)

	doc := &model.Document{}
	err := scanDocument(row, doc)
	if errors.Is(err, sql.ErrNoRows) {
		// Either missing or already processing
		if _, selectErr := h.SelectDocument(ctx, rid); selectErr != nil {
			return nil, selectErr
		}
		return nil, helper.NewError("claim document", fmt.Errorf("%w: %s", model.ErrDocumentProcessing, rid))
	}
	if err != nil {
		return nil, helper.NewError("scan", fmt.Errorf("%w: %w", model.ErrStoreWrite, err))
	}

	return doc, nil
}

// ResetDocument moves a document stuck in processing to failed.
// Any other status fails with model.ErrNotProcessing.
func (h *DocumentsDBHandler) ResetDocument(ctx context.Context, rid uuid.UUID) (*model.Document, error) {
	row := h.db.Instance.QueryRowContext(
		ctx,
		`SELECT * FROM reset_document($1)`,
		rid,
	)

	doc := &model.Document{}
	err := scanDocument(row, doc)
	if errors.Is(err, sql.ErrNoRows) {
		current, selectErr := h.SelectDocument(ctx, rid)
		if selectErr != nil {
			return nil, selectErr
		}
		return nil, helper.NewError("reset document", fmt.Errorf("%w: %s is %s", model.ErrNotProcessing, rid, current.Status))
	}
	if err != nil {
		return nil, helper.NewError("scan", fmt.Errorf("%w: %w", model.ErrStoreWrite, err))
	}

	h.db.Logger.Info("Reset document", "rid", rid.String())

	return doc, nil
}

// DeleteDocument deletes a document by RID, its chunks are removed by cascade
func (h *DocumentsDBHandler) DeleteDocument(ctx context.Context, rid uuid.UUID) error {
	var deleted int
	err := h.db.Instance.QueryRowContext(
		ctx,
		`SELECT delete_document($1)`,
		rid,
	).Scan(&deleted)
	if err != nil {
		return helper.NewError("exec", fmt.Errorf("%w: %w", model.ErrStoreWrite, err))
	}
	if deleted == 0 {
		return helper.NewError("delete document", fmt.Errorf("%w: %s", model.ErrDocumentNotFound, rid))
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDocument(row scanner, doc *model.Document) error {
	return row.Scan(
		&doc.ID,
		&doc.RID,
		&doc.OwnerID,
		&doc.Title,
		&doc.SourceKind,
		&doc.StorageLocation,
		&doc.MimeType,
		&doc.Status,
		&doc.Metadata,
		&doc.CreatedAt,
		&doc.UpdatedAt,
	)
}
