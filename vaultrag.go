// Package vaultrag is the retrieval-augmented generation core of a student
// vault: documents are chunked, embedded and stored per owner, questions are
// answered from the owner's most similar chunks.
package vaultrag

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/siherrmann/vaultrag/core/extract"
	"github.com/siherrmann/vaultrag/core/ingestion"
	"github.com/siherrmann/vaultrag/core/pipeline"
	"github.com/siherrmann/vaultrag/core/retrieval"
	"github.com/siherrmann/vaultrag/core/store"
	"github.com/siherrmann/vaultrag/database"
	"github.com/siherrmann/vaultrag/helper"
	"github.com/siherrmann/vaultrag/model"
)

// VaultRAG wires a store, a chunking and embedding pipeline, ingestion and retrieval.
type VaultRAG struct {
	DB        *helper.Database // Only set for the postgres store
	Store     store.Store
	Extractor *extract.Registry
	Pipeline  *pipeline.Pipeline
	Ingestion *ingestion.Pipeline
	Retriever *retrieval.Retriever

	ingestConfig model.IngestConfig
	log          *slog.Logger
}

// NewVaultRAG creates a VaultRAG backed by postgres with pgvector
func NewVaultRAG(config *helper.DatabaseConfiguration, embeddingDim int) (*VaultRAG, error) {
	logger := helper.NewLogger(slog.LevelInfo)

	db := helper.NewDatabase("vaultrag", config, logger)

	// force=false to not reload if functions already exist
	st, err := database.NewStore(db, embeddingDim, false)
	if err != nil {
		return nil, helper.NewError("create postgres store", err)
	}

	v := NewWithStore(st, logger)
	v.DB = db
	return v, nil
}

// NewWithStore creates a VaultRAG on any store.Store, for example memory.Store or sqlite.Store.
// A nil logger uses an info level pretty logger.
func NewWithStore(st store.Store, logger *slog.Logger) *VaultRAG {
	if logger == nil {
		logger = helper.NewLogger(slog.LevelInfo)
	}
	return &VaultRAG{
		Store:        st,
		Extractor:    extract.NewDefaultRegistry(),
		ingestConfig: model.DefaultIngestConfig(),
		log:          logger,
	}
}

// Close closes the underlying store
func (v *VaultRAG) Close() error {
	if v.Store != nil {
		return v.Store.Close()
	}
	return nil
}

// SetIngestConfig changes throughput settings. It applies to the next SetPipeline call.
func (v *VaultRAG) SetIngestConfig(config model.IngestConfig) {
	v.ingestConfig = config.WithDefaults()
}

// SetPipeline sets the chunking and embedding pipeline and rebuilds ingestion and retrieval on it.
func (v *VaultRAG) SetPipeline(p *pipeline.Pipeline) error {
	ingest, err := ingestion.NewPipeline(v.Store, p, v.Extractor, v.ingestConfig, v.log)
	if err != nil {
		return helper.NewError("set pipeline", err)
	}

	retriever, err := retrieval.NewRetriever(v.Store, p.Embedder, v.log)
	if err != nil {
		return helper.NewError("set pipeline", err)
	}

	v.Pipeline = p
	v.Ingestion = ingest
	v.Retriever = retriever
	return nil
}

// UseDefaultPipeline sets up window chunking and the local all-MiniLM-L6-v2 embedder.
// Embeddings are cached for an hour and checked to have 384 dimensions. Chunks and
// queries longer than the model's token limit fail with model.ErrInputTooLarge.
func (v *VaultRAG) UseDefaultPipeline() error {
	embedder, err := pipeline.DefaultEmbedder()
	if err != nil {
		return helper.NewError("create default embedder", err)
	}

	embed := pipeline.Chain(
		embedder,
		pipeline.WithCache(pipeline.DefaultModelName, time.Hour),
		pipeline.WithDimension(pipeline.DefaultDimension),
	)

	return v.SetPipeline(pipeline.NewPipeline(pipeline.WindowChunker(v.ingestConfig.MaxChunkChars), embed))
}

// AddDocument inserts a pending document without ingesting it
func (v *VaultRAG) AddDocument(ctx context.Context, doc *model.Document) error {
	err := v.Store.InsertDocument(ctx, doc)
	if err != nil {
		return helper.NewError("insert document", err)
	}

	v.log.Info("Inserted document", slog.String("document_rid", doc.RID.String()), slog.String("title", doc.Title))
	return nil
}

// IngestDocument inserts doc and ingests text as its content.
// The text itself is not stored on the document, only in its chunks.
func (v *VaultRAG) IngestDocument(ctx context.Context, doc *model.Document, text string) (*model.IngestionReport, error) {
	if v.Ingestion == nil {
		return nil, helper.NewError("ingest document", fmt.Errorf("pipeline not set, use SetPipeline() first"))
	}

	err := v.AddDocument(ctx, doc)
	if err != nil {
		return nil, err
	}

	return v.Ingestion.Ingest(ctx, doc.RID, text)
}

// IngestFile reads a file, inserts it as a document of ownerID and ingests its extracted text.
func (v *VaultRAG) IngestFile(ctx context.Context, filePath string, ownerID uuid.UUID, metadata model.Metadata) (*model.Document, *model.IngestionReport, error) {
	if v.Ingestion == nil {
		return nil, nil, helper.NewError("ingest file", fmt.Errorf("pipeline not set, use SetPipeline() first"))
	}

	doc, err := model.NewDocumentFromFile(filePath, ownerID, metadata)
	if err != nil {
		return nil, nil, helper.NewError("read file", err)
	}
	if !v.Extractor.Supports(doc.MimeType) {
		return nil, nil, helper.NewError("ingest file", fmt.Errorf("%w: %s", model.ErrUnsupportedFormat, doc.MimeType))
	}

	err = v.AddDocument(ctx, doc)
	if err != nil {
		return nil, nil, err
	}

	report, err := v.Ingestion.IngestFile(ctx, doc.RID, doc.Data, doc.MimeType)
	doc.Data = nil
	return doc, report, err
}

// Reingest replaces the chunks of an existing document with chunks of text
func (v *VaultRAG) Reingest(ctx context.Context, documentRID uuid.UUID, text string) (*model.IngestionReport, error) {
	if v.Ingestion == nil {
		return nil, helper.NewError("reingest document", fmt.Errorf("pipeline not set, use SetPipeline() first"))
	}
	return v.Ingestion.Ingest(ctx, documentRID, text)
}

// Search returns the owner's chunks most similar to query
func (v *VaultRAG) Search(ctx context.Context, query string, ownerID uuid.UUID, config *model.QueryConfig) ([]*model.RetrievalResult, error) {
	if v.Retriever == nil {
		return nil, helper.NewError("search", fmt.Errorf("pipeline with embedder not set, use SetPipeline() first"))
	}
	return v.Retriever.Search(ctx, query, ownerID, config)
}

// DocumentScopedSearch searches only within the given documents of the owner
func (v *VaultRAG) DocumentScopedSearch(ctx context.Context, query string, ownerID uuid.UUID, documentRIDs []uuid.UUID, config *model.QueryConfig) ([]*model.RetrievalResult, error) {
	if len(documentRIDs) == 0 {
		return nil, helper.NewError("document scoped search", fmt.Errorf("%w: at least one document RID must be provided", model.ErrInvalidQuery))
	}

	scoped := model.DefaultQueryConfig()
	if config != nil {
		scoped = *config
	}
	scoped.DocumentRIDs = documentRIDs

	return v.Search(ctx, query, ownerID, &scoped)
}

// BuildPrompt searches and returns the system prompt with the numbered context block
func (v *VaultRAG) BuildPrompt(ctx context.Context, query string, ownerID uuid.UUID, config *model.QueryConfig) (string, *model.ContextBlock, error) {
	if v.Retriever == nil {
		return "", nil, helper.NewError("build prompt", fmt.Errorf("pipeline with embedder not set, use SetPipeline() first"))
	}

	block, err := v.Retriever.SearchContext(ctx, query, ownerID, config)
	if err != nil {
		return "", nil, err
	}
	return retrieval.SystemPrompt(block), block, nil
}

// GetDocument returns a document of the owner.
// Documents of other owners are reported as not found.
func (v *VaultRAG) GetDocument(ctx context.Context, ownerID uuid.UUID, documentRID uuid.UUID) (*model.Document, error) {
	doc, err := v.Store.SelectDocument(ctx, documentRID)
	if err != nil {
		return nil, helper.NewError("select document", err)
	}
	if doc.OwnerID != ownerID {
		return nil, helper.NewError("select document", fmt.Errorf("%w: %s", model.ErrDocumentNotFound, documentRID))
	}
	return doc, nil
}

// ListDocuments returns the owner's documents with their ingestion status
func (v *VaultRAG) ListDocuments(ctx context.Context, ownerID uuid.UUID) ([]*model.Document, error) {
	docs, err := v.Store.SelectDocumentsByOwner(ctx, ownerID)
	if err != nil {
		return nil, helper.NewError("select documents", err)
	}
	return docs, nil
}

// DeleteDocument deletes a document of the owner together with its chunks
func (v *VaultRAG) DeleteDocument(ctx context.Context, ownerID uuid.UUID, documentRID uuid.UUID) error {
	_, err := v.GetDocument(ctx, ownerID, documentRID)
	if err != nil {
		return err
	}

	err = v.Store.DeleteDocument(ctx, documentRID)
	if err != nil {
		return helper.NewError("delete document", err)
	}

	v.log.Info("Deleted document", slog.String("document_rid", documentRID.String()))
	return nil
}

// ResetDocument marks a document of the owner that is stuck in processing as failed,
// for example after the process ingesting it crashed. It can then be ingested again.
func (v *VaultRAG) ResetDocument(ctx context.Context, ownerID uuid.UUID, documentRID uuid.UUID) (*model.Document, error) {
	_, err := v.GetDocument(ctx, ownerID, documentRID)
	if err != nil {
		return nil, err
	}

	doc, err := v.Store.ResetDocument(ctx, documentRID)
	if err != nil {
		return nil, helper.NewError("reset document", err)
	}

	v.log.Warn("Reset document stuck in processing", slog.String("document_rid", documentRID.String()))
	return doc, nil
}

// ChangeIndexType changes the vector index type between HNSW and IVFFlat.
// Only the postgres store has a vector index.
func (v *VaultRAG) ChangeIndexType(ctx context.Context, indexType string, params database.IndexParams) error {
	pg, ok := v.Store.(*database.Store)
	if !ok {
		return helper.NewError("change index type", fmt.Errorf("store %T has no vector index", v.Store))
	}
	return pg.ChangeIndexType(ctx, indexType, params)
}
