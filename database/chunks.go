package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
	"github.com/siherrmann/vaultrag/helper"
	"github.com/siherrmann/vaultrag/model"
	loadSql "github.com/siherrmann/vaultrag/sql"
)

// ChunksDBHandlerFunctions defines the interface for Chunks database operations.
type ChunksDBHandlerFunctions interface {
	InsertChunk(ctx context.Context, chunk *model.Chunk) error
	SelectChunksByDocument(ctx context.Context, documentRID uuid.UUID) ([]*model.Chunk, error)
	DeleteChunksByDocument(ctx context.Context, documentRID uuid.UUID) error
	NearestNeighbors(ctx context.Context, query *model.NeighborQuery) ([]*model.RetrievalResult, error)
}

// ChunksDBHandler handles chunk-related database operations
type ChunksDBHandler struct {
	db        *helper.Database
	dimension int
}

// NewChunksDBHandler creates a new chunks database handler.
// The documents table has to exist already, chunks reference it.
// If force is true, it will reload the SQL functions even if they already exist.
func NewChunksDBHandler(db *helper.Database, embeddingDim int, force bool) (*ChunksDBHandler, error) {
	if db == nil {
		return nil, helper.NewError("database connection validation", fmt.Errorf("database connection is nil"))
	}
	if embeddingDim <= 0 {
		return nil, helper.NewError("embedding dimension validation", fmt.Errorf("embedding dimension must be positive, got %d", embeddingDim))
	}

	chunksDbHandler := &ChunksDBHandler{
		db:        db,
		dimension: embeddingDim,
	}

	err := loadSql.LoadChunksSql(chunksDbHandler.db.Instance, force)
	if err != nil {
		return nil, helper.NewError("load chunks sql", err)
	}

	err = chunksDbHandler.CreateTable()
	if err != nil {
		return nil, helper.NewError("create table", err)
	}

	db.Logger.Info("Initialized ChunksDBHandler", "dimension", embeddingDim)

	return chunksDbHandler, nil
}

// CreateTable creates the 'chunks' table with the configured vector dimension.
// If the table already exists, it does not create it again, but its
// embedding column has to have the configured dimension.
func (h *ChunksDBHandler) CreateTable() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := h.db.Instance.ExecContext(ctx, `SELECT init_chunks($1);`, h.dimension)
	if err != nil {
		log.Panicf("error initializing chunks table: %#v", err)
	}

	var existing sql.NullInt64
	err = h.db.Instance.QueryRowContext(ctx, `SELECT select_chunks_dimension();`).Scan(&existing)
	if err != nil {
		return fmt.Errorf("%w: %w", model.ErrStoreQuery, err)
	}
	if existing.Valid && int(existing.Int64) != h.dimension {
		return fmt.Errorf("%w: chunks table has vector(%d), configured dimension is %d", model.ErrDimensionMismatch, existing.Int64, h.dimension)
	}

	h.db.Logger.Info("Checked/created table chunks")

	return nil
}

// Dimension returns the embedding dimension of the chunks table
func (h *ChunksDBHandler) Dimension() int {
	return h.dimension
}

// InsertChunk inserts a chunk for chunk.DocumentRID.
// Owner and internal document id are taken from the document, not from the chunk.
func (h *ChunksDBHandler) InsertChunk(ctx context.Context, chunk *model.Chunk) error {
	if len(chunk.Embedding) != h.dimension {
		return helper.NewError("insert chunk", fmt.Errorf("%w: %w: got %d, want %d", model.ErrStoreWrite, model.ErrDimensionMismatch, len(chunk.Embedding), h.dimension))
	}

	row := h.db.Instance.QueryRowContext(
		ctx,
		`SELECT * FROM insert_chunk($1, $2, $3, $4, $5, $6, $7)`,
		chunk.DocumentRID,
		chunk.Content,
		pgvector.NewVector(chunk.Embedding),
		chunk.ChunkIndex,
		chunk.StartPos,
		chunk.EndPos,
		chunk.Metadata,
	)

	err := scanChunk(row, chunk)
	if errors.Is(err, sql.ErrNoRows) {
		return helper.NewError("insert chunk", fmt.Errorf("%w: %w: %s", model.ErrStoreWrite, model.ErrDocumentNotFound, chunk.DocumentRID))
	}
	if err != nil {
		return helper.NewError("scan", fmt.Errorf("%w: %w", model.ErrStoreWrite, err))
	}

	return nil
}

// SelectChunksByDocument retrieves all chunks of a document ordered by chunk index
func (h *ChunksDBHandler) SelectChunksByDocument(ctx context.Context, documentRID uuid.UUID) ([]*model.Chunk, error) {
	rows, err := h.db.Instance.QueryContext(
		ctx,
		`SELECT * FROM select_chunks_by_document($1)`,
		documentRID,
	)
	if err != nil {
		return nil, helper.NewError("query", fmt.Errorf("%w: %w", model.ErrStoreQuery, err))
	}
	defer rows.Close()

	var chunks []*model.Chunk
	for rows.Next() {
		chunk := &model.Chunk{}
		err := scanChunk(rows, chunk)
		if err != nil {
			return nil, helper.NewError("scan", fmt.Errorf("%w: %w", model.ErrStoreQuery, err))
		}

		chunks = append(chunks, chunk)
	}

	err = rows.Err()
	if err != nil {
		return nil, helper.NewError("rows error", fmt.Errorf("%w: %w", model.ErrStoreQuery, err))
	}

	return chunks, nil
}

// DeleteChunksByDocument removes all chunks of a document
func (h *ChunksDBHandler) DeleteChunksByDocument(ctx context.Context, documentRID uuid.UUID) error {
	var deleted int
	err := h.db.Instance.QueryRowContext(
		ctx,
		`SELECT delete_chunks_by_document($1)`,
		documentRID,
	).Scan(&deleted)
	if err != nil {
		return helper.NewError("exec", fmt.Errorf("%w: %w", model.ErrStoreWrite, err))
	}

	h.db.Logger.Debug("Deleted chunks", "document_rid", documentRID.String(), "count", deleted)

	return nil
}

// NearestNeighbors performs the owner scoped cosine similarity search.
// If query.DocumentRIDs is empty, all of the owner's documents are searched.
func (h *ChunksDBHandler) NearestNeighbors(ctx context.Context, query *model.NeighborQuery) ([]*model.RetrievalResult, error) {
	if len(query.Embedding) != h.dimension {
		return nil, helper.NewError("nearest neighbors", fmt.Errorf("%w: %w: got %d, want %d", model.ErrStoreQuery, model.ErrDimensionMismatch, len(query.Embedding), h.dimension))
	}

	var documentRIDsParam interface{}
	if len(query.DocumentRIDs) > 0 {
		rids := make([]string, len(query.DocumentRIDs))
		for i, rid := range query.DocumentRIDs {
			rids[i] = rid.String()
		}
		documentRIDsParam = pq.Array(rids)
	}

	rows, err := h.db.Instance.QueryContext(
		ctx,
		`SELECT * FROM select_chunks_by_similarity($1, $2, $3, $4, $5::uuid[])`,
		query.OwnerID,
		pgvector.NewVector(query.Embedding),
		query.SimilarityThreshold,
		query.Limit,
		documentRIDsParam,
	)
	if err != nil {
		return nil, helper.NewError("query", fmt.Errorf("%w: %w", model.ErrStoreQuery, err))
	}
	defer rows.Close()

	var results []*model.RetrievalResult
	for rows.Next() {
		chunk := &model.Chunk{}
		var similarity float64
		err := scanChunk(rows, chunk, &similarity)
		if err != nil {
			return nil, helper.NewError("scan", fmt.Errorf("%w: %w", model.ErrStoreQuery, err))
		}

		results = append(results, &model.RetrievalResult{
			Chunk: chunk,
			Score: similarity,
			Rank:  len(results) + 1,
		})
	}

	err = rows.Err()
	if err != nil {
		return nil, helper.NewError("rows error", fmt.Errorf("%w: %w", model.ErrStoreQuery, err))
	}

	return results, nil
}

func scanChunk(row scanner, chunk *model.Chunk, extra ...any) error {
	var embedding pgvector.Vector
	dest := []any{
		&chunk.ID,
		&chunk.RID,
		&chunk.DocumentID,
		&chunk.DocumentRID,
		&chunk.OwnerID,
		&chunk.Content,
		&embedding,
		&chunk.ChunkIndex,
		&chunk.StartPos,
		&chunk.EndPos,
		&chunk.Metadata,
		&chunk.CreatedAt,
	}
	dest = append(dest, extra...)

	err := row.Scan(dest...)
	if err != nil {
		return err
	}

	chunk.Embedding = embedding.Slice()
	return nil
}
