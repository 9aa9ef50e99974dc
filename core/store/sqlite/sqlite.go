// Package sqlite is a file backed store.Store on modernc.org/sqlite.
// Similarity is computed in process over the owner's chunks.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/siherrmann/vaultrag/core/store"
	"github.com/siherrmann/vaultrag/helper"
	"github.com/siherrmann/vaultrag/model"
	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

const documentColumns = `id, rid, owner_id, title, source_kind, storage_location, mime_type, status, metadata, created_at, updated_at`

const chunkColumns = `id, rid, document_id, document_rid, owner_id, content, embedding, chunk_index, start_pos, end_pos, metadata, created_at`

// Store implements store.Store on a single sqlite file
type Store struct {
	db        *sql.DB
	path      string
	dimension int
	logger    *slog.Logger
}

var _ store.Store = (*Store)(nil)

// NewStore opens (or creates) the database at path.
// The dimension is recorded on first use; reopening with another dimension fails.
func NewStore(path string, dimension int, logger *slog.Logger) (*Store, error) {
	if dimension <= 0 {
		return nil, helper.NewError("sqlite store", fmt.Errorf("embedding dimension must be positive, got %d", dimension))
	}
	if logger == nil {
		logger = helper.NewLogger(slog.LevelInfo)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, helper.NewError("open sqlite", err)
	}
	if path == ":memory:" {
		// Every connection would get its own database
		db.SetMaxOpenConns(1)
	}

	s := &Store{
		db:        db,
		path:      path,
		dimension: dimension,
		logger:    logger,
	}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("Opened sqlite store", slog.String("path", path), slog.Int("dimension", dimension))

	return s, nil
}

func (s *Store) migrate() error {
	if _, err := s.db.Exec(schemaSQL); err != nil {
		return helper.NewError("migrate sqlite", err)
	}

	var stored string
	err := s.db.QueryRow(`SELECT value FROM settings WHERE key = 'dimension'`).Scan(&stored)
	if errors.Is(err, sql.ErrNoRows) {
		_, err = s.db.Exec(`INSERT INTO settings (key, value) VALUES ('dimension', ?)`, strconv.Itoa(s.dimension))
		if err != nil {
			return helper.NewError("store dimension", err)
		}
		return nil
	}
	if err != nil {
		return helper.NewError("read dimension", err)
	}
	if stored != strconv.Itoa(s.dimension) {
		return helper.NewError("open sqlite", fmt.Errorf("%w: database uses %s, got %d", model.ErrDimensionMismatch, stored, s.dimension))
	}
	return nil
}

func (s *Store) InsertDocument(ctx context.Context, doc *model.Document) error {
	if doc.OwnerID == uuid.Nil {
		return helper.NewError("insert document", fmt.Errorf("%w: owner id is required", model.ErrStoreWrite))
	}
	if doc.SourceKind == "" {
		doc.SourceKind = model.SourceFile
	}

	now := time.Now().UTC()
	row := s.db.QueryRowContext(
		ctx,
		`INSERT INTO documents (rid, owner_id, title, source_kind, storage_location, mime_type, status, metadata, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING `+documentColumns,
		uuid.New().String(),
		doc.OwnerID.String(),
		doc.Title,
		string(doc.SourceKind),
		doc.StorageLocation,
		doc.MimeType,
		string(model.StatusPending),
		doc.Metadata,
		now.UnixNano(),
		now.UnixNano(),
	)

	if err := scanDocument(row, doc); err != nil {
		return helper.NewError("insert document", fmt.Errorf("%w: %w", model.ErrStoreWrite, err))
	}
	return nil
}

func (s *Store) SelectDocument(ctx context.Context, rid uuid.UUID) (*model.Document, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM documents WHERE rid = ?`, rid.String())

	doc := &model.Document{}
	err := scanDocument(row, doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, helper.NewError("select document", fmt.Errorf("%w: %s", model.ErrDocumentNotFound, rid))
	}
	if err != nil {
		return nil, helper.NewError("select document", fmt.Errorf("%w: %w", model.ErrStoreQuery, err))
	}
	return doc, nil
}

func (s *Store) SelectDocumentsByOwner(ctx context.Context, ownerID uuid.UUID) ([]*model.Document, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+documentColumns+` FROM documents WHERE owner_id = ? ORDER BY created_at DESC, id DESC`,
		ownerID.String(),
	)
	if err != nil {
		return nil, helper.NewError("query", fmt.Errorf("%w: %w", model.ErrStoreQuery, err))
	}
	defer rows.Close()

	var documents []*model.Document
	for rows.Next() {
		doc := &model.Document{}
		if err := scanDocument(rows, doc); err != nil {
			return nil, helper.NewError("scan", fmt.Errorf("%w: %w", model.ErrStoreQuery, err))
		}
		documents = append(documents, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, helper.NewError("rows error", fmt.Errorf("%w: %w", model.ErrStoreQuery, err))
	}
	return documents, nil
}

func (s *Store) UpdateDocumentStatus(ctx context.Context, rid uuid.UUID, status model.DocumentStatus) error {
	if !status.Valid() {
		return helper.NewError("update document status", fmt.Errorf("%w: invalid status %q", model.ErrStoreWrite, status))
	}

	res, err := s.db.ExecContext(
		ctx,
		`UPDATE documents SET status = ?, updated_at = ? WHERE rid = ?`,
		string(status), time.Now().UTC().UnixNano(), rid.String(),
	)
	if err != nil {
		return helper.NewError("update document status", fmt.Errorf("%w: %w", model.ErrStoreWrite, err))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return helper.NewError("update document status", fmt.Errorf("%w: %s", model.ErrDocumentNotFound, rid))
	}
	return nil
}

func (s *Store) ClaimDocument(ctx context.Context, rid uuid.UUID) (*model.Document, error) {
	row := s.db.QueryRowContext(
		ctx,
		`UPDATE documents SET status = 'processing', updated_at = ?
		WHERE rid = ? AND status <> 'processing'
		RETURNING `+documentColumns,
		time.Now().UTC().UnixNano(), rid.String(),
	)

	doc := &model.Document{}
	err := scanDocument(row, doc)
	if errors.Is(err, sql.ErrNoRows) {
		if _, selectErr := s.SelectDocument(ctx, rid); selectErr != nil {
			return nil, selectErr
		}
		return nil, helper.NewError("claim document", fmt.Errorf("%w: %s", model.ErrDocumentProcessing, rid))
	}
	if err != nil {
		return nil, helper.NewError("claim document", fmt.Errorf("%w: %w", model.ErrStoreWrite, err))
	}
	return doc, nil
}

func (s *Store) ResetDocument(ctx context.Context, rid uuid.UUID) (*model.Document, error) {
	row := s.db.QueryRowContext(
		ctx,
		`UPDATE documents SET status = 'failed', updated_at = ?
		WHERE rid = ? AND status = 'processing'
		RETURNING `+documentColumns,
		time.Now().UTC().UnixNano(), rid.String(),
	)

	doc := &model.Document{}
	err := scanDocument(row, doc)
	if errors.Is(err, sql.ErrNoRows) {
		current, selectErr := s.SelectDocument(ctx, rid)
		if selectErr != nil {
			return nil, selectErr
		}
		return nil, helper.NewError("reset document", fmt.Errorf("%w: %s is %s", model.ErrNotProcessing, rid, current.Status))
	}
	if err != nil {
		return nil, helper.NewError("reset document", fmt.Errorf("%w: %w", model.ErrStoreWrite, err))
	}
	return doc, nil
}

// DeleteDocument deletes the document, foreign keys cascade to its chunks
func (s *Store) DeleteDocument(ctx context.Context, rid uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE rid = ?`, rid.String())
	if err != nil {
		return helper.NewError("delete document", fmt.Errorf("%w: %w", model.ErrStoreWrite, err))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return helper.NewError("delete document", fmt.Errorf("%w: %s", model.ErrDocumentNotFound, rid))
	}
	return nil
}

func (s *Store) InsertChunk(ctx context.Context, chunk *model.Chunk) error {
	if len(chunk.Embedding) != s.dimension {
		return helper.NewError("insert chunk", fmt.Errorf("%w: %w: got %d, want %d", model.ErrStoreWrite, model.ErrDimensionMismatch, len(chunk.Embedding), s.dimension))
	}

	row := s.db.QueryRowContext(
		ctx,
		`INSERT INTO chunks (rid, document_id, document_rid, owner_id, content, embedding, chunk_index, start_pos, end_pos, metadata, created_at)
		SELECT ?, d.id, d.rid, d.owner_id, ?, ?, ?, ?, ?, ?, ?
		FROM documents d WHERE d.rid = ?
		RETURNING `+chunkColumns,
		uuid.New().String(),
		chunk.Content,
		encodeEmbedding(chunk.Embedding),
		chunk.ChunkIndex,
		chunk.StartPos,
		chunk.EndPos,
		chunk.Metadata,
		time.Now().UTC().UnixNano(),
		chunk.DocumentRID.String(),
	)

	err := scanChunk(row, chunk)
	if errors.Is(err, sql.ErrNoRows) {
		return helper.NewError("insert chunk", fmt.Errorf("%w: %w: %s", model.ErrStoreWrite, model.ErrDocumentNotFound, chunk.DocumentRID))
	}
	if err != nil {
		return helper.NewError("insert chunk", fmt.Errorf("%w: %w", model.ErrStoreWrite, err))
	}
	return nil
}

func (s *Store) SelectChunksByDocument(ctx context.Context, documentRID uuid.UUID) ([]*model.Chunk, error) {
	return s.selectChunks(ctx, `SELECT `+chunkColumns+` FROM chunks WHERE document_rid = ? ORDER BY chunk_index`, documentRID.String())
}

func (s *Store) DeleteChunksByDocument(ctx context.Context, documentRID uuid.UUID) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM chunks WHERE document_rid = ?`, documentRID.String())
	if err != nil {
		return helper.NewError("delete chunks", fmt.Errorf("%w: %w", model.ErrStoreWrite, err))
	}
	return nil
}

// NearestNeighbors loads the owner's candidate chunks and ranks them in process
func (s *Store) NearestNeighbors(ctx context.Context, query *model.NeighborQuery) ([]*model.RetrievalResult, error) {
	if len(query.Embedding) != s.dimension {
		return nil, helper.NewError("nearest neighbors", fmt.Errorf("%w: %w: got %d, want %d", model.ErrStoreQuery, model.ErrDimensionMismatch, len(query.Embedding), s.dimension))
	}

	stmt := `SELECT ` + chunkColumns + ` FROM chunks WHERE owner_id = ?`
	args := []any{query.OwnerID.String()}
	if len(query.DocumentRIDs) > 0 {
		placeholders := make([]string, len(query.DocumentRIDs))
		for i, rid := range query.DocumentRIDs {
			placeholders[i] = "?"
			args = append(args, rid.String())
		}
		stmt += ` AND document_rid IN (` + strings.Join(placeholders, ", ") + `)`
	}

	chunks, err := s.selectChunks(ctx, stmt, args...)
	if err != nil {
		return nil, err
	}

	var results []*model.RetrievalResult
	for _, chunk := range chunks {
		score := store.CosineSimilarity(query.Embedding, chunk.Embedding)
		if score < query.SimilarityThreshold {
			continue
		}
		results = append(results, &model.RetrievalResult{Chunk: chunk, Score: score})
	}

	store.RankResults(results)
	if query.Limit >= 0 && len(results) > query.Limit {
		results = results[:query.Limit]
	}
	return results, nil
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) selectChunks(ctx context.Context, stmt string, args ...any) ([]*model.Chunk, error) {
	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, helper.NewError("query", fmt.Errorf("%w: %w", model.ErrStoreQuery, err))
	}
	defer rows.Close()

	var chunks []*model.Chunk
	for rows.Next() {
		chunk := &model.Chunk{}
		if err := scanChunk(rows, chunk); err != nil {
			return nil, helper.NewError("scan", fmt.Errorf("%w: %w", model.ErrStoreQuery, err))
		}
		chunks = append(chunks, chunk)
	}
	if err := rows.Err(); err != nil {
		return nil, helper.NewError("rows error", fmt.Errorf("%w: %w", model.ErrStoreQuery, err))
	}
	return chunks, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDocument(row scanner, doc *model.Document) error {
	var rid, ownerID, sourceKind, status string
	var createdAt, updatedAt int64
	err := row.Scan(
		&doc.ID,
		&rid,
		&ownerID,
		&doc.Title,
		&sourceKind,
		&doc.StorageLocation,
		&doc.MimeType,
		&status,
		&doc.Metadata,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return err
	}

	if doc.RID, err = uuid.Parse(rid); err != nil {
		return err
	}
	if doc.OwnerID, err = uuid.Parse(ownerID); err != nil {
		return err
	}
	doc.SourceKind = model.SourceKind(sourceKind)
	doc.Status = model.DocumentStatus(status)
	doc.CreatedAt = time.Unix(0, createdAt).UTC()
	doc.UpdatedAt = time.Unix(0, updatedAt).UTC()
	return nil
}

func scanChunk(row scanner, chunk *model.Chunk) error {
	var rid, documentRID, ownerID string
	var embedding []byte
	var createdAt int64
	err := row.Scan(
		&chunk.ID,
		&rid,
		&chunk.DocumentID,
		&documentRID,
		&ownerID,
		&chunk.Content,
		&embedding,
		&chunk.ChunkIndex,
		&chunk.StartPos,
		&chunk.EndPos,
		&chunk.Metadata,
		&createdAt,
	)
	if err != nil {
		return err
	}

	if chunk.RID, err = uuid.Parse(rid); err != nil {
		return err
	}
	if chunk.DocumentRID, err = uuid.Parse(documentRID); err != nil {
		return err
	}
	if chunk.OwnerID, err = uuid.Parse(ownerID); err != nil {
		return err
	}
	if chunk.Embedding, err = decodeEmbedding(embedding); err != nil {
		return err
	}
	chunk.CreatedAt = time.Unix(0, createdAt).UTC()
	return nil
}

// encodeEmbedding stores a vector as little endian float32s
func encodeEmbedding(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(f))
	}
	return buf
}

func decodeEmbedding(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("embedding blob has invalid length %d", len(b))
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return v, nil
}
