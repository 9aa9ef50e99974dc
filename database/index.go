package database

import (
	"context"
	"fmt"
	"time"

	"github.com/siherrmann/vaultrag/helper"
)

const (
	IndexHNSW    = "hnsw"
	IndexIVFFlat = "ivfflat"
)

// IndexParams tunes the vector index. Zero values fall back to pgvector's defaults.
type IndexParams struct {
	// HNSW
	M              int `yaml:"m"`
	EFConstruction int `yaml:"ef_construction"`
	// IVFFlat
	Lists int `yaml:"lists"`
}

// ChangeIndexType rebuilds the embedding index as HNSW or IVFFlat.
// IVFFlat builds its lists from existing rows, so create it after bulk ingestion.
func (h *ChunksDBHandler) ChangeIndexType(ctx context.Context, indexType string, params IndexParams) error {
	ctx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	var createIndexSQL string

	switch indexType {
	case IndexHNSW:
		m := 16
		efConstruction := 64
		if params.M > 0 {
			m = params.M
		}
		if params.EFConstruction > 0 {
			efConstruction = params.EFConstruction
		}

		createIndexSQL = fmt.Sprintf(
			`CREATE INDEX idx_chunks_embedding ON chunks USING hnsw (embedding vector_cosine_ops) WITH (m = %d, ef_construction = %d);`,
			m, efConstruction,
		)

	case IndexIVFFlat:
		lists := 100
		if params.Lists > 0 {
			lists = params.Lists
		}

		createIndexSQL = fmt.Sprintf(
			`CREATE INDEX idx_chunks_embedding ON chunks USING ivfflat (embedding vector_cosine_ops) WITH (lists = %d);`,
			lists,
		)

	default:
		return helper.NewError("change index type", fmt.Errorf("unsupported index type: %s (use 'hnsw' or 'ivfflat')", indexType))
	}

	tx, err := h.db.Instance.BeginTx(ctx, nil)
	if err != nil {
		return helper.NewError("begin transaction", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `DROP INDEX IF EXISTS idx_chunks_embedding;`)
	if err != nil {
		return helper.NewError("drop index", err)
	}

	_, err = tx.ExecContext(ctx, createIndexSQL)
	if err != nil {
		return helper.NewError("create index", err)
	}

	err = tx.Commit()
	if err != nil {
		return helper.NewError("commit", err)
	}

	h.db.Logger.Info("Changed vector index", "type", indexType, "m", params.M, "ef_construction", params.EFConstruction, "lists", params.Lists)

	return nil
}
