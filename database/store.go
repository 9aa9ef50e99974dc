package database

import (
	"github.com/siherrmann/vaultrag/core/store"
	"github.com/siherrmann/vaultrag/helper"
	loadSql "github.com/siherrmann/vaultrag/sql"
)

// Store is the postgres + pgvector implementation of store.Store
type Store struct {
	*DocumentsDBHandler
	*ChunksDBHandler
	DB *helper.Database
}

var _ store.Store = (*Store)(nil)

// NewStore initializes extensions, functions and tables and returns the store.
// Documents are created first since chunks reference them.
func NewStore(db *helper.Database, embeddingDim int, force bool) (*Store, error) {
	err := loadSql.Init(db.Instance)
	if err != nil {
		return nil, helper.NewError("initialize database extensions", err)
	}

	documents, err := NewDocumentsDBHandler(db, force)
	if err != nil {
		return nil, helper.NewError("create documents handler", err)
	}

	chunks, err := NewChunksDBHandler(db, embeddingDim, force)
	if err != nil {
		return nil, helper.NewError("create chunks handler", err)
	}

	return &Store{
		DocumentsDBHandler: documents,
		ChunksDBHandler:    chunks,
		DB:                 db,
	}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.DB.Close()
}
