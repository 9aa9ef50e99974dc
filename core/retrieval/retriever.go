// Package retrieval answers questions against a user's stored chunks.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/siherrmann/vaultrag/core/pipeline"
	"github.com/siherrmann/vaultrag/core/store"
	"github.com/siherrmann/vaultrag/helper"
	"github.com/siherrmann/vaultrag/model"
)

// Retriever embeds a query and searches the owner's chunks.
// Owner scoping is checked here as well as in the store.
type Retriever struct {
	store store.VectorStore
	embed pipeline.EmbedFunc
	log   *slog.Logger
}

// NewRetriever creates a retriever. A nil logger uses an info level pretty logger.
func NewRetriever(st store.VectorStore, embed pipeline.EmbedFunc, logger *slog.Logger) (*Retriever, error) {
	if st == nil {
		return nil, helper.NewError("retriever", fmt.Errorf("store is nil"))
	}
	if embed == nil {
		return nil, helper.NewError("retriever", fmt.Errorf("embedder is nil"))
	}
	if logger == nil {
		logger = helper.NewLogger(slog.LevelInfo)
	}

	return &Retriever{
		store: st,
		embed: embed,
		log:   logger,
	}, nil
}

// Search returns the owner's chunks most similar to query, best first.
// A nil config uses model.DefaultQueryConfig. An empty result is not an error,
// a failing embedder or store is reported as model.ErrRetrieval.
func (r *Retriever) Search(ctx context.Context, query string, ownerID uuid.UUID, config *model.QueryConfig) ([]*model.RetrievalResult, error) {
	cfg, err := normalizeConfig(config)
	if err != nil {
		return nil, helper.NewError("search", err)
	}
	if ownerID == uuid.Nil {
		return nil, helper.NewError("search", fmt.Errorf("%w: owner id is required", model.ErrInvalidQuery))
	}
	if strings.TrimSpace(query) == "" {
		return nil, helper.NewError("search", fmt.Errorf("%w: query is empty", model.ErrInvalidQuery))
	}

	start := time.Now()

	embedding, err := r.embed(ctx, query)
	if err != nil {
		r.log.Error("Failed to embed query", slog.String("owner_id", ownerID.String()), slog.Any("error", err))
		return nil, helper.NewError("embed query", fmt.Errorf("%w: %w", model.ErrRetrieval, err))
	}

	results, err := r.store.NearestNeighbors(ctx, &model.NeighborQuery{
		OwnerID:             ownerID,
		DocumentRIDs:        cfg.DocumentRIDs,
		Embedding:           embedding,
		SimilarityThreshold: cfg.SimilarityThreshold,
		Limit:               cfg.TopK,
	})
	if err != nil {
		if !errors.Is(err, model.ErrStoreQuery) {
			err = fmt.Errorf("%w: %w", model.ErrStoreQuery, err)
		}
		r.log.Error("Nearest neighbor query failed", slog.String("owner_id", ownerID.String()), slog.Any("error", err))
		return nil, helper.NewError("nearest neighbors", fmt.Errorf("%w: %w", model.ErrRetrieval, err))
	}

	results = filterResults(results, ownerID, cfg)

	r.log.Debug(
		"Searched chunks",
		slog.String("owner_id", ownerID.String()),
		slog.Int("results", len(results)),
		slog.Int("top_k", cfg.TopK),
		slog.Duration("duration", time.Since(start)),
	)

	return results, nil
}

// SearchContext searches and assembles the numbered context block in one step.
func (r *Retriever) SearchContext(ctx context.Context, query string, ownerID uuid.UUID, config *model.QueryConfig) (*model.ContextBlock, error) {
	results, err := r.Search(ctx, query, ownerID, config)
	if err != nil {
		return nil, err
	}

	maxChars := model.DefaultContextChars
	if config != nil && config.ContextChars > 0 {
		maxChars = config.ContextChars
	}
	return BuildContext(results, maxChars), nil
}

func normalizeConfig(config *model.QueryConfig) (model.QueryConfig, error) {
	cfg := model.DefaultQueryConfig()
	if config != nil {
		cfg = *config
	}

	if cfg.TopK <= 0 {
		cfg.TopK = model.DefaultTopK
	}
	if cfg.SimilarityThreshold == 0 {
		cfg.SimilarityThreshold = model.DefaultSimilarityThreshold
	}
	if cfg.TopK > model.MaxTopK {
		return cfg, fmt.Errorf("%w: top_k %d exceeds %d", model.ErrInvalidQuery, cfg.TopK, model.MaxTopK)
	}
	if cfg.SimilarityThreshold < -1 || cfg.SimilarityThreshold > 1 {
		return cfg, fmt.Errorf("%w: similarity threshold %v outside [-1, 1]", model.ErrInvalidQuery, cfg.SimilarityThreshold)
	}

	return cfg, nil
}

// filterResults drops anything the store should not have returned,
// then orders by score and caps at TopK.
func filterResults(results []*model.RetrievalResult, ownerID uuid.UUID, cfg model.QueryConfig) []*model.RetrievalResult {
	scope := make(map[uuid.UUID]bool, len(cfg.DocumentRIDs))
	for _, rid := range cfg.DocumentRIDs {
		scope[rid] = true
	}

	filtered := make([]*model.RetrievalResult, 0, len(results))
	for _, result := range results {
		if result == nil || result.Chunk == nil {
			continue
		}
		if result.Chunk.OwnerID != ownerID {
			continue
		}
		if len(scope) > 0 && !scope[result.Chunk.DocumentRID] {
			continue
		}
		if result.Score < cfg.SimilarityThreshold {
			continue
		}
		filtered = append(filtered, result)
	}

	store.RankResults(filtered)
	if len(filtered) > cfg.TopK {
		filtered = filtered[:cfg.TopK]
	}
	return filtered
}
