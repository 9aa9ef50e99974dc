package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/siherrmann/vaultrag/core/embedding/gemini"
	"github.com/siherrmann/vaultrag/core/embedding/ollama"
	"github.com/siherrmann/vaultrag/core/pipeline"
	"github.com/siherrmann/vaultrag/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "vaultrag.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadConfig(t *testing.T) {
	t.Run("Missing file returns defaults", func(t *testing.T) {
		cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
		require.NoError(t, err)
		assert.Equal(t, DefaultConfig(), cfg)
	})

	t.Run("File overrides only the given values", func(t *testing.T) {
		path := writeConfig(t, `
log_level: debug
store:
  type: postgres
  index_type: hnsw
  index:
    m: 32
embedder:
  type: ollama
  model: mxbai-embed-large
  dimension: 1024
  cache_ttl: 10m
ingest:
  workers: 4
  retry_interval: 250ms
query:
  top_k: 8
`)
		cfg, err := LoadConfig(path)
		require.NoError(t, err)

		assert.Equal(t, "debug", cfg.LogLevel)
		assert.Equal(t, StorePostgres, cfg.Store.Type)
		assert.Equal(t, "hnsw", cfg.Store.IndexType)
		assert.Equal(t, 32, cfg.Store.Index.M)
		assert.Equal(t, EmbedderOllama, cfg.Embedder.Type)
		assert.Equal(t, "mxbai-embed-large", cfg.Embedder.Model)
		assert.Equal(t, 1024, cfg.Embedder.Dimension)
		assert.Equal(t, 10*time.Minute, cfg.Embedder.CacheTTL)

		assert.Equal(t, 4, cfg.Ingest.Workers)
		assert.Equal(t, 250*time.Millisecond, cfg.Ingest.RetryInterval)
		assert.Equal(t, model.DefaultMaxChunkChars, cfg.Ingest.MaxChunkChars, "Expected unset values to keep their default")
		assert.Equal(t, model.DefaultMaxRetries, cfg.Ingest.MaxRetries)

		assert.Equal(t, 8, cfg.Query.TopK)
		assert.Equal(t, model.DefaultSimilarityThreshold, cfg.Query.SimilarityThreshold)
	})

	t.Run("Invalid YAML", func(t *testing.T) {
		_, err := LoadConfig(writeConfig(t, "store: [unclosed"))
		assert.Error(t, err)
	})

	t.Run("Unknown store type", func(t *testing.T) {
		_, err := LoadConfig(writeConfig(t, "store:\n  type: redis\n"))
		assert.ErrorContains(t, err, "unknown store type")
	})

	t.Run("Unknown embedder type", func(t *testing.T) {
		_, err := LoadConfig(writeConfig(t, "embedder:\n  type: word2vec\n"))
		assert.ErrorContains(t, err, "unknown embedder type")
	})

	t.Run("Sqlite store needs a path", func(t *testing.T) {
		_, err := LoadConfig(writeConfig(t, "store:\n  type: sqlite\n  sqlite_path: \"\"\n"))
		assert.ErrorContains(t, err, "sqlite_path")
	})

	t.Run("Unknown log level", func(t *testing.T) {
		_, err := LoadConfig(writeConfig(t, "log_level: loud\n"))
		assert.ErrorContains(t, err, "log level")
	})
}

func TestNewEmbedder(t *testing.T) {
	ctx := context.Background()

	t.Run("OpenAI needs an API key", func(t *testing.T) {
		t.Setenv("OPENAI_API_KEY", "")
		_, err := newEmbedder(ctx, EmbedderConfig{Type: EmbedderOpenAI})
		assert.ErrorIs(t, err, model.ErrEmbeddingAuth)
	})

	t.Run("Gemini needs an API key", func(t *testing.T) {
		t.Setenv("GEMINI_API_KEY", "")
		_, err := newEmbedder(ctx, EmbedderConfig{Type: EmbedderGemini})
		assert.ErrorIs(t, err, model.ErrEmbeddingAuth)
	})

	t.Run("OpenAI with key uses configured model", func(t *testing.T) {
		t.Setenv("OPENAI_API_KEY", "test-key")
		setup, err := newEmbedder(ctx, EmbedderConfig{
			Type:          EmbedderOpenAI,
			Model:         "text-embedding-3-large",
			Dimension:     256,
			MaxInputChars: 500,
		})
		require.NoError(t, err)
		assert.NotNil(t, setup.embed)
		assert.Equal(t, "text-embedding-3-large", setup.model)
		assert.Equal(t, 256, setup.dimension)
		assert.Equal(t, 500, setup.maxInputChars)
	})

	t.Run("Gemini caps input below its silent truncation", func(t *testing.T) {
		t.Setenv("GEMINI_API_KEY", "test-key")
		setup, err := newEmbedder(ctx, EmbedderConfig{Type: EmbedderGemini})
		require.NoError(t, err)
		assert.Equal(t, gemini.DefaultMaxInputChars, setup.maxInputChars)
	})

	t.Run("Ollama defaults", func(t *testing.T) {
		setup, err := newEmbedder(ctx, EmbedderConfig{Type: EmbedderOllama, BaseURL: "http://localhost:11434"})
		require.NoError(t, err)
		assert.NotNil(t, setup.embed)
		assert.Equal(t, "nomic-embed-text", setup.model)
		assert.Equal(t, 768, setup.dimension)
		assert.Equal(t, ollama.DefaultMaxInputChars, setup.maxInputChars)
	})

	t.Run("Hugot downloads the default model", func(t *testing.T) {
		if testing.Short() {
			t.Skip("skipping model download in short mode")
		}
		setup, err := newEmbedder(ctx, EmbedderConfig{Type: EmbedderHugot})
		require.NoError(t, err)
		assert.NotNil(t, setup.embed)
		assert.Equal(t, pipeline.DefaultModelName, setup.model)
		assert.Equal(t, pipeline.DefaultDimension, setup.dimension)
		assert.Zero(t, setup.maxInputChars, "Expected hugot to count tokens itself")
	})
}

func TestEmbedderDecorators(t *testing.T) {
	ctx := context.Background()

	var calls atomic.Int32
	setup := &embedderSetup{
		embed: func(ctx context.Context, text string) ([]float32, error) {
			calls.Add(1)
			return []float32{1, 0, 0}, nil
		},
		model:         "test-model",
		dimension:     3,
		maxInputChars: 10,
	}

	t.Run("Oversized text never reaches the provider", func(t *testing.T) {
		embed := pipeline.Chain(setup.embed, setup.decorators(time.Hour)...)

		_, err := embed(ctx, "photosynthesis in chloroplasts")
		assert.ErrorIs(t, err, model.ErrInputTooLarge)
		assert.Zero(t, calls.Load())

		_, err = embed(ctx, "osmosis")
		assert.NoError(t, err)
		assert.EqualValues(t, 1, calls.Load())
	})

	t.Run("No cap without a provider limit", func(t *testing.T) {
		local := *setup
		local.maxInputChars = 0
		embed := pipeline.Chain(local.embed, local.decorators(0)...)

		_, err := embed(ctx, strings.Repeat("long ", 100))
		assert.NoError(t, err)
	})
}

func TestOpenVault(t *testing.T) {
	ctx := context.Background()

	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"object": "list",
			"data": [{"object": "embedding", "index": 0, "embedding": [0.6, 0.8, 0]}],
			"model": "text-embedding-3-small",
			"usage": {"prompt_tokens": 3, "total_tokens": 3}
		}`))
	}))
	t.Cleanup(server.Close)

	t.Setenv("OPENAI_API_KEY", "test-key")
	cfg := DefaultConfig()
	cfg.LogLevel = "error"
	cfg.Store = StoreConfig{Type: StoreMemory}
	cfg.Embedder = EmbedderConfig{Type: EmbedderOpenAI, BaseURL: server.URL + "/", Dimension: 3, MaxInputChars: 300}
	cfg.Ingest.MaxChunkChars = 650

	v, err := openVault(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(func() {
		v.Close()
	})
	owner := uuid.New()

	t.Run("Oversized chunk is skipped during ingestion", func(t *testing.T) {
		// The first window ends at the newline and is longer than the cap
		text := strings.Repeat("enzyme ", 90) + "\nEnzymes lower the activation energy of a reaction."
		doc := &model.Document{OwnerID: owner, Title: "Enzymes", SourceKind: model.SourceNote}

		before := requests.Load()
		report, err := v.IngestDocument(ctx, doc, text)
		require.NoError(t, err)
		assert.Equal(t, model.StatusCompleted, report.Status)
		assert.Equal(t, 2, report.ChunksTotal)
		assert.Equal(t, 1, report.ChunksFailed)
		assert.Equal(t, 1, report.ChunksSucceeded)
		assert.EqualValues(t, 1, requests.Load()-before, "Expected only the short chunk to be sent")
	})

	t.Run("Oversized query is rejected before the provider", func(t *testing.T) {
		before := requests.Load()
		_, err := v.Search(ctx, strings.Repeat("enzyme ", 90), owner, nil)
		assert.ErrorIs(t, err, model.ErrInputTooLarge)
		assert.Equal(t, before, requests.Load())
	})

	t.Run("Short query is embedded by the provider", func(t *testing.T) {
		results, err := v.Search(ctx, "what do enzymes do", owner, nil)
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Contains(t, results[0].Chunk.Content, "activation energy")
	})
}

func TestNewStore(t *testing.T) {
	t.Run("Memory store", func(t *testing.T) {
		st, err := newStore(StoreConfig{Type: StoreMemory}, 4, nil)
		require.NoError(t, err)
		assert.NoError(t, st.Close())
	})

	t.Run("Sqlite store in a temp dir", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "vault.db")
		st, err := newStore(StoreConfig{Type: StoreSQLite, SQLitePath: path}, 4, nil)
		require.NoError(t, err)
		assert.NoError(t, st.Close())
		assert.FileExists(t, path)
	})

	t.Run("Unknown store", func(t *testing.T) {
		_, err := newStore(StoreConfig{Type: "redis"}, 4, nil)
		assert.Error(t, err)
	})
}
