package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/siherrmann/vaultrag"
	"github.com/siherrmann/vaultrag/core/embedding/gemini"
	"github.com/siherrmann/vaultrag/core/embedding/ollama"
	"github.com/siherrmann/vaultrag/core/embedding/openai"
	"github.com/siherrmann/vaultrag/core/pipeline"
	"github.com/siherrmann/vaultrag/core/store"
	"github.com/siherrmann/vaultrag/core/store/memory"
	"github.com/siherrmann/vaultrag/core/store/sqlite"
	"github.com/siherrmann/vaultrag/database"
	"github.com/siherrmann/vaultrag/helper"
	"github.com/siherrmann/vaultrag/model"
	"gopkg.in/yaml.v3"
)

const (
	StoreMemory   = "memory"
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"

	EmbedderHugot  = "hugot"
	EmbedderOpenAI = "openai"
	EmbedderGemini = "gemini"
	EmbedderOllama = "ollama"
)

// StoreConfig selects where documents and chunks live.
// Postgres connection settings come from the DB_* environment variables.
type StoreConfig struct {
	Type       string               `yaml:"type"`
	SQLitePath string               `yaml:"sqlite_path"`
	IndexType  string               `yaml:"index_type"`
	Index      database.IndexParams `yaml:"index"`
}

// EmbedderConfig selects the embedding model. API keys are read from
// OPENAI_API_KEY and GEMINI_API_KEY, never from the file.
// A zero CacheTTL disables the embedding cache.
type EmbedderConfig struct {
	Type      string        `yaml:"type"`
	Model     string        `yaml:"model"`
	BaseURL   string        `yaml:"base_url"`
	Dimension int           `yaml:"dimension"`
	CacheTTL  time.Duration `yaml:"cache_ttl"`
	// MaxInputChars overrides the provider's rune cap per text.
	// hugot counts tokens itself and ignores it.
	MaxInputChars int `yaml:"max_input_chars"`
}

// Config is the root configuration of the vaultrag command.
type Config struct {
	LogLevel string             `yaml:"log_level"`
	Store    StoreConfig        `yaml:"store"`
	Embedder EmbedderConfig     `yaml:"embedder"`
	Ingest   model.IngestConfig `yaml:"ingest"`
	Query    model.QueryConfig  `yaml:"query"`
}

// DefaultConfig uses a local sqlite file and the local MiniLM embedder.
func DefaultConfig() *Config {
	return &Config{
		LogLevel: "info",
		Store: StoreConfig{
			Type:       StoreSQLite,
			SQLitePath: "vaultrag.db",
		},
		Embedder: EmbedderConfig{
			Type:     EmbedderHugot,
			CacheTTL: time.Hour,
		},
		Ingest: model.DefaultIngestConfig(),
		Query:  model.DefaultQueryConfig(),
	}
}

// LoadConfig reads a YAML config on top of the defaults.
// A missing file yields the defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, helper.NewError("read config", err)
	}

	err = yaml.Unmarshal(data, cfg)
	if err != nil {
		return nil, helper.NewError("parse config", err)
	}

	err = cfg.Validate()
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the store and embedder selection.
func (c *Config) Validate() error {
	switch c.Store.Type {
	case StoreMemory, StorePostgres:
	case StoreSQLite:
		if c.Store.SQLitePath == "" {
			return helper.NewError("validate config", fmt.Errorf("sqlite store needs sqlite_path"))
		}
	default:
		return helper.NewError("validate config", fmt.Errorf("unknown store type %q", c.Store.Type))
	}

	switch c.Embedder.Type {
	case EmbedderHugot, EmbedderOpenAI, EmbedderGemini, EmbedderOllama:
	default:
		return helper.NewError("validate config", fmt.Errorf("unknown embedder type %q", c.Embedder.Type))
	}

	if c.Embedder.Dimension < 0 {
		return helper.NewError("validate config", fmt.Errorf("embedder dimension must not be negative"))
	}
	if c.Embedder.MaxInputChars < 0 {
		return helper.NewError("validate config", fmt.Errorf("embedder max_input_chars must not be negative"))
	}

	_, err := parseLevel(c.LogLevel)
	return err
}

func parseLevel(level string) (slog.Level, error) {
	var l slog.Level
	err := l.UnmarshalText([]byte(strings.ToUpper(level)))
	if err != nil {
		return slog.LevelInfo, helper.NewError("validate config", fmt.Errorf("unknown log level %q", level))
	}
	return l, nil
}

// embedder is implemented by the remote providers
type embedder interface {
	Model() string
	Dimension() int
	MaxInputChars() int
	Embed(ctx context.Context, text string) ([]float32, error)
}

// embedderSetup is the configured embedding function and what the pipeline needs to know about it
type embedderSetup struct {
	embed     pipeline.EmbedFunc
	model     string
	dimension int
	// maxInputChars is 0 when the embedder enforces its own limit
	maxInputChars int
}

// newEmbedder creates the configured embedder.
func newEmbedder(ctx context.Context, c EmbedderConfig) (*embedderSetup, error) {
	var (
		e   embedder
		err error
	)

	switch c.Type {
	case EmbedderHugot:
		embed, err := pipeline.DefaultEmbedder()
		if err != nil {
			return nil, err
		}
		return &embedderSetup{embed: embed, model: pipeline.DefaultModelName, dimension: pipeline.DefaultDimension}, nil
	case EmbedderOpenAI:
		apiKey := os.Getenv("OPENAI_API_KEY")
		if apiKey == "" {
			return nil, helper.NewError("create embedder", fmt.Errorf("%w: OPENAI_API_KEY is not set", model.ErrEmbeddingAuth))
		}
		e, err = openai.NewEmbedder(openai.Config{APIKey: apiKey, BaseURL: c.BaseURL, Model: c.Model, Dimension: c.Dimension, MaxInputChars: c.MaxInputChars})
	case EmbedderGemini:
		apiKey := os.Getenv("GEMINI_API_KEY")
		if apiKey == "" {
			return nil, helper.NewError("create embedder", fmt.Errorf("%w: GEMINI_API_KEY is not set", model.ErrEmbeddingAuth))
		}
		e, err = gemini.NewEmbedder(ctx, gemini.Config{APIKey: apiKey, BaseURL: c.BaseURL, Model: c.Model, Dimension: c.Dimension, MaxInputChars: c.MaxInputChars})
	case EmbedderOllama:
		e, err = ollama.NewEmbedder(ollama.Config{BaseURL: c.BaseURL, Model: c.Model, Dimension: c.Dimension, MaxInputChars: c.MaxInputChars})
	default:
		return nil, helper.NewError("create embedder", fmt.Errorf("unknown embedder type %q", c.Type))
	}
	if err != nil {
		return nil, err
	}

	return &embedderSetup{embed: e.Embed, model: e.Model(), dimension: e.Dimension(), maxInputChars: e.MaxInputChars()}, nil
}

// decorators returns the decorators openVault wraps the embedder in.
// Oversized texts are rejected before the cache and the provider see them.
func (s *embedderSetup) decorators(cacheTTL time.Duration) []pipeline.Decorator {
	var decorators []pipeline.Decorator
	if s.maxInputChars > 0 {
		decorators = append(decorators, pipeline.WithMaxInput(s.maxInputChars))
	}
	if cacheTTL > 0 {
		decorators = append(decorators, pipeline.WithCache(s.model, cacheTTL))
	}
	return append(decorators, pipeline.WithDimension(s.dimension))
}

// newStore opens the configured store for vectors of the given dimension
func newStore(c StoreConfig, dimension int, logger *slog.Logger) (store.Store, error) {
	switch c.Type {
	case StoreMemory:
		return memory.NewStore(dimension)
	case StoreSQLite:
		return sqlite.NewStore(c.SQLitePath, dimension, logger)
	case StorePostgres:
		dbConfig, err := helper.NewDatabaseConfiguration()
		if err != nil {
			return nil, helper.NewError("database configuration", err)
		}
		db := helper.NewDatabase("vaultrag", dbConfig, logger)
		return database.NewStore(db, dimension, false)
	default:
		return nil, helper.NewError("create store", fmt.Errorf("unknown store type %q", c.Type))
	}
}

// openVault wires store, embedder and pipeline from the config.
// Tests replace it to avoid model downloads and network access.
var openVault = func(ctx context.Context, cfg *Config) (*vaultrag.VaultRAG, error) {
	// .env is optional, the environment wins
	_ = godotenv.Load()

	level, err := parseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	logger := helper.NewLogger(level)

	setup, err := newEmbedder(ctx, cfg.Embedder)
	if err != nil {
		return nil, err
	}

	st, err := newStore(cfg.Store, setup.dimension, logger)
	if err != nil {
		return nil, err
	}

	v := vaultrag.NewWithStore(st, logger)
	if cfg.Store.Type == StorePostgres {
		v.DB = st.(*database.Store).DB
	}

	ingestConfig := cfg.Ingest.WithDefaults()
	v.SetIngestConfig(ingestConfig)

	embed := pipeline.Chain(setup.embed, setup.decorators(cfg.Embedder.CacheTTL)...)
	err = v.SetPipeline(pipeline.NewPipeline(pipeline.WindowChunker(ingestConfig.MaxChunkChars), embed))
	if err != nil {
		v.Close()
		return nil, err
	}

	if cfg.Store.Type == StorePostgres && cfg.Store.IndexType != "" {
		err = v.ChangeIndexType(ctx, cfg.Store.IndexType, cfg.Store.Index)
		if err != nil {
			v.Close()
			return nil, err
		}
	}

	return v, nil
}
