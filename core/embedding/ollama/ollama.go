// Package ollama embeds text with a local or remote Ollama server.
package ollama

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/ollama/ollama/api"
	"github.com/siherrmann/vaultrag/core/embedding"
	"github.com/siherrmann/vaultrag/model"
)

const (
	DefaultModel     = "nomic-embed-text"
	DefaultDimension = 768
)

// DefaultMaxInputChars stays under the 2048 token context ollama loads embedding
// models with by default.
const DefaultMaxInputChars = 2000

// Config configures the Ollama embedder.
// An empty BaseURL reads OLLAMA_HOST like the ollama CLI does.
type Config struct {
	BaseURL   string `yaml:"base_url"`
	Model     string `yaml:"model"`
	Dimension int    `yaml:"dimension"`
	// MaxInputChars caps the runes sent per text, 0 uses DefaultMaxInputChars
	MaxInputChars int `yaml:"max_input_chars"`

	HTTPClient *http.Client `yaml:"-"`
}

// Embedder wraps the Ollama API client for embeddings
type Embedder struct {
	client        *api.Client
	model         string
	dimension     int
	maxInputChars int
}

// NewEmbedder creates a new Ollama embedder
func NewEmbedder(config Config) (*Embedder, error) {
	if config.Model == "" {
		config.Model = DefaultModel
	}
	if config.Dimension <= 0 {
		config.Dimension = DefaultDimension
	}
	if config.MaxInputChars <= 0 {
		config.MaxInputChars = DefaultMaxInputChars
	}

	var client *api.Client
	if config.BaseURL == "" {
		var err error
		client, err = api.ClientFromEnvironment()
		if err != nil {
			return nil, fmt.Errorf("failed to create ollama client: %w", err)
		}
	} else {
		base, err := url.Parse(config.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("invalid ollama url %q: %w", config.BaseURL, err)
		}
		httpClient := config.HTTPClient
		if httpClient == nil {
			httpClient = http.DefaultClient
		}
		client = api.NewClient(base, httpClient)
	}

	return &Embedder{
		client:        client,
		model:         config.Model,
		dimension:     config.Dimension,
		maxInputChars: config.MaxInputChars,
	}, nil
}

// Model returns the embedding model name
func (e *Embedder) Model() string {
	return e.model
}

// Dimension returns the length of the produced vectors
func (e *Embedder) Dimension() int {
	return e.dimension
}

// MaxInputChars returns the longest text in runes that is sent to the provider
func (e *Embedder) MaxInputChars() int {
	return e.maxInputChars
}

// Embed generates an embedding vector for the given text.
// Truncation is disabled so oversized input fails instead of being cut.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	truncate := false
	resp, err := e.client.Embed(ctx, &api.EmbedRequest{
		Model:    e.model,
		Input:    text,
		Truncate: &truncate,
	})
	if err != nil {
		var statusErr api.StatusError
		if errors.As(err, &statusErr) {
			return nil, embedding.StatusError("ollama", statusErr.StatusCode, statusErr.ErrorMessage)
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, embedding.TransportError("ollama", err)
	}

	if len(resp.Embeddings) == 0 {
		return nil, fmt.Errorf("ollama: %w: no embeddings returned", model.ErrEmbeddingService)
	}

	return embedding.ToFloat32(resp.Embeddings[0]), nil
}
