// Package openai embeds text with the OpenAI embeddings API.
package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/siherrmann/vaultrag/core/embedding"
	"github.com/siherrmann/vaultrag/model"
)

const (
	DefaultModel     = "text-embedding-3-small"
	DefaultDimension = 1536
)

// DefaultMaxInputChars stays under the 8191 token input limit of the embedding models.
const DefaultMaxInputChars = 8000

// Config configures the OpenAI embedder. Empty fields use the defaults.
type Config struct {
	APIKey    string `yaml:"-"`
	BaseURL   string `yaml:"base_url"`
	Model     string `yaml:"model"`
	Dimension int    `yaml:"dimension"`
	// MaxInputChars caps the runes sent per text, 0 uses DefaultMaxInputChars
	MaxInputChars int `yaml:"max_input_chars"`

	HTTPClient *http.Client `yaml:"-"`
}

// Embedder calls the embeddings endpoint once per text.
type Embedder struct {
	client        openai.Client
	model         string
	dimension     int
	maxInputChars int
}

// NewEmbedder creates an OpenAI embedder.
// Retries are left to pipeline.WithRetry so the SDK does not retry on its own.
func NewEmbedder(config Config) (*Embedder, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("openai api key is empty")
	}
	if config.Model == "" {
		config.Model = DefaultModel
	}
	if config.Dimension <= 0 {
		config.Dimension = DefaultDimension
	}
	if config.MaxInputChars <= 0 {
		config.MaxInputChars = DefaultMaxInputChars
	}

	opts := []option.RequestOption{
		option.WithAPIKey(config.APIKey),
		option.WithMaxRetries(0),
	}
	if config.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(config.BaseURL))
	}
	if config.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(config.HTTPClient))
	}

	return &Embedder{
		client:        openai.NewClient(opts...),
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

// Embed generates the embedding for text
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := e.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{
			OfString: openai.String(text),
		},
		Model:      openai.EmbeddingModel(e.model),
		Dimensions: openai.Int(int64(e.dimension)),
	})
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			return nil, embedding.StatusError("openai", apiErr.StatusCode, apiErr.Message)
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, embedding.TransportError("openai", err)
	}

	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("openai: %w: no embedding returned", model.ErrEmbeddingService)
	}

	return embedding.ToFloat32(resp.Data[0].Embedding), nil
}
