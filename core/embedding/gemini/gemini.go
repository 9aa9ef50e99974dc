// Package gemini embeds text with the Gemini API.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/siherrmann/vaultrag/core/embedding"
	"github.com/siherrmann/vaultrag/model"
	"google.golang.org/genai"
)

const (
	DefaultModel     = "text-embedding-004"
	DefaultDimension = 768
)

// DefaultMaxInputChars stays under the 2048 token input limit. The Gemini API
// truncates longer input without an error.
const DefaultMaxInputChars = 2000

// Config configures the Gemini embedder. Empty fields use the defaults.
type Config struct {
	APIKey    string `yaml:"-"`
	BaseURL   string `yaml:"base_url"`
	Model     string `yaml:"model"`
	Dimension int    `yaml:"dimension"`
	// MaxInputChars caps the runes sent per text, 0 uses DefaultMaxInputChars
	MaxInputChars int `yaml:"max_input_chars"`

	HTTPClient *http.Client `yaml:"-"`
}

// Embedder embeds one text per EmbedContent call.
type Embedder struct {
	client        *genai.Client
	model         string
	dimension     int
	maxInputChars int
}

// NewEmbedder creates a Gemini API embedder.
func NewEmbedder(ctx context.Context, config Config) (*Embedder, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("gemini api key is empty")
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

	clientConfig := &genai.ClientConfig{
		APIKey:     config.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: config.HTTPClient,
	}
	if config.BaseURL != "" {
		clientConfig.HTTPOptions = genai.HTTPOptions{BaseURL: config.BaseURL}
	}

	client, err := genai.NewClient(ctx, clientConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
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

// Embed generates the embedding for text
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	dimension := int32(e.dimension)
	resp, err := e.client.Models.EmbedContent(
		ctx,
		e.model,
		[]*genai.Content{genai.NewContentFromText(text, genai.RoleUser)},
		&genai.EmbedContentConfig{OutputDimensionality: &dimension},
	)
	if err != nil {
		var apiErr genai.APIError
		if errors.As(err, &apiErr) {
			return nil, embedding.StatusError("gemini", apiErr.Code, apiErr.Message)
		}
		var apiErrPtr *genai.APIError
		if errors.As(err, &apiErrPtr) {
			return nil, embedding.StatusError("gemini", apiErrPtr.Code, apiErrPtr.Message)
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, embedding.TransportError("gemini", err)
	}

	if len(resp.Embeddings) == 0 || resp.Embeddings[0] == nil {
		return nil, fmt.Errorf("gemini: %w: no embedding returned", model.ErrEmbeddingService)
	}

	return resp.Embeddings[0].Values, nil
}
