package pipeline

import (
	"context"
	"fmt"
	"sync"

	"github.com/knights-analytics/hugot"
	"github.com/knights-analytics/hugot/backends"
	"github.com/knights-analytics/hugot/pipelines"
	"github.com/siherrmann/vaultrag/helper"
	"github.com/siherrmann/vaultrag/model"
)

const (
	DefaultModelName = "sentence-transformers/all-MiniLM-L6-v2"
	DefaultDimension = 384
)

// sentenceModel is the part of a feature extraction pipeline the local embedder uses
type sentenceModel interface {
	CountTokens(text string) (int, error)
	Embed(texts []string) ([][]float32, error)
}

type hugotModel struct {
	pipeline  *pipelines.FeatureExtractionPipeline
	tokenizer *backends.GoTokenizer
}

func (m *hugotModel) CountTokens(text string) (int, error) {
	encoding, err := m.tokenizer.Tokenizer.EncodeSingle(text, true)
	if err != nil {
		return 0, err
	}
	return len(encoding.Ids), nil
}

func (m *hugotModel) Embed(texts []string) ([][]float32, error) {
	result, err := m.pipeline.RunPipeline(texts)
	if err != nil {
		return nil, err
	}
	return result.Embeddings, nil
}

// DefaultEmbedder creates a local embedder using a sentence transformer model.
// all-MiniLM-L6-v2 produces 384-dimensional embeddings and runs without network access
// once the model is downloaded. Texts with more tokens than the model accepts
// fail with model.ErrInputTooLarge.
func DefaultEmbedder() (EmbedFunc, error) {
	modelPath, err := helper.PrepareModel(DefaultModelName, "onnx/model.onnx")
	if err != nil {
		return nil, err
	}

	session, err := hugot.NewGoSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create hugot session: %w", err)
	}

	config := hugot.FeatureExtractionConfig{
		ModelPath: modelPath,
		Name:      "embedder-pipeline",
	}
	sentencePipeline, err := hugot.NewPipeline(session, config)
	if err != nil {
		if destroyErr := session.Destroy(); destroyErr != nil {
			return nil, fmt.Errorf("failed to create sentence pipeline: %w (cleanup error: %v)", err, destroyErr)
		}
		return nil, fmt.Errorf("failed to create sentence pipeline: %w", err)
	}

	tk := sentencePipeline.Model.Tokenizer
	if tk == nil || tk.GoTokenizer == nil {
		if destroyErr := session.Destroy(); destroyErr != nil {
			return nil, fmt.Errorf("sentence pipeline has no go tokenizer (cleanup error: %v)", destroyErr)
		}
		return nil, fmt.Errorf("sentence pipeline has no go tokenizer")
	}
	// The model cuts everything past MaxAllowedTokens. Truncation from
	// tokenizer.json is switched off so that limit is the only one.
	tk.GoTokenizer.Tokenizer.WithTruncation(nil)

	return localEmbedder(&hugotModel{pipeline: sentencePipeline, tokenizer: tk.GoTokenizer}, tk.MaxAllowedTokens), nil
}

// localEmbedder embeds one text at a time and rejects texts over maxTokens.
// maxTokens <= 0 disables the check.
func localEmbedder(m sentenceModel, maxTokens int) EmbedFunc {
	// one pipeline shared by all ingestion workers
	var mu sync.Mutex

	return func(ctx context.Context, text string) ([]float32, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		mu.Lock()
		defer mu.Unlock()

		if maxTokens > 0 {
			n, err := m.CountTokens(text)
			if err != nil {
				return nil, fmt.Errorf("%w: failed to tokenize: %w", model.ErrEmbeddingService, err)
			}
			if n > maxTokens {
				return nil, fmt.Errorf("%w: %d tokens, limit %d", model.ErrInputTooLarge, n, maxTokens)
			}
		}

		embeddings, err := m.Embed([]string{text})
		if err != nil {
			return nil, fmt.Errorf("%w: failed to generate embedding: %w", model.ErrEmbeddingService, err)
		}

		if len(embeddings) == 0 {
			return nil, fmt.Errorf("%w: no embedding generated", model.ErrEmbeddingService)
		}

		return embeddings[0], nil
	}
}
