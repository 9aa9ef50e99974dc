// Package ingestion turns a document into stored, embedded chunks.
//
// A document moves pending -> processing -> completed | failed. Processing is
// set before any work starts, so a crash leaves a visible processing document
// instead of a silent pending one.
package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/siherrmann/vaultrag/core/extract"
	"github.com/siherrmann/vaultrag/core/pipeline"
	"github.com/siherrmann/vaultrag/core/store"
	"github.com/siherrmann/vaultrag/helper"
	"github.com/siherrmann/vaultrag/model"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// Store is what ingestion needs from the document store.
type Store interface {
	store.DocumentStore
	store.VectorStore
}

// Pipeline ingests documents into a store.
type Pipeline struct {
	store     Store
	pipeline  *pipeline.Pipeline
	extractor extract.Extractor
	config    model.IngestConfig
	embed     pipeline.EmbedFunc
	log       *slog.Logger
}

// NewPipeline creates an ingestion pipeline.
// A nil extractor uses the default registry, a nil logger an info level pretty logger.
// All embedding calls of this pipeline share one token bucket.
func NewPipeline(st Store, pipe *pipeline.Pipeline, extractor extract.Extractor, config model.IngestConfig, logger *slog.Logger) (*Pipeline, error) {
	if st == nil {
		return nil, helper.NewError("ingestion pipeline", fmt.Errorf("store is nil"))
	}
	if err := pipe.Validate(); err != nil {
		return nil, helper.NewError("ingestion pipeline", err)
	}
	if extractor == nil {
		extractor = extract.NewDefaultRegistry()
	}
	if logger == nil {
		logger = helper.NewLogger(slog.LevelInfo)
	}

	config = config.WithDefaults()
	limiter := rate.NewLimiter(rate.Limit(config.RequestsPerSecond), config.Burst)

	return &Pipeline{
		store:     st,
		pipeline:  pipe,
		extractor: extractor,
		config:    config,
		embed: pipeline.Chain(
			pipe.Embedder,
			pipeline.WithRetry(config.MaxRetries, config.RetryInterval),
			pipeline.WithRateLimit(limiter),
		),
		log: logger,
	}, nil
}

// Config returns the effective configuration
func (p *Pipeline) Config() model.IngestConfig {
	return p.config
}

// Ingest chunks, embeds and stores rawText as the content of the document.
// Prior chunks of the document are replaced. A document that is already
// processing is left alone and model.ErrDocumentProcessing is returned.
func (p *Pipeline) Ingest(ctx context.Context, documentRID uuid.UUID, rawText string) (*model.IngestionReport, error) {
	return p.ingest(ctx, documentRID, func(ctx context.Context, doc *model.Document) (string, error) {
		return rawText, nil
	})
}

// IngestFile extracts the text of data according to mimeType and ingests it.
// An empty mimeType falls back to the MIME type stored on the document.
func (p *Pipeline) IngestFile(ctx context.Context, documentRID uuid.UUID, data []byte, mimeType string) (*model.IngestionReport, error) {
	return p.ingest(ctx, documentRID, func(ctx context.Context, doc *model.Document) (string, error) {
		if mimeType == "" {
			mimeType = doc.MimeType
		}
		return p.extractor.Extract(ctx, data, mimeType)
	})
}

type textSource func(ctx context.Context, doc *model.Document) (string, error)

func (p *Pipeline) ingest(ctx context.Context, documentRID uuid.UUID, source textSource) (*model.IngestionReport, error) {
	start := time.Now()

	doc, err := p.store.ClaimDocument(ctx, documentRID)
	if err != nil {
		if errors.Is(err, model.ErrDocumentProcessing) {
			p.log.Warn("Document is already being ingested", slog.String("document_rid", documentRID.String()))
		}
		// stores name the claim in their errors
		return nil, err
	}

	report := &model.IngestionReport{DocumentRID: documentRID, Status: model.StatusProcessing}
	p.log.Info("Ingesting document", slog.String("document_rid", documentRID.String()), slog.String("title", doc.Title))

	fail := func(operation string, err error) (*model.IngestionReport, error) {
		p.finish(ctx, report, model.StatusFailed, start)
		p.log.Error("Ingestion failed", slog.String("document_rid", documentRID.String()), slog.String("operation", operation), slog.Any("error", err))
		return report, helper.NewError(operation, err)
	}

	err = p.store.DeleteChunksByDocument(ctx, documentRID)
	if err != nil {
		return fail("delete previous chunks", err)
	}

	text, err := source(ctx, doc)
	if err != nil {
		return fail("extract text", err)
	}

	chunks, err := p.pipeline.Chunk(text)
	if err != nil {
		return fail("chunk text", err)
	}
	report.ChunksTotal = len(chunks)
	if len(chunks) == 0 {
		return fail("chunk text", model.ErrNoChunks)
	}

	lastErr := p.embedAndStore(ctx, doc, chunks, report)

	if err := ctx.Err(); err != nil {
		return fail("ingest chunks", err)
	}
	if report.ChunksSucceeded == 0 {
		return fail("ingest chunks", fmt.Errorf("all %d chunks failed: %w", report.ChunksTotal, lastErr))
	}

	p.finish(ctx, report, model.StatusCompleted, start)
	p.log.Info(
		"Ingested document",
		slog.String("document_rid", documentRID.String()),
		slog.Int("chunks_total", report.ChunksTotal),
		slog.Int("chunks_succeeded", report.ChunksSucceeded),
		slog.Int("chunks_failed", report.ChunksFailed),
		slog.Duration("duration", report.Duration),
	)

	return report, nil
}

// embedAndStore processes chunks on a bounded worker pool.
// A failing chunk is logged and counted, the others carry on.
// It returns the last chunk error.
func (p *Pipeline) embedAndStore(ctx context.Context, doc *model.Document, chunks []pipeline.TextChunk, report *model.IngestionReport) error {
	var (
		mu      sync.Mutex
		lastErr error
	)
	record := func(chunk pipeline.TextChunk, err error) {
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			report.ChunksFailed++
			lastErr = err
			p.log.Warn(
				"Skipping chunk",
				slog.String("document_rid", doc.RID.String()),
				slog.Int("chunk_index", chunk.ChunkIndex),
				slog.Any("error", err),
			)
			return
		}
		report.ChunksSucceeded++
	}

	var g errgroup.Group
	g.SetLimit(p.config.Workers)

	for _, chunk := range chunks {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			record(chunk, p.storeChunk(ctx, doc, chunk))
			return nil
		})
	}
	_ = g.Wait()

	return lastErr
}

func (p *Pipeline) storeChunk(ctx context.Context, doc *model.Document, textChunk pipeline.TextChunk) error {
	embedding, err := p.embed(ctx, textChunk.Content)
	if err != nil {
		return helper.NewError("embed chunk", err)
	}

	chunk := &model.Chunk{
		DocumentRID: doc.RID,
		OwnerID:     doc.OwnerID,
		Content:     textChunk.Content,
		Embedding:   embedding,
		ChunkIndex:  textChunk.ChunkIndex,
		StartPos:    textChunk.StartPos,
		EndPos:      textChunk.EndPos,
		Metadata:    model.Metadata{"chunk_chars": len(textChunk.Content)},
	}
	err = p.store.InsertChunk(ctx, chunk)
	if err != nil {
		return helper.NewError("insert chunk", err)
	}
	if chunk.OwnerID != doc.OwnerID {
		return helper.NewError("insert chunk", fmt.Errorf("%w: chunk stored under owner %s, document owner is %s", model.ErrStoreWrite, chunk.OwnerID, doc.OwnerID))
	}

	return nil
}

// finish writes the final status even if ctx is already cancelled.
// A document deleted during ingestion is not an error.
func (p *Pipeline) finish(ctx context.Context, report *model.IngestionReport, status model.DocumentStatus, start time.Time) {
	report.Status = status
	report.Duration = time.Since(start)

	statusCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	err := p.store.UpdateDocumentStatus(statusCtx, report.DocumentRID, status)
	if errors.Is(err, model.ErrDocumentNotFound) {
		p.log.Info("Document was deleted during ingestion", slog.String("document_rid", report.DocumentRID.String()))
		return
	}
	if err != nil {
		p.log.Error("Failed to update document status", slog.String("document_rid", report.DocumentRID.String()), slog.String("status", string(status)), slog.Any("error", err))
	}
}
