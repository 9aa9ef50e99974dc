// Package extract turns uploaded file bytes into plain text for chunking.
package extract

import (
	"context"
	"fmt"
	"mime"
	"strings"
	"sync"

	"github.com/siherrmann/vaultrag/model"
)

const (
	MimePlain    = "text/plain"
	MimeMarkdown = "text/markdown"
	MimeHTML     = "text/html"
	MimePDF      = "application/pdf"
	MimeDOCX     = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	MimeXLSX     = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// Extractor returns the plain text of a document.
// Failures are model.ErrUnsupportedFormat or model.ErrExtraction.
type Extractor interface {
	Extract(ctx context.Context, data []byte, mimeType string) (string, error)
}

// Func adapts a function to an Extractor
type Func func(ctx context.Context, data []byte) (string, error)

// Registry dispatches to extractors by MIME type.
// Unregistered text/* types fall back to the plain text extractor.
type Registry struct {
	mu         sync.RWMutex
	extractors map[string]Func
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{extractors: map[string]Func{}}
}

// NewDefaultRegistry creates a registry with all built-in extractors
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(MimePlain, PlainText)
	r.Register(MimeMarkdown, PlainText)
	r.Register("text/x-markdown", PlainText)
	r.Register(MimeHTML, HTML)
	r.Register("application/xhtml+xml", HTML)
	r.Register(MimePDF, PDF)
	r.Register(MimeDOCX, DOCX)
	r.Register(MimeXLSX, XLSX)
	return r
}

// Register adds or replaces the extractor for mimeType
func (r *Registry) Register(mimeType string, f Func) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.extractors[normalize(mimeType)] = f
}

// Supports reports whether mimeType can be extracted
func (r *Registry) Supports(mimeType string) bool {
	_, ok := r.lookup(normalize(mimeType))
	return ok
}

// Extract runs the extractor registered for mimeType.
// Empty output is an extraction error, a document without text cannot be searched.
func (r *Registry) Extract(ctx context.Context, data []byte, mimeType string) (string, error) {
	mediaType := normalize(mimeType)
	f, ok := r.lookup(mediaType)
	if !ok {
		return "", fmt.Errorf("%w: %q", model.ErrUnsupportedFormat, mimeType)
	}

	if err := ctx.Err(); err != nil {
		return "", err
	}

	text, err := f(ctx, data)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("%w: no text found in %s document", model.ErrExtraction, mediaType)
	}

	return text, nil
}

func (r *Registry) lookup(mediaType string) (Func, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if f, ok := r.extractors[mediaType]; ok {
		return f, true
	}
	if strings.HasPrefix(mediaType, "text/") {
		f, ok := r.extractors[MimePlain]
		return f, ok
	}
	return nil, false
}

func normalize(mimeType string) string {
	mediaType, _, err := mime.ParseMediaType(mimeType)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(mimeType))
	}
	return mediaType
}
