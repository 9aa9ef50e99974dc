package model

import (
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DocumentStatus is the ingestion state of a document.
type DocumentStatus string

const (
	StatusPending    DocumentStatus = "pending"
	StatusProcessing DocumentStatus = "processing"
	StatusCompleted  DocumentStatus = "completed"
	StatusFailed     DocumentStatus = "failed"
)

// Valid reports whether s is one of the known statuses.
func (s DocumentStatus) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// Terminal reports whether no further transition is expected without a new ingestion.
func (s DocumentStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// SourceKind describes where the document content came from.
type SourceKind string

const (
	SourceFile SourceKind = "file"
	SourceLink SourceKind = "link"
	SourceNote SourceKind = "note"
)

// Document is a user-owned resource in the vault
type Document struct {
	ID              int64          `json:"id"`
	RID             uuid.UUID      `json:"rid"`
	OwnerID         uuid.UUID      `json:"owner_id"`
	Title           string         `json:"title"`
	SourceKind      SourceKind     `json:"source_kind"`
	StorageLocation string         `json:"storage_location,omitempty"`
	MimeType        string         `json:"mime_type,omitempty"`
	Status          DocumentStatus `json:"status"`
	Metadata        Metadata       `json:"metadata,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
	// Raw file bytes used for ingestion, never persisted
	Data []byte `json:"-"`
}

// NewDocumentFromFile reads a file and creates a pending Document owned by ownerID.
// The title defaults to the filename without extension, the storage location to the file path.
func NewDocumentFromFile(filePath string, ownerID uuid.UUID, metadata Metadata) (*Document, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}

	filename := filepath.Base(filePath)
	title := strings.TrimSuffix(filename, filepath.Ext(filename))
	if title == "" {
		title = filename
	}

	return &Document{
		OwnerID:         ownerID,
		Title:           title,
		SourceKind:      SourceFile,
		StorageLocation: filePath,
		MimeType:        MimeTypeFromPath(filePath),
		Status:          StatusPending,
		Metadata:        metadata,
		Data:            data,
	}, nil
}

// MimeTypeFromPath guesses the MIME type of a file from its extension.
// Unknown extensions map to application/octet-stream.
func MimeTypeFromPath(filePath string) string {
	ext := strings.ToLower(filepath.Ext(filePath))
	switch ext {
	case ".md", ".markdown":
		return "text/markdown"
	case ".txt", ".text":
		return "text/plain"
	case ".docx":
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	case ".xlsx":
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	if t := mime.TypeByExtension(ext); t != "" {
		mediaType, _, err := mime.ParseMediaType(t)
		if err == nil {
			return mediaType
		}
	}
	return "application/octet-stream"
}
