package main

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/siherrmann/vaultrag"
	"github.com/siherrmann/vaultrag/core/pipeline"
	"github.com/siherrmann/vaultrag/core/store/memory"
	"github.com/siherrmann/vaultrag/helper"
	"github.com/siherrmann/vaultrag/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// topicEmbed counts a few topic words so related texts are similar.
func topicEmbed(ctx context.Context, text string) ([]float32, error) {
	lower := strings.ToLower(text)
	return []float32{
		float32(strings.Count(lower, "cell")),
		float32(strings.Count(lower, "war")),
		0.1,
	}, nil
}

// setupTestVault makes every command use one shared in-memory vault.
func setupTestVault(t *testing.T) *vaultrag.VaultRAG {
	t.Helper()

	st, err := memory.NewStore(3)
	require.NoError(t, err)

	v := vaultrag.NewWithStore(st, helper.NewLogger(slog.LevelError))
	require.NoError(t, v.SetPipeline(pipeline.NewPipeline(pipeline.WindowChunker(200), topicEmbed)))

	original := openVault
	openVault = func(ctx context.Context, cfg *Config) (*vaultrag.VaultRAG, error) {
		return v, nil
	}

	configPath = filepath.Join(t.TempDir(), "missing.yaml")
	t.Cleanup(func() {
		openVault = original
		resetFlags()
	})

	return v
}

func resetFlags() {
	ownerFlag = ""
	ingestCourse = ""
	searchTopK = 0
	searchThreshold = 0
	searchDocuments = nil
	searchJSON = false
	searchPrompt = false
	listJSON = false
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags()

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs(args)
	defer rootCmd.SetArgs(nil)

	err := rootCmd.Execute()
	return buf.String(), err
}

func writeNote(t *testing.T, name string, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestCommandsRequireOwner(t *testing.T) {
	setupTestVault(t)

	for _, args := range [][]string{
		{"ingest", "notes.md"},
		{"search", "cell"},
		{"list"},
		{"delete", uuid.NewString()},
		{"reset", uuid.NewString()},
	} {
		t.Run("Missing owner for "+args[0], func(t *testing.T) {
			_, err := execute(t, args...)
			assert.ErrorContains(t, err, "--owner is required")
		})
	}

	t.Run("Invalid owner", func(t *testing.T) {
		_, err := execute(t, "list", "--owner", "not-a-uuid")
		assert.ErrorContains(t, err, "invalid owner id")
	})
}

func TestIngestSearchDelete(t *testing.T) {
	v := setupTestVault(t)
	owner := uuid.NewString()
	ctx := context.Background()

	biology := writeNote(t, "biology.md", "Every cell has a membrane. Mitochondria are the powerhouse of the cell.")
	history := writeNote(t, "history.md", "The war began in 1914 and the war ended in 1918 with an armistice.")

	t.Run("Ingest files", func(t *testing.T) {
		out, err := execute(t, "ingest", "--owner", owner, "--course", "BIO101", biology, history)
		require.NoError(t, err)
		assert.Contains(t, out, "biology.md")
		assert.Contains(t, out, string(model.StatusCompleted))
	})

	t.Run("Ingest reports failed files", func(t *testing.T) {
		image := writeNote(t, "image.png", "not really an image")
		out, err := execute(t, "ingest", "--owner", owner, image)
		assert.ErrorContains(t, err, "1 of 1 files failed")
		assert.Contains(t, out, "image.png")
	})

	t.Run("List documents", func(t *testing.T) {
		out, err := execute(t, "list", "--owner", owner)
		require.NoError(t, err)
		assert.Contains(t, out, "biology")
		assert.Contains(t, out, "history")
	})

	t.Run("List documents as JSON", func(t *testing.T) {
		out, err := execute(t, "list", "--owner", owner, "--json")
		require.NoError(t, err)

		var docs []*model.Document
		require.NoError(t, json.Unmarshal([]byte(out), &docs))
		require.Len(t, docs, 2)
		for _, d := range docs {
			assert.Equal(t, "BIO101", d.Metadata["course"])
		}
	})

	t.Run("Search returns ranked results", func(t *testing.T) {
		out, err := execute(t, "search", "--owner", owner, "what is a cell")
		require.NoError(t, err)
		assert.Contains(t, out, "Results:")
		assert.Contains(t, out, "Mitochondria")
		assert.NotContains(t, out, "armistice")
	})

	t.Run("Search as JSON", func(t *testing.T) {
		out, err := execute(t, "search", "--owner", owner, "--json", "--top-k", "1", "--threshold=-1", "war")
		require.NoError(t, err)

		var results []*model.RetrievalResult
		require.NoError(t, json.Unmarshal([]byte(out), &results))
		require.Len(t, results, 1)
		assert.Contains(t, results[0].Chunk.Content, "armistice")
	})

	t.Run("Search prints the assistant prompt", func(t *testing.T) {
		out, err := execute(t, "search", "--owner", owner, "--prompt", "cell")
		require.NoError(t, err)
		assert.Contains(t, out, "CONTEXT:")
		assert.Contains(t, out, "[1] ")
	})

	t.Run("Other owner finds nothing", func(t *testing.T) {
		out, err := execute(t, "search", "--owner", uuid.NewString(), "cell")
		require.NoError(t, err)
		assert.Contains(t, out, "No results found.")
	})

	t.Run("Delete document", func(t *testing.T) {
		ownerID := uuid.MustParse(owner)
		docs, err := v.ListDocuments(ctx, ownerID)
		require.NoError(t, err)
		require.NotEmpty(t, docs)

		out, err := execute(t, "delete", "--owner", owner, docs[0].RID.String())
		require.NoError(t, err)
		assert.Contains(t, out, "Deleted")

		remaining, err := v.ListDocuments(ctx, ownerID)
		require.NoError(t, err)
		assert.Len(t, remaining, len(docs)-1)
	})

	t.Run("Delete as other owner", func(t *testing.T) {
		docs, err := v.ListDocuments(ctx, uuid.MustParse(owner))
		require.NoError(t, err)
		require.NotEmpty(t, docs)

		_, err = execute(t, "delete", "--owner", uuid.NewString(), docs[0].RID.String())
		assert.ErrorIs(t, err, model.ErrDocumentNotFound)
	})
}

func TestResetCommand(t *testing.T) {
	v := setupTestVault(t)
	owner := uuid.New()
	ctx := context.Background()

	doc := &model.Document{OwnerID: owner, Title: "Cell biology", SourceKind: model.SourceNote}
	require.NoError(t, v.AddDocument(ctx, doc))
	_, err := v.Store.ClaimDocument(ctx, doc.RID)
	require.NoError(t, err)

	t.Run("Invalid document id", func(t *testing.T) {
		_, err := execute(t, "reset", "--owner", owner.String(), "not-a-uuid")
		assert.ErrorContains(t, err, "invalid document id")
	})

	t.Run("Other owner cannot reset", func(t *testing.T) {
		_, err := execute(t, "reset", "--owner", uuid.NewString(), doc.RID.String())
		assert.ErrorIs(t, err, model.ErrDocumentNotFound)
	})

	t.Run("Stuck document is reset to failed", func(t *testing.T) {
		out, err := execute(t, "reset", "--owner", owner.String(), doc.RID.String())
		require.NoError(t, err)
		assert.Contains(t, out, string(model.StatusFailed))

		report, err := v.Reingest(ctx, doc.RID, "Every cell has a membrane around the cytoplasm.")
		require.NoError(t, err)
		assert.Equal(t, model.StatusCompleted, report.Status)
	})

	t.Run("Document that is not processing is left alone", func(t *testing.T) {
		_, err := execute(t, "reset", "--owner", owner.String(), doc.RID.String())
		assert.ErrorIs(t, err, model.ErrNotProcessing)
	})
}
