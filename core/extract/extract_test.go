package extract

import (
	"context"
	"errors"
	"testing"

	"github.com/siherrmann/vaultrag/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry(t *testing.T) {
	ctx := context.Background()

	t.Run("Default registry supports the built-in formats", func(t *testing.T) {
		r := NewDefaultRegistry()
		for _, mimeType := range []string{MimePlain, MimeMarkdown, MimeHTML, MimePDF, MimeDOCX, MimeXLSX} {
			assert.True(t, r.Supports(mimeType), mimeType)
		}
	})

	t.Run("Parameters and case are ignored", func(t *testing.T) {
		r := NewDefaultRegistry()

		text, err := r.Extract(ctx, []byte("Lecture notes on thermodynamics"), "Text/Plain; charset=utf-8")
		require.NoError(t, err)
		assert.Equal(t, "Lecture notes on thermodynamics", text)
	})

	t.Run("Unknown text types fall back to plain text", func(t *testing.T) {
		r := NewDefaultRegistry()

		text, err := r.Extract(ctx, []byte("a,b,c\n1,2,3"), "text/csv")
		require.NoError(t, err)
		assert.Equal(t, "a,b,c\n1,2,3", text)
	})

	t.Run("Unsupported format", func(t *testing.T) {
		r := NewDefaultRegistry()

		_, err := r.Extract(ctx, []byte{0x00, 0x01}, "application/octet-stream")
		assert.ErrorIs(t, err, model.ErrUnsupportedFormat)
		assert.False(t, r.Supports("image/png"))
	})

	t.Run("Empty text is an extraction error", func(t *testing.T) {
		r := NewDefaultRegistry()

		_, err := r.Extract(ctx, []byte("   \n\t "), MimePlain)
		assert.ErrorIs(t, err, model.ErrExtraction)
	})

	t.Run("Custom extractors can be registered", func(t *testing.T) {
		r := NewRegistry()
		r.Register("application/x-notes", func(ctx context.Context, data []byte) (string, error) {
			return "custom " + string(data), nil
		})

		text, err := r.Extract(ctx, []byte("text"), "application/x-notes")
		require.NoError(t, err)
		assert.Equal(t, "custom text", text)
	})

	t.Run("Extractor errors are returned", func(t *testing.T) {
		r := NewRegistry()
		boom := errors.New("boom")
		r.Register("application/x-broken", func(ctx context.Context, data []byte) (string, error) {
			return "", boom
		})

		_, err := r.Extract(ctx, []byte("text"), "application/x-broken")
		assert.ErrorIs(t, err, boom)
	})

	t.Run("Cancelled context is returned before extraction", func(t *testing.T) {
		cancelled, cancel := context.WithCancel(ctx)
		cancel()

		_, err := NewDefaultRegistry().Extract(cancelled, []byte("text"), MimePlain)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestPlainText(t *testing.T) {
	t.Run("Byte order mark and carriage returns are removed", func(t *testing.T) {
		text, err := PlainText(context.Background(), append([]byte{0xEF, 0xBB, 0xBF}, []byte("line one\r\nline two\rline three")...))
		require.NoError(t, err)
		assert.Equal(t, "line one\nline two\nline three", text)
	})

	t.Run("Invalid utf-8 is an extraction error", func(t *testing.T) {
		_, err := PlainText(context.Background(), []byte{0xff, 0xfe, 0xfd})
		assert.ErrorIs(t, err, model.ErrExtraction)
	})
}
