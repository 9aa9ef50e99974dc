package extract

import (
	"archive/zip"
	"bytes"
	"context"
	"testing"

	"github.com/siherrmann/vaultrag/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildDOCX(t *testing.T, documentXML string) []byte {
	t.Helper()

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("word/document.xml")
	require.NoError(t, err)
	_, err = w.Write([]byte(documentXML))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	return buf.Bytes()
}

func TestDOCX(t *testing.T) {
	t.Run("Paragraphs become lines", func(t *testing.T) {
		data := buildDOCX(t, `<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>`+
			`<w:p><w:r><w:t>Chapter one</w:t></w:r></w:p>`+
			`<w:p><w:r><w:t xml:space="preserve">Cells divide </w:t></w:r><w:r><w:t>by mitosis.</w:t></w:r></w:p>`+
			`</w:body></w:document>`)

		text, err := DOCX(context.Background(), data)

		require.NoError(t, err)
		assert.Equal(t, "Chapter one\nCells divide by mitosis.\n", text)
	})

	t.Run("Tabs and breaks are kept", func(t *testing.T) {
		data := buildDOCX(t, `<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>`+
			`<w:p><w:r><w:t>a</w:t><w:tab/><w:t>b</w:t><w:br/><w:t>c</w:t></w:r></w:p>`+
			`</w:body></w:document>`)

		text, err := DOCX(context.Background(), data)

		require.NoError(t, err)
		assert.Equal(t, "a\tb\nc\n", text)
	})

	t.Run("Non zip data is an extraction error", func(t *testing.T) {
		_, err := DOCX(context.Background(), []byte("not a zip"))
		assert.ErrorIs(t, err, model.ErrExtraction)
	})

	t.Run("Archive without document is an extraction error", func(t *testing.T) {
		var buf bytes.Buffer
		zw := zip.NewWriter(&buf)
		_, err := zw.Create("other.xml")
		require.NoError(t, err)
		require.NoError(t, zw.Close())

		_, err = DOCX(context.Background(), buf.Bytes())
		assert.ErrorIs(t, err, model.ErrExtraction)
	})
}
