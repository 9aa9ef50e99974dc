package extract

import (
	"bytes"
	"context"
	"fmt"
	"testing"

	"github.com/siherrmann/vaultrag/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildPDF writes a single page PDF showing text in Helvetica.
func buildPDF(text string) []byte {
	content := fmt.Sprintf("BT /F1 12 Tf 72 712 Td (%s) Tj ET", text)
	objects := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
		"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Contents 4 0 R /Resources << /Font << /F1 5 0 R >> >> >>",
		fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(content), content),
		"<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>",
	}

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objects))
	for i, obj := range objects {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}

	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(objects)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, offset := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", offset)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xref)

	return buf.Bytes()
}

func TestPDF(t *testing.T) {
	t.Run("Text of the page is extracted", func(t *testing.T) {
		text, err := PDF(context.Background(), buildPDF("Photosynthesis happens in chloroplasts"))

		require.NoError(t, err)
		assert.Contains(t, text, "Photosynthesis happens in chloroplasts")
	})

	t.Run("Empty data is an extraction error", func(t *testing.T) {
		_, err := PDF(context.Background(), nil)
		assert.ErrorIs(t, err, model.ErrExtraction)
	})

	t.Run("Garbage data is an extraction error", func(t *testing.T) {
		_, err := PDF(context.Background(), []byte("%PDF-1.4\nthis is not really a pdf\n%%EOF"))
		assert.ErrorIs(t, err, model.ErrExtraction)
	})
}
