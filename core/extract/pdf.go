package extract

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/ledongthuc/pdf"
	"github.com/siherrmann/vaultrag/model"
)

// PDF returns the plain text of all pages.
func PDF(ctx context.Context, data []byte) (text string, err error) {
	if len(data) == 0 {
		return "", fmt.Errorf("%w: empty pdf", model.ErrExtraction)
	}

	// the pdf reader panics on some malformed files
	defer func() {
		if r := recover(); r != nil {
			text = ""
			err = fmt.Errorf("%w: malformed pdf: %v", model.ErrExtraction, r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("%w: %w", model.ErrExtraction, err)
	}

	reader, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("%w: %w", model.ErrExtraction, err)
	}

	out, err := io.ReadAll(reader)
	if err != nil {
		return "", fmt.Errorf("%w: %w", model.ErrExtraction, err)
	}

	return string(out), nil
}
