package extract

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/siherrmann/vaultrag/model"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// PlainText returns UTF-8 text as is, with a leading byte order mark and
// carriage returns removed.
func PlainText(ctx context.Context, data []byte) (string, error) {
	data = bytes.TrimPrefix(data, utf8BOM)
	if !utf8.Valid(data) {
		return "", fmt.Errorf("%w: text is not valid utf-8", model.ErrExtraction)
	}

	text := strings.ReplaceAll(string(data), "\r\n", "\n")
	return strings.ReplaceAll(text, "\r", "\n"), nil
}
