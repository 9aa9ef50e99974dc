package extract

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/siherrmann/vaultrag/model"
	"github.com/xuri/excelize/v2"
)

// XLSX returns every sheet as a header line followed by one line per row.
// Cells are tab separated.
func XLSX(ctx context.Context, data []byte) (string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("%w: %w", model.ErrExtraction, err)
	}
	defer func() { _ = f.Close() }()

	var sb strings.Builder
	for _, sheet := range f.GetSheetList() {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		rows, err := f.GetRows(sheet)
		if err != nil {
			return "", fmt.Errorf("%w: sheet %s: %w", model.ErrExtraction, sheet, err)
		}
		if len(rows) == 0 {
			continue
		}

		sb.WriteString("Sheet: ")
		sb.WriteString(sheet)
		sb.WriteByte('\n')
		for _, row := range rows {
			line := strings.TrimRight(strings.Join(row, "\t"), "\t")
			if line == "" {
				continue
			}
			sb.WriteString(line)
			sb.WriteByte('\n')
		}
		sb.WriteByte('\n')
	}

	return sb.String(), nil
}
