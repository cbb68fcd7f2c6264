package ingest

import (
	"context"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// PDFReader extracts per-page plain text from PDF files.
type PDFReader struct{}

// ExtractPages reads up to maxPages pages. Pages whose text layer cannot be
// decoded are kept as empty strings so page numbering stays stable.
func (PDFReader) ExtractPages(ctx context.Context, path string, maxPages int) ([]string, error) {
	f, reader, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open pdf: %w", err)
	}
	defer f.Close()

	total := reader.NumPage()
	if maxPages > 0 && total > maxPages {
		total = maxPages
	}

	pages := make([]string, 0, total)
	for i := 1; i <= total; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page := reader.Page(i)
		if page.V.IsNull() {
			pages = append(pages, "")
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			pages = append(pages, "")
			continue
		}
		pages = append(pages, strings.TrimSpace(text))
	}
	return pages, nil
}
