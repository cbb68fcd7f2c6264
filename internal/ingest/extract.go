// Package ingest turns source files into indexed document records: one
// record per file, one summary, one embedding. Extraction handles text,
// HTML, spreadsheets, and images natively; PDF and DOCX go through
// collaborator interfaces so the heavy parsers stay out of the core.
package ingest

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/net/html"

	"olympus/internal/types"
)

// Extracted is the raw content pulled from one file.
type Extracted struct {
	Text        string
	Pages       []string
	PageCount   int
	WordCount   int
	ContentType types.ContentType
	IsImage     bool
	Truncated   bool
}

// PDFExtractor parses PDF files page by page.
type PDFExtractor interface {
	ExtractPages(ctx context.Context, path string, maxPages int) ([]string, error)
}

// DocxExtractor parses Word documents into paragraph text.
type DocxExtractor interface {
	ExtractText(ctx context.Context, path string) (string, error)
}

var textExtensions = map[string]bool{
	".txt": true, ".md": true, ".log": true, ".json": true, ".yaml": true, ".yml": true,
}

var imageExtensions = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".webp": true,
}

var spreadsheetExtensions = map[string]bool{
	".csv": true, ".tsv": true,
}

// extract dispatches on the file extension. Image extraction is handled by
// the caller through the vision path; this reports it as such.
func (p *Pipeline) extract(ctx context.Context, path string) (*Extracted, error) {
	ext := strings.ToLower(filepath.Ext(path))

	switch {
	case textExtensions[ext]:
		return extractText(path, p.cfg.ContentMaxLength)

	case ext == ".html" || ext == ".htm":
		return extractHTML(path, p.cfg.ContentMaxLength)

	case spreadsheetExtensions[ext]:
		return extractSpreadsheet(path, ext, p.cfg.SpreadsheetRowLimit)

	case imageExtensions[ext]:
		return &Extracted{ContentType: types.ContentImage, IsImage: true}, nil

	case ext == ".pdf":
		if p.pdf == nil {
			return nil, fmt.Errorf("no PDF extractor configured")
		}
		pages, err := p.pdf.ExtractPages(ctx, path, p.cfg.MaxPDFPages)
		if err != nil {
			return nil, fmt.Errorf("pdf extraction failed: %w", err)
		}
		text := strings.Join(pages, "\n\n")
		truncated := len(pages) == p.cfg.MaxPDFPages
		if truncated {
			text += fmt.Sprintf("\n\n[content truncated at %d pages]", p.cfg.MaxPDFPages)
		}
		return &Extracted{
			Text:        capText(text, p.cfg.ContentMaxLength),
			Pages:       pages,
			PageCount:   len(pages),
			WordCount:   len(strings.Fields(text)),
			ContentType: types.ContentText,
			Truncated:   truncated,
		}, nil

	case ext == ".docx" || ext == ".doc":
		if p.docx == nil {
			return nil, fmt.Errorf("no DOCX extractor configured")
		}
		text, err := p.docx.ExtractText(ctx, path)
		if err != nil {
			return nil, fmt.Errorf("docx extraction failed: %w", err)
		}
		return &Extracted{
			Text:        capText(text, p.cfg.ContentMaxLength),
			WordCount:   len(strings.Fields(text)),
			ContentType: types.ContentText,
		}, nil

	default:
		return nil, fmt.Errorf("unsupported file type %s", ext)
	}
}

func extractText(path string, maxLen int) (*Extracted, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	if !isMostlyText(data) {
		return nil, fmt.Errorf("file is not valid text")
	}
	text := capText(string(data), maxLen)
	return &Extracted{
		Text:        text,
		WordCount:   len(strings.Fields(text)),
		ContentType: types.ContentText,
	}, nil
}

// extractHTML strips tags and returns the visible text, skipping script and
// style subtrees.
func extractHTML(path string, maxLen int) (*Extracted, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	root, err := html.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to parse html: %w", err)
	}

	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style") {
			return
		}
		if n.Type == html.TextNode {
			text := strings.TrimSpace(n.Data)
			if text != "" {
				sb.WriteString(text)
				sb.WriteString(" ")
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)

	text := capText(strings.TrimSpace(sb.String()), maxLen)
	return &Extracted{
		Text:        text,
		WordCount:   len(strings.Fields(text)),
		ContentType: types.ContentText,
	}, nil
}

// extractSpreadsheet keeps the header plus the first rowLimit data rows,
// rendered as "header: value" lines so the summarizer sees column context.
func extractSpreadsheet(path, ext string, rowLimit int) (*Extracted, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open spreadsheet: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	if ext == ".tsv" {
		reader.Comma = '\t'
	}
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	var sb strings.Builder
	sb.WriteString("Columns: " + strings.Join(header, ", ") + "\n")

	rows := 0
	for rows < rowLimit {
		record, err := reader.Read()
		if err != nil {
			break
		}
		var parts []string
		for i, v := range record {
			if i < len(header) && v != "" {
				parts = append(parts, header[i]+": "+v)
			}
		}
		sb.WriteString(strings.Join(parts, "; ") + "\n")
		rows++
	}

	text := sb.String()
	return &Extracted{
		Text:        text,
		WordCount:   len(strings.Fields(text)),
		ContentType: types.ContentSpreadsheet,
	}, nil
}

// isMostlyText rejects binary files masquerading under a text extension.
func isMostlyText(data []byte) bool {
	if len(data) == 0 {
		return true
	}
	sample := data
	if len(sample) > 4096 {
		sample = sample[:4096]
	}
	control := 0
	for _, b := range sample {
		if b == 0 {
			return false
		}
		if b < 32 && b != '\n' && b != '\r' && b != '\t' {
			control++
		}
	}
	return float64(control)/float64(len(sample)) < 0.05
}

func capText(s string, maxLen int) string {
	if maxLen > 0 && len(s) > maxLen {
		return s[:maxLen]
	}
	return s
}
