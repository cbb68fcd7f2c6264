package ingest

import (
	"archive/zip"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"strings"
)

// DocxReader extracts paragraph text from Word documents. A .docx file is a
// zip archive; the body lives in word/document.xml.
type DocxReader struct{}

// ExtractText returns the document body with one line per paragraph.
func (DocxReader) ExtractText(ctx context.Context, path string) (string, error) {
	archive, err := zip.OpenReader(path)
	if err != nil {
		return "", fmt.Errorf("failed to open docx: %w", err)
	}
	defer archive.Close()

	var body io.ReadCloser
	for _, f := range archive.File {
		if f.Name == "word/document.xml" {
			body, err = f.Open()
			if err != nil {
				return "", fmt.Errorf("failed to read document body: %w", err)
			}
			break
		}
	}
	if body == nil {
		return "", fmt.Errorf("no document body in %s", path)
	}
	defer body.Close()

	return parseDocumentXML(ctx, body)
}

// parseDocumentXML streams the WordprocessingML body, joining runs within a
// paragraph and separating paragraphs with newlines.
func parseDocumentXML(ctx context.Context, r io.Reader) (string, error) {
	decoder := xml.NewDecoder(r)
	var sb strings.Builder
	var paragraph strings.Builder

	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		tok, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("failed to parse document xml: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "t":
				var text string
				if err := decoder.DecodeElement(&text, &t); err == nil {
					paragraph.WriteString(text)
				}
			case "tab":
				paragraph.WriteString("\t")
			case "br":
				paragraph.WriteString("\n")
			}
		case xml.EndElement:
			if t.Name.Local == "p" {
				line := strings.TrimSpace(paragraph.String())
				paragraph.Reset()
				if line != "" {
					sb.WriteString(line)
					sb.WriteString("\n")
				}
			}
		}
	}
	return strings.TrimSpace(sb.String()), nil
}
