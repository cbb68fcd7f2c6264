package ingest

import (
	"path/filepath"
	"strings"
)

// =============================================================================
// DOCUMENT TYPE CLASSIFICATION
// =============================================================================

var filenameTypeHints = []struct {
	hint    string
	docType string
}{
	{"invoice", "invoice"},
	{"receipt", "receipt"},
	{"contract", "contract"},
	{"agreement", "contract"},
	{"report", "report"},
	{"resume", "resume"},
	{"cv", "resume"},
	{"proposal", "proposal"},
	{"screenshot", "screenshot"},
	{"screen_shot", "screenshot"},
	{"screen-shot", "screenshot"},
}

// classifyDocumentType derives the semantic document class from filename
// patterns first, then the extension.
func classifyDocumentType(filename string) string {
	lower := strings.ToLower(filename)
	for _, h := range filenameTypeHints {
		if strings.Contains(lower, h.hint) {
			return h.docType
		}
	}

	switch strings.ToLower(filepath.Ext(filename)) {
	case ".png", ".jpg", ".jpeg", ".gif", ".webp":
		return "image"
	case ".pdf":
		return "pdf_document"
	case ".docx", ".doc":
		return "word_document"
	case ".csv", ".tsv", ".xlsx", ".xls":
		return "spreadsheet"
	case ".txt", ".md":
		return "text_document"
	default:
		return "document"
	}
}
