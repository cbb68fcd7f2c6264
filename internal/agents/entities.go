package agents

import (
	"regexp"
	"strings"
)

// =============================================================================
// ENTITY EXTRACTION
// =============================================================================

var (
	quotedRe           = regexp.MustCompile(`"([^"]+)"|'([^']+)'`)
	possessiveEntityRe = regexp.MustCompile(`\b([A-Z][a-zA-Z]+)'s\b`)
	properSeqRe        = regexp.MustCompile(`\b([A-Z][a-z]+(?:\s+[A-Z][a-z]+){1,2})\b`)
	capitalizedRe      = regexp.MustCompile(`\b([A-Z][a-zA-Z]{2,})\b`)
	dateLiteralRe      = regexp.MustCompile(`\b(\d{1,2}[/-]\d{1,2}[/-]\d{2,4}|\d{4}-\d{2}-\d{2}|(?:Jan|Feb|Mar|Apr|May|Jun|Jul|Aug|Sep|Oct|Nov|Dec)[a-z]*\.?\s+\d{1,2},?\s+\d{4})\b`)
	aboutPhraseRe      = regexp.MustCompile(`(?i)\b(?:about|related to|containing)\s+([a-zA-Z0-9][a-zA-Z0-9\s\-]{1,40}?)(?:[.,?!]|$)`)

	entityStopWords = map[string]bool{
		"the": true, "show": true, "find": true, "search": true, "what": true,
		"where": true, "when": true, "which": true, "who": true, "how": true,
		"all": true, "any": true, "please": true, "give": true, "list": true,
		"documents": true, "files": true, "pdf": true, "pdfs": true,
		"summarize": true, "compare": true, "about": true, "with": true,
		"from": true, "last": true, "this": true, "that": true, "recent": true,
		"january": true, "february": true, "march": true, "april": true,
		"may": true, "june": true, "july": true, "august": true,
		"september": true, "october": true, "november": true, "december": true,
	}
)

// extractEntities pulls candidate entities from the resolved query, in a
// fixed pass order so output order is deterministic. Duplicates are removed
// case-insensitively, first occurrence wins.
func extractEntities(query string) []string {
	var found []string

	// Quoted phrases.
	for _, m := range quotedRe.FindAllStringSubmatch(query, -1) {
		if m[1] != "" {
			found = append(found, m[1])
		} else if m[2] != "" {
			found = append(found, m[2])
		}
	}

	// Possessives: "Acme's invoices" names Acme.
	for _, m := range possessiveEntityRe.FindAllStringSubmatch(query, -1) {
		found = append(found, m[1])
	}

	// Multi-word proper noun runs.
	for _, m := range properSeqRe.FindAllStringSubmatch(query, -1) {
		found = append(found, m[1])
	}

	// Standalone capitalized words, skipping the sentence-initial position.
	firstTokenEnd := len(query)
	if idx := strings.IndexAny(query, " \t"); idx >= 0 {
		firstTokenEnd = idx
	}
	for _, loc := range capitalizedRe.FindAllStringSubmatchIndex(query, -1) {
		if loc[2] < firstTokenEnd {
			continue
		}
		word := query[loc[2]:loc[3]]
		if entityStopWords[strings.ToLower(word)] {
			continue
		}
		found = append(found, word)
	}

	// Literal date formats.
	found = append(found, dateLiteralRe.FindAllString(query, -1)...)

	// Noun phrases after "about"/"related to"/"containing".
	for _, m := range aboutPhraseRe.FindAllStringSubmatch(query, -1) {
		phrase := strings.TrimSpace(m[1])
		if phrase != "" && !entityStopWords[strings.ToLower(phrase)] {
			found = append(found, phrase)
		}
	}

	// Case-insensitive dedup preserving order.
	seen := make(map[string]bool, len(found))
	var out []string
	for _, e := range found {
		key := strings.ToLower(strings.TrimSpace(e))
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, strings.TrimSpace(e))
	}
	return out
}
