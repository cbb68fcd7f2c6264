package agents

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"olympus/internal/types"
)

// =============================================================================
// FILTER EXTRACTION
// =============================================================================

// fileTypeGroups maps query keywords to extension filters.
var fileTypeGroups = map[string][]string{
	"pdf":          {".pdf"},
	"pdfs":         {".pdf"},
	"word":         {".docx", ".doc"},
	"excel":        {".xlsx", ".xls", ".csv"},
	"spreadsheet":  {".xlsx", ".xls", ".csv"},
	"spreadsheets": {".xlsx", ".xls", ".csv"},
	"presentation": {".pptx", ".ppt"},
	"slides":       {".pptx", ".ppt"},
	"text":         {".txt", ".md"},
	"code":         {".py", ".go", ".js", ".ts", ".java", ".c", ".cpp"},
	"video":        {".mp4", ".mov", ".avi", ".mkv"},
	"videos":       {".mp4", ".mov", ".avi", ".mkv"},
	"audio":        {".mp3", ".wav", ".m4a", ".flac"},
}

// imageKeywords map to the image content type rather than extensions, since
// captions are indexed the same way regardless of format.
var imageKeywords = []string{"image", "images", "photo", "photos", "picture", "pictures", "screenshot", "screenshots"}

var documentTypeKeywords = map[string]string{
	"invoice":    "invoice",
	"invoices":   "invoice",
	"contract":   "contract",
	"contracts":  "contract",
	"report":     "report",
	"reports":    "report",
	"receipt":    "receipt",
	"receipts":   "receipt",
	"agreement":  "contract",
	"agreements": "contract",
	"resume":     "resume",
	"resumes":    "resume",
	"cv":         "resume",
	"proposal":   "proposal",
	"proposals":  "proposal",
	"memo":       "memo",
	"memos":      "memo",
	"letter":     "letter",
	"letters":    "letter",
}

// extractFilters recognizes file-type groups, document types, and time
// expressions in the resolved query.
func extractFilters(query string) types.Filters {
	lower := strings.ToLower(query)
	var f types.Filters

	words := strings.FieldsFunc(lower, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	})
	for _, w := range words {
		if exts, ok := fileTypeGroups[w]; ok {
			f.FileTypes = append(f.FileTypes, exts...)
		}
		if dt, ok := documentTypeKeywords[w]; ok {
			f.DocumentTypes = append(f.DocumentTypes, dt)
		}
	}
	for _, kw := range imageKeywords {
		if strings.Contains(lower, kw) {
			f.ContentTypes = append(f.ContentTypes, string(types.ContentImage))
			break
		}
	}

	f.FileTypes = dedupeFold(f.FileTypes)
	f.DocumentTypes = dedupeFold(f.DocumentTypes)
	f.Time = extractTimeRange(lower, time.Now())
	return f
}

// =============================================================================
// TIME EXPRESSIONS
// =============================================================================

var (
	relativeNRe = regexp.MustCompile(`(?:last|past)\s+(\d+)\s+(day|week|month)s?`)
	bareRelRe   = regexp.MustCompile(`(?:last|this)\s+(week|month|year)`)
	quarterRe   = regexp.MustCompile(`\bq([1-4])\s*(\d{4})?\b`)
	monthYearRe = regexp.MustCompile(`\b(january|february|march|april|may|june|july|august|september|october|november|december)\s*(\d{4})?\b`)
	bareYearRe  = regexp.MustCompile(`\b(20\d{2})\b`)
	rangeRe     = regexp.MustCompile(`from\s+(\d{4})\s+to\s+(\d{4})`)
)

var monthIndex = map[string]time.Month{
	"january": time.January, "february": time.February, "march": time.March,
	"april": time.April, "may": time.May, "june": time.June,
	"july": time.July, "august": time.August, "september": time.September,
	"october": time.October, "november": time.November, "december": time.December,
}

// extractTimeRange parses the first recognizable time expression into a
// half-open [From, To) window. Returns nil when nothing matches.
func extractTimeRange(lower string, now time.Time) *types.TimeRange {
	if m := rangeRe.FindStringSubmatch(lower); m != nil {
		fromYear, _ := strconv.Atoi(m[1])
		toYear, _ := strconv.Atoi(m[2])
		return &types.TimeRange{
			From: time.Date(fromYear, 1, 1, 0, 0, 0, 0, time.UTC),
			To:   time.Date(toYear+1, 1, 1, 0, 0, 0, 0, time.UTC),
		}
	}

	if m := relativeNRe.FindStringSubmatch(lower); m != nil {
		n, _ := strconv.Atoi(m[1])
		var d time.Duration
		switch m[2] {
		case "day":
			d = time.Duration(n) * 24 * time.Hour
		case "week":
			d = time.Duration(n) * 7 * 24 * time.Hour
		case "month":
			d = time.Duration(n) * 30 * 24 * time.Hour
		}
		return &types.TimeRange{From: now.Add(-d), To: now}
	}

	if m := bareRelRe.FindStringSubmatch(lower); m != nil {
		switch m[1] {
		case "week":
			return &types.TimeRange{From: now.AddDate(0, 0, -7), To: now}
		case "month":
			return &types.TimeRange{From: now.AddDate(0, -1, 0), To: now}
		case "year":
			return &types.TimeRange{From: now.AddDate(-1, 0, 0), To: now}
		}
	}

	if strings.Contains(lower, "today") {
		start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
		return &types.TimeRange{From: start, To: now}
	}
	if strings.Contains(lower, "yesterday") {
		start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location()).AddDate(0, 0, -1)
		return &types.TimeRange{From: start, To: start.AddDate(0, 0, 1)}
	}
	if strings.Contains(lower, "recent") {
		return &types.TimeRange{From: now.AddDate(0, 0, -30), To: now}
	}

	if m := quarterRe.FindStringSubmatch(lower); m != nil {
		q, _ := strconv.Atoi(m[1])
		year := now.Year()
		if m[2] != "" {
			year, _ = strconv.Atoi(m[2])
		}
		startMonth := time.Month((q-1)*3 + 1)
		from := time.Date(year, startMonth, 1, 0, 0, 0, 0, time.UTC)
		return &types.TimeRange{From: from, To: from.AddDate(0, 3, 0)}
	}

	if m := monthYearRe.FindStringSubmatch(lower); m != nil {
		// Bare "may" is almost always the modal verb, not the month.
		if m[1] == "may" && m[2] == "" {
			return nil
		}
		month := monthIndex[m[1]]
		year := now.Year()
		if m[2] != "" {
			year, _ = strconv.Atoi(m[2])
		}
		from := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
		return &types.TimeRange{From: from, To: from.AddDate(0, 1, 0)}
	}

	if m := bareYearRe.FindStringSubmatch(lower); m != nil {
		year, _ := strconv.Atoi(m[1])
		from := time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC)
		return &types.TimeRange{From: from, To: from.AddDate(1, 0, 0)}
	}
	return nil
}

func dedupeFold(in []string) []string {
	seen := make(map[string]bool, len(in))
	var out []string
	for _, s := range in {
		key := strings.ToLower(s)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, s)
	}
	return out
}
