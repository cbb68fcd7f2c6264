package ingest

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"olympus/internal/llm"
	"olympus/internal/types"
)

// =============================================================================
// COMPREHENSIVE SUMMARY
// =============================================================================

// Analysis is the parsed output of the comprehensive-summary call.
type Analysis struct {
	Summary            string
	Keywords           []string
	EntitiesFlat       []string
	EntitiesStructured map[string][]string
	Relationships      []types.Relationship
	Topics             []string
}

const summaryTemplate = `Analyze the document below and respond EXACTLY in this format:

SUMMARY:
<detailed summary of the document content, 5-15 sentences>

KEYWORDS:
<comma-separated keywords>

ENTITIES_STRUCTURED:
persons: <comma-separated or empty>
skills: <comma-separated or empty>
companies: <comma-separated or empty>
education: <comma-separated or empty>
locations: <comma-separated or empty>
dates: <comma-separated or empty>
projects: <comma-separated or empty>
technologies: <comma-separated or empty>
other: <comma-separated or empty>

RELATIONSHIPS:
<one per line: Entity1 | relation_type | Entity2, or empty>

TOPICS:
<comma-separated topics>

Document (%s):
%s`

// summarize runs the comprehensive-summary call and parses the sections.
// The summary section is mandatory; everything else degrades to heuristics.
func (p *Pipeline) summarize(ctx context.Context, filename, content string) (*Analysis, error) {
	prompt := fmt.Sprintf(summaryTemplate, filename, capText(content, 12000))

	resp, err := p.client.Complete(ctx, llm.Request{
		Model:  p.textModel,
		Prompt: prompt,
		Validate: func(s string) bool {
			return strings.Contains(s, "SUMMARY")
		},
	})
	if err != nil {
		return nil, fmt.Errorf("summary generation failed: %w", err)
	}

	analysis := parseSummaryResponse(resp.Text)
	if strings.TrimSpace(analysis.Summary) == "" {
		return nil, fmt.Errorf("model produced no summary section")
	}
	if p.cfg.SummaryMaxLength > 0 && len(analysis.Summary) > p.cfg.SummaryMaxLength {
		analysis.Summary = analysis.Summary[:p.cfg.SummaryMaxLength]
	}

	if len(analysis.EntitiesStructured) == 0 && len(analysis.EntitiesFlat) > 0 {
		analysis.EntitiesStructured = categorizeEntities(analysis.EntitiesFlat)
	}
	return analysis, nil
}

var sectionRe = regexp.MustCompile(`(?m)^(SUMMARY|KEYWORDS|ENTITIES_STRUCTURED|RELATIONSHIPS|TOPICS):\s*`)

// parseSummaryResponse splits the response into its labeled sections.
func parseSummaryResponse(text string) *Analysis {
	analysis := &Analysis{EntitiesStructured: map[string][]string{}}

	sections := splitSections(text)
	analysis.Summary = strings.TrimSpace(sections["SUMMARY"])
	analysis.Keywords = splitList(sections["KEYWORDS"])
	analysis.Topics = splitList(sections["TOPICS"])

	// ENTITIES_STRUCTURED: "category: a, b, c" lines.
	for _, line := range strings.Split(sections["ENTITIES_STRUCTURED"], "\n") {
		parts := strings.SplitN(line, ":", 2)
		if len(parts) != 2 {
			continue
		}
		category := strings.ToLower(strings.TrimSpace(parts[0]))
		if !validCategory(category) {
			continue
		}
		values := splitList(parts[1])
		if len(values) > 0 {
			analysis.EntitiesStructured[category] = values
			analysis.EntitiesFlat = append(analysis.EntitiesFlat, values...)
		}
	}

	// RELATIONSHIPS: "E1 | type | E2" lines.
	for _, line := range strings.Split(sections["RELATIONSHIPS"], "\n") {
		parts := strings.Split(line, "|")
		if len(parts) != 3 {
			continue
		}
		source := strings.TrimSpace(parts[0])
		relType := strings.TrimSpace(parts[1])
		target := strings.TrimSpace(parts[2])
		if source == "" || relType == "" || target == "" {
			continue
		}
		analysis.Relationships = append(analysis.Relationships, types.Relationship{
			SourceID: source, TargetID: target, Type: relType, Weight: 1.0,
		})
	}
	return analysis
}

func splitSections(text string) map[string]string {
	sections := make(map[string]string)
	locs := sectionRe.FindAllStringSubmatchIndex(text, -1)
	for i, loc := range locs {
		name := strings.TrimSuffix(strings.TrimSpace(text[loc[0]:loc[1]]), ":")
		end := len(text)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		sections[name] = text[loc[1]:end]
	}
	return sections
}

func splitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		item = strings.TrimSpace(strings.Trim(strings.TrimSpace(item), "-•"))
		if item == "" || strings.EqualFold(item, "empty") || strings.EqualFold(item, "none") {
			continue
		}
		out = append(out, item)
	}
	return out
}

func validCategory(c string) bool {
	for _, known := range types.EntityCategories {
		if c == known {
			return true
		}
	}
	return false
}

// =============================================================================
// ENTITY AUTO-CATEGORIZATION
// =============================================================================

var (
	skillHints   = []string{"programming", "management", "analysis", "design", "engineering", "marketing", "sales", "writing"}
	companyHints = []string{"inc", "llc", "ltd", "corp", "gmbh", "company", "technologies", "systems", "solutions"}
	eduHints     = []string{"university", "college", "school", "institute", "academy", "bachelor", "master", "phd"}
	techHints    = []string{"python", "java", "golang", "javascript", "sql", "aws", "docker", "kubernetes", "react", "linux"}
	personRe     = regexp.MustCompile(`^[A-Z][a-z]+(?:\s+[A-Z][a-z]+){1,2}$`)
)

// categorizeEntities sorts a flat entity list into the fixed categories by
// keyword heuristics. Two-or-three capitalized words look like a person;
// anything unmatched lands in "other".
func categorizeEntities(flat []string) map[string][]string {
	out := make(map[string][]string)
	add := func(category, value string) {
		out[category] = append(out[category], value)
	}

	for _, e := range flat {
		lower := strings.ToLower(e)
		switch {
		case containsHint(lower, eduHints):
			add("education", e)
		case containsHint(lower, companyHints):
			add("companies", e)
		case containsHint(lower, techHints):
			add("technologies", e)
		case containsHint(lower, skillHints):
			add("skills", e)
		case personRe.MatchString(e):
			add("persons", e)
		default:
			add("other", e)
		}
	}
	return out
}

func containsHint(s string, hints []string) bool {
	for _, h := range hints {
		if strings.Contains(s, h) {
			return true
		}
	}
	return false
}
