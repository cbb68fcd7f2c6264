package llm

import (
	"encoding/base64"
	"strings"
)

// ExtractJSONObject strips markdown fences from model output and returns the
// first balanced {...} block, or "" if none exists. Models wrap JSON in
// ```json fences or prepend prose often enough that raw unmarshal is never
// attempted directly.
func ExtractJSONObject(s string) string {
	s = stripFences(s)

	start := strings.IndexByte(s, '{')
	if start < 0 {
		return ""
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if escaped {
			escaped = false
			continue
		}
		switch c {
		case '\\':
			if inString {
				escaped = true
			}
		case '"':
			inString = !inString
		case '{':
			if !inString {
				depth++
			}
		case '}':
			if !inString {
				depth--
				if depth == 0 {
					return s[start : i+1]
				}
			}
		}
	}
	return ""
}

// stripFences removes ``` and ```json markers while keeping the inner text.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.Contains(s, "```") {
		return s
	}
	var b strings.Builder
	for _, line := range strings.Split(s, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") {
			continue
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return strings.TrimSpace(b.String())
}

func encodeBase64(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}
