package ai

import "strings"

// stripCodeFences removes markdown code block formatting if present. Model
// responses are expected to be raw JSON but frequently arrive wrapped in
// ```json fences.
func stripCodeFences(content string) string {
	content = strings.TrimSpace(content)

	if strings.HasPrefix(content, "```") {
		// Skip past the opening ``` and optional language identifier
		start := 3
		if newlineIdx := strings.Index(content[start:], "\n"); newlineIdx != -1 {
			start += newlineIdx + 1
		}
		if endIdx := strings.Index(content[start:], "```"); endIdx != -1 {
			content = content[start : start+endIdx]
		} else {
			content = content[start:]
		}
	}

	return strings.TrimSpace(content)
}

// ExtractJSONArray trims a fenced response down to the outermost JSON
// array. Exported for collaborating packages that parse array responses.
func ExtractJSONArray(content string) string {
	content = stripCodeFences(content)
	if startIdx := strings.Index(content, "["); startIdx != -1 {
		if endIdx := strings.LastIndex(content, "]"); endIdx > startIdx {
			content = content[startIdx : endIdx+1]
		}
	}
	return strings.TrimSpace(content)
}

// extractJSONObject trims a fenced response down to the outermost JSON object.
func extractJSONObject(content string) string {
	content = stripCodeFences(content)
	if startIdx := strings.Index(content, "{"); startIdx != -1 {
		if endIdx := strings.LastIndex(content, "}"); endIdx > startIdx {
			content = content[startIdx : endIdx+1]
		}
	}
	return strings.TrimSpace(content)
}

// sanitizeForPrompt collapses whitespace and truncates long values before
// they are embedded in a prompt.
func sanitizeForPrompt(input string, limit int) string {
	collapsed := strings.Join(strings.Fields(strings.TrimSpace(input)), " ")
	if limit <= 0 {
		return collapsed
	}
	runes := []rune(collapsed)
	if len(runes) <= limit {
		return collapsed
	}
	if limit > 3 {
		return string(runes[:limit-3]) + "..."
	}
	return string(runes[:limit])
}
