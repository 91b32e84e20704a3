package coach

import "strings"

// extractJSON returns the JSON payload embedded in an LLM reply. Models
// regularly wrap JSON in markdown fences or surround it with prose; this
// trims everything outside the outermost array or object.
func extractJSON(s string) string {
	s = strings.TrimSpace(s)

	if idx := strings.Index(s, "```"); idx >= 0 {
		s = s[idx+3:]
		s = strings.TrimPrefix(s, "json")
		if end := strings.Index(s, "```"); end >= 0 {
			s = s[:end]
		}
		s = strings.TrimSpace(s)
	}

	arrStart := strings.IndexByte(s, '[')
	objStart := strings.IndexByte(s, '{')

	start, closer := objStart, byte('}')
	if arrStart >= 0 && (objStart < 0 || arrStart < objStart) {
		start, closer = arrStart, ']'
	}
	if start < 0 {
		return s
	}

	if end := strings.LastIndexByte(s, closer); end > start {
		return s[start : end+1]
	}
	return s[start:]
}
