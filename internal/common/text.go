package common

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// TruncateRunes returns s cut to at most max runes. Limits throughout the
// analysis prompts are character counts, not byte counts, so byte slicing
// would split multi-byte CJK runes.
func TruncateRunes(s string, max int) string {
	if max <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max])
}

// SnippetRunes returns s cut to max runes with suffix appended when the cut
// actually removed text. Used for log and prompt snippets like "text..." where
// the marker should only appear on truncation.
func SnippetRunes(s string, max int, suffix string) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	return TruncateRunes(s, max) + suffix
}

// RuneLen returns the number of runes in s.
func RuneLen(s string) int {
	return utf8.RuneCountInString(s)
}

// fencePattern matches a full markdown code block with an optional json
// language hint, capturing the inner content.
var fencePattern = regexp.MustCompile(`(?s)^\s*` + "```" + `(?:json|JSON)?\s*\n?(.*?)\n?\s*` + "```" + `\s*$`)

// CleanMarkdownFences removes markdown code fences from an LLM response so
// the remainder can be handed to the JSON decoder. Providers frequently wrap
// JSON output in ```json fences even when asked not to.
func CleanMarkdownFences(s string) string {
	s = strings.TrimSpace(s)

	if matches := fencePattern.FindStringSubmatch(s); len(matches) > 1 {
		s = matches[1]
	}

	// Fallback: simple prefix/suffix trimming for unbalanced fences
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```JSON")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")

	return strings.TrimSpace(s)
}
