package utils

import "strings"

// Snippet renders extracted document text as a single log-friendly line.
// Runs of whitespace, line breaks included, collapse into one space and the
// result is cut to limit runes with a trailing ellipsis.
func Snippet(text string, limit int) string {
	if limit <= 0 {
		return ""
	}
	line := strings.Join(strings.Fields(text), " ")
	runes := []rune(line)
	if len(runes) <= limit {
		return line
	}
	return string(runes[:limit]) + "..."
}

// TextStats returns the number of texts and their total length in runes.
func TextStats(texts []string) (count, runes int) {
	for _, t := range texts {
		runes += len([]rune(t))
	}
	return len(texts), runes
}
