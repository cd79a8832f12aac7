package corpus

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/spf13/afero"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

// TextSource extracts cleaned text from a document.
type TextSource interface {
	// Supports reports whether the source can read the file.
	Supports(path string) bool
	// ExtractAndClean returns the cleaned text of the file.
	ExtractAndClean(ctx context.Context, path string) (string, error)
}

// minCleanLength is the shortest cleaned text still treated as content.
const minCleanLength = 4

var (
	disallowed = regexp.MustCompile(`[^\p{L}\p{N}_\s.@\-+(),;:]`)
	spaces     = regexp.MustCompile(`\s+`)
	lower      = cases.Lower(language.Und)
)

// Clean lower-cases text, replaces unexpected symbols with spaces and
// collapses whitespace. Text shorter than four characters is discarded.
func Clean(text string) string {
	text = norm.NFC.String(text)
	text = lower.String(text)
	text = disallowed.ReplaceAllString(text, " ")
	text = strings.TrimSpace(spaces.ReplaceAllString(text, " "))
	if len([]rune(text)) < minCleanLength {
		return ""
	}
	return text
}

// PlainText reads .txt files from a filesystem.
type PlainText struct {
	fs afero.Fs
}

// NewPlainText returns a plain text source backed by fs.
func NewPlainText(fs afero.Fs) *PlainText {
	return &PlainText{fs: fs}
}

func (p *PlainText) Supports(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".txt")
}

func (p *PlainText) ExtractAndClean(ctx context.Context, path string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	data, err := afero.ReadFile(p.fs, path)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	return Clean(string(data)), nil
}
