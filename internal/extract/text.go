package extract

import (
	"bytes"
	"fmt"
	"strings"
	"unicode/utf8"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

func extractText(content []byte) (*Document, error) {
	content = bytes.TrimPrefix(content, utf8BOM)
	if !utf8.Valid(content) {
		return nil, fmt.Errorf("%w: text is not valid UTF-8", ErrInvalidDocument)
	}
	text := strings.TrimSpace(string(content))
	return &Document{Title: markdownTitle(text), Text: text}, nil
}

// markdownTitle returns the text of a leading "# " heading, if any.
func markdownTitle(text string) string {
	line, _, _ := strings.Cut(text, "\n")
	if title, ok := strings.CutPrefix(strings.TrimSpace(line), "# "); ok {
		return strings.TrimSpace(title)
	}
	return ""
}
