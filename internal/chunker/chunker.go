// Package chunker splits document text into overlapping, boundary-aware chunks
// sized for embedding models.
package chunker

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// ErrInvalidChunkingParameters is returned when size or overlap cannot
// produce a terminating window sequence.
var ErrInvalidChunkingParameters = errors.New("invalid chunking parameters")

const (
	// DefaultChunkSize is the window size in characters.
	DefaultChunkSize = 1200
	// DefaultOverlap is the number of characters shared by consecutive chunks.
	DefaultOverlap = 200
)

// boundaries are the preferred cut points, paragraph first. The latest match
// among all of them wins.
var boundaries = []string{"\n\n", ". ", "; "}

// Chunk is one segment of a document.
type Chunk struct {
	Index   int
	Content string
}

// Chunker holds validated window parameters.
type Chunker struct {
	size    int
	overlap int
}

// Option configures a Chunker.
type Option func(*Chunker)

// WithSize sets the window size in characters.
func WithSize(size int) Option {
	return func(c *Chunker) { c.size = size }
}

// WithOverlap sets the overlap in characters.
func WithOverlap(overlap int) Option {
	return func(c *Chunker) { c.overlap = overlap }
}

// New creates a Chunker. Invalid parameters fail here rather than on first use.
func New(opts ...Option) (*Chunker, error) {
	c := &Chunker{size: DefaultChunkSize, overlap: DefaultOverlap}
	for _, opt := range opts {
		opt(c)
	}
	if err := Validate(c.size, c.overlap); err != nil {
		return nil, err
	}
	return c, nil
}

// Size returns the configured window size.
func (c *Chunker) Size() int { return c.size }

// Overlap returns the configured overlap.
func (c *Chunker) Overlap() int { return c.overlap }

// Split chunks text and numbers the result.
func (c *Chunker) Split(text string) []Chunk {
	parts := split(text, c.size, c.overlap)
	chunks := make([]Chunk, len(parts))
	for i, p := range parts {
		chunks[i] = Chunk{Index: i, Content: p}
	}
	return chunks
}

// Validate checks that size is positive and 0 <= overlap < size.
func Validate(size, overlap int) error {
	if size <= 0 {
		return fmt.Errorf("%w: chunk size must be positive, got %d", ErrInvalidChunkingParameters, size)
	}
	if overlap < 0 {
		return fmt.Errorf("%w: overlap must not be negative, got %d", ErrInvalidChunkingParameters, overlap)
	}
	if overlap >= size {
		return fmt.Errorf("%w: overlap %d must be smaller than chunk size %d", ErrInvalidChunkingParameters, overlap, size)
	}
	return nil
}

// ChunkText splits text into windows of at most size characters that overlap by
// overlap characters. Empty or whitespace-only text yields no chunks.
func ChunkText(text string, size, overlap int) ([]string, error) {
	if err := Validate(size, overlap); err != nil {
		return nil, err
	}
	return split(text, size, overlap), nil
}

func split(text string, size, overlap int) []string {
	normalized := Normalize(text)
	if normalized == "" {
		return []string{}
	}

	runes := []rune(normalized)
	n := len(runes)
	half := float64(size) * 0.5

	chunks := make([]string, 0, n/size+1)
	start := 0
	for start < n {
		end := min(start+size, n)
		if end < n {
			if cut := lastBoundary(runes[start:end]); cut >= 0 && float64(cut) > half {
				end = start + cut + 1
			}
		}

		if chunk := strings.TrimSpace(string(runes[start:end])); chunk != "" {
			chunks = append(chunks, chunk)
		}
		if end >= n {
			break
		}

		next := max(0, end-overlap)
		if next <= start {
			next = end
		}
		start = next
	}
	return chunks
}

// lastBoundary returns the rune offset of the latest boundary in window, or -1.
func lastBoundary(window []rune) int {
	s := string(window)
	best := -1
	for _, b := range boundaries {
		idx := strings.LastIndex(s, b)
		if idx < 0 {
			continue
		}
		if pos := utf8.RuneCountInString(s[:idx]); pos > best {
			best = pos
		}
	}
	return best
}

// Normalize trims every line, drops blank lines and joins the rest with "\n".
func Normalize(text string) string {
	lines := strings.Split(text, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if line = strings.TrimSpace(line); line != "" {
			kept = append(kept, line)
		}
	}
	return strings.Join(kept, "\n")
}
