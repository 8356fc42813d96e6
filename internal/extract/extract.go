// Package extract turns uploaded files into plain text for ingestion.
//
// Supported formats are PDF (through poppler's pdftotext), DOCX, plain
// text and Markdown. Legacy .doc files are not supported.
package extract

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

var (
	// ErrUnsupportedFormat is returned for file extensions with no extractor.
	ErrUnsupportedFormat = errors.New("unsupported document format")

	// ErrInvalidDocument is returned when a file cannot be parsed as its
	// extension claims.
	ErrInvalidDocument = errors.New("invalid document")
)

// Format names a supported input format.
type Format string

const (
	FormatPDF      Format = "pdf"
	FormatDOCX     Format = "docx"
	FormatText     Format = "txt"
	FormatMarkdown Format = "md"
)

// Document is the extracted text of one file.
type Document struct {
	Title  string `json:"title"`
	Text   string `json:"text"`
	Format Format `json:"format"`
}

// Extractor dispatches on file extension.
type Extractor struct {
	runner CommandRunner
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithRunner replaces the command runner used for pdftotext.
func WithRunner(r CommandRunner) Option {
	return func(e *Extractor) {
		if r != nil {
			e.runner = r
		}
	}
}

// New creates an Extractor that runs pdftotext from PATH.
func New(opts ...Option) *Extractor {
	e := &Extractor{runner: ExecRunner{}}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// FormatOf returns the format for filename's extension.
func FormatOf(filename string) (Format, error) {
	switch ext := strings.ToLower(filepath.Ext(filename)); ext {
	case ".pdf":
		return FormatPDF, nil
	case ".docx":
		return FormatDOCX, nil
	case ".txt":
		return FormatText, nil
	case ".md", ".markdown":
		return FormatMarkdown, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
}

// Supported reports whether filename has a supported extension.
func Supported(filename string) bool {
	_, err := FormatOf(filename)
	return err == nil
}

// Extract returns the text and title of content, which was read from
// filename. The title falls back to the file name without its extension.
func (e *Extractor) Extract(ctx context.Context, filename string, content []byte) (*Document, error) {
	format, err := FormatOf(filename)
	if err != nil {
		return nil, err
	}

	var doc *Document
	switch format {
	case FormatPDF:
		doc, err = e.extractPDF(ctx, content)
	case FormatDOCX:
		doc, err = extractDOCX(content)
	default:
		doc, err = extractText(content)
	}
	if err != nil {
		return nil, fmt.Errorf("extract %s: %w", filepath.Base(filename), err)
	}

	doc.Format = format
	if doc.Title == "" {
		doc.Title = titleFromFilename(filename)
	}
	return doc, nil
}

// titleFromFilename turns "de_thi-hk1.pdf" into "de thi hk1".
func titleFromFilename(filename string) string {
	name := filepath.Base(filename)
	name = strings.TrimSuffix(name, filepath.Ext(name))
	return strings.NewReplacer("_", " ", "-", " ").Replace(name)
}
