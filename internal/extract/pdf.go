package extract

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"unicode/utf8"
)

// ErrPDFToolNotFound is returned when pdftotext is not on PATH.
var ErrPDFToolNotFound = errors.New("pdftotext not found in PATH")

const pdfToText = "pdftotext"

// CommandRunner runs an external command and returns its stdout.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

// Run implements CommandRunner.
func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	path, err := exec.LookPath(name)
	if err != nil {
		if name == pdfToText {
			return nil, ErrPDFToolNotFound
		}
		return nil, err
	}
	var stderr strings.Builder
	cmd := exec.CommandContext(ctx, path, args...)
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w (stderr: %s)", err, strings.TrimSpace(stderr.String()))
	}
	return out, nil
}

// CheckAvailable reports whether pdftotext can be found.
func CheckAvailable() error {
	if _, err := exec.LookPath(pdfToText); err != nil {
		return ErrPDFToolNotFound
	}
	return nil
}

// InstallInstructions describes how to install pdftotext.
func InstallInstructions() string {
	return "pdftotext is part of poppler: brew install poppler (macOS), apt install poppler-utils (Debian/Ubuntu)"
}

func (e *Extractor) extractPDF(ctx context.Context, content []byte) (*Document, error) {
	if !strings.HasPrefix(string(content[:min(len(content), 5)]), "%PDF-") {
		return nil, fmt.Errorf("%w: missing PDF header", ErrInvalidDocument)
	}

	tmp, err := os.CreateTemp("", "tutorrag-*.pdf")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("close temp file: %w", err)
	}

	out, err := e.runner.Run(ctx, pdfToText, "-enc", "UTF-8", "-nopgbrk", tmp.Name(), "-")
	if err != nil {
		if errors.Is(err, ErrPDFToolNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("pdftotext failed: %w", err)
	}
	if !utf8.Valid(out) {
		out = []byte(strings.ToValidUTF8(string(out), ""))
	}

	text := strings.TrimSpace(string(out))
	return &Document{Title: firstLineTitle(text), Text: text}, nil
}

// firstLineTitle returns the first non-empty line if it is short enough to
// be a heading.
func firstLineTitle(text string) string {
	for line := range strings.SplitSeq(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if utf8.RuneCountInString(line) <= 120 {
			return line
		}
		return ""
	}
	return ""
}
