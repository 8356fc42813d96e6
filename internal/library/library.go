// Package library ingests folders of reference material (exercise sheets,
// past tests) into the vector store and keeps them current.
package library

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/tutorrag/internal/extract"
	"github.com/fyrsmithlabs/tutorrag/internal/rag"
)

// Metadata keys written on every library chunk.
const (
	KeyCategory   = "category"
	KeySourceFile = "source_file"
)

// Categories of reference material.
const (
	CategoryExercises = "exercises"
	CategoryTests     = "tests"
)

// maxFileSize bounds files read from a library folder.
const maxFileSize = 50 << 20

// ErrNoFolders is returned when no folder is configured.
var ErrNoFolders = errors.New("no library folders configured")

// Ingester stores extracted documents.
type Ingester interface {
	IngestDocument(ctx context.Context, req rag.IngestRequest) (*rag.IngestResult, error)
}

// Extractor turns a file into text.
type Extractor interface {
	Extract(ctx context.Context, filename string, content []byte) (*extract.Document, error)
}

// Folder is a directory of one category of material.
type Folder struct {
	Category string
	Dir      string
}

// Config configures a Library.
type Config struct {
	Folders []Folder
	// MaxFiles caps the files ingested per folder by Sync, in name order.
	MaxFiles int
	// Debounce is how long a file must be quiet before Watch re-ingests it.
	Debounce time.Duration
}

// FileResult reports the outcome for one file.
type FileResult struct {
	Category   string `json:"category"`
	File       string `json:"file"`
	DocumentID string `json:"document_id"`
	Chunks     int    `json:"chunks"`
	Error      string `json:"error,omitempty"`
}

// Library syncs reference folders into a RAG ingester.
type Library struct {
	cfg       Config
	ingester  Ingester
	extractor Extractor
	logger    *zap.Logger
}

// New creates a Library. Folders with an empty Dir are dropped.
func New(cfg Config, ingester Ingester, extractor Extractor, logger *zap.Logger) (*Library, error) {
	if ingester == nil || extractor == nil {
		return nil, errors.New("ingester and extractor are required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	folders := cfg.Folders[:0:0]
	for _, f := range cfg.Folders {
		if f.Dir != "" {
			folders = append(folders, f)
		}
	}
	cfg.Folders = folders
	if cfg.MaxFiles <= 0 {
		cfg.MaxFiles = 5
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = 500 * time.Millisecond
	}
	return &Library{cfg: cfg, ingester: ingester, extractor: extractor, logger: logger}, nil
}

// Folders returns the configured folders.
func (l *Library) Folders() []Folder { return l.cfg.Folders }

// DocumentID is the stable id of a library file: a version 5 UUID of
// "category/filename", so re-ingesting a file replaces its chunks.
func DocumentID(category, filename string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(category+"/"+filename)).String()
}

// Sync ingests up to MaxFiles supported files from every folder. Files
// that fail are reported in their FileResult and skipped. A missing folder
// is logged and skipped; only a cancelled ctx aborts the sync.
func (l *Library) Sync(ctx context.Context) ([]FileResult, error) {
	if len(l.cfg.Folders) == 0 {
		return nil, ErrNoFolders
	}

	var results []FileResult
	for _, folder := range l.cfg.Folders {
		files, err := l.listFiles(folder.Dir)
		if err != nil {
			l.logger.Warn("skipping library folder",
				zap.String("category", folder.Category),
				zap.String("dir", folder.Dir),
				zap.Error(err),
			)
			continue
		}
		for _, path := range files {
			if err := ctx.Err(); err != nil {
				return results, err
			}
			res, err := l.IngestFile(ctx, folder.Category, path)
			if err != nil {
				res.Error = err.Error()
				l.logger.Warn("library file skipped",
					zap.String("file", path),
					zap.Error(err),
				)
			}
			results = append(results, res)
		}
	}

	l.logger.Info("library sync complete", zap.Int("files", len(results)))
	return results, nil
}

// listFiles returns the first MaxFiles supported regular files in dir,
// sorted by name.
func (l *Library) listFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if !e.Type().IsRegular() || !extract.Supported(e.Name()) {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
		if len(files) == l.cfg.MaxFiles {
			break
		}
	}
	return files, nil
}

// IngestFile extracts and ingests one file, replacing earlier chunks of
// the same file.
func (l *Library) IngestFile(ctx context.Context, category, path string) (FileResult, error) {
	name := filepath.Base(path)
	res := FileResult{Category: category, File: name, DocumentID: DocumentID(category, name)}

	info, err := os.Stat(path)
	if err != nil {
		return res, err
	}
	if info.Size() > maxFileSize {
		return res, fmt.Errorf("%s is %d bytes, limit %d", name, info.Size(), maxFileSize)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return res, err
	}

	doc, err := l.extractor.Extract(ctx, name, content)
	if err != nil {
		return res, err
	}

	out, err := l.ingester.IngestDocument(ctx, rag.IngestRequest{
		DocumentID: res.DocumentID,
		Title:      doc.Title,
		Text:       doc.Text,
		Metadata: rag.Metadata{
			KeyCategory:   category,
			KeySourceFile: name,
		},
		ReplaceExisting: true,
	})
	if err != nil {
		return res, err
	}
	res.Chunks = out.Chunks

	l.logger.Debug("ingested library file",
		zap.String("category", category),
		zap.String("file", name),
		zap.Int("chunks", out.Chunks),
	)
	return res, nil
}
