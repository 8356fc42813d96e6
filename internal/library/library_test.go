package library

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/tutorrag/internal/extract"
	"github.com/fyrsmithlabs/tutorrag/internal/rag"
)

type fakeIngester struct {
	mu   sync.Mutex
	reqs []rag.IngestRequest
	err  error
}

func (f *fakeIngester) IngestDocument(_ context.Context, req rag.IngestRequest) (*rag.IngestResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.reqs = append(f.reqs, req)
	return &rag.IngestResult{DocumentID: req.DocumentID, Chunks: 1}, nil
}

func (f *fakeIngester) requests() []rag.IngestRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]rag.IngestRequest(nil), f.reqs...)
}

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func newTestLibrary(t *testing.T, ing Ingester, folders ...Folder) *Library {
	t.Helper()
	lib, err := New(Config{Folders: folders, MaxFiles: 2, Debounce: 20 * time.Millisecond}, ing, extract.New(), zap.NewNop())
	require.NoError(t, err)
	return lib
}

func TestNew(t *testing.T) {
	_, err := New(Config{}, nil, extract.New(), nil)
	assert.Error(t, err)

	lib, err := New(Config{Folders: []Folder{{Category: CategoryTests, Dir: ""}}}, &fakeIngester{}, extract.New(), nil)
	require.NoError(t, err)
	assert.Empty(t, lib.Folders())
	assert.Equal(t, 5, lib.cfg.MaxFiles)
	assert.Equal(t, 500*time.Millisecond, lib.cfg.Debounce)

	_, err = lib.Sync(context.Background())
	assert.ErrorIs(t, err, ErrNoFolders)
	_, err = lib.Watch(context.Background())
	assert.ErrorIs(t, err, ErrNoFolders)
}

func TestDocumentID_Stable(t *testing.T) {
	a := DocumentID(CategoryExercises, "bai1.txt")
	assert.Equal(t, a, DocumentID(CategoryExercises, "bai1.txt"))
	assert.NotEqual(t, a, DocumentID(CategoryTests, "bai1.txt"))
	assert.Len(t, a, 36)
}

func TestSync_IngestsFirstFilesByName(t *testing.T) {
	exercises := t.TempDir()
	tests := t.TempDir()
	writeFile(t, exercises, "c.txt", "third")
	writeFile(t, exercises, "a.txt", "first")
	writeFile(t, exercises, "b.md", "# Hai\nsecond")
	writeFile(t, exercises, "skip.png", "binary")
	require.NoError(t, os.Mkdir(filepath.Join(exercises, "sub.txt"), 0o755))
	writeFile(t, tests, "de1.txt", "de thi")

	ing := &fakeIngester{}
	lib := newTestLibrary(t, ing,
		Folder{Category: CategoryExercises, Dir: exercises},
		Folder{Category: CategoryTests, Dir: tests},
	)

	results, err := lib.Sync(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, "a.txt", results[0].File)
	assert.Equal(t, "b.md", results[1].File)
	assert.Equal(t, "de1.txt", results[2].File)
	assert.Equal(t, CategoryTests, results[2].Category)

	reqs := ing.requests()
	require.Len(t, reqs, 3)
	assert.True(t, reqs[0].ReplaceExisting)
	assert.Equal(t, DocumentID(CategoryExercises, "a.txt"), reqs[0].DocumentID)
	assert.Equal(t, CategoryExercises, reqs[0].Metadata[KeyCategory])
	assert.Equal(t, "a.txt", reqs[0].Metadata[KeySourceFile])
	assert.Equal(t, "Hai", reqs[1].Title)
	assert.Equal(t, "de thi", reqs[2].Text)
}

func TestSync_SkipsBadFilesAndMissingFolders(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.docx", "not a zip")
	writeFile(t, dir, "b.txt", "ok")

	ing := &fakeIngester{}
	lib := newTestLibrary(t, ing,
		Folder{Category: CategoryExercises, Dir: filepath.Join(dir, "missing")},
		Folder{Category: CategoryTests, Dir: dir},
	)

	results, err := lib.Sync(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.NotEmpty(t, results[0].Error)
	assert.Empty(t, results[1].Error)
	assert.Equal(t, 1, results[1].Chunks)
	assert.Len(t, ing.requests(), 1)
}

func TestSync_IngestFailureReported(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.txt", "x")

	lib := newTestLibrary(t, &fakeIngester{err: errors.New("store down")}, Folder{Category: CategoryTests, Dir: dir})
	results, err := lib.Sync(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "store down", results[0].Error)
}

func TestSync_CancelledContext(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.txt", "x")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ing := &fakeIngester{}
	lib := newTestLibrary(t, ing, Folder{Category: CategoryTests, Dir: dir})
	_, err := lib.Sync(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, ing.requests())
}

func TestWatch_ReingestsChangedFile(t *testing.T) {
	dir := t.TempDir()
	ing := &fakeIngester{}
	lib := newTestLibrary(t, ing, Folder{Category: CategoryExercises, Dir: dir})

	w, err := lib.Watch(context.Background())
	require.NoError(t, err)
	defer w.Stop()

	writeFile(t, dir, "ignored.png", "x")
	path := writeFile(t, dir, "bai2.txt", "v1")
	require.NoError(t, os.WriteFile(path, []byte("v2"), 0o644))

	require.Eventually(t, func() bool { return len(ing.requests()) >= 1 }, 2*time.Second, 10*time.Millisecond)

	// Writes within the debounce window collapse into one ingestion.
	time.Sleep(100 * time.Millisecond)
	reqs := ing.requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, DocumentID(CategoryExercises, "bai2.txt"), reqs[0].DocumentID)
	assert.Equal(t, "v2", reqs[0].Text)
}

func TestWatch_StopsWithContext(t *testing.T) {
	lib := newTestLibrary(t, &fakeIngester{}, Folder{Category: CategoryTests, Dir: t.TempDir()})

	ctx, cancel := context.WithCancel(context.Background())
	w, err := lib.Watch(ctx)
	require.NoError(t, err)

	cancel()
	select {
	case <-w.Done():
	case <-time.After(time.Second):
		t.Fatal("watcher did not stop")
	}
	w.Stop()
}

func TestWatch_MissingFolder(t *testing.T) {
	lib := newTestLibrary(t, &fakeIngester{}, Folder{Category: CategoryTests, Dir: filepath.Join(t.TempDir(), "nope")})
	_, err := lib.Watch(context.Background())
	assert.Error(t, err)
}
