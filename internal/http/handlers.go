package http

import (
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/tutorrag/internal/library"
	"github.com/fyrsmithlabs/tutorrag/internal/logging"
	"github.com/fyrsmithlabs/tutorrag/internal/progress"
	"github.com/fyrsmithlabs/tutorrag/internal/rag"
	"github.com/fyrsmithlabs/tutorrag/internal/vectorstore"
)

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// IngestRequest is the request body for POST /api/v1/rag/documents.
type IngestRequest struct {
	DocumentID      string         `json:"document_id,omitempty"`
	Title           string         `json:"title"`
	Text            string         `json:"text"`
	Metadata        map[string]any `json:"metadata,omitempty"`
	ReplaceExisting bool           `json:"replace_existing,omitempty"`
}

// RetrieveRequest is the request body for POST /api/v1/rag/retrieve.
type RetrieveRequest struct {
	Query      string `json:"query"`
	MatchCount int    `json:"match_count,omitempty"`
}

// RetrieveResponse wraps the retrieved matches.
type RetrieveResponse struct {
	Matches []vectorstore.Match `json:"matches"`
}

// LibrarySyncResponse lists per-file sync results.
type LibrarySyncResponse struct {
	Files []library.FileResult `json:"files"`
}

// StatusResponse acknowledges a write.
type StatusResponse struct {
	Status string `json:"status"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

func (s *Server) handleIngest(c echo.Context) error {
	var req IngestRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	return s.ingest(c, rag.IngestRequest{
		DocumentID:      req.DocumentID,
		Title:           req.Title,
		Text:            req.Text,
		Metadata:        rag.Metadata(req.Metadata),
		ReplaceExisting: req.ReplaceExisting,
	})
}

// handleUpload accepts a multipart "file" field, extracts its text and
// ingests it. Optional form fields: document_id, title, replace_existing.
func (s *Server) handleUpload(c echo.Context) error {
	fh, err := c.FormFile("file")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "multipart field \"file\" is required")
	}
	f, err := fh.Open()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "unreadable upload")
	}
	defer f.Close()
	content, err := io.ReadAll(f)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "unreadable upload")
	}

	doc, err := s.deps.Extractor.Extract(c.Request().Context(), fh.Filename, content)
	if err != nil {
		return s.fail(c, "extract", err)
	}

	replace := false
	if v := c.FormValue("replace_existing"); v != "" {
		replace, err = strconv.ParseBool(v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "replace_existing must be a boolean")
		}
	}
	title := strings.TrimSpace(c.FormValue("title"))
	if title == "" {
		title = doc.Title
	}

	return s.ingest(c, rag.IngestRequest{
		DocumentID: c.FormValue("document_id"),
		Title:      title,
		Text:       doc.Text,
		Metadata: rag.Metadata{
			"source_file": fh.Filename,
			"format":      string(doc.Format),
		},
		ReplaceExisting: replace,
	})
}

func (s *Server) ingest(c echo.Context, req rag.IngestRequest) error {
	if strings.TrimSpace(req.DocumentID) == "" {
		req.DocumentID = uuid.NewString()
	}
	ctx := logging.WithDocumentID(c.Request().Context(), req.DocumentID)
	c.SetRequest(c.Request().WithContext(ctx))

	res, err := s.deps.RAG.IngestDocument(ctx, req)
	if err != nil {
		return s.fail(c, "ingest", err)
	}
	return c.JSON(http.StatusOK, res)
}

func (s *Server) handleRetrieve(c echo.Context) error {
	var req RetrieveRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.MatchCount < 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "match_count must not be negative")
	}

	matches, err := s.deps.RAG.RetrieveContext(c.Request().Context(), req.Query, req.MatchCount)
	if err != nil {
		return s.fail(c, "retrieve", err)
	}
	return c.JSON(http.StatusOK, RetrieveResponse{Matches: matches})
}

func (s *Server) handleLibrarySync(c echo.Context) error {
	if s.deps.Library == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "reference library is not configured")
	}
	files, err := s.deps.Library.Sync(c.Request().Context())
	if err != nil {
		return s.fail(c, "library sync", err)
	}
	if files == nil {
		files = []library.FileResult{}
	}
	return c.JSON(http.StatusOK, LibrarySyncResponse{Files: files})
}

func (s *Server) handleProgressUpdate(c echo.Context) error {
	if s.deps.Progress == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "progress store is not configured")
	}
	var p progress.Progress
	if err := c.Bind(&p); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := s.deps.Progress.Update(c.Request().Context(), p); err != nil {
		return s.fail(c, "progress update", err)
	}
	return c.JSON(http.StatusOK, StatusResponse{Status: "ok"})
}

func (s *Server) handleProgressList(c echo.Context) error {
	if s.deps.Progress == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "progress store is not configured")
	}
	userID := c.Param("user_id")
	rows, err := s.deps.Progress.List(c.Request().Context(), userID)
	if err != nil {
		return s.fail(c, "progress list", err)
	}
	if rows == nil {
		rows = []progress.Progress{}
	}
	s.logger.Debug(c.Request().Context(), "listed progress",
		zap.String("user_id", userID),
		zap.Int("rows", len(rows)),
	)
	return c.JSON(http.StatusOK, rows)
}
