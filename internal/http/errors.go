package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/tutorrag/internal/chunker"
	"github.com/fyrsmithlabs/tutorrag/internal/embeddings"
	"github.com/fyrsmithlabs/tutorrag/internal/extract"
	"github.com/fyrsmithlabs/tutorrag/internal/library"
	"github.com/fyrsmithlabs/tutorrag/internal/progress"
	"github.com/fyrsmithlabs/tutorrag/internal/rag"
	"github.com/fyrsmithlabs/tutorrag/internal/supabase"
	"github.com/fyrsmithlabs/tutorrag/internal/vectorstore"
)

// statusFor maps a service error to an HTTP status. A request that ran out
// of time is a gateway timeout whatever call it was in. Configuration
// problems come next: a store that cannot be built is unavailable, not a
// failed upstream call.
func statusFor(err error) int {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, vectorstore.ErrConfigurationMissing),
		errors.Is(err, supabase.ErrNotConfigured),
		errors.Is(err, embeddings.ErrInvalidConfig),
		errors.Is(err, extract.ErrPDFToolNotFound),
		errors.Is(err, library.ErrNoFolders),
		errors.Is(err, rag.ErrServiceClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, extract.ErrUnsupportedFormat):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, rag.ErrInvalidRequest),
		errors.Is(err, chunker.ErrInvalidChunkingParameters),
		errors.Is(err, extract.ErrInvalidDocument),
		errors.Is(err, progress.ErrInvalidProgress):
		return http.StatusBadRequest
	case errors.Is(err, embeddings.ErrEmbeddingFailed),
		errors.Is(err, embeddings.ErrEmbeddingUnavailable),
		errors.Is(err, rag.ErrStorePersistFailure),
		errors.Is(err, rag.ErrStoreQueryFailure):
		return http.StatusBadGateway
	}
	var apiErr *supabase.APIError
	if errors.As(err, &apiErr) {
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// fail logs err and converts it to an echo error. Internal errors are not
// echoed back to the client.
func (s *Server) fail(c echo.Context, op string, err error) error {
	status := statusFor(err)
	ctx := c.Request().Context()
	if status >= http.StatusInternalServerError {
		s.logger.Error(ctx, op+" failed", zap.Int("status", status), zap.Error(err))
	} else {
		s.logger.Warn(ctx, op+" rejected", zap.Int("status", status), zap.Error(err))
	}
	if status == http.StatusInternalServerError {
		return echo.NewHTTPError(status, "internal error")
	}
	return echo.NewHTTPError(status, err.Error())
}
