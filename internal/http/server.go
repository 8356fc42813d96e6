// Package http serves the tutorrag REST API.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/tutorrag/internal/extract"
	"github.com/fyrsmithlabs/tutorrag/internal/library"
	"github.com/fyrsmithlabs/tutorrag/internal/logging"
	"github.com/fyrsmithlabs/tutorrag/internal/progress"
	"github.com/fyrsmithlabs/tutorrag/internal/rag"
	"github.com/fyrsmithlabs/tutorrag/internal/vectorstore"
)

// RAG ingests documents and retrieves context.
type RAG interface {
	IngestDocument(ctx context.Context, req rag.IngestRequest) (*rag.IngestResult, error)
	RetrieveContext(ctx context.Context, query string, matchCount int) ([]vectorstore.Match, error)
}

// Library syncs the reference folders.
type Library interface {
	Sync(ctx context.Context) ([]library.FileResult, error)
}

// ProgressStore reads and writes node progress.
type ProgressStore interface {
	Update(ctx context.Context, p progress.Progress) error
	List(ctx context.Context, userID string) ([]progress.Progress, error)
}

// Extractor turns uploaded files into text.
type Extractor interface {
	Extract(ctx context.Context, filename string, content []byte) (*extract.Document, error)
}

// Deps are the services behind the API. RAG and Extractor are required;
// routes whose dependency is nil answer 503.
type Deps struct {
	RAG       RAG
	Extractor Extractor
	Library   Library
	Progress  ProgressStore
}

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int
	// MaxUpload is an echo body limit such as "20M".
	MaxUpload string
	// RequestTimeout is the deadline given to each request's context.
	RequestTimeout time.Duration
}

// Server provides the HTTP endpoints.
type Server struct {
	echo   *echo.Echo
	deps   Deps
	logger *logging.Logger
	config *Config
}

// Option configures a Server.
type Option func(*serverOptions)

type serverOptions struct {
	meter metric.Meter
}

// WithMeter records request metrics on meter instead of the global provider.
func WithMeter(m metric.Meter) Option {
	return func(o *serverOptions) {
		if m != nil {
			o.meter = m
		}
	}
}

// NewServer creates the server and registers its routes.
func NewServer(deps Deps, logger *logging.Logger, cfg *Config, opts ...Option) (*Server, error) {
	if deps.RAG == nil {
		return nil, errors.New("rag service cannot be nil")
	}
	if deps.Extractor == nil {
		return nil, errors.New("extractor cannot be nil")
	}
	if logger == nil {
		return nil, errors.New("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{Port: 9090}
	}
	if cfg.MaxUpload == "" {
		cfg.MaxUpload = "20M"
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 2 * time.Minute
	}

	o := serverOptions{meter: otel.Meter(instrumentationName)}
	for _, opt := range opts {
		opt(&o)
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(requestContext(logger))
	e.Use(requestLog(logger))
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
	}))
	e.Use(middleware.BodyLimit(cfg.MaxUpload))
	e.Use(NewMetrics(o.meter, logger.Underlying()).Middleware())
	e.Use(middleware.ContextTimeoutWithConfig(middleware.ContextTimeoutConfig{
		Timeout: cfg.RequestTimeout,
		ErrorHandler: func(err error, c echo.Context) error {
			var he *echo.HTTPError
			if !errors.As(err, &he) && errors.Is(err, context.DeadlineExceeded) {
				return echo.ErrGatewayTimeout.WithInternal(err)
			}
			return err
		},
	}))

	s := &Server{
		echo:   e,
		deps:   deps,
		logger: logger,
		config: cfg,
	}
	s.registerRoutes()

	return s, nil
}

// requestContext copies echo's request id into the request context so
// every log line written while serving the request carries it.
func requestContext(logger *logging.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			ctx := logging.WithRequestID(req.Context(), c.Response().Header().Get(echo.HeaderXRequestID))
			ctx = logging.WithLogger(ctx, logger)
			c.SetRequest(req.WithContext(ctx))
			return next(c)
		}
	}
}

func requestLog(logger *logging.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}

			logger.Info(c.Request().Context(), "http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", time.Since(start)),
			)
			return nil
		}
	}
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := s.echo.Group("/api/v1")
	v1.POST("/rag/documents", s.handleIngest)
	v1.POST("/rag/documents/upload", s.handleUpload)
	v1.POST("/rag/retrieve", s.handleRetrieve)
	v1.POST("/library/sync", s.handleLibrarySync)

	np := s.echo.Group("/node-progress")
	np.POST("/update", s.handleProgressUpdate)
	np.GET("/:user_id", s.handleProgressList)
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.echo }

// Start starts the HTTP server. It returns http.ErrServerClosed after
// Shutdown.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info(context.Background(), "starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info(ctx, "shutting down http server")
	return s.echo.Shutdown(ctx)
}
