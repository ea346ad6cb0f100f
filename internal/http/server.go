// Package http provides the HTTP API for taskd.
package http

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fyrsmithlabs/taskd/internal/approval"
	"github.com/fyrsmithlabs/taskd/internal/extraction"
	"github.com/fyrsmithlabs/taskd/internal/logging"
	"github.com/fyrsmithlabs/taskd/internal/notes"
	"github.com/fyrsmithlabs/taskd/internal/provider"
	"github.com/fyrsmithlabs/taskd/internal/tasks"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Extractor runs extractions. Implemented by *extraction.Orchestrator.
type Extractor interface {
	Extract(ctx context.Context, req extraction.Request) (*extraction.Result, error)
	Apply(ctx context.Context, res *extraction.Result, src extraction.Source) (*extraction.Result, error)
	ProcessNote(ctx context.Context, n notes.Note) (*extraction.Result, error)
	Client() provider.Client
}

// PendingQueue is the approval queue. Implemented by *approval.Queue.
type PendingQueue interface {
	List(ctx context.Context) ([]*tasks.PendingTask, error)
	Approve(ctx context.Context, id string) (*tasks.Task, error)
	Reject(ctx context.Context, id string) error
	BulkApprove(ctx context.Context, ids []string) approval.BulkResult
	BulkReject(ctx context.Context, ids []string) approval.BulkResult
}

// TaskLister lists accepted tasks. Implemented by store.Store.
type TaskLister interface {
	ListTasks(ctx context.Context) ([]*tasks.Task, error)
}

// NoteSaver stores notes for the background sweep. Implemented by
// notes.Store.
type NoteSaver interface {
	Put(ctx context.Context, n notes.Note) error
}

// Services are the components the API exposes.
type Services struct {
	Extractor Extractor
	Queue     PendingQueue
	Tasks     TaskLister
	// Notes enables POST /api/v1/notes when set.
	Notes NoteSaver

	// Gatherer backs /metrics; nil uses the default Prometheus registry.
	Gatherer prometheus.Gatherer
	// Metrics instruments requests when set.
	Metrics *HTTPMetrics
}

// Server provides HTTP endpoints for taskd.
type Server struct {
	echo      *echo.Echo
	extractor Extractor
	queue     PendingQueue
	tasks     TaskLister
	notes     NoteSaver
	logger    *zap.Logger
	config    *Config
}

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int
}

// NewServer creates a new HTTP server.
func NewServer(svc Services, logger *zap.Logger, cfg *Config) (*Server, error) {
	if svc.Extractor == nil {
		return nil, errors.New("extractor cannot be nil")
	}
	if svc.Queue == nil {
		return nil, errors.New("pending queue cannot be nil")
	}
	if svc.Tasks == nil {
		return nil, errors.New("task lister cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{
			Host: "localhost",
			Port: 9191,
		}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(requestContext())
	if svc.Metrics != nil {
		e.Use(svc.Metrics.MetricsMiddleware())
	}
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				// Render now so the logged status is the one sent.
				c.Error(err)
			}
			duration := time.Since(start)

			logger.Info("http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", duration),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)

			return nil
		}
	})

	s := &Server{
		echo:      e,
		extractor: svc.Extractor,
		queue:     svc.Queue,
		tasks:     svc.Tasks,
		notes:     svc.Notes,
		logger:    logger,
		config:    cfg,
	}

	s.registerRoutes(svc.Gatherer)

	return s, nil
}

// requestContext copies the request id into the request context so core
// packages log it.
func requestContext() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if id := c.Response().Header().Get(echo.HeaderXRequestID); id != "" {
				req := c.Request()
				c.SetRequest(req.WithContext(logging.WithRequestID(req.Context(), id)))
			}
			return next(c)
		}
	}
}

func (s *Server) registerRoutes(gatherer prometheus.Gatherer) {
	s.echo.GET("/health", s.handleHealth)

	metrics := promhttp.Handler()
	if gatherer != nil {
		metrics = promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
	}
	s.echo.GET("/metrics", echo.WrapHandler(metrics))

	v1 := s.echo.Group("/api/v1")
	v1.POST("/extract", s.handleExtract)
	v1.POST("/extract/apply", s.handleExtractApply)
	v1.POST("/notes/process", s.handleProcessNote)
	if s.notes != nil {
		v1.POST("/notes", s.handleSaveNote)
	}
	v1.GET("/tasks", s.handleListTasks)
	v1.GET("/pending", s.handleListPending)
	v1.POST("/pending/approve", s.handleBulkApprove)
	v1.POST("/pending/reject", s.handleBulkReject)
	v1.POST("/pending/:id/approve", s.handleApprove)
	v1.POST("/pending/:id/reject", s.handleReject)
	v1.POST("/provider/test", s.handleTestProvider)
}

// Echo returns the underlying echo instance.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info("starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}
