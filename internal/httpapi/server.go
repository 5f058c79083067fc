// Package httpapi serves readings, news and operational endpoints over HTTP.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/lpdev/bitpredector/internal/aggregate"
	"github.com/lpdev/bitpredector/internal/logging"
	"github.com/lpdev/bitpredector/internal/metrics"
	"github.com/lpdev/bitpredector/internal/report"
	"github.com/lpdev/bitpredector/internal/source"
	"github.com/lpdev/bitpredector/internal/store"
)

const (
	newsLimit       = 10
	shutdownTimeout = 10 * time.Second
)

// Analyzer runs analyses and manages the source registry.
type Analyzer interface {
	Run(ctx context.Context, keyword string) aggregate.Reading
	Sources() *source.Set
	SetEnabled(ctx context.Context, name string, enabled bool) error
}

// ReadingStore persists readings and serves stored news.
type ReadingStore interface {
	SaveReading(ctx context.Context, r aggregate.Reading) error
	LatestArticles(ctx context.Context, limit int) ([]store.Article, error)
}

// Options configures a Server. Store and Registry are optional.
type Options struct {
	Analyzer Analyzer
	Store    ReadingStore
	Registry *prometheus.Registry
	Logger   *zap.Logger
}

// Server is the HTTP front of the pipeline.
type Server struct {
	echo      *echo.Echo
	analyzer  Analyzer
	store     ReadingStore
	logger    *zap.Logger
	startTime time.Time
}

// New builds a server and registers its routes.
func New(opts Options) (*Server, error) {
	if opts.Analyzer == nil {
		return nil, errors.New("httpapi: analyzer is required")
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:      e,
		analyzer:  opts.Analyzer,
		store:     opts.Store,
		logger:    logging.OrNop(opts.Logger),
		startTime: time.Now(),
	}
	s.registerRoutes(opts.Registry)
	return s, nil
}

func (s *Server) registerRoutes(reg *prometheus.Registry) {
	s.echo.Use(s.requestLogger())
	s.echo.Use(middleware.Recover())

	s.echo.GET("/health/live", s.handleLiveness)
	s.echo.GET("/sentiment/:keyword", s.handleSentiment)
	s.echo.GET("/news", s.handleNews)
	s.echo.GET("/sources", s.handleSources)
	s.echo.PUT("/sources/:name", s.handleToggleSource)

	if reg != nil {
		s.echo.GET("/metrics", echo.WrapHandler(metrics.Handler(reg)))
	}
}

func (s *Server) requestLogger() echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:  true,
		LogURI:     true,
		LogMethod:  true,
		LogLatency: true,
		LogError:   true,
		LogValuesFunc: func(_ echo.Context, v middleware.RequestLoggerValues) error {
			fields := []zap.Field{
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
				zap.Int("status", v.Status),
				zap.Duration("latency", v.Latency),
			}
			if v.Error != nil {
				fields = append(fields, zap.Error(v.Error))
			}
			s.logger.Info("request", fields...)
			return nil
		},
	})
}

// ServeHTTP lets the server be mounted or tested as a plain handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}

// Run listens on addr until ctx is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting server", zap.String("addr", addr))
		if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("start server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.echo.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown server: %w", err)
	}
	s.logger.Info("server stopped")
	return nil
}

func (s *Server) handleLiveness(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"status": "ok",
		"uptime": time.Since(s.startTime).Seconds(),
	})
}

func (s *Server) handleSentiment(c echo.Context) error {
	keyword := strings.TrimSpace(c.Param("keyword"))
	if keyword == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "keyword is required")
	}

	reading := s.analyzer.Run(c.Request().Context(), keyword)
	if s.store != nil {
		if err := s.store.SaveReading(c.Request().Context(), reading); err != nil {
			s.logger.Warn("save reading failed", zap.String("keyword", keyword), zap.Error(err))
		}
	}
	return c.JSON(http.StatusOK, report.NewReadingView(reading))
}

func (s *Server) handleNews(c echo.Context) error {
	if s.store == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "storage not configured")
	}
	articles, err := s.store.LatestArticles(c.Request().Context(), newsLimit)
	if err != nil {
		s.logger.Error("list articles failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to load news")
	}
	return c.JSON(http.StatusOK, report.NewArticleViews(articles))
}

type sourceView struct {
	Name    string      `json:"name"`
	Kind    source.Kind `json:"kind"`
	Enabled bool        `json:"enabled"`
}

func (s *Server) handleSources(c echo.Context) error {
	all := s.analyzer.Sources().All()
	out := make([]sourceView, 0, len(all))
	for _, src := range all {
		out = append(out, sourceView{Name: src.Name(), Kind: src.Kind(), Enabled: src.Enabled()})
	}
	return c.JSON(http.StatusOK, out)
}

type toggleRequest struct {
	Enabled *bool `json:"enabled"`
}

func (s *Server) handleToggleSource(c echo.Context) error {
	name := c.Param("name")
	var req toggleRequest
	if err := c.Bind(&req); err != nil || req.Enabled == nil {
		return echo.NewHTTPError(http.StatusBadRequest, `body must be {"enabled": true|false}`)
	}

	src, ok := s.analyzer.Sources().Get(name)
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, fmt.Sprintf("unknown source %q", name))
	}
	if err := s.analyzer.SetEnabled(c.Request().Context(), name, *req.Enabled); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	s.logger.Info("source toggled", zap.String("source", name), zap.Bool("enabled", *req.Enabled))
	return c.JSON(http.StatusOK, sourceView{Name: src.Name(), Kind: src.Kind(), Enabled: src.Enabled()})
}
