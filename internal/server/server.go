package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"news-forecaster/internal/interfaces"
	"news-forecaster/internal/logger"
	"news-forecaster/internal/trace"
)

// Server exposes stored analyses over a read-only JSON API.
type Server struct {
	reader interfaces.AnalysisReader
	engine *gin.Engine
	http   *http.Server
}

func New(addr string, reader interfaces.AnalysisReader) *Server {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), requestLog())

	s := &Server{reader: reader, engine: r}

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api")
	{
		api.GET("/stocks", s.stocks)
		api.GET("/analysis", s.analysis)
		api.GET("/summary", s.summary)
	}

	s.http = &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info(ctx, "API server listening", "addr", s.http.Addr)
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.http.Shutdown(shutdownCtx)
}

func (s *Server) stocks(c *gin.Context) {
	refs, err := s.reader.Stocks(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"stocks": refs})
}

func (s *Server) analysis(c *gin.Context) {
	ticker, ok := tickerParam(c)
	if !ok {
		return
	}
	out, err := s.reader.AnalysesByTicker(c.Request.Context(), ticker, c.Query("model"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ticker": ticker, "analyses": out})
}

func (s *Server) summary(c *gin.Context) {
	ticker, ok := tickerParam(c)
	if !ok {
		return
	}
	out, err := s.reader.SummariesByTicker(c.Request.Context(), ticker, c.Query("model"))
	if err != nil {
		s.fail(c, err)
		return
	}
	if len(out) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "no summarized analysis found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ticker": ticker, "summaries": out})
}

func tickerParam(c *gin.Context) (string, bool) {
	ticker := strings.ToUpper(strings.TrimSpace(c.Query("ticker")))
	if ticker == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing ticker parameter"})
		return "", false
	}
	return ticker, true
}

func (s *Server) fail(c *gin.Context, err error) {
	logger.ErrorWithErr(c.Request.Context(), "API query failed", err, "path", c.FullPath())
	c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
}

func requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := trace.StartSpan(c.Request.Context(), "api."+c.Request.Method+" "+c.FullPath())
		defer span.End()
		c.Request = c.Request.WithContext(ctx)

		start := time.Now()
		c.Next()

		logger.Debug(ctx, "HTTP request served",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
}
