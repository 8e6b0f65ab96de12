// Package server exposes the pipeline over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"token-screener/internal/domain"
	"token-screener/internal/logging"
	"token-screener/internal/observability"
	"token-screener/internal/pipeline"
)

// Runner is the pipeline surface the server drives.
type Runner interface {
	RunOnce(ctx context.Context, opts pipeline.RunOptions) (*domain.RunResult, error)
	Status() pipeline.Status
}

// RunHistory lists audit entries, newest first.
type RunHistory interface {
	RecentRuns(ctx context.Context, limit int) ([]*domain.RunLogEntry, error)
}

// Options configures a Server.
type Options struct {
	Runner  Runner     // required
	History RunHistory // optional; /runs returns 404 without it
	Logger  *zap.Logger
}

// Server serves the trigger, health, status and metrics endpoints.
type Server struct {
	runner  Runner
	history RunHistory
	started time.Time
	logger  *zap.Logger
	engine  *gin.Engine
}

const (
	defaultRunsLimit = 20
	maxRunsLimit     = 500
)

// New creates a server and its routes.
func New(opts Options) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		runner:  opts.Runner,
		history: opts.History,
		started: time.Now(),
		logger:  logging.OrNop(opts.Logger).Named("http"),
	}

	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())

	r.GET("/health", s.handleHealth)
	r.GET("/run_daily", s.handleRun)
	r.POST("/run_daily", s.handleRun)
	r.GET("/status", s.handleStatus)
	r.GET("/runs", s.handleRuns)
	r.GET("/metrics", gin.WrapH(observability.Handler()))
	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	})

	s.engine = r
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	<-errCh
	return nil
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// handleRun triggers one run. Optional query parameters: reference (RFC3339)
// and notify (bool, default true).
func (s *Server) handleRun(c *gin.Context) {
	var opts pipeline.RunOptions

	if ref := c.Query("reference"); ref != "" {
		t, err := time.Parse(time.RFC3339, ref)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "reference must be RFC3339"})
			return
		}
		opts.Reference = t
	}
	if notify := c.Query("notify"); notify != "" {
		v, err := strconv.ParseBool(notify)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "notify must be a boolean"})
			return
		}
		opts.SkipNotify = !v
	}

	res, err := s.runner.RunOnce(c.Request.Context(), opts)
	switch {
	case errors.Is(err, pipeline.ErrRunInProgress), errors.Is(err, pipeline.ErrLeaseHeld):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusOK, res)
	}
}

// StatusResponse is the JSON response for /status.
type StatusResponse struct {
	Status   string          `json:"status"`
	Uptime   string          `json:"uptime"`
	Started  time.Time       `json:"started"`
	Pipeline pipeline.Status `json:"pipeline"`
}

func (s *Server) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, StatusResponse{
		Status:   "running",
		Uptime:   time.Since(s.started).Round(time.Second).String(),
		Started:  s.started,
		Pipeline: s.runner.Status(),
	})
}

// RunView is one /runs entry.
type RunView struct {
	RunID           string          `json:"run_id"`
	StartedAt       time.Time       `json:"started_at"`
	FinishedAt      time.Time       `json:"finished_at"`
	Status          string          `json:"status"`
	RawCount        int             `json:"raw_count"`
	WindowedCount   int             `json:"windowed_count"`
	PassedCount     int             `json:"passed_count"`
	PurgedNonPassed int64           `json:"purged_non_passed"`
	PurgedExpired   int64           `json:"purged_expired"`
	WindowStart     time.Time       `json:"window_start"`
	WindowEnd       time.Time       `json:"window_end"`
	Info            json.RawMessage `json:"info,omitempty"`
}

func (s *Server) handleRuns(c *gin.Context) {
	if s.history == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "run history not configured"})
		return
	}

	limit := defaultRunsLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = min(n, maxRunsLimit)
	}

	entries, err := s.history.RecentRuns(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	views := make([]RunView, len(entries))
	for i, e := range entries {
		views[i] = RunView{
			RunID:           e.RunID,
			StartedAt:       e.StartedAt,
			FinishedAt:      e.FinishedAt,
			Status:          e.Status,
			RawCount:        e.RawCount,
			WindowedCount:   e.WindowedCount,
			PassedCount:     e.PassedCount,
			PurgedNonPassed: e.PurgedNonPassed,
			PurgedExpired:   e.PurgedExpired,
			WindowStart:     e.WindowStart,
			WindowEnd:       e.WindowEnd,
			Info:            e.Info,
		}
	}
	c.JSON(http.StatusOK, gin.H{"runs": views})
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("elapsed", time.Since(start)),
		)
	}
}
