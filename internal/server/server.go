// Package server exposes the resolver over a small JSON HTTP API.
package server

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/guiyumin/vresolve/internal/core/config"
	"github.com/guiyumin/vresolve/internal/core/downloader"
	"github.com/guiyumin/vresolve/internal/core/extractor"
	"github.com/guiyumin/vresolve/internal/core/failure"
	"github.com/guiyumin/vresolve/internal/core/resolver"
	"github.com/guiyumin/vresolve/internal/core/version"
)

// Response is the standard API response structure
type Response struct {
	Code    int         `json:"code"`
	Data    interface{} `json:"data"`
	Message string      `json:"message"`
}

// ResolveRequest is the request body for POST /api/resolve
type ResolveRequest struct {
	URL string `json:"url" binding:"required"`
}

// JobRequest is the request body for POST /api/jobs
type JobRequest struct {
	SessionID int64 `json:"session_id" binding:"required"`
	Index     int   `json:"index"`
	// Audio requests the audio-only re-extraction instead of Index
	Audio bool `json:"audio,omitempty"`
}

// ResolveResponse wraps a Result with its variant name
type ResolveResponse struct {
	Kind   extractor.ResultKind `json:"kind"`
	Result extractor.Result     `json:"result"`
}

const requestIDHeader = "X-Request-ID"

// Server is the HTTP server for vresolve
type Server struct {
	cfg      *config.Config
	svc      *resolver.Service
	dl       *downloader.Downloader
	jobQueue *JobQueue
	server   *http.Server
	engine   *gin.Engine
}

// NewServer creates the server and its routes. Jobs do not run until Start.
func NewServer(cfg *config.Config, svc *resolver.Service) *Server {
	s := &Server{
		cfg: cfg,
		svc: svc,
		dl:  downloader.New(svc.HTTPClient(), svc.MaxBytes(), cfg.FFmpegPath),
	}
	s.jobQueue = NewJobQueue(cfg.Server.MaxConcurrent, s.save)

	gin.SetMode(gin.ReleaseMode)
	s.engine = gin.New()
	s.engine.Use(gin.Recovery())
	s.engine.Use(s.loggingMiddleware())
	if cfg.Server.APIKey != "" {
		s.engine.Use(s.authMiddleware())
	}

	api := s.engine.Group("/api")
	api.GET("/health", s.handleHealth)
	api.POST("/resolve", s.handleResolve)
	api.GET("/sessions/:id/audio", s.handleAudio)
	api.GET("/sessions/:id/:index", s.handleSelect)
	api.POST("/jobs", s.handleAddJob)
	api.GET("/jobs", s.handleGetJobs)
	api.GET("/jobs/:id", s.handleStatus)
	api.DELETE("/jobs", s.handleClearJobs)
	api.DELETE("/jobs/:id", s.handleDeleteJob)

	s.engine.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, Response{Code: 404, Data: nil, Message: "not found"})
	})
	return s
}

// Handler returns the HTTP handler
func (s *Server) Handler() http.Handler { return s.engine }

// Start starts the job workers and serves until Stop
func (s *Server) Start() error {
	if err := os.MkdirAll(s.cfg.OutputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	s.jobQueue.Start()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.cfg.Server.Port),
		Handler:      s.engine,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // resolution can run up to the aggregate deadline
		IdleTimeout:  120 * time.Second,
	}

	log := slog.With("component", "server")
	log.Info("starting server", "port", s.cfg.Server.Port, "output", s.cfg.OutputDir, "version", version.Version)
	if s.cfg.Server.APIKey != "" {
		log.Info("API key authentication enabled")
	}

	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop gracefully shuts down the server and its jobs
// Stop shuts down the HTTP server, then the job queue
func (s *Server) Stop(ctx context.Context) error {
	var err error
	if s.server != nil {
		err = s.server.Shutdown(ctx)
	}
	s.jobQueue.Stop()
	return err
}

func (s *Server) save(ctx context.Context, sel *resolver.Selection, progress downloader.ProgressFunc) (string, error) {
	return s.dl.Save(ctx, sel.Entry, sel.Audio, s.cfg.OutputDir, sel.FileName, progress)
}

// Middleware

func (s *Server) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.URL.Path == "/api/health" {
			c.Next()
			return
		}
		if subtle.ConstantTimeCompare([]byte(c.GetHeader("X-API-Key")), []byte(s.cfg.Server.APIKey)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, Response{
				Code:    401,
				Data:    nil,
				Message: "invalid or missing API key",
			})
			return
		}
		c.Next()
	}
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header(requestIDHeader, id)

		start := time.Now()
		c.Next()
		slog.Info("request",
			"component", "server",
			"request_id", id,
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"elapsed", time.Since(start),
		)
	}
}

// statusFor maps a failure kind to an HTTP status
func statusFor(kind failure.Kind) int {
	switch kind {
	case failure.Timeout:
		return http.StatusGatewayTimeout
	case failure.ConnectionFailed, failure.HTTPError, failure.AllBackendsExhausted:
		return http.StatusBadGateway
	case failure.NoEntriesFound:
		return http.StatusNotFound
	case failure.SessionExpired:
		return http.StatusGone
	case failure.SizeLimitExceeded:
		return http.StatusRequestEntityTooLarge
	}
	return http.StatusInternalServerError
}

func fail(c *gin.Context, code int, data interface{}, msg string) {
	c.JSON(code, Response{Code: code, Data: data, Message: msg})
}

func failErr(c *gin.Context, err error) {
	kind := failure.KindOf(err)
	fail(c, statusFor(kind), gin.H{"kind": kind}, err.Error())
}

// Handlers

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, Response{
		Code: 200,
		Data: gin.H{
			"status":  "ok",
			"version": version.Version,
		},
		Message: "everything is good",
	})
}

func (s *Server) handleResolve(c *gin.Context) {
	var req ResolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, nil, "invalid request body: url is required")
		return
	}
	rawURL := extractor.ExtractURL(req.URL)
	if rawURL == "" {
		fail(c, http.StatusBadRequest, nil, "no http(s) URL found in request")
		return
	}

	res := s.svc.Resolve(c.Request.Context(), rawURL)
	body := ResolveResponse{Kind: res.Kind(), Result: res}

	if f, ok := res.(*extractor.Failure); ok {
		code := statusFor(f.Reason)
		c.JSON(code, Response{Code: code, Data: body, Message: f.Message})
		return
	}
	c.JSON(http.StatusOK, Response{Code: 200, Data: body, Message: string(res.Kind())})
}

func sessionID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		fail(c, http.StatusBadRequest, nil, "invalid session id")
		return 0, false
	}
	return id, true
}

func (s *Server) handleSelect(c *gin.Context) {
	id, ok := sessionID(c)
	if !ok {
		return
	}
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		fail(c, http.StatusBadRequest, nil, "invalid entry index")
		return
	}

	sel, err := s.svc.Select(c.Request.Context(), id, index)
	if err != nil {
		failErr(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Code: 200, Data: sel, Message: sel.Entry.QualityLabel()})
}

func (s *Server) handleAudio(c *gin.Context) {
	id, ok := sessionID(c)
	if !ok {
		return
	}
	sel, err := s.svc.ExtractAudio(c.Request.Context(), id)
	if err != nil {
		failErr(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Code: 200, Data: sel, Message: sel.Entry.QualityLabel()})
}

func (s *Server) handleAddJob(c *gin.Context) {
	var req JobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, nil, "invalid request body: session_id is required")
		return
	}

	var (
		sel *resolver.Selection
		err error
	)
	if req.Audio {
		sel, err = s.svc.ExtractAudio(c.Request.Context(), req.SessionID)
	} else {
		sel, err = s.svc.Select(c.Request.Context(), req.SessionID, req.Index)
	}
	if err != nil {
		failErr(c, err)
		return
	}

	// A known size over the limit can never succeed; unknown sizes are
	// checked while streaming.
	if sel.SendAsLink && sel.Entry.Size != nil {
		fail(c, http.StatusRequestEntityTooLarge, gin.H{
			"kind": failure.SizeLimitExceeded,
			"url":  sel.Entry.URL,
		}, "entry exceeds the upload limit, use the direct link")
		return
	}

	job, err := s.jobQueue.AddJob(sel)
	if err != nil {
		fail(c, http.StatusServiceUnavailable, nil, err.Error())
		return
	}
	c.JSON(http.StatusOK, Response{
		Code: 200,
		Data: gin.H{
			"id":     job.ID,
			"status": job.Status,
		},
		Message: "download started",
	})
}

func (s *Server) handleStatus(c *gin.Context) {
	job := s.jobQueue.GetJob(c.Param("id"))
	if job == nil {
		fail(c, http.StatusNotFound, nil, "job not found")
		return
	}
	c.JSON(http.StatusOK, Response{Code: 200, Data: job, Message: string(job.Status)})
}

func (s *Server) handleGetJobs(c *gin.Context) {
	jobs := s.jobQueue.GetAllJobs()
	c.JSON(http.StatusOK, Response{
		Code:    200,
		Data:    gin.H{"jobs": jobs},
		Message: fmt.Sprintf("%d jobs found", len(jobs)),
	})
}

func (s *Server) handleClearJobs(c *gin.Context) {
	count := s.jobQueue.ClearHistory()
	c.JSON(http.StatusOK, Response{
		Code:    200,
		Data:    gin.H{"cleared": count},
		Message: fmt.Sprintf("%d jobs cleared", count),
	})
}

func (s *Server) handleDeleteJob(c *gin.Context) {
	id := c.Param("id")

	switch {
	case s.jobQueue.CancelJob(id):
		c.JSON(http.StatusOK, Response{Code: 200, Data: gin.H{"id": id}, Message: "job cancelled"})
	case s.jobQueue.RemoveJob(id):
		c.JSON(http.StatusOK, Response{Code: 200, Data: gin.H{"id": id}, Message: "job removed"})
	default:
		fail(c, http.StatusNotFound, nil, "job not found or cannot be cancelled/removed")
	}
}
