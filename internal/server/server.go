package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/ifuryst/cadence/internal/config"
	"github.com/ifuryst/cadence/internal/service"
)

const PublishScheduledContentPath = "/functions/v1/publish-scheduled-content"

type Server struct {
	Config *config.Config
	Router *gin.Engine
	Logger *zap.Logger
	Server *http.Server

	// Services
	Runner    service.Runner
	Scheduler *service.Scheduler
	Metrics   *service.Metrics
}

// NewServer wires the HTTP routes around an already built runner.
func NewServer(cfg *config.Config, logger *zap.Logger, runner service.Runner, metrics *service.Metrics) *Server {
	// Set gin mode
	gin.SetMode(cfg.Server.Mode)

	router := gin.New()

	srv := &Server{
		Config:    cfg,
		Router:    router,
		Logger:    logger,
		Runner:    runner,
		Scheduler: service.NewScheduler(&cfg.Scheduler, logger.Named("scheduler"), runner),
		Metrics:   metrics,
	}

	srv.setupMiddleware()
	srv.setupRoutes()

	srv.Server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return srv
}

func (s *Server) setupMiddleware() {
	// Recovery middleware
	s.Router.Use(gin.Recovery())

	// Logger middleware
	s.Router.Use(func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.Logger.Info("HTTP request",
			zap.String("client_ip", c.ClientIP()),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("user_agent", c.Request.UserAgent()),
		)
	})

	// CORS middleware
	s.Router.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "authorization, x-client-info, apikey, content-type")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	})
}

func (s *Server) setupRoutes() {
	// Health check
	s.Router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"time":   time.Now().Unix(),
		})
	})

	if s.Metrics != nil {
		s.Router.GET("/metrics", gin.WrapH(s.Metrics.Handler()))
	}

	s.Router.POST(PublishScheduledContentPath, s.handlePublishScheduledContent)
}

func (s *Server) handlePublishScheduledContent(c *gin.Context) {
	// A caller that times out must not abort a run midway through its
	// platform calls.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(c.Request.Context()), s.Config.Publisher.RunDeadline())
	defer cancel()

	report, err := s.Runner.Run(ctx)
	if errors.Is(err, service.ErrRunInProgress) {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		s.Logger.Error("Scheduled publish failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, report)
}

func (s *Server) Start(ctx context.Context) error {
	// Start scheduler
	if err := s.Scheduler.Start(ctx); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}

	s.Logger.Info("Starting HTTP server", zap.String("addr", s.Server.Addr))

	var err error
	if s.Config.Server.CertFile != "" && s.Config.Server.KeyFile != "" {
		err = s.Server.ListenAndServeTLS(s.Config.Server.CertFile, s.Config.Server.KeyFile)
	} else {
		err = s.Server.ListenAndServe()
	}
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	// Stop scheduler first
	s.Scheduler.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()

	return s.Server.Shutdown(shutdownCtx)
}
