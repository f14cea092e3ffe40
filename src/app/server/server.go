// Package server provides HTTP server initialization and lifecycle management.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"

	"trackrater/src/app/http/handler"
	"trackrater/src/app/middleware"
	"trackrater/src/core/ports"
	"trackrater/src/core/usecase"
	"trackrater/src/infra/config"
	"trackrater/src/infra/metrics"
)

// Deps are the services the HTTP layer exposes.
type Deps struct {
	Health      *usecase.HealthService
	Queue       *usecase.QueueService
	Playback    *usecase.PlaybackService
	Rating      *usecase.RatingService
	Submissions *usecase.SubmissionService
	Identity    ports.IdentityProvider
	Metrics     *metrics.Metrics

	// Realtime serves /ws. OnShutdown runs before the HTTP server stops so
	// websocket clients are told to reconnect elsewhere.
	Realtime   handler.WebsocketServer
	OnShutdown func()
}

// Server wraps the HTTP server and its dependencies.
type Server struct {
	cfg    *config.Config
	log    *slog.Logger
	deps   Deps
	router *gin.Engine
	http   *http.Server

	// Handlers
	healthHandler *handler.HealthHandler
	queueHandler  *handler.QueueHandler
	liveHandler   *handler.LiveHandler
	botHandler    *handler.BotHandler
	wsHandler     *handler.WSHandler
}

// New creates a new Server with all dependencies wired up.
func New(cfg *config.Config, log *slog.Logger, deps Deps) *Server {
	if cfg.Log.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		cfg:           cfg,
		log:           log,
		deps:          deps,
		router:        gin.New(),
		healthHandler: handler.NewHealthHandler(deps.Health),
		queueHandler:  handler.NewQueueHandler(deps.Queue),
		liveHandler:   handler.NewLiveHandler(deps.Playback, deps.Rating),
		botHandler:    handler.NewBotHandler(deps.Submissions),
	}
	if deps.Realtime != nil {
		s.wsHandler = handler.NewWSHandler(deps.Realtime, log)
	}

	s.setupMiddleware()
	s.setupRoutes()
	s.setupHTTPServer()

	return s
}

// setupMiddleware configures global middleware.
func (s *Server) setupMiddleware() {
	// Order matters: Recovery should be first to catch all panics
	s.router.Use(middleware.Recovery(s.log))
	s.router.Use(middleware.RequestID())
	if s.deps.Metrics != nil {
		s.router.Use(middleware.Metrics(s.deps.Metrics))
	}
	s.router.Use(middleware.CORS(s.cfg.Realtime.AllowedOrigins))
	s.router.Use(middleware.Logging(s.log))
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.router.GET("/health", s.healthHandler.Health)
	s.router.GET("/health/detailed", s.healthHandler.DetailedHealth)
	if s.deps.Metrics != nil {
		s.router.GET("/metrics", gin.WrapH(s.deps.Metrics.Handler()))
	}
	if s.wsHandler != nil {
		s.router.GET("/ws", middleware.Identity(s.deps.Identity, s.log), s.wsHandler.Connect)
	}

	v1 := s.router.Group("/v1")
	{
		// Public reads
		v1.GET("/queue", s.queueHandler.List)
		v1.GET("/queue/:id/position", s.queueHandler.Position)
		v1.GET("/playback", s.liveHandler.Playback)
		v1.GET("/rating/state", s.liveHandler.RatingState)

		// Submission bot
		bot := v1.Group("/bot", middleware.BotToken(s.cfg.Auth.BotAPIToken))
		bot.POST("/submissions", s.botHandler.Create)
		bot.POST("/submissions/:id/metadata", s.botHandler.Metadata)
		bot.POST("/submissions/:id/enqueue_free", s.botHandler.EnqueueFree)
		bot.POST("/submissions/:id/waiting_payment", s.botHandler.WaitingPayment)
		bot.POST("/submissions/:id/mark_paid", s.botHandler.MarkPaid)
		bot.POST("/submissions/:id/cancel", s.botHandler.Cancel)
		bot.GET("/my_queue", s.botHandler.MyQueue)
	}

	s.router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{
			"error": gin.H{
				"code":       "NOT_FOUND",
				"message":    "The requested resource was not found",
				"request_id": middleware.GetRequestID(c),
			},
		})
	})
}

// setupHTTPServer configures the underlying HTTP server.
func (s *Server) setupHTTPServer() {
	s.http = &http.Server{
		Addr:         s.cfg.Server.Addr(),
		Handler:      s.router,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
	}
	if s.deps.OnShutdown != nil {
		s.http.RegisterOnShutdown(s.deps.OnShutdown)
	}
}

// Run starts the HTTP server and blocks until shutdown.
// It handles graceful shutdown on SIGINT/SIGTERM.
func (s *Server) Run() error {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	errCh := make(chan error, 1)

	go func() {
		s.log.Info("starting HTTP server",
			"addr", s.cfg.Server.Addr(),
		)
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("server error: %w", err)
		}
	}()

	select {
	case sig := <-quit:
		s.log.Info("received shutdown signal", "signal", sig.String())
	case err := <-errCh:
		return err
	}

	return s.Shutdown()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown() error {
	s.log.Info("shutting down server", "timeout", s.cfg.Server.ShutdownTimeout)

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := s.http.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}

	s.log.Info("server stopped gracefully")
	return nil
}

// Router returns the Gin router for testing.
func (s *Server) Router() *gin.Engine {
	return s.router
}
