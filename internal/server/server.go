package server

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/shellpilot/agent/config"
)

// Server is the HTTP front of the agent.
type Server struct {
	cfg        *config.Config
	router     *gin.Engine
	handlers   *Handlers
	auth       *AuthService
	limiter    *RateLimiter
	httpServer *http.Server
}

// New assembles the router around pre-built handlers.
func New(cfg *config.Config, handlers *Handlers) *Server {
	if cfg.LogLevel == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		cfg:      cfg,
		router:   gin.New(),
		handlers: handlers,
		auth:     NewAuthService(cfg.APIKey, cfg.JWTSecret),
		limiter:  NewRateLimiter(cfg.RateLimitRPS),
	}

	s.setupMiddleware()
	s.setupRoutes()
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(RecoveryMiddleware())
	s.router.Use(LoggerMiddleware())
	s.router.Use(CORSMiddleware(s.cfg.AllowedOrigins))
	s.router.Use(RateLimitMiddleware(s.limiter))
}

func (s *Server) setupRoutes() {
	// Health check (no auth)
	s.router.GET("/health", s.handlers.HealthCheck)

	api := s.router.Group("/api")
	api.Use(AuthMiddleware(s.auth))
	{
		api.GET("/info", s.handlers.GetInfo)

		// Local host metrics
		api.GET("/metrics", s.handlers.GetAllMetrics)
		api.GET("/metrics/cpu", s.handlers.GetCPUMetrics)
		api.GET("/metrics/memory", s.handlers.GetMemoryMetrics)
		api.GET("/metrics/disk", s.handlers.GetDiskMetrics)

		// Conversation and execution
		api.POST("/agent/message", s.handlers.PostMessage)
		api.GET("/agent/status", s.handlers.GetAgentStatus)
		api.POST("/agent/stop", s.handlers.StopAgent)

		// Tasks
		api.GET("/tasks", s.handlers.ListTasks)
		api.GET("/tasks/:id", s.handlers.GetTask)
		api.POST("/tasks/:id/cancel", s.handlers.CancelTask)
		api.DELETE("/tasks", s.handlers.ClearFinishedTasks)

		// Remote host facts
		api.GET("/system-facts", s.handlers.GetRemoteFacts)

		// Real-time events (SSE)
		api.GET("/events", s.handlers.StreamEvents)
	}
}

// Run serves until SIGINT/SIGTERM, then shuts down gracefully.
func (s *Server) Run() error {
	s.httpServer = &http.Server{
		Addr:         s.cfg.Addr(),
		Handler:      s.router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Println("[server] shutting down")

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := s.httpServer.Shutdown(ctx); err != nil {
			log.Printf("[server] forced shutdown: %v", err)
		}
	}()

	log.Printf("[server] listening on %s", s.cfg.Addr())

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("start server: %w", err)
	}

	log.Println("[server] stopped")
	return nil
}

// Router exposes the gin engine for tests.
func (s *Server) Router() *gin.Engine {
	return s.router
}
