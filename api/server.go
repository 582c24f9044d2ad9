package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"example.com/horizon/services/ledger/auth"
	"example.com/horizon/services/ledger/config"
	"example.com/horizon/services/ledger/handlers"
)

// Server is the HTTP server for the API
type Server struct {
	cfg            config.Config
	router         *gin.Engine
	httpServer     *http.Server
	tokenValidator *auth.TokenValidator
	accountHandler *handlers.AccountHandler
}

// NewServer creates a new API server
func NewServer(cfg config.Config, tokenValidator *auth.TokenValidator, accountHandler *handlers.AccountHandler) *Server {
	server := &Server{
		cfg:            cfg,
		router:         gin.New(),
		tokenValidator: tokenValidator,
		accountHandler: accountHandler,
	}

	server.httpServer = &http.Server{
		Addr:         cfg.HTTPServerAddress,
		Handler:      server.router,
		ReadTimeout:  cfg.HTTPServerTimeout,
		WriteTimeout: cfg.HTTPServerTimeout,
	}

	// Setup middleware
	server.setupMiddleware()

	// Setup routes
	server.setupRoutes()

	return server
}

// setupMiddleware adds middleware to the router
func (s *Server) setupMiddleware() {
	// Add request ID middleware
	s.router.Use(RequestIDMiddleware())

	// Add CORS middleware
	if s.cfg.CorsEnabled {
		s.router.Use(CORSMiddleware())
	}

	// Add recovery middleware
	s.router.Use(gin.Recovery())

	// Add logging middleware
	s.router.Use(LoggingMiddleware())

	// Token validation, then tenant binding. Order matters: the tenant
	// filter consumes the validated claim set.
	s.router.Use(AuthMiddleware(s.tokenValidator))
	s.router.Use(TenantContextMiddleware())
}

// setupRoutes defines the API routes
func (s *Server) setupRoutes() {
	// Health check
	s.router.GET("/ping", func(c *gin.Context) {
		c.String(http.StatusOK, "pong")
	})

	// API v1 group
	v1 := s.router.Group("/api/v1")

	// Account routes
	accountRoutes := v1.Group("/accounts")
	{
		accountRoutes.POST("", s.openAccount)
		accountRoutes.GET("/:id", s.getAccount)
		accountRoutes.POST("/:id/deposits", s.deposit)
		accountRoutes.POST("/:id/withdrawals", s.withdraw)
		accountRoutes.POST("/:id/close", s.closeAccount)
	}
}

// Start starts the HTTP server
func (s *Server) Start() error {
	log.Info().Msgf("HTTP server starting on %s", s.cfg.HTTPServerAddress)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}

	return nil
}

// Shutdown gracefully shuts down the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
