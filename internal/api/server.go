package api

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/n90p/minecraft-world-downloader/internal/config"
	"github.com/n90p/minecraft-world-downloader/internal/events"
	"github.com/n90p/minecraft-world-downloader/internal/proxy"
	"github.com/n90p/minecraft-world-downloader/internal/util"
	"github.com/n90p/minecraft-world-downloader/internal/world"
)

// Server is the local REST API server. It binds on the loopback interface by
// default and reads everything it serves from live component state.
type Server struct {
	cfg      *config.Config
	eventBus *events.EventBus
	proxy    *proxy.Listener
	store    *world.Store

	startedAt  time.Time
	httpServer *http.Server
	router     *gin.Engine
}

// NewServer creates a new API server.
func NewServer(cfg *config.Config, eventBus *events.EventBus, pl *proxy.Listener, store *world.Store) *Server {
	// Set Gin mode based on log level
	if cfg.ApplicationData.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	return &Server{
		cfg:       cfg,
		eventBus:  eventBus,
		proxy:     pl,
		store:     store,
		startedAt: time.Now(),
	}
}

// Start initializes and starts the API server.
func (s *Server) Start(ctx context.Context) error {
	s.router = s.buildRouter()

	apiCfg := s.cfg.GetApplicationData().API
	addr := fmt.Sprintf("%s:%d", apiCfg.Address, apiCfg.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// TLS configuration
	security := s.cfg.GetApplicationData().Security
	if security.TLSEnabled {
		if !util.FileExists(security.TLSCertFile) || !util.FileExists(security.TLSKeyFile) {
			log.Info().Msg("TLS enabled but no certificate found, generating a self-signed one")
			if err := util.GenerateSelfSignedCert(security.TLSCertFile, security.TLSKeyFile); err != nil {
				return fmt.Errorf("TLS certificate generation failed: %w", err)
			}
		}
		s.httpServer.TLSConfig = &tls.Config{
			MinVersion: tls.VersionTLS12,
			CipherSuites: []uint16{
				tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
				tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
				tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
				tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
			},
		}
	}

	log.Info().Str("addr", addr).Msg("REST API server starting")

	// Graceful shutdown
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.httpServer.Shutdown(shutdownCtx)
	}()

	var err error
	if security.TLSEnabled {
		err = s.httpServer.ListenAndServeTLS(security.TLSCertFile, security.TLSKeyFile)
	} else {
		err = s.httpServer.ListenAndServe()
	}

	if err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("API server error: %w", err)
	}

	return nil
}

// buildRouter creates the Gin router with all routes and middleware.
func (s *Server) buildRouter() *gin.Engine {
	router := gin.New()

	// Global middleware
	router.Use(gin.Recovery())
	router.Use(RequestLogger())
	router.Use(SecurityHeaders())

	// CORS
	allowedOrigins := s.cfg.GetApplicationData().Security.AllowedOrigins
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: false, // Must be false when AllowOrigins is "*"
		MaxAge:           12 * time.Hour,
	}))

	// Rate limiting
	rateLimiter := NewRateLimiter(s.cfg.GetApplicationData().Security.RateLimitRPS)
	router.Use(rateLimiter.Middleware())

	api := router.Group("/api")
	{
		api.GET("/ping", s.handlePing)
		api.GET("/status", s.handleStatus)
		api.GET("/versions", s.handleVersions)
		api.GET("/system", s.handleSystem)

		api.GET("/sessions", s.handleSessions)
		api.GET("/sessions/:id", s.handleSession)

		api.GET("/chunks", s.handleRecentChunks)
		api.GET("/chunks/count", s.handleChunkCount)
		api.GET("/chunks/:dimension/:x/:z", s.handleChunk)

		api.GET("/config", s.handleGetConfig)
		api.POST("/config/proxy", s.handleSetProxyData)
		api.POST("/config/app", s.handleSetAppData)
	}

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "endpoint not found"})
	})

	return router
}

// Stop gracefully stops the API server.
func (s *Server) Stop() error {
	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}
