package httpserver

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"mediaforge/services/generation-api/internal/config"
	"mediaforge/services/generation-api/internal/infrastructure/auth"
	"mediaforge/services/generation-api/internal/infrastructure/database"
	"mediaforge/services/generation-api/internal/infrastructure/storage"
	"mediaforge/services/generation-api/internal/interfaces/httpserver/handlers"
	v1 "mediaforge/services/generation-api/internal/interfaces/httpserver/routes/v1"
)

// HttpServer wraps the gin engine with graceful shutdown helpers.
type HttpServer struct {
	cfg    *config.Config
	engine *gin.Engine
	log    zerolog.Logger
}

// New constructs the HTTP server with default middleware and routes.
func New(cfg *config.Config, log zerolog.Logger, handlerProvider *handlers.Provider, authValidator *auth.Validator, db *gorm.DB, blobs storage.Backend) *HttpServer {
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery(), gin.Logger())

	routeProvider := v1.NewRoutes(handlerProvider, authValidator)
	registerCoreRoutes(engine, cfg, routeProvider, db, blobs)

	return &HttpServer{
		cfg:    cfg,
		engine: engine,
		log:    log,
	}
}

// Run starts the HTTP listener and handles graceful shutdown via context cancellation.
func (s *HttpServer) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:    s.cfg.Addr(),
		Handler: s.engine,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", s.cfg.Addr()).Msg("generation-api HTTP server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		s.log.Info().Msg("context cancelled, shutting down HTTP server")
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func registerCoreRoutes(engine *gin.Engine, cfg *config.Config, routes *v1.Routes, db *gorm.DB, blobs storage.Backend) {
	engine.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"service": cfg.ServiceName, "status": "ok"})
	})
	engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})
	engine.GET("/readyz", func(c *gin.Context) {
		if err := database.Healthcheck(c.Request.Context(), db); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "database": err.Error()})
			return
		}
		if err := blobs.Health(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "storage": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Local storage objects are served back through this route; the
	// S3 backend serves its own public URLs.
	if cfg.IsLocalStorage() {
		engine.GET("/files/*path", func(c *gin.Context) {
			key := c.Param("path")
			body, contentType, err := blobs.Download(c.Request.Context(), key)
			if err != nil {
				c.JSON(http.StatusNotFound, gin.H{"error": "file not found"})
				return
			}
			defer body.Close()
			c.Header("Content-Type", contentType)
			c.Status(http.StatusOK)
			_, _ = io.Copy(c.Writer, body)
		})
	}

	routes.Register(engine.Group("/"))
}
