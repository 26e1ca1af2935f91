package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/labtranscriber/labtranscriber/internal/config"
	"github.com/labtranscriber/labtranscriber/internal/domain/labreport"
	"github.com/labtranscriber/labtranscriber/internal/mcp"
	"github.com/labtranscriber/labtranscriber/internal/paramconfig"
	"github.com/labtranscriber/labtranscriber/internal/platform/auth"
	"github.com/labtranscriber/labtranscriber/internal/platform/db"
	"github.com/labtranscriber/labtranscriber/internal/platform/middleware"
	"github.com/labtranscriber/labtranscriber/internal/platform/telemetry"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the lab report API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return runServer(cmd.Context(), cfg)
		},
	}
}

func mcpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the parser as MCP tools over stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			logger := newLogger(cfg, os.Stderr)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			st, err := openStorage(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer st.close()

			svc, _ := newService(cfg, st.repo, logger)
			srv := mcp.NewServer(mcp.ServerConfig{Service: svc, Version: version})
			logger.Info().Msg("MCP server listening on stdio")
			if err := mcp.Serve(ctx, srv, os.Stdin, os.Stdout); err != nil && ctx.Err() == nil {
				return err
			}
			return nil
		},
	}
}

// newEcho assembles the HTTP server around an already built service.
func newEcho(cfg *config.Config, logger zerolog.Logger, svc *labreport.Service, configs *paramconfig.Store, st *storage, metrics *telemetry.Provider) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID(logger))
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders(cfg.HSTS))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", middleware.RequestIDHeader},
	}))
	e.Use(middleware.BodyLimit(cfg.BodyLimit, cfg.UploadLimit))
	e.Use(metrics.MetricsMiddleware())
	e.Use(middleware.RequestTimeout(cfg.RequestTimeout, middleware.UploadPath))

	// Auth middleware
	verify := auth.JWTMiddleware(auth.JWTConfig{
		Issuer:     cfg.AuthIssuer,
		Audience:   cfg.AuthAudience,
		JWKSURL:    cfg.AuthJWKSURL,
		SigningKey: cfg.AuthSigningKey,
	})
	authMW := verify
	if cfg.IsDev() {
		authMW = auth.DevAuthMiddleware(verify)
	}

	// API groups
	apiV1 := e.Group("/api/v1", authMW)
	fhirGroup := e.Group("/fhir", authMW)

	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
	}
	apiV1.Use(middleware.RateLimit(rateLimitCfg))
	fhirGroup.Use(middleware.RateLimit(rateLimitCfg))

	labreport.NewHandler(svc).RegisterRoutes(apiV1, fhirGroup)

	e.GET("/health", func(c echo.Context) error {
		snap := configs.Current()
		return c.JSON(http.StatusOK, map[string]interface{}{
			"status":         "ok",
			"version":        version,
			"config_version": snap.Version,
			"parameters":     len(snap.Index.Parameters()),
		})
	})
	e.GET("/health/db", db.HealthHandler(st.backend, st.health))
	e.GET("/metrics", metrics.PrometheusHandler())
	return e
}

func runServer(parent context.Context, cfg *config.Config) error {
	logger := newLogger(cfg, os.Stderr)

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := openStorage(ctx, cfg, logger)
	if err != nil {
		logger.Error().Err(err).Msg("failed to open lab report store")
		return err
	}
	defer st.close()

	docs, err := documentStore(cfg)
	if err != nil {
		logger.Error().Err(err).Msg("failed to open document store")
		return err
	}

	metrics := telemetry.NewProvider("labtranscriber", version)
	svc, configs := newService(cfg, st.repo, logger)
	svc.SetObserver(metrics)
	svc.SetDocumentStore(docs)
	metrics.ObserveReload(configs.Current().Version, configs.Current().Err)

	// SIGHUP reloads the parameter configuration.
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	go func() {
		for {
			select {
			case <-hup:
				_, _ = svc.ReloadConfig()
			case <-ctx.Done():
				return
			}
		}
	}()

	e := newEcho(cfg, logger, svc, configs, st, metrics)

	errCh := make(chan error, 1)
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("store", st.backend).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		logger.Error().Err(err).Msg("server error")
		return err
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}
