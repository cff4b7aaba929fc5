package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/thyrotrack/thyrotrack/internal/config"
	"github.com/thyrotrack/thyrotrack/internal/domain/records"
	"github.com/thyrotrack/thyrotrack/internal/platform/auth"
	"github.com/thyrotrack/thyrotrack/internal/platform/db"
	"github.com/thyrotrack/thyrotrack/internal/platform/kv"
	"github.com/thyrotrack/thyrotrack/internal/platform/middleware"
	"github.com/thyrotrack/thyrotrack/internal/platform/telemetry"
	"github.com/thyrotrack/thyrotrack/internal/relay"
)

const (
	apiPrefix = "/api/v1"
	// importBodyLimit applies to POST /api/v1/import, which carries every
	// collection at once.
	importBodyLimit = "16M"
	shutdownTimeout = 10 * time.Second
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server and chat relay",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

// serverDeps are the long-lived components an echo instance is built from.
type serverDeps struct {
	logger    zerolog.Logger
	records   *records.Store
	backend   kv.Store
	telemetry *telemetry.TelemetryProvider
	relay     *relay.Relay
}

func runServer() error {
	cfg, err := loadConfig()
	if err != nil {
		startupLogger := newLogger(nil)
		startupLogger.Error().Err(err).Msg("startup failed")
		return err
	}
	logger := newLogger(cfg)

	tp := telemetry.NewTelemetryProvider(telemetry.TelemetryConfig{
		ServiceVersion: version,
		Environment:    cfg.Env,
	})

	ctx := context.Background()
	store, backend, err := openRecords(ctx, cfg, logger, tp)
	if err != nil {
		logger.Error().Err(err).Msg("failed to open record store")
		return err
	}
	defer backend.Close()

	if p, ok := backend.(interface{ Pool() *pgxpool.Pool }); ok && p.Pool() != nil {
		tp.RegisterPoolStats(func() (int32, int32) {
			st := p.Pool().Stat()
			return st.TotalConns(), st.IdleConns()
		})
	}

	rl := relay.New(relay.Config{
		APIKey:       cfg.LLMAPIKey,
		BaseURL:      cfg.LLMBaseURL,
		Model:        cfg.LLMModel,
		Temperature:  cfg.LLMTemperature,
		MaxTokens:    cfg.LLMMaxTokens,
		Timeout:      cfg.LLMTimeout,
		SystemPrompt: cfg.RelaySystemPrompt,
	}, logger, tp)
	if cfg.LLMAPIKey == "" {
		logger.Warn().Msg("LLM_API_KEY is not set; the chat relay will answer 500")
	}

	e := newServer(cfg, serverDeps{
		logger:    logger,
		records:   store,
		backend:   backend,
		telemetry: tp,
		relay:     rl,
	})

	go func() {
		addr := ":" + cfg.Port
		logger.Info().
			Str("addr", addr).
			Str("storage", backend.Driver()).
			Str("auth", cfg.ResolvedAuthMode()).
			Str("version", version).
			Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}

func newServer(cfg *config.Config, deps serverDeps) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = middleware.ErrorHandler(deps.logger)

	e.Use(middleware.Recovery(deps.logger))
	e.Use(middleware.RequestID())
	e.Use(deps.telemetry.MetricsMiddleware())
	e.Use(middleware.Logger(deps.logger))
	e.Use(middleware.SecurityHeaders(cfg.IsProduction()))
	// The relay answers its own preflights with a wildcard origin.
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		Skipper: func(c echo.Context) bool {
			return strings.HasPrefix(c.Request().URL.Path, relay.Path)
		},
		AllowOrigins:  cfg.CORSOrigins,
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders:  []string{"Authorization", "Content-Type", middleware.RequestIDHeader},
		ExposeHeaders: []string{middleware.RequestIDHeader, "Retry-After"},
	}))
	e.Use(middleware.BodyLimit(middleware.BodyLimitConfig{
		Default:   cfg.BodyLimit,
		Overrides: map[string]string{http.MethodPost + " " + apiPrefix + "/import": importBodyLimit},
	}))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok", "version": version})
	})
	e.GET("/health/storage", db.HealthHandler(deps.backend))
	e.GET("/metrics", deps.telemetry.PrometheusHandler())

	deps.relay.RegisterRoutes(e)

	api := e.Group(apiPrefix,
		authMiddleware(cfg),
		middleware.RateLimit(middleware.RateLimitConfig{
			RequestsPerSecond: cfg.RateLimitRPS,
			BurstSize:         cfg.RateLimitBurst,
			IdleTTL:           middleware.DefaultRateLimitConfig().IdleTTL,
		}),
		middleware.RequestTimeout(cfg.RequestTimeout),
		middleware.Audit(deps.logger, apiPrefix, auditMetrics(deps.telemetry)),
	)
	records.NewHandler(deps.records).RegisterRoutes(api)

	return e
}

// auditedCollections bounds the collection label of the change counter;
// anything else under the API prefix is counted as "other".
var auditedCollections = map[string]bool{
	"thyroid-panels":     true,
	"vitals":             true,
	"medication-changes": true,
	"medication-checks":  true,
	"*":                  true,
}

func auditMetrics(tp *telemetry.TelemetryProvider) middleware.AuditRecorder {
	return middleware.AuditRecorderFunc(func(entry middleware.AuditEntry) error {
		collection := entry.Collection
		if !auditedCollections[collection] {
			collection = "other"
		}
		tp.RecordChange(collection, entry.Action, entry.StatusCode)
		return nil
	})
}

func authMiddleware(cfg *config.Config) echo.MiddlewareFunc {
	if cfg.ResolvedAuthMode() == config.AuthJWT {
		return auth.JWTMiddleware(jwtConfig(cfg))
	}
	return auth.NoAuthMiddleware()
}

func jwtConfig(cfg *config.Config) auth.JWTConfig {
	return auth.JWTConfig{
		Issuer:     cfg.AuthIssuer,
		Audience:   cfg.AuthAudience,
		SigningKey: []byte(cfg.AuthSigningKey),
	}
}
