package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/vhealth/integration/internal/config"
	"github.com/vhealth/integration/internal/domain/alarm"
	"github.com/vhealth/integration/internal/domain/insight"
	"github.com/vhealth/integration/internal/domain/observation"
	"github.com/vhealth/integration/internal/domain/profile"
	"github.com/vhealth/integration/internal/medplum"
	"github.com/vhealth/integration/internal/platform/auth"
	"github.com/vhealth/integration/internal/platform/db"
	"github.com/vhealth/integration/internal/platform/journal"
	"github.com/vhealth/integration/internal/platform/logging"
	"github.com/vhealth/integration/internal/platform/middleware"
	"github.com/vhealth/integration/internal/platform/timeseries"
)

// memoryJournalSize bounds the in-memory journal used without DATABASE_URL.
const memoryJournalSize = 10000

// components are the collaborators the HTTP layer is built from. Optional
// ones are nil when not configured.
type components struct {
	remote    journal.Remote
	journal   journal.Store
	pool      *pgxpool.Pool
	telemetry observation.Telemetry
	alarms    *alarm.Reader
	predictor insight.Predictor
	generator insight.Generator
	auth      echo.MiddlewareFunc
}

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger, closeLog, err := logging.New(logging.Options{
		Level:      cfg.LogLevel,
		Console:    cfg.IsDev(),
		File:       cfg.LogFile,
		MaxSizeMB:  cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
	})
	if err != nil {
		return err
	}
	defer closeLog() //nolint:errcheck

	if err := cfg.Validate(); err != nil {
		logger.Error().Err(err).Msg("invalid configuration")
		return err
	}
	if cfg.ResolvedAuthMode() == "development" {
		logger.Warn().Msg("development auth is active: every request is treated as an authenticated admin")
	}

	ctx := context.Background()
	comps, cleanup, err := buildComponents(ctx, cfg, logger)
	if err != nil {
		logger.Error().Err(err).Msg("failed to initialise components")
		return err
	}
	defer cleanup()

	e := newServer(cfg, logger, comps)

	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	logger.Info().Msg("server stopped")
	return nil
}

// buildComponents connects every configured backend. The returned cleanup
// closes them in reverse order.
func buildComponents(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*components, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(err error) (*components, func(), error) {
		cleanup()
		return nil, func() {}, err
	}

	comps := &components{}

	tokens := medplum.NewTokenManager(cfg.MedplumTokenURL, cfg.MedplumClientID, cfg.MedplumClientSecret, cfg.MedplumCallTimeout)
	client := medplum.NewClient(medplum.Config{
		BaseURL:        cfg.MedplumBaseURL,
		CallTimeout:    cfg.MedplumCallTimeout,
		MaxSearchPages: cfg.MedplumMaxPages,
	}, tokens, nil, logger)

	if cfg.DatabaseURL != "" {
		pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
		if err != nil {
			return fail(fmt.Errorf("connect journal database: %w", err))
		}
		closers = append(closers, pool.Close)
		comps.pool = pool
		comps.journal = journal.NewPGStore(pool)
		logger.Info().Msg("sync journal: postgres")
	} else {
		comps.journal = journal.NewMemoryStore(memoryJournalSize)
		logger.Info().Msg("sync journal: in-memory")
	}
	comps.remote = journal.NewRecordingRemote(client, comps.journal, logger)

	if cfg.TelemetryEnabled() {
		store, err := timeseries.NewInfluxStore(timeseries.Config{
			URL:    cfg.InfluxURL,
			Token:  cfg.InfluxToken,
			Org:    cfg.InfluxOrg,
			Bucket: cfg.InfluxBucket,
		}, logger)
		if err != nil {
			return fail(fmt.Errorf("connect telemetry store: %w", err))
		}
		closers = append(closers, store.Close)
		comps.telemetry = store
	}

	if cfg.AlarmsEnabled() {
		s3Client, err := alarm.NewS3Client(ctx, alarm.Config{
			Region:          cfg.AWSRegion,
			AccessKeyID:     cfg.AWSAccessKeyID,
			SecretAccessKey: cfg.AWSSecretAccessKey,
			Endpoint:        cfg.S3Endpoint,
		})
		if err != nil {
			return fail(fmt.Errorf("create object store client: %w", err))
		}
		comps.alarms = alarm.NewReader(s3Client, cfg.AlarmBucket, cfg.AlarmLookbackDays, logger)
	}

	if cfg.PredictionURL != "" {
		comps.predictor = insight.NewPredictionClient(cfg.PredictionURL, nil)
	}
	switch {
	case cfg.InsightProvider == "anthropic":
		comps.generator = insight.NewAnthropicGenerator(cfg.AnthropicAPIKey, cfg.AnthropicModel)
	case cfg.InsightURL != "":
		comps.generator = insight.NewHTTPGenerator(cfg.InsightURL, nil)
	}

	if cfg.ResolvedAuthMode() == "development" {
		comps.auth = auth.DevAuthMiddleware()
	} else {
		mw, err := auth.NewJWTMiddleware(ctx, auth.JWTConfig{
			Issuer:     cfg.AuthIssuer,
			Audience:   cfg.AuthAudience,
			JWKSURL:    cfg.AuthJWKSURL,
			SigningKey: []byte(cfg.AuthSigningKey),
		})
		if err != nil {
			return fail(fmt.Errorf("configure authentication: %w", err))
		}
		comps.auth = mw
	}

	return comps, cleanup, nil
}

// newServer assembles the echo instance: global middleware, health checks
// and the authenticated /api/medplum group.
func newServer(cfg *config.Config, logger zerolog.Logger, comps *components) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders(!cfg.IsDev()))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut},
		AllowHeaders: []string{echo.HeaderAuthorization, echo.HeaderContentType, middleware.RequestIDHeader},
	}))
	e.Use(middleware.BodyLimit("1M", "5M"))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	e.GET("/health/db", db.HealthHandler(comps.pool))

	api := e.Group("/api/medplum")
	if comps.auth != nil {
		api.Use(comps.auth)
	}
	api.Use(middleware.RequestTimeout(cfg.RequestTimeout))

	profile.NewHandler(profile.NewService(comps.remote, logger)).RegisterRoutes(api)

	obsSvc := observation.NewService(comps.remote, logger)
	var realtime *observation.RealtimeService
	if comps.telemetry != nil {
		realtime = observation.NewRealtimeService(comps.telemetry)
	}
	observation.NewHandler(obsSvc, realtime).RegisterRoutes(api)

	if comps.alarms != nil {
		alarm.NewHandler(comps.alarms).RegisterRoutes(api)
	}

	insightSvc := insight.NewService(obsSvc, comps.predictor, comps.generator, nil, logger)
	insight.NewHandler(insightSvc).RegisterRoutes(api)

	journal.NewHandler(comps.journal).RegisterRoutes(api)

	return e
}
