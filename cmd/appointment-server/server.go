package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/rohanchauhan123/appointment-system/internal/config"
	"github.com/rohanchauhan123/appointment-system/internal/domain/activitylog"
	"github.com/rohanchauhan123/appointment-system/internal/domain/appointment"
	"github.com/rohanchauhan123/appointment-system/internal/domain/user"
	"github.com/rohanchauhan123/appointment-system/internal/platform/auth"
	"github.com/rohanchauhan123/appointment-system/internal/platform/blobstore"
	"github.com/rohanchauhan123/appointment-system/internal/platform/db"
	"github.com/rohanchauhan123/appointment-system/internal/platform/events"
	"github.com/rohanchauhan123/appointment-system/internal/platform/middleware"
	"github.com/rohanchauhan123/appointment-system/internal/platform/notification"
	"github.com/rohanchauhan123/appointment-system/internal/platform/openapi"
	"github.com/rohanchauhan123/appointment-system/internal/platform/reporting"
	"github.com/rohanchauhan123/appointment-system/internal/platform/telemetry"
	"github.com/rohanchauhan123/appointment-system/internal/platform/webhook"
	"github.com/rohanchauhan123/appointment-system/internal/platform/websocket"
)

const (
	version         = "0.1.0"
	requestTimeout  = 30 * time.Second
	reportTimeout   = 10 * time.Minute
	shutdownTimeout = 10 * time.Second
)

// services holds the domain services shared by the server and the CLI jobs.
type services struct {
	tokens       *auth.TokenIssuer
	users        *user.Service
	logs         *activitylog.Service
	appointments *appointment.Service
}

// newServices wires the domain layer. notifier and metrics may be nil for
// one-shot commands.
func newServices(pool *pgxpool.Pool, cfg *config.Config, logger zerolog.Logger, notifier appointment.Notifier, metrics *telemetry.Metrics) *services {
	loc, _ := cfg.Location()
	tokens := auth.NewTokenIssuer([]byte(cfg.JWTSecret), cfg.TokenTTL())
	users := user.NewService(user.NewRepo(pool), tokens, logger)
	logs := activitylog.NewService(activitylog.NewRepo(pool))
	appts := appointment.NewService(
		appointment.NewRepo(pool),
		logs,
		db.NewTransactor(pool),
		notifier,
		users,
		metrics,
		appointment.Config{Location: loc},
		logger,
	)
	return &services{tokens: tokens, users: users, logs: logs, appointments: appts}
}

// newBlobStore returns the S3 archive when a bucket is configured and an
// in-memory store otherwise.
func newBlobStore(ctx context.Context, cfg *config.Config) (blobstore.Store, error) {
	if cfg.BlobS3Bucket == "" {
		return blobstore.NewInMemoryStore(), nil
	}
	store, err := blobstore.NewS3Store(ctx, blobstore.S3Config{
		Bucket:    cfg.BlobS3Bucket,
		Region:    cfg.BlobS3Region,
		Endpoint:  cfg.BlobS3Endpoint,
		PathStyle: cfg.BlobS3PathStyle,
	})
	if err != nil {
		return nil, fmt.Errorf("init report archive: %w", err)
	}
	return store, nil
}

// newMailer returns an SMTP mailer, or a mailer that only logs when no SMTP
// host is configured.
func newMailer(cfg *config.Config, logger zerolog.Logger) notification.Mailer {
	if !cfg.MailEnabled() {
		logger.Warn().Msg("SMTP_HOST not set; report emails will be logged, not sent")
		return notification.NewLogMailer(logger)
	}
	return notification.NewSMTPMailer(notification.SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		User:     cfg.SMTPUser,
		Password: cfg.SMTPPass,
		From:     cfg.SMTPFrom,
	})
}

// newRelays builds the configured external event relays.
func newRelays(ctx context.Context, cfg *config.Config) ([]events.Relay, error) {
	var relays []events.Relay
	if len(cfg.EventsKafkaBrokers) > 0 {
		r, err := events.NewKafkaRelay(cfg.EventsKafkaBrokers, cfg.EventsKafkaTopic)
		if err != nil {
			return nil, err
		}
		relays = append(relays, r)
	}
	if cfg.EventsSQSQueueURL != "" {
		r, err := events.NewSQSRelay(ctx, cfg.EventsSQSQueueURL)
		if err != nil {
			return nil, err
		}
		relays = append(relays, r)
	}
	if cfg.EventsWebhookURL != "" {
		r, err := webhook.NewRelay(cfg.EventsWebhookURL, cfg.EventsWebhookSecret)
		if err != nil {
			return nil, err
		}
		relays = append(relays, r)
	}
	return relays, nil
}

func newReporter(cfg *config.Config, source reporting.Source, mailer notification.Mailer, store blobstore.Store, metrics *telemetry.Metrics, logger zerolog.Logger) (*reporting.Reporter, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	return reporting.NewReporter(source, mailer, store, reporting.Config{
		Recipients: cfg.ReportRecipients,
		Location:   loc,
	}, metrics, logger), nil
}

// tenantScope binds db.WithTenantConn to pool for background jobs.
func tenantScope(pool *pgxpool.Pool) reporting.TenantScope {
	return func(ctx context.Context, tenantID string, fn func(ctx context.Context) error) error {
		return db.WithTenantConn(ctx, pool, tenantID, fn)
	}
}

// actorVerifier re-checks websocket token subjects against the tenant's
// user table.
func actorVerifier(pool *pgxpool.Pool, users *user.Service) websocket.ActorVerifier {
	return websocket.VerifierFunc(func(ctx context.Context, tenantID string, userID uuid.UUID) (auth.Actor, error) {
		var actor auth.Actor
		err := db.WithTenantConn(ctx, pool, tenantID, func(ctx context.Context) error {
			var err error
			actor, err = users.LookupActor(ctx, userID)
			return err
		})
		return actor, err
	})
}

type routerDeps struct {
	cfg      *config.Config
	pool     *pgxpool.Pool
	logger   zerolog.Logger
	metrics  *telemetry.Metrics
	hub      *websocket.Hub
	svc      *services
	reporter *reporting.Reporter
	store    blobstore.Store
}

func newRouter(d routerDeps) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = middleware.ErrorHandler(d.logger)

	e.Use(middleware.Recovery(d.logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(d.logger))
	if d.metrics != nil {
		e.Use(d.metrics.Middleware())
	}
	e.Use(middleware.SecurityHeaders(middleware.SecurityHeadersConfig{
		HSTS:         d.cfg.Env == "production",
		DocsPrefixes: []string{"/api/docs"},
	}))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: d.cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID", "X-Tenant-ID"},
	}))
	e.Use(middleware.BodyLimit("1M"))
	e.Use(middleware.RequestTimeout(middleware.TimeoutConfig{
		Timeout:     requestTimeout,
		LongTimeout: reportTimeout,
		Exempt:      []string{"/ws"},
		Long:        []string{"/api/v1/admin/jobs/"},
	}))
	e.Use(auth.JWTMiddleware(auth.JWTConfig{Tokens: d.svc.tokens, Skipper: auth.AuthSkipper}))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok", "version": version})
	})
	e.GET("/health/db", db.HealthHandler(d.pool))
	if d.metrics != nil {
		e.GET("/metrics", d.metrics.Handler())
	}
	openapi.NewGenerator(version, "").RegisterRoutes(e.Group("/api"))

	websocket.NewWebSocketHandler(d.hub, websocket.HandlerConfig{
		Tokens:         d.svc.tokens,
		Verifier:       actorVerifier(d.pool, d.svc.users),
		DefaultTenant:  d.cfg.DefaultTenant,
		AllowedOrigins: d.cfg.CORSOrigins,
		Logger:         d.logger,
	}).RegisterRoutes(e)

	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: d.cfg.RateLimitRPS,
		BurstSize:         d.cfg.RateLimitBurst,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
	}

	apiV1 := e.Group("/api/v1",
		db.TenantMiddleware(d.pool, d.cfg.DefaultTenant),
		auth.ActiveUserMiddleware(d.svc.users, auth.AuthSkipper),
		middleware.RateLimit(rateLimitCfg),
	)
	user.NewHandler(d.svc.users).RegisterRoutes(apiV1,
		middleware.RateLimit(middleware.LoginRateLimitConfig(d.cfg.LoginRateLimitRPM)))
	appointment.NewHandler(d.svc.appointments).RegisterRoutes(apiV1)
	activitylog.NewHandler(d.svc.logs).RegisterRoutes(apiV1)
	reporting.NewHandler(d.reporter).RegisterRoutes(apiV1)
	blobstore.NewHandler(d.store).RegisterRoutes(apiV1)

	return e
}

func runServer(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	logger := newLogger(cfg.Env)

	pool, err := db.NewPool(ctx, poolConfig(cfg, &logger))
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	var metrics *telemetry.Metrics
	if cfg.MetricsEnabled {
		metrics = telemetry.New(telemetry.Config{
			ServiceVersion:    version,
			Environment:       cfg.Env,
			RuntimeCollectors: true,
		})
	}

	hub := websocket.NewHub(logger)
	metrics.RegisterGaugeFunc("websocket_clients", "Live websocket sessions.", func() float64 {
		return float64(hub.ClientCount())
	})

	relays, err := newRelays(ctx, cfg)
	if err != nil {
		return fmt.Errorf("init event relays: %w", err)
	}
	notifier := events.NewNotifier(hub, events.Config{}, logger, metrics, relays...)
	svc := newServices(pool, cfg, logger, notifier, metrics)

	store, err := newBlobStore(ctx, cfg)
	if err != nil {
		return err
	}
	reporter, err := newReporter(cfg, svc.appointments, newMailer(cfg, logger), store, metrics, logger)
	if err != nil {
		return err
	}
	loc, _ := cfg.Location()
	scheduler, err := reporting.NewScheduler(reporter, tenantScope(pool), reporting.SchedulerConfig{
		Spec:     cfg.ReportCron,
		Tenants:  cfg.ReportTenants,
		Location: loc,
		Timeout:  reportTimeout,
	}, logger)
	if err != nil {
		return fmt.Errorf("init report scheduler: %w", err)
	}

	e := newRouter(routerDeps{
		cfg:      cfg,
		pool:     pool,
		logger:   logger,
		metrics:  metrics,
		hub:      hub,
		svc:      svc,
		reporter: reporter,
		store:    store,
	})

	bgCtx, stopBackground := context.WithCancel(ctx)
	defer stopBackground()
	go notifier.Run(bgCtx)
	go scheduler.Start(bgCtx)
	logger.Info().Str("spec", cfg.ReportCron).Strs("tenants", cfg.ReportTenants).
		Time("next_run", scheduler.Next(time.Now())).Msg("daily report scheduled")

	serverErr := make(chan error, 1)
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-serverErr:
		return fmt.Errorf("server error: %w", err)
	}

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	stopBackground()
	logger.Info().Msg("server stopped")
	return nil
}
