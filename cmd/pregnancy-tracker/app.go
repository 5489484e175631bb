package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/momcare/pregnancy-tracker/internal/config"
	"github.com/momcare/pregnancy-tracker/internal/domain/alert"
	"github.com/momcare/pregnancy-tracker/internal/domain/record"
	"github.com/momcare/pregnancy-tracker/internal/domain/tracker"
	"github.com/momcare/pregnancy-tracker/internal/platform/db"
	"github.com/momcare/pregnancy-tracker/internal/platform/kv"
	"github.com/momcare/pregnancy-tracker/internal/platform/middleware"
	"github.com/momcare/pregnancy-tracker/internal/platform/notification"
	"github.com/momcare/pregnancy-tracker/internal/platform/websocket"
)

const requestTimeout = 30 * time.Second

// newLogger builds the process logger and installs it as the global one.
func newLogger(cfg *config.Config) zerolog.Logger {
	var logger zerolog.Logger
	if cfg.IsDev() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	} else {
		logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	}

	level, err := zerolog.ParseLevel(strings.ToLower(cfg.LogLevel))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	logger = logger.Level(level)
	log.Logger = logger
	return logger
}

// app holds the wired components shared by the server and the CLI.
type app struct {
	cfg    *config.Config
	logger zerolog.Logger

	pool          *pgxpool.Pool
	store         kv.Store
	svc           *tracker.Service
	notifications *alert.Log
	hub           *websocket.Hub
	mailer        *notification.Mailer
}

func newApp(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*app, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, logger: logger, hub: websocket.NewHub()}

	if cfg.UsesPostgres() {
		pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
		if err != nil {
			return nil, err
		}
		a.pool = pool
		a.store = kv.NewPGStore(pool)
		logger.Info().Msg("connected to database")
	} else {
		a.store = kv.NewMemoryStore()
		logger.Warn().Msg("using in-memory store; records are lost on exit")
	}

	var sender notification.EmailSender = notification.LogSender{}
	if cfg.MailEnabled() {
		sender = notification.NewSMTPSender(notification.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.AlertFromEmail,
		})
	}
	a.mailer = notification.NewMailer(sender, notification.NewTemplateEngine(), cfg.ClinicianEmail)

	a.notifications = alert.NewLog(alert.NewLogRepoKV(a.store))
	a.svc = tracker.NewService(a.store, record.NewPatientRepoKV(a.store), a.notifications,
		tracker.WithPublisher(a.hub),
		tracker.WithMailer(a.mailer),
	)
	return a, nil
}

func (a *app) Close() {
	if a.pool != nil {
		a.pool.Close()
	}
}

// router builds the HTTP server with all routes registered.
func (a *app) router() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(a.logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(a.logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(middleware.BodyLimit(a.cfg.BodyLimit))
	if a.cfg.RateLimited() {
		e.Use(middleware.RateLimit(middleware.RateLimitConfig{
			RequestsPerSecond: a.cfg.RateLimitRPS,
			BurstSize:         a.cfg.RateLimitBurst,
		}))
	}
	e.Use(middleware.RequestTimeout(requestTimeout))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: a.cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost},
		AllowHeaders: []string{"Content-Type", middleware.RequestIDHeader},
	}))

	apiV1 := e.Group("/api/v1")
	tracker.NewHandler(a.svc).RegisterRoutes(apiV1)
	alert.NewHandler(a.notifications, a.svc).RegisterRoutes(apiV1)
	websocket.NewHandler(a.hub, a.cfg.CORSOrigins).RegisterRoutes(apiV1)

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status": "ok",
			"store":  a.cfg.StoreDriver,
		})
	})
	if a.pool != nil {
		e.GET("/health/db", db.HealthHandler(a.pool))
	}
	return e
}

func loadApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return newApp(ctx, cfg, newLogger(cfg))
}

var nowFunc = time.Now
