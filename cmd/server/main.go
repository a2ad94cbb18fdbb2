// Command server runs the content moderation HTTP API.
//
// Startup order: env file, configuration, logging, database, tracing,
// provider clients, router, HTTP server with graceful shutdown.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	_ "github.com/tbourn/go-moderation-backend/docs"
	"github.com/tbourn/go-moderation-backend/internal/config"
	httpapi "github.com/tbourn/go-moderation-backend/internal/http"
	"github.com/tbourn/go-moderation-backend/internal/mail"
	"github.com/tbourn/go-moderation-backend/internal/observability"
	"github.com/tbourn/go-moderation-backend/internal/repo"
	"github.com/tbourn/go-moderation-backend/internal/sightengine"
	"github.com/tbourn/go-moderation-backend/internal/sysutil"
)

// version is stamped at build time via -ldflags "-X main.version=...".
var version = "dev"

// @title        Content Moderation API
// @version      1.0
// @description  Relay API that classifies text and image submissions via the Sightengine provider, records every decision, and reports per-user analytics.
// @BasePath     /api/v1
func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg := config.MustLoad()

	sysutil.SetLogLevel(cfg.LogLevel)
	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}

	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DBPath).Msg("open database")
	}
	if err := repo.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("migrate database")
	}

	ctx := context.Background()
	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		log.Fatal().Err(err).Msg("setup tracing")
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownOTel(sctx); err != nil {
			log.Warn().Err(err).Msg("tracing shutdown")
		}
	}()

	classifier := sightengine.New(
		cfg.Sightengine.APIUser,
		cfg.Sightengine.APISecret,
		cfg.Sightengine.BaseURL,
		&http.Client{Timeout: cfg.Sightengine.Timeout},
	)
	mailer := mail.New(
		cfg.Mail.APIKey,
		cfg.Mail.From,
		cfg.Mail.BaseURL,
		&http.Client{Timeout: cfg.Mail.Timeout},
	)
	if !mailer.Configured() {
		log.Info().Msg("SENDGRID_API_KEY not set; alert notifications disabled")
	}

	gin.SetMode(cfg.GinMode)
	r := gin.New()
	httpapi.RegisterRoutes(r, db, classifier, mailer, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Str("version", version).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
}
