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

	"github.com/MicahParks/keyfunc"
	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"gumboard-api/api"
	"gumboard-api/config"
	"gumboard-api/domain"
	"gumboard-api/notify"
	"gumboard-api/storage"
	"gumboard-api/stream"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	logger := log.New()
	if cfg.Debug {
		logger.SetLevel(log.DebugLevel)
	}
	if cfg.LogFormat == "json" {
		logger.SetFormatter(&log.JSONFormatter{})
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := storage.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatalf("storage: %v", err)
	}
	defer db.Close()
	if err := storage.ApplyMigrations(ctx, db); err != nil {
		logger.Fatalf("migrations: %v", err)
	}
	pg := storage.NewPostgresStore(db)

	var rc *redis.Client
	if cfg.RedisURL != "" {
		rc = redis.NewClient(config.RedisOptions(cfg.RedisURL))
		defer rc.Close()
	}
	store := storage.NewCache(pg, rc, cfg.NoteCacheTTL, logger)

	var deduper notify.Deduper
	switch cfg.DedupBackend {
	case config.DedupRedis:
		deduper = notify.NewRedisDeduper(rc, cfg.DedupWindow, logger)
	default:
		deduper = notify.NewMemoryDeduper(cfg.DedupWindow)
	}

	dispatcher := notify.NewDispatcher(notify.NewWebhookClient(cfg.WebhookTimeout, logger), logger, notify.DispatcherConfig{
		Workers:        cfg.DispatchWorkers,
		Buffer:         cfg.DispatchBuffer,
		Timeout:        cfg.WebhookTimeout,
		HandoffTimeout: cfg.DispatchHandoff,
	})
	notifier := notify.NewNotifier(notify.NewGate(cfg.DebounceWindow), deduper, dispatcher, logger, cfg.PublicBaseURL)
	service := domain.NewChecklistService(store, notifier, logger)

	var auth *api.Auth
	if cfg.LocalAuth() {
		auth = api.NewLocalAuth([]byte(cfg.LocalAuthSecret))
	} else {
		jwksURL := fmt.Sprintf("https://%s/.well-known/jwks.json", cfg.Auth0Domain)
		jwks, err := keyfunc.Get(jwksURL, keyfunc.Options{})
		if err != nil {
			logger.Fatalf("jwks: %v", err)
		}
		defer jwks.EndBackground()
		auth = api.NewAuth(jwks, cfg.Auth0Audience, "https://"+cfg.Auth0Domain+"/")
	}

	e := echo.New()
	e.HideBanner = true
	e.JSONSerializer = api.SonicSerializer{}
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization, echo.HeaderContentEncoding},
	}))
	e.Use(echoprometheus.NewMiddleware("gumboard_api"))
	e.Use(api.GzipRequestMiddleware(1 << 20))
	e.GET("/metrics", echoprometheus.NewHandler())

	api.Register(e, api.Deps{
		Service: service,
		Notes:   store,
		Auth:    auth,
		Users:   pg,
		Health:  db,
		Logger:  logger,
	})

	if rc != nil {
		broker := stream.NewBroker()
		go stream.SubscribeUpdates(ctx, logger, rc, broker)
		stream.Register(e, broker, auth)
		e.Server.RegisterOnShutdown(broker.Close)
	}

	go func() {
		if err := e.Start(cfg.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("server: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("http shutdown")
	}
	if err := dispatcher.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("notification dispatcher shutdown")
	}
}
