package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"field-visit-bot/internal/cache"
	"field-visit-bot/internal/config"
	"field-visit-bot/internal/dispatch"
	"field-visit-bot/internal/httpserver"
	"field-visit-bot/internal/identity"
	"field-visit-bot/internal/ingest"
	"field-visit-bot/internal/logging"
	"field-visit-bot/internal/metrics"
	"field-visit-bot/internal/repo"
	"field-visit-bot/internal/sink"
	"field-visit-bot/internal/tg"
	"field-visit-bot/internal/wa"
	"field-visit-bot/migrations"

	"github.com/joho/godotenv"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// transport is the chat platform client selected by CHAT_TRANSPORT.
type transport interface {
	SetDispatcher(d dispatch.Submitter)
	Start(ctx context.Context) error
	Close()
}

func run() error {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := logging.NewLogger(cfg.LogLevel, cfg.LogFormat)
	logger.Info("starting field-visit-bot",
		"env", cfg.AppEnv,
		"transport", cfg.ChatTransport,
		"identity_driver", cfg.IdentityDriver,
		"sink", cfg.VisitSink,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metricRegistry := metrics.Registry(cfg.MetricsNamespace)

	repository, err := repo.Open(ctx, repo.Options{
		Driver:      cfg.IdentityDriver,
		DatabaseURL: cfg.DatabaseURL,
		Schema:      cfg.DBSchema,
		SQLitePath:  cfg.SQLitePath,
	}, logger)
	if err != nil {
		return fmt.Errorf("init repository: %w", err)
	}
	defer repository.Close()

	if cfg.RunMigrations {
		if err := repository.RunMigrations(ctx, migrations.Files); err != nil {
			return fmt.Errorf("run migrations: %w", err)
		}
		logger.Info("database migrated")
	}

	visitSink, err := sink.New(ctx, sink.Options{
		Kind: cfg.VisitSink,
		Sheets: sink.SheetsConfig{
			SpreadsheetID:   cfg.GoogleSheetID,
			SpreadsheetName: cfg.GoogleSheetName,
			Range:           cfg.GoogleSheetRange,
			CredentialsJSON: cfg.GoogleCredentialsJSON,
			Location:        cfg.Location,
		},
	}, repository, logger)
	if err != nil {
		return fmt.Errorf("init sink: %w", err)
	}
	logger.Info("visit sink ready", "sink", visitSink.Name())

	checks := httpserver.Checks{"identity_store": repository}

	var countCache ingest.CountCache
	if cfg.RedisAddr != "" {
		redisClient := cache.New(cache.Config{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			UseTLS:   cfg.RedisTLS,
		}, logger)
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("failed closing redis", "error", err)
			}
		}()
		if err := redisClient.Ping(ctx); err != nil {
			logger.Warn("redis ping failed", "error", err)
		}
		countCache = redisClient
		checks["redis"] = redisClient
	}

	resolver := identity.NewResolver(repository, logger, metricRegistry)
	orchestrator := ingest.New(resolver, visitSink, countCache, metricRegistry, logger, ingest.Config{
		Location:      cfg.Location,
		CountCacheTTL: cfg.CountCacheTTL,
	})

	dispatcher := dispatch.New(orchestrator, logger, metricRegistry, cfg.EventTimeout)

	chat, err := newTransport(ctx, cfg, logger)
	if err != nil {
		dispatcher.Close()
		return err
	}
	chat.SetDispatcher(dispatcher)

	transportErr := make(chan error, 1)
	go func() {
		if err := chat.Start(ctx); err != nil {
			transportErr <- err
		}
	}()

	httpSrv := httpserver.New(cfg.HTTPListenAddr, logger, checks, cfg.PublicBasePath)
	httpErr := make(chan error, 1)
	go func() {
		if err := httpSrv.Start(); err != nil {
			httpErr <- err
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-transportErr:
		runErr = fmt.Errorf("%s transport stopped: %w", cfg.ChatTransport, err)
	case err := <-httpErr:
		runErr = fmt.Errorf("http server error: %w", err)
	}
	stop()

	chat.Close()
	dispatcher.Close()
	logger.Info("dispatcher drained")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}

	return runErr
}

func newTransport(ctx context.Context, cfg config.Config, logger *slog.Logger) (transport, error) {
	switch cfg.ChatTransport {
	case config.TransportTelegram:
		client, err := tg.New(tg.Config{
			Token:       cfg.TelegramToken,
			PollTimeout: cfg.TelegramPollTimeout,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("init telegram client: %w", err)
		}
		return &telegramTransport{client}, nil
	case config.TransportWhatsApp:
		client, err := wa.New(ctx, wa.Config{
			StorePath: cfg.WhatsAppStorePath,
			LogLevel:  cfg.WhatsAppLogLevel,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("init whatsapp client: %w", err)
		}
		return &whatsappTransport{client}, nil
	default:
		return nil, errors.New("no chat transport configured")
	}
}

type telegramTransport struct{ *tg.Client }

// Close is a no-op; polling stops when the start context is cancelled.
func (t *telegramTransport) Close() {}

type whatsappTransport struct{ *wa.Client }

// Start connects and then blocks until ctx is done, like the telegram poller.
func (w *whatsappTransport) Start(ctx context.Context) error {
	if err := w.Client.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	return nil
}
