package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/welldanyogia/webrana-mailstore/internal/api"
	"github.com/welldanyogia/webrana-mailstore/internal/config"
	"github.com/welldanyogia/webrana-mailstore/internal/database"
	"github.com/welldanyogia/webrana-mailstore/internal/delivery"
	"github.com/welldanyogia/webrana-mailstore/internal/events"
	"github.com/welldanyogia/webrana-mailstore/internal/repository"
	"github.com/welldanyogia/webrana-mailstore/internal/services"
	"github.com/welldanyogia/webrana-mailstore/internal/storage"
	"github.com/welldanyogia/webrana-mailstore/internal/websocket"
	"gorm.io/gorm"
)

func main() {
	cfg, err := config.LoadWithValidation()
	if err != nil {
		slog.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel(cfg.LogLevel),
	}))
	slog.SetDefault(logger)
	cfg.LogConfig(logger)

	slog.Info("Starting mailstore server...")

	factory, db, err := buildFactory(cfg)
	if err != nil {
		slog.Error("failed to initialize storage backend", slog.Any("error", err))
		os.Exit(1)
	}
	defer factory.Close()

	factory = repository.NewRetryingFactory(factory, repository.RetryConfig{
		Attempts: cfg.RetryAttempts,
		Backoff:  cfg.RetryBackoff,
	})

	contentStore, err := storage.NewFileContentStore(cfg.ContentStoragePath)
	if err != nil {
		slog.Error("failed to initialize content storage", slog.Any("error", err))
		os.Exit(1)
	}

	hub := websocket.NewHub(logger)
	go hub.Run()

	manager := services.NewMailboxManager(services.MailboxManagerConfig{
		Factory:       factory,
		Authenticator: loadUsers(),
		Groups:        services.NewStaticGroups(),
		ContentStore:  contentStore,
		Publisher:     events.NewMultiPublisher(events.NewSlogPublisher(logger), hub),
		Delimiter:     cfg.MailboxDelimiter,
	})

	router := api.NewRouter(&api.RouterConfig{
		Manager: manager,
		Hub:     hub,
		DB:      db,
		Logger:  logger,
	})

	smtpBackend := delivery.NewBackend(&delivery.BackendConfig{
		Manager: manager,
		Preview: delivery.PreviewConfig{
			MaxBody: cfg.LogMaxBody,
			Headers: cfg.LogHeaders,
		},
		Logger: logger,
	})
	smtpServerCfg := delivery.LoadServerConfigFromEnv()
	smtpServerCfg.Addr = fmt.Sprintf(":%d", cfg.SMTPPort)
	smtpServerCfg.Domain = cfg.SMTPHost
	smtpServerCfg.MaxMessageSize = cfg.SMTPMaxSize
	smtpServer := delivery.NewSecureServer(smtpBackend, smtpServerCfg)

	go func() {
		slog.Info("HTTP server listening", slog.Int("port", cfg.APIPort))
		if err := router.Start(fmt.Sprintf(":%d", cfg.APIPort)); err != nil {
			slog.Error("HTTP server stopped", slog.Any("error", err))
		}
	}()

	go func() {
		slog.Info("SMTP server listening", slog.Int("port", cfg.SMTPPort))
		if err := smtpServer.ListenAndServe(); err != nil {
			slog.Error("SMTP server stopped", slog.Any("error", err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := router.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP shutdown failed", slog.Any("error", err))
	}
	if err := smtpServer.Close(); err != nil {
		slog.Error("SMTP shutdown failed", slog.Any("error", err))
	}
	if db != nil {
		if err := database.Close(db); err != nil {
			slog.Error("database close failed", slog.Any("error", err))
		}
	}

	slog.Info("Server stopped")
}

// buildFactory selects the mapper factory for the configured backend. The
// returned *gorm.DB is non-nil only for the postgres backend.
func buildFactory(cfg *config.Config) (repository.Factory, *gorm.DB, error) {
	switch cfg.StorageBackend {
	case config.BackendPostgres:
		db, err := database.Connect(cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		if err := database.Migrate(db); err != nil {
			return nil, nil, err
		}
		return repository.NewGormFactory(db), db, nil

	case config.BackendCassandra:
		factory, err := repository.NewCassandraFactory(repository.CassandraConfig{
			Hosts:    cfg.CassandraHosts,
			Keyspace: cfg.CassandraKeyspace,
		})
		if err != nil {
			return nil, nil, err
		}
		return factory, nil, nil

	default:
		return repository.NewMemoryFactory(repository.NewMemoryStore()), nil, nil
	}
}

// loadUsers builds the authenticator from MAILSTORE_USERS, a comma
// separated list of username:credential pairs.
func loadUsers() *services.StaticAuthenticator {
	credentials := make(map[string]string)
	for _, pair := range strings.Split(os.Getenv("MAILSTORE_USERS"), ",") {
		if username, credential, ok := strings.Cut(strings.TrimSpace(pair), ":"); ok {
			credentials[username] = credential
		}
	}
	return services.NewStaticAuthenticator(credentials)
}

func logLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
