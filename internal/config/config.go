package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Storage backend identifiers accepted in STORAGE_BACKEND.
const (
	BackendMemory    = "memory"
	BackendPostgres  = "postgres"
	BackendCassandra = "cassandra"
)

// Config holds all configuration for the application
type Config struct {
	// Storage backend selection
	StorageBackend string

	// Database (postgres backend)
	DatabaseURL string

	// Cassandra backend
	CassandraHosts    []string
	CassandraKeyspace string

	// Server ports
	APIPort  int
	SMTPPort int

	// Mailbox hierarchy
	MailboxDelimiter string

	// Storage
	ContentStoragePath string

	// Delivery logging
	LogMaxBody    int
	LogHeaders    bool
	SMTPHost      string
	SMTPMaxSize   int64
	AllowBareUser bool

	// Backend retry policy
	RetryAttempts int
	RetryBackoff  time.Duration

	// Logging
	LogLevel string

	// Security
	AppEnv string
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{}

	// STORAGE_BACKEND (default: memory)
	cfg.StorageBackend = os.Getenv("STORAGE_BACKEND")
	if cfg.StorageBackend == "" {
		cfg.StorageBackend = BackendMemory
	}

	// DATABASE_URL, required only for the postgres backend
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.StorageBackend == BackendPostgres && cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required for the postgres backend")
	}

	// CASSANDRA_HOSTS (comma separated), CASSANDRA_KEYSPACE
	if hosts := os.Getenv("CASSANDRA_HOSTS"); hosts != "" {
		for _, host := range strings.Split(hosts, ",") {
			if host = strings.TrimSpace(host); host != "" {
				cfg.CassandraHosts = append(cfg.CassandraHosts, host)
			}
		}
	}
	cfg.CassandraKeyspace = os.Getenv("CASSANDRA_KEYSPACE")
	if cfg.CassandraKeyspace == "" {
		cfg.CassandraKeyspace = "mailstore"
	}
	if cfg.StorageBackend == BackendCassandra && len(cfg.CassandraHosts) == 0 {
		return nil, fmt.Errorf("CASSANDRA_HOSTS is required for the cassandra backend")
	}

	// API_PORT (default: 8080)
	apiPort := os.Getenv("API_PORT")
	if apiPort == "" {
		cfg.APIPort = 8080
	} else {
		port, err := strconv.Atoi(apiPort)
		if err != nil {
			return nil, fmt.Errorf("API_PORT must be a valid integer: %w", err)
		}
		cfg.APIPort = port
	}

	// SMTP_PORT (default: 2525)
	smtpPort := os.Getenv("SMTP_PORT")
	if smtpPort == "" {
		cfg.SMTPPort = 2525
	} else {
		port, err := strconv.Atoi(smtpPort)
		if err != nil {
			return nil, fmt.Errorf("SMTP_PORT must be a valid integer: %w", err)
		}
		cfg.SMTPPort = port
	}

	// MAILBOX_DELIMITER (default: ".")
	cfg.MailboxDelimiter = os.Getenv("MAILBOX_DELIMITER")
	if cfg.MailboxDelimiter == "" {
		cfg.MailboxDelimiter = "."
	}

	// CONTENT_STORAGE_PATH (default: ./content)
	cfg.ContentStoragePath = os.Getenv("CONTENT_STORAGE_PATH")
	if cfg.ContentStoragePath == "" {
		cfg.ContentStoragePath = "./content"
	}

	// LOG_MAX_BODY (default: 0, body logging disabled)
	if maxBody := os.Getenv("LOG_MAX_BODY"); maxBody != "" {
		v, err := strconv.Atoi(maxBody)
		if err != nil {
			return nil, fmt.Errorf("LOG_MAX_BODY must be a valid integer: %w", err)
		}
		cfg.LogMaxBody = v
	}

	// LOG_HEADERS (default: true)
	if headers := os.Getenv("LOG_HEADERS"); headers != "" {
		v, err := strconv.ParseBool(headers)
		if err != nil {
			return nil, fmt.Errorf("LOG_HEADERS must be a valid boolean: %w", err)
		}
		cfg.LogHeaders = v
	} else {
		cfg.LogHeaders = true
	}

	// SMTP_HOST (default: localhost)
	cfg.SMTPHost = os.Getenv("SMTP_HOST")
	if cfg.SMTPHost == "" {
		cfg.SMTPHost = "localhost"
	}

	// SMTP_MAX_SIZE (default: 25 MB)
	if maxSize := os.Getenv("SMTP_MAX_SIZE"); maxSize != "" {
		v, err := strconv.ParseInt(maxSize, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("SMTP_MAX_SIZE must be a valid integer: %w", err)
		}
		cfg.SMTPMaxSize = v
	} else {
		cfg.SMTPMaxSize = 25 * 1024 * 1024
	}

	// BACKEND_RETRY_ATTEMPTS (default: 3)
	if attempts := os.Getenv("BACKEND_RETRY_ATTEMPTS"); attempts != "" {
		v, err := strconv.Atoi(attempts)
		if err != nil {
			return nil, fmt.Errorf("BACKEND_RETRY_ATTEMPTS must be a valid integer: %w", err)
		}
		cfg.RetryAttempts = v
	} else {
		cfg.RetryAttempts = 3
	}

	// BACKEND_RETRY_BACKOFF (default: 100ms)
	if backoff := os.Getenv("BACKEND_RETRY_BACKOFF"); backoff != "" {
		v, err := time.ParseDuration(backoff)
		if err != nil {
			return nil, fmt.Errorf("BACKEND_RETRY_BACKOFF must be a valid duration: %w", err)
		}
		cfg.RetryBackoff = v
	} else {
		cfg.RetryBackoff = 100 * time.Millisecond
	}

	// LOG_LEVEL (default: info)
	cfg.LogLevel = os.Getenv("LOG_LEVEL")
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}

	// APP_ENV (default: development)
	cfg.AppEnv = os.Getenv("APP_ENV")
	if cfg.AppEnv == "" {
		cfg.AppEnv = "development"
	}

	return cfg, nil
}

// LoadWithValidation loads and validates configuration, failing fast on errors
func LoadWithValidation() (*Config, error) {
	cfg, err := Load()
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.AppEnv == "production" {
		if err := cfg.ValidateProduction(); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	switch c.StorageBackend {
	case BackendMemory, BackendPostgres, BackendCassandra:
	default:
		return fmt.Errorf("STORAGE_BACKEND must be one of memory, postgres, cassandra")
	}
	if c.APIPort <= 0 || c.APIPort > 65535 {
		return fmt.Errorf("APIPort must be between 1 and 65535")
	}
	if c.SMTPPort <= 0 || c.SMTPPort > 65535 {
		return fmt.Errorf("SMTPPort must be between 1 and 65535")
	}
	if len(c.MailboxDelimiter) != 1 {
		return fmt.Errorf("MailboxDelimiter must be a single character")
	}
	if c.ContentStoragePath == "" {
		return fmt.Errorf("ContentStoragePath cannot be empty")
	}
	if c.RetryAttempts < 1 {
		return fmt.Errorf("RetryAttempts must be at least 1")
	}
	if c.LogMaxBody < 0 {
		return fmt.Errorf("LogMaxBody cannot be negative")
	}
	return nil
}

// ValidateProduction performs additional validation for production environment
func (c *Config) ValidateProduction() error {
	if c.StorageBackend == BackendMemory {
		return fmt.Errorf("the memory backend is not allowed in production")
	}

	if c.StorageBackend == BackendPostgres && strings.Contains(c.DatabaseURL, "sslmode=disable") {
		return fmt.Errorf("sslmode=disable is not allowed in production")
	}

	return nil
}

// LogConfig logs configuration values (excluding secrets)
func (c *Config) LogConfig(logger *slog.Logger) {
	logger.Info("configuration loaded",
		slog.String("storage_backend", c.StorageBackend),
		slog.Int("api_port", c.APIPort),
		slog.Int("smtp_port", c.SMTPPort),
		slog.String("delimiter", c.MailboxDelimiter),
		slog.String("content_path", c.ContentStoragePath),
		slog.Int("log_max_body", c.LogMaxBody),
		slog.Bool("log_headers", c.LogHeaders),
		slog.Int("retry_attempts", c.RetryAttempts),
		slog.Duration("retry_backoff", c.RetryBackoff),
		slog.String("log_level", c.LogLevel),
		slog.String("app_env", c.AppEnv),
		slog.Bool("database_url_set", c.DatabaseURL != ""),
		slog.Int("cassandra_hosts", len(c.CassandraHosts)),
	)
}
