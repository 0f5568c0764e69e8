package config

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

const (
	StoreBackendPostgres = "postgres"
	StoreBackendMemory   = "memory"
)

// Config holds the application configuration
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Ingest    IngestConfig    `mapstructure:"ingest"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port         int           `mapstructure:"port"`
	Host         string        `mapstructure:"host"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	// Inbound per-client limit on the ingest endpoints
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	BurstSize         int     `mapstructure:"burst_size"`
}

// DatabaseConfig holds database connection configuration
type DatabaseConfig struct {
	URL             string        `mapstructure:"url"`
	MaxConnections  int           `mapstructure:"max_connections"`
	MinConnections  int           `mapstructure:"min_connections"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`
}

// StorageConfig holds object storage configuration. Buckets are directories
// below BasePath.
type StorageConfig struct {
	Type     string `mapstructure:"type"`
	BasePath string `mapstructure:"base_path"`
	// ArchiveBucket receives raw fetched payloads when ingest.archive is on
	ArchiveBucket string `mapstructure:"archive_bucket"`
}

// IngestConfig holds ingestion pipeline settings
type IngestConfig struct {
	StoreBackend         string        `mapstructure:"store_backend"`
	FlushThreshold       int           `mapstructure:"flush_threshold"`
	Currency             string        `mapstructure:"currency"`
	FetchTimeout         time.Duration `mapstructure:"fetch_timeout"`
	MaxFetchBytes        int64         `mapstructure:"max_fetch_bytes"`
	MaxDecompressedBytes int64         `mapstructure:"max_decompressed_bytes"`
	Archive              bool          `mapstructure:"archive"`
}

// RateLimitConfig holds outbound fetch rate limiting configuration
type RateLimitConfig struct {
	RequestsPerSecond int `mapstructure:"requests_per_second"`
	MaxRetries        int `mapstructure:"max_retries"`
	InitialBackoffMs  int `mapstructure:"initial_backoff_ms"`
	MaxBackoffMs      int `mapstructure:"max_backoff_ms"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level   string `mapstructure:"level"`
	Format  string `mapstructure:"format"`
	NoColor bool   `mapstructure:"no_color"`
}

// TelemetryConfig holds OpenTelemetry exporter configuration
type TelemetryConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Endpoint    string `mapstructure:"endpoint"`
	ServiceName string `mapstructure:"service_name"`
	Environment string `mapstructure:"environment"`
}

// Load loads the configuration from file, .env, and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	// .env is optional
	if err := loadEnvFile(); err != nil {
		log.Debug().Err(err).Msg(".env file not loaded")
	}

	v.SetEnvPrefix("CATALOG_INGEST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnvVars(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the service cannot start with
func (c *Config) Validate() error {
	switch c.Ingest.StoreBackend {
	case StoreBackendPostgres, StoreBackendMemory:
	default:
		return fmt.Errorf("invalid ingest.store_backend %q: want %s or %s", c.Ingest.StoreBackend, StoreBackendPostgres, StoreBackendMemory)
	}
	if c.Ingest.FlushThreshold <= 0 {
		return fmt.Errorf("invalid ingest.flush_threshold %d: must be positive", c.Ingest.FlushThreshold)
	}
	if c.Ingest.StoreBackend == StoreBackendPostgres && c.Database.URL == "" {
		return errors.New("database.url (DATABASE_URL) is required for the postgres store backend")
	}
	return nil
}

// loadEnvFile loads the first .env file found by parsing KEY=VALUE lines
// into the process environment. Variables already set are left alone.
func loadEnvFile() error {
	for _, dir := range []string{".", "./config"} {
		envFile := filepath.Join(dir, ".env")
		if _, err := os.Stat(envFile); err == nil {
			return loadDotEnvFile(envFile)
		}
	}
	return errors.New("no .env file found")
}

func loadDotEnvFile(filename string) error {
	file, err := os.Open(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		if _, set := os.LookupEnv(key); set {
			continue
		}
		os.Setenv(key, strings.Trim(strings.TrimSpace(value), `"'`))
	}
	return scanner.Err()
}

// bindEnvVars binds the unprefixed variables deployments commonly set
func bindEnvVars(v *viper.Viper) {
	v.BindEnv("database.url", "CATALOG_INGEST_DATABASE_URL", "DATABASE_URL")
	v.BindEnv("server.port", "CATALOG_INGEST_SERVER_PORT", "PORT")
	v.BindEnv("logging.level", "CATALOG_INGEST_LOGGING_LEVEL", "LOG_LEVEL")
	v.BindEnv("storage.base_path", "CATALOG_INGEST_STORAGE_BASE_PATH", "STORAGE_PATH")
	v.BindEnv("telemetry.endpoint", "CATALOG_INGEST_TELEMETRY_ENDPOINT", "OTEL_EXPORTER_OTLP_ENDPOINT")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 5*time.Minute)
	v.SetDefault("server.requests_per_second", 10)
	v.SetDefault("server.burst_size", 20)

	v.SetDefault("database.max_connections", 25)
	v.SetDefault("database.min_connections", 2)
	v.SetDefault("database.max_conn_lifetime", time.Hour)
	v.SetDefault("database.max_conn_idle_time", 30*time.Minute)

	v.SetDefault("storage.type", "local")
	v.SetDefault("storage.base_path", "./data/buckets")
	v.SetDefault("storage.archive_bucket", "archives")

	v.SetDefault("ingest.store_backend", StoreBackendPostgres)
	v.SetDefault("ingest.flush_threshold", 450)
	v.SetDefault("ingest.currency", "ILS")
	v.SetDefault("ingest.fetch_timeout", 2*time.Minute)
	v.SetDefault("ingest.max_fetch_bytes", 256<<20)
	v.SetDefault("ingest.max_decompressed_bytes", 1<<30)
	v.SetDefault("ingest.archive", false)

	v.SetDefault("rate_limit.requests_per_second", 2)
	v.SetDefault("rate_limit.max_retries", 2)
	v.SetDefault("rate_limit.initial_backoff_ms", 100)
	v.SetDefault("rate_limit.max_backoff_ms", 30000)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.no_color", false)

	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.endpoint", "localhost:4317")
	v.SetDefault("telemetry.service_name", "catalog-ingest")
	v.SetDefault("telemetry.environment", "production")
}
