package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"batchpurge/internal/purge"
)

const (
	EnginePostgres = "pgsql"
	EngineSqlite   = "sqlite"
)

// Config holds the core runtime configuration for the service.
// Values are sourced from environment variables, with sensible defaults
// where appropriate. See .env.example.
type Config struct {
	DatabaseEngine string
	DatabaseURL    string
	SqliteFile     string

	// CreateBatchSchema creates the Spring Batch history tables on startup
	// if they are missing. Meant for development databases; in production
	// the batch engine owns the schema.
	CreateBatchSchema bool

	// TablePrefix is substituted for %PREFIX% in every statement.
	TablePrefix string

	// DaysToRetain is the retention window. Executions created before the
	// start of the day DaysToRetain days ago are purged.
	DaysToRetain int

	ChunkSize int

	// Timezone is the location in which calendar days are counted.
	Timezone string

	// Schedule is a standard 5-field cron expression.
	Schedule   string
	RunOnStart bool

	ListenAddr string

	// AdminTokenHash is a bcrypt hash of the bearer token accepted by the
	// admin endpoints. If empty, the admin API is disabled.
	AdminTokenHash string

	LogLevel  string
	LogFormat string
}

// Load reads configuration from environment variables and applies
// defaults. Malformed numbers and booleans are reported, not ignored.
func Load() (*Config, error) {
	cfg := &Config{
		DatabaseEngine: getenv("APP_DATABASE_ENGINE", EnginePostgres),
		DatabaseURL:    os.Getenv("APP_DATABASE_URL"),
		SqliteFile:     getenv("APP_SQLITE_FILE", "batch.db"),
		TablePrefix:    getenv("APP_TABLE_PREFIX", purge.DefaultTablePrefix),
		DaysToRetain:   purge.DefaultDaysToRetain,
		ChunkSize:      purge.DefaultChunkSize,
		Timezone:       getenv("APP_TIMEZONE", "Local"),
		Schedule:       getenv("APP_PURGE_SCHEDULE", "0 3 * * *"),
		ListenAddr:     getenv("APP_LISTEN_ADDR", ":8080"),
		AdminTokenHash: os.Getenv("APP_ADMIN_TOKEN_HASH"),
		LogLevel:       getenv("APP_LOG_LEVEL", "info"),
		LogFormat:      getenv("APP_LOG_FORMAT", "text"),
	}

	var err error
	if cfg.DaysToRetain, err = getenvInt("APP_DAYS_TO_RETAIN", cfg.DaysToRetain); err != nil {
		return nil, err
	}
	if cfg.ChunkSize, err = getenvInt("APP_CHUNK_SIZE", cfg.ChunkSize); err != nil {
		return nil, err
	}
	if cfg.RunOnStart, err = getenvBool("APP_PURGE_ON_START", false); err != nil {
		return nil, err
	}
	if cfg.CreateBatchSchema, err = getenvBool("APP_CREATE_BATCH_SCHEMA", false); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate reports the first invalid setting as a *purge.ConfigurationError.
func (c *Config) Validate() error {
	switch c.DatabaseEngine {
	case EnginePostgres:
		dsn := strings.TrimSpace(c.DatabaseURL)
		if dsn == "" {
			return &purge.ConfigurationError{Field: "APP_DATABASE_URL", Value: `""`, Reason: "required for the pgsql engine"}
		}
		if !strings.HasPrefix(dsn, "postgres://") && !strings.HasPrefix(dsn, "postgresql://") {
			return &purge.ConfigurationError{Field: "APP_DATABASE_URL", Value: "(redacted)", Reason: "must be a postgres:// or postgresql:// URL"}
		}
	case EngineSqlite:
		if c.SqliteFile == "" {
			return &purge.ConfigurationError{Field: "APP_SQLITE_FILE", Value: `""`, Reason: "required for the sqlite engine"}
		}
	default:
		return &purge.ConfigurationError{Field: "APP_DATABASE_ENGINE", Value: c.DatabaseEngine, Reason: "must be pgsql or sqlite"}
	}

	if err := purge.ValidatePrefix(c.TablePrefix); err != nil {
		return err
	}
	if err := purge.ValidateDaysToRetain(c.DaysToRetain); err != nil {
		return err
	}
	if c.ChunkSize <= 0 {
		return &purge.ConfigurationError{Field: "APP_CHUNK_SIZE", Value: c.ChunkSize, Reason: "must be positive"}
	}
	if _, err := c.Location(); err != nil {
		return &purge.ConfigurationError{Field: "APP_TIMEZONE", Value: c.Timezone, Reason: err.Error()}
	}
	return nil
}

// Location resolves Timezone.
func (c *Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.Timezone)
}

// PurgeOptions returns the pipeline options carried by the config.
func (c *Config) PurgeOptions() purge.Options {
	return purge.Options{
		TablePrefix:  c.TablePrefix,
		DaysToRetain: c.DaysToRetain,
		ChunkSize:    c.ChunkSize,
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, &purge.ConfigurationError{Field: key, Value: v, Reason: "not an integer"}
	}
	return n, nil
}

func getenvBool(key string, def bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return false, &purge.ConfigurationError{Field: key, Value: v, Reason: fmt.Sprintf("not a boolean: %v", err)}
	}
	return b, nil
}
