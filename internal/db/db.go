package db

import (
	"context"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"batchpurge/internal/config"
)

var logger = logrus.StandardLogger().WithField("module", "db")

// Connect opens the configured store, migrates the run ledger and, when
// enabled, creates the Spring Batch history tables.
func Connect(cfg *config.Config) (*gorm.DB, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var (
		db  *gorm.DB
		err error
	)
	switch cfg.DatabaseEngine {
	case config.EngineSqlite:
		db, err = OpenSQLite(cfg.SqliteFile)
	default:
		// PrepareStmt: true prevents the GORM postgres migrator from forcing simple protocol
		// for "SELECT * FROM table LIMIT 1", which would otherwise trigger "insufficient arguments".
		db, err = gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{PrepareStmt: true, Logger: newGormLogger()})
	}
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.DatabaseEngine, err)
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}
	if cfg.CreateBatchSchema {
		if err := EnsureBatchSchema(context.Background(), db, cfg.TablePrefix); err != nil {
			return nil, err
		}
	}

	logger.WithFields(logrus.Fields{
		"engine": cfg.DatabaseEngine,
		"prefix": cfg.TablePrefix,
	}).Info("store connected")
	return db, nil
}

// OpenSQLite opens a file-backed sqlite database in WAL mode with foreign
// keys enforced. WAL lets a selection cursor stay open on one connection
// while chunk transactions commit on another.
func OpenSQLite(path string) (*gorm.DB, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_time_format=sqlite", path)
	return gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: newGormLogger()})
}

// Migrate creates or updates the tables owned by this service.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&PurgeRun{}); err != nil {
		return fmt.Errorf("migrate run ledger: %w", err)
	}
	return nil
}

// newGormLogger routes gorm's slow-query and error reports through logrus.
func newGormLogger() gormlogger.Interface {
	return gormlogger.New(logger, gormlogger.Config{
		SlowThreshold:             time.Second,
		LogLevel:                  gormlogger.Warn,
		IgnoreRecordNotFoundError: true,
	})
}
