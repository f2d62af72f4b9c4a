package db

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"batchpurge/internal/config"
)

// ErrLockHeld is returned when another process holds the run lock.
var ErrLockHeld = errors.New("purge run lock is held by another process")

// RunLock serializes purge runs across processes sharing one store.
type RunLock interface {
	// WithLock runs fn while holding the lock, or returns ErrLockHeld
	// without calling fn.
	WithLock(ctx context.Context, fn func(ctx context.Context) error) error
}

// NewRunLock returns a postgres advisory lock keyed by name for the pgsql
// engine. Other engines get a lock that always succeeds; a single process
// is expected to own a sqlite file.
func NewRunLock(db *gorm.DB, engine, name string) RunLock {
	if engine == config.EnginePostgres {
		return &advisoryLock{db: db, name: name}
	}
	return noLock{}
}

type advisoryLock struct {
	db   *gorm.DB
	name string
}

// WithLock pins one pooled connection for the duration of fn; advisory
// locks belong to the session that took them.
func (l *advisoryLock) WithLock(ctx context.Context, fn func(ctx context.Context) error) error {
	return l.db.WithContext(ctx).Connection(func(conn *gorm.DB) error {
		var acquired bool
		if err := conn.Raw("SELECT pg_try_advisory_lock(hashtext(?))", l.name).Scan(&acquired).Error; err != nil {
			return fmt.Errorf("acquire run lock: %w", err)
		}
		if !acquired {
			return ErrLockHeld
		}

		log := logger.WithField("lock", l.name)
		log.Debug("run lock acquired")
		defer func() {
			var released bool
			err := conn.WithContext(context.WithoutCancel(ctx)).
				Raw("SELECT pg_advisory_unlock(hashtext(?))", l.name).Scan(&released).Error
			switch {
			case err != nil:
				log.WithError(err).Error("failed to release run lock")
			case !released:
				log.Warn("run lock was already released")
			default:
				log.Debug("run lock released")
			}
		}()

		return fn(ctx)
	})
}

type noLock struct{}

func (noLock) WithLock(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}
