package database

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/viktsys/tt2ingest/config"
	"github.com/viktsys/tt2ingest/logger"
	"github.com/viktsys/tt2ingest/models"
)

const DefaultBatchSize = 500

// ErrNilStore is returned when a Store method is called on a nil store.
var ErrNilStore = errors.New("database: store is not initialised")

// Store owns every persisted row. Writes are single upsert statements per
// batch, so re-running a batch converges to the same rows.
type Store struct {
	db        *gorm.DB
	batchSize int
	logger    *zap.Logger
	now       func() time.Time
}

// Open connects to the configured database and tunes its connection pool.
func Open(cfg config.DBConfig, batchSize int, log *zap.Logger) (*Store, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "sqlite":
		dialector = sqlite.Open(sqliteDSN(cfg.ConnString()))
	case "postgres", "":
		dialector = postgres.Open(cfg.ConnString())
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	if cfg.ConnMaxIdleTime > 0 {
		sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	}

	return New(db, batchSize, log), nil
}

// New wraps an open gorm handle.
func New(db *gorm.DB, batchSize int, log *zap.Logger) *Store {
	if batchSize < 1 {
		batchSize = DefaultBatchSize
	}
	return &Store{db: db, batchSize: batchSize, logger: logger.OrNop(log), now: time.Now}
}

// sqliteDSN turns on foreign key enforcement, which sqlite leaves off.
func sqliteDSN(path string) string {
	if strings.Contains(path, "_foreign_keys") {
		return path
	}
	if strings.Contains(path, "?") {
		return path + "&_foreign_keys=on"
	}
	return path + "?_foreign_keys=on"
}

func (s *Store) DB() *gorm.DB { return s.db }

func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.db == nil {
		return ErrNilStore
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Migrate creates the five tables and their indexes.
func (s *Store) Migrate(ctx context.Context) error {
	if s == nil || s.db == nil {
		return ErrNilStore
	}
	if err := s.db.WithContext(ctx).AutoMigrate(models.All()...); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	if err := OptimizeIndexes(s.db.WithContext(ctx)); err != nil {
		s.logger.Warn("failed to optimize indexes", zap.Error(err))
	}
	s.logger.Info("database migrated")
	return nil
}
