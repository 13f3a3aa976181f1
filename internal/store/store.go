// Package store persists locations and weather records in SQLite via GORM.
// Expected uniqueness conflicts are resolved internally with the optimistic
// insert / fallback-to-lookup pattern; only genuinely unexpected database
// errors surface as StorageFailure.
package store

import (
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"weatherhub/internal/svcerr"
)

// Store wraps the GORM handle shared by the location and record stores.
type Store struct {
	db *gorm.DB
}

// Open opens (or creates) the SQLite database at path and migrates the
// schema. Use ":memory:" for an ephemeral store in tests.
func Open(path string) (*Store, error) {
	gormLogger := logger.New(
		log.New(os.Stderr, "", log.LstdFlags),
		logger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
		},
	)

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{Logger: gormLogger})
	if err != nil {
		return nil, fmt.Errorf("%w: open sqlite database: %v", svcerr.ErrStorageFailure, err)
	}

	// SQLite serializes writers anyway, and a pool of size one keeps an
	// in-memory database on a single connection instead of one per conn.
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("%w: unwrap sql handle: %v", svcerr.ErrStorageFailure, err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&Location{}, &WeatherRecord{}); err != nil {
		return nil, fmt.Errorf("%w: migrate schema: %v", svcerr.ErrStorageFailure, err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Ping verifies database reachability. Used by the health handler.
func (s *Store) Ping() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}

func storageErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", svcerr.ErrStorageFailure, op, err)
}
