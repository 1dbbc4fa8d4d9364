// Package database provides the SQLite-backed recording index. Every
// finalized recording gets one row so the HTTP API can list recordings
// without scanning the filesystem.
package database

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// DB wraps a GORM connection to the recording index.
type DB struct {
	*gorm.DB
	logger *slog.Logger
}

// Recording is one indexed recording on disk.
type Recording struct {
	ID           string    `gorm:"primaryKey" json:"id"`
	StreamName   string    `gorm:"index;not null" json:"stream_name"`
	Path         string    `gorm:"uniqueIndex;not null" json:"path"`
	MetadataPath string    `json:"metadata_path"`
	StartedAt    time.Time `json:"started_at"`
	EndedAt      time.Time `json:"ended_at"`
	FrameCount   int       `json:"frame_count"`
	CreatedAt    time.Time `json:"created_at"`
}

// New opens the index at dsn and migrates the schema.
func New(dsn string, log *slog.Logger) (*DB, error) {
	if log == nil {
		log = slog.Default()
	}

	gormCfg := &gorm.Config{
		Logger:                 logger.Default.LogMode(logger.Silent),
		SkipDefaultTransaction: true,
	}

	db, err := gorm.Open(sqlite.Open(dsn), gormCfg)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := db.AutoMigrate(&Recording{}); err != nil {
		return nil, fmt.Errorf("migrating recording index: %w", err)
	}

	log.Info("recording index opened", slog.String("dsn", dsn))
	return &DB{DB: db, logger: log}, nil
}

// Close closes the underlying connection.
func (d *DB) Close() error {
	sqlDB, err := d.DB.DB()
	if err != nil {
		return fmt.Errorf("getting underlying sql.DB: %w", err)
	}
	return sqlDB.Close()
}
