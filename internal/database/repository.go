package database

import (
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	"gorm.io/gorm"
)

// RecordingRepository provides access to the recording index.
type RecordingRepository struct {
	db *gorm.DB
}

// NewRecordingRepository creates a repository over the given connection.
func NewRecordingRepository(db *DB) *RecordingRepository {
	return &RecordingRepository{db: db.DB}
}

// Create indexes a finalized recording. The ID is assigned here.
func (r *RecordingRepository) Create(rec *Recording) error {
	if rec.ID == "" {
		rec.ID = ulid.Make().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	if err := r.db.Create(rec).Error; err != nil {
		return fmt.Errorf("indexing recording: %w", err)
	}
	return nil
}

// List returns recordings newest-first, optionally filtered by stream
// name. An empty streamName returns everything.
func (r *RecordingRepository) List(streamName string) ([]Recording, error) {
	var recs []Recording
	q := r.db.Order("started_at DESC")
	if streamName != "" {
		q = q.Where("stream_name = ?", streamName)
	}
	if err := q.Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("listing recordings: %w", err)
	}
	return recs, nil
}

// DeleteByPath removes the index row for a recording file. Missing rows
// are not an error; retention may delete files the index never saw.
func (r *RecordingRepository) DeleteByPath(path string) error {
	if err := r.db.Where("path = ?", path).Delete(&Recording{}).Error; err != nil {
		return fmt.Errorf("deleting recording index row: %w", err)
	}
	return nil
}
