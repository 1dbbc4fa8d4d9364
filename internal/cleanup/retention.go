package cleanup

import (
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// RecordingIndex is the index surface retention needs to keep rows in
// sync with deleted files.
type RecordingIndex interface {
	DeleteByPath(path string) error
}

// Retention deletes recordings older than the configured cutoff from
// the recordings directory and drops their index rows.
type Retention struct {
	baseDir string
	index   RecordingIndex
	logger  *slog.Logger
}

// NewRetention creates a retention pruner over baseDir. index may be
// nil when no recording index is configured.
func NewRetention(baseDir string, index RecordingIndex, logger *slog.Logger) *Retention {
	if logger == nil {
		logger = slog.Default()
	}
	return &Retention{baseDir: baseDir, index: index, logger: logger}
}

// Prune deletes files whose modification time is older than
// retentionDays and removes stream directories left empty. Per-file
// failures are logged and skipped; the walk keeps going.
func (r *Retention) Prune(retentionDays int) error {
	cutoff := time.Now().AddDate(0, 0, -retentionDays)

	var deleted int
	dirs := make(map[string]struct{})

	err := filepath.WalkDir(r.baseDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			r.logger.Warn("retention walk error, skipping",
				slog.String("path", path), slog.String("error", err.Error()))
			return nil
		}
		if d.IsDir() {
			if path != r.baseDir {
				dirs[path] = struct{}{}
			}
			return nil
		}

		info, err := d.Info()
		if err != nil {
			r.logger.Warn("retention stat failed, skipping",
				slog.String("path", path), slog.String("error", err.Error()))
			return nil
		}
		if !info.ModTime().Before(cutoff) {
			return nil
		}

		if err := os.Remove(path); err != nil {
			r.logger.Warn("failed to delete old recording file",
				slog.String("path", path), slog.String("error", err.Error()))
			return nil
		}
		deleted++

		if r.index != nil {
			if err := r.index.DeleteByPath(path); err != nil {
				r.logger.Warn("failed to drop recording index row",
					slog.String("path", path), slog.String("error", err.Error()))
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	// Prune empty stream directories deepest-first.
	names := make([]string, 0, len(dirs))
	for dir := range dirs {
		names = append(names, dir)
	}
	sort.Slice(names, func(i, j int) bool { return len(names[i]) > len(names[j]) })
	for _, dir := range names {
		entries, err := os.ReadDir(dir)
		if err != nil || len(entries) > 0 {
			continue
		}
		if err := os.Remove(dir); err != nil {
			r.logger.Warn("failed to remove empty stream directory",
				slog.String("path", dir), slog.String("error", err.Error()))
		}
	}

	if deleted > 0 {
		r.logger.Info("retention prune finished",
			slog.Int("deleted", deleted),
			slog.Int("retention_days", retentionDays))
	}
	return nil
}
