// Package cleanup runs the background maintenance loops: sweeping
// inactive streams on an interval and pruning old recordings on a daily
// cron schedule.
package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// scheduleTimeRE matches a 24h "HH:MM" wall-clock time.
var scheduleTimeRE = regexp.MustCompile(`^([01]?\d|2[0-3]):[0-5]\d$`)

// StreamSweeper is the stream-manager surface the cleanup loop needs.
type StreamSweeper interface {
	InactiveSince(timeout time.Duration) []string
	Delete(name string) bool
}

// RecorderStopper stops a stream's recording worker before the stream
// is torn down.
type RecorderStopper interface {
	Stop(streamName string)
}

// Config controls the two maintenance loops.
type Config struct {
	// StreamTimeout is how long a stream may go without frames before
	// the sweep removes it.
	StreamTimeout time.Duration
	// SweepInterval is how often the inactive-stream sweep runs.
	SweepInterval time.Duration
	// RetentionDays is the age cutoff for the daily recording prune.
	RetentionDays int
	// ScheduleTime is the daily prune wall-clock time as "HH:MM".
	ScheduleTime string
}

// Manager owns the sweep goroutine and the cron-driven retention job.
type Manager struct {
	mu sync.Mutex

	cfg       Config
	streams   StreamSweeper
	recorder  RecorderStopper
	retention *Retention
	logger    *slog.Logger

	cron   *cron.Cron
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewManager creates a cleanup manager. recorder and retention may be
// nil when recording is disabled.
func NewManager(cfg Config, streams StreamSweeper, recorder RecorderStopper, retention *Retention, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		cfg:       cfg,
		streams:   streams,
		recorder:  recorder,
		retention: retention,
		logger:    logger,
	}
}

// Start launches the sweep loop and, when retention is configured,
// registers the daily prune with the cron runner. An invalid schedule
// time disables only the prune job.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ctx != nil {
		return fmt.Errorf("cleanup manager already started")
	}
	m.ctx, m.cancel = context.WithCancel(ctx)

	m.wg.Add(1)
	go m.sweepLoop()

	if m.retention != nil {
		spec, err := cronSpecForTime(m.cfg.ScheduleTime)
		if err != nil {
			m.logger.Error("invalid cleanup schedule time, daily prune disabled",
				slog.String("schedule_time", m.cfg.ScheduleTime),
				slog.String("error", err.Error()))
		} else {
			m.cron = cron.New()
			if _, err := m.cron.AddFunc(spec, m.runRetention); err != nil {
				return fmt.Errorf("registering retention job: %w", err)
			}
			m.cron.Start()
			m.logger.Info("daily retention prune scheduled",
				slog.String("schedule_time", m.cfg.ScheduleTime),
				slog.Int("retention_days", m.cfg.RetentionDays))
		}
	}

	m.logger.Info("cleanup manager started",
		slog.Duration("sweep_interval", m.cfg.SweepInterval),
		slog.Duration("stream_timeout", m.cfg.StreamTimeout))
	return nil
}

// Stop halts the sweep loop and the cron runner, waiting for any
// in-flight job to finish.
func (m *Manager) Stop() {
	m.mu.Lock()
	cancel := m.cancel
	cr := m.cron
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if cr != nil {
		<-cr.Stop().Done()
	}
	m.wg.Wait()
	m.logger.Info("cleanup manager stopped")
}

// RunNow triggers one sweep and one retention prune immediately.
func (m *Manager) RunNow() {
	m.sweep()
	m.runRetention()
}

func (m *Manager) sweepLoop() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			m.sweep()
		}
	}
}

// sweep removes streams that have gone quiet. Recording is stopped
// before the stream is deleted so the sidecar lands before the stream
// disappears from the API.
func (m *Manager) sweep() {
	inactive := m.streams.InactiveSince(m.cfg.StreamTimeout)
	for _, name := range inactive {
		if m.recorder != nil {
			m.recorder.Stop(name)
		}
		if m.streams.Delete(name) {
			m.logger.Info("removed inactive stream", slog.String("stream", name))
		}
	}
	if len(inactive) > 0 {
		m.logger.Info("cleanup sweep finished", slog.Int("removed", len(inactive)))
	}
}

func (m *Manager) runRetention() {
	if m.retention == nil {
		return
	}
	if err := m.retention.Prune(m.cfg.RetentionDays); err != nil {
		m.logger.Error("retention prune failed", slog.String("error", err.Error()))
	}
}

// cronSpecForTime converts an "HH:MM" wall-clock time to a daily cron
// expression.
func cronSpecForTime(scheduleTime string) (string, error) {
	if !scheduleTimeRE.MatchString(scheduleTime) {
		return "", fmt.Errorf("schedule time %q is not HH:MM", scheduleTime)
	}
	parts := strings.SplitN(scheduleTime, ":", 2)
	hour := strings.TrimLeft(parts[0], "0")
	if hour == "" {
		hour = "0"
	}
	minute := strings.TrimLeft(parts[1], "0")
	if minute == "" {
		minute = "0"
	}
	return fmt.Sprintf("%s %s * * *", minute, hour), nil
}
