// Package stream implements the live stream registry: thread-safe stream
// creation and deletion, frame publishing, statistics, and the MJPEG
// fan-out that serves viewers.
package stream

import (
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sync"
	"time"
)

// nameRE is the stream name grammar. Alphanumeric, underscore, dash, 1-64 chars.
var nameRE = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// Sentinel errors returned by Manager operations. The HTTP layer maps
// these to status codes.
var (
	// ErrInvalidName indicates the stream name does not match the grammar.
	ErrInvalidName = errors.New("invalid stream name: use alphanumeric, underscore, or dash only (1-64 chars)")
	// ErrCapacityExceeded indicates the concurrent stream limit is reached.
	ErrCapacityExceeded = errors.New("maximum concurrent streams reached")
	// ErrNotFound indicates no stream with that name exists.
	ErrNotFound = errors.New("stream not found")
)

// info holds per-stream state. All fields are guarded by the Manager mutex.
type info struct {
	name          string
	createdAt     time.Time
	lastFrameTime time.Time
	currentFrame  []byte
	frameBuffer   [][]byte
	viewerCount   int
	totalFrames   int64
}

// Stats is a point-in-time snapshot of a stream's statistics.
type Stats struct {
	Name            string  `json:"name" doc:"Stream name"`
	CreatedAt       string  `json:"created_at" doc:"Creation time (RFC 3339)"`
	UptimeSeconds   float64 `json:"uptime_seconds" doc:"Seconds since creation"`
	LastFrameTime   string  `json:"last_frame_time" doc:"Time of last published frame (RFC 3339)"`
	InactiveSeconds float64 `json:"inactive_seconds" doc:"Seconds since last published frame"`
	TotalFrames     int64   `json:"total_frames" doc:"Total frames published"`
	ViewerCount     int     `json:"viewer_count" doc:"Connected viewers"`
	BufferSize      int     `json:"buffer_size" doc:"Frames currently buffered"`
	HasCurrentFrame bool    `json:"has_current_frame" doc:"Whether a frame is available"`
}

// Manager is the authoritative registry of live streams. A single mutex
// guards the stream map and every stream's fields; it is never held
// across I/O.
type Manager struct {
	mu      sync.Mutex
	streams map[string]*info

	maxConcurrent   int
	maxBufferFrames int
	logger          *slog.Logger
}

// NewManager creates a stream manager with the given admission limits.
func NewManager(maxConcurrent, maxBufferFrames int, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{
		streams:         make(map[string]*info),
		maxConcurrent:   maxConcurrent,
		maxBufferFrames: maxBufferFrames,
		logger:          logger,
	}
	logger.Info("stream manager initialized",
		slog.Int("max_concurrent", maxConcurrent),
		slog.Int("max_buffer_frames", maxBufferFrames),
	)
	return m
}

// ValidName reports whether name matches the stream name grammar.
func ValidName(name string) bool {
	return nameRE.MatchString(name)
}

// Create registers a new stream. It returns true if the stream was
// created, false (and no error) if it already exists. It returns
// ErrInvalidName or ErrCapacityExceeded on failure; capacity is only
// enforced for fresh creations.
func (m *Manager) Create(name string) (bool, error) {
	if !ValidName(name) {
		return false, fmt.Errorf("%w: %q", ErrInvalidName, name)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.streams[name]; ok {
		return false, nil
	}
	if len(m.streams) >= m.maxConcurrent {
		return false, fmt.Errorf("%w (%d)", ErrCapacityExceeded, m.maxConcurrent)
	}

	now := time.Now()
	m.streams[name] = &info{
		name:          name,
		createdAt:     now,
		lastFrameTime: now,
		frameBuffer:   make([][]byte, 0, m.maxBufferFrames),
	}

	m.logger.Info("stream created", slog.String("stream", name))
	return true, nil
}

// Publish stores a new frame for the stream: it replaces the current
// frame, appends to the bounded frame buffer (evicting the oldest entry
// on overflow), bumps the activity timestamp and the frame counter.
func (m *Manager) Publish(name string, frame []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.streams[name]
	if !ok {
		m.logger.Warn("publish to non-existent stream", slog.String("stream", name))
		return fmt.Errorf("%w: %q", ErrNotFound, name)
	}

	s.currentFrame = frame
	if len(s.frameBuffer) >= m.maxBufferFrames {
		copy(s.frameBuffer, s.frameBuffer[1:])
		s.frameBuffer = s.frameBuffer[:len(s.frameBuffer)-1]
	}
	s.frameBuffer = append(s.frameBuffer, frame)
	s.lastFrameTime = time.Now()
	s.totalFrames++

	return nil
}

// Current returns the most recent frame for the stream, or nil if the
// stream does not exist or has not received a frame yet.
func (m *Manager) Current(name string) []byte {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.streams[name]
	if !ok {
		return nil
	}
	return s.currentFrame
}

// Exists reports whether a stream with the given name is registered.
func (m *Manager) Exists(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.streams[name]
	return ok
}

// Delete removes a stream. It is idempotent and reports whether a stream
// was actually removed. Connected viewers observe the removal and their
// fan-outs terminate on the next tick.
func (m *Manager) Delete(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.streams[name]; !ok {
		return false
	}
	delete(m.streams, name)
	m.logger.Info("stream deleted", slog.String("stream", name))
	return true
}

// Count returns the number of live streams.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.streams)
}

// InactiveSince returns a snapshot of the names of streams whose last
// frame is at least timeout old. The caller deletes them without holding
// the manager lock, so a plain mutex suffices.
func (m *Manager) InactiveSince(timeout time.Duration) []string {
	now := time.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	var inactive []string
	for name, s := range m.streams {
		if now.Sub(s.lastFrameTime) >= timeout {
			inactive = append(inactive, name)
		}
	}
	return inactive
}

// Stats returns the statistics snapshot for one stream.
func (m *Manager) Stats(name string) (Stats, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.streams[name]
	if !ok {
		return Stats{}, false
	}
	return snapshot(s), true
}

// AllStats returns statistics snapshots for every live stream.
func (m *Manager) AllStats() []Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	stats := make([]Stats, 0, len(m.streams))
	for _, s := range m.streams {
		stats = append(stats, snapshot(s))
	}
	return stats
}

// snapshot builds a Stats from a stream. Caller holds the manager lock.
func snapshot(s *info) Stats {
	now := time.Now()
	return Stats{
		Name:            s.name,
		CreatedAt:       s.createdAt.Format(time.RFC3339),
		UptimeSeconds:   now.Sub(s.createdAt).Seconds(),
		LastFrameTime:   s.lastFrameTime.Format(time.RFC3339),
		InactiveSeconds: now.Sub(s.lastFrameTime).Seconds(),
		TotalFrames:     s.totalFrames,
		ViewerCount:     s.viewerCount,
		BufferSize:      len(s.frameBuffer),
		HasCurrentFrame: s.currentFrame != nil,
	}
}

// addViewer increments the viewer count; used by OpenFanout.
func (m *Manager) addViewer(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.streams[name]
	if !ok {
		return false
	}
	s.viewerCount++
	return true
}

// removeViewer decrements the viewer count; used by Fanout.Close. The
// stream may already be gone, which is fine.
func (m *Manager) removeViewer(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.streams[name]; ok {
		s.viewerCount--
		m.logger.Info("viewer disconnected",
			slog.String("stream", name),
			slog.Int("remaining", s.viewerCount),
		)
	}
}
