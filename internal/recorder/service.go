package recorder

import (
	"fmt"
	"log/slog"
	"os"
	"sync"
)

// Service manages one recording worker per stream name.
type Service struct {
	mu      sync.Mutex
	workers map[string]*Worker

	baseDir    string
	fps        int
	codec      string
	newWriter  WriterFactory
	onFinalize FinalizeFunc
	logger     *slog.Logger
}

// NewService creates a recording service writing under baseDir.
func NewService(baseDir string, fps int, codec string, factory WriterFactory, logger *slog.Logger) (*Service, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating recordings directory: %w", err)
	}

	logger.Info("recording service initialized",
		slog.String("base_dir", baseDir),
		slog.Int("fps", fps),
		slog.String("codec", codec),
	)

	return &Service{
		workers:   make(map[string]*Worker),
		baseDir:   baseDir,
		fps:       fps,
		codec:     codec,
		newWriter: factory,
		logger:    logger,
	}, nil
}

// WithFinalize sets a callback propagated to every worker, invoked when
// a recording is finalized.
func (s *Service) WithFinalize(fn FinalizeFunc) *Service {
	s.onFinalize = fn
	return s
}

// Start begins recording a stream. Idempotent: an already-recording
// stream is a no-op.
func (s *Service) Start(streamName string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.workers[streamName]; ok {
		return
	}

	worker := NewWorker(streamName, s.baseDir, s.fps, s.codec, s.newWriter, s.logger).
		WithFinalize(s.onFinalize)
	worker.Start()
	s.workers[streamName] = worker

	s.logger.Info("recording started for stream", slog.String("stream", streamName))
}

// Stop stops recording a stream, waiting for the worker to finalize.
// Idempotent: a stream with no worker is a no-op.
func (s *Service) Stop(streamName string) {
	s.mu.Lock()
	worker, ok := s.workers[streamName]
	if ok {
		delete(s.workers, streamName)
	}
	s.mu.Unlock()

	if !ok {
		return
	}

	// Stop outside the lock: the join can take up to 5s and AddFrame
	// must not queue behind it.
	worker.Stop()
	s.logger.Info("recording stopped for stream", slog.String("stream", streamName))
}

// AddFrame forwards a frame to the stream's worker. Frames for streams
// without a worker are silently discarded. The enqueue happens outside
// the service lock to avoid head-of-line blocking.
func (s *Service) AddFrame(streamName string, frame []byte) {
	s.mu.Lock()
	worker, ok := s.workers[streamName]
	s.mu.Unlock()

	if !ok {
		return
	}
	worker.AddFrame(frame)
}

// Active returns the names of streams currently being recorded.
func (s *Service) Active() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := make([]string, 0, len(s.workers))
	for name := range s.workers {
		names = append(names, name)
	}
	return names
}

// StopAll stops every worker. Names are snapshotted under the lock, then
// each worker is stopped without it.
func (s *Service) StopAll() {
	for _, name := range s.Active() {
		s.Stop(name)
	}
	s.logger.Info("all recordings stopped")
}
