// Package recorder turns a stream of JPEG frames into on-disk video
// containers with JSON sidecar metadata. One worker runs per recorded
// stream; a service maps stream names to workers.
package recorder

import (
	"bytes"
	"fmt"
	"image/jpeg"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

const (
	// inboxCapacity bounds the per-worker frame queue. Enqueue is
	// non-blocking; the newest frame is dropped on overflow.
	inboxCapacity = 100

	// dequeueTimeout is how long the worker waits for a frame before
	// re-checking its stop flag.
	dequeueTimeout = time.Second

	// stopTimeout is how long Stop waits for the worker to drain and exit.
	stopTimeout = 5 * time.Second
)

// FinalizeFunc is called after a worker closes its container and writes
// the sidecar, e.g. to index the recording.
type FinalizeFunc func(Sidecar, string)

// Worker records one stream. It owns its container handle exclusively;
// only the worker goroutine touches the ContainerWriter.
type Worker struct {
	streamName string
	baseDir    string
	fps        int
	codec      string

	inbox      chan []byte
	stop       chan struct{}
	done       chan struct{}
	newWriter  WriterFactory
	onFinalize FinalizeFunc
	logger     *slog.Logger

	// Worker-goroutine state; no lock needed.
	writer        ContainerWriter
	recordingPath string
	metadataPath  string
	startTime     time.Time
	frameCount    int
	isRecording   bool
	width, height int
}

// NewWorker creates a recording worker for one stream. Call Start to
// launch it.
func NewWorker(streamName, baseDir string, fps int, codec string, factory WriterFactory, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		streamName: streamName,
		baseDir:    baseDir,
		fps:        fps,
		codec:      codec,
		inbox:      make(chan []byte, inboxCapacity),
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
		newWriter:  factory,
		logger:     logger.With(slog.String("stream", streamName)),
	}
}

// WithFinalize sets a callback invoked with the sidecar and its path
// once a recording is finalized.
func (w *Worker) WithFinalize(fn FinalizeFunc) *Worker {
	w.onFinalize = fn
	return w
}

// Start launches the worker goroutine.
func (w *Worker) Start() {
	go w.run()
	w.logger.Info("recording worker started")
}

// Stop signals the worker and waits up to 5s for it to finish. Safe to
// call once; the Service guarantees that.
func (w *Worker) Stop() {
	close(w.stop)
	select {
	case <-w.done:
	case <-time.After(stopTimeout):
		w.logger.Warn("recording worker did not stop in time")
	}
}

// AddFrame enqueues a JPEG frame without blocking. On a full inbox the
// frame is dropped; this is load shedding, not an error.
func (w *Worker) AddFrame(frame []byte) {
	select {
	case w.inbox <- frame:
	default:
		w.logger.Warn("recording queue full, dropping frame")
	}
}

// run is the worker loop: dequeue with a 1s timeout (for stop
// responsiveness), decode, open the container on the first good frame,
// write frames until stopped.
func (w *Worker) run() {
	defer close(w.done)

	timeout := time.NewTimer(dequeueTimeout)
	defer timeout.Stop()

	for {
		timeout.Reset(dequeueTimeout)
		select {
		case <-w.stop:
			w.finalize()
			return
		case frame := <-w.inbox:
			if fatal := w.handleFrame(frame); fatal {
				w.finalize()
				return
			}
		case <-timeout.C:
			// No frames; loop to re-check stop.
		}
	}
}

// handleFrame processes one frame. It reports true when the worker must
// terminate (container-open failure or write failure).
func (w *Worker) handleFrame(frame []byte) bool {
	cfg, err := jpeg.DecodeConfig(bytes.NewReader(frame))
	if err != nil {
		w.logger.Warn("failed to decode frame, skipping", slog.String("error", err.Error()))
		return false
	}

	if !w.isRecording {
		if err := w.openContainer(cfg.Width, cfg.Height); err != nil {
			w.logger.Error("failed to open container, aborting worker",
				slog.String("error", err.Error()))
			return true
		}
	}

	if cfg.Width != w.width || cfg.Height != w.height {
		// Dimensions are fixed at container-open; mismatched frames are dropped.
		w.logger.Warn("frame resolution changed mid-stream, dropping frame",
			slog.Int("want_width", w.width), slog.Int("want_height", w.height),
			slog.Int("got_width", cfg.Width), slog.Int("got_height", cfg.Height))
		return false
	}

	if err := w.writer.WriteFrame(frame); err != nil {
		w.logger.Error("failed to write frame, stopping recording",
			slog.String("error", err.Error()))
		return true
	}
	w.frameCount++
	return false
}

// openContainer creates the stream directory, derives timestamped file
// names, and opens the encoder. On failure nothing is left on disk that
// a sidecar would describe.
func (w *Worker) openContainer(width, height int) error {
	streamDir := filepath.Join(w.baseDir, w.streamName)
	if err := os.MkdirAll(streamDir, 0o755); err != nil {
		return fmt.Errorf("creating stream directory: %w", err)
	}

	timestamp := time.Now().Format("20060102_150405")
	base := fmt.Sprintf("%s_%s", w.streamName, timestamp)
	w.recordingPath = filepath.Join(streamDir, base+".mp4")
	w.metadataPath = filepath.Join(streamDir, base+".json")

	writer := w.newWriter(w.fps, w.codec)
	if err := writer.Open(w.recordingPath, width, height); err != nil {
		return fmt.Errorf("opening container: %w", err)
	}

	w.writer = writer
	w.width = width
	w.height = height
	w.startTime = time.Now()
	w.frameCount = 0
	w.isRecording = true

	w.logger.Info("recording started", slog.String("path", w.recordingPath))
	return nil
}

// finalize closes the container and writes the sidecar. A worker that
// never opened a container writes nothing.
func (w *Worker) finalize() {
	if !w.isRecording {
		w.logger.Info("recording worker finished", slog.Int("frames", w.frameCount))
		return
	}

	if err := w.writer.Close(); err != nil {
		w.logger.Error("failed to close container", slog.String("error", err.Error()))
	}
	w.isRecording = false

	sidecar := newSidecar(w.streamName, w.startTime, time.Now(), w.frameCount, w.fps, w.codec, w.recordingPath)
	if err := sidecar.write(w.metadataPath); err != nil {
		w.logger.Error("failed to write recording metadata", slog.String("error", err.Error()))
	} else {
		w.logger.Info("recording finished",
			slog.String("path", w.recordingPath),
			slog.Int("frames", w.frameCount),
		)
	}

	if w.onFinalize != nil {
		w.onFinalize(sidecar, w.metadataPath)
	}
}
