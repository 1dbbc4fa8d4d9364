package recorder

import (
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"time"
)

// ContainerWriter is the black-box video encoder: it accepts JPEG frames
// and muxes them into a container on disk. The default implementation
// pipes frames to an ffmpeg subprocess; tests substitute a fake.
type ContainerWriter interface {
	// Open creates the container at path, sized for width x height frames.
	Open(path string, width, height int) error
	// WriteFrame appends one JPEG frame to the container.
	WriteFrame(frame []byte) error
	// Close finalizes the container.
	Close() error
}

// WriterFactory constructs a ContainerWriter for one recording.
type WriterFactory func(fps int, codec string) ContainerWriter

// encoderForCodec maps the configured fourcc-style codec name to an
// ffmpeg encoder.
func encoderForCodec(codec string) string {
	switch codec {
	case "mp4v", "mpeg4":
		return "mpeg4"
	case "avc1", "h264":
		return "libx264"
	case "mjpg", "mjpeg":
		return "mjpeg"
	default:
		return codec
	}
}

// ffmpegWriter muxes JPEG frames into an MP4 by piping them to an ffmpeg
// subprocess reading image2pipe input.
type ffmpegWriter struct {
	fps    int
	codec  string
	logger *slog.Logger

	cmd   *exec.Cmd
	stdin io.WriteCloser
}

// NewFFmpegWriterFactory returns a WriterFactory backed by the ffmpeg
// binary on PATH.
func NewFFmpegWriterFactory(logger *slog.Logger) WriterFactory {
	if logger == nil {
		logger = slog.Default()
	}
	return func(fps int, codec string) ContainerWriter {
		return &ffmpegWriter{fps: fps, codec: codec, logger: logger}
	}
}

func (w *ffmpegWriter) Open(path string, width, height int) error {
	args := []string{
		"-hide_banner",
		"-loglevel", "error",
		"-y",
		"-f", "image2pipe",
		"-framerate", fmt.Sprintf("%d", w.fps),
		"-i", "-",
		"-an",
		"-c:v", encoderForCodec(w.codec),
		"-pix_fmt", "yuv420p",
		"-s", fmt.Sprintf("%dx%d", width, height),
		path,
	}

	cmd := exec.Command("ffmpeg", args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("creating ffmpeg stdin pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("starting ffmpeg: %w", err)
	}

	w.cmd = cmd
	w.stdin = stdin
	w.logger.Debug("ffmpeg encoder started",
		slog.String("path", path),
		slog.Int("width", width),
		slog.Int("height", height),
	)
	return nil
}

func (w *ffmpegWriter) WriteFrame(frame []byte) error {
	if w.stdin == nil {
		return fmt.Errorf("encoder not open")
	}
	if _, err := w.stdin.Write(frame); err != nil {
		return fmt.Errorf("writing frame to encoder: %w", err)
	}
	return nil
}

// Close drains the pipe and waits for ffmpeg to flush the container.
// The wait is bounded so a wedged encoder cannot block shutdown.
func (w *ffmpegWriter) Close() error {
	if w.cmd == nil {
		return nil
	}
	if w.stdin != nil {
		w.stdin.Close()
	}

	done := make(chan error, 1)
	go func() { done <- w.cmd.Wait() }()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("ffmpeg exited with error: %w", err)
		}
		return nil
	case <-time.After(10 * time.Second):
		w.cmd.Process.Kill()
		<-done
		return fmt.Errorf("ffmpeg did not exit, killed")
	}
}
