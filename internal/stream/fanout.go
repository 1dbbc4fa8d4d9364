package stream

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"
)

// Boundary is the multipart boundary token used on the MJPEG wire.
const Boundary = "frame"

// ContentType is the response content type for MJPEG fan-outs.
const ContentType = "multipart/x-mixed-replace; boundary=" + Boundary

// pollInterval is the fan-out pacing: the current frame is re-read at
// 10 Hz and the latest available frame is delivered at each tick. Not
// every published frame reaches every viewer, and delivering the same
// bytes twice is permitted.
const pollInterval = 100 * time.Millisecond

var (
	chunkHeader  = []byte("--" + Boundary + "\r\nContent-Type: image/jpeg\r\n\r\n")
	chunkTrailer = []byte("\r\n")
)

// Fanout is one viewer's subscription to a stream. Opening a fan-out
// increments the stream's viewer count; Close decrements it exactly once
// regardless of how the subscription ends.
type Fanout struct {
	m         *Manager
	name      string
	closeOnce sync.Once
}

// OpenFanout subscribes a viewer to the named stream. It returns
// ErrNotFound if the stream does not exist. Callers must Close the
// returned Fanout; Serve does so on every exit path.
func (m *Manager) OpenFanout(name string) (*Fanout, error) {
	if !m.addViewer(name) {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	m.logger.Info("viewer connected", "stream", name)
	return &Fanout{m: m, name: name}, nil
}

// Close releases the subscription, decrementing the viewer count.
// Safe to call more than once; only the first call has an effect.
func (f *Fanout) Close() {
	f.closeOnce.Do(func() {
		f.m.removeViewer(f.name)
	})
}

// Serve writes multipart MJPEG chunks to w until the context is
// cancelled, the stream is deleted, or a write fails. The manager lock
// is never held across the write: the frame is snapshotted under lock
// and then yielded to the transport.
//
// Returns nil on graceful termination (cancellation or stream deletion)
// and the write error otherwise.
func (f *Fanout) Serve(ctx context.Context, w io.Writer) error {
	defer f.Close()

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		if !f.m.Exists(f.name) {
			return nil
		}

		if frame := f.m.Current(f.name); frame != nil {
			if err := writeChunk(w, frame); err != nil {
				return fmt.Errorf("writing frame to viewer: %w", err)
			}
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// writeChunk emits one multipart part:
// --frame\r\nContent-Type: image/jpeg\r\n\r\n<JPEG>\r\n
func writeChunk(w io.Writer, frame []byte) error {
	if _, err := w.Write(chunkHeader); err != nil {
		return err
	}
	if _, err := w.Write(frame); err != nil {
		return err
	}
	_, err := w.Write(chunkTrailer)
	return err
}
