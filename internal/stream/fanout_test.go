package stream

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// collectWriter buffers writes and optionally fails after a number of chunks.
type collectWriter struct {
	mu        sync.Mutex
	buf       bytes.Buffer
	failAfter int // number of Write calls before erroring; 0 = never fail
	writes    int
}

func (w *collectWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.writes++
	if w.failAfter > 0 && w.writes > w.failAfter {
		return 0, errors.New("client gone")
	}
	return w.buf.Write(p)
}

func (w *collectWriter) String() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.buf.String()
}

func viewerCount(t *testing.T, m *Manager, name string) int {
	t.Helper()
	stats, ok := m.Stats(name)
	require.True(t, ok)
	return stats.ViewerCount
}

func TestOpenFanout_NotFound(t *testing.T) {
	m := newTestManager(10, 5)
	_, err := m.OpenFanout("ghost")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestFanout_ViewerCountBracketing(t *testing.T) {
	m := newTestManager(10, 5)
	_, err := m.Create("cam1")
	require.NoError(t, err)

	f, err := m.OpenFanout("cam1")
	require.NoError(t, err)
	assert.Equal(t, 1, viewerCount(t, m, "cam1"))

	f2, err := m.OpenFanout("cam1")
	require.NoError(t, err)
	assert.Equal(t, 2, viewerCount(t, m, "cam1"))

	f.Close()
	assert.Equal(t, 1, viewerCount(t, m, "cam1"))

	// Double close must not double-decrement.
	f.Close()
	assert.Equal(t, 1, viewerCount(t, m, "cam1"))

	f2.Close()
	assert.Equal(t, 0, viewerCount(t, m, "cam1"))
}

func TestFanout_ServeDeliversFrames(t *testing.T) {
	m := newTestManager(10, 5)
	_, err := m.Create("cam1")
	require.NoError(t, err)
	require.NoError(t, m.Publish("cam1", []byte("JPEG-1")))

	f, err := m.OpenFanout("cam1")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 350*time.Millisecond)
	defer cancel()

	w := &collectWriter{}
	done := make(chan error, 1)
	go func() { done <- f.Serve(ctx, w) }()

	// Publish a second frame mid-stream.
	time.Sleep(150 * time.Millisecond)
	require.NoError(t, m.Publish("cam1", []byte("JPEG-2")))

	require.NoError(t, <-done)

	out := w.String()
	assert.Contains(t, out, "--frame\r\nContent-Type: image/jpeg\r\n\r\n")
	assert.Contains(t, out, "JPEG-1")
	assert.Contains(t, out, "JPEG-2")
	// Frames appear in publish order.
	assert.Less(t, strings.Index(out, "JPEG-1"), strings.Index(out, "JPEG-2"))

	assert.Equal(t, 0, viewerCount(t, m, "cam1"))
}

func TestFanout_ServeTerminatesOnDelete(t *testing.T) {
	m := newTestManager(10, 5)
	_, err := m.Create("cam1")
	require.NoError(t, err)
	require.NoError(t, m.Publish("cam1", []byte("J")))

	f, err := m.OpenFanout("cam1")
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- f.Serve(context.Background(), &collectWriter{}) }()

	time.Sleep(120 * time.Millisecond)
	assert.True(t, m.Delete("cam1"))

	select {
	case err := <-done:
		assert.NoError(t, err, "deletion terminates the fan-out gracefully")
	case <-time.After(time.Second):
		t.Fatal("fan-out did not terminate after stream deletion")
	}
}

func TestFanout_ServeReturnsWriteError(t *testing.T) {
	m := newTestManager(10, 5)
	_, err := m.Create("cam1")
	require.NoError(t, err)
	require.NoError(t, m.Publish("cam1", []byte("J")))

	f, err := m.OpenFanout("cam1")
	require.NoError(t, err)

	w := &collectWriter{failAfter: 3} // fail on the second chunk
	err = f.Serve(context.Background(), w)
	require.Error(t, err)

	// Viewer count returns to zero even on abnormal termination.
	assert.Equal(t, 0, viewerCount(t, m, "cam1"))
}

func TestFanout_NoFrameYetWritesNothing(t *testing.T) {
	m := newTestManager(10, 5)
	_, err := m.Create("cam1")
	require.NoError(t, err)

	f, err := m.OpenFanout("cam1")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 250*time.Millisecond)
	defer cancel()

	w := &collectWriter{}
	require.NoError(t, f.Serve(ctx, w))
	assert.Empty(t, w.String())
}

func TestWriteChunk_WireFormat(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeChunk(&buf, []byte{0xFF, 0xD8, 0xFF, 0xD9}))

	want := "--frame\r\nContent-Type: image/jpeg\r\n\r\n\xff\xd8\xff\xd9\r\n"
	assert.Equal(t, want, buf.String())
}

var _ io.Writer = (*collectWriter)(nil)
