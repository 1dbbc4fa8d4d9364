package stream

import (
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func newTestManager(maxConcurrent, maxBuffer int) *Manager {
	return NewManager(maxConcurrent, maxBuffer, testLogger())
}

func TestValidName(t *testing.T) {
	valid := []string{"cam1", "front_door", "a", "CAM-02", "x_Y-9"}
	for _, name := range valid {
		assert.True(t, ValidName(name), "expected %q to be valid", name)
	}

	invalid := []string{"", "../etc", "cam/1", "cam 1", "café", "a.b",
		"aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"}
	for _, name := range invalid {
		assert.False(t, ValidName(name), "expected %q to be invalid", name)
	}
}

func TestCreate(t *testing.T) {
	m := newTestManager(10, 5)

	created, err := m.Create("cam1")
	require.NoError(t, err)
	assert.True(t, created)
	assert.True(t, m.Exists("cam1"))
	assert.Equal(t, 1, m.Count())

	// Re-creating is not an error, just a no-op.
	created, err = m.Create("cam1")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, 1, m.Count())
}

func TestCreate_InvalidName(t *testing.T) {
	m := newTestManager(10, 5)

	_, err := m.Create("../etc")
	require.ErrorIs(t, err, ErrInvalidName)
	assert.Equal(t, 0, m.Count())
}

func TestCreate_CapacityExceeded(t *testing.T) {
	m := newTestManager(2, 5)

	for _, name := range []string{"a", "b"} {
		created, err := m.Create(name)
		require.NoError(t, err)
		assert.True(t, created)
	}

	_, err := m.Create("c")
	require.ErrorIs(t, err, ErrCapacityExceeded)
	assert.Equal(t, 2, m.Count())

	// Existing streams are unaffected by the cap.
	created, err := m.Create("a")
	require.NoError(t, err)
	assert.False(t, created)
	require.NoError(t, m.Publish("a", []byte("jpeg")))
}

func TestPublish(t *testing.T) {
	m := newTestManager(10, 5)
	_, err := m.Create("cam1")
	require.NoError(t, err)

	require.NoError(t, m.Publish("cam1", []byte("f1")))
	assert.Equal(t, []byte("f1"), m.Current("cam1"))

	require.NoError(t, m.Publish("cam1", []byte("f2")))
	assert.Equal(t, []byte("f2"), m.Current("cam1"))

	stats, ok := m.Stats("cam1")
	require.True(t, ok)
	assert.Equal(t, int64(2), stats.TotalFrames)
	assert.Equal(t, 2, stats.BufferSize)
	assert.True(t, stats.HasCurrentFrame)
}

func TestPublish_NotFound(t *testing.T) {
	m := newTestManager(10, 5)
	err := m.Publish("ghost", []byte("f"))
	require.ErrorIs(t, err, ErrNotFound)
}

func TestPublish_BufferEviction(t *testing.T) {
	const maxBuffer = 3
	m := newTestManager(10, maxBuffer)
	_, err := m.Create("cam1")
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		require.NoError(t, m.Publish("cam1", []byte(fmt.Sprintf("f%d", i))))

		stats, ok := m.Stats("cam1")
		require.True(t, ok)
		assert.LessOrEqual(t, stats.BufferSize, maxBuffer)
		assert.GreaterOrEqual(t, stats.TotalFrames, int64(stats.BufferSize))
	}

	// The current frame is always the newest buffered frame.
	assert.Equal(t, []byte("f9"), m.Current("cam1"))
}

func TestPublish_TotalFramesMonotonic(t *testing.T) {
	m := newTestManager(10, 2)
	_, err := m.Create("cam1")
	require.NoError(t, err)

	var last int64
	for i := 0; i < 20; i++ {
		require.NoError(t, m.Publish("cam1", []byte("f")))
		stats, ok := m.Stats("cam1")
		require.True(t, ok)
		assert.Greater(t, stats.TotalFrames, last)
		last = stats.TotalFrames
	}
}

func TestDelete(t *testing.T) {
	m := newTestManager(10, 5)
	_, err := m.Create("cam1")
	require.NoError(t, err)

	assert.True(t, m.Delete("cam1"))
	assert.False(t, m.Exists("cam1"))

	// Idempotent.
	assert.False(t, m.Delete("cam1"))
	assert.False(t, m.Delete("never-existed"))
}

func TestInactiveSince(t *testing.T) {
	m := newTestManager(10, 5)
	_, err := m.Create("idle")
	require.NoError(t, err)
	_, err = m.Create("busy")
	require.NoError(t, err)

	time.Sleep(30 * time.Millisecond)
	require.NoError(t, m.Publish("busy", []byte("f")))

	inactive := m.InactiveSince(20 * time.Millisecond)
	assert.Equal(t, []string{"idle"}, inactive)

	// Zero timeout matches everything.
	assert.Len(t, m.InactiveSince(0), 2)
}

func TestStats_UnknownStream(t *testing.T) {
	m := newTestManager(10, 5)
	_, ok := m.Stats("nope")
	assert.False(t, ok)
}

func TestAllStats(t *testing.T) {
	m := newTestManager(10, 5)
	for _, name := range []string{"a", "b", "c"} {
		_, err := m.Create(name)
		require.NoError(t, err)
	}

	stats := m.AllStats()
	assert.Len(t, stats, 3)

	names := make(map[string]bool)
	for _, s := range stats {
		names[s.Name] = true
		assert.False(t, s.HasCurrentFrame)
		assert.GreaterOrEqual(t, s.InactiveSeconds, float64(0))
		assert.GreaterOrEqual(t, s.UptimeSeconds, s.InactiveSeconds)
	}
	assert.Len(t, names, 3)
}

func TestCreate_ConcurrentAutoCreateRace(t *testing.T) {
	m := newTestManager(10, 5)

	const goroutines = 32
	var wg sync.WaitGroup
	results := make(chan bool, goroutines)

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			created, err := m.Create("cam1")
			require.NoError(t, err)
			results <- created
		}()
	}
	wg.Wait()
	close(results)

	var createdCount int
	for created := range results {
		if created {
			createdCount++
		}
	}
	assert.Equal(t, 1, createdCount, "exactly one goroutine should create the stream")
	assert.Equal(t, 1, m.Count())
}

func TestPublish_ConcurrentPublishers(t *testing.T) {
	m := newTestManager(10, 5)
	_, err := m.Create("cam1")
	require.NoError(t, err)

	const goroutines = 8
	const framesEach = 50

	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			frame := []byte(fmt.Sprintf("frame-%d", id))
			for j := 0; j < framesEach; j++ {
				require.NoError(t, m.Publish("cam1", frame))
			}
		}(i)
	}
	wg.Wait()

	stats, ok := m.Stats("cam1")
	require.True(t, ok)
	assert.Equal(t, int64(goroutines*framesEach), stats.TotalFrames)
}
