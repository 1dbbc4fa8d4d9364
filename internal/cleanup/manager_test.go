package cleanup

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSweeper struct {
	mu       sync.Mutex
	inactive []string
	deleted  []string
}

func (f *fakeSweeper) InactiveSince(timeout time.Duration) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.inactive...)
}

func (f *fakeSweeper) Delete(name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, name)
	return true
}

type fakeRecorder struct {
	mu      sync.Mutex
	stopped []string
}

func (f *fakeRecorder) Stop(streamName string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = append(f.stopped, streamName)
}

func testConfig() Config {
	return Config{
		StreamTimeout: 300 * time.Second,
		SweepInterval: time.Hour,
		RetentionDays: 7,
		ScheduleTime:  "03:00",
	}
}

func TestManager_SweepStopsRecordingBeforeDelete(t *testing.T) {
	sweeper := &fakeSweeper{inactive: []string{"cam1", "cam2"}}
	rec := &fakeRecorder{}

	m := NewManager(testConfig(), sweeper, rec, nil, testLogger())
	m.sweep()

	assert.Equal(t, []string{"cam1", "cam2"}, rec.stopped)
	assert.Equal(t, []string{"cam1", "cam2"}, sweeper.deleted)
}

func TestManager_SweepWithoutRecorder(t *testing.T) {
	sweeper := &fakeSweeper{inactive: []string{"cam1"}}
	m := NewManager(testConfig(), sweeper, nil, nil, testLogger())
	m.sweep()
	assert.Equal(t, []string{"cam1"}, sweeper.deleted)
}

func TestManager_RunNowPrunes(t *testing.T) {
	base := t.TempDir()
	old := filepath.Join(base, "cam1", "old.mp4")
	writeAged(t, old, 30*24*time.Hour)

	sweeper := &fakeSweeper{}
	retention := NewRetention(base, nil, testLogger())
	m := NewManager(testConfig(), sweeper, nil, retention, testLogger())

	m.RunNow()
	assert.NoFileExists(t, old)
}

func TestManager_StartStop(t *testing.T) {
	cfg := testConfig()
	cfg.SweepInterval = 10 * time.Millisecond

	sweeper := &fakeSweeper{inactive: []string{"cam1"}}
	m := NewManager(cfg, sweeper, nil, nil, testLogger())
	require.NoError(t, m.Start(context.Background()))

	// Double start is rejected.
	assert.Error(t, m.Start(context.Background()))

	assert.Eventually(t, func() bool {
		sweeper.mu.Lock()
		defer sweeper.mu.Unlock()
		return len(sweeper.deleted) > 0
	}, 2*time.Second, 10*time.Millisecond)

	m.Stop()
}

func TestManager_InvalidScheduleDisablesOnlyPrune(t *testing.T) {
	cfg := testConfig()
	cfg.ScheduleTime = "25:99"

	sweeper := &fakeSweeper{}
	retention := NewRetention(t.TempDir(), nil, testLogger())
	m := NewManager(cfg, sweeper, nil, retention, testLogger())

	require.NoError(t, m.Start(context.Background()))
	assert.Nil(t, m.cron)
	m.Stop()
}

func TestCronSpecForTime(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "03:00", want: "0 3 * * *"},
		{in: "0:05", want: "5 0 * * *"},
		{in: "23:59", want: "59 23 * * *"},
		{in: "00:00", want: "0 0 * * *"},
		{in: "24:00", wantErr: true},
		{in: "12:60", wantErr: true},
		{in: "noon", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tt := range tests {
		got, err := cronSpecForTime(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}
