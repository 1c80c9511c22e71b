package scheduler

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newScheduler(t *testing.T) *Scheduler {
	t.Helper()
	s, err := New(nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Stop() })
	return s
}

func TestRegisterTaskFiresOnceAfterDelay(t *testing.T) {
	s := newScheduler(t)
	var fired atomic.Int32
	start := time.Now()
	var firedAt atomic.Int64

	_, err := s.RegisterTask(func() {
		firedAt.Store(int64(time.Since(start)))
		fired.Add(1)
	}, 100*time.Millisecond)
	require.NoError(t, err)

	require.Eventually(t, func() bool { return fired.Load() == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.GreaterOrEqual(t, time.Duration(firedAt.Load()), 90*time.Millisecond)

	time.Sleep(250 * time.Millisecond)
	assert.Equal(t, int32(1), fired.Load())
}

func TestUnregisterTaskBeforeExpiry(t *testing.T) {
	s := newScheduler(t)
	var fired atomic.Int32
	id, err := s.RegisterTask(func() { fired.Add(1) }, 150*time.Millisecond)
	require.NoError(t, err)
	require.NoError(t, s.UnregisterTask(id))

	time.Sleep(300 * time.Millisecond)
	assert.Zero(t, fired.Load())
	// removing twice is harmless
	assert.NoError(t, s.UnregisterTask(id))
}

func TestEveryAndReschedule(t *testing.T) {
	s := newScheduler(t)
	var runs atomic.Int32
	action := func() { runs.Add(1) }

	id, err := s.Every("poll", 20*time.Millisecond, action)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return runs.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)

	_, err = s.Reschedule(id, "poll", time.Hour, action)
	require.NoError(t, err)
	time.Sleep(50 * time.Millisecond)
	settled := runs.Load()
	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, settled, runs.Load())
	assert.Equal(t, 1, s.Pending())
}

func TestStoppedSchedulerRejectsTasks(t *testing.T) {
	s, err := New(nil)
	require.NoError(t, err)
	require.NoError(t, s.Stop())
	_, err = s.RegisterTask(func() {}, time.Second)
	assert.ErrorIs(t, err, ErrNotRunning)
	_, err = s.Every("x", time.Second, func() {})
	assert.ErrorIs(t, err, ErrNotRunning)
	assert.NoError(t, s.Stop())
}
