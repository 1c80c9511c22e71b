package sensor_node

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LeonardoBeccarini/soilnode/internal/model/entities"
)

func TestModeSchedulerTransitionsOnce(t *testing.T) {
	sched := newFakeScheduler()
	therm := &fakeThermometer{}
	m := NewModeScheduler(sched, time.Minute, slog.New(slog.DiscardHandler))
	m.AddTarget("thermometer", therm, entities.PollingIntervals{Service: time.Second, Normal: 10 * time.Second})

	fired := 0
	require.NoError(t, m.Arm(func() { fired++ }))
	assert.Equal(t, entities.ModeService, m.Mode())
	assert.Equal(t, []time.Duration{time.Minute}, sched.delays)

	sched.fire()
	assert.Equal(t, 1, fired)

	assert.True(t, m.Expire())
	assert.False(t, m.Expire())
	assert.Equal(t, entities.ModeNormal, m.Mode())
	assert.Equal(t, []time.Duration{time.Second, 10 * time.Second}, therm.intervals())
	assert.Equal(t, 1, sched.unregisterCalls())
}

func TestModeSchedulerArmTwice(t *testing.T) {
	m := NewModeScheduler(newFakeScheduler(), time.Minute, nil)
	require.NoError(t, m.Arm(func() {}))
	assert.Error(t, m.Arm(func() {}))
}

func TestModeSchedulerArmAfterExpire(t *testing.T) {
	m := NewModeScheduler(newFakeScheduler(), time.Minute, nil)
	assert.True(t, m.Expire())
	assert.Error(t, m.Arm(func() {}))
}
