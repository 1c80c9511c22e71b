package sensor_simulator

import (
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LeonardoBeccarini/soilnode/internal/model/entities"
	sensornode "github.com/LeonardoBeccarini/soilnode/internal/sensor-node"
)

type job struct {
	id       uuid.UUID
	interval time.Duration
	action   func()
}

type fakeScheduler struct {
	mu          sync.Mutex
	jobs        map[string]*job
	reschedules int
}

func (s *fakeScheduler) Every(name string, interval time.Duration, action func()) (uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.jobs == nil {
		s.jobs = map[string]*job{}
	}
	j := &job{id: uuid.New(), interval: interval, action: action}
	s.jobs[name] = j
	return j.id, nil
}

func (s *fakeScheduler) Reschedule(id uuid.UUID, name string, interval time.Duration, action func()) (uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j := s.jobs[name]
	if j == nil || j.id != id {
		return uuid.Nil, assert.AnError
	}
	j.interval, j.action = interval, action
	s.reschedules++
	return id, nil
}

func (s *fakeScheduler) run(name string) {
	s.mu.Lock()
	j := s.jobs[name]
	s.mu.Unlock()
	j.action()
}

type collector struct {
	events []sensornode.Event
}

func (c *collector) Post(ev sensornode.Event) bool {
	c.events = append(c.events, ev)
	return true
}

func newSim(t *testing.T, cfg Config) (*SensorSimulator, *fakeScheduler, *clockwork.FakeClock, *collector) {
	t.Helper()
	sched := &fakeScheduler{}
	clock := clockwork.NewFakeClockAt(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
	sim := NewSensorSimulator(cfg, sched, clock, nil)
	c := &collector{}
	return sim, sched, clock, c
}

func TestStartRegistersJobs(t *testing.T) {
	sim, sched, _, c := newSim(t, Config{Devices: 3, Seed: 7})
	sim.Thermometer.SetUpdateInterval(time.Second)
	sim.Soil.SetUpdateInterval(15 * time.Second)
	require.NoError(t, sim.Start(c))

	assert.Equal(t, time.Second, sched.jobs["thermometer"].interval)
	assert.Equal(t, 15*time.Second, sched.jobs["soil"].interval)
	assert.Equal(t, time.Hour, sched.jobs["battery"].interval)
	assert.Zero(t, sched.reschedules)

	assert.Error(t, sim.Thermometer.start(c))
}

func TestIntervalChangeReschedules(t *testing.T) {
	sim, sched, _, c := newSim(t, Config{Devices: 1})
	sim.Soil.SetUpdateInterval(15 * time.Second)
	require.NoError(t, sim.Start(c))

	sim.Soil.SetUpdateInterval(5 * time.Minute)
	sim.Soil.SetUpdateInterval(5 * time.Minute)

	assert.Equal(t, 1, sched.reschedules)
	assert.Equal(t, 5*time.Minute, sched.jobs["soil"].interval)
	assert.Equal(t, 5*time.Minute, sim.Soil.Interval())
}

func TestThermometerPostsUpdate(t *testing.T) {
	sim, sched, _, c := newSim(t, Config{})
	_, ok := sim.Thermometer.TemperatureCelsius()
	assert.False(t, ok)

	require.NoError(t, sim.Start(c))
	sched.run("thermometer")

	require.Equal(t, []sensornode.Event{sensornode.ThermometerUpdate{}}, c.events)
	v, ok := sim.Thermometer.TemperatureCelsius()
	require.True(t, ok)
	assert.InDelta(t, 19+6*0.7071, v, 0.2)
}

func TestSoilBusPostsOneUpdatePerProbe(t *testing.T) {
	sim, sched, _, c := newSim(t, Config{Devices: 5, Seed: 3})
	require.NoError(t, sim.Start(c))
	sched.run("soil")

	addrs := sim.Soil.Addresses()
	require.Len(t, addrs, 5)
	require.Len(t, c.events, 5)
	seen := map[entities.DeviceAddress]bool{}
	for i, ev := range c.events {
		up, ok := ev.(sensornode.SoilUpdate)
		require.True(t, ok)
		assert.Equal(t, addrs[i], up.Address)
		assert.NotEqual(t, entities.NoAddress, up.Address)
		assert.Equal(t, uint64(0x28), uint64(up.Address)>>56)
		seen[up.Address] = true

		idx, ok := sim.Soil.IndexByAddress(up.Address)
		require.True(t, ok)
		assert.Equal(t, i, idx)

		m, ok := sim.Soil.MoisturePercent(up.Address)
		require.True(t, ok)
		assert.Equal(t, 30, m)
		raw, ok := sim.Soil.CapacitanceRaw(up.Address)
		require.True(t, ok)
		assert.Equal(t, rawFromMoisture(0.3), raw)
	}
	assert.Len(t, seen, 5)

	_, ok := sim.Soil.IndexByAddress(0x1)
	assert.False(t, ok)
	_, ok = sim.Soil.TemperatureCelsius(0x1)
	assert.False(t, ok)
}

func TestSoilBusErrorInjection(t *testing.T) {
	sim, sched, _, c := newSim(t, Config{Devices: 1, ErrorRate: 1})
	require.NoError(t, sim.Start(c))
	sched.run("soil")

	require.Len(t, c.events, 2)
	assert.IsType(t, sensornode.SoilError{}, c.events[1])
	assert.GreaterOrEqual(t, sim.Soil.ErrorCode(), 1)
}

func TestBatteryDrains(t *testing.T) {
	sim, sched, clock, c := newSim(t, Config{})
	require.NoError(t, sim.Start(c))
	sched.run("battery")
	require.Equal(t, []sensornode.Event{sensornode.BatteryUpdate{}}, c.events)

	v, ok := sim.Battery.Voltage()
	require.True(t, ok)
	assert.InDelta(t, 3.6, v, 0.001)

	clock.Advance(batteryLife / 2)
	v, _ = sim.Battery.Voltage()
	assert.InDelta(t, 3.2, v, 0.001)

	clock.Advance(batteryLife)
	v, _ = sim.Battery.Voltage()
	assert.InDelta(t, 2.8, v, 0.001)
}

func TestButtonNeedsStart(t *testing.T) {
	sim, _, _, c := newSim(t, Config{})
	assert.False(t, sim.Button.Click())
	require.NoError(t, sim.Start(c))
	assert.True(t, sim.Button.Click())
	assert.True(t, sim.Button.Hold())
	assert.Equal(t, []sensornode.Event{
		sensornode.ButtonEvent{Kind: sensornode.ButtonClick},
		sensornode.ButtonEvent{Kind: sensornode.ButtonHold},
	}, c.events)
}

func TestGeneratorDecaysAndIrrigationRaises(t *testing.T) {
	start := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	g := NewDataGenerator(DecayForHalfLife(time.Hour), rand.New(rand.NewSource(99)))
	g.rain = 0
	g.ApplyIrrigation(10 * time.Minute)

	first := g.Next(start)
	assert.InDelta(t, 36, first.Moisture, 0.01)

	later := g.Next(start.Add(10 * time.Minute))
	assert.Less(t, later.Moisture, first.Moisture)
	assert.Greater(t, later.Raw, first.Raw)

	g.ApplyIrrigation(30 * time.Minute)
	wet := g.Next(start.Add(10 * time.Minute))
	assert.Greater(t, wet.Moisture, later.Moisture)
}

func TestDecayForHalfLife(t *testing.T) {
	assert.Zero(t, DecayForHalfLife(0))
	assert.InDelta(t, 0.693147/60, DecayForHalfLife(time.Hour), 1e-6)
}

func TestRawFromMoistureBounds(t *testing.T) {
	assert.Equal(t, uint16(820), rawFromMoisture(-1))
	assert.Equal(t, uint16(340), rawFromMoisture(2))
}
