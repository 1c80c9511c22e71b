package sensor_simulator

import (
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/chewxy/math32"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/LeonardoBeccarini/soilnode/internal/logfields"
	"github.com/LeonardoBeccarini/soilnode/internal/model/entities"
	sensornode "github.com/LeonardoBeccarini/soilnode/internal/sensor-node"
)

// Poster receives the events produced by the simulated hardware.
type Poster interface {
	Post(ev sensornode.Event) bool
}

// Scheduler runs the periodic sampling jobs.
type Scheduler interface {
	Every(name string, interval time.Duration, action func()) (uuid.UUID, error)
	Reschedule(id uuid.UUID, name string, interval time.Duration, action func()) (uuid.UUID, error)
}

// Config tunes the simulated hardware.
type Config struct {
	Devices   int
	Seed      int64
	ErrorRate float64
	// HalfLife of soil moisture without rain; zero uses two days.
	HalfLife time.Duration
	Battery  time.Duration
}

// SensorSimulator stands in for the node hardware: one thermometer, a soil bus
// with several probes, the battery monitor, a LED and a push button.
type SensorSimulator struct {
	Thermometer *Thermometer
	Soil        *SoilBus
	Battery     *Battery
	LED         *LED
	Button      *Button
}

func NewSensorSimulator(cfg Config, sched Scheduler, clock clockwork.Clock, log *slog.Logger) *SensorSimulator {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if log == nil {
		log = slog.Default()
	}
	if cfg.HalfLife <= 0 {
		cfg.HalfLife = 48 * time.Hour
	}
	if cfg.Battery <= 0 {
		cfg.Battery = time.Hour
	}
	rng := rand.New(rand.NewSource(cfg.Seed))

	return &SensorSimulator{
		Thermometer: &Thermometer{
			poller: poller{name: "thermometer", sched: sched},
			clock:  clock,
			rng:    rand.New(rand.NewSource(rng.Int63())),
		},
		Soil:    newSoilBus(cfg, sched, clock, rng),
		Battery: &Battery{poller: poller{name: "battery", sched: sched, interval: cfg.Battery}, clock: clock},
		LED:     &LED{log: log},
		Button:  &Button{},
	}
}

// Start registers the sampling jobs. Intervals set before Start are used for the first runs.
func (s *SensorSimulator) Start(p Poster) error {
	s.Button.poster = p
	if err := s.Thermometer.start(p); err != nil {
		return err
	}
	if err := s.Soil.start(p); err != nil {
		return err
	}
	return s.Battery.start(p)
}

// poller owns one periodic job whose interval may change at any time.
type poller struct {
	name  string
	sched Scheduler

	mu       sync.Mutex
	interval time.Duration
	id       uuid.UUID
	action   func()
	running  bool
}

func (p *poller) SetUpdateInterval(d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if d <= 0 || d == p.interval && p.running {
		return
	}
	p.interval = d
	if !p.running {
		return
	}
	id, err := p.sched.Reschedule(p.id, p.name, d, p.action)
	if err != nil {
		slog.Warn("simulator: reschedule failed", slog.String("job", p.name), logfields.Error(err))
		return
	}
	p.id = id
}

func (p *poller) run(action func()) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return fmt.Errorf("%s already started", p.name)
	}
	if p.interval <= 0 {
		p.interval = time.Second
	}
	id, err := p.sched.Every(p.name, p.interval, action)
	if err != nil {
		return err
	}
	p.id, p.action, p.running = id, action, true
	return nil
}

// Interval is the current sampling interval.
func (p *poller) Interval() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.interval
}

// ===== Thermometer =====

type Thermometer struct {
	poller
	clock clockwork.Clock
	rng   *rand.Rand

	vmu   sync.Mutex
	value float32
	valid bool
}

func (t *Thermometer) start(p Poster) error {
	return t.run(func() {
		t.sample()
		p.Post(sensornode.ThermometerUpdate{})
	})
}

func (t *Thermometer) sample() {
	v := AmbientTemperature(t.clock.Now()) + float32(t.rng.Float64()*0.2-0.1)
	t.vmu.Lock()
	t.value, t.valid = v, true
	t.vmu.Unlock()
}

func (t *Thermometer) TemperatureCelsius() (float32, bool) {
	t.vmu.Lock()
	defer t.vmu.Unlock()
	return t.value, t.valid
}

// ===== Soil bus =====

type probe struct {
	addr   entities.DeviceAddress
	gen    *DataGenerator
	sample Sample
	valid  bool
}

// SoilBus simulates a chain of capacitive soil probes sampled together.
type SoilBus struct {
	poller
	clock     clockwork.Clock
	rng       *rand.Rand
	errorRate float64

	vmu    sync.Mutex
	probes []*probe
	code   int
}

func newSoilBus(cfg Config, sched Scheduler, clock clockwork.Clock, rng *rand.Rand) *SoilBus {
	b := &SoilBus{
		poller:    poller{name: "soil", sched: sched},
		clock:     clock,
		rng:       rand.New(rand.NewSource(rng.Int63())),
		errorRate: cfg.ErrorRate,
	}
	seen := map[entities.DeviceAddress]bool{entities.NoAddress: true}
	decay := DecayForHalfLife(cfg.HalfLife)
	for len(b.probes) < cfg.Devices {
		addr := newAddress(rng)
		if seen[addr] {
			continue
		}
		seen[addr] = true
		b.probes = append(b.probes, &probe{
			addr: addr,
			gen:  NewDataGenerator(decay, rand.New(rand.NewSource(rng.Int63()))),
		})
	}
	return b
}

// newAddress draws a 1-Wire style id: family code in the top byte, serial below.
func newAddress(rng *rand.Rand) entities.DeviceAddress {
	return entities.DeviceAddress(0x28<<56 | uint64(rng.Int63())&(1<<56-1))
}

func (b *SoilBus) start(p Poster) error {
	return b.run(func() {
		for _, addr := range b.sampleAll() {
			p.Post(sensornode.SoilUpdate{Address: addr})
		}
		if b.errorRate > 0 && b.rng.Float64() < b.errorRate {
			b.vmu.Lock()
			b.code = 1 + b.rng.Intn(7)
			b.vmu.Unlock()
			p.Post(sensornode.SoilError{})
		}
	})
}

func (b *SoilBus) sampleAll() []entities.DeviceAddress {
	now := b.clock.Now()
	b.vmu.Lock()
	defer b.vmu.Unlock()
	out := make([]entities.DeviceAddress, 0, len(b.probes))
	for _, pr := range b.probes {
		pr.sample, pr.valid = pr.gen.Next(now), true
		out = append(out, pr.addr)
	}
	return out
}

// Addresses lists the probes in bus order.
func (b *SoilBus) Addresses() []entities.DeviceAddress {
	b.vmu.Lock()
	defer b.vmu.Unlock()
	out := make([]entities.DeviceAddress, len(b.probes))
	for i, pr := range b.probes {
		out[i] = pr.addr
	}
	return out
}

// Irrigate waters one probe for d.
func (b *SoilBus) Irrigate(addr entities.DeviceAddress, d time.Duration) bool {
	i, ok := b.IndexByAddress(addr)
	if !ok {
		return false
	}
	b.probes[i].gen.ApplyIrrigation(d)
	return true
}

func (b *SoilBus) IndexByAddress(addr entities.DeviceAddress) (int, bool) {
	b.vmu.Lock()
	defer b.vmu.Unlock()
	for i, pr := range b.probes {
		if pr.addr == addr {
			return i, true
		}
	}
	return -1, false
}

func (b *SoilBus) read(addr entities.DeviceAddress) (Sample, bool) {
	b.vmu.Lock()
	defer b.vmu.Unlock()
	for _, pr := range b.probes {
		if pr.addr == addr {
			return pr.sample, pr.valid
		}
	}
	return Sample{}, false
}

func (b *SoilBus) TemperatureCelsius(addr entities.DeviceAddress) (float32, bool) {
	s, ok := b.read(addr)
	return s.Temperature, ok
}

func (b *SoilBus) CapacitanceRaw(addr entities.DeviceAddress) (uint16, bool) {
	s, ok := b.read(addr)
	return s.Raw, ok
}

func (b *SoilBus) MoisturePercent(addr entities.DeviceAddress) (int, bool) {
	s, ok := b.read(addr)
	return int(math32.Round(s.Moisture)), ok
}

func (b *SoilBus) MoisturePercentFloat(addr entities.DeviceAddress) (float32, bool) {
	s, ok := b.read(addr)
	return s.Moisture, ok
}

func (b *SoilBus) ErrorCode() int {
	b.vmu.Lock()
	defer b.vmu.Unlock()
	return b.code
}

// ===== Battery, LED, button =====

// Battery drains linearly from full to empty over a year.
type Battery struct {
	poller
	clock   clockwork.Clock
	started time.Time
}

const (
	batteryFull  float32 = 3.6
	batteryEmpty float32 = 2.8
	batteryLife          = 365 * 24 * time.Hour
)

func (b *Battery) start(p Poster) error {
	b.started = b.clock.Now()
	return b.run(func() { p.Post(sensornode.BatteryUpdate{}) })
}

func (b *Battery) Voltage() (float32, bool) {
	used := float32(b.clock.Since(b.started)) / float32(batteryLife)
	v := batteryFull - (batteryFull-batteryEmpty)*clamp01(used)
	return math32.Round(v*100) / 100, true
}

// LED only logs pulses.
type LED struct {
	log *slog.Logger
}

func (l *LED) Pulse(d time.Duration) {
	l.log.Debug("simulator: led pulse", logfields.Interval(d))
}

// Button injects press events, e.g. from a signal handler.
type Button struct {
	poster Poster
}

func (b *Button) Click() bool { return b.press(sensornode.ButtonClick) }
func (b *Button) Hold() bool  { return b.press(sensornode.ButtonHold) }

func (b *Button) press(kind sensornode.ButtonKind) bool {
	if b.poster == nil {
		return false
	}
	return b.poster.Post(sensornode.ButtonEvent{Kind: kind})
}
