package sensor_node

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/LeonardoBeccarini/soilnode/internal/model/entities"
)

type intervalLog struct {
	mu      sync.Mutex
	history []time.Duration
}

func (l *intervalLog) SetUpdateInterval(d time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.history = append(l.history, d)
}

func (l *intervalLog) intervals() []time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]time.Duration(nil), l.history...)
}

type fakeThermometer struct {
	intervalLog
	value float32
	ok    bool
}

func (f *fakeThermometer) TemperatureCelsius() (float32, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.value, f.ok
}

func (f *fakeThermometer) set(v float32, ok bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.value, f.ok = v, ok
}

type probe struct {
	temp    float32
	tempOK  bool
	raw     uint16
	rawOK   bool
	moist   int
	moistF  float32
	moistOK bool
}

type fakeSoil struct {
	intervalLog
	order  []entities.DeviceAddress
	probes map[entities.DeviceAddress]*probe
	code   int
}

func newFakeSoil(addrs ...entities.DeviceAddress) *fakeSoil {
	s := &fakeSoil{probes: map[entities.DeviceAddress]*probe{}}
	for _, a := range addrs {
		s.order = append(s.order, a)
		s.probes[a] = &probe{temp: 18, tempOK: true, raw: 500, rawOK: true, moist: 40, moistF: 40, moistOK: true}
	}
	return s
}

func (s *fakeSoil) update(addr entities.DeviceAddress, fn func(p *probe)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.probes[addr])
}

func (s *fakeSoil) IndexByAddress(addr entities.DeviceAddress) (int, bool) {
	for i, a := range s.order {
		if a == addr {
			return i, true
		}
	}
	return -1, false
}

func (s *fakeSoil) TemperatureCelsius(addr entities.DeviceAddress) (float32, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.probes[addr]
	if !ok {
		return 0, false
	}
	return p.temp, p.tempOK
}

func (s *fakeSoil) CapacitanceRaw(addr entities.DeviceAddress) (uint16, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.probes[addr]
	if !ok {
		return 0, false
	}
	return p.raw, p.rawOK
}

func (s *fakeSoil) MoisturePercent(addr entities.DeviceAddress) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.probes[addr]
	if !ok {
		return 0, false
	}
	return p.moist, p.moistOK
}

func (s *fakeSoil) MoisturePercentFloat(addr entities.DeviceAddress) (float32, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.probes[addr]
	if !ok {
		return 0, false
	}
	return p.moistF, p.moistOK
}

func (s *fakeSoil) ErrorCode() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.code
}

// intOnlySoil hides MoisturePercentFloat.
type intOnlySoil struct{ SoilSensor }

type fakeBattery struct {
	mu sync.Mutex
	v  float32
}

func (b *fakeBattery) Voltage() (float32, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.v, true
}

type fakeLED struct {
	mu     sync.Mutex
	pulses []time.Duration
}

func (l *fakeLED) Pulse(d time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pulses = append(l.pulses, d)
}

func (l *fakeLED) all() []time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]time.Duration(nil), l.pulses...)
}

type sent struct {
	Topic string
	Value any
}

type fakePublisher struct {
	mu   sync.Mutex
	sent []sent
	err  error
}

func (p *fakePublisher) Publish(topic string, value any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.sent = append(p.sent, sent{Topic: topic, Value: value})
	return nil
}

func (p *fakePublisher) all() []sent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]sent(nil), p.sent...)
}

func (p *fakePublisher) on(topic string) []any {
	var out []any
	for _, s := range p.all() {
		if s.Topic == topic {
			out = append(out, s.Value)
		}
	}
	return out
}

type fakeScheduler struct {
	mu           sync.Mutex
	tasks        map[uuid.UUID]func()
	delays       []time.Duration
	unregistered []uuid.UUID
	failRegister bool
}

func newFakeScheduler() *fakeScheduler {
	return &fakeScheduler{tasks: map[uuid.UUID]func(){}}
}

func (s *fakeScheduler) RegisterTask(action func(), delay time.Duration) (uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failRegister {
		return uuid.Nil, errors.New("scheduler full")
	}
	id := uuid.New()
	s.tasks[id] = action
	s.delays = append(s.delays, delay)
	return id, nil
}

func (s *fakeScheduler) UnregisterTask(id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unregistered = append(s.unregistered, id)
	return nil
}

// fire runs every registered action, including ones already unregistered,
// the way a late timer would.
func (s *fakeScheduler) fire() {
	s.mu.Lock()
	actions := make([]func(), 0, len(s.tasks))
	for _, a := range s.tasks {
		actions = append(actions, a)
	}
	s.mu.Unlock()
	for _, a := range actions {
		a()
	}
}

func (s *fakeScheduler) registered() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

func (s *fakeScheduler) unregisterCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.unregistered)
}
