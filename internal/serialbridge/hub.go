// Package serialbridge reads a serial-attached sensor hub and exposes it as the
// node's thermometer, soil bus, battery monitor and LED.
package serialbridge

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.bug.st/serial"

	"github.com/LeonardoBeccarini/soilnode/internal/logfields"
	"github.com/LeonardoBeccarini/soilnode/internal/model/entities"
	sensornode "github.com/LeonardoBeccarini/soilnode/internal/sensor-node"
)

// DefaultBaudRate of the hub firmware.
const DefaultBaudRate = 115200

// Poster receives the events decoded from the hub.
type Poster interface {
	Post(ev sensornode.Event) bool
}

type soilValues struct {
	temp     float32
	raw      uint16
	moisture float32
	valid    bool
}

// Hub is a connection to the sensor hub. Reads happen in Run; driver
// accessors return the most recent values.
type Hub struct {
	Thermometer *Thermometer
	Soil        *SoilBus
	Battery     *Battery
	LED         *LED

	rw  io.ReadWriteCloser
	log *slog.Logger
	wmu sync.Mutex
}

// Open opens port and wraps it in a Hub.
func Open(port string, baudRate, maxProbes int, log *slog.Logger) (*Hub, error) {
	if baudRate == 0 {
		baudRate = DefaultBaudRate
	}
	conn, err := serial.Open(port, &serial.Mode{BaudRate: baudRate})
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", port, err)
	}
	return NewHub(conn, maxProbes, log), nil
}

func NewHub(rw io.ReadWriteCloser, maxProbes int, log *slog.Logger) *Hub {
	if log == nil {
		log = slog.Default()
	}
	h := &Hub{rw: rw, log: log}
	h.Thermometer = &Thermometer{hub: h}
	h.Soil = &SoilBus{hub: h, max: maxProbes, values: map[entities.DeviceAddress]soilValues{}}
	h.Battery = &Battery{}
	h.LED = &LED{hub: h}
	return h
}

// send writes one command line to the hub.
func (h *Hub) send(format string, args ...any) error {
	h.wmu.Lock()
	defer h.wmu.Unlock()
	if _, err := fmt.Fprintf(h.rw, format+"\n", args...); err != nil {
		return fmt.Errorf("failed to send hub command: %w", err)
	}
	return nil
}

// Run reads lines until ctx is done or the port fails. The port is closed on
// return; a hub that hangs up yields io.ErrUnexpectedEOF.
func (h *Hub) Run(ctx context.Context, p Poster) error {
	stop := context.AfterFunc(ctx, func() { _ = h.rw.Close() })
	defer func() {
		if stop() {
			_ = h.rw.Close()
		}
	}()

	scanner := bufio.NewScanner(h.rw)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		f, err := parseLine(line)
		if err != nil {
			h.log.Warn("serial: failed to parse line", slog.String("line", line), logfields.Error(err))
			continue
		}
		if ev := h.apply(f); ev != nil {
			p.Post(ev)
		}
	}
	if ctx.Err() != nil {
		return nil
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("error reading from serial port: %w", err)
	}
	return io.ErrUnexpectedEOF
}

// apply stores the frame values and returns the event to post, if any.
func (h *Hub) apply(f frame) sensornode.Event {
	switch f.kind {
	case frameAmbient:
		h.Thermometer.store(f.temp, !f.failed)
		if f.failed {
			return sensornode.ThermometerError{}
		}
		return sensornode.ThermometerUpdate{}
	case frameSoil:
		if !h.Soil.store(f) {
			h.log.Debug("serial: probe beyond bus capacity", logfields.Device(f.addr.String()))
		}
		return sensornode.SoilUpdate{Address: f.addr}
	case frameError:
		h.Soil.setCode(f.code)
		return sensornode.SoilError{}
	case frameBattery:
		h.Battery.store(f.volts)
		return sensornode.BatteryUpdate{}
	case frameButton:
		return sensornode.ButtonEvent{Kind: f.button}
	}
	return nil
}

// Thermometer is the hub's ambient sensor.
type Thermometer struct {
	hub   *Hub
	mu    sync.Mutex
	value float32
	valid bool
}

func (t *Thermometer) SetUpdateInterval(d time.Duration) {
	if err := t.hub.send("I,T,%d", d.Milliseconds()); err != nil {
		t.hub.log.Warn("serial: failed to set thermometer interval", logfields.Error(err))
	}
}

func (t *Thermometer) store(v float32, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.value, t.valid = v, ok
}

func (t *Thermometer) TemperatureCelsius() (float32, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.value, t.valid
}

// SoilBus tracks probes in the order the hub first reports them, up to max.
type SoilBus struct {
	hub *Hub
	max int

	mu     sync.Mutex
	order  []entities.DeviceAddress
	values map[entities.DeviceAddress]soilValues
	code   int
}

func (b *SoilBus) SetUpdateInterval(d time.Duration) {
	if err := b.hub.send("I,S,%d", d.Milliseconds()); err != nil {
		b.hub.log.Warn("serial: failed to set soil interval", logfields.Error(err))
	}
}

// store reports false when the probe is new and the bus is full.
func (b *SoilBus) store(f frame) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, known := b.values[f.addr]; !known {
		if b.max > 0 && len(b.order) >= b.max {
			return false
		}
		b.order = append(b.order, f.addr)
	}
	b.values[f.addr] = soilValues{temp: f.temp, raw: f.raw, moisture: f.moisture, valid: !f.failed}
	return true
}

func (b *SoilBus) setCode(code int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.code = code
}

func (b *SoilBus) get(addr entities.DeviceAddress) soilValues {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.values[addr]
}

func (b *SoilBus) IndexByAddress(addr entities.DeviceAddress) (int, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, a := range b.order {
		if a == addr {
			return i, true
		}
	}
	return -1, false
}

func (b *SoilBus) TemperatureCelsius(addr entities.DeviceAddress) (float32, bool) {
	v := b.get(addr)
	return v.temp, v.valid
}

func (b *SoilBus) CapacitanceRaw(addr entities.DeviceAddress) (uint16, bool) {
	v := b.get(addr)
	return v.raw, v.valid
}

func (b *SoilBus) MoisturePercent(addr entities.DeviceAddress) (int, bool) {
	v := b.get(addr)
	return int(v.moisture + 0.5), v.valid
}

func (b *SoilBus) MoisturePercentFloat(addr entities.DeviceAddress) (float32, bool) {
	v := b.get(addr)
	return v.moisture, v.valid
}

func (b *SoilBus) ErrorCode() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.code
}

type Battery struct {
	mu    sync.Mutex
	volts float32
	valid bool
}

func (b *Battery) store(v float32) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.volts, b.valid = v, true
}

func (b *Battery) Voltage() (float32, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.volts, b.valid
}

// LED forwards pulses to the hub.
type LED struct {
	hub *Hub
}

func (l *LED) Pulse(d time.Duration) {
	if err := l.hub.send("L,%d", d.Milliseconds()); err != nil {
		l.hub.log.Warn("serial: led pulse failed", logfields.Error(err))
	}
}
