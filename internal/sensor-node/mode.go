package sensor_node

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/LeonardoBeccarini/soilnode/internal/logfields"
	"github.com/LeonardoBeccarini/soilnode/internal/model/entities"
)

type modeTarget struct {
	name      string
	setter    IntervalSetter
	intervals entities.PollingIntervals
}

// ModeScheduler moves the node from Service to Normal mode once, after a fixed
// service window, by slowing down every registered sensor.
type ModeScheduler struct {
	sched   Scheduler
	window  time.Duration
	log     *slog.Logger
	targets []modeTarget

	mode   entities.Mode
	handle uuid.UUID
	armed  bool
}

func NewModeScheduler(sched Scheduler, window time.Duration, log *slog.Logger) *ModeScheduler {
	if log == nil {
		log = slog.Default()
	}
	return &ModeScheduler{sched: sched, window: window, log: log, mode: entities.ModeService}
}

// AddTarget registers a sensor whose interval follows the mode. Call before Arm.
func (m *ModeScheduler) AddTarget(name string, s IntervalSetter, intervals entities.PollingIntervals) {
	m.targets = append(m.targets, modeTarget{name: name, setter: s, intervals: intervals})
}

func (m *ModeScheduler) Mode() entities.Mode { return m.mode }

// Arm applies the service intervals and registers the one-shot timer. fire is
// called from the scheduler's goroutine when the window elapses.
func (m *ModeScheduler) Arm(fire func()) error {
	if m.armed || m.mode == entities.ModeNormal {
		return fmt.Errorf("mode scheduler already armed")
	}
	m.apply(entities.ModeService)
	id, err := m.sched.RegisterTask(fire, m.window)
	if err != nil {
		return fmt.Errorf("arm service window: %w", err)
	}
	m.handle = id
	m.armed = true
	m.log.Info("node: service mode", logfields.Interval(m.window), logfields.TaskID(id.String()))
	return nil
}

// Expire performs the Service -> Normal transition and deregisters the timer.
// It reports false when the transition already happened.
func (m *ModeScheduler) Expire() bool {
	if m.mode == entities.ModeNormal {
		return false
	}
	m.mode = entities.ModeNormal
	m.apply(entities.ModeNormal)
	if m.armed {
		if err := m.sched.UnregisterTask(m.handle); err != nil {
			m.log.Warn("node: failed to unregister service window task", logfields.Error(err))
		}
		m.armed = false
	}
	m.log.Info("node: switched to normal mode")
	return true
}

func (m *ModeScheduler) apply(mode entities.Mode) {
	for _, t := range m.targets {
		d := t.intervals.For(mode)
		t.setter.SetUpdateInterval(d)
		m.log.Debug("node: update interval set", slog.String("sensor", t.name), logfields.Mode(mode.String()), logfields.Interval(d))
	}
}
