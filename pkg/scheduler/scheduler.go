// Package scheduler registers deferred and periodic tasks on a gocron scheduler.
package scheduler

import (
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// ErrNotRunning is returned when tasks are registered after Stop.
var ErrNotRunning = errors.New("scheduler: not running")

type Scheduler struct {
	s       gocron.Scheduler
	clock   clockwork.Clock
	stopped atomic.Bool
}

// New creates a started scheduler. A nil clock uses the real clock.
func New(clock clockwork.Clock) (*Scheduler, error) {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	s, err := gocron.NewScheduler(gocron.WithClock(clock))
	if err != nil {
		return nil, fmt.Errorf("failed to create gocron scheduler: %w", err)
	}
	s.Start()
	return &Scheduler{s: s, clock: clock}, nil
}

// RegisterTask runs action once after delay.
func (s *Scheduler) RegisterTask(action func(), delay time.Duration) (uuid.UUID, error) {
	if s.stopped.Load() {
		return uuid.Nil, ErrNotRunning
	}
	start := gocron.OneTimeJobStartImmediately()
	if delay > 0 {
		start = gocron.OneTimeJobStartDateTime(s.clock.Now().Add(delay))
	}
	job, err := s.s.NewJob(gocron.OneTimeJob(start), gocron.NewTask(action))
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to register one-shot task: %w", err)
	}
	return job.ID(), nil
}

// UnregisterTask removes a task. Removing a task that already finished is not an error.
func (s *Scheduler) UnregisterTask(id uuid.UUID) error {
	if err := s.s.RemoveJob(id); err != nil && !errors.Is(err, gocron.ErrJobNotFound) {
		return fmt.Errorf("failed to unregister task %s: %w", id, err)
	}
	return nil
}

// Every runs action every interval, the first run happening immediately.
func (s *Scheduler) Every(name string, interval time.Duration, action func()) (uuid.UUID, error) {
	if s.stopped.Load() {
		return uuid.Nil, ErrNotRunning
	}
	job, err := s.s.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(action),
		gocron.WithName(name),
		gocron.WithStartAt(gocron.WithStartImmediately()),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to create periodic job %s: %w", name, err)
	}
	return job.ID(), nil
}

// Reschedule changes the interval of a periodic job created by Every.
// The next run happens one new interval from now.
func (s *Scheduler) Reschedule(id uuid.UUID, name string, interval time.Duration, action func()) (uuid.UUID, error) {
	job, err := s.s.Update(id,
		gocron.DurationJob(interval),
		gocron.NewTask(action),
		gocron.WithName(name),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to reschedule job %s: %w", name, err)
	}
	slog.Debug("scheduler: job rescheduled", "job", name, "interval", interval)
	return job.ID(), nil
}

// Pending reports how many jobs are registered.
func (s *Scheduler) Pending() int { return len(s.s.Jobs()) }

func (s *Scheduler) Stop() error {
	if s.stopped.Swap(true) {
		return nil
	}
	return s.s.Shutdown()
}
