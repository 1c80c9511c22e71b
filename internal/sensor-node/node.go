package sensor_node

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/LeonardoBeccarini/soilnode/internal/config"
	"github.com/LeonardoBeccarini/soilnode/internal/model/entities"
	"github.com/LeonardoBeccarini/soilnode/internal/policy"
	"github.com/LeonardoBeccarini/soilnode/internal/topic"
)

// ErrStopped is returned by Status once Run has returned.
var ErrStopped = errors.New("node stopped")

// Options is the fixed behaviour of a node, usually derived from a deployment file.
type Options struct {
	Router        topic.Router
	ServiceWindow time.Duration

	ThermometerIntervals entities.PollingIntervals
	SoilIntervals        entities.PollingIntervals

	AmbientTemperature policy.Config[float32]
	SoilTemperature    policy.Config[float32]
	RawCapacitance     policy.Config[int]
	Moisture           policy.Config[int]
	MoistureFloat      policy.Config[float32]
	MoistureShape      config.MoistureShape
	PublishMoisture    bool

	BootPulse  time.Duration
	ClickPulse time.Duration
	HoldPulse  time.Duration

	QueueSize int
}

func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Router:               topic.NewRouter(cfg.Topics, cfg.Deployment.SingleSensor),
		ServiceWindow:        cfg.ServiceWindow,
		ThermometerIntervals: cfg.Intervals.Thermometer,
		SoilIntervals:        cfg.Intervals.Soil,
		AmbientTemperature:   cfg.Policy.AmbientTemperature.Float32(),
		SoilTemperature:      cfg.Policy.SoilTemperature.Float32(),
		RawCapacitance:       cfg.Policy.RawCapacitance.Int(),
		Moisture:             cfg.Policy.Moisture.Int(),
		MoistureFloat:        cfg.Policy.Moisture.Float32(),
		MoistureShape:        cfg.Policy.Moisture.Shape,
		PublishMoisture:      cfg.Policy.Moisture.Publish,
		BootPulse:            cfg.LED.BootPulse,
		ClickPulse:           cfg.LED.ClickPulse,
		HoldPulse:            cfg.LED.HoldPulse,
	}
}

// Deps are the collaborators of a node. Sensors and the LED are optional.
type Deps struct {
	Thermometer Thermometer
	Soil        SoilSensor
	Battery     Battery
	LED         LED
	Publisher   Publisher
	Scheduler   Scheduler
	Clock       clockwork.Clock
	Logger      *slog.Logger
	Metrics     *Metrics
}

type soilGates struct {
	temperature   *policy.Gate[float32]
	raw           *policy.Gate[int]
	moisture      *policy.Gate[int]
	moistureFloat *policy.Gate[float32]
}

// Node owns all per-metric state and handles events strictly one at a time.
type Node struct {
	opts Options
	deps Deps
	log  *slog.Logger

	events chan Event
	done   chan struct{}

	mode    *ModeScheduler
	ambient *policy.Gate[float32]
	soil    map[entities.DeviceAddress]*soilGates
	clicks  int
	holds   int
	started time.Time
}

func New(opts Options, deps Deps) (*Node, error) {
	if deps.Publisher == nil {
		return nil, fmt.Errorf("node: publisher is required")
	}
	if deps.Scheduler == nil {
		return nil, fmt.Errorf("node: scheduler is required")
	}
	if opts.PublishMoisture && opts.MoistureShape == config.MoistureFloat && deps.Soil != nil {
		if _, ok := deps.Soil.(FloatMoistureReader); !ok {
			return nil, fmt.Errorf("node: moisture shape float needs a soil driver with MoisturePercentFloat")
		}
	}
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 64
	}

	n := &Node{
		opts:    opts,
		deps:    deps,
		log:     deps.Logger,
		events:  make(chan Event, opts.QueueSize),
		done:    make(chan struct{}),
		ambient: policy.NewGate(opts.AmbientTemperature),
		soil:    make(map[entities.DeviceAddress]*soilGates),
	}
	n.mode = NewModeScheduler(deps.Scheduler, opts.ServiceWindow, deps.Logger)
	if deps.Thermometer != nil {
		n.mode.AddTarget("thermometer", deps.Thermometer, opts.ThermometerIntervals)
	}
	if deps.Soil != nil {
		n.mode.AddTarget("soil", deps.Soil, opts.SoilIntervals)
	}
	return n, nil
}

// Post queues an event for the dispatch loop. It blocks while the queue is full
// and returns false once the node has stopped.
func (n *Node) Post(ev Event) bool {
	select {
	case <-n.done:
		return false
	default:
	}
	select {
	case n.events <- ev:
		return true
	case <-n.done:
		return false
	}
}

// Run starts the node and dispatches events until ctx is done. It must be called once.
func (n *Node) Run(ctx context.Context) error {
	defer close(n.done)

	n.started = n.deps.Clock.Now()
	if err := n.mode.Arm(func() { n.Post(modeExpired{}) }); err != nil {
		return err
	}
	n.deps.Metrics.SetMode(entities.ModeService)
	if n.deps.LED != nil && n.opts.BootPulse > 0 {
		n.deps.LED.Pulse(n.opts.BootPulse)
	}
	n.log.Info("node: started", slog.String("error_topic", n.opts.Router.Error()))

	for {
		select {
		case <-ctx.Done():
			n.log.Info("node: stopping")
			return nil
		case ev := <-n.events:
			n.dispatch(ev)
		}
	}
}

// Mode is safe to call only from the dispatch loop or after Run returned;
// other goroutines should use Status.
func (n *Node) Mode() entities.Mode { return n.mode.Mode() }

// Status takes a snapshot through the dispatch loop.
func (n *Node) Status(ctx context.Context) (Status, error) {
	req := statusRequest{reply: make(chan Status, 1)}
	select {
	case n.events <- req:
	case <-n.done:
		return Status{}, ErrStopped
	case <-ctx.Done():
		return Status{}, ctx.Err()
	}
	select {
	case st := <-req.reply:
		return st, nil
	case <-n.done:
		return Status{}, ErrStopped
	case <-ctx.Done():
		return Status{}, ctx.Err()
	}
}
