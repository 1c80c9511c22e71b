// Package collector subscribes to node telemetry, stores it in InfluxDB and
// keeps the latest value of every topic for the HTTP API.
package collector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/jonboulle/clockwork"
	"github.com/sony/gobreaker"

	"github.com/LeonardoBeccarini/soilnode/internal/logfields"
	"github.com/LeonardoBeccarini/soilnode/internal/model/messages"
	"github.com/LeonardoBeccarini/soilnode/internal/topic"
	"github.com/LeonardoBeccarini/soilnode/pkg/dedup"
	"github.com/LeonardoBeccarini/soilnode/pkg/radio"
)

// Measurement is the single InfluxDB measurement every reading is written to.
const Measurement = "soil_node"

// PointWriter is satisfied by influxdb2 api.WriteAPIBlocking.
type PointWriter interface {
	WritePoint(ctx context.Context, point ...*write.Point) error
}

// InfluxConfig configures the InfluxDB sink.
type InfluxConfig struct {
	URL    string
	Token  string
	Org    string
	Bucket string
}

// NewInfluxWriter opens a blocking write API. The returned client must be closed.
func NewInfluxWriter(cfg InfluxConfig) (PointWriter, influxdb2.Client, error) {
	if cfg.URL == "" || cfg.Token == "" || cfg.Org == "" || cfg.Bucket == "" {
		return nil, nil, fmt.Errorf("influx config incomplete")
	}
	client := influxdb2.NewClient(cfg.URL, cfg.Token)
	return client.WriteAPIBlocking(cfg.Org, cfg.Bucket), client, nil
}

type Options struct {
	Router     topic.Router
	Codec      radio.Codec
	Deployment string

	// BreakerFailures consecutive write failures open the breaker for BreakerTimeout.
	BreakerFailures uint32
	BreakerTimeout  time.Duration
	DedupTTL        time.Duration
	WriteTimeout    time.Duration
}

type Service struct {
	opts    Options
	sink    PointWriter
	breaker *gobreaker.CircuitBreaker
	dedup   *dedup.Deduper
	clock   clockwork.Clock
	log     *slog.Logger
	metrics *Metrics

	mu      sync.RWMutex
	latest  map[string]messages.Reading
	lastErr time.Time
	lastOK  time.Time
}

func NewService(opts Options, sink PointWriter, clock clockwork.Clock, log *slog.Logger, metrics *Metrics) *Service {
	if opts.Codec == nil {
		opts.Codec = radio.JSON
	}
	if opts.BreakerFailures == 0 {
		opts.BreakerFailures = 5
	}
	if opts.BreakerTimeout <= 0 {
		opts.BreakerTimeout = 30 * time.Second
	}
	if opts.DedupTTL <= 0 {
		opts.DedupTTL = 30 * time.Second
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 5 * time.Second
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if log == nil {
		log = slog.Default()
	}
	s := &Service{
		opts:    opts,
		sink:    sink,
		dedup:   dedup.NewWithClock(opts.DedupTTL, 20000, clock),
		clock:   clock,
		log:     log,
		metrics: metrics,
		latest:  make(map[string]messages.Reading),
	}
	s.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "influx",
		Timeout: opts.BreakerTimeout,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= opts.BreakerFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("collector: breaker state changed", slog.String("breaker", name),
				slog.String("from", from.String()), slog.String("to", to.String()))
			metrics.setBreaker(to)
		},
	})
	return s
}

// Start consumes until ctx is done.
func (s *Service) Start(ctx context.Context, consumer radio.IConsumer) {
	consumer.SetHandler(func(filter string, msg mqtt.Message) error {
		return s.Handle(ctx, msg)
	})
	consumer.ConsumeMessage(ctx)
}

// Handle ingests one radio message. Malformed or foreign messages are dropped
// without error so the stream keeps flowing; only sink failures are returned.
func (s *Service) Handle(ctx context.Context, msg mqtt.Message) error {
	// A redelivery carries the DUP flag and the packet id of the original.
	if msg.Qos() > 0 {
		fresh := s.dedup.ShouldProcess(msg.Topic() + "#" + strconv.Itoa(int(msg.MessageID())))
		if !fresh && msg.Duplicate() {
			s.metrics.incDropped("duplicate")
			return nil
		}
	}

	p, ok := s.opts.Router.Classify(msg.Topic())
	if !ok {
		s.log.Debug("collector: foreign topic ignored", logfields.Topic(msg.Topic()))
		s.metrics.incDropped("topic")
		return nil
	}
	v, err := s.opts.Codec.DecodeNumber(msg.Payload())
	if err != nil {
		s.log.Warn("collector: invalid payload", logfields.Topic(msg.Topic()), logfields.Error(err))
		s.metrics.incDropped("payload")
		return nil
	}

	r := messages.Reading{
		Topic:     msg.Topic(),
		Metric:    p.Metric,
		Value:     v,
		Timestamp: s.clock.Now().UTC(),
		Address:   p.Address,
	}
	if _, soil := p.Metric.TopicSuffix(); soil {
		r.DeviceID = p.Address.String()
	}
	s.remember(r)
	s.metrics.incIngested(string(r.Metric))

	return s.write(ctx, r)
}

func (s *Service) write(ctx context.Context, r messages.Reading) error {
	point := ReadingToPoint(r, s.opts.Deployment)
	_, err := s.breaker.Execute(func() (any, error) {
		wctx, cancel := context.WithTimeout(ctx, s.opts.WriteTimeout)
		defer cancel()
		return nil, s.sink.WritePoint(wctx, point)
	})

	s.mu.Lock()
	if err != nil {
		s.lastErr = s.clock.Now()
	} else {
		s.lastOK = s.clock.Now()
	}
	s.mu.Unlock()

	if err != nil {
		s.metrics.incWriteError()
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return fmt.Errorf("influx write skipped: %w", err)
		}
		return fmt.Errorf("influx write error: %w", err)
	}
	s.log.Debug("collector: wrote reading", logfields.Topic(r.Topic), logfields.Value(r.Value))
	return nil
}

func (s *Service) remember(r messages.Reading) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latest[r.Topic] = r
}

// Latest returns the cached readings, optionally filtered, sorted by topic.
func (s *Service) Latest(metric, device string) []messages.Reading {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]messages.Reading, 0, len(s.latest))
	for _, r := range s.latest {
		if metric != "" && string(r.Metric) != metric {
			continue
		}
		if device != "" && !strings.EqualFold(r.DeviceID, device) {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Topic < out[j].Topic })
	return out
}

// LastErrorAge is how long ago the sink last failed; a large value when it never did.
func (s *Service) LastErrorAge() time.Duration {
	s.mu.RLock()
	t := s.lastErr
	s.mu.RUnlock()
	if t.IsZero() {
		return 99999 * time.Hour
	}
	return s.clock.Since(t)
}

// BreakerState exposes the sink breaker for health checks.
func (s *Service) BreakerState() gobreaker.State { return s.breaker.State() }

// ReadingToPoint normalises a reading into an InfluxDB point.
func ReadingToPoint(r messages.Reading, deployment string) *write.Point {
	tags := map[string]string{
		"metric": string(r.Metric),
		"topic":  r.Topic,
	}
	if r.DeviceID != "" {
		tags["device_id"] = r.DeviceID
	}
	if deployment != "" {
		tags["deployment"] = deployment
	}
	fields := map[string]interface{}{
		"value": r.Value,
	}
	return influxdb2.NewPoint(Measurement, tags, fields, r.Timestamp)
}
