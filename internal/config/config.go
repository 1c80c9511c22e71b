package config

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/LeonardoBeccarini/soilnode/internal/model/entities"
	"github.com/LeonardoBeccarini/soilnode/internal/policy"
	"github.com/LeonardoBeccarini/soilnode/internal/topic"
	"github.com/LeonardoBeccarini/soilnode/pkg/radio"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// MoistureShape selects which moisture accessor the soil driver is read with.
// Deployments disagree on whether moisture is an integer or a floating percentage.
type MoistureShape string

const (
	MoistureInt   MoistureShape = "int"
	MoistureFloat MoistureShape = "float"
)

// Config is a complete node deployment.
type Config struct {
	Deployment    DeploymentConfig `yaml:"deployment"`
	ServiceWindow time.Duration    `yaml:"service_window"`
	Intervals     IntervalsConfig  `yaml:"intervals"`
	Policy        PolicyConfig     `yaml:"policy"`
	Topics        topic.Template   `yaml:"topics"`
	LED           LEDConfig        `yaml:"led"`
	Radio         RadioConfig      `yaml:"radio"`
	Source        SourceConfig     `yaml:"source"`
	Logging       LoggingConfig    `yaml:"logging"`
	MetricsAddr   string           `yaml:"metrics_addr"` // empty disables /metrics
	StatusAddr    string           `yaml:"status_addr"`  // empty disables the gRPC status service
}

type DeploymentConfig struct {
	Name           string `yaml:"name"`
	SingleSensor   bool   `yaml:"single_sensor"`
	MaxSoilSensors int    `yaml:"max_soil_sensors"`
}

type IntervalsConfig struct {
	Thermometer entities.PollingIntervals `yaml:"thermometer"`
	Soil        entities.PollingIntervals `yaml:"soil"`
	Battery     time.Duration             `yaml:"battery"`
}

// GateConfig is the YAML form of policy.Config.
type GateConfig struct {
	Threshold  float64       `yaml:"threshold"`
	MaxSilence time.Duration `yaml:"max_silence"`
}

func (g GateConfig) Float32() policy.Config[float32] {
	return policy.Config[float32]{ChangeThreshold: float32(g.Threshold), MaxSilenceInterval: g.MaxSilence}
}

func (g GateConfig) Int() policy.Config[int] {
	return policy.Config[int]{ChangeThreshold: int(math.Round(g.Threshold)), MaxSilenceInterval: g.MaxSilence}
}

type MoistureConfig struct {
	GateConfig `yaml:",inline"`
	Publish    bool          `yaml:"publish"`
	Shape      MoistureShape `yaml:"shape"`
}

type PolicyConfig struct {
	AmbientTemperature GateConfig     `yaml:"ambient_temperature"`
	SoilTemperature    GateConfig     `yaml:"soil_temperature"`
	RawCapacitance     GateConfig     `yaml:"raw_capacitance"`
	Moisture           MoistureConfig `yaml:"moisture"`
}

type LEDConfig struct {
	BootPulse  time.Duration `yaml:"boot_pulse"`
	ClickPulse time.Duration `yaml:"click_pulse"`
	HoldPulse  time.Duration `yaml:"hold_pulse"`
}

type RadioConfig struct {
	Transport string           `yaml:"transport"` // mqtt | nats
	Codec     string           `yaml:"codec"`     // json | cbor
	MQTT      radio.MQTTConfig `yaml:"mqtt"`
	NATS      radio.NATSConfig `yaml:"nats"`
}

type SourceConfig struct {
	Kind      string          `yaml:"kind"` // simulator | serial
	Serial    SerialConfig    `yaml:"serial"`
	Simulator SimulatorConfig `yaml:"simulator"`
}

type SerialConfig struct {
	Port     string `yaml:"port"`
	BaudRate int    `yaml:"baud_rate"`
}

type SimulatorConfig struct {
	Devices int   `yaml:"devices"`
	Seed    int64 `yaml:"seed"`
	// ErrorRate is the chance per soil poll of a simulated bus error.
	ErrorRate float64 `yaml:"error_rate"`
}

// Default mirrors the stock multi-sensor firmware constants.
func Default() *Config {
	return &Config{
		Deployment: DeploymentConfig{
			Name:           "soil-sensor",
			MaxSoilSensors: 5,
		},
		ServiceWindow: 15 * time.Minute,
		Intervals: IntervalsConfig{
			Thermometer: entities.PollingIntervals{Service: time.Second, Normal: 10 * time.Second},
			Soil:        entities.PollingIntervals{Service: 15 * time.Second, Normal: 5 * time.Minute},
			Battery:     time.Hour,
		},
		Policy: PolicyConfig{
			AmbientTemperature: GateConfig{Threshold: 1.0, MaxSilence: 15 * time.Minute},
			SoilTemperature:    GateConfig{Threshold: 0.5, MaxSilence: 15 * time.Minute},
			RawCapacitance:     GateConfig{Threshold: 10, MaxSilence: time.Hour},
			Moisture: MoistureConfig{
				GateConfig: GateConfig{Threshold: 5, MaxSilence: time.Hour},
				Publish:    true,
				Shape:      MoistureInt,
			},
		},
		Topics: topic.DefaultTemplate(),
		LED: LEDConfig{
			BootPulse:  2 * time.Second,
			ClickPulse: 100 * time.Millisecond,
			HoldPulse:  250 * time.Millisecond,
		},
		Radio: RadioConfig{
			Transport: "mqtt",
			Codec:     "json",
			MQTT: radio.MQTTConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "soil-sensor",
			},
			NATS: radio.NATSConfig{URL: "nats://localhost:4222"},
		},
		Source: SourceConfig{
			Kind:      "simulator",
			Serial:    SerialConfig{BaudRate: 115200},
			Simulator: SimulatorConfig{Devices: 2, Seed: 1},
		},
		Logging: LoggingConfig{Level: "info", Format: "text", MaxSizeMB: 10},
	}
}

// Load reads a YAML deployment file over Default. An empty path yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, cfg.Validate()
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config %s: %w", path, err)
	}
	defer f.Close()

	if err := Decode(f, cfg); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

// Decode overlays YAML from r onto cfg. Unknown keys are rejected.
func Decode(r io.Reader, cfg *Config) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode yaml: %w", err)
	}
	return nil
}

// Validate reports every problem at once, each wrapped in ErrInvalid.
func (c *Config) Validate() error {
	var errs []error
	bad := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalid}, args...)...))
	}

	if c.Deployment.MaxSoilSensors < 1 {
		bad("deployment.max_soil_sensors must be >= 1, got %d", c.Deployment.MaxSoilSensors)
	}
	if c.ServiceWindow < 0 {
		bad("service_window must not be negative")
	}
	for name, iv := range map[string]entities.PollingIntervals{
		"thermometer": c.Intervals.Thermometer,
		"soil":        c.Intervals.Soil,
	} {
		if iv.Service <= 0 || iv.Normal <= 0 {
			bad("intervals.%s: service and normal must be positive", name)
		} else if iv.Normal < iv.Service {
			bad("intervals.%s: normal (%s) is faster than service (%s)", name, iv.Normal, iv.Service)
		}
	}
	if c.Intervals.Battery <= 0 {
		bad("intervals.battery must be positive")
	}

	gates := map[string]GateConfig{
		"ambient_temperature": c.Policy.AmbientTemperature,
		"soil_temperature":    c.Policy.SoilTemperature,
		"raw_capacitance":     c.Policy.RawCapacitance,
		"moisture":            c.Policy.Moisture.GateConfig,
	}
	for name, g := range gates {
		if g.Threshold < 0 || math.IsNaN(g.Threshold) {
			bad("policy.%s.threshold must be >= 0", name)
		}
		if g.MaxSilence < 0 {
			bad("policy.%s.max_silence must not be negative", name)
		}
	}
	if g := c.Policy.RawCapacitance; g.Threshold != math.Trunc(g.Threshold) {
		bad("policy.raw_capacitance.threshold must be an integer, got %v", g.Threshold)
	}
	switch c.Policy.Moisture.Shape {
	case MoistureInt:
		if g := c.Policy.Moisture; g.Threshold != math.Trunc(g.Threshold) {
			bad("policy.moisture.threshold must be an integer for shape int, got %v", g.Threshold)
		}
	case MoistureFloat:
	default:
		bad("policy.moisture.shape %q is not one of int, float", c.Policy.Moisture.Shape)
	}

	if c.Topics.Prefix == "" {
		bad("topics.prefix must not be empty")
	}
	for name, t := range map[string]string{
		"ambient_temperature": c.Topics.AmbientTemperature,
		"click_count":         c.Topics.ClickCount,
		"hold_count":          c.Topics.HoldCount,
		"battery":             c.Topics.Battery,
	} {
		if t == "" {
			bad("topics.%s must not be empty", name)
		}
	}

	switch c.Radio.Transport {
	case "mqtt", "nats":
	default:
		bad("radio.transport %q is not one of mqtt, nats", c.Radio.Transport)
	}
	if _, err := radio.CodecByName(c.Radio.Codec); err != nil {
		bad("radio.codec: %v", err)
	}
	switch c.Source.Kind {
	case "simulator":
		if n := c.Source.Simulator.Devices; n < 0 || n > c.Deployment.MaxSoilSensors {
			bad("source.simulator.devices must be within 0..%d, got %d", c.Deployment.MaxSoilSensors, n)
		}
		if r := c.Source.Simulator.ErrorRate; r < 0 || r > 1 {
			bad("source.simulator.error_rate must be within 0..1, got %v", r)
		}
	case "serial":
		if c.Source.Serial.Port == "" {
			bad("source.serial.port is required for kind serial")
		}
	default:
		bad("source.kind %q is not one of simulator, serial", c.Source.Kind)
	}
	if _, err := ParseLevel(c.Logging.Level); err != nil {
		bad("logging.level: %v", err)
	}

	return errors.Join(errs...)
}
