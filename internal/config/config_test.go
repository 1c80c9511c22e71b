package config

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 15*time.Minute, cfg.ServiceWindow)
	assert.Equal(t, time.Second, cfg.Intervals.Thermometer.Service)
	assert.Equal(t, 10*time.Second, cfg.Intervals.Thermometer.Normal)
	assert.Equal(t, 5*time.Minute, cfg.Intervals.Soil.Normal)
	assert.Equal(t, 1.0, cfg.Policy.AmbientTemperature.Threshold)
	assert.Equal(t, "thermometer/0:1/temperature", cfg.Topics.AmbientTemperature)
}

func TestLoadOverlaysYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "node.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
deployment:
  name: greenhouse-3
  single_sensor: true
service_window: 5m
policy:
  moisture:
    threshold: 2.5
    shape: float
topics:
  battery: node/-/battery
radio:
  transport: nats
  codec: cbor
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "greenhouse-3", cfg.Deployment.Name)
	assert.True(t, cfg.Deployment.SingleSensor)
	assert.Equal(t, 5, cfg.Deployment.MaxSoilSensors, "untouched keys keep defaults")
	assert.Equal(t, 5*time.Minute, cfg.ServiceWindow)
	assert.Equal(t, MoistureFloat, cfg.Policy.Moisture.Shape)
	assert.Equal(t, 2.5, cfg.Policy.Moisture.Threshold)
	assert.Equal(t, time.Hour, cfg.Policy.Moisture.MaxSilence)
	assert.True(t, cfg.Policy.Moisture.Publish)
	assert.Equal(t, "node/-/battery", cfg.Topics.Battery)
	assert.Equal(t, "push-button/-/event-count", cfg.Topics.ClickCount)
	assert.Equal(t, "cbor", cfg.Radio.Codec)

	g := cfg.Policy.Moisture.Float32()
	assert.Equal(t, float32(2.5), g.ChangeThreshold)
}

func TestLoadEmptyPathAndEmptyFile(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)

	require.NoError(t, Decode(strings.NewReader(""), cfg))
	assert.Equal(t, Default(), cfg)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestDecodeRejectsUnknownKeys(t *testing.T) {
	err := Decode(strings.NewReader("policy:\n  ambient:\n    threshold: 1\n"), Default())
	assert.Error(t, err)
}

func TestValidateCollectsErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"negative threshold", func(c *Config) { c.Policy.AmbientTemperature.Threshold = -1 }, "policy.ambient_temperature.threshold"},
		{"negative silence", func(c *Config) { c.Policy.SoilTemperature.MaxSilence = -time.Second }, "policy.soil_temperature.max_silence"},
		{"fractional raw", func(c *Config) { c.Policy.RawCapacitance.Threshold = 2.5 }, "raw_capacitance.threshold must be an integer"},
		{"fractional int moisture", func(c *Config) { c.Policy.Moisture.Threshold = 2.5 }, "moisture.threshold must be an integer"},
		{"bad shape", func(c *Config) { c.Policy.Moisture.Shape = "double" }, "policy.moisture.shape"},
		{"normal faster", func(c *Config) { c.Intervals.Soil.Normal = time.Second }, "intervals.soil"},
		{"zero interval", func(c *Config) { c.Intervals.Thermometer.Service = 0 }, "intervals.thermometer"},
		{"no battery interval", func(c *Config) { c.Intervals.Battery = 0 }, "intervals.battery"},
		{"no sensors", func(c *Config) { c.Deployment.MaxSoilSensors = 0 }, "max_soil_sensors"},
		{"empty prefix", func(c *Config) { c.Topics.Prefix = "" }, "topics.prefix"},
		{"empty topic", func(c *Config) { c.Topics.HoldCount = "" }, "topics.hold_count"},
		{"transport", func(c *Config) { c.Radio.Transport = "lora" }, "radio.transport"},
		{"codec", func(c *Config) { c.Radio.Codec = "xml" }, "radio.codec"},
		{"too many devices", func(c *Config) { c.Source.Simulator.Devices = 9 }, "source.simulator.devices"},
		{"error rate", func(c *Config) { c.Source.Simulator.ErrorRate = 2 }, "error_rate"},
		{"serial port", func(c *Config) { c.Source.Kind = "serial" }, "source.serial.port"},
		{"source kind", func(c *Config) { c.Source.Kind = "usb" }, "source.kind"},
		{"log level", func(c *Config) { c.Logging.Level = "loud" }, "logging.level"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalid)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestValidateReportsEverything(t *testing.T) {
	cfg := Default()
	cfg.Radio.Codec = "xml"
	cfg.Topics.Prefix = ""
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "radio.codec")
	assert.Contains(t, err.Error(), "topics.prefix")
}

func TestGateConversions(t *testing.T) {
	g := GateConfig{Threshold: 5, MaxSilence: time.Hour}
	assert.Equal(t, 5, g.Int().ChangeThreshold)
	assert.Equal(t, time.Hour, g.Int().MaxSilenceInterval)
	assert.Equal(t, float32(5), g.Float32().ChangeThreshold)
}

func TestParseLevel(t *testing.T) {
	for _, s := range []string{"debug", "INFO", "", "warning", "error"} {
		_, err := ParseLevel(s)
		assert.NoError(t, err, s)
	}
	_, err := ParseLevel("trace")
	assert.Error(t, err)
}

func TestNewLoggerFormats(t *testing.T) {
	var buf bytes.Buffer
	log, closer := NewLogger(LoggingConfig{Level: "debug", Format: "json"}, &buf)
	log.Debug("node: hello", "topic", "a/b")
	require.NoError(t, closer.Close())
	assert.Contains(t, buf.String(), `"msg":"node: hello"`)
	assert.Contains(t, buf.String(), `"topic":"a/b"`)

	buf.Reset()
	log, _ = NewLogger(LoggingConfig{Level: "warn"}, &buf)
	log.Info("hidden")
	log.Warn("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "msg=shown")
}

func TestNewLoggerWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "node.log")
	var buf bytes.Buffer
	log, closer := NewLogger(LoggingConfig{Level: "info", File: path, MaxSizeMB: 1}, &buf)
	log.Info("persisted")
	require.NoError(t, closer.Close())

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(b), "persisted")
	assert.Contains(t, buf.String(), "persisted")
}
