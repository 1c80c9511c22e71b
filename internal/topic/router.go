// Package topic builds the radio topic names consumed by downstream subscribers.
// The soil topic layout is a wire contract and must stay bit-exact.
package topic

import (
	"fmt"
	"strings"

	"github.com/LeonardoBeccarini/soilnode/internal/model/entities"
)

const (
	DefaultPrefix = "soil-sensor"
	// ErrorDevice is the device segment of the error topic; it is never a hex address.
	ErrorDevice = "-"
	ErrorSuffix = "error"
)

// Template carries the per-deployment topic names.
type Template struct {
	Prefix             string `yaml:"prefix"`
	AmbientTemperature string `yaml:"ambient_temperature"`
	ClickCount         string `yaml:"click_count"`
	HoldCount          string `yaml:"hold_count"`
	Battery            string `yaml:"battery"`
}

// DefaultTemplate matches the topics a stock gateway forwards for this node.
func DefaultTemplate() Template {
	return Template{
		Prefix:             DefaultPrefix,
		AmbientTemperature: "thermometer/0:1/temperature",
		ClickCount:         "push-button/-/event-count",
		HoldCount:          "push-button/-/hold-count",
		Battery:            "battery/-/voltage",
	}
}

// Router derives topic strings from a Template.
type Router struct {
	tpl Template
	// single forces the placeholder device id regardless of the reported address.
	single bool
}

func NewRouter(tpl Template, singleSensor bool) Router {
	if tpl.Prefix == "" {
		tpl.Prefix = DefaultPrefix
	}
	return Router{tpl: tpl, single: singleSensor}
}

// DeviceID renders the device segment of a soil topic.
func (r Router) DeviceID(addr entities.DeviceAddress) string {
	if r.single {
		return entities.NoAddress.String()
	}
	return addr.String()
}

// Soil returns "<prefix>/<deviceId>/<suffix>" for a per-device soil metric.
func (r Router) Soil(addr entities.DeviceAddress, m entities.Metric) (string, error) {
	suffix, ok := m.TopicSuffix()
	if !ok {
		return "", fmt.Errorf("metric %q has no soil topic", m)
	}
	return r.tpl.Prefix + "/" + r.DeviceID(addr) + "/" + suffix, nil
}

// Error is the fixed error topic, not tied to any device.
func (r Router) Error() string {
	return r.tpl.Prefix + "/" + ErrorDevice + "/" + ErrorSuffix
}

func (r Router) AmbientTemperature() string { return r.tpl.AmbientTemperature }
func (r Router) ClickCount() string         { return r.tpl.ClickCount }
func (r Router) HoldCount() string          { return r.tpl.HoldCount }
func (r Router) Battery() string            { return r.tpl.Battery }

// Subscriptions lists the MQTT filters that cover everything the router emits.
func (r Router) Subscriptions() []string {
	out := []string{r.tpl.Prefix + "/#"}
	seen := map[string]bool{out[0]: true}
	for _, t := range []string{r.tpl.AmbientTemperature, r.tpl.ClickCount, r.tpl.HoldCount, r.tpl.Battery} {
		if t == "" || seen[t] || strings.HasPrefix(t, r.tpl.Prefix+"/") {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

// Parsed is a soil topic split into its segments.
type Parsed struct {
	Address entities.DeviceAddress
	Metric  entities.Metric
	IsError bool
}

// Parse inverts Soil and Error. ok is false for topics outside the prefix.
func (r Router) Parse(t string) (Parsed, bool) {
	rest, found := strings.CutPrefix(t, r.tpl.Prefix+"/")
	if !found {
		return Parsed{}, false
	}
	parts := strings.Split(rest, "/")
	if len(parts) != 2 {
		return Parsed{}, false
	}
	if parts[0] == ErrorDevice {
		if parts[1] != ErrorSuffix {
			return Parsed{}, false
		}
		return Parsed{Metric: entities.MetricError, IsError: true}, true
	}
	addr, err := entities.ParseDeviceAddress(parts[0])
	if err != nil || parts[0] != addr.String() {
		// reject upper-case hex so topics stay canonical
		return Parsed{}, false
	}
	m, ok := entities.MetricFromSuffix(parts[1])
	if !ok {
		return Parsed{}, false
	}
	return Parsed{Address: addr, Metric: m}, true
}

// Classify resolves any topic the router emits, including the template topics,
// to the metric it carries.
func (r Router) Classify(t string) (Parsed, bool) {
	if p, ok := r.Parse(t); ok {
		return p, true
	}
	switch t {
	case "":
		return Parsed{}, false
	case r.tpl.AmbientTemperature:
		return Parsed{Metric: entities.MetricAmbientTemperature}, true
	case r.tpl.ClickCount:
		return Parsed{Metric: entities.MetricButtonClick}, true
	case r.tpl.HoldCount:
		return Parsed{Metric: entities.MetricButtonHold}, true
	case r.tpl.Battery:
		return Parsed{Metric: entities.MetricBattery}, true
	}
	return Parsed{}, false
}
