package sensor_node

import (
	"log/slog"
	"time"

	"github.com/chewxy/math32"

	"github.com/LeonardoBeccarini/soilnode/internal/config"
	"github.com/LeonardoBeccarini/soilnode/internal/logfields"
	"github.com/LeonardoBeccarini/soilnode/internal/model/entities"
	"github.com/LeonardoBeccarini/soilnode/internal/policy"
)

func (n *Node) dispatch(ev Event) {
	switch e := ev.(type) {
	case ThermometerUpdate:
		n.onThermometerUpdate()
	case ThermometerError:
		n.log.Warn("node: thermometer error")
		n.deps.Metrics.IncReadFailure(entities.MetricAmbientTemperature)
	case SoilUpdate:
		n.onSoilUpdate(e.Address)
	case SoilError:
		n.onSoilError(e.Address)
	case ButtonEvent:
		n.onButton(e.Kind)
	case BatteryUpdate:
		n.onBatteryUpdate()
	case modeExpired:
		if n.mode.Expire() {
			n.deps.Metrics.SetMode(entities.ModeNormal)
		}
	case statusRequest:
		e.reply <- n.snapshot()
	default:
		n.log.Warn("node: unhandled event", slog.String("event", ev.eventName()))
	}
}

func (n *Node) onThermometerUpdate() {
	if n.deps.Thermometer == nil {
		return
	}
	v, ok := n.deps.Thermometer.TemperatureCelsius()
	if !ok || !finite(v) {
		n.readFailed(entities.MetricAmbientTemperature, "")
		return
	}
	offer(n, n.ambient, entities.MetricAmbientTemperature, "", n.opts.Router.AmbientTemperature(), v)
}

func (n *Node) onSoilUpdate(addr entities.DeviceAddress) {
	soil := n.deps.Soil
	if soil == nil {
		return
	}
	dev := n.opts.Router.DeviceID(addr)
	if _, known := soil.IndexByAddress(addr); !known {
		n.log.Debug("node: event for unknown device discarded", logfields.Device(addr.String()))
		n.deps.Metrics.IncUnknownDevice()
		return
	}
	g := n.gatesFor(addr)

	if v, ok := soil.TemperatureCelsius(addr); ok && finite(v) {
		offer(n, g.temperature, entities.MetricSoilTemperature, dev, n.soilTopic(addr, entities.MetricSoilTemperature), v)
	} else {
		n.readFailed(entities.MetricSoilTemperature, dev)
	}

	if raw, ok := soil.CapacitanceRaw(addr); ok {
		offer(n, g.raw, entities.MetricRawCapacitance, dev, n.soilTopic(addr, entities.MetricRawCapacitance), int(raw))
	} else {
		n.readFailed(entities.MetricRawCapacitance, dev)
	}

	if !n.opts.PublishMoisture {
		return
	}
	t := n.soilTopic(addr, entities.MetricSoilMoisture)
	if n.opts.MoistureShape == config.MoistureFloat {
		if fr, ok := soil.(FloatMoistureReader); ok {
			if v, ok := fr.MoisturePercentFloat(addr); ok && finite(v) {
				offer(n, g.moistureFloat, entities.MetricSoilMoisture, dev, t, v)
				return
			}
		}
	} else if v, ok := soil.MoisturePercent(addr); ok {
		offer(n, g.moisture, entities.MetricSoilMoisture, dev, t, v)
		return
	}
	n.readFailed(entities.MetricSoilMoisture, dev)
}

func (n *Node) onSoilError(addr entities.DeviceAddress) {
	if n.deps.Soil == nil {
		return
	}
	code := n.deps.Soil.ErrorCode()
	n.log.Warn("node: soil sensor error", logfields.Code(code), logfields.Device(addr.String()))
	n.publish(n.opts.Router.Error(), entities.MetricError, code, policy.ReasonNone)
}

func (n *Node) onButton(kind ButtonKind) {
	var (
		pulse  time.Duration
		topic  string
		metric entities.Metric
		count  int
	)
	switch kind {
	case ButtonHold:
		n.holds++
		pulse, topic, metric, count = n.opts.HoldPulse, n.opts.Router.HoldCount(), entities.MetricButtonHold, n.holds
	default:
		n.clicks++
		pulse, topic, metric, count = n.opts.ClickPulse, n.opts.Router.ClickCount(), entities.MetricButtonClick, n.clicks
	}
	if n.deps.LED != nil && pulse > 0 {
		n.deps.LED.Pulse(pulse)
	}
	n.publish(topic, metric, count, policy.ReasonNone)
}

func (n *Node) onBatteryUpdate() {
	if n.deps.Battery == nil {
		return
	}
	v, ok := n.deps.Battery.Voltage()
	if !ok || !finite(v) {
		n.readFailed(entities.MetricBattery, "")
		return
	}
	n.publish(n.opts.Router.Battery(), entities.MetricBattery, v, policy.ReasonNone)
}

// offer runs value through gate and publishes it when the gate lets it pass.
func offer[T policy.Number](n *Node, gate *policy.Gate[T], metric entities.Metric, dev, topic string, value T) {
	reason := gate.Offer(value, n.deps.Clock.Now())
	if reason == policy.ReasonNone {
		n.deps.Metrics.IncSuppressed(metric)
		return
	}
	n.publish(topic, metric, value, reason)
}

func (n *Node) publish(topic string, metric entities.Metric, value any, reason policy.Reason) {
	if err := n.deps.Publisher.Publish(topic, value); err != nil {
		n.log.Warn("node: publish failed", logfields.Topic(topic), logfields.Error(err))
		n.deps.Metrics.IncPublishError(metric)
		return
	}
	n.deps.Metrics.IncPublished(metric, reason)
	n.log.Debug("node: published", logfields.Topic(topic), logfields.Value(value), logfields.Reason(string(reason)))
}

func (n *Node) readFailed(metric entities.Metric, dev string) {
	n.deps.Metrics.IncReadFailure(metric)
	n.log.Debug("node: read failed", logfields.Metric(string(metric)), logfields.Device(dev))
}

func (n *Node) soilTopic(addr entities.DeviceAddress, m entities.Metric) string {
	// Soil metrics always have a suffix, so Soil cannot fail here.
	t, _ := n.opts.Router.Soil(addr, m)
	return t
}

func (n *Node) gatesFor(addr entities.DeviceAddress) *soilGates {
	g, ok := n.soil[addr]
	if !ok {
		g = &soilGates{
			temperature:   policy.NewGate(n.opts.SoilTemperature),
			raw:           policy.NewGate(n.opts.RawCapacitance),
			moisture:      policy.NewGate(n.opts.Moisture),
			moistureFloat: policy.NewGate(n.opts.MoistureFloat),
		}
		n.soil[addr] = g
	}
	return g
}

func finite(v float32) bool {
	return !math32.IsNaN(v) && !math32.IsInf(v, 0)
}
