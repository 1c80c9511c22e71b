package sensor_node

import (
	prom "github.com/prometheus/client_golang/prometheus"

	"github.com/LeonardoBeccarini/soilnode/internal/model/entities"
	"github.com/LeonardoBeccarini/soilnode/internal/policy"
)

// Metrics records node activity in Prometheus. A nil *Metrics is a no-op.
type Metrics struct {
	published      *prom.CounterVec
	suppressed     *prom.CounterVec
	readFailures   *prom.CounterVec
	publishErrors  *prom.CounterVec
	unknownDevices prom.Counter
	mode           prom.Gauge
}

func NewMetrics(reg prom.Registerer) *Metrics {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	m := &Metrics{
		published: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "soilnode",
			Name:      "published_total",
			Help:      "Values handed to the radio, by metric and trigger",
		}, []string{"metric", "reason"}),
		suppressed: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "soilnode",
			Name:      "suppressed_total",
			Help:      "Readings held back by the publish policy",
		}, []string{"metric"}),
		readFailures: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "soilnode",
			Name:      "read_failures_total",
			Help:      "Sensor reads that produced no value",
		}, []string{"metric"}),
		publishErrors: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "soilnode",
			Name:      "publish_errors_total",
			Help:      "Publishes the radio link refused",
		}, []string{"metric"}),
		unknownDevices: prom.NewCounter(prom.CounterOpts{
			Namespace: "soilnode",
			Name:      "unknown_device_events_total",
			Help:      "Soil events discarded because the device address is not known",
		}),
		mode: prom.NewGauge(prom.GaugeOpts{
			Namespace: "soilnode",
			Name:      "normal_mode",
			Help:      "1 once the node left service mode",
		}),
	}
	reg.MustRegister(m.published, m.suppressed, m.readFailures, m.publishErrors, m.unknownDevices, m.mode)
	return m
}

func (m *Metrics) IncPublished(metric entities.Metric, reason policy.Reason) {
	if m == nil {
		return
	}
	r := string(reason)
	if r == "" {
		r = "unconditional"
	}
	m.published.WithLabelValues(string(metric), r).Inc()
}

func (m *Metrics) IncSuppressed(metric entities.Metric) {
	if m == nil {
		return
	}
	m.suppressed.WithLabelValues(string(metric)).Inc()
}

func (m *Metrics) IncReadFailure(metric entities.Metric) {
	if m == nil {
		return
	}
	m.readFailures.WithLabelValues(string(metric)).Inc()
}

func (m *Metrics) IncPublishError(metric entities.Metric) {
	if m == nil {
		return
	}
	m.publishErrors.WithLabelValues(string(metric)).Inc()
}

func (m *Metrics) IncUnknownDevice() {
	if m == nil {
		return
	}
	m.unknownDevices.Inc()
}

func (m *Metrics) SetMode(mode entities.Mode) {
	if m == nil {
		return
	}
	m.mode.Set(float64(mode))
}
