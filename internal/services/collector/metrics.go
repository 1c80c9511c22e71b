package collector

import (
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/sony/gobreaker"
)

// Metrics is nil-safe.
type Metrics struct {
	ingested    *prom.CounterVec
	dropped     *prom.CounterVec
	writeErrors prom.Counter
	breaker     prom.Gauge
}

func NewMetrics(reg prom.Registerer) *Metrics {
	m := &Metrics{
		ingested: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "soilnode",
			Subsystem: "collector",
			Name:      "ingested_total",
			Help:      "Readings accepted, by metric",
		}, []string{"metric"}),
		dropped: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "soilnode",
			Subsystem: "collector",
			Name:      "dropped_total",
			Help:      "Messages dropped, by reason",
		}, []string{"reason"}),
		writeErrors: prom.NewCounter(prom.CounterOpts{
			Namespace: "soilnode",
			Subsystem: "collector",
			Name:      "write_errors_total",
			Help:      "InfluxDB writes that failed or were skipped by the breaker",
		}),
		breaker: prom.NewGauge(prom.GaugeOpts{
			Namespace: "soilnode",
			Subsystem: "collector",
			Name:      "breaker_state",
			Help:      "Sink breaker state: 0 closed, 1 half-open, 2 open",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.ingested, m.dropped, m.writeErrors, m.breaker)
	}
	return m
}

func (m *Metrics) incIngested(metric string) {
	if m != nil {
		m.ingested.WithLabelValues(metric).Inc()
	}
}

func (m *Metrics) incDropped(reason string) {
	if m != nil {
		m.dropped.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) incWriteError() {
	if m != nil {
		m.writeErrors.Inc()
	}
}

func (m *Metrics) setBreaker(s gobreaker.State) {
	if m != nil {
		m.breaker.Set(float64(s))
	}
}
