package sensor_node

import (
	"sort"
	"time"

	"github.com/LeonardoBeccarini/soilnode/internal/config"
	"github.com/LeonardoBeccarini/soilnode/internal/model/entities"
	"github.com/LeonardoBeccarini/soilnode/internal/policy"
)

// MetricStatus is the publish state of one gated metric.
type MetricStatus struct {
	Metric        entities.Metric
	Device        string // empty for the ambient thermometer
	Published     bool
	LastPublished float64
	NextDeadline  time.Time
}

type Status struct {
	Mode    entities.Mode
	Uptime  time.Duration
	Clicks  int
	Holds   int
	Metrics []MetricStatus
}

func (n *Node) snapshot() Status {
	st := Status{
		Mode:   n.mode.Mode(),
		Uptime: n.deps.Clock.Since(n.started),
		Clicks: n.clicks,
		Holds:  n.holds,
	}
	if n.deps.Thermometer != nil {
		st.Metrics = append(st.Metrics, metricStatus(entities.MetricAmbientTemperature, "", n.ambient.State()))
	}

	addrs := make([]entities.DeviceAddress, 0, len(n.soil))
	for a := range n.soil {
		addrs = append(addrs, a)
	}
	sort.Slice(addrs, func(i, j int) bool { return addrs[i] < addrs[j] })
	for _, a := range addrs {
		g := n.soil[a]
		dev := n.opts.Router.DeviceID(a)
		st.Metrics = append(st.Metrics,
			metricStatus(entities.MetricSoilTemperature, dev, g.temperature.State()),
			metricStatus(entities.MetricRawCapacitance, dev, g.raw.State()),
		)
		if n.opts.PublishMoisture {
			if n.opts.MoistureShape == config.MoistureFloat {
				st.Metrics = append(st.Metrics, metricStatus(entities.MetricSoilMoisture, dev, g.moistureFloat.State()))
			} else {
				st.Metrics = append(st.Metrics, metricStatus(entities.MetricSoilMoisture, dev, g.moisture.State()))
			}
		}
	}
	return st
}

func metricStatus[T policy.Number](m entities.Metric, dev string, s policy.MetricState[T]) MetricStatus {
	return MetricStatus{
		Metric:        m,
		Device:        dev,
		Published:     s.Published,
		LastPublished: float64(s.LastPublished),
		NextDeadline:  s.NextDeadline,
	}
}
