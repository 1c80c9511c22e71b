package entities

// Metric identifies a monitored quantity with its own publish state.
type Metric string

const (
	MetricAmbientTemperature Metric = "ambient_temperature" // core module thermometer
	MetricSoilTemperature    Metric = "soil_temperature"
	MetricSoilMoisture       Metric = "soil_moisture"
	MetricRawCapacitance     Metric = "raw_capacitance"
	MetricBattery            Metric = "battery"
	MetricError              Metric = "error"
	MetricButtonClick        Metric = "button_click"
	MetricButtonHold         Metric = "button_hold"
)

// Gated reports whether values of m go through the publish policy.
func (m Metric) Gated() bool {
	switch m {
	case MetricAmbientTemperature, MetricSoilTemperature, MetricSoilMoisture, MetricRawCapacitance:
		return true
	}
	return false
}

// TopicSuffix is the last topic segment for per-device soil metrics.
func (m Metric) TopicSuffix() (string, bool) {
	switch m {
	case MetricSoilTemperature:
		return "temperature", true
	case MetricRawCapacitance:
		return "raw", true
	case MetricSoilMoisture:
		return "moisture", true
	}
	return "", false
}

// MetricFromSuffix maps a soil topic suffix back to its metric.
func MetricFromSuffix(s string) (Metric, bool) {
	switch s {
	case "temperature":
		return MetricSoilTemperature, true
	case "raw":
		return MetricRawCapacitance, true
	case "moisture":
		return MetricSoilMoisture, true
	}
	return "", false
}
