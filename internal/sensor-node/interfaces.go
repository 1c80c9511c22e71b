package sensor_node

import (
	"time"

	"github.com/google/uuid"

	"github.com/LeonardoBeccarini/soilnode/internal/model/entities"
)

// IntervalSetter is implemented by every polled sensor driver.
type IntervalSetter interface {
	SetUpdateInterval(d time.Duration)
}

// Thermometer is the core module ambient thermometer.
type Thermometer interface {
	IntervalSetter
	TemperatureCelsius() (float32, bool)
}

// SoilSensor is a bus with up to N soil probes, addressed by their 64-bit id.
type SoilSensor interface {
	IntervalSetter
	IndexByAddress(addr entities.DeviceAddress) (int, bool)
	TemperatureCelsius(addr entities.DeviceAddress) (float32, bool)
	CapacitanceRaw(addr entities.DeviceAddress) (uint16, bool)
	MoisturePercent(addr entities.DeviceAddress) (int, bool)
	ErrorCode() int
}

// FloatMoistureReader is the alternative moisture accessor some drivers expose.
type FloatMoistureReader interface {
	MoisturePercentFloat(addr entities.DeviceAddress) (float32, bool)
}

type Battery interface {
	Voltage() (float32, bool)
}

type LED interface {
	Pulse(d time.Duration)
}

// Publisher is the radio link. Delivery is best-effort.
type Publisher interface {
	Publish(topic string, value any) error
}

// Scheduler runs deferred one-shot tasks.
type Scheduler interface {
	RegisterTask(action func(), delay time.Duration) (uuid.UUID, error)
	UnregisterTask(id uuid.UUID) error
}
