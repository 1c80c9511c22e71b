package sensor_node

import "github.com/LeonardoBeccarini/soilnode/internal/model/entities"

// Event is anything the node reacts to. Collaborators post events with Node.Post;
// the node handles them one at a time, each to completion.
type Event interface {
	eventName() string
}

// ThermometerUpdate signals a fresh ambient temperature sample.
type ThermometerUpdate struct{}

// ThermometerError signals the thermometer failed a measurement.
type ThermometerError struct{}

// SoilUpdate signals fresh samples for one soil probe.
type SoilUpdate struct {
	Address entities.DeviceAddress
}

// SoilError signals a driver-level error on the soil bus.
type SoilError struct {
	Address entities.DeviceAddress
}

type ButtonKind int

const (
	ButtonClick ButtonKind = iota
	ButtonHold
)

func (k ButtonKind) String() string {
	if k == ButtonHold {
		return "hold"
	}
	return "click"
}

type ButtonEvent struct {
	Kind ButtonKind
}

// BatteryUpdate signals the battery module sampled the supply voltage.
type BatteryUpdate struct{}

// modeExpired is posted by the service window timer.
type modeExpired struct{}

type statusRequest struct {
	reply chan Status
}

func (ThermometerUpdate) eventName() string { return "thermometer_update" }
func (ThermometerError) eventName() string  { return "thermometer_error" }
func (SoilUpdate) eventName() string        { return "soil_update" }
func (SoilError) eventName() string         { return "soil_error" }
func (ButtonEvent) eventName() string       { return "button" }
func (BatteryUpdate) eventName() string     { return "battery_update" }
func (modeExpired) eventName() string       { return "mode_expired" }
func (statusRequest) eventName() string     { return "status_request" }
