package entities

import (
	"fmt"
	"strconv"
	"time"
)

// DeviceAddress is the 64-bit bus address of a physical soil sensor unit.
type DeviceAddress uint64

// NoAddress stands in for the device address in single-sensor deployments.
const NoAddress DeviceAddress = 0

// String renders the address as 16 lowercase hex digits, most significant byte first.
func (a DeviceAddress) String() string {
	return fmt.Sprintf("%016x", uint64(a))
}

// ParseDeviceAddress is the inverse of DeviceAddress.String.
func ParseDeviceAddress(s string) (DeviceAddress, error) {
	if len(s) != 16 {
		return 0, fmt.Errorf("device address %q: expected 16 hex digits", s)
	}
	v, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("device address %q: %w", s, err)
	}
	return DeviceAddress(v), nil
}

// PollingIntervals holds the two cadences a sensor is polled at.
type PollingIntervals struct {
	Service time.Duration `yaml:"service" json:"service"` // fast cadence right after start-up
	Normal  time.Duration `yaml:"normal" json:"normal"`   // throttled cadence after the service window
}

// For returns the interval that applies in the given mode.
func (p PollingIntervals) For(m Mode) time.Duration {
	if m == ModeNormal {
		return p.Normal
	}
	return p.Service
}
