package serialbridge

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/LeonardoBeccarini/soilnode/internal/model/entities"
	sensornode "github.com/LeonardoBeccarini/soilnode/internal/sensor-node"
)

type frameKind byte

const (
	frameAmbient frameKind = 'T'
	frameSoil    frameKind = 'S'
	frameError   frameKind = 'E'
	frameBattery frameKind = 'B'
	frameButton  frameKind = 'K'
)

// frame is one parsed line from the sensor hub.
type frame struct {
	kind     frameKind
	failed   bool // T,ERR or S,<addr>,ERR
	addr     entities.DeviceAddress
	temp     float32
	raw      uint16
	moisture float32
	code     int
	volts    float32
	button   sensornode.ButtonKind
}

// parseLine parses a line from the hub.
// Formats:
//
//	T,<celsius> | T,ERR
//	S,<address>,<celsius>,<raw>,<moisture> | S,<address>,ERR
//	E,<code>
//	B,<volts>
//	K,click | K,hold
func parseLine(line string) (frame, error) {
	parts := strings.Split(line, ",")
	if len(parts[0]) != 1 {
		return frame{}, fmt.Errorf("invalid frame tag %q", parts[0])
	}
	f := frame{kind: frameKind(parts[0][0])}
	want := map[frameKind]int{frameAmbient: 2, frameSoil: 5, frameError: 2, frameBattery: 2, frameButton: 2}[f.kind]
	if want == 0 {
		return frame{}, fmt.Errorf("unknown frame tag %q", parts[0])
	}

	switch f.kind {
	case frameAmbient:
		if len(parts) == 2 && parts[1] == "ERR" {
			f.failed = true
			return f, nil
		}
	case frameSoil:
		if len(parts) < 2 {
			break
		}
		addr, err := entities.ParseDeviceAddress(parts[1])
		if err != nil {
			return frame{}, fmt.Errorf("invalid address: %w", err)
		}
		f.addr = addr
		if len(parts) == 3 && parts[2] == "ERR" {
			f.failed = true
			return f, nil
		}
	}
	if len(parts) != want {
		return frame{}, fmt.Errorf("invalid %c frame: expected %d comma-separated values, got %d", f.kind, want, len(parts))
	}

	var err error
	switch f.kind {
	case frameAmbient:
		f.temp, err = parseFloat(parts[1])
	case frameSoil:
		if f.temp, err = parseFloat(parts[2]); err != nil {
			break
		}
		var raw uint64
		if raw, err = strconv.ParseUint(parts[3], 10, 16); err != nil {
			err = fmt.Errorf("invalid raw: %w", err)
			break
		}
		f.raw = uint16(raw)
		if f.moisture, err = parseFloat(parts[4]); err == nil && (f.moisture < 0 || f.moisture > 100) {
			err = fmt.Errorf("moisture out of range: %v", f.moisture)
		}
	case frameError:
		if f.code, err = strconv.Atoi(parts[1]); err != nil {
			err = fmt.Errorf("invalid error code: %w", err)
		}
	case frameBattery:
		f.volts, err = parseFloat(parts[1])
	case frameButton:
		switch parts[1] {
		case "click":
			f.button = sensornode.ButtonClick
		case "hold":
			f.button = sensornode.ButtonHold
		default:
			err = fmt.Errorf("invalid button kind %q", parts[1])
		}
	}
	if err != nil {
		return frame{}, err
	}
	return f, nil
}

func parseFloat(s string) (float32, error) {
	v, err := strconv.ParseFloat(s, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid number %q: %w", s, err)
	}
	return float32(v), nil
}
