package messages

import (
	"time"

	"github.com/LeonardoBeccarini/soilnode/internal/model/entities"
)

// Reading is one telemetry value as seen by the collector after topic parsing.
type Reading struct {
	Topic     string                 `json:"topic"`
	DeviceID  string                 `json:"device_id,omitempty"` // 16 hex digits, empty for non-soil topics
	Metric    entities.Metric        `json:"metric,omitempty"`
	Value     float64                `json:"value"`
	Timestamp time.Time              `json:"timestamp"`
	Address   entities.DeviceAddress `json:"-"`
}
