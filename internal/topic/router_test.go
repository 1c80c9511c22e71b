package topic

import (
	"encoding/binary"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LeonardoBeccarini/soilnode/internal/model/entities"
)

func TestSoilTopics(t *testing.T) {
	r := NewRouter(DefaultTemplate(), false)
	addr := entities.DeviceAddress(0x28ff641e8316c302)

	tests := []struct {
		metric entities.Metric
		want   string
	}{
		{entities.MetricSoilTemperature, "soil-sensor/28ff641e8316c302/temperature"},
		{entities.MetricRawCapacitance, "soil-sensor/28ff641e8316c302/raw"},
		{entities.MetricSoilMoisture, "soil-sensor/28ff641e8316c302/moisture"},
	}
	for _, tc := range tests {
		t.Run(string(tc.metric), func(t *testing.T) {
			got, err := r.Soil(addr, tc.metric)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}

	_, err := r.Soil(addr, entities.MetricBattery)
	assert.Error(t, err)
}

func TestDeviceIDIsBigEndianHexOfAddressBytes(t *testing.T) {
	r := NewRouter(DefaultTemplate(), false)
	b := []byte{0x28, 0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0xab}
	addr := entities.DeviceAddress(binary.BigEndian.Uint64(b))
	assert.Equal(t, "28010203040506ab", r.DeviceID(addr))
	assert.Equal(t, "0000000000000001", r.DeviceID(1))
}

func TestSingleSensorUsesPlaceholder(t *testing.T) {
	r := NewRouter(DefaultTemplate(), true)
	got, err := r.Soil(0xdeadbeef, entities.MetricRawCapacitance)
	require.NoError(t, err)
	assert.Equal(t, "soil-sensor/0000000000000000/raw", got)
}

func TestErrorTopic(t *testing.T) {
	assert.Equal(t, "soil-sensor/-/error", NewRouter(DefaultTemplate(), false).Error())
	assert.Equal(t, "soil-sensor/-/error", NewRouter(Template{}, true).Error())
}

func TestDistinctAddressesNeverCollide(t *testing.T) {
	r := NewRouter(DefaultTemplate(), false)
	rng := rand.New(rand.NewSource(7))
	seen := make(map[string]entities.DeviceAddress)
	for i := 0; i < 10000; i++ {
		addr := entities.DeviceAddress(rng.Uint64())
		got, err := r.Soil(addr, entities.MetricSoilTemperature)
		require.NoError(t, err)
		if prev, dup := seen[got]; dup {
			require.Equal(t, prev, addr, "topic %s produced by two addresses", got)
		}
		seen[got] = addr
		again, _ := r.Soil(addr, entities.MetricSoilTemperature)
		require.Equal(t, got, again)
	}
}

func TestParseRoundTrip(t *testing.T) {
	r := NewRouter(DefaultTemplate(), false)
	addr := entities.DeviceAddress(0x0123456789abcdef)
	for _, m := range []entities.Metric{entities.MetricSoilTemperature, entities.MetricRawCapacitance, entities.MetricSoilMoisture} {
		tp, err := r.Soil(addr, m)
		require.NoError(t, err)
		p, ok := r.Parse(tp)
		require.True(t, ok, tp)
		assert.Equal(t, Parsed{Address: addr, Metric: m}, p)
	}

	p, ok := r.Parse("soil-sensor/-/error")
	require.True(t, ok)
	assert.True(t, p.IsError)

	for _, bad := range []string{
		"battery/-/voltage",
		"soil-sensor/0123456789ABCDEF/raw",
		"soil-sensor/0123/raw",
		"soil-sensor/0123456789abcdef/humidity",
		"soil-sensor/0123456789abcdef/raw/extra",
		"soil-sensor/-/raw",
	} {
		_, ok := r.Parse(bad)
		assert.False(t, ok, bad)
	}
}

func TestSubscriptions(t *testing.T) {
	r := NewRouter(DefaultTemplate(), false)
	assert.Equal(t, []string{
		"soil-sensor/#",
		"thermometer/0:1/temperature",
		"push-button/-/event-count",
		"push-button/-/hold-count",
		"battery/-/voltage",
	}, r.Subscriptions())
}

func TestClassify(t *testing.T) {
	r := NewRouter(DefaultTemplate(), false)
	tests := []struct {
		topic string
		want  Parsed
		ok    bool
	}{
		{"thermometer/0:1/temperature", Parsed{Metric: entities.MetricAmbientTemperature}, true},
		{"push-button/-/event-count", Parsed{Metric: entities.MetricButtonClick}, true},
		{"push-button/-/hold-count", Parsed{Metric: entities.MetricButtonHold}, true},
		{"battery/-/voltage", Parsed{Metric: entities.MetricBattery}, true},
		{"soil-sensor/-/error", Parsed{Metric: entities.MetricError, IsError: true}, true},
		{"soil-sensor/28ff6a0b12345601/raw", Parsed{Address: 0x28ff6a0b12345601, Metric: entities.MetricRawCapacitance}, true},
		{"battery/-/current", Parsed{}, false},
		{"", Parsed{}, false},
	}
	for _, tc := range tests {
		got, ok := r.Classify(tc.topic)
		assert.Equal(t, tc.ok, ok, tc.topic)
		assert.Equal(t, tc.want, got, tc.topic)
	}
}
