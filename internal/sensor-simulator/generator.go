package sensor_simulator

import (
	"math/rand"
	"sync"
	"time"

	"github.com/chewxy/math32"
)

// ====== Tunables ======
const (
	// gainPerMin: +0.6% per minute of rain or irrigation (in [0..1]).
	gainPerMin float32 = 0.006

	// defaultSeed: initial moisture of a fresh probe.
	defaultSeed float32 = 0.30

	// dryRaw/wetRaw: capacitance counts of the probe in air and in water.
	dryRaw float32 = 820
	wetRaw float32 = 340

	// rainChance: probability per sample that a shower starts.
	rainChance = 0.002
)

// Sample is one synthetic reading of a soil probe.
type Sample struct {
	Temperature float32 // °C
	Raw         uint16
	Moisture    float32 // percent, 0..100
}

// DataGenerator keeps the moisture state of one probe and evolves it over time.
type DataGenerator struct {
	mu           sync.Mutex
	rng          *rand.Rand
	seeded       bool
	last         time.Time
	moisture     float32 // [0..1]
	decayPerMin  float32 // e.g. 0.001 → -0.1%/min while dry
	rain         float64 // chance per sample of a shower
	pendingBoost float32
	// offset shifts the daily temperature curve so probes do not read identical values.
	offset float32
}

// NewDataGenerator creates a generator with the given dry decay per minute.
func NewDataGenerator(decayPerMin float32, rng *rand.Rand) *DataGenerator {
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}
	return &DataGenerator{
		rng:         rng,
		decayPerMin: math32.Max(0, decayPerMin),
		rain:        rainChance,
		offset:      float32(rng.Float64()*2 - 1),
	}
}

// DecayForHalfLife converts a moisture half-life into a per-minute decay rate.
func DecayForHalfLife(halfLife time.Duration) float32 {
	if halfLife <= 0 {
		return 0
	}
	return math32.Ln2 / float32(halfLife.Minutes())
}

// Next advances the model to now and returns a fresh sample.
func (g *DataGenerator) Next(now time.Time) Sample {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.seeded {
		g.moisture = clamp01(defaultSeed + g.pendingBoost)
		g.pendingBoost = 0
		g.last = now
		g.seeded = true
	}

	dtMin := float32(now.Sub(g.last).Minutes())
	if dtMin < 0 {
		dtMin = 0
	}
	g.moisture = clamp01(g.moisture - g.moisture*g.decayPerMin*dtMin)
	if dtMin > 0 && g.rng.Float64() < g.rain {
		g.moisture = clamp01(g.moisture + gainPerMin*float32(10+g.rng.Intn(50)))
	}
	g.last = now

	return Sample{
		Temperature: soilTemperature(now, g.offset) + g.noise(0.05),
		Raw:         rawFromMoisture(g.moisture),
		Moisture:    math32.Round(g.moisture*1000) / 10,
	}
}

// ApplyIrrigation adds the water of d minutes of irrigation. Before the first
// sample the boost is accumulated and applied on seeding.
func (g *DataGenerator) ApplyIrrigation(d time.Duration) {
	if g == nil || d <= 0 {
		return
	}
	inc := gainPerMin * float32(d.Minutes())
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.seeded {
		g.pendingBoost += inc
		return
	}
	g.moisture = clamp01(g.moisture + inc)
}

func (g *DataGenerator) noise(amp float32) float32 {
	return float32(g.rng.Float64()*2-1) * amp
}

// ===== Helpers =====

// dailyCurve is -1 at 03:00 and +1 at 15:00 local time.
func dailyCurve(t time.Time) float32 {
	h := float32(t.Hour()) + float32(t.Minute())/60
	return math32.Sin(2 * math32.Pi * (h - 9) / 24)
}

// AmbientTemperature is the synthetic air temperature at t.
func AmbientTemperature(t time.Time) float32 {
	return 19 + 6*dailyCurve(t)
}

// soil lags and damps the air swing
func soilTemperature(t time.Time, offset float32) float32 {
	return 16 + 2.5*dailyCurve(t.Add(-2*time.Hour)) + offset
}

func rawFromMoisture(m float32) uint16 {
	return uint16(math32.Round(dryRaw - clamp01(m)*(dryRaw-wetRaw)))
}

func clamp01(x float32) float32 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}
