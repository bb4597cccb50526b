package sensor

import (
	"context"
	"fmt"
	"math/rand"
	"time"
)

// Source produces one set of readings per wake cycle.
//
// Implementations talk to real transducers or synthesize values; either
// way the rest of the node only ever sees a flat name-to-value map.
type Source interface {
	// Readings samples every configured channel. A partial failure
	// returns the channels that did read, plus the error.
	Readings(ctx context.Context) (map[string]float64, error)
}

// Baseline values for the simulated channels.
const (
	baseTemperature = 21.0
	baseHumidity    = 45.0
	baseBattery     = 3.9
)

// Simulated is a Source that synthesizes plausible sensor values, used on
// bench rigs and in CI where no transducers exist.
//
// Values drift slowly around a per-channel baseline rather than being pure
// noise, so dashboards fed from a simulated node look like a real room.
type Simulated struct {
	channels []string
	rng      *rand.Rand
	drift    map[string]float64
}

// NewSimulated returns a simulated source for the given channels. Unknown
// channel names read as slowly drifting values around zero.
func NewSimulated(channels []string) *Simulated {
	return &Simulated{
		channels: channels,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
		drift:    make(map[string]float64),
	}
}

// Readings synthesizes one value per channel.
func (s *Simulated) Readings(_ context.Context) (map[string]float64, error) {
	if len(s.channels) == 0 {
		return nil, fmt.Errorf("sensor: no channels configured")
	}

	out := make(map[string]float64, len(s.channels))
	for _, name := range s.channels {
		s.drift[name] += (s.rng.Float64() - 0.5) * 0.2
		out[name] = baseline(name) + s.drift[name]
	}
	return out, nil
}

// baseline returns the resting value for a known channel.
func baseline(channel string) float64 {
	switch channel {
	case "temperature":
		return baseTemperature
	case "humidity":
		return baseHumidity
	case "battery":
		return baseBattery
	default:
		return 0
	}
}
