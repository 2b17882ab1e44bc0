package spot

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/iliyamo/smart-parking/internal/model"
)

// Dwell is an inclusive range of waiting times.
type Dwell struct {
	Min time.Duration
	Max time.Duration
}

func (d Dwell) pick(r *rand.Rand) time.Duration {
	if d.Max <= d.Min {
		return d.Min
	}
	return d.Min + time.Duration(r.Int64N(int64(d.Max-d.Min)+1))
}

// AmbientConfig shapes the simulated traffic: wait Arrive, a car parks, wait
// Stay, it leaves, wait Leave, repeat.
type AmbientConfig struct {
	Enabled bool
	Arrive  Dwell
	Stay    Dwell
	Leave   Dwell
	Seed    uint64 // 0 picks a random seed
}

// DefaultAmbientConfig matches the traffic of a typical street-level spot.
func DefaultAmbientConfig() AmbientConfig {
	return AmbientConfig{
		Enabled: true,
		Arrive:  Dwell{Min: 10 * time.Second, Max: 40 * time.Second},
		Stay:    Dwell{Min: 5 * time.Second, Max: 20 * time.Second},
		Leave:   Dwell{Min: 5 * time.Second, Max: 20 * time.Second},
	}
}

func (c AmbientConfig) withDefaults() AmbientConfig {
	def := DefaultAmbientConfig()
	if c.Arrive == (Dwell{}) {
		c.Arrive = def.Arrive
	}
	if c.Stay == (Dwell{}) {
		c.Stay = def.Stay
	}
	if c.Leave == (Dwell{}) {
		c.Leave = def.Leave
	}
	return c
}

func (c AmbientConfig) rand() *rand.Rand {
	seed := c.Seed
	if seed == 0 {
		seed = rand.Uint64()
	}
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// ambientLoop toggles vacant/occupied while the gate runs.  It never touches a
// reservation-driven status: every change is re-checked against the gate
// under mu.
func (m *Machine) ambientLoop(ctx context.Context) error {
	r := m.ambient.rand()
	for {
		if err := m.gate.Wait(ctx); err != nil {
			return err
		}
		if err := m.sleep(ctx, m.ambient.Arrive.pick(r)); err != nil {
			return err
		}
		m.ambientToggle(ctx, model.StatusVacant, model.StatusOccupied)
		if err := m.sleep(ctx, m.ambient.Stay.pick(r)); err != nil {
			return err
		}
		m.ambientToggle(ctx, model.StatusOccupied, model.StatusVacant)
		if err := m.sleep(ctx, m.ambient.Leave.pick(r)); err != nil {
			return err
		}
	}
}

// ambientToggle moves from -> to unless a reservation owns the spot.
func (m *Machine) ambientToggle(ctx context.Context, from, to model.SpotStatus) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.gate.Suspended() || m.Status() != from {
		return false
	}
	m.applyLocked(ctx, to, sourceAmbient)
	return true
}
