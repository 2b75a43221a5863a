package service

import (
	"github.com/berfenger/wallbox2mqtt/internal/core/store"
)

// ModeGate switches between solar-only and unrestricted charging. The mode
// lives in the signal store so every cycle reads it from its snapshot.
type ModeGate struct {
	store *store.SignalStore
}

func NewModeGate(s *store.SignalStore) *ModeGate {
	return &ModeGate{store: s}
}

// SetSolarOnly takes effect on the next regulation cycle. It returns whether the mode changed.
func (g *ModeGate) SetSolarOnly(solarOnly bool) bool {
	changed := g.store.SolarOnly() != solarOnly
	g.store.SetSolarOnly(solarOnly)
	return changed
}

func (g *ModeGate) SolarOnly() bool {
	return g.store.SolarOnly()
}
