// Package store keeps the latest known value of every monitored signal.
//
// Readers always get a consistent copy through Snapshot. Invalid readings are
// ignored, so a failed read leaves the previous value in place.
package store

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/berfenger/wallbox2mqtt/internal/core/domain"
)

type SignalStore struct {
	mu        sync.RWMutex
	clock     clock.Clock
	values    map[domain.Signal]int
	updatedAt map[domain.Signal]time.Time
	solarOnly bool
}

func NewSignalStore(clk clock.Clock, solarOnly bool) *SignalStore {
	if clk == nil {
		clk = clock.New()
	}
	return &SignalStore{
		clock:     clk,
		values:    make(map[domain.Signal]int, len(domain.AllSignals)),
		updatedAt: make(map[domain.Signal]time.Time, len(domain.AllSignals)),
		solarOnly: solarOnly,
	}
}

// Update sets a signal when the reading is valid. It returns whether the store changed.
func (s *SignalStore) Update(signal domain.Signal, reading domain.Reading) bool {
	if !reading.Valid {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.set(signal, reading.Value, s.clock.Now())
	return true
}

// UpdateAll applies a batch atomically and returns the number of applied readings.
func (s *SignalStore) UpdateAll(readings []domain.SignalReading) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clock.Now()
	applied := 0
	for _, r := range readings {
		if r.Err != nil || !r.Reading.Valid {
			continue
		}
		s.set(r.Signal, r.Reading.Value, now)
		applied++
	}
	return applied
}

func (s *SignalStore) set(signal domain.Signal, value int, at time.Time) {
	s.values[signal] = value
	s.updatedAt[signal] = at
}

func (s *SignalStore) SetSolarOnly(solarOnly bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.solarOnly = solarOnly
}

func (s *SignalStore) SolarOnly() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.solarOnly
}

func (s *SignalStore) Snapshot() domain.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	updatedAt := make(map[domain.Signal]time.Time, len(s.updatedAt))
	for k, v := range s.updatedAt {
		updatedAt[k] = v
	}

	return domain.Snapshot{
		GridPowerW:  s.values[domain.SignalGridPower],
		MeterPowerW: s.values[domain.SignalMeterPower],
		PVPowerW:    s.values[domain.SignalPVPower],
		PVStringPowerW: [3]int{
			s.values[domain.SignalPVString1Power],
			s.values[domain.SignalPVString2Power],
			s.values[domain.SignalPVString3Power],
		},
		Battery: domain.BatteryState{
			PowerW:        s.values[domain.SignalBatteryPower],
			StateOfCharge: s.values[domain.SignalBatterySoC],
		},
		Charger: domain.ChargerState{
			Connection:    domain.ConnectionState(s.values[domain.SignalChargerState]),
			CurrentLimitA: s.values[domain.SignalCurrentLimit],
		},
		SolarOnly: s.solarOnly,
		UpdatedAt: updatedAt,
		TakenAt:   s.clock.Now(),
	}
}
