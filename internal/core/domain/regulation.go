package domain

import (
	"errors"
	"fmt"
)

// RegulationConfig holds the charging thresholds. It is immutable after startup.
type RegulationConfig struct {
	MinCurrentA       int
	MaxCurrentA       int
	PauseCurrentA     int
	PhaseCount        int
	PhaseVoltageV     int
	PowerBufferW      int
	HomeBatteryMinSoC int
}

func DefaultRegulationConfig() RegulationConfig {
	return RegulationConfig{
		MinCurrentA:       6,
		MaxCurrentA:       16,
		PauseCurrentA:     0,
		PhaseCount:        2,
		PhaseVoltageV:     230,
		PowerBufferW:      200,
		HomeBatteryMinSoC: 90,
	}
}

// OneAmpPowerW is the power drawn by one ampere across all phases.
func (c RegulationConfig) OneAmpPowerW() int {
	return c.PhaseCount * c.PhaseVoltageV
}

// MinStartPowerW is the excess needed to leave the paused state.
func (c RegulationConfig) MinStartPowerW() int {
	return c.OneAmpPowerW() * c.MinCurrentA
}

// IsValidLimit reports whether amps lies in {pause} ∪ [min, max].
func (c RegulationConfig) IsValidLimit(amps int) bool {
	return amps == c.PauseCurrentA || (amps >= c.MinCurrentA && amps <= c.MaxCurrentA)
}

func (c RegulationConfig) Validate() error {
	var errs []error
	if c.MinCurrentA <= 0 {
		errs = append(errs, fmt.Errorf("min current must be > 0, got %d", c.MinCurrentA))
	}
	if c.MinCurrentA > c.MaxCurrentA {
		errs = append(errs, fmt.Errorf("min current (%d) must be <= max current (%d)", c.MinCurrentA, c.MaxCurrentA))
	}
	if c.PauseCurrentA < 0 || c.PauseCurrentA >= c.MinCurrentA {
		errs = append(errs, fmt.Errorf("pause current (%d) must be >= 0 and < min current (%d)", c.PauseCurrentA, c.MinCurrentA))
	}
	if c.PhaseCount < 1 {
		errs = append(errs, fmt.Errorf("phase count must be >= 1, got %d", c.PhaseCount))
	}
	if c.PhaseVoltageV <= 0 {
		errs = append(errs, fmt.Errorf("phase voltage must be > 0, got %d", c.PhaseVoltageV))
	}
	if c.PowerBufferW < 0 {
		errs = append(errs, fmt.Errorf("power buffer must be >= 0, got %d", c.PowerBufferW))
	}
	if c.HomeBatteryMinSoC < 0 || c.HomeBatteryMinSoC > 100 {
		errs = append(errs, fmt.Errorf("home battery min SoC must be within [0, 100], got %d", c.HomeBatteryMinSoC))
	}
	return errors.Join(errs...)
}

type ChargeControlAction string

const (
	ActionNone               ChargeControlAction = "none"
	ActionSkipDisconnected   ChargeControlAction = "skip_disconnected"
	ActionSkipStale          ChargeControlAction = "skip_stale"
	ActionStart              ChargeControlAction = "start"
	ActionIncrease           ChargeControlAction = "increase"
	ActionDecrease           ChargeControlAction = "decrease"
	ActionPause              ChargeControlAction = "pause"
	ActionHold               ChargeControlAction = "hold"
	ActionSaturated          ChargeControlAction = "saturated"
	ActionForceMax           ChargeControlAction = "force_max"
	ActionInvariantViolation ChargeControlAction = "invariant_violation"
)

// ChargeControlTickResult is the outcome of one regulation cycle.
// NewLimitA is only meaningful when Write is true.
type ChargeControlTickResult struct {
	Action         ChargeControlAction `json:"action"`
	ExcessPowerW   int                 `json:"excess_power"`
	PreviousLimitA int                 `json:"previous_limit"`
	NewLimitA      int                 `json:"new_limit"`
	Write          bool                `json:"write"`
	Reason         string              `json:"reason,omitempty"`
}
