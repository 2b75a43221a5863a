package service

import (
	"github.com/berfenger/wallbox2mqtt/internal/core/domain"
)

// CurrentRegulator is a hysteretic step controller for the charging current.
// It keeps no state of its own: the current limit reported by the wallbox is
// the state.
//
//	Paused (limit == pause)  --excess >= minStartPower-->  Active (limit == min)
//	Active                   --limit - decrease < min-->   Paused
type CurrentRegulator struct {
	Config domain.RegulationConfig
}

// Step returns the next limit and the transition that produced it.
func (r CurrentRegulator) Step(excessW int, limitA int) (int, domain.ChargeControlAction) {
	cfg := r.Config
	oneAmp := cfg.OneAmpPowerW()
	limit := r.normalize(limitA)

	if limit == cfg.PauseCurrentA {
		if excessW >= cfg.MinStartPowerW() {
			return cfg.MinCurrentA, domain.ActionStart
		}
		return cfg.PauseCurrentA, domain.ActionNone
	}

	if excessW > 0 {
		if limit >= cfg.MaxCurrentA {
			return cfg.MaxCurrentA, domain.ActionSaturated
		}
		increase := excessW / oneAmp
		if increase == 0 {
			return limit, domain.ActionHold
		}
		return min(limit+increase, cfg.MaxCurrentA), domain.ActionIncrease
	}

	// ceil(-excess / oneAmp) on non-negative integers
	decrease := (-excessW + oneAmp - 1) / oneAmp
	if decrease == 0 {
		return limit, domain.ActionHold
	}
	next := limit - decrease
	if next < cfg.MinCurrentA {
		return cfg.PauseCurrentA, domain.ActionPause
	}
	return next, domain.ActionDecrease
}

// normalize maps a reported limit outside {pause} ∪ [min, max] back into it:
// a limit between pause and min counts as paused, a limit above max as max.
func (r CurrentRegulator) normalize(limitA int) int {
	cfg := r.Config
	switch {
	case limitA <= cfg.PauseCurrentA:
		return cfg.PauseCurrentA
	case limitA < cfg.MinCurrentA:
		return cfg.PauseCurrentA
	case limitA > cfg.MaxCurrentA:
		return cfg.MaxCurrentA
	default:
		return limitA
	}
}
