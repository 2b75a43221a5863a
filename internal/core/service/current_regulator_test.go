package service

import (
	"testing"

	"github.com/berfenger/wallbox2mqtt/internal/core/domain"
	"github.com/stretchr/testify/assert"
)

func TestRegulatorSteps(t *testing.T) {

	r := CurrentRegulator{Config: domain.DefaultRegulationConfig()}

	cases := []struct {
		name   string
		excess int
		limit  int
		next   int
		action domain.ChargeControlAction
	}{
		{"paused below start", 2759, 0, 0, domain.ActionNone},
		{"paused at start", 2760, 0, 6, domain.ActionStart},
		{"paused way above start", 20000, 0, 6, domain.ActionStart},
		{"increase one amp", 460, 8, 9, domain.ActionIncrease},
		{"increase floors", 919, 8, 9, domain.ActionIncrease},
		{"increase capped", 4800, 14, 16, domain.ActionIncrease},
		{"saturated", 4800, 16, 16, domain.ActionSaturated},
		{"hold under one amp", 459, 8, 8, domain.ActionHold},
		{"hold at zero", 0, 8, 8, domain.ActionHold},
		{"decrease ceils", -461, 10, 8, domain.ActionDecrease},
		{"decrease to min", -460, 7, 6, domain.ActionDecrease},
		{"decrease below min pauses", -1, 6, 0, domain.ActionPause},
		{"large deficit pauses", -10000, 16, 0, domain.ActionPause},
		{"between pause and min counts as paused", 100, 4, 0, domain.ActionNone},
		{"above max counts as max", -460, 18, 15, domain.ActionDecrease},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			next, action := r.Step(c.excess, c.limit)
			assert.Equal(t, c.next, next)
			assert.Equal(t, c.action, action)
		})
	}
}

func TestRegulatorCustomConfig(t *testing.T) {

	cfg := domain.RegulationConfig{
		MinCurrentA:       8,
		MaxCurrentA:       32,
		PauseCurrentA:     0,
		PhaseCount:        3,
		PhaseVoltageV:     230,
		PowerBufferW:      0,
		HomeBatteryMinSoC: 50,
	}
	r := CurrentRegulator{Config: cfg}

	next, action := r.Step(cfg.MinStartPowerW(), 0)
	assert.Equal(t, 8, next)
	assert.Equal(t, domain.ActionStart, action)

	next, _ = r.Step(690*30, 8)
	assert.Equal(t, 32, next)
}
