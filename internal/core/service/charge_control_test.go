package service

import (
	"math/rand/v2"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/berfenger/wallbox2mqtt/internal/core/domain"
	"github.com/berfenger/wallbox2mqtt/internal/core/port"
	"github.com/berfenger/wallbox2mqtt/internal/core/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	MAX_LOOP_ITER = 100
)

var ctrl = &DefaultChargeControlLogic{
	Regulation: domain.DefaultRegulationConfig(),
	Logger:     zap.Must(zap.NewDevelopment()),
}

// battery below reserve keeps its charge power, paused charger stays paused
func TestBatteryPriorityBelowReserve(t *testing.T) {

	require := require.New(t)

	s := snap(-300, -1500, 85, domain.ConnectionConnected, 0)

	require.Equal(100, CalculateExcessPower(s, ctrl.Regulation))

	r := ctrl.Loop(s)
	require.False(r.Write)
	require.Equal(domain.ActionNone, r.Action)
	require.Equal(0, r.NewLimitA)
}

// battery above reserve lends its charge power, still not enough to start
func TestBatteryAboveReserveNotEnoughToStart(t *testing.T) {

	require := require.New(t)

	s := snap(-300, -1500, 95, domain.ConnectionConnected, 0)

	require.Equal(1600, CalculateExcessPower(s, ctrl.Regulation))

	r := ctrl.Loop(s)
	require.False(r.Write)
	require.Equal(0, r.NewLimitA)
}

// large export from the minimum current saturates at max
func TestIncreaseSaturatesAtMax(t *testing.T) {

	require := require.New(t)

	s := snap(-5000, 0, 50, domain.ConnectionCharging, 6)

	require.Equal(4800, CalculateExcessPower(s, ctrl.Regulation))

	r := ctrl.Loop(s)
	require.True(r.Write)
	require.Equal(domain.ActionIncrease, r.Action)
	require.Equal(16, r.NewLimitA)
}

// a decrease below the minimum pauses charging
func TestDecreaseBelowMinPauses(t *testing.T) {

	require := require.New(t)

	s := snap(1000, 0, 50, domain.ConnectionCharging, 7)

	require.Equal(-1200, CalculateExcessPower(s, ctrl.Regulation))

	r := ctrl.Loop(s)
	require.True(r.Write)
	require.Equal(domain.ActionPause, r.Action)
	require.Equal(0, r.NewLimitA)
}

// a disconnected vehicle is left alone regardless of excess power
func TestDisconnectedTakesNoAction(t *testing.T) {

	require := require.New(t)

	for _, state := range []domain.ConnectionState{domain.ConnectionUnavailable, domain.ConnectionDisconnected,
		domain.ConnectionError, domain.ConnectionFault} {
		s := snap(-10000, 0, 100, state, 0)

		require.False(ctrl.NeedsCurrentLimit(s), "no limit read in state %s", state)
		r := ctrl.Loop(s)
		require.False(r.Write, "no write in state %s", state)
		require.Equal(domain.ActionSkipDisconnected, r.Action)
	}
}

// One cycle per row, limits in A, powers in W.
func TestRegulationCycles(t *testing.T) {

	tests := []struct {
		name      string
		grid      int
		battery   int
		soc       int
		state     domain.ConnectionState
		limit     int
		excess    int
		write     bool
		action    domain.ChargeControlAction
		wantLimit int
	}{
		{"small export stays paused", -300, 0, 50, domain.ConnectionConnected, 0, 100, false, domain.ActionNone, 0},
		{"large export starts at minimum", -5000, 0, 50, domain.ConnectionCharging, 0, 4800, true, domain.ActionStart, 6},
		{"large export from minimum saturates", -5000, 0, 50, domain.ConnectionCharging, 6, 4800, true, domain.ActionIncrease, 16},
		{"import with charging battery below reserve steps down", 200, -1500, 60, domain.ConnectionCharging, 10, -400, true, domain.ActionDecrease, 9},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := snap(tt.grid, tt.battery, tt.soc, tt.state, tt.limit)
			assert.Equal(t, tt.excess, CalculateExcessPower(s, ctrl.Regulation))
			require.True(t, ctrl.NeedsCurrentLimit(s))

			r := ctrl.Loop(s)
			assert.Equal(t, tt.write, r.Write)
			assert.Equal(t, tt.action, r.Action)
			assert.Equal(t, tt.wantLimit, r.NewLimitA)
		})
	}

	// disconnected: the limit is neither read nor written
	s := snap(-5000, 0, 50, domain.ConnectionDisconnected, 0)
	assert.False(t, ctrl.NeedsCurrentLimit(s))
	assert.False(t, ctrl.Loop(s).Write)
}

// Above the reserve, excess power never decreases when the home battery
// charges harder.
func TestExcessPowerMonotonicInBatteryCharge(t *testing.T) {

	rnd := rand.New(rand.NewPCG(5, 6))
	cfg := ctrl.Regulation
	for i := 0; i < 2000; i++ {
		battery := rnd.IntN(10000) - 5000
		soc := cfg.HomeBatteryMinSoC + rnd.IntN(101-cfg.HomeBatteryMinSoC)
		grid := rnd.IntN(20000) - 10000
		delta := rnd.IntN(5000)

		a := CalculateExcessPower(snap(grid, battery, soc, domain.ConnectionCharging, 0), cfg)
		b := CalculateExcessPower(snap(grid, battery-delta, soc, domain.ConnectionCharging, 0), cfg)
		require.GreaterOrEqual(t, b, a, "grid=%d delta=%d battery=%d soc=%d", grid, delta, battery, soc)
	}
}

func TestStartFromPauseAtThreshold(t *testing.T) {

	require := require.New(t)

	// excess = 2960 - 200 = 2760 = minStartPower
	r := ctrl.Loop(snap(-2960, 0, 50, domain.ConnectionConnected, 0))
	require.True(r.Write)
	require.Equal(domain.ActionStart, r.Action)
	require.Equal(6, r.NewLimitA)

	// one watt short
	r = ctrl.Loop(snap(-2959, 0, 50, domain.ConnectionConnected, 0))
	require.False(r.Write)
}

func TestSmallExcessHolds(t *testing.T) {

	require := require.New(t)

	// excess = 459W, less than one ampere
	r := ctrl.Loop(snap(-659, 0, 50, domain.ConnectionCharging, 10))
	require.False(r.Write)
	require.Equal(domain.ActionHold, r.Action)

	// excess = 0W
	r = ctrl.Loop(snap(-200, 0, 50, domain.ConnectionCharging, 10))
	require.False(r.Write)
	require.Equal(domain.ActionHold, r.Action)

	// excess = -1W rounds up to one ampere
	r = ctrl.Loop(snap(-199, 0, 50, domain.ConnectionCharging, 10))
	require.True(r.Write)
	require.Equal(domain.ActionDecrease, r.Action)
	require.Equal(9, r.NewLimitA)
}

func TestSaturatedAtMaxDoesNotWrite(t *testing.T) {

	r := ctrl.Loop(snap(-8000, 0, 50, domain.ConnectionCharging, 16))
	assert.False(t, r.Write)
	assert.Equal(t, domain.ActionSaturated, r.Action)
}

func TestOutOfRangeLimitIsRestored(t *testing.T) {

	require := require.New(t)

	// between pause and min with no start power: back to pause
	r := ctrl.Loop(snap(0, 0, 50, domain.ConnectionCharging, 3))
	require.True(r.Write)
	require.Equal(0, r.NewLimitA)

	// above max with surplus: back to max
	r = ctrl.Loop(snap(-8000, 0, 50, domain.ConnectionCharging, 20))
	require.True(r.Write)
	require.Equal(16, r.NewLimitA)
}

func TestStaleSignalsSkipCycle(t *testing.T) {

	require := require.New(t)

	clk := clock.NewMock()
	s := store.NewSignalStore(clk, true)
	s.UpdateAll(readings(-5000, 0, 50, domain.ConnectionCharging, 6))

	logic := &DefaultChargeControlLogic{
		Regulation:   domain.DefaultRegulationConfig(),
		MaxSignalAge: 30 * time.Second,
		Logger:       zap.Must(zap.NewDevelopment()),
	}

	clk.Add(10 * time.Second)
	r := logic.Loop(s.Snapshot())
	require.True(r.Write, "fresh signals are regulated")

	clk.Add(30 * time.Second)
	r = logic.Loop(s.Snapshot())
	require.False(r.Write)
	require.Equal(domain.ActionSkipStale, r.Action)

	// a new grid reading alone is not enough
	s.Update(domain.SignalGridPower, domain.ValidReading(-5000))
	r = logic.Loop(s.Snapshot())
	require.Equal(domain.ActionSkipStale, r.Action)
}

func TestModeRoundTrip(t *testing.T) {

	require := require.New(t)

	s := store.NewSignalStore(clock.NewMock(), true)
	gate := NewModeGate(s)
	s.UpdateAll(readings(0, 0, 50, domain.ConnectionCharging, 8))

	require.True(gate.SetSolarOnly(false))
	require.False(gate.SetSolarOnly(false), "setting the same mode is not a change")

	r := ctrl.Loop(s.Snapshot())
	require.True(ctrl.NeedsCurrentLimit(s.Snapshot()))
	require.True(r.Write)
	require.Equal(domain.ActionForceMax, r.Action)
	require.Equal(16, r.NewLimitA)

	// wallbox accepted the write
	s.Update(domain.SignalCurrentLimit, domain.ValidReading(r.NewLimitA))
	r = ctrl.Loop(s.Snapshot())
	require.False(r.Write, "no write once the limit is max")

	// back to solar-only: the regulator resumes from the last limit
	require.True(gate.SetSolarOnly(true))
	r = ctrl.Loop(s.Snapshot())
	require.True(r.Write)
	require.Equal(domain.ActionDecrease, r.Action)
	require.Equal(16, r.PreviousLimitA)
	require.Equal(15, r.NewLimitA)
}

func TestUnrestrictedModeIgnoresConnectionState(t *testing.T) {

	s := snap(0, 0, 50, domain.ConnectionDisconnected, 6)
	s.SolarOnly = false

	r := ctrl.Loop(s)
	assert.True(t, r.Write)
	assert.Equal(t, 16, r.NewLimitA)
}

// Excess power never decreases when grid export grows, whatever the battery does.
func TestExcessPowerMonotonicInGridExport(t *testing.T) {

	rnd := rand.New(rand.NewPCG(1, 2))
	cfg := ctrl.Regulation
	for i := 0; i < 2000; i++ {
		battery := rnd.IntN(10000) - 5000
		soc := rnd.IntN(101)
		grid := rnd.IntN(20000) - 10000
		delta := rnd.IntN(5000)

		a := CalculateExcessPower(snap(grid, battery, soc, domain.ConnectionCharging, 0), cfg)
		b := CalculateExcessPower(snap(grid-delta, battery, soc, domain.ConnectionCharging, 0), cfg)
		require.GreaterOrEqual(t, b, a, "grid=%d delta=%d battery=%d soc=%d", grid, delta, battery, soc)
	}
}

// Any sequence of inputs keeps the limit inside {0} ∪ [6, 16].
func TestLimitStaysWithinBounds(t *testing.T) {

	require := require.New(t)

	rnd := rand.New(rand.NewPCG(3, 4))
	limit := 0
	for i := 0; i < 5000; i++ {
		s := snap(rnd.IntN(20000)-10000, rnd.IntN(10000)-5000, rnd.IntN(101), domain.ConnectionCharging, limit)
		r := ctrl.Loop(s)
		require.NotEqual(domain.ActionInvariantViolation, r.Action)
		if r.Write {
			limit = r.NewLimitA
		}
		require.True(ctrl.Regulation.IsValidLimit(limit), "limit %d out of bounds", limit)
	}
}

// With constant inputs the limit converges and then stops being written.
func TestWriteIdempotence(t *testing.T) {

	require := require.New(t)

	for _, grid := range []int{-8000, -3000, -700, 0, 1500} {
		limit := 6
		writes := 0
		for i := 0; i < MAX_LOOP_ITER; i++ {
			r := ctrl.Loop(snap(grid, 0, 50, domain.ConnectionCharging, limit))
			if !r.Write {
				break
			}
			require.NotEqual(limit, r.NewLimitA, "a write always changes the limit")
			limit = r.NewLimitA
			writes++
		}
		require.Less(writes, MAX_LOOP_ITER, "possible infinite loop avoided for grid %d", grid)
		r := ctrl.Loop(snap(grid, 0, 50, domain.ConnectionCharging, limit))
		require.False(r.Write, "steady state for grid %d", grid)
	}
}

func snap(gridW, batteryW, soc int, state domain.ConnectionState, limitA int) domain.Snapshot {
	s := store.NewSignalStore(clock.NewMock(), true)
	s.UpdateAll(readings(gridW, batteryW, soc, state, limitA))
	return s.Snapshot()
}

func readings(gridW, batteryW, soc int, state domain.ConnectionState, limitA int) []domain.SignalReading {
	return []domain.SignalReading{
		{Signal: domain.SignalGridPower, Reading: domain.ValidReading(gridW)},
		{Signal: domain.SignalBatteryPower, Reading: domain.ValidReading(batteryW)},
		{Signal: domain.SignalBatterySoC, Reading: domain.ValidReading(soc)},
		{Signal: domain.SignalChargerState, Reading: domain.ValidReading(int(state))},
		{Signal: domain.SignalCurrentLimit, Reading: domain.ValidReading(limitA)},
	}
}

// ensure interface compliance
var _ port.ChargeControlLogic = ctrl
