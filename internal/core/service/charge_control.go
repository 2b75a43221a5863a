package service

import (
	"fmt"
	"time"

	"github.com/berfenger/wallbox2mqtt/internal/core/domain"
	"github.com/berfenger/wallbox2mqtt/internal/core/port"

	"go.uber.org/zap"
)

type DefaultChargeControlLogic struct {
	Regulation   domain.RegulationConfig
	MaxSignalAge time.Duration
	Logger       *zap.Logger
}

func (c *DefaultChargeControlLogic) Config() domain.RegulationConfig {
	return c.Regulation
}

func (c *DefaultChargeControlLogic) NeedsCurrentLimit(snapshot domain.Snapshot) bool {
	if !snapshot.SolarOnly {
		return true
	}
	return snapshot.Charger.Connection.Regulating()
}

func (c *DefaultChargeControlLogic) Loop(snapshot domain.Snapshot) domain.ChargeControlTickResult {
	cfg := c.Regulation
	limit := snapshot.Charger.CurrentLimitA

	// unrestricted mode: the regulator is bypassed
	if !snapshot.SolarOnly {
		if limit == cfg.MaxCurrentA {
			return c.noWrite(domain.ActionNone, 0, limit, "unrestricted mode, limit already at max")
		}
		return c.checked(domain.ChargeControlTickResult{
			Action:         domain.ActionForceMax,
			PreviousLimitA: limit,
			NewLimitA:      cfg.MaxCurrentA,
			Write:          true,
			Reason:         "unrestricted mode",
		})
	}

	if !snapshot.Charger.Connection.Regulating() {
		return c.noWrite(domain.ActionSkipDisconnected, 0, limit,
			fmt.Sprintf("charger state is %q", snapshot.Charger.Connection))
	}

	if !snapshot.Fresh(c.MaxSignalAge, domain.SignalGridPower, domain.SignalBatteryPower, domain.SignalBatterySoC) {
		c.Logger.Warn("charge_control: signals older than max age, skipping cycle",
			zap.Duration("maxAge", c.MaxSignalAge),
			zap.Duration("gridAge", snapshot.Age(domain.SignalGridPower)),
			zap.Duration("batteryAge", snapshot.Age(domain.SignalBatteryPower)),
			zap.Duration("socAge", snapshot.Age(domain.SignalBatterySoC)))
		return c.noWrite(domain.ActionSkipStale, 0, limit, "stale signals")
	}

	excess := CalculateExcessPower(snapshot, cfg)
	next, action := CurrentRegulator{Config: cfg}.Step(excess, limit)

	c.Logger.Sugar().Debugf("charge_control: excess %dW, limit %dA => %dA (%s)", excess, limit, next, action)

	if next == limit {
		return c.noWrite(action, excess, limit, "limit unchanged")
	}
	return c.checked(domain.ChargeControlTickResult{
		Action:         action,
		ExcessPowerW:   excess,
		PreviousLimitA: limit,
		NewLimitA:      next,
		Write:          true,
	})
}

// checked enforces the limit invariant on every result that would be written.
func (c *DefaultChargeControlLogic) checked(r domain.ChargeControlTickResult) domain.ChargeControlTickResult {
	if r.Write && !c.Regulation.IsValidLimit(r.NewLimitA) {
		c.Logger.Error("charge_control: computed limit breaks invariant, not writing",
			zap.Int("limit", r.NewLimitA), zap.String("action", string(r.Action)))
		return domain.ChargeControlTickResult{
			Action:         domain.ActionInvariantViolation,
			ExcessPowerW:   r.ExcessPowerW,
			PreviousLimitA: r.PreviousLimitA,
			NewLimitA:      r.PreviousLimitA,
			Reason:         fmt.Sprintf("limit %d outside {%d} ∪ [%d, %d]", r.NewLimitA, c.Regulation.PauseCurrentA, c.Regulation.MinCurrentA, c.Regulation.MaxCurrentA),
		}
	}
	return r
}

func (c *DefaultChargeControlLogic) noWrite(action domain.ChargeControlAction, excess, limit int, reason string) domain.ChargeControlTickResult {
	return domain.ChargeControlTickResult{
		Action:         action,
		ExcessPowerW:   excess,
		PreviousLimitA: limit,
		NewLimitA:      limit,
		Reason:         reason,
	}
}

// ensure interface compliance
var _ port.ChargeControlLogic = (*DefaultChargeControlLogic)(nil)
