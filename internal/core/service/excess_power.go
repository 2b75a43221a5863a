package service

import (
	"github.com/berfenger/wallbox2mqtt/internal/core/domain"
)

// CalculateExcessPower returns the power, in watts, that the EV may draw on
// top of what it already draws. Negative values mean the EV draws too much.
//
// Grid export counts as surplus. A discharging battery counts as deficit. A
// charging battery counts as surplus only once its charge reached the home
// reserve, so the house battery is always filled first.
func CalculateExcessPower(snapshot domain.Snapshot, cfg domain.RegulationConfig) int {
	gridContribution := -snapshot.GridPowerW

	batteryContribution := -snapshot.Battery.PowerW
	if snapshot.Battery.Charging() && snapshot.Battery.StateOfCharge < cfg.HomeBatteryMinSoC {
		batteryContribution = 0
	}

	return gridContribution + batteryContribution - cfg.PowerBufferW
}
