package events

import (
	. "github.com/berfenger/wallbox2mqtt/internal/core/domain"
)

// SnapshotToUpdateEvents maps the solar system signals of a snapshot to sensor events.
func SnapshotToUpdateEvents(snapshot Snapshot) []any {
	var events []any

	events = append(events, WattsUpdate(SENSOR_ID_GRID_POWER, snapshot.GridPowerW))
	events = append(events, WattsUpdate(SENSOR_ID_METER_POWER, snapshot.MeterPowerW))
	events = append(events, WattsUpdate(SENSOR_ID_PV_POWER, snapshot.PVPowerW))
	events = append(events, WattsUpdate(SENSOR_ID_PV_STRING1_POWER, snapshot.PVStringPowerW[0]))
	events = append(events, WattsUpdate(SENSOR_ID_PV_STRING2_POWER, snapshot.PVStringPowerW[1]))
	events = append(events, WattsUpdate(SENSOR_ID_PV_STRING3_POWER, snapshot.PVStringPowerW[2]))
	events = append(events, WattsUpdate(SENSOR_ID_BATTERY_POWER, snapshot.Battery.PowerW))
	events = append(events, WattsUpdate(SENSOR_ID_BATTERY_SOC, snapshot.Battery.StateOfCharge))
	events = append(events, WattsUpdate(SENSOR_ID_HOUSE_POWER, snapshot.HouseConsumptionW()))

	return events
}

func ChargerStateToUpdateEvents(state ChargerState) []any {
	return []any{
		TextUpdate(SENSOR_ID_CHARGER_STATE, state.Connection.String()),
		WattsUpdate(SENSOR_ID_CHARGER_CURRENT_LIMIT, state.CurrentLimitA),
	}
}

// TickResultToUpdateEvents publishes the excess power and the decision of a
// regulation cycle. The limit is only reported when it was written.
func TickResultToUpdateEvents(result ChargeControlTickResult) []any {
	events := []any{
		ChargeControlTickEvent{Result: result},
		WattsUpdate(SENSOR_ID_EXCESS_POWER, result.ExcessPowerW),
		TextUpdate(SENSOR_ID_REGULATION_ACTION, string(result.Action)),
	}
	if result.Write {
		events = append(events, WattsUpdate(SENSOR_ID_CHARGER_CURRENT_LIMIT, result.NewLimitA))
	}
	return events
}

func SolarOnlySwitchUpdateEvent(enabled bool) any {
	return SwitchUpdate(SWITCH_ID_SOLAR_ONLY_CHARGING, enabled)
}

var sensorSignals = map[Signal]string{
	SignalGridPower:      SENSOR_ID_GRID_POWER,
	SignalMeterPower:     SENSOR_ID_METER_POWER,
	SignalPVPower:        SENSOR_ID_PV_POWER,
	SignalPVString1Power: SENSOR_ID_PV_STRING1_POWER,
	SignalPVString2Power: SENSOR_ID_PV_STRING2_POWER,
	SignalPVString3Power: SENSOR_ID_PV_STRING3_POWER,
	SignalBatteryPower:   SENSOR_ID_BATTERY_POWER,
	SignalBatterySoC:     SENSOR_ID_BATTERY_SOC,
}

// SignalReadingsToUpdateEvents maps the valid readings of solar system signals
// to sensor events. Charger signals and failed readings are skipped.
func SignalReadingsToUpdateEvents(readings []SignalReading) []any {
	var events []any
	for _, r := range readings {
		if r.Err != nil || !r.Reading.Valid {
			continue
		}
		if id, ok := sensorSignals[r.Signal]; ok {
			events = append(events, WattsUpdate(id, r.Reading.Value))
		}
	}
	return events
}
