package domain

import "time"

// Signal names one value tracked by the signal store.
type Signal string

const (
	SignalGridPower      Signal = "grid_power"
	SignalMeterPower     Signal = "meter_power"
	SignalPVPower        Signal = "pv_power"
	SignalPVString1Power Signal = "pv_string1_power"
	SignalPVString2Power Signal = "pv_string2_power"
	SignalPVString3Power Signal = "pv_string3_power"
	SignalBatteryPower   Signal = "battery_power"
	SignalBatterySoC     Signal = "battery_soc"
	SignalChargerState   Signal = "charger_state"
	SignalCurrentLimit   Signal = "current_limit"
)

// AllSignals lists every signal in a stable order.
var AllSignals = []Signal{
	SignalGridPower,
	SignalMeterPower,
	SignalPVPower,
	SignalPVString1Power,
	SignalPVString2Power,
	SignalPVString3Power,
	SignalBatteryPower,
	SignalBatterySoC,
	SignalChargerState,
	SignalCurrentLimit,
}

// Reading is the outcome of one read. An invalid reading means "no update":
// the store keeps whatever value it had before.
type Reading struct {
	Value int
	Valid bool
}

func ValidReading(value int) Reading {
	return Reading{Value: value, Valid: true}
}

func NoReading() Reading {
	return Reading{}
}

// SignalReading binds a reading to its signal. Err is set when the reading
// failed at the transport level.
type SignalReading struct {
	Signal  Signal
	Reading Reading
	Err     error
}

// BatteryState holds the home battery flow and charge level.
// Negative power means the battery is charging.
type BatteryState struct {
	PowerW        int
	StateOfCharge int
}

func (b BatteryState) Charging() bool {
	return b.PowerW < 0
}

// ChargerState is what the wallbox last reported.
type ChargerState struct {
	Connection    ConnectionState
	CurrentLimitA int
}

// Snapshot is an immutable copy of the signal store.
type Snapshot struct {
	GridPowerW     int
	MeterPowerW    int
	PVPowerW       int
	PVStringPowerW [3]int
	Battery        BatteryState
	Charger        ChargerState
	SolarOnly      bool

	UpdatedAt map[Signal]time.Time
	TakenAt   time.Time
}

// Age returns how long ago the signal was last updated. A signal that was
// never updated is infinitely old.
func (s Snapshot) Age(signal Signal) time.Duration {
	at, ok := s.UpdatedAt[signal]
	if !ok || at.IsZero() {
		return time.Duration(1<<63 - 1)
	}
	return s.TakenAt.Sub(at)
}

// Fresh reports whether every given signal was updated within maxAge.
// A zero maxAge disables the check.
func (s Snapshot) Fresh(maxAge time.Duration, signals ...Signal) bool {
	if maxAge <= 0 {
		return true
	}
	for _, signal := range signals {
		if s.Age(signal) > maxAge {
			return false
		}
	}
	return true
}

// HouseConsumptionW sums every source feeding the house: PV production,
// the second meter, grid import and battery discharge.
func (s Snapshot) HouseConsumptionW() int {
	return s.PVPowerW + s.MeterPowerW + s.GridPowerW + s.Battery.PowerW
}
