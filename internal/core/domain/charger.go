package domain

import "fmt"

// ConnectionState is the IEC 61851 control pilot state reported by the wallbox.
type ConnectionState int

const (
	ConnectionUnavailable ConnectionState = iota
	ConnectionDisconnected
	ConnectionConnected
	ConnectionCharging
	ConnectionChargingVentilated
	ConnectionError
	ConnectionFault
)

var connectionStateText = map[ConnectionState]string{
	ConnectionUnavailable:        "Not available",
	ConnectionDisconnected:       "A: EV disconnected",
	ConnectionConnected:          "B: EV connected",
	ConnectionCharging:           "C: EV charge",
	ConnectionChargingVentilated: "D: EV charge (ventilation required)",
	ConnectionError:              "E: Error condition",
	ConnectionFault:              "F: Fault condition",
}

func ConnectionStateFromRegister(value uint16) (ConnectionState, error) {
	if value > uint16(ConnectionFault) {
		return ConnectionUnavailable, fmt.Errorf("unknown charger state %d", value)
	}
	return ConnectionState(value), nil
}

// Regulating reports whether the charging current may be regulated in this state.
func (c ConnectionState) Regulating() bool {
	return c == ConnectionConnected || c == ConnectionCharging || c == ConnectionChargingVentilated
}

func (c ConnectionState) String() string {
	if text, ok := connectionStateText[c]; ok {
		return text
	}
	return fmt.Sprintf("Unknown (%d)", int(c))
}
