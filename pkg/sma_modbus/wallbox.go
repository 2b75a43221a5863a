package sma_modbus

import (
	"time"

	"github.com/simonvetter/modbus"
)

const (
	WALLBOX_REGISTER_CHARGING_STATE = 122
	WALLBOX_REGISTER_MAX_CURRENT    = 1000
)

type WallboxModbusClient interface {
	Open() error
	Close() error
	ReadChargingState() (uint16, error)
	ReadMaxCurrent() (uint16, error)
	WriteMaxCurrent(amps uint16) error
}

// WallboxClient talks to a Juice Charger Me over Modbus TCP.
type WallboxClient struct {
	*ModbusClient
}

func CreateWallboxModbusClient(device Device, timeout time.Duration, instrument ...ModbusInstrument) (WallboxModbusClient, error) {
	if device.Name == "" {
		device.Name = "wallbox"
	}
	c, err := NewModbusClient(device, timeout, instrument...)
	if err != nil {
		return nil, err
	}
	return &WallboxClient{ModbusClient: c}, nil
}

// ReadChargingState returns the control pilot state (0 to 6).
func (w *WallboxClient) ReadChargingState() (uint16, error) {
	return w.readRegister(WALLBOX_REGISTER_CHARGING_STATE, modbus.HOLDING_REGISTER)
}

func (w *WallboxClient) ReadMaxCurrent() (uint16, error) {
	return w.readRegister(WALLBOX_REGISTER_MAX_CURRENT, modbus.HOLDING_REGISTER)
}

func (w *WallboxClient) WriteMaxCurrent(amps uint16) error {
	return w.writeRegister(WALLBOX_REGISTER_MAX_CURRENT, amps)
}

// ensure interface compliance
var _ WallboxModbusClient = (*WallboxClient)(nil)
