package sma_modbus

import (
	"errors"
	"fmt"
	"time"
)

const (
	DEVICE_TRIPOWER     = "tripower"
	DEVICE_SUNNY_ISLAND = "sunny_island"

	REGISTER_TRIPOWER_TOTAL_POWER = "tripower_total_power"
	REGISTER_TRIPOWER_STR1_POWER  = "tripower_str1_power"
	REGISTER_TRIPOWER_STR2_POWER  = "tripower_str2_power"
	REGISTER_TRIPOWER_STR3_POWER  = "tripower_str3_power"
	REGISTER_BATTERY_POWER        = "battery_power"
	REGISTER_BATTERY_SOC          = "battery_soc"
)

// DefaultSMARegisters is the register map of a Sunny Tripower (PV) paired with
// a Sunny Island (battery).
func DefaultSMARegisters() []RegisterDescriptor {
	return []RegisterDescriptor{
		{Name: REGISTER_TRIPOWER_TOTAL_POWER, Device: DEVICE_TRIPOWER, Address: 30775, Encoding: U32, NaN: NaN_S32, HasNaN: true},
		{Name: REGISTER_TRIPOWER_STR1_POWER, Device: DEVICE_TRIPOWER, Address: 30773, Encoding: U32, NaN: NaN_S32, HasNaN: true},
		{Name: REGISTER_TRIPOWER_STR2_POWER, Device: DEVICE_TRIPOWER, Address: 30961, Encoding: U32, NaN: NaN_S32, HasNaN: true},
		{Name: REGISTER_TRIPOWER_STR3_POWER, Device: DEVICE_TRIPOWER, Address: 30967, Encoding: U32, NaN: NaN_S32, HasNaN: true},
		{Name: REGISTER_BATTERY_POWER, Device: DEVICE_SUNNY_ISLAND, Address: 30775, Encoding: S32, NaN: NaN_S32, HasNaN: true},
		{Name: REGISTER_BATTERY_SOC, Device: DEVICE_SUNNY_ISLAND, Address: 30845, Encoding: U32, NaN: NaN_U32, HasNaN: true},
	}
}

type SMAModbusReader interface {
	Open() error
	Close() error
	ReadAll() []RegisterValue
}

// SMAReader reads a set of register descriptors spread over several devices.
type SMAReader struct {
	clients   map[string]*ModbusClient
	registers []RegisterDescriptor
}

func NewSMAReader(clients []*ModbusClient, registers []RegisterDescriptor) (*SMAReader, error) {
	byName := make(map[string]*ModbusClient, len(clients))
	for _, c := range clients {
		byName[c.Device().Name] = c
	}
	for _, r := range registers {
		if _, ok := byName[r.Device]; !ok {
			return nil, fmt.Errorf("register %s refers to unknown device %q", r.Name, r.Device)
		}
	}
	return &SMAReader{
		clients:   byName,
		registers: registers,
	}, nil
}

func CreateSMAModbusReader(tripower, sunnyIsland Device, timeout time.Duration, instrument ...ModbusInstrument) (SMAModbusReader, error) {
	tripower.Name = DEVICE_TRIPOWER
	sunnyIsland.Name = DEVICE_SUNNY_ISLAND

	var clients []*ModbusClient
	for _, d := range []Device{tripower, sunnyIsland} {
		c, err := NewModbusClient(d, timeout, instrument...)
		if err != nil {
			return nil, err
		}
		clients = append(clients, c)
	}
	return NewSMAReader(clients, DefaultSMARegisters())
}

// Open connects to every device. Devices that are not reachable are retried on
// the next read.
func (r *SMAReader) Open() error {
	var errs []error
	for _, c := range r.clients {
		errs = append(errs, c.Open())
	}
	return errors.Join(errs...)
}

func (r *SMAReader) Close() error {
	var errs []error
	for _, c := range r.clients {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}

// ReadAll reads every register. A failing register does not stop the others.
func (r *SMAReader) ReadAll() []RegisterValue {
	values := make([]RegisterValue, 0, len(r.registers))
	for _, reg := range r.registers {
		values = append(values, r.clients[reg.Device].ReadRegister(reg))
	}
	return values
}

// ensure interface compliance
var _ SMAModbusReader = (*SMAReader)(nil)
