package sma_modbus

import (
	"fmt"

	"github.com/simonvetter/modbus"
)

type Encoding int

const (
	U16 Encoding = iota
	S16
	U32
	S32
)

// SMA "not a number" markers
const (
	NaN_U16 uint32 = 0xFFFF
	NaN_S16 uint32 = 0x8000
	NaN_U32 uint32 = 0xFFFFFFFF
	NaN_S32 uint32 = 0x80000000
)

func (e Encoding) registers() uint16 {
	if e == U32 || e == S32 {
		return 2
	}
	return 1
}

func (e Encoding) String() string {
	switch e {
	case U16:
		return "U16"
	case S16:
		return "S16"
	case U32:
		return "U32"
	case S32:
		return "S32"
	}
	return fmt.Sprintf("Encoding(%d)", int(e))
}

// RegisterDescriptor describes one value held in holding registers.
// A raw value equal to NaN (when HasNaN is set) means the device has no value.
type RegisterDescriptor struct {
	Name     string
	Device   string
	Address  uint16
	Encoding Encoding
	NaN      uint32
	HasNaN   bool
}

// RegisterValue is the decoded result of reading a RegisterDescriptor.
type RegisterValue struct {
	Descriptor RegisterDescriptor
	Value      int64
	Valid      bool
	Err        error
}

// Decode applies the NaN marker and the signedness of the descriptor to a raw value.
func (d RegisterDescriptor) Decode(raw uint32) (int64, bool) {
	if d.HasNaN && raw == d.NaN {
		return 0, false
	}
	switch d.Encoding {
	case S16:
		return int64(int16(uint16(raw))), true
	case U16:
		return int64(uint16(raw)), true
	case S32:
		return int64(int32(raw)), true
	default:
		return int64(raw), true
	}
}

// ReadRegister reads and decodes one descriptor.
func (c *ModbusClient) ReadRegister(d RegisterDescriptor) RegisterValue {
	var raw uint32
	var err error
	if d.Encoding.registers() == 2 {
		raw, err = c.readUint32(d.Address, modbus.HOLDING_REGISTER)
	} else {
		var r16 uint16
		r16, err = c.readRegister(d.Address, modbus.HOLDING_REGISTER)
		raw = uint32(r16)
	}
	if err != nil {
		return RegisterValue{Descriptor: d, Err: err}
	}
	value, valid := d.Decode(raw)
	return RegisterValue{Descriptor: d, Value: value, Valid: valid}
}
