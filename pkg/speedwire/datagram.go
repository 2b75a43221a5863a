package speedwire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"
)

const (
	DEFAULT_PORT = 9522

	powerOffset = 52
	powerEnd    = powerOffset + 4
)

var (
	magic = []byte("SMA")

	ErrNotSpeedwire  = errors.New("speedwire: datagram does not start with SMA")
	ErrShortDatagram = errors.New("speedwire: datagram too short")
)

// DecodePower returns the power in watts carried by an SMA meter datagram.
// The meter sends deciwatts as a big endian 32-bit value at bytes 52..56.
func DecodePower(datagram []byte) (int, error) {
	if !bytes.HasPrefix(datagram, magic) {
		return 0, ErrNotSpeedwire
	}
	if len(datagram) < powerEnd {
		return 0, ErrShortDatagram
	}
	deciWatt := int32(binary.BigEndian.Uint32(datagram[powerOffset:powerEnd]))
	// half to even, -2.5 W is -2 W
	return int(math.RoundToEven(float64(deciWatt) / 10)), nil
}

// EncodePower builds a minimal datagram carrying powerW.
func EncodePower(powerW int) []byte {
	datagram := make([]byte, powerEnd)
	copy(datagram, magic)
	binary.BigEndian.PutUint32(datagram[powerOffset:powerEnd], uint32(int32(powerW*10)))
	return datagram
}
