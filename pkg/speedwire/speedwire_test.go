package speedwire

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodePower(t *testing.T) {

	power, err := DecodePower(EncodePower(1234))
	require.NoError(t, err)
	assert.Equal(t, 1234, power)

	power, err = DecodePower(EncodePower(-850))
	require.NoError(t, err)
	assert.Equal(t, -850, power)

	// halves round to even
	for _, tt := range []struct {
		raw  [4]byte
		want int
	}{
		{[4]byte{0x00, 0x00, 0x30, 0x39}, 1234}, // 12345 dW
		{[4]byte{0x00, 0x00, 0x00, 0x23}, 4},    // 35 dW
		{[4]byte{0xFF, 0xFF, 0xFF, 0xE7}, -2},   // -25 dW
		{[4]byte{0xFF, 0xFF, 0xFF, 0xE6}, -3},   // -26 dW
	} {
		d := EncodePower(0)
		copy(d[52:56], tt.raw[:])
		power, err = DecodePower(d)
		require.NoError(t, err)
		assert.Equal(t, tt.want, power, "raw %x", tt.raw)
	}
}

func TestDecodePowerErrors(t *testing.T) {

	_, err := DecodePower([]byte("XYZ"))
	assert.ErrorIs(t, err, ErrNotSpeedwire)

	_, err = DecodePower(EncodePower(100)[:40])
	assert.ErrorIs(t, err, ErrShortDatagram)

	_, err = DecodePower(nil)
	assert.ErrorIs(t, err, ErrNotSpeedwire)
}

func TestListenerReceive(t *testing.T) {

	l, err := Listen("127.0.0.1:0", "")
	require.NoError(t, err)
	defer l.Close()

	conn, err := net.DialUDP("udp4", nil, l.LocalAddr().(*net.UDPAddr))
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte("not a meter"))
	require.NoError(t, err)
	_, err = conn.Write(EncodePower(-2100))
	require.NoError(t, err)

	m, ok, err := l.Receive(2 * time.Second)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, -2100, m.PowerW)
	assert.Equal(t, "127.0.0.1", m.SourceIP)
}

func TestListenerTimeoutIsNotAnError(t *testing.T) {

	l, err := Listen("127.0.0.1:0", "")
	require.NoError(t, err)
	defer l.Close()

	start := time.Now()
	_, ok, err := l.Receive(50 * time.Millisecond)
	assert.NoError(t, err)
	assert.False(t, ok)
	assert.Less(t, time.Since(start), 2*time.Second)
}
