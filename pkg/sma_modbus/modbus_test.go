package sma_modbus

import (
	"net"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tbrandon/mbserver"
	"go.uber.org/zap"
)

func TestDecode(t *testing.T) {

	s32 := RegisterDescriptor{Encoding: S32, NaN: NaN_S32, HasNaN: true}
	v, ok := s32.Decode(0xFFFFFA24) // -1500
	assert.True(t, ok)
	assert.Equal(t, int64(-1500), v)

	_, ok = s32.Decode(NaN_S32)
	assert.False(t, ok)

	u32 := RegisterDescriptor{Encoding: U32, NaN: NaN_U32, HasNaN: true}
	v, ok = u32.Decode(72)
	assert.True(t, ok)
	assert.Equal(t, int64(72), v)
	_, ok = u32.Decode(NaN_U32)
	assert.False(t, ok)

	s16 := RegisterDescriptor{Encoding: S16}
	v, ok = s16.Decode(0xFFFF)
	assert.True(t, ok)
	assert.Equal(t, int64(-1), v)
}

func TestSMAReaderReadAll(t *testing.T) {

	tripower := startServer(t)
	setUint32(tripower, 30775, 4200)
	setUint32(tripower, 30773, 2100)
	setUint32(tripower, 30961, 2100)
	setUint32(tripower, 30967, NaN_S32)

	island := startServer(t)
	setUint32(island, 30775, uint32(0xFFFFFA24)) // -1500 W, charging
	setUint32(island, 30845, 72)

	reader, err := CreateSMAModbusReader(
		deviceFor(tripower, 3),
		deviceFor(island, 3),
		time.Second,
		DebugLoggerInstrumentation(zap.NewNop()),
	)
	require.NoError(t, err)
	require.NoError(t, reader.Open())
	defer reader.Close()

	values := map[string]RegisterValue{}
	for _, v := range reader.ReadAll() {
		require.NoError(t, v.Err, v.Descriptor.Name)
		values[v.Descriptor.Name] = v
	}

	assert.Equal(t, int64(4200), values[REGISTER_TRIPOWER_TOTAL_POWER].Value)
	assert.Equal(t, int64(2100), values[REGISTER_TRIPOWER_STR1_POWER].Value)
	assert.False(t, values[REGISTER_TRIPOWER_STR3_POWER].Valid)
	assert.Equal(t, int64(-1500), values[REGISTER_BATTERY_POWER].Value)
	assert.True(t, values[REGISTER_BATTERY_POWER].Valid)
	assert.Equal(t, int64(72), values[REGISTER_BATTERY_SOC].Value)
}

func TestSMAReaderUnknownDevice(t *testing.T) {

	c, err := NewModbusClient(Device{Name: DEVICE_TRIPOWER, Host: "127.0.0.1", Port: 502, UnitId: 3}, time.Second)
	require.NoError(t, err)

	_, err = NewSMAReader([]*ModbusClient{c}, DefaultSMARegisters())
	assert.Error(t, err)
}

func TestWallboxClientRegisters(t *testing.T) {

	server := startServer(t)
	server.HoldingRegisters[WALLBOX_REGISTER_CHARGING_STATE] = 3
	server.HoldingRegisters[WALLBOX_REGISTER_MAX_CURRENT] = 10

	var calls []string
	instrument := ModbusInstrument{
		RecordTime: func(device, fnName string, readTime time.Duration, err error) {
			calls = append(calls, fnName)
		},
	}

	wallbox, err := CreateWallboxModbusClient(deviceFor(server, 1), time.Second, instrument)
	require.NoError(t, err)
	require.NoError(t, wallbox.Open())
	defer wallbox.Close()

	state, err := wallbox.ReadChargingState()
	require.NoError(t, err)
	assert.Equal(t, uint16(3), state)

	limit, err := wallbox.ReadMaxCurrent()
	require.NoError(t, err)
	assert.Equal(t, uint16(10), limit)

	require.NoError(t, wallbox.WriteMaxCurrent(14))
	limit, err = wallbox.ReadMaxCurrent()
	require.NoError(t, err)
	assert.Equal(t, uint16(14), limit)

	assert.Equal(t, []string{"ReadRegister", "ReadRegister", "WriteRegister", "ReadRegister"}, calls)
}

func TestWallboxClientConcurrentExchanges(t *testing.T) {

	server := startServer(t)
	server.HoldingRegisters[WALLBOX_REGISTER_MAX_CURRENT] = 6

	wallbox, err := CreateWallboxModbusClient(deviceFor(server, 1), time.Second)
	require.NoError(t, err)
	defer wallbox.Close()

	var wg sync.WaitGroup
	errs := make(chan error, 40)
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := wallbox.ReadMaxCurrent()
			errs <- err
		}()
		go func() {
			defer wg.Done()
			errs <- wallbox.WriteMaxCurrent(10)
		}()
	}
	// a close in the middle only forces a reconnect
	_ = wallbox.Close()
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}

	limit, err := wallbox.ReadMaxCurrent()
	require.NoError(t, err)
	assert.Equal(t, uint16(10), limit)
}

func TestWallboxClientUnreachable(t *testing.T) {

	port := freePort(t)
	wallbox, err := CreateWallboxModbusClient(Device{Host: "127.0.0.1", Port: port, UnitId: 1}, 200*time.Millisecond)
	require.NoError(t, err)

	_, err = wallbox.ReadChargingState()
	assert.Error(t, err)
	assert.Error(t, wallbox.WriteMaxCurrent(6))
}

func TestTestWallboxClient(t *testing.T) {

	w := NewTestWallboxClient(2, 0)
	require.NoError(t, w.WriteMaxCurrent(6))
	w.SetFailWrites(true)
	assert.Error(t, w.WriteMaxCurrent(7))
	limit, err := w.ReadMaxCurrent()
	require.NoError(t, err)
	assert.Equal(t, uint16(6), limit)
	assert.Equal(t, []uint16{6}, w.Writes())
}

type testServer struct {
	*mbserver.Server
	port uint
}

func startServer(t *testing.T) *testServer {
	t.Helper()
	server := mbserver.NewServer()
	port := freePort(t)
	addr := net.JoinHostPort("127.0.0.1", strconv.Itoa(int(port)))
	require.NoError(t, server.ListenTCP(addr))
	t.Cleanup(server.Close)
	return &testServer{Server: server, port: port}
}

func setUint32(server *testServer, addr int, value uint32) {
	server.HoldingRegisters[addr] = uint16(value >> 16)
	server.HoldingRegisters[addr+1] = uint16(value)
}

func deviceFor(server *testServer, unitId uint8) Device {
	return Device{Host: "127.0.0.1", Port: server.port, UnitId: unitId}
}

func freePort(t *testing.T) uint {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()
	return uint(l.Addr().(*net.TCPAddr).Port)
}
