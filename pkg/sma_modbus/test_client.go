package sma_modbus

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

var ErrTestDeviceOffline = errors.New("test device offline")

func CreateTestSMAModbusReader() (SMAModbusReader, error) {
	return NewTestSMAReader(map[string]int64{
		REGISTER_TRIPOWER_TOTAL_POWER: 4200,
		REGISTER_TRIPOWER_STR1_POWER:  2100,
		REGISTER_TRIPOWER_STR2_POWER:  1400,
		REGISTER_TRIPOWER_STR3_POWER:  700,
		REGISTER_BATTERY_POWER:        -1500,
		REGISTER_BATTERY_SOC:          72,
	}), nil
}

func CreateTestWallboxModbusClient() (WallboxModbusClient, error) {
	return NewTestWallboxClient(2, 0), nil
}

// SMA

type TestSMAReader struct {
	mu      sync.Mutex
	values  map[string]int64
	offline bool
}

func NewTestSMAReader(values map[string]int64) *TestSMAReader {
	return &TestSMAReader{values: values}
}

func (r *TestSMAReader) Open() error {
	return nil
}

func (r *TestSMAReader) Close() error {
	return nil
}

func (r *TestSMAReader) Set(name string, value int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.values[name] = value
}

func (r *TestSMAReader) SetOffline(offline bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.offline = offline
}

// ReadAll returns every default register. Registers without a value are
// reported as NaN.
func (r *TestSMAReader) ReadAll() []RegisterValue {
	r.mu.Lock()
	defer r.mu.Unlock()
	var values []RegisterValue
	for _, d := range DefaultSMARegisters() {
		if r.offline {
			values = append(values, RegisterValue{Descriptor: d, Err: ErrTestDeviceOffline})
			continue
		}
		v, ok := r.values[d.Name]
		values = append(values, RegisterValue{Descriptor: d, Value: v, Valid: ok})
	}
	return values
}

// Wallbox

type TestWallboxClient struct {
	mu         sync.Mutex
	state      uint16
	maxCurrent uint16
	writes     []uint16
	failWrites bool
	offline    bool
	delay      time.Duration

	reads       atomic.Int64
	inFlight    atomic.Int32
	maxInFlight atomic.Int32
}

func NewTestWallboxClient(state, maxCurrent uint16) *TestWallboxClient {
	return &TestWallboxClient{state: state, maxCurrent: maxCurrent}
}

func (w *TestWallboxClient) Open() error {
	return nil
}

func (w *TestWallboxClient) Close() error {
	return nil
}

func (w *TestWallboxClient) SetState(state uint16) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.state = state
}

func (w *TestWallboxClient) SetMaxCurrent(amps uint16) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.maxCurrent = amps
}

func (w *TestWallboxClient) SetFailWrites(fail bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.failWrites = fail
}

func (w *TestWallboxClient) SetOffline(offline bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.offline = offline
}

// SetDelay makes every exchange take d, outside the client lock.
func (w *TestWallboxClient) SetDelay(d time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.delay = d
}

// Reads counts charging state reads, one per regulation cycle.
func (w *TestWallboxClient) Reads() int64 {
	return w.reads.Load()
}

// MaxInFlight is the highest number of exchanges seen running at once.
func (w *TestWallboxClient) MaxInFlight() int32 {
	return w.maxInFlight.Load()
}

func (w *TestWallboxClient) exchange() func() {
	n := w.inFlight.Add(1)
	for {
		seen := w.maxInFlight.Load()
		if n <= seen || w.maxInFlight.CompareAndSwap(seen, n) {
			break
		}
	}
	w.mu.Lock()
	delay := w.delay
	w.mu.Unlock()
	time.Sleep(delay)
	return func() { w.inFlight.Add(-1) }
}

// Writes returns every successful write in order.
func (w *TestWallboxClient) Writes() []uint16 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]uint16(nil), w.writes...)
}

func (w *TestWallboxClient) ReadChargingState() (uint16, error) {
	defer w.exchange()()
	w.reads.Add(1)
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.offline {
		return 0, ErrTestDeviceOffline
	}
	return w.state, nil
}

func (w *TestWallboxClient) ReadMaxCurrent() (uint16, error) {
	defer w.exchange()()
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.offline {
		return 0, ErrTestDeviceOffline
	}
	return w.maxCurrent, nil
}

func (w *TestWallboxClient) WriteMaxCurrent(amps uint16) error {
	defer w.exchange()()
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.offline || w.failWrites {
		return ErrTestDeviceOffline
	}
	w.maxCurrent = amps
	w.writes = append(w.writes, amps)
	return nil
}

// ensure interface compliance
var _ SMAModbusReader = (*TestSMAReader)(nil)
var _ WallboxModbusClient = (*TestWallboxClient)(nil)
