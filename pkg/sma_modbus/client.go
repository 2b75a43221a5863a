package sma_modbus

import (
	"fmt"
	"sync"
	"time"

	"github.com/simonvetter/modbus"
	"go.uber.org/zap"
)

// Device addresses one Modbus TCP unit.
type Device struct {
	Name   string
	Host   string
	Port   uint
	UnitId uint8
}

func (d Device) URL() string {
	return fmt.Sprintf("tcp://%s:%d", d.Host, d.Port)
}

// ModbusClient wraps a Modbus TCP connection to a single unit. After a failed
// request the connection is dropped and reopened on the next request.
// Exchanges are serialized: Close waits for the one in progress.
type ModbusClient struct {
	device     Device
	client     *modbus.ModbusClient
	instrument []ModbusInstrument

	mu   sync.Mutex
	open bool
}

type ModbusInstrument struct {
	RecordTime func(device, fnName string, readTime time.Duration, err error)
}

func NewModbusClient(device Device, timeout time.Duration, instrument ...ModbusInstrument) (*ModbusClient, error) {
	client, err := modbus.NewClient(&modbus.ClientConfiguration{
		URL:     device.URL(),
		Timeout: timeout,
	})
	if err != nil {
		return nil, err
	}
	if err = client.SetUnitId(device.UnitId); err != nil {
		return nil, err
	}
	// SMA and the wallbox use big endian, high word first for 32-bit values
	if err = client.SetEncoding(modbus.BIG_ENDIAN, modbus.HIGH_WORD_FIRST); err != nil {
		return nil, err
	}
	return &ModbusClient{
		device:     device,
		client:     client,
		instrument: instrument,
	}, nil
}

func (c *ModbusClient) Device() Device {
	return c.device
}

func (c *ModbusClient) Open() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ensureOpen()
}

func (c *ModbusClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.close()
}

func (c *ModbusClient) close() error {
	if !c.open {
		return nil
	}
	c.open = false
	return c.client.Close()
}

func (c *ModbusClient) ensureOpen() error {
	if c.open {
		return nil
	}
	if err := c.client.Open(); err != nil {
		return fmt.Errorf("modbus %s (%s): %w", c.device.Name, c.device.URL(), err)
	}
	c.open = true
	return nil
}

func (c *ModbusClient) failed(err error) error {
	if err == nil {
		return nil
	}
	_ = c.close()
	return fmt.Errorf("modbus %s: %w", c.device.Name, err)
}

func (c *ModbusClient) readRegister(addr uint16, regType modbus.RegType) (value uint16, err error) {
	defer RecordTimer(c.device.Name, "ReadRegister", c.instrument)(&err)
	c.mu.Lock()
	defer c.mu.Unlock()
	if err = c.ensureOpen(); err != nil {
		return 0, err
	}
	value, err = c.client.ReadRegister(addr, regType)
	return value, c.failed(err)
}

func (c *ModbusClient) readUint32(addr uint16, regType modbus.RegType) (value uint32, err error) {
	defer RecordTimer(c.device.Name, "ReadUint32", c.instrument)(&err)
	c.mu.Lock()
	defer c.mu.Unlock()
	if err = c.ensureOpen(); err != nil {
		return 0, err
	}
	value, err = c.client.ReadUint32(addr, regType)
	return value, c.failed(err)
}

func (c *ModbusClient) writeRegister(addr uint16, value uint16) (err error) {
	defer RecordTimer(c.device.Name, "WriteRegister", c.instrument)(&err)
	c.mu.Lock()
	defer c.mu.Unlock()
	if err = c.ensureOpen(); err != nil {
		return err
	}
	return c.failed(c.client.WriteRegister(addr, value))
}

func RecordTimer(device, name string, instrument []ModbusInstrument) func(*error) {
	if instrument == nil {
		return func(*error) {}
	}

	start := time.Now()
	return func(err *error) {
		duration := time.Since(start)
		var e error
		if err != nil {
			e = *err
		}
		for i := range instrument {
			if instrument[i].RecordTime != nil {
				instrument[i].RecordTime(device, name, duration, e)
			}
		}
	}
}

func DebugLoggerInstrumentation(logger *zap.Logger) ModbusInstrument {
	return ModbusInstrument{
		RecordTime: func(device, fnName string, readTime time.Duration, err error) {
			logger.Debug("modbus request", zap.String("device", device), zap.String("fn", fnName),
				zap.Int64("millis", readTime.Milliseconds()), zap.Error(err))
		},
	}
}
