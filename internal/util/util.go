package util

import (
	"github.com/berfenger/wallbox2mqtt/internal/config"

	"go.uber.org/zap"
)

func LoadTestConfig() config.Config {
	return config.Config{
		LogLevel: zap.DebugLevel,
		Wallbox: config.WallboxConfig{
			Host:          "-.-.-.-",
			Port:          502,
			UnitId:        1,
			TimeoutMillis: 1000,
		},
		SMA: config.SMAConfig{
			Tripower:      config.ModbusDeviceConfig{Host: "-.-.-.-", Port: 502, UnitId: 3},
			SunnyIsland:   config.ModbusDeviceConfig{Host: "-.-.-.-", Port: 502, UnitId: 3},
			TimeoutMillis: 1000,
		},
		Speedwire: config.SpeedwireConfig{
			Enable:               false,
			ListenAddress:        "127.0.0.1:0",
			GridMeterIP:          "127.0.0.1",
			EnergyMeterIP:        "127.0.0.2",
			ReceiveTimeoutMillis: 200,
		},
		MQTT: config.MQTTConfig{
			Host:      "localhost",
			Port:      1883,
			BaseTopic: "wallbox2mqtt",
		},
		Regulation: config.RegulationConfig{
			MinCurrent:            6,
			MaxCurrent:            16,
			PauseCurrent:          0,
			PhaseCount:            2,
			PhaseVoltage:          230,
			PowerBuffer:           200,
			HomeBatteryMinSoC:     90,
			ControlIntervalMillis: 1000,
			MaxSignalAgeMillis:    0,
			SolarOnlyDefault:      true,
		},
		Monitor: config.MonitorConfig{
			PollIntervalMillis: 1000,
		},
		Port:        8080,
		CORSOrigins: []string{"http://localhost:4200"},
	}
}
