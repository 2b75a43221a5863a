package config

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/berfenger/wallbox2mqtt/internal/core/domain"
	"github.com/berfenger/wallbox2mqtt/pkg/sma_modbus"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Config struct {
	LogLevel    zapcore.Level
	Wallbox     WallboxConfig    `mapstructure:"wallbox"`
	SMA         SMAConfig        `mapstructure:"sma"`
	Speedwire   SpeedwireConfig  `mapstructure:"speedwire"`
	Regulation  RegulationConfig `mapstructure:"regulation"`
	Monitor     MonitorConfig    `mapstructure:"monitor"`
	MQTT        MQTTConfig       `mapstructure:"mqtt"`
	Port        uint             `mapstructure:"port"`
	HttpLog     bool             `mapstructure:"http_log"`
	CORSOrigins []string         `mapstructure:"cors_origins"`
}

type ModbusDeviceConfig struct {
	Host   string
	Port   uint
	UnitId uint `mapstructure:"unit_id"`
}

type WallboxConfig struct {
	Host          string
	Port          uint
	UnitId        uint   `mapstructure:"unit_id"`
	TimeoutMillis uint32 `mapstructure:"timeout_millis"`
}

type SMAConfig struct {
	Tripower      ModbusDeviceConfig `mapstructure:"tripower"`
	SunnyIsland   ModbusDeviceConfig `mapstructure:"sunny_island"`
	TimeoutMillis uint32             `mapstructure:"timeout_millis"`
}

type SpeedwireConfig struct {
	Enable               bool
	ListenAddress        string `mapstructure:"listen_address"`
	MulticastGroup       string `mapstructure:"multicast_group"`
	GridMeterIP          string `mapstructure:"grid_meter_ip"`
	EnergyMeterIP        string `mapstructure:"energy_meter_ip"`
	ReceiveTimeoutMillis uint32 `mapstructure:"receive_timeout_millis"`
}

type RegulationConfig struct {
	MinCurrent            int    `mapstructure:"min_current"`
	MaxCurrent            int    `mapstructure:"max_current"`
	PauseCurrent          int    `mapstructure:"pause_current"`
	PhaseCount            int    `mapstructure:"phase_count"`
	PhaseVoltage          int    `mapstructure:"phase_voltage"`
	PowerBuffer           int    `mapstructure:"power_buffer"`
	HomeBatteryMinSoC     int    `mapstructure:"home_battery_min_soc"`
	ControlIntervalMillis uint32 `mapstructure:"control_interval_millis"`
	MaxSignalAgeMillis    uint32 `mapstructure:"max_signal_age_millis"`
	SolarOnlyDefault      bool   `mapstructure:"solar_only_default"`
}

type MonitorConfig struct {
	PollIntervalMillis uint32 `mapstructure:"poll_interval_millis"`
}

type MQTTConfig struct {
	Enable            bool
	Host              string
	Port              int
	Username          string
	Password          string
	BaseTopic         string `mapstructure:"base_topic"`
	HADiscoveryEnable bool   `mapstructure:"ha_discovery_enable"`
	HADiscoveryTopic  string `mapstructure:"ha_discovery_topic"`
}

func SetDefaults(v *viper.Viper) {
	def := domain.DefaultRegulationConfig()
	v.SetDefault("log_level", "warn")
	v.SetDefault("wallbox.host", "192.168.188.94")
	v.SetDefault("wallbox.port", 502)
	v.SetDefault("wallbox.unit_id", 1)
	v.SetDefault("wallbox.timeout_millis", 2000)
	v.SetDefault("sma.tripower.host", "192.168.188.45")
	v.SetDefault("sma.tripower.port", 502)
	v.SetDefault("sma.tripower.unit_id", 3)
	v.SetDefault("sma.sunny_island.host", "192.168.188.117")
	v.SetDefault("sma.sunny_island.port", 502)
	v.SetDefault("sma.sunny_island.unit_id", 3)
	v.SetDefault("sma.timeout_millis", 2000)
	v.SetDefault("speedwire.enable", true)
	v.SetDefault("speedwire.listen_address", "0.0.0.0:9522")
	v.SetDefault("speedwire.multicast_group", "")
	v.SetDefault("speedwire.grid_meter_ip", "192.168.188.54")
	v.SetDefault("speedwire.energy_meter_ip", "192.168.188.87")
	v.SetDefault("speedwire.receive_timeout_millis", 1000)
	v.SetDefault("regulation.min_current", def.MinCurrentA)
	v.SetDefault("regulation.max_current", def.MaxCurrentA)
	v.SetDefault("regulation.pause_current", def.PauseCurrentA)
	v.SetDefault("regulation.phase_count", def.PhaseCount)
	v.SetDefault("regulation.phase_voltage", def.PhaseVoltageV)
	v.SetDefault("regulation.power_buffer", def.PowerBufferW)
	v.SetDefault("regulation.home_battery_min_soc", def.HomeBatteryMinSoC)
	v.SetDefault("regulation.control_interval_millis", 5000)
	v.SetDefault("regulation.max_signal_age_millis", 60000)
	v.SetDefault("regulation.solar_only_default", true)
	v.SetDefault("monitor.poll_interval_millis", 5000)
	v.SetDefault("mqtt.enable", false)
	v.SetDefault("mqtt.port", 1883)
	v.SetDefault("mqtt.ha_discovery_enable", false)
	v.SetDefault("mqtt.base_topic", "wallbox2mqtt")
	v.SetDefault("mqtt.ha_discovery_topic", "homeassistant")
	v.SetDefault("port", 8000)
	v.SetDefault("cors_origins", []string{"http://localhost:4200", "http://127.0.0.1:4200"})
}

// ConfigureEnv maps WALLBOX_SECTION_KEY environment variables onto section.key.
func ConfigureEnv(v *viper.Viper) {
	v.SetEnvPrefix("wallbox")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// FromViper unmarshals, normalizes and validates the configuration.
func FromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	err := v.Unmarshal(&cfg)
	if err != nil {
		return nil, err
	}

	cfg.LogLevel = ParseLogLevel(v.GetString("log_level"))

	if cfg.MQTT.Enable {
		// check and fix base topic
		baseTopic, err := CheckMQTTTopic(cfg.MQTT.BaseTopic)
		if err != nil {
			return nil, fmt.Errorf("mqtt.base_topic: %w", err)
		}
		cfg.MQTT.BaseTopic = baseTopic

		// check and fix homeassistant discovery topic
		hadBaseTopic, err := CheckMQTTTopic(cfg.MQTT.HADiscoveryTopic)
		if err != nil {
			return nil, fmt.Errorf("mqtt.ha_discovery_topic: %w", err)
		}
		cfg.MQTT.HADiscoveryTopic = hadBaseTopic
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func ParseLogLevel(level string) zapcore.Level {
	switch level {
	case "trace":
		return zap.DebugLevel
	case "debug":
		return zap.DebugLevel
	case "info":
		return zap.InfoLevel
	case "error":
		return zap.ErrorLevel
	case "warn":
		return zap.WarnLevel
	case "fatal":
		return zap.FatalLevel
	default:
		return zap.InfoLevel
	}
}

// Validate checks bounds. Every violation is reported.
func Validate(cfg Config) error {
	var errs []error
	if err := cfg.RegulationConfig().Validate(); err != nil {
		errs = append(errs, err)
	}
	if cfg.Regulation.ControlIntervalMillis < 1000 {
		errs = append(errs, errors.New("config param regulation.control_interval_millis should be >= 1000"))
	}
	if cfg.Monitor.PollIntervalMillis < 1000 {
		errs = append(errs, errors.New("config param monitor.poll_interval_millis should be >= 1000"))
	}
	if cfg.Wallbox.Host == "" {
		errs = append(errs, errors.New("config param wallbox.host is required"))
	}
	if cfg.Wallbox.UnitId > 255 || cfg.SMA.Tripower.UnitId > 255 || cfg.SMA.SunnyIsland.UnitId > 255 {
		errs = append(errs, errors.New("modbus unit ids must be <= 255"))
	}
	if cfg.Speedwire.Enable && cfg.Speedwire.ListenAddress == "" {
		errs = append(errs, errors.New("config param speedwire.listen_address is required"))
	}
	if cfg.MQTT.Enable && cfg.MQTT.Host == "" {
		errs = append(errs, errors.New("config param mqtt.host is required when mqtt is enabled"))
	}
	return errors.Join(errs...)
}

func (cfg Config) RegulationConfig() domain.RegulationConfig {
	return domain.RegulationConfig{
		MinCurrentA:       cfg.Regulation.MinCurrent,
		MaxCurrentA:       cfg.Regulation.MaxCurrent,
		PauseCurrentA:     cfg.Regulation.PauseCurrent,
		PhaseCount:        cfg.Regulation.PhaseCount,
		PhaseVoltageV:     cfg.Regulation.PhaseVoltage,
		PowerBufferW:      cfg.Regulation.PowerBuffer,
		HomeBatteryMinSoC: cfg.Regulation.HomeBatteryMinSoC,
	}
}

func (cfg Config) ControlInterval() time.Duration {
	return time.Duration(cfg.Regulation.ControlIntervalMillis) * time.Millisecond
}

func (cfg Config) PollInterval() time.Duration {
	return time.Duration(cfg.Monitor.PollIntervalMillis) * time.Millisecond
}

// MaxSignalAge is zero when the staleness check is disabled.
func (cfg Config) MaxSignalAge() time.Duration {
	return time.Duration(cfg.Regulation.MaxSignalAgeMillis) * time.Millisecond
}

func (cfg Config) WallboxTimeout() time.Duration {
	return time.Duration(cfg.Wallbox.TimeoutMillis) * time.Millisecond
}

func (cfg Config) SMATimeout() time.Duration {
	return time.Duration(cfg.SMA.TimeoutMillis) * time.Millisecond
}

// WallboxCallTimeout bounds one wallbox exchange: a reconnect plus the
// request, each limited by the client I/O timeout.
func (cfg Config) WallboxCallTimeout() time.Duration {
	return 2 * cfg.WallboxTimeout()
}

// SMAReadTimeout bounds one full read of every SMA register. A failed
// register drops the connection, so each one may pay for a reconnect.
func (cfg Config) SMAReadTimeout() time.Duration {
	return time.Duration(2*len(sma_modbus.DefaultSMARegisters())) * cfg.SMATimeout()
}

func (cfg Config) SpeedwireReceiveTimeout() time.Duration {
	return time.Duration(cfg.Speedwire.ReceiveTimeoutMillis) * time.Millisecond
}

func CheckMQTTTopic(baseTopic string) (string, error) {
	// check and fix base topic
	lowerBaseTopic := strings.ToLower(baseTopic)
	baseTopicRegexp := regexp.MustCompile("^[a-z0-9_]+$")
	matches := baseTopicRegexp.FindAllStringSubmatch(lowerBaseTopic, 1)
	if len(matches) <= 0 {
		return "", errors.New("invalid topic. can only contain letters, numbers and underscores")
	}
	return lowerBaseTopic, nil
}
