package domain

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"

	"github.com/carlmjohnson/versioninfo"
)

const (
	SENSOR_ID_BRIDGE_STATE          = "bridge"
	SENSOR_ID_GRID_POWER            = "grid_power"
	SENSOR_ID_METER_POWER           = "meter_power"
	SENSOR_ID_PV_POWER              = "pv_power"
	SENSOR_ID_PV_STRING1_POWER      = "pv_string1_power"
	SENSOR_ID_PV_STRING2_POWER      = "pv_string2_power"
	SENSOR_ID_PV_STRING3_POWER      = "pv_string3_power"
	SENSOR_ID_BATTERY_POWER         = "battery_power"
	SENSOR_ID_BATTERY_SOC           = "battery_soc"
	SENSOR_ID_HOUSE_POWER           = "house_power"
	SENSOR_ID_CHARGER_STATE         = "charger_state"
	SENSOR_ID_CHARGER_CURRENT_LIMIT = "charger_current_limit"
	SENSOR_ID_EXCESS_POWER          = "excess_power"
	SENSOR_ID_REGULATION_ACTION     = "regulation_action"
	SWITCH_ID_SOLAR_ONLY_CHARGING   = "solar_only_charging"
	STATE_CLASS_MEASUREMENT         = "measurement"
	DEVICE_CLASS_BATTERY            = "battery"
	DEVICE_CLASS_CURRENT            = "current"
	DEVICE_CLASS_POWER              = "power"
	DEVICE_CLASS_CONNECTIVITY       = "connectivity"
	ENTITY_CLASS_DIAGNOSTIC         = "diagnostic"
	SENSOR_TYPE_SENSOR              = "sensor"
	SENSOR_TYPE_BINARY              = "binary_sensor"
	SENSOR_TYPE_SWITCH              = "switch"
)

func BridgeDevice(baseTopic string) Device {
	return Device{
		Id:           fmt.Sprintf("wallbox2mqtt_bridge_%s", md5HashShort(baseTopic)),
		Manufacturer: "ACasal",
		Model:        "wallbox2mqtt",
		Version:      versioninfo.Short(),
		Name:         fmt.Sprintf("wallbox2mqtt %s", md5HashShort(baseTopic)),
	}
}

// SolarSystemDevice groups the SMA inverter, battery inverter and meters.
func SolarSystemDevice(inverterHost string) Device {
	return Device{
		Id:           fmt.Sprintf("w2m_solar_%s", md5HashShort(inverterHost)),
		Manufacturer: "SMA",
		Model:        "Sunny Tripower / Sunny Island",
		Name:         fmt.Sprintf("Solar system %s", md5HashShort(inverterHost)),
	}
}

func WallboxDevice(wallboxHost string) Device {
	return Device{
		Id:           fmt.Sprintf("w2m_wallbox_%s", md5HashShort(wallboxHost)),
		Manufacturer: "Juice Technology",
		Model:        "Juice Charger Me",
		Name:         fmt.Sprintf("Wallbox %s", md5HashShort(wallboxHost)),
	}
}

func IdDevice(device Device) Device {
	return Device{
		Id:   device.Id,
		Name: device.Name,
	}
}

func BridgeSensors(bridgeDevice Device) []GenericSensor {
	return []GenericSensor{{
		Device:         bridgeDevice,
		Id:             SENSOR_ID_BRIDGE_STATE,
		SensorType:     SENSOR_TYPE_BINARY,
		Name:           "Connection state",
		DeviceClass:    DEVICE_CLASS_CONNECTIVITY,
		EntityCategory: ENTITY_CLASS_DIAGNOSTIC,
		UniqueId:       uniqueId(bridgeDevice.Id, SENSOR_ID_BRIDGE_STATE),
	}}
}

func SolarSystemSensors(device Device) []GenericSensor {
	var sensors []GenericSensor
	power := func(id, name string, enabled bool) GenericSensor {
		s := GenericSensor{
			Device:            IdDevice(device),
			Id:                id,
			SensorType:        SENSOR_TYPE_SENSOR,
			Name:              name,
			StateClass:        STATE_CLASS_MEASUREMENT,
			DeviceClass:       DEVICE_CLASS_POWER,
			UnitOfMeasurement: "W",
			UniqueId:          uniqueId(device.Id, id),
			DisplayPrecision:  optionalUint(0),
		}
		if !enabled {
			s.EnabledByDefault = optionalBool(false)
		}
		return s
	}

	sensors = append(sensors, power(SENSOR_ID_GRID_POWER, "Grid power", true))
	// first sensor carries the full device description
	sensors[0].Device = device
	sensors = append(sensors, power(SENSOR_ID_METER_POWER, "Energy meter power", true))
	sensors = append(sensors, power(SENSOR_ID_PV_POWER, "PV power", true))
	sensors = append(sensors, power(SENSOR_ID_PV_STRING1_POWER, "PV string 1 power", false))
	sensors = append(sensors, power(SENSOR_ID_PV_STRING2_POWER, "PV string 2 power", false))
	sensors = append(sensors, power(SENSOR_ID_PV_STRING3_POWER, "PV string 3 power", false))
	sensors = append(sensors, power(SENSOR_ID_BATTERY_POWER, "Battery power", true))
	sensors = append(sensors, power(SENSOR_ID_HOUSE_POWER, "House power", true))
	sensors = append(sensors, GenericSensor{
		Device:            IdDevice(device),
		Id:                SENSOR_ID_BATTERY_SOC,
		SensorType:        SENSOR_TYPE_SENSOR,
		Name:              "Battery SoC",
		StateClass:        STATE_CLASS_MEASUREMENT,
		DeviceClass:       DEVICE_CLASS_BATTERY,
		UnitOfMeasurement: "%",
		UniqueId:          uniqueId(device.Id, SENSOR_ID_BATTERY_SOC),
	})

	return sensors
}

func WallboxSensors(device Device) []GenericSensor {
	var sensors []GenericSensor

	sensors = append(sensors, GenericSensor{
		Device:     device,
		Id:         SENSOR_ID_CHARGER_STATE,
		SensorType: SENSOR_TYPE_SENSOR,
		Name:       "Charging state",
		UniqueId:   uniqueId(device.Id, SENSOR_ID_CHARGER_STATE),
		Icon:       "mdi:ev-station",
	})
	sensors = append(sensors, GenericSensor{
		Device:            IdDevice(device),
		Id:                SENSOR_ID_CHARGER_CURRENT_LIMIT,
		SensorType:        SENSOR_TYPE_SENSOR,
		Name:              "Charging current limit",
		StateClass:        STATE_CLASS_MEASUREMENT,
		DeviceClass:       DEVICE_CLASS_CURRENT,
		UnitOfMeasurement: "A",
		UniqueId:          uniqueId(device.Id, SENSOR_ID_CHARGER_CURRENT_LIMIT),
	})
	sensors = append(sensors, GenericSensor{
		Device:            IdDevice(device),
		Id:                SENSOR_ID_EXCESS_POWER,
		SensorType:        SENSOR_TYPE_SENSOR,
		Name:              "Excess power",
		StateClass:        STATE_CLASS_MEASUREMENT,
		DeviceClass:       DEVICE_CLASS_POWER,
		UnitOfMeasurement: "W",
		UniqueId:          uniqueId(device.Id, SENSOR_ID_EXCESS_POWER),
		DisplayPrecision:  optionalUint(0),
	})
	sensors = append(sensors, GenericSensor{
		Device:           IdDevice(device),
		Id:               SENSOR_ID_REGULATION_ACTION,
		SensorType:       SENSOR_TYPE_SENSOR,
		Name:             "Regulation action",
		EntityCategory:   ENTITY_CLASS_DIAGNOSTIC,
		EnabledByDefault: optionalBool(false),
		UniqueId:         uniqueId(device.Id, SENSOR_ID_REGULATION_ACTION),
	})

	return sensors
}

func ChargeControlSwitches(device Device) []GenericSwitch {
	return []GenericSwitch{{
		Device:   IdDevice(device),
		Id:       SWITCH_ID_SOLAR_ONLY_CHARGING,
		Name:     "Solar only charging",
		UniqueId: uniqueId(device.Id, SWITCH_ID_SOLAR_ONLY_CHARGING),
		Icon:     "mdi:solar-power-variant",
	}}
}

func uniqueId(baseId, id string) string {
	return fmt.Sprintf("uid_%s_%s", baseId, id)
}

func md5Hash(text string) string {
	hash := md5.Sum([]byte(text))
	return hex.EncodeToString(hash[:])
}

func md5HashShort(text string) string {
	hash := md5Hash(text)
	return hash[0:8]
}

func optionalBool(value bool) *bool {
	return &value
}

func optionalUint(value uint) *uint {
	return &value
}
