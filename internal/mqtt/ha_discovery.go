package mqtt

import (
	"fmt"

	"github.com/carlmjohnson/versioninfo"

	"github.com/berfenger/wallbox2mqtt/internal/core/domain"
)

type HADiscoveryConfig struct {
	Device            HADiscoveryDevice  `json:"device"`
	StateTopic        string             `json:"state_topic"`
	CommandTopic      string             `json:"command_topic,omitempty"`
	StateClass        string             `json:"state_class,omitempty"`
	DeviceClass       string             `json:"device_class,omitempty"`
	UnitOfMeasurement string             `json:"unit_of_measurement,omitempty"`
	AvTopic           string             `json:"availability_topic,omitempty"`
	EntityCategory    string             `json:"entity_category,omitempty"`
	Name              string             `json:"name"`
	UniqueId          string             `json:"unique_id"`
	Platform          string             `json:"platform"`
	EnabledByDefault  *bool              `json:"enabled_by_default,omitempty"`
	PayloadOn         string             `json:"payload_on,omitempty"`
	PayloadOff        string             `json:"payload_off,omitempty"`
	Icon              string             `json:"icon,omitempty"`
	DisplayPrecision  *uint              `json:"suggested_display_precision,omitempty"`
	ExpireAfter       uint               `json:"expire_after,omitempty"`
	Origin            *HADiscoveryOrigin `json:"origin,omitempty"`
}

type HADiscoveryOrigin struct {
	Name    string `json:"name"`
	Version string `json:"sw_version,omitempty"`
}

type HADiscoveryDevice struct {
	Id           []string `json:"identifiers"`
	Manufacturer string   `json:"manufacturer,omitempty"`
	Version      string   `json:"sw_version,omitempty"`
	Model        string   `json:"model,omitempty"`
	Name         string   `json:"name,omitempty"`
	ViaDevice    string   `json:"via_device,omitempty"`
}

// HADiscoveryTopic is <discovery>/<component type>/<device id>/<component id>/config.
func (c *MQTTClient) HADiscoveryTopic(component domain.Component) string {
	return fmt.Sprintf("%s/%s/%s/%s/config", c.discoveryTopic(), component.ComponentType(),
		component.ComponentDevice().Id, component.ComponentId())
}

func (c *MQTTClient) HADiscoverySensorTopic(sensor domain.GenericSensor) string {
	return c.HADiscoveryTopic(sensor)
}

func (c *MQTTClient) HADiscoverySwitchTopic(_switch domain.GenericSwitch) string {
	return c.HADiscoveryTopic(_switch)
}

func GenericSensorToHADiscoveryMessage(client *MQTTClient, sensor domain.GenericSensor) HADiscoveryConfig {
	dev := device(sensor.Device)
	var topic string
	switch {
	case sensor.Id == domain.SENSOR_ID_BRIDGE_STATE:
		topic = client.BridgeStateTopic()
	case sensor.SensorType == domain.SENSOR_TYPE_SENSOR:
		topic = client.SensorStateTopic(sensor.Id)
	case sensor.SensorType == domain.SENSOR_TYPE_BINARY:
		topic = client.BinarySensorStateTopic(sensor.Id)
	}
	disConfig := HADiscoveryConfig{
		Device:            dev,
		StateTopic:        topic,
		StateClass:        sensor.StateClass,
		DeviceClass:       sensor.DeviceClass,
		UnitOfMeasurement: sensor.UnitOfMeasurement,
		AvTopic:           client.BridgeStateTopic(),
		EntityCategory:    sensor.EntityCategory,
		Name:              sensor.Name,
		UniqueId:          sensor.UniqueId,
		Icon:              sensor.Icon,
		EnabledByDefault:  sensor.EnabledByDefault,
		DisplayPrecision:  sensor.DisplayPrecision,
		Platform:          "mqtt",
		Origin:            origin(),
	}
	if sensor.Id == domain.SENSOR_ID_BRIDGE_STATE {
		disConfig.PayloadOn = MQTT_PAYLOAD_ONLINE
		disConfig.PayloadOff = MQTT_PAYLOAD_OFFLINE
		return disConfig
	}
	// measurements older than the regulation accepts show as unavailable
	if sensor.StateClass == domain.STATE_CLASS_MEASUREMENT {
		disConfig.ExpireAfter = uint(client.maxSignalAge.Seconds())
	}
	if sensor.SensorType == domain.SENSOR_TYPE_BINARY {
		disConfig.PayloadOn = MQTT_PAYLOAD_ON
		disConfig.PayloadOff = MQTT_PAYLOAD_OFF
	}
	return disConfig
}

func GenericSwitchToHADiscoveryMessage(client *MQTTClient, _switch domain.GenericSwitch) HADiscoveryConfig {
	return HADiscoveryConfig{
		Device:       device(_switch.Device),
		StateTopic:   client.SwitchStateTopic(_switch.Id),
		CommandTopic: client.SwitchCommandTopic(_switch.Id),
		AvTopic:      client.BridgeStateTopic(),
		Name:         _switch.Name,
		UniqueId:     _switch.UniqueId,
		Icon:         _switch.Icon,
		Platform:     "mqtt",
		PayloadOn:    MQTT_PAYLOAD_ON,
		PayloadOff:   MQTT_PAYLOAD_OFF,
		Origin:       origin(),
	}
}

func origin() *HADiscoveryOrigin {
	return &HADiscoveryOrigin{
		Name:    "wallbox2mqtt",
		Version: versioninfo.Short(),
	}
}

func device(d domain.Device) HADiscoveryDevice {
	return HADiscoveryDevice{
		Id:           []string{d.Id},
		Manufacturer: d.Manufacturer,
		Version:      d.Version,
		Model:        d.Model,
		Name:         d.Name,
		ViaDevice:    d.ViaDevice,
	}
}
