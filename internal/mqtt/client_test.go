package mqtt

import (
	"encoding/json"
	"testing"

	"github.com/berfenger/wallbox2mqtt/internal/core/domain"
	"github.com/berfenger/wallbox2mqtt/internal/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSwitchCommandParse(t *testing.T) {

	assert := assert.New(t)

	baseTopic := "loremTopic"
	topic := "loremTopic/switch/my_device/command"
	r := switchCommandExtractor(baseTopic)
	matches := r.FindAllStringSubmatch(topic, 1)

	assert.Equal(matches[0][1], "my_device", "device extract")
}

func TestSwitchCommandParseFail(t *testing.T) {

	assert := assert.New(t)

	baseTopic := "loremTopic"
	topic := "loremTopic/switch/my_device/state"
	r := switchCommandExtractor(baseTopic)
	matches := r.FindAllStringSubmatch(topic, 1)

	assert.Equal(len(matches), 0, "no matches")
}

func TestParseSolarOnlyCommand(t *testing.T) {

	cfg := util.LoadTestConfig()
	client := CreateMQTTClient(&cfg, OptsFromConfig(&cfg), nil, nil)

	cmd, err := client.parseSwitchMQTTCommand(client.SwitchCommandTopic(domain.SWITCH_ID_SOLAR_ONLY_CHARGING), []byte(MQTT_PAYLOAD_OFF))
	require.NoError(t, err)
	assert.Equal(t, domain.SWITCH_ID_SOLAR_ONLY_CHARGING, cmd.DeviceId)
	assert.Equal(t, "switch", cmd.Command)
	assert.Equal(t, MQTT_PAYLOAD_OFF, cmd.Payload)

	_, err = client.parseSwitchMQTTCommand(client.SensorStateTopic(domain.SENSOR_ID_GRID_POWER), []byte("12"))
	assert.Error(t, err)
}

func TestTopics(t *testing.T) {

	cfg := util.LoadTestConfig()
	cfg.MQTT.HADiscoveryTopic = "homeassistant"
	client := CreateMQTTClient(&cfg, OptsFromConfig(&cfg), nil, nil)

	assert.Equal(t, "wallbox2mqtt/bridge/state", client.BridgeStateTopic())
	assert.Equal(t, "wallbox2mqtt/sensor/grid_power/state", client.SensorStateTopic(domain.SENSOR_ID_GRID_POWER))
	assert.Equal(t, "wallbox2mqtt/switch/solar_only_charging/command", client.SwitchCommandTopic(domain.SWITCH_ID_SOLAR_ONLY_CHARGING))
	assert.Equal(t, "wallbox2mqtt/switch/+/command", client.commandTopic())

	device := domain.WallboxDevice("10.0.0.5")
	sensors := domain.WallboxSensors(device)
	assert.Equal(t, "homeassistant/sensor/"+device.Id+"/charger_state/config", client.HADiscoverySensorTopic(sensors[0]))
}

func TestDiscoveryMessages(t *testing.T) {

	cfg := util.LoadTestConfig()
	client := CreateMQTTClient(&cfg, OptsFromConfig(&cfg), nil, nil)

	bridge := domain.BridgeDevice(cfg.MQTT.BaseTopic)
	msg := GenericSensorToHADiscoveryMessage(client, domain.BridgeSensors(bridge)[0])
	assert.Equal(t, client.BridgeStateTopic(), msg.StateTopic)
	assert.Equal(t, MQTT_PAYLOAD_ONLINE, msg.PayloadOn)

	sw := domain.ChargeControlSwitches(domain.WallboxDevice("10.0.0.5"))[0]
	swMsg := GenericSwitchToHADiscoveryMessage(client, sw)
	assert.Equal(t, client.SwitchCommandTopic(domain.SWITCH_ID_SOLAR_ONLY_CHARGING), swMsg.CommandTopic)
	assert.Equal(t, MQTT_PAYLOAD_ON, swMsg.PayloadOn)

	payload, err := json.Marshal(swMsg)
	require.NoError(t, err)
	assert.Contains(t, string(payload), `"platform":"mqtt"`)

	power := domain.SolarSystemSensors(domain.SolarSystemDevice("10.0.0.2"))[0]
	powerMsg := GenericSensorToHADiscoveryMessage(client, power)
	require.NotNil(t, powerMsg.DisplayPrecision)
	assert.Equal(t, uint(0), *powerMsg.DisplayPrecision)
	assert.Equal(t, "W", powerMsg.UnitOfMeasurement)
	assert.Contains(t, client.HADiscoveryTopic(sw), "/switch/"+sw.Device.Id+"/solar_only_charging/config")
	assert.Zero(t, powerMsg.ExpireAfter)
	require.NotNil(t, powerMsg.Origin)
	assert.Equal(t, "wallbox2mqtt", powerMsg.Origin.Name)
}

func TestDiscoveryExpireAfter(t *testing.T) {

	cfg := util.LoadTestConfig()
	cfg.Regulation.MaxSignalAgeMillis = 90000
	client := CreateMQTTClient(&cfg, OptsFromConfig(&cfg), nil, nil)

	power := domain.SolarSystemSensors(domain.SolarSystemDevice("10.0.0.2"))[0]
	assert.Equal(t, uint(90), GenericSensorToHADiscoveryMessage(client, power).ExpireAfter)

	bridge := domain.BridgeSensors(domain.BridgeDevice(cfg.MQTT.BaseTopic))[0]
	assert.Zero(t, GenericSensorToHADiscoveryMessage(client, bridge).ExpireAfter)
}

func TestParseSwitchPayload(t *testing.T) {

	cfg := util.LoadTestConfig()
	client := CreateMQTTClient(&cfg, OptsFromConfig(&cfg), nil, nil)
	topic := client.SwitchCommandTopic(domain.SWITCH_ID_SOLAR_ONLY_CHARGING)

	cmd, err := client.parseSwitchMQTTCommand(topic, []byte(" ON\n"))
	require.NoError(t, err)
	assert.Equal(t, MQTT_PAYLOAD_ON, cmd.Payload)

	_, err = client.parseSwitchMQTTCommand(topic, []byte("maybe"))
	assert.ErrorIs(t, err, ErrInvalidCommand)
}

func TestOptsFromConfig(t *testing.T) {

	cfg := util.LoadTestConfig()
	opts := OptsFromConfig(&cfg)

	assert.True(t, opts.WillEnabled)
	assert.True(t, opts.WillRetained)
	assert.Equal(t, cfg.MQTT.BaseTopic+"/bridge/state", opts.WillTopic)
	assert.Equal(t, MQTT_PAYLOAD_OFFLINE, string(opts.WillPayload))
	assert.False(t, opts.AutoReconnect)
	assert.Contains(t, opts.ClientID, cfg.MQTT.BaseTopic+"_")
}

func TestSwitchCommandParseAnchored(t *testing.T) {

	r := switchCommandExtractor("wallbox")
	assert.Empty(t, r.FindStringSubmatch("other/wallbox/switch/x/command"))
	assert.Empty(t, r.FindStringSubmatch("wallbox/switch/x/command/extra"))
	assert.Equal(t, "x", r.FindStringSubmatch("wallbox/switch/x/command")[1])
}
