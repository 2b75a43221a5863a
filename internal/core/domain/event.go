package domain

// SensorUpdateEvent is published on the actor event stream whenever a value
// exposed over MQTT changes. The MQTT actor turns it into a state message.
type SensorUpdateEvent interface {
	SensorId() string
}

type SensorUpdateEventMixIn struct {
	Id string
}

func (e SensorUpdateEventMixIn) SensorId() string {
	return e.Id
}

type FloatSensorUpdateEvent struct {
	SensorUpdateEventMixIn
	Value    float64
	Decimals uint
}

func FloatUpdate(id string, value float64, decimals uint) FloatSensorUpdateEvent {
	return FloatSensorUpdateEvent{SensorUpdateEventMixIn{id}, value, decimals}
}

// WattsUpdate reports a whole number of watts, amperes or percent.
func WattsUpdate(id string, value int) FloatSensorUpdateEvent {
	return FloatUpdate(id, float64(value), 0)
}

type SwitchSensorUpdateEvent struct {
	SensorUpdateEventMixIn
	Value bool
}

func SwitchUpdate(id string, on bool) SwitchSensorUpdateEvent {
	return SwitchSensorUpdateEvent{SensorUpdateEventMixIn{id}, on}
}

type TextSensorUpdateEvent struct {
	SensorUpdateEventMixIn
	Value string
}

func TextUpdate(id, value string) TextSensorUpdateEvent {
	return TextSensorUpdateEvent{SensorUpdateEventMixIn{id}, value}
}

type BridgeStateUpdateEvent struct {
	SensorUpdateEventMixIn
	Value bool
}

func BridgeUpdate(online bool) BridgeStateUpdateEvent {
	return BridgeStateUpdateEvent{SensorUpdateEventMixIn{SENSOR_ID_BRIDGE_STATE}, online}
}

// ChargeControlTickEvent is published after every regulation cycle that got
// as far as a decision. Aborted cycles publish nothing.
type ChargeControlTickEvent struct {
	Result ChargeControlTickResult
}

var _ SensorUpdateEvent = FloatSensorUpdateEvent{}
var _ SensorUpdateEvent = SwitchSensorUpdateEvent{}
var _ SensorUpdateEvent = TextSensorUpdateEvent{}
var _ SensorUpdateEvent = BridgeStateUpdateEvent{}
