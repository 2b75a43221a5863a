package domain

import (
	"github.com/asynkron/protoactor-go/actor"
)

const (
	ACTOR_ID_MASTER       = "master"
	ACTOR_ID_MODBUS       = "modbus"
	ACTOR_ID_WALLBOX      = "wallbox"
	ACTOR_ID_SPEEDWIRE    = "speedwire"
	ACTOR_ID_COLLECTOR    = "collector"
	ACTOR_ID_REGULATOR    = "regulator"
	ACTOR_ID_MQTT         = "mqtt"
	ACTOR_ID_HA_DISCOVERY = "hadiscovery"
)

// ActorRequestMixIn lets a request name the actor its response goes to.
// Left nil, the response goes to the sender.
type ActorRequestMixIn struct {
	RespondTo *actor.PID
}

type ActorRequest interface {
	ResponseTarget() *actor.PID
}

func (r ActorRequestMixIn) ResponseTarget() *actor.PID {
	return r.RespondTo
}

// ActorResponseMixIn carries the transport or logic error of a request.
// Responses are always delivered, failures included.
type ActorResponseMixIn struct {
	ResponseError error
}

func FailedResponse(err error) ActorResponseMixIn {
	return ActorResponseMixIn{ResponseError: err}
}

func (r ActorResponseMixIn) GetResponseError() error {
	return r.ResponseError
}

func (r ActorResponseMixIn) HasResponseError() bool {
	return r.ResponseError != nil
}

type ActorResponse interface {
	GetResponseError() error
	HasResponseError() bool
}

// SMA devices

type ReadSignalsRequest struct {
	ActorRequestMixIn
}

type ReadSignalsResponse struct {
	ActorResponseMixIn
	Readings []SignalReading
}

// SignalReadingsUpdate carries readings pushed by a listener, not requested.
type SignalReadingsUpdate struct {
	Source   string
	Readings []SignalReading
}

// Wallbox

type GetChargerStateRequest struct {
	ActorRequestMixIn
}

type GetChargerStateResponse struct {
	ActorResponseMixIn
	State ConnectionState
}

type GetCurrentLimitRequest struct {
	ActorRequestMixIn
}

type GetCurrentLimitResponse struct {
	ActorResponseMixIn
	LimitA int
}

type SetCurrentLimitRequest struct {
	ActorRequestMixIn
	LimitA int
}

type SetCurrentLimitResponse struct {
	ActorResponseMixIn
	LimitA int
}

// MQTT

type PublishMessageRequest struct {
	ActorRequestMixIn
	Topic   string
	Payload string
	Retain  bool
}

type PublishMessageResponse struct {
	ActorResponseMixIn
}

type PublishSensorUpdateRequest struct {
	ActorRequestMixIn
	Retain bool
	Event  SensorUpdateEvent
}

type PublishSensorUpdateResponse struct {
	ActorResponseMixIn
}

type PublishDiscoveryRequest struct {
	ActorRequestMixIn
	Sensors  []GenericSensor
	Switches []GenericSwitch
}

type PublishDiscoveryResponse struct {
	ActorResponseMixIn
}

// Health

type ActorHealthRequest struct {
	ActorRequestMixIn
}

type ActorHealthResponse struct {
	ActorResponseMixIn
	Id      string
	Healthy bool
	State   string
}
