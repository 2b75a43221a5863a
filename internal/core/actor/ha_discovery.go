package actor

import (
	"errors"
	"time"

	"github.com/berfenger/wallbox2mqtt/internal/config"
	"github.com/berfenger/wallbox2mqtt/internal/core/domain"
	"github.com/berfenger/wallbox2mqtt/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"go.uber.org/zap"
)

const (
	HADISCOVERY_ACTOR_ID = domain.ACTOR_ID_HA_DISCOVERY
)

// HADiscoveryActor publishes the Home Assistant discovery messages once the
// MQTT actor is up, then stays idle.
type HADiscoveryActor struct {
	config    *config.Config
	behavior  actor.Behavior
	mqttActor *actor.PID

	logger *zap.Logger
}

func NewHADiscoveryActor(config *config.Config, mqttActor *actor.PID, logger *zap.Logger) *HADiscoveryActor {
	act := &HADiscoveryActor{
		config:    config,
		mqttActor: mqttActor,
		behavior:  actor.NewBehavior(),
		logger:    actorutil.ActorLogger(HADISCOVERY_ACTOR_ID, logger),
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *HADiscoveryActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *HADiscoveryActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("hadiscovery@starting started")
		actorutil.PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.mqttActor, domain.ActorHealthRequest{}, 5*time.Second), func(err error) any {
			return domain.ActorHealthResponse{
				Id:      domain.ACTOR_ID_MQTT,
				Healthy: false,
			}
		})
		state.behavior.Become(state.WaitingHealthyReceive)
	case *actor.Restarting:
	default:
		state.logger.Debug("hadiscovery@starting: recv", actorutil.MessageType(msg))
	}
}

func (state *HADiscoveryActor) WaitingHealthyReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthResponse:
		state.logger.Debug("hadiscovery@healthcheck ActorHealthResponse", zap.String("sender", msg.Id), zap.Bool("healthy", msg.Healthy))
		if !msg.Healthy {
			// let the supervisor restart and retry
			panic(errors.New("MQTT Actor is not healthy"))
		}
		sensors, switches := state.discoveryComponents()
		ctx.Send(state.mqttActor, domain.PublishDiscoveryRequest{
			Sensors:  sensors,
			Switches: switches,
		})
		state.logger.Info("hadiscovery: discovery published", zap.Int("sensors", len(sensors)), zap.Int("switches", len(switches)))
		state.behavior.Become(state.Done)
	case domain.ActorHealthRequest:
		state.respondHealth(ctx, "waiting")
	default:
		state.logger.Debug("hadiscovery@healthcheck: recv", actorutil.MessageType(msg))
	}
}

func (state *HADiscoveryActor) Done(ctx actor.Context) {
	switch ctx.Message().(type) {
	case domain.ActorHealthRequest:
		state.respondHealth(ctx, "done")
	}
}

func (state *HADiscoveryActor) respondHealth(ctx actor.Context, name string) {
	ctx.Respond(domain.ActorHealthResponse{
		Id:      HADISCOVERY_ACTOR_ID,
		Healthy: true,
		State:   name,
	})
}

func (state *HADiscoveryActor) discoveryComponents() ([]domain.GenericSensor, []domain.GenericSwitch) {
	var sensors []domain.GenericSensor

	bridgeDevice := domain.BridgeDevice(state.config.MQTT.BaseTopic)
	sensors = append(sensors, domain.BridgeSensors(bridgeDevice)...)

	solarDevice := domain.SolarSystemDevice(state.config.SMA.Tripower.Host)
	solarDevice.ViaDevice = bridgeDevice.Id
	sensors = append(sensors, withIdDevice(domain.SolarSystemSensors(solarDevice))...)

	wallboxDevice := domain.WallboxDevice(state.config.Wallbox.Host)
	wallboxDevice.ViaDevice = bridgeDevice.Id
	sensors = append(sensors, withIdDevice(domain.WallboxSensors(wallboxDevice))...)

	switches := domain.ChargeControlSwitches(domain.IdDevice(wallboxDevice))
	return sensors, switches
}

// withIdDevice keeps the full device description on the first sensor only.
func withIdDevice(sensors []domain.GenericSensor) []domain.GenericSensor {
	for i := range sensors {
		if i > 0 {
			sensors[i].Device = domain.IdDevice(sensors[i].Device)
		}
	}
	return sensors
}
