package actor

import (
	"errors"
	"fmt"
	"time"

	adactor "github.com/berfenger/wallbox2mqtt/internal/adapter/actor"
	"github.com/berfenger/wallbox2mqtt/internal/config"
	"github.com/berfenger/wallbox2mqtt/internal/core/domain"
	"github.com/berfenger/wallbox2mqtt/internal/core/service"
	"github.com/berfenger/wallbox2mqtt/internal/core/store"
	. "github.com/berfenger/wallbox2mqtt/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"go.uber.org/zap"
)

type MQTTActorProvider func(*eventstream.EventStream) *adactor.MQTTActor

type ModbusActorProvider func() *adactor.ModbusActor

type WallboxActorProvider func() *adactor.WallboxActor

// SpeedwireActorProvider builds a listener that forwards its readings to target.
type SpeedwireActorProvider func(target *actor.PID) *adactor.SpeedwireActor

type ActorProviders struct {
	Modbus    ModbusActorProvider
	Wallbox   WallboxActorProvider
	MQTT      MQTTActorProvider
	Speedwire SpeedwireActorProvider
}

type MasterOfPuppetsActor struct {
	config   config.Config
	behavior actor.Behavior
	stash    *Stash

	currentHealthCheck healthCheckResult
	eventStream        *eventstream.EventStream
	store              *store.SignalStore
	providers          ActorProviders
	children           map[string]*actor.PID
	modbusActor        *actor.PID
	wallboxActor       *actor.PID
	collectorActor     *actor.PID
	regulatorActor     *actor.PID
	mqttActor          *actor.PID
	logger             *zap.Logger
}

type healthCheckResult struct {
	healthy        map[string]bool
	checksReceived int
	expected       int
	respondTo      *actor.PID
}

func NewMasterOfPuppetsActor(config config.Config, signalStore *store.SignalStore, eventStream *eventstream.EventStream,
	providers ActorProviders, logger *zap.Logger) *MasterOfPuppetsActor {
	if eventStream == nil {
		eventStream = &eventstream.EventStream{}
	}
	act := &MasterOfPuppetsActor{
		config:      config,
		behavior:    actor.NewBehavior(),
		stash:       &Stash{},
		logger:      ActorLogger(domain.ACTOR_ID_MASTER, logger),
		eventStream: eventStream,
		store:       signalStore,
		providers:   providers,
		children:    map[string]*actor.PID{},
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *MasterOfPuppetsActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *MasterOfPuppetsActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("master@starting started")

		var err error

		// start Modbus child
		if state.modbusActor, err = state.startIOActor(ctx, domain.ACTOR_ID_MODBUS, func() actor.Actor {
			return state.providers.Modbus()
		}); err != nil {
			panic(err)
		}

		// start Wallbox child
		if state.wallboxActor, err = state.startIOActor(ctx, domain.ACTOR_ID_WALLBOX, func() actor.Actor {
			return state.providers.Wallbox()
		}); err != nil {
			panic(err)
		}

		// start Collector child
		if state.collectorActor, err = state.startLogicActor(ctx, domain.ACTOR_ID_COLLECTOR, func() actor.Actor {
			return NewCollectorActor(state.modbusActor, state.store, state.eventStream,
				state.config.PollInterval(), state.config.SMAReadTimeout()+time.Second, state.logger)
		}); err != nil {
			panic(err)
		}

		// start Speedwire child
		if state.config.Speedwire.Enable && state.providers.Speedwire != nil {
			collector := state.collectorActor
			if _, err = state.startIOActor(ctx, domain.ACTOR_ID_SPEEDWIRE, func() actor.Actor {
				return state.providers.Speedwire(collector)
			}); err != nil {
				panic(err)
			}
		}

		// start Regulator child
		if state.regulatorActor, err = state.startLogicActor(ctx, domain.ACTOR_ID_REGULATOR, func() actor.Actor {
			logic := &service.DefaultChargeControlLogic{
				Regulation:   state.config.RegulationConfig(),
				MaxSignalAge: state.config.MaxSignalAge(),
				Logger:       state.logger,
			}
			return NewRegulatorActor(state.wallboxActor, state.store, logic, state.eventStream,
				state.config.ControlInterval(), state.config.WallboxCallTimeout()+time.Second, state.logger)
		}); err != nil {
			panic(err)
		}

		// start MQTT child
		if state.config.MQTT.Enable && state.providers.MQTT != nil {
			if state.mqttActor, err = state.startIOActor(ctx, domain.ACTOR_ID_MQTT, func() actor.Actor {
				return state.providers.MQTT(state.eventStream)
			}); err != nil {
				panic(err)
			}

			// start HA Discovery
			if state.config.MQTT.HADiscoveryEnable {
				mqttActor := state.mqttActor
				if _, err = state.startLogicActor(ctx, HADISCOVERY_ACTOR_ID, func() actor.Actor {
					return NewHADiscoveryActor(&state.config, mqttActor, state.logger)
				}); err != nil {
					panic(err)
				}
			}
		}

		state.behavior.Become(state.DefaultReceive)
		state.stash.UnstashAll(ctx)
	default:
		state.logger.Debug("master@starting stash", MessageType(msg))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MasterOfPuppetsActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		state.logger.Debug("master@default ActorHealthRequest")
		state.currentHealthCheck = healthCheckResult{
			healthy:   map[string]bool{},
			expected:  len(state.children),
			respondTo: ctx.Sender(),
		}
		for id, pid := range state.children {
			childId := id
			PipeToSelfWithRecover(ctx, ctx.RequestFuture(pid, domain.ActorHealthRequest{}, 500*time.Millisecond), func(err error) any {
				return domain.ActorHealthResponse{
					Id:      childId,
					Healthy: false,
				}
			})
		}

		ctx.SetReceiveTimeout(1 * time.Second)

		state.behavior.BecomeStacked(state.HealthCheckReceive)
	case adactor.ParsedCommand:
		// redirect parsedCommand to actor
		state.logger.Debug("master@default parsedCommand", zap.Any("command", msg.Command))
		if msg.Command != nil {
			cmd, err := ParsedMQTTCommandToCommand(*msg.Command)
			if err != nil {
				state.logger.Warn("master@default invalid command", zap.Error(err))
				return
			}
			switch pcmd := cmd.(type) {
			case domain.ChargeControlRequest:
				ctx.Send(state.regulatorActor, pcmd)
			}
		}
	case domain.ChargeControlRequest:
		state.logger.Debug("master@default ChargeControlRequest", MessageType(msg))
		ctx.Forward(state.regulatorActor)
	case *actor.Terminated:
		// if some I/O actor gives up, terminate
		for _, id := range []string{domain.ACTOR_ID_MODBUS, domain.ACTOR_ID_WALLBOX} {
			if msg.Who.Id == fmt.Sprintf("%s/%s", ctx.Self().Id, id) {
				state.logger.Error("master@default child terminated", zap.String("child", id))
				panic(errors.New(id + " terminated"))
			}
		}
	default:
		state.logger.Debug("master@default recv", MessageType(msg))
	}
}

func (state *MasterOfPuppetsActor) HealthCheckReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.ReceiveTimeout:
		// if some actor does not respond to healthCheck, assume not healthy
		ctx.SetReceiveTimeout(0)
		state.currentHealthCheck.respond(ctx)
		state.behavior.UnbecomeStacked()
		state.stash.UnstashAll(ctx)
	case domain.ActorHealthResponse:
		state.logger.Debug("master@healthcheck ActorHealthResponse", zap.String("sender", msg.Id), zap.Bool("healthy", msg.Healthy))
		state.currentHealthCheck.checksReceived++
		state.currentHealthCheck.healthy[msg.Id] = msg.Healthy
		if state.currentHealthCheck.allReceived() {
			ctx.SetReceiveTimeout(0)
			state.currentHealthCheck.respond(ctx)

			state.behavior.UnbecomeStacked()
			state.stash.UnstashAll(ctx)
		}
	default:
		state.logger.Debug("master@healthcheck stash", MessageType(msg))
		state.stash.Stash(ctx, msg)
	}
}

// startIOActor spawns an actor that owns a device or a connection.
// Those are restarted with backoff, forever.
func (state *MasterOfPuppetsActor) startIOActor(ctx actor.Context, id string, producer actor.Producer) (*actor.PID, error) {
	supervisor := actor.NewExponentialBackoffStrategy(10*time.Second, 1*time.Second)
	return state.spawnChild(ctx, id, actor.PropsFromProducer(producer, actor.WithSupervisor(supervisor)))
}

func (state *MasterOfPuppetsActor) startLogicActor(ctx actor.Context, id string, producer actor.Producer) (*actor.PID, error) {
	decider := func(reason interface{}) actor.Directive {
		state.logger.Error("master: handling failure for child", zap.String("child", id), zap.Any("reason", reason))
		return actor.RestartDirective
	}
	supervisor := actor.NewOneForOneStrategy(10, 10*time.Second, decider)
	return state.spawnChild(ctx, id, actor.PropsFromProducer(producer, actor.WithSupervisor(supervisor)))
}

func (state *MasterOfPuppetsActor) spawnChild(ctx actor.Context, id string, props *actor.Props) (*actor.PID, error) {
	pid, err := ctx.SpawnNamed(props, id)
	if err != nil {
		return nil, err
	}
	state.children[id] = pid
	return pid, nil
}

func (state *healthCheckResult) allReceived() bool {
	return state.checksReceived >= state.expected
}

func (state *healthCheckResult) allHealthy() bool {
	if len(state.healthy) < state.expected {
		return false
	}
	for _, healthy := range state.healthy {
		if !healthy {
			return false
		}
	}
	return true
}

func (state *healthCheckResult) respond(ctx actor.Context) {
	resp := domain.ActorHealthResponse{
		Id:      domain.ACTOR_ID_MASTER,
		Healthy: state.allHealthy(),
	}
	if !resp.Healthy {
		resp.State = "degraded"
	}
	if state.respondTo != nil {
		ctx.Send(state.respondTo, resp)
	}
}
