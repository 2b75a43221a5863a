package actor

import (
	"errors"
	"fmt"
	"time"

	"github.com/berfenger/wallbox2mqtt/internal/core/domain"
	"github.com/berfenger/wallbox2mqtt/internal/util/actorutil"
	"github.com/berfenger/wallbox2mqtt/pkg/sma_modbus"

	"github.com/asynkron/protoactor-go/actor"
	"go.uber.org/zap"
)

const (
	MODBUS_ACTOR_ID = domain.ACTOR_ID_MODBUS
)

var registerSignals = map[string]domain.Signal{
	sma_modbus.REGISTER_TRIPOWER_TOTAL_POWER: domain.SignalPVPower,
	sma_modbus.REGISTER_TRIPOWER_STR1_POWER:  domain.SignalPVString1Power,
	sma_modbus.REGISTER_TRIPOWER_STR2_POWER:  domain.SignalPVString2Power,
	sma_modbus.REGISTER_TRIPOWER_STR3_POWER:  domain.SignalPVString3Power,
	sma_modbus.REGISTER_BATTERY_POWER:        domain.SignalBatteryPower,
	sma_modbus.REGISTER_BATTERY_SOC:          domain.SignalBatterySoC,
}

// ModbusActor owns the SMA inverters. Reads run one at a time, requests
// arriving meanwhile are stashed.
type ModbusActor struct {
	behavior    actor.Behavior
	stash       *actorutil.Stash
	reader      sma_modbus.SMAModbusReader
	readTimeout time.Duration
	logger      *zap.Logger
}

type backgroundTaskResult struct {
	message any
	replyTo *actor.PID
}

func NewModbusActor(reader sma_modbus.SMAModbusReader, readTimeout time.Duration, logger *zap.Logger) *ModbusActor {
	act := &ModbusActor{
		reader:      reader,
		readTimeout: readTimeout,
		behavior:    actor.NewBehavior(),
		stash:       &actorutil.Stash{},
		logger:      actorutil.ActorLogger(MODBUS_ACTOR_ID, logger),
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *ModbusActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *ModbusActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("modbus@starting started")
		if err := state.reader.Open(); err != nil {
			// unreachable devices are retried lazily on every read
			state.logger.Warn("modbus@starting: could not open every device", zap.Error(err))
		}
		state.behavior.Become(state.DefaultReceive)
		state.stash.UnstashAll(ctx)
	case *actor.Restarting:
		state.reader.Close()
	default:
		state.logger.Debug("modbus@starting: stash", actorutil.MessageType(msg))
		state.stash.Stash(ctx, msg)
	}
}

func (state *ModbusActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		state.logger.Debug("modbus@default: ActorHealthRequest")
		ctx.Respond(domain.ActorHealthResponse{
			Id:      MODBUS_ACTOR_ID,
			Healthy: true,
			State:   "idle",
		})
	case domain.ReadSignalsRequest:
		state.logger.Debug("modbus@default: ReadSignalsRequest")
		sender := actorutil.ReplyTarget(ctx, msg)
		actorutil.MapBackgroundTask(actorutil.NewBackgroundTaskNoError(ctx, state.readSignals),
			mapTaskResult[domain.ReadSignalsResponse](sender)).Recover(func(err error) backgroundTaskResult {
			return backgroundTaskResult{
				message: domain.ReadSignalsResponse{
					ActorResponseMixIn: domain.FailedResponse(err),
				},
				replyTo: sender,
			}
		}).WarnAfter(state.readTimeout, state.slowCall).PipeTo(ctx.Self())
		state.behavior.BecomeStacked(state.WaitingModbus)
	case *actor.Stopping:
		state.reader.Close()
	case *actor.Restarting:
		state.reader.Close()
	default:
		state.logger.Debug("modbus@default default recv", actorutil.MessageType(msg))
	}
}

func (state *ModbusActor) WaitingModbus(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case backgroundTaskResult:
		state.logger.Debug("modbus@WaitingModbus backgroundTaskResult", actorutil.MessageType(msg.message))
		ctx.Send(msg.replyTo, msg.message)
		state.behavior.UnbecomeStacked()
		state.stash.UnstashAll(ctx)
	case *actor.Stopping:
		state.reader.Close()
	case *actor.Restarting:
		state.reader.Close()
	default:
		state.logger.Debug("modbus@WaitingModbus stash", actorutil.MessageType(msg))
		state.stash.Stash(ctx, msg)
	}
}

// readSignals never fails as a whole: every register carries its own error.
// The response only fails when no register could be read at all.
func (state *ModbusActor) readSignals() *domain.ReadSignalsResponse {
	values := state.reader.ReadAll()
	readings := make([]domain.SignalReading, 0, len(values))
	var errs []error
	for _, v := range values {
		signal, ok := registerSignals[v.Descriptor.Name]
		if !ok {
			state.logger.Warn("modbus: register without signal", zap.String("register", v.Descriptor.Name))
			continue
		}
		reading := domain.SignalReading{Signal: signal, Err: v.Err}
		if v.Err == nil && v.Valid {
			reading.Reading = domain.ValidReading(int(v.Value))
		}
		if v.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", v.Descriptor.Name, v.Err))
		}
		readings = append(readings, reading)
	}
	resp := &domain.ReadSignalsResponse{Readings: readings}
	if len(readings) > 0 && len(errs) == len(readings) {
		resp.ResponseError = errors.Join(errs...)
	} else if len(errs) > 0 {
		state.logger.Warn("modbus: some registers could not be read", zap.Error(errors.Join(errs...)))
	}
	return resp
}

func mapTaskResult[T any](sender *actor.PID) func(t *T) *backgroundTaskResult {
	return func(t *T) *backgroundTaskResult {
		return &backgroundTaskResult{
			message: *t,
			replyTo: sender,
		}
	}
}

func (state *ModbusActor) slowCall(elapsed time.Duration) {
	state.logger.Warn("modbus: slow register read", zap.Duration("elapsed", elapsed), zap.Duration("expected", state.readTimeout))
}
