package actor

import (
	"fmt"
	"time"

	"github.com/berfenger/wallbox2mqtt/internal/core/domain"
	"github.com/berfenger/wallbox2mqtt/internal/util/actorutil"
	"github.com/berfenger/wallbox2mqtt/pkg/sma_modbus"

	"github.com/asynkron/protoactor-go/actor"
	"go.uber.org/zap"
)

const (
	WALLBOX_ACTOR_ID = domain.ACTOR_ID_WALLBOX
)

// WallboxActor serializes every Modbus exchange with the charger.
type WallboxActor struct {
	behavior actor.Behavior
	stash    *actorutil.Stash
	client   sma_modbus.WallboxModbusClient
	timeout  time.Duration
	logger   *zap.Logger
}

func NewWallboxActor(client sma_modbus.WallboxModbusClient, timeout time.Duration, logger *zap.Logger) *WallboxActor {
	act := &WallboxActor{
		client:   client,
		timeout:  timeout,
		behavior: actor.NewBehavior(),
		stash:    &actorutil.Stash{},
		logger:   actorutil.ActorLogger(WALLBOX_ACTOR_ID, logger),
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *WallboxActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *WallboxActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("wallbox@starting started")
		if err := state.client.Open(); err != nil {
			state.logger.Warn("wallbox@starting: could not connect, will retry on next request", zap.Error(err))
		}
		state.behavior.Become(state.DefaultReceive)
		state.stash.UnstashAll(ctx)
	case *actor.Restarting:
		state.client.Close()
	default:
		state.logger.Debug("wallbox@starting: stash", actorutil.MessageType(msg))
		state.stash.Stash(ctx, msg)
	}
}

func (state *WallboxActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		ctx.Respond(domain.ActorHealthResponse{
			Id:      WALLBOX_ACTOR_ID,
			Healthy: true,
			State:   "idle",
		})
	case domain.GetChargerStateRequest:
		state.logger.Debug("wallbox@default: GetChargerStateRequest")
		sender := actorutil.ReplyTarget(ctx, msg)
		actorutil.MapBackgroundTask(actorutil.NewBackgroundTask(ctx, state.getChargerState),
			mapTaskResult[domain.GetChargerStateResponse](sender)).Recover(func(err error) backgroundTaskResult {
			return backgroundTaskResult{
				message: domain.GetChargerStateResponse{
					ActorResponseMixIn: domain.FailedResponse(err),
				},
				replyTo: sender,
			}
		}).WarnAfter(state.timeout, state.slowCall).PipeTo(ctx.Self())
		state.behavior.BecomeStacked(state.WaitingModbus)
	case domain.GetCurrentLimitRequest:
		state.logger.Debug("wallbox@default: GetCurrentLimitRequest")
		sender := actorutil.ReplyTarget(ctx, msg)
		actorutil.MapBackgroundTask(actorutil.NewBackgroundTask(ctx, state.getCurrentLimit),
			mapTaskResult[domain.GetCurrentLimitResponse](sender)).Recover(func(err error) backgroundTaskResult {
			return backgroundTaskResult{
				message: domain.GetCurrentLimitResponse{
					ActorResponseMixIn: domain.FailedResponse(err),
				},
				replyTo: sender,
			}
		}).WarnAfter(state.timeout, state.slowCall).PipeTo(ctx.Self())
		state.behavior.BecomeStacked(state.WaitingModbus)
	case domain.SetCurrentLimitRequest:
		state.logger.Debug("wallbox@default: SetCurrentLimitRequest", zap.Int("limit", msg.LimitA))
		sender := actorutil.ReplyTarget(ctx, msg)
		limit := msg.LimitA
		actorutil.MapBackgroundTask(actorutil.NewBackgroundTask(ctx, func() (*domain.SetCurrentLimitResponse, error) {
			return state.setCurrentLimit(limit)
		}),
			mapTaskResult[domain.SetCurrentLimitResponse](sender)).Recover(func(err error) backgroundTaskResult {
			return backgroundTaskResult{
				message: domain.SetCurrentLimitResponse{
					ActorResponseMixIn: domain.FailedResponse(err),
					LimitA:             limit,
				},
				replyTo: sender,
			}
		}).WarnAfter(state.timeout, state.slowCall).PipeTo(ctx.Self())
		state.behavior.BecomeStacked(state.WaitingModbus)
	case *actor.Stopping:
		state.client.Close()
	case *actor.Restarting:
		state.client.Close()
	default:
		state.logger.Debug("wallbox@default default recv", actorutil.MessageType(msg))
	}
}

func (state *WallboxActor) WaitingModbus(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case backgroundTaskResult:
		state.logger.Debug("wallbox@WaitingModbus backgroundTaskResult", actorutil.MessageType(msg.message))
		ctx.Send(msg.replyTo, msg.message)
		state.behavior.UnbecomeStacked()
		state.stash.UnstashAll(ctx)
	case *actor.Stopping:
		state.client.Close()
	case *actor.Restarting:
		state.client.Close()
	default:
		state.logger.Debug("wallbox@WaitingModbus stash", actorutil.MessageType(msg))
		state.stash.Stash(ctx, msg)
	}
}

func (state *WallboxActor) getChargerState() (*domain.GetChargerStateResponse, error) {
	raw, err := state.client.ReadChargingState()
	if err != nil {
		return nil, err
	}
	connection, err := domain.ConnectionStateFromRegister(raw)
	if err != nil {
		return nil, err
	}
	return &domain.GetChargerStateResponse{
		State: connection,
	}, nil
}

func (state *WallboxActor) getCurrentLimit() (*domain.GetCurrentLimitResponse, error) {
	raw, err := state.client.ReadMaxCurrent()
	if err != nil {
		return nil, err
	}
	return &domain.GetCurrentLimitResponse{
		LimitA: int(raw),
	}, nil
}

func (state *WallboxActor) setCurrentLimit(limit int) (*domain.SetCurrentLimitResponse, error) {
	if limit < 0 || limit > 0xFFFF {
		return nil, fmt.Errorf("current limit %d out of register range", limit)
	}
	if err := state.client.WriteMaxCurrent(uint16(limit)); err != nil {
		return nil, err
	}
	return &domain.SetCurrentLimitResponse{
		LimitA: limit,
	}, nil
}

// slowCall only logs: the call already completed and its outcome stands.
func (state *WallboxActor) slowCall(elapsed time.Duration) {
	state.logger.Warn("wallbox: slow modbus exchange", zap.Duration("elapsed", elapsed), zap.Duration("expected", state.timeout))
}
