package actor

import (
	"time"

	"github.com/berfenger/wallbox2mqtt/internal/core/domain"
	"github.com/berfenger/wallbox2mqtt/internal/core/events"
	"github.com/berfenger/wallbox2mqtt/internal/core/port"
	"github.com/berfenger/wallbox2mqtt/internal/core/service"
	"github.com/berfenger/wallbox2mqtt/internal/core/store"
	. "github.com/berfenger/wallbox2mqtt/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/asynkron/protoactor-go/scheduler"
	"go.uber.org/zap"
)

// RegulatorActor runs one regulation cycle per tick:
// read charger state, read current limit, decide, write.
// Every wallbox exchange is awaited in its own state. Mode commands are
// answered in any state, a new mode takes effect on the next decision.
// Everything else received during a cycle is stashed.
type RegulatorActor struct {
	ActorWithStates
	scheduler *scheduler.TimerScheduler
	stash     *Stash

	wallboxActor   *actor.PID
	store          *store.SignalStore
	gate           *service.ModeGate
	logic          port.ChargeControlLogic
	eventStream    *eventstream.EventStream
	interval       time.Duration
	requestTimeout time.Duration
	lastResult     *domain.ChargeControlTickResult
	pendingTick    *regulatorTick
	cancelTick     scheduler.CancelFunc
	tickSeq        uint64

	logger *zap.Logger
}

// regulatorTick is matched by identity: ticks left over from a previous
// incarnation or a cancelled schedule are dropped.
type regulatorTick struct {
	seq uint64
}

func NewRegulatorActor(wallboxActor *actor.PID, signalStore *store.SignalStore, logic port.ChargeControlLogic,
	eventStream *eventstream.EventStream, interval, requestTimeout time.Duration, logger *zap.Logger) *RegulatorActor {
	act := &RegulatorActor{
		wallboxActor:   wallboxActor,
		store:          signalStore,
		gate:           service.NewModeGate(signalStore),
		logic:          logic,
		eventStream:    eventStream,
		interval:       interval,
		requestTimeout: requestTimeout,
		stash:          &Stash{},
		logger:         ActorLogger(domain.ACTOR_ID_REGULATOR, logger),
		ActorWithStates: ActorWithStates{
			Behavior: actor.NewBehavior(),
		},
	}
	act.Become(RegIdleState{
		actor: act,
	})
	return act
}

func (state *RegulatorActor) Receive(context actor.Context) {
	switch msg := context.Message().(type) {
	case *actor.Restarting, *actor.Stopping:
		state.stopTicks()
	case domain.ChargeControlRequest:
		state.handleCommand(context, msg)
		return
	}
	state.Behavior.Receive(context)
}

// Idle state

type RegIdleState struct {
	ActorState
	actor *RegulatorActor
}

func (state RegIdleState) Name() string {
	return "idle"
}

func (state RegIdleState) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.actor.logger.Debug("regulator@idle started")
		state.actor.scheduler = scheduler.NewTimerScheduler(ctx)
		state.actor.publish(events.SolarOnlySwitchUpdateEvent(state.actor.gate.SolarOnly()))
		state.actor.scheduleTick(ctx)
	case *actor.Restarting:
	case domain.ActorHealthRequest:
		state.actor.respondHealth(ctx)
	case *regulatorTick:
		if msg != state.actor.pendingTick {
			state.actor.logger.Debug("regulator@idle: stale tick dropped", zap.Uint64("seq", msg.seq))
			return
		}
		state.actor.pendingTick = nil
		state.actor.logger.Debug("regulator@idle tick")
		state.actor.BecomeStacked(RegAwaitChargerStateState{
			actor: state.actor,
		}.OnEnterAction(ctx))
	default:
		state.actor.logger.Debug("regulator@idle: recv", MessageType(msg))
	}
}

// Await charger state

type RegAwaitChargerStateState struct {
	ActorState
	actor *RegulatorActor
}

func (state RegAwaitChargerStateState) Name() string {
	return "awaitChargerState"
}

func (state RegAwaitChargerStateState) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.GetChargerStateResponse:
		if msg.HasResponseError() {
			state.actor.logger.Error("regulator@awaitChargerState: GetChargerStateResponse error", zap.Error(msg.GetResponseError()))
			state.actor.endCycle(ctx, nil)
			return
		}
		state.actor.logger.Debug("regulator@awaitChargerState: GetChargerStateResponse", zap.Stringer("state", msg.State))
		state.actor.store.Update(domain.SignalChargerState, domain.ValidReading(int(msg.State)))
		snapshot := state.actor.store.Snapshot()
		state.actor.publish(events.ChargerStateToUpdateEvents(snapshot.Charger)...)
		if !state.actor.logic.NeedsCurrentLimit(snapshot) {
			// no read or write of the current limit this cycle
			result := state.actor.logic.Loop(snapshot)
			state.actor.endCycle(ctx, &result)
			return
		}
		state.actor.UnbecomeStacked()
		state.actor.BecomeStacked(RegAwaitCurrentLimitState{
			actor: state.actor,
		}.OnEnterAction(ctx))
	case domain.ActorHealthRequest:
		state.actor.respondHealth(ctx)
	default:
		state.actor.logger.Debug("regulator@awaitChargerState: stash", MessageType(msg))
		state.actor.stash.Stash(ctx, msg)
	}
}

func (state RegAwaitChargerStateState) OnEnterAction(ctx actor.Context) RegAwaitChargerStateState {
	PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.actor.wallboxActor,
		domain.GetChargerStateRequest{}, state.actor.requestTimeout),
		func(err error) any {
			return domain.GetChargerStateResponse{
				ActorResponseMixIn: domain.FailedResponse(err),
			}
		})
	return state
}

// Await current limit

type RegAwaitCurrentLimitState struct {
	ActorState
	actor *RegulatorActor
}

func (state RegAwaitCurrentLimitState) Name() string {
	return "awaitCurrentLimit"
}

func (state RegAwaitCurrentLimitState) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.GetCurrentLimitResponse:
		if msg.HasResponseError() {
			state.actor.logger.Error("regulator@awaitCurrentLimit: GetCurrentLimitResponse error", zap.Error(msg.GetResponseError()))
			state.actor.endCycle(ctx, nil)
			return
		}
		state.actor.store.Update(domain.SignalCurrentLimit, domain.ValidReading(msg.LimitA))
		snapshot := state.actor.store.Snapshot()
		result := state.actor.logic.Loop(snapshot)
		state.actor.logger.Debug("regulator@awaitCurrentLimit: decision",
			zap.String("action", string(result.Action)),
			zap.Int("excess", result.ExcessPowerW),
			zap.Int("limit", result.PreviousLimitA),
			zap.Int("newLimit", result.NewLimitA),
			zap.Bool("write", result.Write))
		if !result.Write {
			state.actor.endCycle(ctx, &result)
			return
		}
		state.actor.UnbecomeStacked()
		state.actor.BecomeStacked(RegAwaitWriteState{
			actor:  state.actor,
			result: result,
		}.OnEnterAction(ctx))
	case domain.ActorHealthRequest:
		state.actor.respondHealth(ctx)
	default:
		state.actor.logger.Debug("regulator@awaitCurrentLimit: stash", MessageType(msg))
		state.actor.stash.Stash(ctx, msg)
	}
}

func (state RegAwaitCurrentLimitState) OnEnterAction(ctx actor.Context) RegAwaitCurrentLimitState {
	PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.actor.wallboxActor,
		domain.GetCurrentLimitRequest{}, state.actor.requestTimeout),
		func(err error) any {
			return domain.GetCurrentLimitResponse{
				ActorResponseMixIn: domain.FailedResponse(err),
			}
		})
	return state
}

// Await write

type RegAwaitWriteState struct {
	ActorState
	actor  *RegulatorActor
	result domain.ChargeControlTickResult
}

func (state RegAwaitWriteState) Name() string {
	return "awaitWrite"
}

func (state RegAwaitWriteState) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.SetCurrentLimitResponse:
		result := state.result
		if msg.HasResponseError() {
			// the previous limit stays in the store, next cycle decides again
			state.actor.logger.Error("regulator@awaitWrite: SetCurrentLimitResponse error",
				zap.Int("limit", state.result.NewLimitA), zap.Error(msg.GetResponseError()))
			result.Write = false
			result.NewLimitA = result.PreviousLimitA
			result.Reason = "write failed: " + msg.GetResponseError().Error()
		} else {
			state.actor.logger.Info("regulator: charging current limit set",
				zap.Int("from", state.result.PreviousLimitA), zap.Int("to", state.result.NewLimitA),
				zap.String("action", string(state.result.Action)), zap.Int("excess", state.result.ExcessPowerW))
			state.actor.store.Update(domain.SignalCurrentLimit, domain.ValidReading(state.result.NewLimitA))
		}
		state.actor.endCycle(ctx, &result)
	case domain.ActorHealthRequest:
		state.actor.respondHealth(ctx)
	default:
		state.actor.logger.Debug("regulator@awaitWrite: stash", MessageType(msg))
		state.actor.stash.Stash(ctx, msg)
	}
}

func (state RegAwaitWriteState) OnEnterAction(ctx actor.Context) RegAwaitWriteState {
	PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.actor.wallboxActor,
		domain.SetCurrentLimitRequest{LimitA: state.result.NewLimitA}, state.actor.requestTimeout),
		func(err error) any {
			return domain.SetCurrentLimitResponse{
				ActorResponseMixIn: domain.FailedResponse(err),
				LimitA:             state.result.NewLimitA,
			}
		})
	return state
}

// Other actor function helpers

// endCycle leaves the stacked await state, publishes the outcome and
// schedules the next tick. A nil result means the cycle was aborted.
func (state *RegulatorActor) endCycle(ctx actor.Context, result *domain.ChargeControlTickResult) {
	if result != nil {
		state.lastResult = result
		state.publish(events.TickResultToUpdateEvents(*result)...)
	}
	state.scheduleTick(ctx)
	state.UnbecomeStacked()
	state.stash.UnstashAll(ctx)
}

func (state *RegulatorActor) scheduleTick(ctx actor.Context) {
	state.stopTicks()
	state.tickSeq++
	tick := &regulatorTick{seq: state.tickSeq}
	state.pendingTick = tick
	state.cancelTick = state.scheduler.RequestOnce(state.interval, ctx.Self(), tick)
}

func (state *RegulatorActor) stopTicks() {
	if state.cancelTick != nil {
		state.cancelTick()
		state.cancelTick = nil
	}
	state.pendingTick = nil
}

func (state *RegulatorActor) handleCommand(ctx actor.Context, cmd domain.ChargeControlRequest) {
	switch msg := cmd.(type) {
	case domain.SetSolarOnlyChargingRequest:
		changed := state.gate.SetSolarOnly(msg.Enable)
		state.logger.Info("regulator: solar only charging", zap.Bool("enabled", msg.Enable), zap.Bool("changed", changed))
		state.publish(events.SolarOnlySwitchUpdateEvent(msg.Enable))
		Respond(ctx, msg, domain.SetSolarOnlyChargingResponse{
			SolarOnly: msg.Enable,
			Changed:   changed,
		})
	case domain.GetChargeControlStateRequest:
		resp := domain.GetChargeControlStateResponse{
			SolarOnly: state.gate.SolarOnly(),
		}
		if state.lastResult != nil {
			last := *state.lastResult
			resp.LastResult = &last
		}
		Respond(ctx, msg, resp)
	}
}

func (state *RegulatorActor) respondHealth(ctx actor.Context) {
	ctx.Respond(domain.ActorHealthResponse{
		Id:      domain.ACTOR_ID_REGULATOR,
		Healthy: true,
		State:   state.StateName(),
	})
}

func (state *RegulatorActor) publish(evs ...any) {
	if state.eventStream == nil {
		return
	}
	for _, ev := range evs {
		state.eventStream.Publish(ev)
	}
}
