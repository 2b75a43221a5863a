package actor

import (
	"time"

	"github.com/berfenger/wallbox2mqtt/internal/core/domain"
	"github.com/berfenger/wallbox2mqtt/internal/core/events"
	"github.com/berfenger/wallbox2mqtt/internal/core/store"
	. "github.com/berfenger/wallbox2mqtt/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/asynkron/protoactor-go/scheduler"
	"go.uber.org/zap"
)

// CollectorActor is the only writer of solar system signals into the store.
// It polls the modbus actor on its own timer and applies the readings pushed
// by the speedwire actor as they arrive.
type CollectorActor struct {
	behavior  actor.Behavior
	stash     *Stash
	scheduler *scheduler.TimerScheduler

	modbusActor    *actor.PID
	store          *store.SignalStore
	eventStream    *eventstream.EventStream
	pollInterval   time.Duration
	requestTimeout time.Duration
	failedPolls    uint
	nextPoll       *collectorTick
	cancelPoll     scheduler.CancelFunc

	logger *zap.Logger
}

// collectorTick is matched by identity, see regulatorTick.
type collectorTick struct {
	at time.Time
}

func NewCollectorActor(modbusActor *actor.PID, signalStore *store.SignalStore, eventStream *eventstream.EventStream,
	pollInterval, requestTimeout time.Duration, logger *zap.Logger) *CollectorActor {
	act := &CollectorActor{
		modbusActor:    modbusActor,
		store:          signalStore,
		eventStream:    eventStream,
		pollInterval:   pollInterval,
		requestTimeout: requestTimeout,
		behavior:       actor.NewBehavior(),
		stash:          &Stash{},
		logger:         ActorLogger(domain.ACTOR_ID_COLLECTOR, logger),
	}
	act.behavior.Become(act.DefaultReceive)
	return act
}

func (state *CollectorActor) Receive(context actor.Context) {
	switch context.Message().(type) {
	case *actor.Restarting, *actor.Stopping:
		if state.cancelPoll != nil {
			state.cancelPoll()
			state.cancelPoll = nil
		}
		state.nextPoll = nil
	}
	state.behavior.Receive(context)
}

func (state *CollectorActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("collector@default started")
		state.scheduler = scheduler.NewTimerScheduler(ctx)
		// first poll right away
		state.nextPoll = &collectorTick{at: time.Now()}
		ctx.Send(ctx.Self(), state.nextPoll)
	case domain.ActorHealthRequest:
		state.logger.Debug("collector@default: ActorHealthRequest")
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_COLLECTOR,
			Healthy: true,
			State:   state.healthState(),
		})
	case *collectorTick:
		if msg != state.nextPoll {
			state.logger.Debug("collector@default: stale tick dropped")
			return
		}
		state.logger.Debug("collector@default tick")
		PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.modbusActor, domain.ReadSignalsRequest{}, state.requestTimeout), func(err error) any {
			return domain.ReadSignalsResponse{
				ActorResponseMixIn: domain.FailedResponse(err),
			}
		})
		// schedule next tick
		state.nextPoll = &collectorTick{at: time.Now().Add(state.pollInterval)}
		state.cancelPoll = state.scheduler.RequestOnce(state.pollInterval, ctx.Self(), state.nextPoll)
		state.behavior.BecomeStacked(state.WaitingReadingsReceive)
	case domain.SignalReadingsUpdate:
		state.apply(msg.Source, msg.Readings)
		state.publish(events.SignalReadingsToUpdateEvents(msg.Readings))
	default:
		state.logger.Debug("collector@default recv", MessageType(msg))
	}
}

func (state *CollectorActor) WaitingReadingsReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ReadSignalsResponse:
		if msg.HasResponseError() {
			state.failedPolls++
			state.logger.Error("collector@waiting ReadSignalsResponse error", zap.Error(msg.GetResponseError()))
		} else {
			state.failedPolls = 0
		}
		// partial results are still applied, failed registers keep their value
		if state.apply(domain.ACTOR_ID_MODBUS, msg.Readings) > 0 {
			state.publish(events.SnapshotToUpdateEvents(state.store.Snapshot()))
		}
		state.behavior.UnbecomeStacked()
		state.stash.UnstashAll(ctx)
	default:
		state.logger.Debug("collector@waiting: stash", MessageType(msg))
		state.stash.Stash(ctx, msg)
	}
}

func (state *CollectorActor) apply(source string, readings []domain.SignalReading) int {
	for _, r := range readings {
		if r.Err != nil {
			state.logger.Debug("collector: reading failed", zap.String("source", source),
				zap.String("signal", string(r.Signal)), zap.Error(r.Err))
		}
	}
	applied := state.store.UpdateAll(readings)
	state.logger.Debug("collector: readings applied", zap.String("source", source), zap.Int("applied", applied), zap.Int("total", len(readings)))
	return applied
}

func (state *CollectorActor) publish(evs []any) {
	if state.eventStream == nil {
		return
	}
	for _, ev := range evs {
		state.eventStream.Publish(ev)
	}
}

func (state *CollectorActor) healthState() string {
	if state.failedPolls > 0 {
		return "degraded"
	}
	return "idle"
}
