package actor

import (
	"time"

	"github.com/berfenger/wallbox2mqtt/internal/core/domain"
	"github.com/berfenger/wallbox2mqtt/internal/util/actorutil"
	"github.com/berfenger/wallbox2mqtt/pkg/speedwire"

	"github.com/asynkron/protoactor-go/actor"
	"go.uber.org/zap"
)

const (
	SPEEDWIRE_ACTOR_ID = domain.ACTOR_ID_SPEEDWIRE
)

type SpeedwireConfig struct {
	GridMeterIP    string
	EnergyMeterIP  string
	ReceiveTimeout time.Duration
}

type speedwireMeasurement struct {
	measurement speedwire.Measurement
}

type speedwireSilence struct {
}

type speedwireReceiveError struct {
	err error
}

// SpeedwireActor listens for SMA meter datagrams and forwards the decoded
// power of the known meters to target. Datagrams from other senders are ignored.
type SpeedwireActor struct {
	config   SpeedwireConfig
	listen   func() (*speedwire.Listener, error)
	listener *speedwire.Listener
	target   *actor.PID
	done     chan struct{}
	lastSeen map[string]time.Time
	logger   *zap.Logger
}

func NewSpeedwireActor(config SpeedwireConfig, listen func() (*speedwire.Listener, error), target *actor.PID, logger *zap.Logger) *SpeedwireActor {
	if config.ReceiveTimeout <= 0 {
		config.ReceiveTimeout = 5 * time.Second
	}
	return &SpeedwireActor{
		config:   config,
		listen:   listen,
		target:   target,
		lastSeen: map[string]time.Time{},
		logger:   actorutil.ActorLogger(SPEEDWIRE_ACTOR_ID, logger),
	}
}

func (state *SpeedwireActor) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("speedwire@default started")
		listener, err := state.listen()
		if err != nil {
			// let the supervisor retry
			panic(err)
		}
		state.listener = listener
		state.done = make(chan struct{})
		go state.receiveLoop(ctx.ActorSystem().Root, ctx.Self(), listener, state.done)
	case speedwireMeasurement:
		signal, ok := state.signalFor(msg.measurement.SourceIP)
		if !ok {
			state.logger.Debug("speedwire@default datagram from unknown meter", zap.String("ip", msg.measurement.SourceIP))
			return
		}
		state.lastSeen[msg.measurement.SourceIP] = time.Now()
		ctx.Send(state.target, domain.SignalReadingsUpdate{
			Source: SPEEDWIRE_ACTOR_ID,
			Readings: []domain.SignalReading{{
				Signal:  signal,
				Reading: domain.ValidReading(msg.measurement.PowerW),
			}},
		})
	case speedwireSilence:
		state.logger.Debug("speedwire@default no datagram received", zap.Duration("timeout", state.config.ReceiveTimeout))
	case speedwireReceiveError:
		state.logger.Error("speedwire@default receive failed", zap.Error(msg.err))
		panic(msg.err)
	case domain.ActorHealthRequest:
		ctx.Respond(domain.ActorHealthResponse{
			Id:      SPEEDWIRE_ACTOR_ID,
			Healthy: true,
			State:   state.healthState(),
		})
	case *actor.Stopping:
		state.close()
	case *actor.Restarting:
		state.close()
	default:
		state.logger.Debug("speedwire@default default recv", actorutil.MessageType(msg))
	}
}

func (state *SpeedwireActor) signalFor(ip string) (domain.Signal, bool) {
	switch ip {
	case state.config.GridMeterIP:
		return domain.SignalGridPower, true
	case state.config.EnergyMeterIP:
		return domain.SignalMeterPower, true
	}
	return "", false
}

func (state *SpeedwireActor) healthState() string {
	at, ok := state.lastSeen[state.config.GridMeterIP]
	if !ok {
		return "waiting"
	}
	if state.config.ReceiveTimeout > 0 && time.Since(at) > 2*state.config.ReceiveTimeout {
		return "silent"
	}
	return "listening"
}

// receiveLoop runs outside the actor and only talks to it through messages.
func (state *SpeedwireActor) receiveLoop(root *actor.RootContext, self *actor.PID, listener *speedwire.Listener, done chan struct{}) {
	for {
		m, ok, err := listener.Receive(state.config.ReceiveTimeout)
		select {
		case <-done:
			return
		default:
		}
		switch {
		case err != nil:
			root.Send(self, speedwireReceiveError{err: err})
			return
		case !ok:
			root.Send(self, speedwireSilence{})
		default:
			root.Send(self, speedwireMeasurement{measurement: m})
		}
	}
}

func (state *SpeedwireActor) close() {
	if state.done != nil {
		close(state.done)
		state.done = nil
	}
	if state.listener != nil {
		state.listener.Close()
		state.listener = nil
	}
}
