package actorutil

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/berfenger/wallbox2mqtt/internal/core/domain"
	"github.com/berfenger/wallbox2mqtt/internal/mqtt"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/lmittmann/tint"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func PipeToSelfWithRecover(ctx actor.Context, future *actor.Future, mapFn func(error) any) {
	ctx.ReenterAfter(future, func(msg any, err error) {
		if err != nil {
			ctx.Send(ctx.Self(), mapFn(err))
			return
		}
		ctx.Send(ctx.Self(), msg)
	})
}

// NewActorSystemWithZapLogger routes the actor system's own slog output
// through logger, at the same level.
func NewActorSystemWithZapLogger(logger *zap.Logger) *actor.ActorSystem {
	writer := zap.NewStdLog(logger.Named("protoactor")).Writer()
	level := slogLevel(logger.Level())
	return actor.NewActorSystem(actor.WithLoggerFactory(func(system *actor.ActorSystem) *slog.Logger {
		return slog.New(tint.NewHandler(writer, &tint.Options{
			Level:      level,
			TimeFormat: time.DateTime,
			NoColor:    true,
		}))
	}))
}

// slogLevel maps debug..error onto the slog levels. Anything above error is error.
func slogLevel(level zapcore.Level) slog.Level {
	if level > zapcore.ErrorLevel {
		level = zapcore.ErrorLevel
	}
	return slog.Level(int(level) * 4)
}

func ActorLogger(actorName string, logger *zap.Logger) *zap.Logger {
	return logger.With(zap.String("actor", actorName))
}

func MessageType(msg any) zap.Field {
	return zap.String("type", fmt.Sprintf("%T", msg))
}

// ParsedMQTTCommandToCommand maps an MQTT switch command to an actor request.
// Unknown devices map to nil.
func ParsedMQTTCommandToCommand(cmd mqtt.ParsedMQTTCommand) (domain.ActorRequest, error) {
	switch cmd.DeviceId {
	case domain.SWITCH_ID_SOLAR_ONLY_CHARGING:
		switch cmd.Payload {
		case mqtt.MQTT_PAYLOAD_ON:
			return domain.SetSolarOnlyChargingRequest{Enable: true}, nil
		case mqtt.MQTT_PAYLOAD_OFF:
			return domain.SetSolarOnlyChargingRequest{Enable: false}, nil
		default:
			return nil, fmt.Errorf("%w: payload %q for switch %s", mqtt.ErrInvalidCommand, cmd.Payload, cmd.DeviceId)
		}
	}
	return nil, nil
}
