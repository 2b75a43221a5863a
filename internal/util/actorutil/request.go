package actorutil

import (
	"github.com/berfenger/wallbox2mqtt/internal/core/domain"

	"github.com/asynkron/protoactor-go/actor"
)

// ReplyTarget is where the response to req goes: its explicit target when
// set, the sender otherwise. Capture it before leaving the receive call,
// the sender is gone once a background task completes.
func ReplyTarget(ctx actor.Context, req domain.ActorRequest) *actor.PID {
	if pid := req.ResponseTarget(); pid != nil {
		return pid
	}
	return ctx.Sender()
}

func Respond(ctx actor.Context, req domain.ActorRequest, resp domain.ActorResponse) {
	if pid := req.ResponseTarget(); pid != nil {
		ctx.Send(pid, resp)
		return
	}
	if ctx.Sender() != nil {
		ctx.Respond(resp)
	}
}
