package actor

import (
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/berfenger/wallbox2mqtt/internal/config"
	"github.com/berfenger/wallbox2mqtt/internal/core/domain"
	"github.com/berfenger/wallbox2mqtt/internal/mqtt"
	"github.com/berfenger/wallbox2mqtt/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

type MQTTActor struct {
	config         *config.Config
	behavior       actor.Behavior
	stash          *actorutil.Stash
	client         *mqtt.MQTTClient
	eventStream    *eventstream.EventStream
	eventStreamSub *eventstream.Subscription
	logger         *zap.Logger

	// only used by the dummy actor
	publishedMu sync.Mutex
	published   map[string]string
}

type MQTTConnected struct {
}

type MQTTSubscribed struct {
}

type MQTTConnectionLost struct {
	Error error
}

type OnEventStreamMessage struct {
	message any
}

type publishResult struct {
	topic string
	reply func(actor.Context, error)
	err   error
}

type ParsedCommand struct {
	Command *mqtt.ParsedMQTTCommand
}

type rawMessage struct {
	topic   string
	message string
	retain  bool
}

func NewMQTTActor(config *config.Config, eventStream *eventstream.EventStream, logger *zap.Logger) *MQTTActor {
	act := &MQTTActor{
		config:      config,
		behavior:    actor.NewBehavior(),
		stash:       &actorutil.Stash{},
		eventStream: eventStream,
		logger:      actorutil.ActorLogger(domain.ACTOR_ID_MQTT, logger),
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *MQTTActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *MQTTActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("mqtt@starting started")

		// create MQTT client
		state.client = mqtt.CreateMQTTClient(state.config, mqtt.OptsFromConfig(state.config), func(_ pahomqtt.Client) {
		}, func(_ pahomqtt.Client, err error) {
			ctx.Send(ctx.Self(), MQTTConnectionLost{Error: err})
		})

		// connect to MQTT server
		state.client.Connect(func(err error) {
			if err != nil {
				ctx.Send(ctx.Self(), MQTTConnectionLost{Error: err})
			} else {
				ctx.Send(ctx.Self(), MQTTConnected{})
			}
		}, 10*time.Second)

	case MQTTConnected:
		state.logger.Debug("mqtt@starting connected")

		state.publishBridgeState(true)

		state.subscribeEventStream(ctx)

		// subscribe to MQTT command topic
		state.client.SubscribeToCommandTopic(func(c pahomqtt.Client, m pahomqtt.Message) {
			cmd, err := state.client.ParseMQTTCommand(m)
			if err != nil {
				state.logger.Warn("mqtt: invalid command", zap.String("topic", m.Topic()), zap.Error(err))
				return
			}
			if cmd != nil {
				ctx.Send(ctx.Self(), ParsedCommand{Command: cmd})
			}
		}, func(err error) {
			if err != nil {
				ctx.Send(ctx.Self(), MQTTConnectionLost{Error: err})
			} else {
				ctx.Send(ctx.Self(), MQTTSubscribed{})
			}
		}, 1*time.Second)
	case MQTTSubscribed:
		// init completed, transition to default state
		state.logger.Debug("mqtt@starting subscribed")
		state.behavior.Become(state.DefaultReceive)
		state.stash.UnstashAll(ctx)
	case MQTTConnectionLost:
		// if connection lost, stop actor and let supervisor decide
		state.logger.Error("mqtt@starting connection lost", zap.Error(msg.Error))
		panic(msg.Error)
	case *actor.Restarting:
		state.stop()
	default:
		state.logger.Debug("mqtt@starting stash", actorutil.MessageType(msg))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MQTTActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Restarting:
		state.stop()
	case *actor.Stopping:
		state.stop()
	case domain.ActorHealthRequest:
		state.logger.Debug("mqtt@default ActorHealthRequest")
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_MQTT,
			Healthy: true,
			State:   "connected",
		})
	case ParsedCommand:
		// commands are routed by the parent
		state.logger.Debug("mqtt@default parsedCommand", zap.Any("command", msg.Command))
		ctx.Send(ctx.Parent(), msg)
	case OnEventStreamMessage:
		state.publish(ctx, state.event2MQTTMessage(msg.message), nil)
	case domain.PublishMessageRequest:
		state.logger.Debug("mqtt@default PublishMessageRequest", zap.String("topic", msg.Topic))
		state.publish(ctx, &rawMessage{topic: msg.Topic, message: msg.Payload, retain: msg.Retain},
			replyWith(actorutil.ReplyTarget(ctx, msg), func(err error) domain.ActorResponse {
				return domain.PublishMessageResponse{ActorResponseMixIn: domain.FailedResponse(err)}
			}))
	case domain.PublishSensorUpdateRequest:
		state.logger.Debug("mqtt@default PublishSensorUpdateRequest", zap.String("sensor", msg.Event.SensorId()))
		out := state.event2MQTTMessage(msg.Event)
		if out != nil && msg.Retain {
			out.retain = true
		}
		state.publish(ctx, out, replyWith(actorutil.ReplyTarget(ctx, msg), func(err error) domain.ActorResponse {
			return domain.PublishSensorUpdateResponse{ActorResponseMixIn: domain.FailedResponse(err)}
		}))
	case domain.PublishDiscoveryRequest:
		state.logger.Debug("mqtt@default PublishDiscoveryRequest")
		messages, err := state.discoveryMessages(msg.Sensors, msg.Switches)
		if err != nil {
			state.logger.Error("mqtt@default discovery error", zap.Error(err))
		}
		// discovery is retained by the broker, no need to wait for each ack
		for _, m := range messages {
			state.client.Publish(m.topic, m.message, 0, m.retain, func(error) {}, time.Second)
		}
		actorutil.Respond(ctx, msg, domain.PublishDiscoveryResponse{ActorResponseMixIn: domain.FailedResponse(err)})
	case MQTTConnectionLost:
		// let the supervisor reconnect
		state.logger.Error("mqtt@default connection lost", zap.Error(msg.Error))
		panic(msg.Error)
	default:
		state.logger.Debug("mqtt@default recv", actorutil.MessageType(msg))
	}
}

func (state *MQTTActor) subscribeEventStream(ctx actor.Context) {
	if state.eventStream == nil || state.eventStreamSub != nil {
		return
	}
	state.eventStreamSub = state.eventStream.Subscribe(func(value any) {
		ctx.Send(ctx.Self(), OnEventStreamMessage{
			message: value,
		})
	})
}

// event2MQTTMessage maps sensor events to their state topic. Anything else
// on the event stream maps to nil.
func (state *MQTTActor) event2MQTTMessage(event any) *rawMessage {
	switch msg := event.(type) {
	case domain.FloatSensorUpdateEvent:
		return &rawMessage{
			topic:   state.client.SensorStateTopic(msg.Id),
			message: strconv.FormatFloat(msg.Value, 'f', int(msg.Decimals), 64),
		}
	case domain.SwitchSensorUpdateEvent:
		return &rawMessage{
			topic:   state.client.SwitchStateTopic(msg.Id),
			message: bool2MQTTPayload(msg.Value),
			retain:  true,
		}
	case domain.TextSensorUpdateEvent:
		return &rawMessage{
			topic:   state.client.SensorStateTopic(msg.Id),
			message: msg.Value,
		}
	case domain.BridgeStateUpdateEvent:
		payload := mqtt.MQTT_PAYLOAD_OFFLINE
		if msg.Value {
			payload = mqtt.MQTT_PAYLOAD_ONLINE
		}
		return &rawMessage{
			topic:   state.client.BridgeStateTopic(),
			message: payload,
			retain:  true,
		}
	}
	return nil
}

func (state *MQTTActor) discoveryMessages(sensors []domain.GenericSensor, switches []domain.GenericSwitch) ([]rawMessage, error) {
	messages := make([]rawMessage, 0, len(sensors)+len(switches))
	add := func(component domain.Component, msg mqtt.HADiscoveryConfig) error {
		payload, err := json.Marshal(msg)
		if err != nil {
			return fmt.Errorf("discovery of %s: %w", component.ComponentId(), err)
		}
		messages = append(messages, rawMessage{
			topic:   state.client.HADiscoveryTopic(component),
			message: string(payload),
			retain:  true,
		})
		return nil
	}
	for _, s := range sensors {
		if err := add(s, mqtt.GenericSensorToHADiscoveryMessage(state.client, s)); err != nil {
			return messages, err
		}
	}
	for _, s := range switches {
		if err := add(s, mqtt.GenericSwitchToHADiscoveryMessage(state.client, s)); err != nil {
			return messages, err
		}
	}
	return messages, nil
}

// publish waits for the broker ack in PublishingReceive. A nil message is
// answered right away.
func (state *MQTTActor) publish(ctx actor.Context, msg *rawMessage, reply func(actor.Context, error)) {
	if msg == nil {
		if reply != nil {
			reply(ctx, nil)
		}
		return
	}
	state.logger.Debug("mqtt@publish", zap.String("topic", msg.topic), zap.String("payload", msg.message))
	state.client.Publish(msg.topic, msg.message, 1, msg.retain, func(err error) {
		ctx.Send(ctx.Self(), publishResult{topic: msg.topic, reply: reply, err: err})
	}, 5*time.Second)
	state.behavior.BecomeStacked(state.PublishingReceive)
}

func (state *MQTTActor) PublishingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case publishResult:
		if msg.err != nil {
			state.logger.Error("mqtt@publishing could not publish", zap.String("topic", msg.topic), zap.Error(msg.err))
		}
		if msg.reply != nil {
			msg.reply(ctx, msg.err)
		}
		state.behavior.UnbecomeStacked()
		state.stash.UnstashOldest(ctx)
	case MQTTConnectionLost:
		state.logger.Error("mqtt@publishing connection lost", zap.Error(msg.Error))
		panic(msg.Error)
	default:
		state.logger.Debug("mqtt@publishing stash", actorutil.MessageType(msg))
		state.stash.Stash(ctx, msg)
	}
}

// replyWith builds the publish continuation for a request. Nothing is sent
// when nobody is waiting.
func replyWith(to *actor.PID, response func(error) domain.ActorResponse) func(actor.Context, error) {
	if to == nil {
		return nil
	}
	return func(ctx actor.Context, err error) {
		ctx.Send(to, response(err))
	}
}

func (state *MQTTActor) stop() {
	state.logger.Debug("mqtt: disconnect")
	if state.eventStreamSub != nil {
		state.eventStream.Unsubscribe(state.eventStreamSub)
		state.eventStreamSub = nil
	}
	if state.client != nil {
		state.publishBridgeState(false)
		state.client.Disconnect(500 * time.Millisecond)
	}
}

// publishBridgeState is fire and forget, availability is retained by the broker.
func (state *MQTTActor) publishBridgeState(online bool) {
	msg := state.event2MQTTMessage(domain.BridgeUpdate(online))
	state.client.Publish(msg.topic, msg.message, 0, msg.retain, func(error) {}, 500*time.Millisecond)
}

func bool2MQTTPayload(value bool) string {
	if value {
		return mqtt.MQTT_PAYLOAD_ON
	} else {
		return mqtt.MQTT_PAYLOAD_OFF
	}
}

// Dummy actor. It never connects and records the last payload of every topic instead.
func NewTestMQTTActor(config *config.Config, eventStream *eventstream.EventStream, logger *zap.Logger) *MQTTActor {
	act := &MQTTActor{
		config:      config,
		behavior:    actor.NewBehavior(),
		stash:       &actorutil.Stash{},
		eventStream: eventStream,
		published:   map[string]string{},
		logger:      actorutil.ActorLogger(domain.ACTOR_ID_MQTT, logger),
	}
	act.behavior.Become(act.DummyReceive)
	return act
}

// Published returns the last payload the dummy actor saw for topic.
func (state *MQTTActor) Published(topic string) (string, bool) {
	state.publishedMu.Lock()
	defer state.publishedMu.Unlock()
	payload, ok := state.published[topic]
	return payload, ok
}

func (state *MQTTActor) record(msg *rawMessage) {
	if msg == nil {
		return
	}
	state.publishedMu.Lock()
	defer state.publishedMu.Unlock()
	state.published[msg.topic] = msg.message
}

func (state *MQTTActor) DummyReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.client = mqtt.CreateMQTTClient(state.config, mqtt.OptsFromConfig(state.config), nil, nil)
		state.record(state.event2MQTTMessage(domain.BridgeUpdate(true)))
		state.subscribeEventStream(ctx)
	case *actor.Stopping:
		if state.eventStreamSub != nil {
			state.eventStream.Unsubscribe(state.eventStreamSub)
			state.eventStreamSub = nil
		}
	case domain.ActorHealthRequest:
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_MQTT,
			Healthy: true,
			State:   "idle",
		})
	case ParsedCommand:
		ctx.Send(ctx.Parent(), msg)
	case OnEventStreamMessage:
		state.record(state.event2MQTTMessage(msg.message))
	case domain.PublishSensorUpdateRequest:
		state.record(state.event2MQTTMessage(msg.Event))
		actorutil.Respond(ctx, msg, domain.PublishSensorUpdateResponse{})
	case domain.PublishMessageRequest:
		state.record(&rawMessage{topic: msg.Topic, message: msg.Payload})
		actorutil.Respond(ctx, msg, domain.PublishMessageResponse{})
	case domain.PublishDiscoveryRequest:
		messages, err := state.discoveryMessages(msg.Sensors, msg.Switches)
		for i := range messages {
			state.record(&messages[i])
		}
		actorutil.Respond(ctx, msg, domain.PublishDiscoveryResponse{ActorResponseMixIn: domain.FailedResponse(err)})
	}
}
