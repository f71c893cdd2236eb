package actor

import (
	"fmt"
	"time"

	"mppsolar2mqtt/internal/core/domain"
	"mppsolar2mqtt/internal/mqtt"
	"mppsolar2mqtt/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"go.uber.org/zap"
)

// MQTTActor owns the broker connection shared by the MQTT path sinks. It
// announces the bridge state and replays retained birth messages after each
// (re)connection.
type MQTTActor struct {
	behavior actor.Behavior
	stash    *actorutil.Stash
	client   brokerConnection
	logger   *zap.Logger
}

// brokerConnection is the part of the MQTT client the actor drives.
type brokerConnection interface {
	Listen(onConnect func(), onConnectionLost func(error))
	Connect(continuation func(error), timeout time.Duration)
	Disconnect(timeout time.Duration)
	IsConnected() bool
	BridgeStateTopic() string
	Publish(topic string, payload any, qos byte, retain bool, continuation func(error), timeout time.Duration)
	RepublishBirth(timeout time.Duration) error
}

type MQTTConnected struct {
}

type MQTTConnectionLost struct {
	Error error
}

type birthPublished struct {
	Error error
}

func NewMQTTActor(client *mqtt.MQTTClient, logger *zap.Logger) *MQTTActor {
	return newMQTTActor(client, logger)
}

func newMQTTActor(client brokerConnection, logger *zap.Logger) *MQTTActor {
	act := &MQTTActor{
		client:   client,
		behavior: actor.NewBehavior(),
		stash:    &actorutil.Stash{},
		logger:   actorutil.ActorLogger(domain.ACTOR_ID_MQTT, logger),
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

		self := ctx.Self()
		root := ctx.ActorSystem().Root
		state.client.Listen(func() {
			root.Send(self, MQTTConnected{})
		}, func(err error) {
			root.Send(self, MQTTConnectionLost{Error: err})
		})

		// connect to MQTT server
		state.client.Connect(func(err error) {
			if err != nil {
				root.Send(self, MQTTConnectionLost{Error: err})
			}
		}, 10*time.Second)
	case MQTTConnected:
		state.logger.Info("mqtt@starting connected")
		state.publishBirth(ctx)
		state.behavior.Become(state.DefaultReceive)
		state.stash.UnstashAll(ctx)
	case domain.ActorHealthRequest:
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_MQTT,
			Healthy: false,
			State:   "connecting",
		})
	case MQTTConnectionLost:
		// let the supervisor restart the connection
		state.logger.Error("mqtt@starting connection lost", zap.Error(msg.Error))
		panic(msg.Error)
	case *actor.Restarting:
		state.stop()
	case *actor.Stopping:
		state.stop()
	default:
		state.logger.Debug("mqtt@starting stash", zap.String("type", fmt.Sprintf("%T", msg)))
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
		connected := state.client.IsConnected()
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_MQTT,
			Healthy: connected,
			State:   "idle",
		})
	case MQTTConnected:
		state.logger.Info("mqtt@default reconnected")
		state.publishBirth(ctx)
	case birthPublished:
		if msg.Error != nil {
			state.logger.Error("mqtt@default could not publish birth messages", zap.Error(msg.Error))
		}
	case MQTTConnectionLost:
		state.logger.Error("mqtt@default connection lost", zap.Error(msg.Error))
		panic(msg.Error)
	default:
		state.logger.Debug("mqtt@default unhandled", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *MQTTActor) publishBirth(ctx actor.Context) {
	self := ctx.Self()
	root := ctx.ActorSystem().Root
	state.client.Publish(state.client.BridgeStateTopic(), mqtt.MQTT_PAYLOAD_ONLINE, 0, true, func(err error) {
		if err != nil {
			root.Send(self, birthPublished{Error: err})
			return
		}
		root.Send(self, birthPublished{Error: state.client.RepublishBirth(mqtt.PUBLISH_TIMEOUT)})
	}, 500*time.Millisecond)
}

func (state *MQTTActor) stop() {
	state.logger.Debug("mqtt: disconnect")
	state.client.Listen(nil, nil)
	if state.client.IsConnected() {
		state.client.Publish(state.client.BridgeStateTopic(), mqtt.MQTT_PAYLOAD_OFFLINE, 0, true, func(error) {}, 500*time.Millisecond)
	}
	state.client.Disconnect(500 * time.Millisecond)
}

var _ brokerConnection = (*mqtt.MQTTClient)(nil)

// Dummy actor
func NewTestMQTTActor(logger *zap.Logger) *MQTTActor {
	act := &MQTTActor{
		behavior: actor.NewBehavior(),
		stash:    &actorutil.Stash{},
		logger:   actorutil.ActorLogger(domain.ACTOR_ID_MQTT, logger),
	}
	act.behavior.Become(act.DummyReceive)
	return act
}

func (state *MQTTActor) DummyReceive(ctx actor.Context) {
	switch ctx.Message().(type) {
	case domain.ActorHealthRequest:
		state.logger.Debug("mqtt@dummy ActorHealthRequest")
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_MQTT,
			Healthy: true,
			State:   "idle",
		})
	}
}
