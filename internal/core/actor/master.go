package actor

import (
	"errors"
	"fmt"
	"log"
	"time"

	adactor "mppsolar2mqtt/internal/adapter/actor"
	"mppsolar2mqtt/internal/core/domain"
	"mppsolar2mqtt/internal/core/port"
	. "mppsolar2mqtt/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"go.uber.org/zap"
)

type DeviceActorProvider func() *adactor.DeviceActor

type MQTTActorProvider func() *adactor.MQTTActor

type MasterOfPuppetsActor struct {
	settings PollSettings
	behavior actor.Behavior
	stash    *Stash

	currentHealthCheck  healthCheckResult
	deviceActor         *actor.PID
	pollActor           *actor.PID
	mqttActor           *actor.PID
	deviceActorProvider DeviceActorProvider
	mqttActorProvider   MQTTActorProvider
	sinkFactory         port.SinkFactory
	onFatal             func(error)
	fatal               bool
	stopping            bool
	logger              *zap.Logger
}

type healthCheckResult struct {
	healthy        map[string]bool
	expected       int
	checksReceived int
	respondTo      *actor.PID
}

// NewMasterOfPuppetsActor supervises the device, poll and optional MQTT
// actors. onFatal is called once when setup cannot complete.
func NewMasterOfPuppetsActor(settings PollSettings, deviceActorProvider DeviceActorProvider,
	mqttActorProvider MQTTActorProvider, sinkFactory port.SinkFactory, onFatal func(error), logger *zap.Logger) *MasterOfPuppetsActor {
	act := &MasterOfPuppetsActor{
		settings:            settings,
		behavior:            actor.NewBehavior(),
		stash:               &Stash{},
		logger:              ActorLogger(domain.ACTOR_ID_MASTER, logger),
		deviceActorProvider: deviceActorProvider,
		mqttActorProvider:   mqttActorProvider,
		sinkFactory:         sinkFactory,
		onFatal:             onFatal,
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

		// start Device child
		deviceActorPID, err := state.startDeviceActor(ctx)
		if err != nil {
			panic(err)
		}
		state.deviceActor = deviceActorPID

		// start MQTT child
		if state.mqttActorProvider != nil {
			mqttActorPID, err := state.startMQTTActor(ctx)
			if err != nil {
				panic(err)
			}
			state.mqttActor = mqttActorPID
		}

		// start Poll child
		pollActorPID, err := state.startPollActor(ctx)
		if err != nil {
			panic(err)
		}
		state.pollActor = pollActorPID

		state.behavior.Become(state.DefaultReceive)
		state.stash.UnstashAll(ctx)
	default:
		state.logger.Debug("master@starting stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MasterOfPuppetsActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		state.logger.Debug("master@default ActorHealthRequest")
		state.currentHealthCheck.reset(state.children())
		state.currentHealthCheck.respondTo = ctx.Sender()
		for id, pid := range state.children() {
			RequestTo(ctx, pid, domain.ActorHealthRequest{}, 500*time.Millisecond, func(err error) any {
				return domain.ActorHealthResponse{
					Id:      id,
					Healthy: false,
				}
			})
		}

		ctx.SetReceiveTimeout(1 * time.Second)

		state.behavior.BecomeStacked(state.HealthCheckReceive)
	case domain.SetupFailed:
		state.logger.Error("master@default setup failed", zap.Error(msg.Error))
		state.raiseFatal(msg.Error)
	case *actor.Stopping:
		state.stopping = true
	case *actor.Terminated:
		// a terminated device or poll actor cannot be recovered
		if !state.stopping && (msg.Who.Equal(state.deviceActor) || msg.Who.Equal(state.pollActor)) {
			err := fmt.Errorf("%s terminated", msg.Who.Id)
			state.logger.Error("master@default child terminated", zap.Error(err))
			state.raiseFatal(err)
		}
	default:
		state.logger.Debug("master@default stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MasterOfPuppetsActor) HealthCheckReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.ReceiveTimeout:
		// if some actor does not respond to healthCheck, assume not healthy
		state.currentHealthCheck.respond(ctx, state.fatal)
		ctx.CancelReceiveTimeout()
		state.behavior.UnbecomeStacked()
		state.stash.UnstashAll(ctx)
	case domain.ActorHealthResponse:
		state.logger.Debug("master@healthcheck ActorHealthResponse", zap.String("sender", msg.Id), zap.Bool("healthy", msg.Healthy))
		state.currentHealthCheck.checksReceived++
		if msg.Healthy {
			state.currentHealthCheck.healthy[msg.Id] = true
		}
		if state.currentHealthCheck.allReceived() {

			state.currentHealthCheck.respond(ctx, state.fatal)

			ctx.CancelReceiveTimeout()
			state.behavior.UnbecomeStacked()
			state.stash.UnstashAll(ctx)
		} else {
			ctx.SetReceiveTimeout(1 * time.Second)
		}
	case *actor.Stopping:
		state.stopping = true
	default:
		state.logger.Debug("master@healthcheck stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MasterOfPuppetsActor) children() map[string]*actor.PID {
	children := map[string]*actor.PID{
		domain.ACTOR_ID_DEVICE: state.deviceActor,
		domain.ACTOR_ID_POLL:   state.pollActor,
	}
	if state.mqttActor != nil {
		children[domain.ACTOR_ID_MQTT] = state.mqttActor
	}
	return children
}

func (state *MasterOfPuppetsActor) raiseFatal(err error) {
	if state.fatal {
		return
	}
	state.fatal = true
	if state.onFatal != nil {
		state.onFatal(err)
	}
}

func (state *MasterOfPuppetsActor) startDeviceActor(ctx actor.Context) (*actor.PID, error) {

	supervisor := actor.NewExponentialBackoffStrategy(10*time.Second, 1*time.Second)

	deviceProps := actor.PropsFromProducer(func() actor.Actor {
		return state.deviceActorProvider()
	}, actor.WithSupervisor(supervisor))
	deviceActorPID, err := ctx.SpawnNamed(deviceProps, domain.ACTOR_ID_DEVICE)
	if err != nil {
		return nil, err
	}

	return deviceActorPID, nil
}

func (state *MasterOfPuppetsActor) startPollActor(ctx actor.Context) (*actor.PID, error) {
	if state.deviceActor == nil {
		return nil, errors.New("poll actor requires the device actor")
	}

	decider := func(reason interface{}) actor.Directive {
		log.Printf("handling failure for child. reason: %v", reason)
		return actor.RestartDirective
	}
	supervisor := actor.NewOneForOneStrategy(1, 10*time.Second, decider)

	pollProps := actor.PropsFromProducer(func() actor.Actor {
		return NewPollActor(state.settings, state.deviceActor, state.sinkFactory, state.logger)
	}, actor.WithSupervisor(supervisor))
	pollActorPID, err := ctx.SpawnNamed(pollProps, domain.ACTOR_ID_POLL)
	if err != nil {
		return nil, err
	}

	return pollActorPID, nil
}

func (state *MasterOfPuppetsActor) startMQTTActor(ctx actor.Context) (*actor.PID, error) {

	supervisor := actor.NewExponentialBackoffStrategy(10*time.Second, 1*time.Second)

	mqttProps := actor.PropsFromProducer(func() actor.Actor {
		return state.mqttActorProvider()
	}, actor.WithSupervisor(supervisor))
	mqttActorPID, err := ctx.SpawnNamed(mqttProps, domain.ACTOR_ID_MQTT)
	if err != nil {
		return nil, err
	}

	return mqttActorPID, nil
}

func (state *healthCheckResult) reset(children map[string]*actor.PID) {
	state.healthy = make(map[string]bool, len(children))
	state.expected = len(children)
	state.checksReceived = 0
}

func (state *healthCheckResult) allReceived() bool {
	return state.checksReceived >= state.expected
}

func (state *healthCheckResult) allHealthy() bool {
	return len(state.healthy) == state.expected
}

func (state *healthCheckResult) respond(ctx actor.Context, fatal bool) {
	resp := domain.ActorHealthResponse{
		Id:      domain.ACTOR_ID_MASTER,
		Healthy: state.allHealthy() && !fatal,
	}
	if state.respondTo != nil {
		ctx.Send(state.respondTo, resp)
	}
}
