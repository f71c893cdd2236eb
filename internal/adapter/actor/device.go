package actor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"mppsolar2mqtt/internal/core/domain"
	"mppsolar2mqtt/internal/util/actorutil"
	"mppsolar2mqtt/pkg/mppsolar"

	"github.com/asynkron/protoactor-go/actor"
	"go.uber.org/zap"
)

const (
	DEFAULT_COMMAND_TIMEOUT = 2 * time.Second
)

// DeviceActor serializes every command sent to one inverter. Commands run on
// a background task while the actor stashes anything else but health checks.
type DeviceActor struct {
	states         actorutil.ActorWithStates
	stash          *actorutil.Stash
	client         mppsolar.Client
	port           string
	protocol       string
	commandTimeout time.Duration
	logger         *zap.Logger

	mu     sync.Mutex
	opened bool

	idle    actorutil.ActorState
	waiting actorutil.ActorState
}

type backgroundTaskResult struct {
	message any
	replyTo *actor.PID
}

// ProbeBudget is the longest a probe may take before the device actor answers.
// The serial number query runs after the handshake with its own deadline.
func ProbeBudget(commandTimeout time.Duration) time.Duration {
	if commandTimeout <= 0 {
		commandTimeout = DEFAULT_COMMAND_TIMEOUT
	}
	return 2 * commandTimeout
}

func NewDeviceActor(client mppsolar.Client, port string, protocol string, commandTimeout time.Duration, logger *zap.Logger) *DeviceActor {
	if commandTimeout <= 0 {
		commandTimeout = DEFAULT_COMMAND_TIMEOUT
	}
	act := &DeviceActor{
		states:         actorutil.NewActorWithStates(),
		stash:          &actorutil.Stash{},
		client:         client,
		port:           port,
		protocol:       protocol,
		commandTimeout: commandTimeout,
		logger:         actorutil.ActorLogger(domain.ACTOR_ID_DEVICE, logger),
	}
	act.idle = actorutil.NamedState("idle", act.DefaultReceive)
	act.waiting = actorutil.NamedState("waiting", act.WaitingDevice)
	act.states.Become(act.idle)
	return act
}

func (state *DeviceActor) Receive(context actor.Context) {
	state.states.Receive(context)
}

func (state *DeviceActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("device@idle started", zap.String("port", state.port))
	case domain.ActorHealthRequest:
		state.respondHealth(ctx)
	case domain.ProbeDeviceRequest:
		state.logger.Debug("device@idle ProbeDeviceRequest")
		sender := actorutil.ForRequest(msg).ReplyTo(ctx)
		// probe issues two commands
		actorutil.MapBackgroundTask(actorutil.NewBackgroundTask(ctx, state.probe),
			mapTaskResult[domain.ProbeDeviceResponse](sender)).Recover(func(err error) backgroundTaskResult {
			state.markClosed(err)
			return backgroundTaskResult{
				message: domain.ProbeDeviceResponse{
					ActorResponseMixIn: domain.ActorResponseMixIn{
						ResponseError: err,
					},
				},
				replyTo: sender,
			}
		}).WithTimeout(ProbeBudget(state.commandTimeout)).PipeTo(ctx.Self())
		state.states.BecomeStacked(state.waiting)
	case domain.QueryStatusRequest:
		state.logger.Debug("device@idle QueryStatusRequest")
		sender := actorutil.ForRequest(msg).ReplyTo(ctx)
		actorutil.MapBackgroundTask(actorutil.NewBackgroundTask(ctx, state.queryStatus),
			mapTaskResult[domain.QueryStatusResponse](sender)).Recover(func(err error) backgroundTaskResult {
			state.markClosed(err)
			return backgroundTaskResult{
				message: domain.QueryStatusResponse{
					ActorResponseMixIn: domain.ActorResponseMixIn{
						ResponseError: err,
					},
				},
				replyTo: sender,
			}
		}).WithTimeout(state.commandTimeout).PipeTo(ctx.Self())
		state.states.BecomeStacked(state.waiting)
	case *actor.Stopping:
		state.close()
	case *actor.Restarting:
		state.close()
	default:
		state.logger.Debug("device@idle default recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *DeviceActor) WaitingDevice(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case backgroundTaskResult:
		state.logger.Debug("device@waiting backgroundTaskResult", zap.String("type", fmt.Sprintf("%T", msg.message)))
		if msg.replyTo != nil {
			ctx.Send(msg.replyTo, msg.message)
		}
		state.states.UnbecomeStacked()
		state.stash.UnstashAll(ctx)
	case domain.ActorHealthRequest:
		state.respondHealth(ctx)
	case *actor.Stopping:
		state.close()
	case *actor.Restarting:
		state.close()
	default:
		state.logger.Debug("device@waiting stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *DeviceActor) respondHealth(ctx actor.Context) {
	state.logger.Debug("device@" + state.states.StateName() + " ActorHealthRequest")
	ctx.Respond(domain.ActorHealthResponse{
		Id:      domain.ACTOR_ID_DEVICE,
		Healthy: true,
		State:   state.states.StateName(),
	})
}

func (state *DeviceActor) probe() (*domain.ProbeDeviceResponse, error) {
	if err := state.ensureOpen(); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), state.commandTimeout)
	defer cancel()

	info := &domain.DeviceInfo{
		Port:     state.port,
		Protocol: state.protocol,
	}

	resp, err := state.client.SendCommand(ctx, mppsolar.COMMAND_PROTOCOL_ID)
	if err != nil {
		state.markClosed(err)
		return nil, fmt.Errorf("probe %s: %w", mppsolar.COMMAND_PROTOCOL_ID, err)
	}
	info.ProtocolId, _ = resp.String(mppsolar.FIELD_PROTOCOL_ID)

	// the serial number is optional
	ctx, cancel = context.WithTimeout(context.Background(), state.commandTimeout)
	defer cancel()
	resp, err = state.client.SendCommand(ctx, mppsolar.COMMAND_SERIAL_NUMBER)
	if err != nil {
		state.markClosed(err)
		state.logger.Warn("device@probe serial number unavailable", zap.Error(err))
	} else {
		info.SerialNumber, _ = resp.String(mppsolar.FIELD_SERIAL_NUMBER)
	}

	return &domain.ProbeDeviceResponse{Info: info}, nil
}

func (state *DeviceActor) queryStatus() (*domain.QueryStatusResponse, error) {
	if err := state.ensureOpen(); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), state.commandTimeout)
	defer cancel()

	resp, err := state.client.SendCommand(ctx, mppsolar.COMMAND_GENERAL_STATUS)
	if err != nil {
		state.markClosed(err)
		return nil, err
	}
	return &domain.QueryStatusResponse{Raw: resp}, nil
}

// ensureOpen opens the client lazily. A failed open is retried on the next command.
func (state *DeviceActor) ensureOpen() error {
	state.mu.Lock()
	defer state.mu.Unlock()
	if state.opened {
		return nil
	}
	if err := state.client.Open(); err != nil {
		state.logger.Error("device@open failed", zap.String("port", state.port), zap.Error(err))
		return err
	}
	state.opened = true
	return nil
}

// markClosed forces a reopen after a transport failure.
func (state *DeviceActor) markClosed(err error) {
	if !mppsolar.IsTransportError(err) {
		return
	}
	state.mu.Lock()
	defer state.mu.Unlock()
	if state.opened {
		_ = state.client.Close()
		state.opened = false
	}
}

func (state *DeviceActor) close() {
	state.mu.Lock()
	defer state.mu.Unlock()
	if state.opened {
		if err := state.client.Close(); err != nil {
			state.logger.Warn("device@close failed", zap.Error(err))
		}
		state.opened = false
	}
}

func mapTaskResult[T any](sender *actor.PID) func(t *T) *backgroundTaskResult {
	return func(t *T) *backgroundTaskResult {
		return &backgroundTaskResult{
			message: *t,
			replyTo: sender,
		}
	}
}
