package actor

import (
	"errors"
	"fmt"
	"time"

	adactor "mppsolar2mqtt/internal/adapter/actor"
	"mppsolar2mqtt/internal/config"
	"mppsolar2mqtt/internal/core/domain"
	"mppsolar2mqtt/internal/core/port"
	"mppsolar2mqtt/internal/core/service"
	. "mppsolar2mqtt/internal/util/actorutil"
	"mppsolar2mqtt/pkg/mppsolar"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/scheduler"
	"go.uber.org/zap"
)

const (
	DEFAULT_POLL_INTERVAL = 1 * time.Second
	DEFAULT_SETUP_TIMEOUT = 15 * time.Second
	// slack between the device actor answering and the request expiring
	PROBE_MARGIN = 500 * time.Millisecond
)

var ErrSetupTimeout = errors.New("device did not answer the identity probe")

// PollSettings is the part of the configuration the poll cycle depends on.
type PollSettings struct {
	Kinds             []domain.ServiceKind
	Identity          domain.ServiceIdentity
	Port              string
	Protocol          string
	PollInterval      time.Duration
	SetupTimeout      time.Duration
	CommandTimeout    time.Duration
	SuppressInvalid   bool
	NarrowAfterCycles uint
	HasACInput        bool
}

// PollActor runs setup once, then polls the device actor on a timer and
// publishes every cycle through the planner.
type PollActor struct {
	states    ActorWithStates
	stash     *Stash
	scheduler *scheduler.TimerScheduler
	self      *actor.PID

	settings    PollSettings
	deviceActor *actor.PID
	sinkFactory port.SinkFactory
	normalizer  port.ResponseNormalizer
	assessor    port.CapabilityAssessor

	planner  *service.PublicationPlanner
	tracker  *service.CapabilityTracker
	services []*service.PublishedService
	online   bool
	ready    bool
	cycles   uint64

	starting  ActorState
	probing   ActorState
	idle      ActorState
	querying  ActorState
	reprobing ActorState
	failed    ActorState

	logger *zap.Logger
}

func NewPollSettings(cfg *config.Config, identity domain.ServiceIdentity) (PollSettings, error) {
	kinds, err := cfg.MonitorConfig.ServiceKinds()
	if err != nil {
		return PollSettings{}, err
	}
	return PollSettings{
		Kinds:             kinds,
		Identity:          identity,
		Port:              cfg.Serial.Port,
		Protocol:          cfg.Serial.Protocol,
		PollInterval:      time.Duration(cfg.MonitorConfig.PollIntervalMillis) * time.Millisecond,
		SetupTimeout:      time.Duration(cfg.MonitorConfig.SetupTimeoutMillis) * time.Millisecond,
		CommandTimeout:    time.Duration(cfg.Serial.CommandTimeoutMillis) * time.Millisecond,
		SuppressInvalid:   cfg.MonitorConfig.SuppressInvalid,
		NarrowAfterCycles: cfg.MonitorConfig.NarrowAfterCycles,
		HasACInput:        cfg.MonitorConfig.ACInput,
	}, nil
}

// probeTimeout bounds a probe request. It never expires before the device
// actor has exhausted its own probe budget.
func (s PollSettings) probeTimeout() time.Duration {
	if floor := adactor.ProbeBudget(s.CommandTimeout) + PROBE_MARGIN; s.SetupTimeout < floor {
		return floor
	}
	return s.SetupTimeout
}

type pollTick struct {
}

type setupTimedOut struct {
	Error error
}

func NewPollActor(settings PollSettings, deviceActor *actor.PID, sinkFactory port.SinkFactory, logger *zap.Logger) *PollActor {
	if settings.PollInterval <= 0 {
		settings.PollInterval = DEFAULT_POLL_INTERVAL
	}
	if settings.SetupTimeout <= 0 {
		settings.SetupTimeout = DEFAULT_SETUP_TIMEOUT
	}
	actorLogger := ActorLogger(domain.ACTOR_ID_POLL, logger)
	act := &PollActor{
		states:      NewActorWithStates(),
		stash:       &Stash{},
		settings:    settings,
		deviceActor: deviceActor,
		sinkFactory: sinkFactory,
		normalizer:  service.DefaultResponseNormalizer{},
		assessor:    &service.DefaultCapabilityAssessor{HasACInput: settings.HasACInput, Logger: actorLogger},
		logger:      actorLogger,
	}
	act.starting = NamedState("starting", act.StartingReceive)
	act.probing = NamedState("probing", act.ProbingReceive)
	act.idle = NamedState("idle", act.IdleReceive)
	act.querying = NamedState("querying", act.QueryingReceive)
	act.reprobing = NamedState("reprobing", act.ReprobingReceive)
	act.failed = NamedState("failed", act.FailedReceive)
	act.states.Become(act.starting)
	return act
}

func (state *PollActor) Receive(context actor.Context) {
	state.states.Receive(context)
}

func (state *PollActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("poll@starting started")
		state.scheduler = scheduler.NewTimerScheduler(ctx)
		state.self = ctx.Self()
		// a probe that never returns is fatal
		RequestTo(ctx, state.deviceActor, domain.ProbeDeviceRequest{}, state.settings.probeTimeout(), func(err error) any {
			return setupTimedOut{Error: fmt.Errorf("%w: %w", ErrSetupTimeout, err)}
		})
		state.states.Become(state.probing)
	case *actor.Restarting:
	default:
		state.logger.Debug("poll@starting stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *PollActor) ProbingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ProbeDeviceResponse:
		state.logger.Debug("poll@probing ProbeDeviceResponse")
		if err := state.setup(msg.Info, msg.GetResponseError()); err != nil {
			state.fail(ctx, err)
			return
		}
		state.ready = true
		state.scheduleTick()
		state.states.Become(state.idle)
		state.stash.UnstashAll(ctx)
	case setupTimedOut:
		state.fail(ctx, msg.Error)
	case domain.ActorHealthRequest:
		state.respondHealth(ctx)
	default:
		state.logger.Debug("poll@probing stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *PollActor) IdleReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case pollTick:
		if state.online {
			state.logger.Debug("poll@idle tick")
			state.requestStatus(ctx)
			state.states.BecomeStacked(state.querying)
		} else {
			state.logger.Debug("poll@idle tick, offline, probing")
			RequestTo(ctx, state.deviceActor, domain.ProbeDeviceRequest{}, state.settings.probeTimeout(), func(err error) any {
				return domain.ProbeDeviceResponse{ActorResponseMixIn: domain.ActorResponseMixIn{ResponseError: err}}
			})
			state.states.BecomeStacked(state.reprobing)
		}
	case domain.ActorHealthRequest:
		state.respondHealth(ctx)
	default:
		state.logger.Debug("poll@idle default recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *PollActor) QueryingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.QueryStatusResponse:
		state.logger.Debug("poll@querying QueryStatusResponse", zap.Uint64("cycle", state.cycles+1))
		state.cycle(msg)
		state.endCycle(ctx)
	case pollTick:
		// busy, the next tick is scheduled when this cycle ends
		state.logger.Debug("poll@querying tick dropped")
	case domain.ActorHealthRequest:
		state.respondHealth(ctx)
	default:
		state.logger.Debug("poll@querying stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *PollActor) ReprobingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ProbeDeviceResponse:
		if msg.HasResponseError() {
			state.logger.Warn("poll@reprobing device still offline", zap.Error(msg.GetResponseError()))
			state.publishConnectivity()
			state.endCycle(ctx)
			return
		}
		state.logger.Info("poll@reprobing device back online", zap.String("unique_id", msg.Info.UniqueId()))
		state.online = true
		state.tracker.Reset(state.assessor.Assess(msg.Info, nil))
		state.requestStatus(ctx)
		state.states.UnbecomeStacked()
		state.states.BecomeStacked(state.querying)
	case pollTick:
		state.logger.Debug("poll@reprobing tick dropped")
	case domain.ActorHealthRequest:
		state.respondHealth(ctx)
	default:
		state.logger.Debug("poll@reprobing stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *PollActor) FailedReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		state.respondHealth(ctx)
	default:
		state.logger.Debug("poll@failed drop", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

// setup assesses capabilities and creates the services. Only a failure of the
// mandatory service is returned.
func (state *PollActor) setup(info *domain.DeviceInfo, probeErr error) error {
	caps := state.assessor.Assess(info, probeErr)

	identity := state.settings.Identity
	device := domain.DeviceInfo{Port: state.settings.Port, Protocol: state.settings.Protocol}
	if probeErr == nil && info != nil {
		device = *info
	}
	if device.ProtocolId != "" {
		identity.FirmwareVersion = device.ProtocolId
	}
	if identity.FirmwareVersion == "" {
		identity.FirmwareVersion = domain.DEFAULT_FIRMWARE_VERSION
	}
	identity.Serial = device.SerialNumber

	registry := service.NewSchemaRegistry(identity)
	services, err := service.BuildServices(registry, caps, state.settings.Kinds, identity, device.UniqueId(),
		state.sinkFactory, state.logger)
	if err != nil {
		return err
	}

	state.services = services
	state.planner = service.NewPublicationPlanner(registry, state.logger)
	state.tracker = service.NewCapabilityTracker(caps, state.settings.NarrowAfterCycles)
	state.online = probeErr == nil
	state.logger.Info("poll@probing setup completed", zap.String("unique_id", device.UniqueId()),
		zap.Int("services", len(services)), zap.Bool("online", state.online))

	// connectivity is known before the first tick
	state.publishConnectivity()
	return nil
}

func (state *PollActor) requestStatus(ctx actor.Context) {
	RequestTo(ctx, state.deviceActor, domain.QueryStatusRequest{}, state.settings.probeTimeout(), func(err error) any {
		return domain.QueryStatusResponse{ActorResponseMixIn: domain.ActorResponseMixIn{ResponseError: err}}
	})
}

// cycle turns one status response into publications.
func (state *PollActor) cycle(msg domain.QueryStatusResponse) {
	state.cycles++
	if msg.HasResponseError() {
		err := msg.GetResponseError()
		if mppsolar.IsTransportError(err) {
			state.logger.Warn("poll@querying device offline", zap.Error(err))
			state.online = false
		} else {
			state.logger.Warn("poll@querying refresh failed", zap.Error(err))
		}
		state.publishConnectivity()
		return
	}

	telemetry, err := state.normalizer.Normalize(msg.Raw)
	if err != nil {
		state.logger.Warn("poll@querying refresh failed", zap.Error(err))
		state.publishConnectivity()
		return
	}

	for _, change := range state.tracker.Observe(telemetry) {
		state.logger.Info("poll@querying capability changed", zap.Stringer("change", change))
	}

	if state.settings.SuppressInvalid && !telemetry.Valid() {
		state.logger.Warn("poll@querying invalid telemetry suppressed",
			zap.Any("ac_output_voltage", telemetry.ACOutput.Voltage))
		state.publishConnectivity()
		return
	}

	state.publish(telemetry)
}

func (state *PollActor) publish(telemetry *domain.Telemetry) {
	results := state.planner.PlanAndPublish(telemetry, state.tracker.Current(), state.online, state.services)
	for kind, ok := range results {
		if !ok {
			state.logger.Warn("poll@publish service update incomplete", zap.Stringer("service", kind))
		}
	}
}

func (state *PollActor) publishConnectivity() {
	state.publish(nil)
}

func (state *PollActor) endCycle(ctx actor.Context) {
	state.scheduleTick()
	state.states.UnbecomeStacked()
	state.stash.UnstashAll(ctx)
}

func (state *PollActor) scheduleTick() {
	state.scheduler.RequestOnce(state.settings.PollInterval, state.self, pollTick{})
}

func (state *PollActor) fail(ctx actor.Context, err error) {
	state.logger.Error("poll@"+state.states.StateName()+" setup failed", zap.Error(err))
	if ctx.Parent() != nil {
		ctx.Send(ctx.Parent(), domain.SetupFailed{Error: err})
	}
	state.states.Become(state.failed)
	state.stash.UnstashAll(ctx)
}

func (state *PollActor) respondHealth(ctx actor.Context) {
	state.logger.Debug("poll@" + state.states.StateName() + " ActorHealthRequest")
	ctx.Respond(domain.ActorHealthResponse{
		Id:      domain.ACTOR_ID_POLL,
		Healthy: state.ready,
		State:   state.states.StateName(),
	})
}
