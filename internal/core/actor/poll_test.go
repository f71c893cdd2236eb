package actor

import (
	"errors"
	"testing"
	"time"

	adactor "mppsolar2mqtt/internal/adapter/actor"
	"mppsolar2mqtt/internal/core/domain"
	"mppsolar2mqtt/internal/sink"
	"mppsolar2mqtt/internal/util/actorutil"
	"mppsolar2mqtt/pkg/mppsolar"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testPollSettings() PollSettings {
	return PollSettings{
		Kinds: []domain.ServiceKind{domain.SERVICE_KIND_INVERTER_CHARGER, domain.SERVICE_KIND_SOLAR_CHARGER},
		Identity: domain.ServiceIdentity{
			DeviceInstance: 288,
			ProductId:      domain.PRODUCT_ID,
			ProductName:    domain.PRODUCT_NAME,
			ProcessName:    "mppsolar2mqtt",
			ProcessVersion: "test",
			Connection:     "/dev/ttyUSB0",
		},
		Port:           "/dev/ttyUSB0",
		Protocol:       "PI30",
		PollInterval:   50 * time.Millisecond,
		SetupTimeout:   1 * time.Second,
		CommandTimeout: 200 * time.Millisecond,
	}
}

type pollFixture struct {
	as       *actor.ActorSystem
	client   *mppsolar.TestClient
	recorder *sink.RecorderFactory
	poll     *actor.PID
}

func spawnPoll(t *testing.T, settings PollSettings, client *mppsolar.TestClient, recorder *sink.RecorderFactory) pollFixture {
	logger := zap.Must(zap.NewDevelopment())
	as := actorutil.NewActorSystemWithZapLogger(logger)

	deviceProps := actor.PropsFromProducer(func() actor.Actor {
		return adactor.NewDeviceActor(client, settings.Port, settings.Protocol, settings.CommandTimeout, logger)
	})
	device := as.Root.Spawn(deviceProps)

	pollProps := actor.PropsFromProducer(func() actor.Actor {
		return NewPollActor(settings, device, recorder.Factory(), logger)
	})
	poll := as.Root.Spawn(pollProps)

	return pollFixture{as: as, client: client, recorder: recorder, poll: poll}
}

func pollHealth(t *testing.T, f pollFixture) domain.ActorHealthResponse {
	res, err := f.as.Root.RequestFuture(f.poll, domain.ActorHealthRequest{}, 2*time.Second).Result()
	require.NoError(t, err)
	return res.(domain.ActorHealthResponse)
}

func valueOf(r *sink.Recorder, path string) any {
	if r == nil {
		return nil
	}
	v, _ := r.Value(path)
	return v
}

func TestPollActorPublishes(t *testing.T) {

	assert := assert.New(t)

	f := spawnPoll(t, testPollSettings(), mppsolar.CreateTestClient(), sink.NewRecorderFactory())
	defer f.as.Shutdown()

	assert.Eventually(func() bool {
		return valueOf(f.recorder.Get(domain.SERVICE_KIND_INVERTER_CHARGER), "/Ac/Out/L1/V") == 230.1
	}, 3*time.Second, 20*time.Millisecond)

	inverter := f.recorder.Get(domain.SERVICE_KIND_INVERTER_CHARGER)
	solar := f.recorder.Get(domain.SERVICE_KIND_SOLAR_CHARGER)
	require.NotNil(t, solar)

	assert.Equal(1, valueOf(inverter, domain.PATH_CONNECTED))
	assert.Equal("92932004102453", valueOf(inverter, "/Serial"))
	assert.Equal("PI30", valueOf(inverter, "/FirmwareVersion"))
	assert.Equal(domain.MODE_ON, valueOf(inverter, domain.PATH_MODE))
	assert.Equal(domain.STATE_BULK, valueOf(inverter, domain.PATH_STATE))
	assert.Equal(2.2, valueOf(inverter, "/Ac/Out/L1/I"))
	assert.Equal(45.5, valueOf(inverter, "/Dc/0/Temperature"))

	assert.Equal(domain.SOLAR_MODE_ON, valueOf(solar, domain.PATH_MODE))
	assert.Equal(118.3, valueOf(solar, "/Pv/V"))
	assert.Equal(591.0, valueOf(solar, "/Yield/Power"))

	health := pollHealth(t, f)
	assert.True(health.Healthy)
	assert.Equal(domain.ACTOR_ID_POLL, health.Id)
}

func TestPollActorOfflineAndReconnect(t *testing.T) {

	assert := assert.New(t)

	client := mppsolar.CreateTestClient()
	f := spawnPoll(t, testPollSettings(), client, sink.NewRecorderFactory())
	defer f.as.Shutdown()

	assert.Eventually(func() bool {
		return valueOf(f.recorder.Get(domain.SERVICE_KIND_INVERTER_CHARGER), domain.PATH_CONNECTED) == 1
	}, 3*time.Second, 20*time.Millisecond)

	// serial link lost
	client.SetError(mppsolar.COMMAND_GENERAL_STATUS, errors.New("read /dev/ttyUSB0: input/output error"))
	client.SetError(mppsolar.COMMAND_PROTOCOL_ID, errors.New("read /dev/ttyUSB0: input/output error"))

	assert.Eventually(func() bool {
		return valueOf(f.recorder.Get(domain.SERVICE_KIND_INVERTER_CHARGER), domain.PATH_CONNECTED) == 0
	}, 3*time.Second, 20*time.Millisecond)
	assert.Equal(0, valueOf(f.recorder.Get(domain.SERVICE_KIND_SOLAR_CHARGER), domain.PATH_STATUS))

	// healthy while offline, the pipeline keeps running
	assert.True(pollHealth(t, f).Healthy)

	client.SetResponse(mppsolar.COMMAND_PROTOCOL_ID, mppsolar.Response{mppsolar.FIELD_PROTOCOL_ID: mppsolar.NewField("PI30", "")})
	client.SetResponse(mppsolar.COMMAND_GENERAL_STATUS, mppsolar.TestGeneralStatus())

	assert.Eventually(func() bool {
		return valueOf(f.recorder.Get(domain.SERVICE_KIND_INVERTER_CHARGER), domain.PATH_CONNECTED) == 1
	}, 3*time.Second, 20*time.Millisecond)
}

func TestPollActorRefreshFailureKeepsOnline(t *testing.T) {

	assert := assert.New(t)

	client := mppsolar.CreateTestClient()
	client.SetResponse(mppsolar.COMMAND_GENERAL_STATUS, mppsolar.Response{"Unknown Field": mppsolar.NewField("x", "")})
	f := spawnPoll(t, testPollSettings(), client, sink.NewRecorderFactory())
	defer f.as.Shutdown()

	assert.Eventually(func() bool {
		r := f.recorder.Get(domain.SERVICE_KIND_INVERTER_CHARGER)
		return r != nil && len(r.Writes()) > 4
	}, 3*time.Second, 20*time.Millisecond)

	inverter := f.recorder.Get(domain.SERVICE_KIND_INVERTER_CHARGER)
	assert.Equal(1, valueOf(inverter, domain.PATH_CONNECTED))
	for _, path := range inverter.Writes() {
		assert.Contains([]string{domain.PATH_CONNECTED, domain.PATH_STATUS}, path)
	}
}

func TestPollActorSuppressInvalid(t *testing.T) {

	assert := assert.New(t)

	status := mppsolar.TestGeneralStatus()
	status["AC Output Voltage"] = mppsolar.NewField(150.0, "V")
	client := mppsolar.CreateTestClient()
	client.SetResponse(mppsolar.COMMAND_GENERAL_STATUS, status)

	settings := testPollSettings()
	settings.SuppressInvalid = true
	f := spawnPoll(t, settings, client, sink.NewRecorderFactory())
	defer f.as.Shutdown()

	assert.Eventually(func() bool {
		r := f.recorder.Get(domain.SERVICE_KIND_INVERTER_CHARGER)
		return r != nil && len(r.Writes()) > 4
	}, 3*time.Second, 20*time.Millisecond)

	inverter := f.recorder.Get(domain.SERVICE_KIND_INVERTER_CHARGER)
	assert.Nil(valueOf(inverter, "/Ac/Out/L1/V"))
	assert.Equal(1, valueOf(inverter, domain.PATH_CONNECTED))
}

func TestPollActorProbeFailureAssumesAll(t *testing.T) {

	assert := assert.New(t)

	client := mppsolar.CreateTestClient()
	client.SetOpenError(errors.New("no such device"))
	settings := testPollSettings()
	settings.HasACInput = true
	f := spawnPoll(t, settings, client, sink.NewRecorderFactory())
	defer f.as.Shutdown()

	assert.Eventually(func() bool {
		return pollHealth(t, f).Healthy
	}, 3*time.Second, 20*time.Millisecond)

	inverter := f.recorder.Get(domain.SERVICE_KIND_INVERTER_CHARGER)
	require.NotNil(t, inverter)
	assert.True(inverter.HasPath("/Pv/V"), "conditional paths are instantiated")
	assert.True(inverter.HasPath("/Ac/ActiveIn/L1/V"))
	assert.Equal(0, valueOf(inverter, domain.PATH_CONNECTED))
	assert.Equal(domain.DEFAULT_FIRMWARE_VERSION, valueOf(inverter, "/FirmwareVersion"))

	// device shows up later
	client.SetOpenError(nil)
	assert.Eventually(func() bool {
		return valueOf(inverter, "/Ac/Out/L1/V") == 230.1
	}, 3*time.Second, 20*time.Millisecond)
}

func TestPollActorSetupTimeout(t *testing.T) {

	assert := assert.New(t)

	logger := zap.Must(zap.NewDevelopment())
	as := actorutil.NewActorSystemWithZapLogger(logger)
	defer as.Shutdown()

	// never answers
	silent := as.Root.Spawn(actor.PropsFromFunc(func(ctx actor.Context) {}))

	settings := testPollSettings()
	settings.SetupTimeout = 100 * time.Millisecond
	settings.CommandTimeout = 20 * time.Millisecond
	recorder := sink.NewRecorderFactory()
	poll := as.Root.Spawn(actor.PropsFromProducer(func() actor.Actor {
		return NewPollActor(settings, silent, recorder.Factory(), logger)
	}))
	f := pollFixture{as: as, recorder: recorder, poll: poll}

	assert.Eventually(func() bool {
		return pollHealth(t, f).State == "failed"
	}, 3*time.Second, 20*time.Millisecond)
	assert.False(pollHealth(t, f).Healthy)
	assert.Nil(recorder.Get(domain.SERVICE_KIND_INVERTER_CHARGER))
}

func TestPollActorSlowHandshake(t *testing.T) {

	assert := assert.New(t)

	// the handshake answers late and the serial number query hangs, so the
	// device needs close to two command timeouts before it answers
	client := mppsolar.CreateTestClient()
	client.SetDelay(mppsolar.COMMAND_PROTOCOL_ID, 150*time.Millisecond)
	client.SetDelay(mppsolar.COMMAND_SERIAL_NUMBER, 5*time.Second)

	settings := testPollSettings()
	settings.CommandTimeout = 200 * time.Millisecond
	settings.SetupTimeout = 300 * time.Millisecond
	f := spawnPoll(t, settings, client, sink.NewRecorderFactory())
	defer f.as.Shutdown()

	assert.Eventually(func() bool {
		return pollHealth(t, f).Healthy
	}, 3*time.Second, 20*time.Millisecond)
	assert.NotEqual("failed", pollHealth(t, f).State)

	inverter := f.recorder.Get(domain.SERVICE_KIND_INVERTER_CHARGER)
	require.NotNil(t, inverter)
	assert.Equal("PI30", valueOf(inverter, "/FirmwareVersion"))
	assert.Eventually(func() bool {
		return valueOf(inverter, "/Ac/Out/L1/V") == 230.1
	}, 3*time.Second, 20*time.Millisecond)
}
