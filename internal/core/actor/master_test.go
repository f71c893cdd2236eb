package actor

import (
	"errors"
	"fmt"
	"testing"
	"time"

	adactor "mppsolar2mqtt/internal/adapter/actor"
	"mppsolar2mqtt/internal/core/domain"
	"mppsolar2mqtt/internal/sink"
	"mppsolar2mqtt/internal/util"
	"mppsolar2mqtt/pkg/mppsolar"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testMasterSettings(t *testing.T) PollSettings {
	cfg := util.LoadTestConfig()
	settings, err := NewPollSettings(&cfg, domain.ServiceIdentity{
		DeviceInstance: cfg.DeviceInstance(),
		ProductId:      domain.PRODUCT_ID,
		ProductName:    domain.PRODUCT_NAME,
		ProcessName:    "mppsolar2mqtt",
		ProcessVersion: "test",
		Connection:     "Serial " + cfg.Serial.Port,
	})
	require.NoError(t, err)
	return settings
}

func TestMasterActor(t *testing.T) {

	as := actor.NewActorSystem()
	context := as.Root

	cfg := util.LoadTestConfig()
	logCfg := zap.NewDevelopmentConfig()
	logCfg.Level = zap.NewAtomicLevelAt(cfg.LogLevel)
	logger := zap.Must(logCfg.Build())

	settings := testMasterSettings(t)
	recorder := sink.NewRecorderFactory()
	fatal := make(chan error, 1)

	props := actor.PropsFromProducer(func() actor.Actor {
		return NewMasterOfPuppetsActor(settings, func() *adactor.DeviceActor {
			return adactor.NewDeviceActor(mppsolar.CreateTestClient(), settings.Port, settings.Protocol, time.Second, logger)
		}, func() *adactor.MQTTActor {
			return adactor.NewTestMQTTActor(logger)
		}, recorder.Factory(), func(err error) { fatal <- err }, logger)
	})
	pid, err := context.SpawnNamed(props, "master")
	if err != nil {
		t.Error(err)
		return
	}

	time.Sleep(1 * time.Second)

	res, err := context.RequestFuture(pid, domain.ActorHealthRequest{}, 10*time.Second).Result()
	if err != nil {
		t.Error(err)
	}
	healthResp, ok := res.(domain.ActorHealthResponse)
	assert.True(t, ok)
	fmt.Printf("Health response: %+v\n", healthResp)

	assert.True(t, healthResp.Healthy, "healthy is true")
	assert.Equal(t, domain.ACTOR_ID_MASTER, healthResp.Id)

	inverter := recorder.Get(domain.SERVICE_KIND_INVERTER_CHARGER)
	require.NotNil(t, inverter)
	v, _ := inverter.Value("/Ac/Out/L1/P")
	assert.Equal(t, 506.0, v)

	context.Stop(pid)
	as.Shutdown()

	select {
	case err := <-fatal:
		t.Errorf("unexpected fatal error: %v", err)
	default:
	}
}

func TestMasterActorSetupFailure(t *testing.T) {

	assert := assert.New(t)

	as := actor.NewActorSystem()
	context := as.Root
	logger := zap.Must(zap.NewDevelopment())

	settings := testMasterSettings(t)
	recorder := sink.NewRecorderFactory()
	recorder.FailKind(domain.SERVICE_KIND_INVERTER_CHARGER, errors.New("broker rejected registration"))
	fatal := make(chan error, 1)

	props := actor.PropsFromProducer(func() actor.Actor {
		return NewMasterOfPuppetsActor(settings, func() *adactor.DeviceActor {
			return adactor.NewDeviceActor(mppsolar.CreateTestClient(), settings.Port, settings.Protocol, time.Second, logger)
		}, nil, recorder.Factory(), func(err error) { fatal <- err }, logger)
	})
	pid := context.Spawn(props)
	defer as.Shutdown()

	select {
	case err := <-fatal:
		assert.ErrorContains(err, "broker rejected registration")
	case <-time.After(5 * time.Second):
		t.Fatal("setup failure was not reported")
	}

	res, err := context.RequestFuture(pid, domain.ActorHealthRequest{}, 5*time.Second).Result()
	require.NoError(t, err)
	assert.False(res.(domain.ActorHealthResponse).Healthy)
}
