package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	adactor "mppsolar2mqtt/internal/adapter/actor"
	"mppsolar2mqtt/internal/config"
	"mppsolar2mqtt/internal/core/actor"
	"mppsolar2mqtt/internal/core/domain"
	"mppsolar2mqtt/internal/core/port"
	"mppsolar2mqtt/internal/kafka"
	"mppsolar2mqtt/internal/metrics"
	"mppsolar2mqtt/internal/mqtt"
	"mppsolar2mqtt/internal/server"
	"mppsolar2mqtt/internal/sink"
	"mppsolar2mqtt/internal/util/actorutil"
	"mppsolar2mqtt/pkg/mppsolar"

	pactor "github.com/asynkron/protoactor-go/actor"
	"github.com/carlmjohnson/versioninfo"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const PROCESS_NAME = "mppsolar2mqtt"

func gracefulShutdown(apiServer *http.Server, fatal <-chan error, done chan bool) {
	// Create context that listens for the interrupt signal from the OS.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Listen for the interrupt signal, or a pipeline that cannot start.
	select {
	case <-ctx.Done():
		log.Println("shutting down gracefully, press Ctrl+C again to force")
	case err := <-fatal:
		log.Printf("shutting down, monitor failed: %v", err)
	}

	// The context is used to inform the server it has 5 seconds to finish
	// the request it is currently handling
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := apiServer.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown with error: %v", err)
	}

	log.Println("Server exiting")

	// Notify the main goroutine that the shutdown is complete
	done <- true
}

func main() {

	// load and print config
	cfg, err := initConfig()
	if err != nil {
		slog.Error("config errors", "error", err)
		os.Exit(1)
	}
	safePrintConfig(*cfg)

	// zap logger
	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(cfg.LogLevel)

	logger := zap.Must(zapCfg.Build())

	// init actor system
	as := actorutil.NewActorSystemWithZapLogger(logger)
	ctx := as.Root

	defer logger.Sync()

	var exporter *metrics.Exporter
	var serverOpts []server.Option
	if cfg.Metrics.Enable {
		exporter = metrics.NewExporter()
		serverOpts = append(serverOpts, server.WithMetrics(exporter.Handler()))
	}

	// init device actor provider
	deviceProv, err := deviceActorProvider(cfg, exporter, logger)
	if err != nil {
		logger.Error("could not create device client", zap.Error(err))
		os.Exit(1)
	}

	var mqttClient *mqtt.MQTTClient
	var mqttProv actor.MQTTActorProvider
	if cfg.MQTT.Enable {
		mqttClient = mqtt.CreateMQTTClient(cfg, mqtt.OptsFromConfig(cfg))
		mqttProv = mqttActorProvider(mqttClient, logger)
	}

	var producer *kafka.Producer
	if cfg.Kafka.Enable {
		producer, err = kafka.NewProducer(cfg.Kafka, logger)
		if err != nil {
			logger.Error("could not create kafka producer", zap.Error(err))
			os.Exit(1)
		}
		defer producer.Close()
	}

	settings, err := actor.NewPollSettings(cfg, serviceIdentity(cfg))
	if err != nil {
		logger.Error("invalid monitor config", zap.Error(err))
		os.Exit(1)
	}

	fatal := make(chan error, 1)
	onFatal := func(err error) {
		select {
		case fatal <- err:
		default:
		}
	}

	factory := sinkFactory(mqttClient, exporter, producer, logger)
	props := pactor.PropsFromProducer(func() pactor.Actor {
		return actor.NewMasterOfPuppetsActor(settings, deviceProv, mqttProv, factory, onFatal, logger)
	})
	pid, err := ctx.SpawnNamed(props, domain.ACTOR_ID_MASTER)
	if err != nil {
		logger.Error("could not spawn master actor", zap.Error(err))
		os.Exit(1)
	}

	server := server.NewServer(*cfg, ctx, pid, serverOpts...)
	// Create a done channel to signal when the shutdown is complete
	done := make(chan bool, 1)

	// Run graceful shutdown in a separate goroutine
	go gracefulShutdown(server, fatal, done)

	err = server.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		panic(fmt.Sprintf("http server error: %s", err))
	}

	// Wait for the graceful shutdown to complete
	<-done
	log.Println("Graceful shutdown complete.")

	ctx.Stop(pid)
	as.Shutdown()
}

func initConfig() (*config.Config, error) {

	// alias PORT => MPPSOLAR_PORT
	if port := os.Getenv("PORT"); port != "" {
		os.Setenv("MPPSOLAR_PORT", port)
	}

	setConfigDefaults()

	viper.SetEnvPrefix("mppsolar")
	viper.AutomaticEnv()

	// if defined, try to load config from yaml file
	if cfgFile := os.Getenv("CONFIG_FILE"); cfgFile != "" {
		if _, err := os.Stat(cfgFile); err == nil {
			slog.Info("Using config", "file", cfgFile)
			viper.SetConfigFile(cfgFile)

			err = viper.ReadInConfig()
			if err != nil {
				slog.Error("Error reading config file", "error", err)
			}
		}
	}

	var cfg config.Config

	err := viper.Unmarshal(&cfg)
	if err != nil {
		return nil, err
	}

	// parse log level
	switch viper.GetString("log_level") {
	case "trace":
		cfg.LogLevel = zap.DebugLevel
	case "debug":
		cfg.LogLevel = zap.DebugLevel
	case "info":
		cfg.LogLevel = zap.InfoLevel
	case "error":
		cfg.LogLevel = zap.ErrorLevel
	case "warn":
		cfg.LogLevel = zap.WarnLevel
	case "fatal":
		cfg.LogLevel = zap.FatalLevel
	default:
		cfg.LogLevel = zap.InfoLevel
	}

	// check and fix base topic
	baseTopic, err := config.CheckMQTTTopic(cfg.MQTT.BaseTopic)
	if err != nil {
		return nil, errors.New("invalid base topic. can only contain letters, numbers and underscores")
	}
	cfg.MQTT.BaseTopic = baseTopic

	// check and fix homeassistant discovery topic
	hadBaseTopic, err := config.CheckMQTTTopic(cfg.MQTT.HADiscoveryTopic)
	if err != nil {
		return nil, errors.New("invalid homeassistant discovery topic. can only contain letters, numbers and underscores")
	}
	cfg.MQTT.HADiscoveryTopic = hadBaseTopic

	// check bounds
	if cfg.Serial.Port == "" {
		return nil, errors.New("config param serial.port is required")
	}
	if cfg.MonitorConfig.PollIntervalMillis < 100 {
		return nil, errors.New("config param monitor.poll_interval_millis should be >= 100")
	}
	if err := cfg.CheckTimeouts(); err != nil {
		return nil, err
	}
	if _, err := cfg.MonitorConfig.ServiceKinds(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func deviceActorProvider(cfg *config.Config, exporter *metrics.Exporter, logger *zap.Logger) (actor.DeviceActorProvider, error) {

	var inst *mppsolar.Instrument
	if exporter != nil {
		inst = exporter.Instrument()
	}

	client, err := mppsolar.CreateBridgeClient(cfg.Serial.Port, cfg.Serial.Baud, cfg.Serial.Protocol,
		cfg.Serial.BridgeCommand, cfg.Serial.BridgeArgs, logger, inst)
	if err != nil {
		return nil, err
	}

	commandTimeout := time.Duration(cfg.Serial.CommandTimeoutMillis) * time.Millisecond
	return func() *adactor.DeviceActor {
		return adactor.NewDeviceActor(client, cfg.Serial.Port, cfg.Serial.Protocol, commandTimeout, logger)
	}, nil
}

func mqttActorProvider(client *mqtt.MQTTClient, logger *zap.Logger) actor.MQTTActorProvider {
	return func() *adactor.MQTTActor {
		return adactor.NewMQTTActor(client, logger)
	}
}

// sinkFactory fans every service out to the enabled outputs. Without any
// output the values are only logged.
func sinkFactory(client *mqtt.MQTTClient, exporter *metrics.Exporter, producer *kafka.Producer, logger *zap.Logger) port.SinkFactory {
	return func(kind domain.ServiceKind, identity domain.ServiceIdentity, uniqueId string) (port.PublishSink, error) {
		var sinks []port.PublishSink
		if client != nil {
			sinks = append(sinks, mqtt.NewPathSink(client, kind, identity, uniqueId))
		}
		if exporter != nil {
			sinks = append(sinks, exporter.Sink(kind))
		}
		if producer != nil {
			sinks = append(sinks, producer.Sink(kind, identity, uniqueId))
		}
		if len(sinks) == 0 {
			return sink.NewLogSink(kind.String(), logger), nil
		}
		return sink.NewFanout(sinks...), nil
	}
}

func serviceIdentity(cfg *config.Config) domain.ServiceIdentity {
	return domain.ServiceIdentity{
		DeviceInstance: cfg.DeviceInstance(),
		ProductId:      domain.PRODUCT_ID,
		ProductName:    domain.PRODUCT_NAME,
		CustomName:     cfg.Device.CustomName,
		ProcessName:    PROCESS_NAME,
		ProcessVersion: versioninfo.Short(),
		Connection:     "Serial " + cfg.Serial.Port,
	}
}

func setConfigDefaults() {
	viper.SetDefault("log_level", "warn")
	viper.SetDefault("serial.port", "/dev/ttyUSB0")
	viper.SetDefault("serial.baud", 2400)
	viper.SetDefault("serial.protocol", "PI30")
	viper.SetDefault("serial.bridge_command", "mpp-solar")
	viper.SetDefault("serial.command_timeout_millis", 5000)
	viper.SetDefault("device.instance", 0)
	viper.SetDefault("device.custom_name", "")
	viper.SetDefault("monitor.poll_interval_millis", 1000)
	viper.SetDefault("monitor.setup_timeout_millis", 15000)
	viper.SetDefault("monitor.services", []string{domain.SERVICE_NAME_INVERTER_CHARGER, domain.SERVICE_NAME_SOLAR_CHARGER})
	viper.SetDefault("monitor.ac_input", true)
	viper.SetDefault("monitor.suppress_invalid", false)
	viper.SetDefault("monitor.narrow_after_cycles", 0)
	viper.SetDefault("mqtt.enable", true)
	viper.SetDefault("mqtt.port", 1883)
	viper.SetDefault("mqtt.ha_discovery_enable", false)
	viper.SetDefault("mqtt.base_topic", "mppsolar")
	viper.SetDefault("mqtt.ha_discovery_topic", "homeassistant")
	viper.SetDefault("kafka.enable", false)
	viper.SetDefault("kafka.topic", "mppsolar")
	viper.SetDefault("metrics.enable", false)
	viper.SetDefault("port", 8080)
}

func safePrintConfig(cfg config.Config) {
	cfg.MQTT.Username = "*redacted*"
	cfg.MQTT.Password = "*redacted*"
	slog.Info("Using", "config", cfg)
}
