package util

import (
	"mppsolar2mqtt/internal/config"

	"go.uber.org/zap"
)

func LoadTestConfig() config.Config {
	return config.Config{
		LogLevel: zap.DebugLevel,
		Serial: config.SerialConfig{
			Port:                 "/dev/ttyUSB0",
			Baud:                 2400,
			Protocol:             "PI30",
			BridgeCommand:        "mpp-solar",
			CommandTimeoutMillis: 1000,
		},
		MonitorConfig: config.MonitorConfig{
			PollIntervalMillis: 200,
			SetupTimeoutMillis: 3000,
			Services:           []string{"vebus", "solarcharger"},
			NarrowAfterCycles:  0,
		},
		MQTT: config.MQTTConfig{
			Host:      "localhost",
			Port:      1883,
			BaseTopic: "mppsolar",
		},
		Port: 8080,
	}
}
