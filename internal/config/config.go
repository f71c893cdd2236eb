package config

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"mppsolar2mqtt/internal/core/domain"

	"go.uber.org/zap/zapcore"
)

type Config struct {
	LogLevel      zapcore.Level
	Serial        SerialConfig  `mapstructure:"serial"`
	Device        DeviceConfig  `mapstructure:"device"`
	MonitorConfig MonitorConfig `mapstructure:"monitor"`
	MQTT          MQTTConfig    `mapstructure:"mqtt"`
	Kafka         KafkaConfig   `mapstructure:"kafka"`
	Metrics       MetricsConfig `mapstructure:"metrics"`
	Port          uint          `mapstructure:"port"`
	HttpLog       bool          `mapstructure:"http_log"`
}

type SerialConfig struct {
	Port                 string
	Baud                 int
	Protocol             string
	BridgeCommand        string   `mapstructure:"bridge_command"`
	BridgeArgs           []string `mapstructure:"bridge_args"`
	CommandTimeoutMillis uint32   `mapstructure:"command_timeout_millis"`
}

type DeviceConfig struct {
	// 0 derives the instance from the serial port
	Instance   int    `mapstructure:"instance"`
	CustomName string `mapstructure:"custom_name"`
}

type MonitorConfig struct {
	PollIntervalMillis uint32   `mapstructure:"poll_interval_millis"`
	SetupTimeoutMillis uint32   `mapstructure:"setup_timeout_millis"`
	Services           []string `mapstructure:"services"`
	ACInput            bool     `mapstructure:"ac_input"`
	SuppressInvalid    bool     `mapstructure:"suppress_invalid"`
	NarrowAfterCycles  uint     `mapstructure:"narrow_after_cycles"`
}

type MQTTConfig struct {
	Enable            bool
	Host              string
	Port              int
	Username          string
	Password          string
	BaseTopic         string `mapstructure:"base_topic"`
	HADiscoveryEnable bool   `mapstructure:"ha_discovery_enable"`
	HADiscoveryTopic  string `mapstructure:"ha_discovery_topic"`
}

type KafkaConfig struct {
	Enable  bool
	Brokers []string
	Topic   string
}

type MetricsConfig struct {
	Enable bool
}

func CheckMQTTTopic(baseTopic string) (string, error) {
	// check and fix base topic
	lowerBaseTopic := strings.ToLower(baseTopic)
	baseTopicRegexp := regexp.MustCompile("^[a-z0-9_]+$")
	matches := baseTopicRegexp.FindAllStringSubmatch(lowerBaseTopic, 1)
	if len(matches) <= 0 {
		return "", errors.New("invalid topic. can only contain letters, numbers and underscores")
	}
	return lowerBaseTopic, nil
}

// ServiceKinds parses the configured services. The inverter charger service
// must be present.
func (c MonitorConfig) ServiceKinds() ([]domain.ServiceKind, error) {
	var kinds []domain.ServiceKind
	seen := map[domain.ServiceKind]bool{}
	hasInverter := false
	for _, name := range c.Services {
		kind, err := domain.ParseServiceKind(name)
		if err != nil {
			return nil, err
		}
		if seen[kind] {
			continue
		}
		seen[kind] = true
		hasInverter = hasInverter || kind == domain.SERVICE_KIND_INVERTER_CHARGER
		kinds = append(kinds, kind)
	}
	if !hasInverter {
		return nil, fmt.Errorf("monitor.services must include %s", domain.SERVICE_NAME_INVERTER_CHARGER)
	}
	return kinds, nil
}

// CheckTimeouts requires the setup timeout to outlast a full identity probe,
// which is two serial commands.
func (c Config) CheckTimeouts() error {
	if c.Serial.CommandTimeoutMillis == 0 {
		return errors.New("config param serial.command_timeout_millis should be > 0")
	}
	if c.MonitorConfig.SetupTimeoutMillis <= 2*c.Serial.CommandTimeoutMillis {
		return fmt.Errorf("config param monitor.setup_timeout_millis should be > %d (2 * serial.command_timeout_millis)",
			2*c.Serial.CommandTimeoutMillis)
	}
	return nil
}

func (c Config) DeviceInstance() int {
	if c.Device.Instance > 0 {
		return c.Device.Instance
	}
	return domain.PreferredDeviceInstance(c.Serial.Port)
}
