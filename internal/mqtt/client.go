package mqtt

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"mppsolar2mqtt/internal/config"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
)

const (
	MQTT_PAYLOAD_ONLINE  = "online"
	MQTT_PAYLOAD_OFFLINE = "offline"
)

func OptsFromConfig(cfg *config.Config) *mqtt.ClientOptions {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", cfg.MQTT.Host, cfg.MQTT.Port))
	opts.SetClientID(fmt.Sprintf("mppsolar_%s", uuid.New().String()[:8]))
	if cfg.MQTT.Username != "" && cfg.MQTT.Password != "" {
		opts.SetUsername(cfg.MQTT.Username)
		opts.SetPassword(cfg.MQTT.Password)
	}
	opts.WillEnabled = true
	opts.WillPayload = []byte(MQTT_PAYLOAD_OFFLINE)
	opts.WillRetained = true
	opts.WillTopic = bridgeStateTopic(cfg.MQTT.BaseTopic)
	opts.WillQos = 0
	// reconnection is driven by the connection actor supervisor
	opts.SetAutoReconnect(false)

	return opts
}

func CreateMQTTClient(cfg *config.Config, opts *mqtt.ClientOptions) *MQTTClient {
	c := &MQTTClient{
		cfg:   cfg.MQTT,
		birth: map[string][]byte{},
	}
	opts.OnConnect = func(_ mqtt.Client) {
		if fn := c.listener().onConnect; fn != nil {
			fn()
		}
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		if fn := c.listener().onConnectionLost; fn != nil {
			fn(err)
		}
	}
	c.client = mqtt.NewClient(opts)
	return c
}

// MQTTClient is shared by the connection actor, which owns the connection,
// and the path sinks, which publish through it.
type MQTTClient struct {
	client mqtt.Client
	cfg    config.MQTTConfig

	mu         sync.Mutex
	listeners  connectionListener
	birth      map[string][]byte
	birthOrder []string
}

type connectionListener struct {
	onConnect        func()
	onConnectionLost func(error)
}

// Listen replaces the connection callbacks. Callbacks run on paho goroutines.
func (c *MQTTClient) Listen(onConnect func(), onConnectionLost func(error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = connectionListener{onConnect: onConnect, onConnectionLost: onConnectionLost}
}

func (c *MQTTClient) listener() connectionListener {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.listeners
}

func (c *MQTTClient) baseTopic() string {
	return c.cfg.BaseTopic
}

func (c *MQTTClient) BridgeStateTopic() string {
	return bridgeStateTopic(c.baseTopic())
}

// PathTopic maps a service path to its state topic, e.g. mppsolar/vebus/Ac/Out/L1/V.
func (c *MQTTClient) PathTopic(service string, path string) string {
	return fmt.Sprintf("%s/%s/%s", c.baseTopic(), service, strings.TrimPrefix(path, "/"))
}

func (c *MQTTClient) HADiscoveryEnabled() bool {
	return c.cfg.HADiscoveryEnable
}

func (c *MQTTClient) HADiscoveryTopic(component string, nodeId string, objectId string) string {
	return fmt.Sprintf("%s/%s/%s/%s/config", c.cfg.HADiscoveryTopic, component, nodeId, objectId)
}

func (c *MQTTClient) IsConnected() bool {
	return c.client.IsConnectionOpen()
}

func (c *MQTTClient) Publish(topic string, payload any, qos byte, retain bool, continuation func(error), timeout time.Duration) {
	token := c.client.Publish(topic, qos, retain, payload)
	go func() {
		didTO := token.WaitTimeout(timeout)
		if !didTO {
			continuation(errors.New("MQTT publish timed out"))
		} else {
			continuation(token.Error())
		}
	}()
}

// PublishWait publishes and blocks until the broker acknowledges or the timeout expires.
func (c *MQTTClient) PublishWait(topic string, payload any, qos byte, retain bool, timeout time.Duration) error {
	token := c.client.Publish(topic, qos, retain, payload)
	if !token.WaitTimeout(timeout) {
		return fmt.Errorf("MQTT publish to %s timed out", topic)
	}
	return token.Error()
}

// PublishBirth stores a retained message that is published now and again on
// every reconnect.
func (c *MQTTClient) PublishBirth(topic string, payload []byte, timeout time.Duration) error {
	c.mu.Lock()
	if _, ok := c.birth[topic]; !ok {
		c.birthOrder = append(c.birthOrder, topic)
	}
	c.birth[topic] = payload
	c.mu.Unlock()

	if !c.IsConnected() {
		return nil
	}
	return c.PublishWait(topic, payload, 1, true, timeout)
}

// RepublishBirth sends every stored birth message, returning the joined errors.
func (c *MQTTClient) RepublishBirth(timeout time.Duration) error {
	c.mu.Lock()
	topics := append([]string(nil), c.birthOrder...)
	payloads := make([][]byte, len(topics))
	for i, topic := range topics {
		payloads[i] = c.birth[topic]
	}
	c.mu.Unlock()

	var errs []error
	for i := range topics {
		if err := c.PublishWait(topics[i], payloads[i], 1, true, timeout); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (c *MQTTClient) BirthTopics() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.birthOrder...)
}

func (c *MQTTClient) Connect(continuation func(error), timeout time.Duration) {
	token := c.client.Connect()
	go func() {
		didTO := token.WaitTimeout(timeout)
		if !didTO {
			continuation(errors.New("MQTT connect timed out"))
		} else {
			continuation(token.Error())
		}
	}()
}

func (c *MQTTClient) Disconnect(timeout time.Duration) {
	c.client.Disconnect(uint(timeout.Milliseconds()))
}

func bridgeStateTopic(baseTopic string) string {
	return fmt.Sprintf("%s/bridge/state", baseTopic)
}
