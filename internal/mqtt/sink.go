package mqtt

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"mppsolar2mqtt/internal/core/domain"
	"mppsolar2mqtt/internal/core/port"

	"github.com/spf13/cast"
)

const (
	HA_COMPONENT_SENSOR = "sensor"
	PUBLISH_TIMEOUT     = 2 * time.Second
)

type pathPublisher interface {
	topicNamer
	HADiscoveryEnabled() bool
	HADiscoveryTopic(component string, nodeId string, objectId string) string
	PublishWait(topic string, payload any, qos byte, retain bool, timeout time.Duration) error
	PublishBirth(topic string, payload []byte, timeout time.Duration) error
}

type sinkPath struct {
	path        string
	value       any
	description string
}

// PathSink publishes each path of one service as a retained state topic.
type PathSink struct {
	client     pathPublisher
	service    string
	identity   domain.ServiceIdentity
	uniqueId   string
	paths      []sinkPath
	index      map[string]int
	registered bool
}

func NewPathSink(client *MQTTClient, kind domain.ServiceKind, identity domain.ServiceIdentity, uniqueId string) *PathSink {
	return newPathSink(client, kind, identity, uniqueId)
}

func newPathSink(client pathPublisher, kind domain.ServiceKind, identity domain.ServiceIdentity, uniqueId string) *PathSink {
	return &PathSink{
		client:   client,
		service:  kind.String(),
		identity: identity,
		uniqueId: uniqueId,
		index:    map[string]int{},
	}
}

func (s *PathSink) AddPath(path string, value any, required bool, description string) error {
	if s.registered {
		return fmt.Errorf("add path %s: service %s already registered", path, s.service)
	}
	if i, ok := s.index[path]; ok {
		s.paths[i].value = value
		return nil
	}
	s.index[path] = len(s.paths)
	s.paths = append(s.paths, sinkPath{path: path, value: value, description: description})
	return nil
}

// Register announces the paths and publishes their initial values. Both are
// kept as birth messages so a reconnect replays them.
func (s *PathSink) Register() error {
	var errs []error
	for _, p := range s.paths {
		if s.client.HADiscoveryEnabled() {
			msg := PathToHADiscoveryMessage(s.client, s.service, p.path, p.description, s.identity, s.uniqueId)
			payload, err := json.Marshal(msg)
			if err != nil {
				return err
			}
			topic := s.client.HADiscoveryTopic(HA_COMPONENT_SENSOR, s.uniqueId, ObjectId(s.service, p.path))
			if err := s.client.PublishBirth(topic, payload, PUBLISH_TIMEOUT); err != nil {
				errs = append(errs, err)
			}
		}
		// connectivity follows the poll cycle and is never replayed
		if p.value == nil || p.path == domain.PATH_CONNECTED || p.path == domain.PATH_STATUS {
			continue
		}
		payload, err := FormatValue(p.value)
		if err != nil {
			errs = append(errs, fmt.Errorf("publish %s: %w", p.path, err))
			continue
		}
		if err := s.client.PublishBirth(s.client.PathTopic(s.service, p.path), []byte(payload), PUBLISH_TIMEOUT); err != nil {
			errs = append(errs, err)
		}
	}
	s.registered = true
	return errors.Join(errs...)
}

func (s *PathSink) Set(path string, value any) error {
	if _, ok := s.index[path]; !ok {
		return fmt.Errorf("set %s: unknown path of service %s", path, s.service)
	}
	return s.publish(path, value)
}

func (s *PathSink) publish(path string, value any) error {
	payload, err := FormatValue(value)
	if err != nil {
		return fmt.Errorf("publish %s: %w", path, err)
	}
	return s.client.PublishWait(s.client.PathTopic(s.service, path), payload, 0, true, PUBLISH_TIMEOUT)
}

// FormatValue renders a path value as an MQTT payload.
func FormatValue(value any) (string, error) {
	if value == nil {
		return "", nil
	}
	return cast.ToStringE(value)
}

// ensure interface compliance
var _ port.PublishSink = (*PathSink)(nil)
