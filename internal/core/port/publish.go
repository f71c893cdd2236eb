package port

import (
	"mppsolar2mqtt/internal/core/domain"
)

// PublishSink exposes the paths of one service to a downstream monitor.
type PublishSink interface {
	AddPath(path string, value any, required bool, description string) error
	Set(path string, value any) error
	Register() error
}

// SinkFactory creates the sink of a service once its identity is known.
type SinkFactory func(kind domain.ServiceKind, identity domain.ServiceIdentity, uniqueId string) (PublishSink, error)
