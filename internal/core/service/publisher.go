package service

import (
	"errors"
	"fmt"

	"mppsolar2mqtt/internal/core/domain"
	"mppsolar2mqtt/internal/core/port"

	"go.uber.org/zap"
)

var ErrMinimumRequirements = errors.New("minimum capability requirements not met")

// PublishedService is a service whose path set was fixed when it was created.
type PublishedService struct {
	Kind  domain.ServiceKind
	sink  port.PublishSink
	paths map[string]struct{}
}

func NewPublishedService(kind domain.ServiceKind, sink port.PublishSink, paths []domain.PathDescriptor) (*PublishedService, error) {
	svc := &PublishedService{
		Kind:  kind,
		sink:  sink,
		paths: make(map[string]struct{}, len(paths)),
	}
	for _, d := range paths {
		if err := sink.AddPath(d.Path, d.Default, d.Required, d.Description); err != nil {
			return nil, fmt.Errorf("add path %s: %w", d.Path, err)
		}
		svc.paths[d.Path] = struct{}{}
	}
	if err := sink.Register(); err != nil {
		return nil, fmt.Errorf("register: %w", err)
	}
	return svc, nil
}

func (s *PublishedService) Has(path string) bool {
	_, ok := s.paths[path]
	return ok
}

func (s *PublishedService) PathCount() int {
	return len(s.paths)
}

// BuildServices instantiates the configured service kinds. The inverter
// charger service is mandatory, others are skipped when they fail.
func BuildServices(registry *SchemaRegistry, caps domain.CapabilitySet, kinds []domain.ServiceKind,
	identity domain.ServiceIdentity, uniqueId string, factory port.SinkFactory, logger *zap.Logger) ([]*PublishedService, error) {
	if !caps.MinimumRequirementsMet {
		return nil, ErrMinimumRequirements
	}

	var services []*PublishedService
	for _, kind := range kinds {
		svc, err := buildService(registry, caps, kind, identity, uniqueId, factory)
		if err != nil {
			if kind == domain.SERVICE_KIND_INVERTER_CHARGER {
				return nil, fmt.Errorf("create %s service: %w", kind, err)
			}
			logger.Error("publication@setup could not create service", zap.Stringer("service", kind), zap.Error(err))
			continue
		}
		logger.Info("publication@setup service registered", zap.Stringer("service", kind), zap.Int("paths", svc.PathCount()))
		services = append(services, svc)
	}
	if len(services) == 0 {
		return nil, errors.New("no service could be created")
	}
	return services, nil
}

func buildService(registry *SchemaRegistry, caps domain.CapabilitySet, kind domain.ServiceKind,
	identity domain.ServiceIdentity, uniqueId string, factory port.SinkFactory) (*PublishedService, error) {
	sink, err := factory(kind, identity, uniqueId)
	if err != nil {
		return nil, err
	}
	return NewPublishedService(kind, sink, registry.PathsFor(kind, caps))
}
