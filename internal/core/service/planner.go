package service

import (
	"fmt"
	"math"

	"mppsolar2mqtt/internal/core/domain"
	"mppsolar2mqtt/internal/core/port"

	"go.uber.org/zap"
)

type PlanEntry struct {
	Path  string
	Value any
}

// PublicationPlan is the ordered list of writes for one service and cycle.
type PublicationPlan []PlanEntry

func (p PublicationPlan) Value(path string) (any, bool) {
	for _, e := range p {
		if e.Path == path {
			return e.Value, true
		}
	}
	return nil, false
}

type PublicationPlanner struct {
	registry *SchemaRegistry
	logger   *zap.Logger
}

func NewPublicationPlanner(registry *SchemaRegistry, logger *zap.Logger) *PublicationPlanner {
	return &PublicationPlanner{
		registry: registry,
		logger:   logger,
	}
}

// Plan maps telemetry onto the schema of kind. A nil telemetry yields only
// the connectivity paths.
func (p *PublicationPlanner) Plan(kind domain.ServiceKind, t *domain.Telemetry, caps domain.CapabilitySet, online bool) PublicationPlan {
	plan := PublicationPlan{
		{Path: domain.PATH_CONNECTED, Value: boolToInt(online)},
		{Path: domain.PATH_STATUS, Value: boolToInt(online)},
	}
	if t == nil {
		return plan
	}

	state := DeriveState(kind, t)
	for _, d := range p.registry.Schema(kind) {
		switch {
		case d.IsConnectivity():
		case d.IsDerived():
			if v, ok := state.Value(d.Path); ok {
				plan = append(plan, PlanEntry{Path: d.Path, Value: v})
			}
		case d.Value == nil:
		case !d.Required && !caps.Has(d.Gate):
		default:
			if v := d.Value(t); v != nil {
				plan = append(plan, PlanEntry{Path: d.Path, Value: round(*v, d.Decimals)})
			}
		}
	}
	return plan
}

// Apply writes plan to the sink of svc. Paths the service never instantiated
// are skipped. A failed write does not stop the remaining ones.
func (p *PublicationPlanner) Apply(svc *PublishedService, plan PublicationPlan) bool {
	ok := true
	for _, e := range plan {
		if !svc.Has(e.Path) {
			p.logger.Debug("publication@apply path not instantiated", zap.Stringer("service", svc.Kind), zap.String("path", e.Path))
			continue
		}
		if err := safeSet(svc.sink, e.Path, e.Value); err != nil {
			ok = false
			p.logger.Warn("publication@apply set failed", zap.Stringer("service", svc.Kind), zap.String("path", e.Path), zap.Error(err))
		}
	}
	return ok
}

func (p *PublicationPlanner) PlanAndPublish(t *domain.Telemetry, caps domain.CapabilitySet, online bool,
	services []*PublishedService) map[domain.ServiceKind]bool {
	result := make(map[domain.ServiceKind]bool, len(services))
	for _, svc := range services {
		result[svc.Kind] = p.Apply(svc, p.Plan(svc.Kind, t, caps, online))
	}
	return result
}

func safeSet(sink port.PublishSink, path string, value any) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sink panic: %v", r)
		}
	}()
	return sink.Set(path, value)
}

func round(v float64, decimals int) float64 {
	pow := math.Pow(10, float64(decimals))
	return math.Round(v*pow) / pow
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
