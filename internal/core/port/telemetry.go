package port

import (
	"mppsolar2mqtt/internal/core/domain"
	"mppsolar2mqtt/pkg/mppsolar"
)

type ResponseNormalizer interface {
	Normalize(raw mppsolar.Response) (*domain.Telemetry, error)
}

type CapabilityAssessor interface {
	Assess(probe *domain.DeviceInfo, probeErr error) domain.CapabilitySet
}
