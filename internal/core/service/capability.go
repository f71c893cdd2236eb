package service

import (
	"fmt"

	"mppsolar2mqtt/internal/core/domain"
	"mppsolar2mqtt/internal/core/port"

	"go.uber.org/zap"
)

// DefaultCapabilityAssessor never derives capabilities from a full status
// query. Whatever the probe outcome, every group is assumed present so that
// setup cannot stall on a marginal serial link.
type DefaultCapabilityAssessor struct {
	HasACInput bool
	Logger     *zap.Logger
}

func (a *DefaultCapabilityAssessor) Assess(probe *domain.DeviceInfo, probeErr error) (caps domain.CapabilitySet) {
	caps = domain.AssumeAllCapabilities(a.HasACInput)
	defer func() {
		if r := recover(); r != nil {
			a.logger().Warn("capability@assess failed, assuming all capabilities", zap.Any("reason", r))
			caps = domain.AssumeAllCapabilities(a.HasACInput)
		}
	}()

	switch {
	case probeErr != nil:
		a.logger().Warn("capability@assess probe failed, assuming all capabilities", zap.Error(probeErr))
	case probe == nil:
		a.logger().Warn("capability@assess no probe result, assuming all capabilities")
	default:
		a.logger().Info("capability@assess probe ok",
			zap.String("protocol", probe.ProtocolId),
			zap.String("serial", probe.SerialNumber),
			zap.Any("capabilities", caps))
	}
	return caps
}

func (a *DefaultCapabilityAssessor) logger() *zap.Logger {
	if a.Logger == nil {
		return zap.NewNop()
	}
	return a.Logger
}

// CapabilityTracker narrows optional groups that stay absent for a number of
// consecutive successful cycles, and restores them once they show up again.
// It never widens beyond the baseline set.
type CapabilityTracker struct {
	baseline  domain.CapabilitySet
	current   domain.CapabilitySet
	threshold uint
	absent    map[domain.CapabilityGroup]uint
}

type CapabilityChange struct {
	Group   domain.CapabilityGroup
	Present bool
}

func (c CapabilityChange) String() string {
	if c.Present {
		return fmt.Sprintf("%s restored", c.Group)
	}
	return fmt.Sprintf("%s narrowed", c.Group)
}

// NewCapabilityTracker with threshold 0 disables narrowing.
func NewCapabilityTracker(baseline domain.CapabilitySet, threshold uint) *CapabilityTracker {
	return &CapabilityTracker{
		baseline:  baseline,
		current:   baseline,
		threshold: threshold,
		absent:    map[domain.CapabilityGroup]uint{},
	}
}

func (t *CapabilityTracker) Current() domain.CapabilitySet {
	return t.current
}

// Reset re-asserts a baseline, as done after a reconnect.
func (t *CapabilityTracker) Reset(baseline domain.CapabilitySet) {
	t.baseline = baseline
	t.current = baseline
	clear(t.absent)
}

func (t *CapabilityTracker) Observe(tel *domain.Telemetry) []CapabilityChange {
	if t.threshold == 0 || tel == nil {
		return nil
	}
	var changes []CapabilityChange
	for _, group := range domain.OptionalGroups {
		if !t.baseline.Has(group) {
			continue
		}
		if groupPresent(tel, group) {
			t.absent[group] = 0
			if !t.current.Has(group) {
				t.current = t.current.With(group, true)
				changes = append(changes, CapabilityChange{Group: group, Present: true})
			}
			continue
		}
		t.absent[group]++
		if t.absent[group] >= t.threshold && t.current.Has(group) {
			t.current = t.current.With(group, false)
			changes = append(changes, CapabilityChange{Group: group, Present: false})
		}
	}
	return changes
}

func groupPresent(tel *domain.Telemetry, group domain.CapabilityGroup) bool {
	switch group {
	case domain.GROUP_AC_OUTPUT:
		return tel.ACOutput.Present()
	case domain.GROUP_AC_INPUT:
		return tel.ACInput.Present()
	case domain.GROUP_BATTERY:
		return tel.Battery.Present()
	case domain.GROUP_PV:
		return tel.PV.Present()
	case domain.GROUP_TEMPERATURE:
		return tel.System.HeatSinkTemperature != nil
	}
	return true
}

// ensure interface compliance
var _ port.CapabilityAssessor = (*DefaultCapabilityAssessor)(nil)
