package service

import (
	"mppsolar2mqtt/internal/core/domain"
)

const (
	INVERTING_MIN_AC_VOLTAGE = 180.0
	INVERTING_MIN_AC_POWER   = 10.0
	SOLAR_MIN_PV_VOLTAGE     = 10.0
	SOLAR_MIN_PV_POWER       = 0.0
)

func DeriveState(kind domain.ServiceKind, t *domain.Telemetry) domain.OperatingState {
	if kind == domain.SERVICE_KIND_SOLAR_CHARGER {
		return DeriveSolarChargerState(t)
	}
	return DeriveInverterChargerState(t)
}

// DeriveInverterChargerState classifies the inverter from its AC output. The
// explicit charging flags override the state, never the mode; charging
// current alone does not.
func DeriveInverterChargerState(t *domain.Telemetry) domain.OperatingState {
	s := domain.OperatingState{Mode: domain.MODE_ON, State: domain.STATE_INVERTING}
	if t == nil {
		return s
	}

	v, p := t.ACOutput.Voltage, t.ACOutput.ActivePower
	inverting := v != nil && p != nil && *v > INVERTING_MIN_AC_VOLTAGE && *p > INVERTING_MIN_AC_POWER
	if !inverting && t.Status.SwitchedOn != nil && !*t.Status.SwitchedOn {
		s = domain.OperatingState{Mode: domain.MODE_OFF, State: domain.STATE_OFF}
	}

	if domain.IsTrue(t.Status.Charging) || domain.IsTrue(t.Status.SolarCharging) {
		if domain.IsTrue(t.Status.FloatCharging) {
			s.State = domain.STATE_FLOAT
		} else {
			s.State = domain.STATE_BULK
		}
	}
	return s
}

func DeriveSolarChargerState(t *domain.Telemetry) domain.OperatingState {
	mppt := domain.MPPT_OFF
	s := domain.OperatingState{Mode: domain.SOLAR_MODE_OFF, State: domain.STATE_OFF, MppOperationMode: &mppt}
	if t == nil {
		return s
	}

	v, p := t.PV.Voltage, t.PV.Power
	if v != nil && p != nil && *v > SOLAR_MIN_PV_VOLTAGE && *p > SOLAR_MIN_PV_POWER {
		active := domain.MPPT_ACTIVE
		s = domain.OperatingState{Mode: domain.SOLAR_MODE_ON, State: domain.STATE_BULK, MppOperationMode: &active}
	}
	return s
}
