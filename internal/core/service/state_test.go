package service

import (
	"testing"

	"mppsolar2mqtt/internal/core/domain"

	"github.com/stretchr/testify/assert"
)

func acOut(voltage, power float64) *domain.Telemetry {
	return &domain.Telemetry{
		ACOutput: domain.ACOutputReadings{Voltage: domain.Float(voltage), ActivePower: domain.Float(power)},
	}
}

func TestInverterStateThresholds(t *testing.T) {

	assert := assert.New(t)

	s := DeriveInverterChargerState(acOut(230, 500))
	assert.Equal(domain.MODE_ON, s.Mode)
	assert.Equal(domain.STATE_INVERTING, s.State)

	// strict comparisons: 180 V does not count as inverting, so the explicit
	// switched off flag decides
	atThreshold := acOut(180, 50)
	atThreshold.Status.SwitchedOn = domain.Bool(false)
	s = DeriveInverterChargerState(atThreshold)
	assert.Equal(domain.MODE_OFF, s.Mode)
	assert.Equal(domain.STATE_OFF, s.State)

	above := acOut(180.01, 50)
	above.Status.SwitchedOn = domain.Bool(false)
	s = DeriveInverterChargerState(above)
	assert.Equal(domain.MODE_ON, s.Mode)
	assert.Equal(domain.STATE_INVERTING, s.State)

	lowPower := acOut(230, 10)
	lowPower.Status.SwitchedOn = domain.Bool(false)
	assert.Equal(domain.STATE_OFF, DeriveInverterChargerState(lowPower).State)
}

func TestInverterStateOptimisticFallback(t *testing.T) {

	assert := assert.New(t)

	s := DeriveInverterChargerState(&domain.Telemetry{})
	assert.Equal(domain.MODE_ON, s.Mode)
	assert.Equal(domain.STATE_INVERTING, s.State)
	assert.Nil(s.MppOperationMode)

	switchedOn := acOut(0, 0)
	switchedOn.Status.SwitchedOn = domain.Bool(true)
	assert.Equal(domain.STATE_INVERTING, DeriveInverterChargerState(switchedOn).State)
}

func TestInverterStateChargingOverride(t *testing.T) {

	assert := assert.New(t)

	bulk := acOut(230, 500)
	bulk.Status.Charging = domain.Bool(true)
	s := DeriveInverterChargerState(bulk)
	assert.Equal(domain.MODE_ON, s.Mode, "mode not overridden")
	assert.Equal(domain.STATE_BULK, s.State)

	floating := acOut(230, 500)
	floating.Status.SolarCharging = domain.Bool(true)
	floating.Status.FloatCharging = domain.Bool(true)
	assert.Equal(domain.STATE_FLOAT, DeriveInverterChargerState(floating).State)

	off := &domain.Telemetry{Status: domain.StatusFlags{SwitchedOn: domain.Bool(false), Charging: domain.Bool(true)}}
	s = DeriveInverterChargerState(off)
	assert.Equal(domain.MODE_OFF, s.Mode)
	assert.Equal(domain.STATE_BULK, s.State)

	floatOnly := acOut(230, 500)
	floatOnly.Status.FloatCharging = domain.Bool(true)
	assert.Equal(domain.STATE_INVERTING, DeriveInverterChargerState(floatOnly).State, "float flag alone does not override")

	current := acOut(230, 500)
	current.Battery.Current = domain.Float(10)
	assert.Equal(domain.STATE_INVERTING, DeriveInverterChargerState(current).State, "charging current alone does not override")
}

func TestSolarChargerState(t *testing.T) {

	assert := assert.New(t)

	active := &domain.Telemetry{PV: domain.PVReadings{Voltage: domain.Float(118), Power: domain.Float(590)}}
	s := DeriveSolarChargerState(active)
	assert.Equal(domain.SOLAR_MODE_ON, s.Mode)
	assert.Equal(domain.STATE_BULK, s.State)
	assert.Equal(domain.MPPT_ACTIVE, *s.MppOperationMode)

	for _, tel := range []*domain.Telemetry{
		{PV: domain.PVReadings{Voltage: domain.Float(10), Power: domain.Float(590)}},
		{PV: domain.PVReadings{Voltage: domain.Float(118), Power: domain.Float(0)}},
		{PV: domain.PVReadings{Voltage: domain.Float(118)}},
		{},
		nil,
	} {
		s := DeriveSolarChargerState(tel)
		assert.Equal(domain.SOLAR_MODE_OFF, s.Mode)
		assert.Equal(domain.STATE_OFF, s.State)
		assert.Equal(domain.MPPT_OFF, *s.MppOperationMode)
	}
}

func TestStateDerivationIsPure(t *testing.T) {

	tel := acOut(230, 500)
	tel.Status.Charging = domain.Bool(true)

	first := DeriveState(domain.SERVICE_KIND_INVERTER_CHARGER, tel)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, DeriveState(domain.SERVICE_KIND_INVERTER_CHARGER, tel))
	}
	assert.Equal(t, DeriveSolarChargerState(tel), DeriveState(domain.SERVICE_KIND_SOLAR_CHARGER, tel))
}
