package service

import (
	"testing"

	"mppsolar2mqtt/internal/core/domain"
	"mppsolar2mqtt/pkg/mppsolar"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var normalizer = DefaultResponseNormalizer{}

func raw(fields map[string]any) mppsolar.Response {
	resp := mppsolar.Response{}
	for k, v := range fields {
		resp[k] = mppsolar.NewField(v, "")
	}
	return resp
}

func TestNormalizeAbsentFieldsStayUnset(t *testing.T) {

	assert := assert.New(t)

	tel, err := normalizer.Normalize(raw(map[string]any{"Battery Voltage": 52.0}))
	require.NoError(t, err)

	assert.Equal(52.0, *tel.Battery.Voltage)
	assert.Nil(tel.ACOutput.Voltage)
	assert.Nil(tel.ACOutput.Current)
	assert.Nil(tel.Battery.Current, "no charging or discharging reported")
	assert.Nil(tel.System.HeatSinkTemperature)
	assert.Nil(tel.Status.SwitchedOn)
}

func TestNormalizeEmptyResponse(t *testing.T) {

	tel, err := normalizer.Normalize(mppsolar.Response{})

	assert.ErrorIs(t, err, ErrNoUsableFields)
	require.NotNil(t, tel)
	assert.Equal(t, domain.Telemetry{}, *tel)
}

func TestNormalizeUnknownAndMalformedFields(t *testing.T) {

	assert := assert.New(t)

	tel, err := normalizer.Normalize(raw(map[string]any{
		"Some Future Field": 12.0,
		"AC Output Voltage": "n/a",
		"Battery Voltage":   "51.2",
	}))
	require.NoError(t, err)

	assert.Nil(tel.ACOutput.Voltage, "non numeric value is dropped")
	assert.Equal(51.2, *tel.Battery.Voltage, "numeric strings are accepted")

	_, err = normalizer.Normalize(raw(map[string]any{"AC Output Voltage": "n/a"}))
	assert.ErrorIs(err, ErrNoUsableFields)
}

func TestNormalizeACCurrent(t *testing.T) {

	assert := assert.New(t)

	tel, _ := normalizer.Normalize(raw(map[string]any{"AC Output Voltage": 230.0, "AC Output Active Power": 500.0}))
	assert.InDelta(2.1739, *tel.ACOutput.Current, 0.0001)

	tel, _ = normalizer.Normalize(raw(map[string]any{"AC Output Voltage": 0.0, "AC Output Active Power": 500.0}))
	assert.Nil(tel.ACOutput.Current, "zero voltage")

	tel, _ = normalizer.Normalize(raw(map[string]any{"AC Output Active Power": 500.0}))
	assert.Nil(tel.ACOutput.Current, "missing voltage")

	tel, _ = normalizer.Normalize(raw(map[string]any{"AC Output Voltage": 230.0}))
	assert.Nil(tel.ACOutput.Current, "missing power")
}

func TestNormalizeNetBatteryCurrent(t *testing.T) {

	assert := assert.New(t)

	cases := []struct {
		charging, discharging, expected float64
	}{
		{10, 0, 10},
		{0, 6, -6},
		{0, 0, 0},
		{4, 3, 4},
	}
	for _, c := range cases {
		tel, err := normalizer.Normalize(raw(map[string]any{
			"Battery Charging Current":  c.charging,
			"Battery Discharge Current": c.discharging,
		}))
		require.NoError(t, err)
		assert.Equal(c.expected, *tel.Battery.Current, "charging %v discharging %v", c.charging, c.discharging)
	}

	tel, _ := normalizer.Normalize(raw(map[string]any{"Battery Discharge Current": 6.0}))
	assert.Equal(-6.0, *tel.Battery.Current, "only discharge reported")
}

func TestNormalizeTemperature(t *testing.T) {

	assert := assert.New(t)

	tel, _ := normalizer.Normalize(raw(map[string]any{"Inverter Heat Sink Temperature": 455}))
	assert.Equal(45.5, *tel.System.HeatSinkTemperature)

	tel, _ = normalizer.Normalize(raw(map[string]any{"Inverter Heat Sink Temperature": 45}))
	assert.Equal(45.0, *tel.System.HeatSinkTemperature)

	tel, _ = normalizer.Normalize(raw(map[string]any{"Inverter Heat Sink Temperature": 100}))
	assert.Equal(100.0, *tel.System.HeatSinkTemperature, "threshold is exclusive")
}

func TestNormalizeFlagsAndAliases(t *testing.T) {

	assert := assert.New(t)

	tel, err := normalizer.Normalize(raw(map[string]any{
		"is_switched_on":       1,
		"Is Charging On":       "0",
		"IS SCC CHARGING ON":   true,
		"Is Charging to Float": false,
		"pv_input_voltage":     120.0,
		"pv_input_current":     4.0,
	}))
	require.NoError(t, err)

	assert.True(*tel.Status.SwitchedOn)
	assert.False(*tel.Status.Charging)
	assert.True(*tel.Status.SolarCharging)
	assert.False(*tel.Status.FloatCharging)
	assert.Equal(480.0, *tel.PV.Power, "PV power falls back to V x I")
}

func TestNormalizeAliasPrecedence(t *testing.T) {

	assert := assert.New(t)

	resp := raw(map[string]any{
		"PV Charging Power":            591.0,
		"PV Input Power":               0.0,
		"PV Input Current for Battery": 5.0,
		"PV Input Current":             0.0,
	})

	// map iteration is random, repeat until an unordered lookup would have flipped
	for i := 0; i < 50; i++ {
		tel, err := normalizer.Normalize(resp)
		require.NoError(t, err)
		assert.Equal(591.0, *tel.PV.Power)
		assert.Equal(5.0, *tel.PV.Current)
	}

	// a malformed preferred spelling falls back to the alias
	tel, err := normalizer.Normalize(raw(map[string]any{
		"PV Charging Power": "n/a",
		"PV Input Power":    320.0,
	}))
	require.NoError(t, err)
	assert.Equal(320.0, *tel.PV.Power)

	// spellings that only differ in case resolve the same way every time
	for i := 0; i < 50; i++ {
		tel, err = normalizer.Normalize(raw(map[string]any{
			"Battery Voltage": 52.0,
			"battery_voltage": 48.0,
		}))
		require.NoError(t, err)
		assert.Equal(52.0, *tel.Battery.Voltage)
	}
}

func TestNormalizeDeviceStatus(t *testing.T) {

	assert := assert.New(t)

	tel, err := normalizer.Normalize(mppsolar.TestGeneralStatus())
	require.NoError(t, err)

	assert.Equal(230.1, *tel.ACOutput.Voltage)
	assert.Equal(591.0, *tel.PV.Power, "reported PV power wins over V x I")
	assert.Equal(8.0, *tel.Battery.Current)
	assert.Equal(87.0, *tel.Battery.SoC)
	assert.Equal(45.5, *tel.System.HeatSinkTemperature)
	assert.True(tel.Valid())
}
